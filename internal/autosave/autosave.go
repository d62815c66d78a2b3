// Package autosave implements C7: the process-wide worker that
// periodically flushes every active board's cached state to the
// durable repository under optimistic version control, and triggers
// version snapshots on a save-count cadence.
package autosave

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/zamc/boardhub/internal/boardrepo"
	"github.com/zamc/boardhub/internal/cachestate"
	"github.com/zamc/boardhub/internal/hub"
	"github.com/zamc/boardhub/internal/metrics"
	"github.com/zamc/boardhub/internal/snapshot"
)

type Worker struct {
	repo     boardrepo.Repository
	store    *cachestate.Store
	hubs     *hub.Manager
	snap     *snapshot.Service
	metrics  *metrics.Sink
	interval time.Duration
	everyN   int

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu       sync.Mutex
	counters map[string]int
}

func New(repo boardrepo.Repository, store *cachestate.Store, hubs *hub.Manager, snap *snapshot.Service, met *metrics.Sink, interval time.Duration, everyN int) *Worker {
	return &Worker{
		repo:     repo,
		store:    store,
		hubs:     hubs,
		snap:     snap,
		metrics:  met,
		interval: interval,
		everyN:   everyN,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		counters: make(map[string]int),
	}
}

// Start launches the ticking goroutine. Safe to call more than once —
// only the first call has effect.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.loop(ctx)
	})
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-w.stopCh:
			w.tick(ctx) // final flush
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop runs one final flush identical to a tick, then returns once the
// loop has exited. Per spec §4.C7's shutdown contract.
func (w *Worker) Stop(ctx context.Context) {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	select {
	case <-w.doneCh:
	case <-ctx.Done():
	}
}

func (w *Worker) tick(ctx context.Context) {
	boardIDs := w.hubs.ActiveBoardIDs()
	for _, boardID := range boardIDs {
		if err := w.FlushBoard(ctx, boardID); err != nil {
			log.Printf("autosave %s: flush failed: %v", boardID, err)
		}
	}
}

// FlushBoard performs one board's flush in isolation — errors here
// never abort the tick for other boards (spec §4.C7 invariant). It is
// also the function wired into the hub's idle-shutdown hook, so the
// last flush for a board happens synchronously as its hub goroutine
// exits.
func (w *Worker) FlushBoard(ctx context.Context, boardID string) error {
	state, err := w.store.GetState(ctx, boardID)
	if err != nil {
		return err
	}
	if state == nil {
		return nil // nothing cached, nothing to flush
	}

	objectsJSON, err := json.Marshal(state.Objects)
	if err != nil {
		return err
	}

	affected, err := w.repo.UpdateWithVersion(ctx, boardID, objectsJSON, state.PostgresVersion)
	if err != nil {
		return err
	}

	if affected == 1 {
		newVersion := state.PostgresVersion + 1
		if err := w.store.SetSyncMeta(ctx, boardID, newVersion, state.Objects); err != nil {
			return err
		}
		w.metrics.Inc("db_query_total{model=board,op=autosave_success}")

		count := w.incrementCounter(boardID)
		if count%w.everyN == 0 && len(state.Objects) > 0 {
			w.snap.CreateSnapshot(ctx, boardID, "autosave", state.Objects)
		}
		return nil
	}

	// rows_affected == 0: version conflict. Durable store is
	// authoritative; reconcile the cache to it and reset the counter.
	w.metrics.Inc("db_query_total{model=board,op=autosave_conflict}")
	board, err := w.repo.FindByID(ctx, boardID)
	if err != nil {
		return err
	}
	if err := w.store.SetSyncMeta(ctx, boardID, board.Version, board.Objects); err != nil {
		return err
	}
	w.resetCounter(boardID)
	return nil
}

func (w *Worker) incrementCounter(boardID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters[boardID]++
	return w.counters[boardID]
}

func (w *Worker) resetCounter(boardID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters[boardID] = 0
}
