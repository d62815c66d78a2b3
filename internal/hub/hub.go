// Package hub implements C5, the board hub: one long-lived goroutine
// per active board that owns the cached state's single-writer
// mutation lock. It is grounded on the per-board actor pattern from
// the reference kanban hub (a sync.Map-keyed singleton registry with
// cold-load-on-miss semantics), generalized from a read-mostly cache
// into a full command-serializing actor per spec §5's concurrency
// model.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zamc/boardhub/internal/audit"
	"github.com/zamc/boardhub/internal/cachestate"
	"github.com/zamc/boardhub/internal/editlock"
	"github.com/zamc/boardhub/internal/metrics"
	"github.com/zamc/boardhub/internal/model"
	"github.com/zamc/boardhub/internal/presence"
	"github.com/zamc/boardhub/internal/relay"
)

const (
	inboxDepth  = 256
	idleTimeout = 5 * time.Minute
)

// Manager is the process-wide board registry. Exactly one Board exists
// per currently-active board ID across this instance.
type Manager struct {
	boards sync.Map // map[string]*Board

	store      *cachestate.Store
	presence   *presence.Registry
	editlocks  *editlock.Registry
	relay      *relay.Relay
	audit      *audit.Sink
	metrics    *metrics.Sink
	maxObjects int

	mu           sync.Mutex
	onIdleFlush  func(ctx context.Context, boardID string) error
}

func NewManager(store *cachestate.Store, pres *presence.Registry, locks *editlock.Registry, rel *relay.Relay, aud *audit.Sink, met *metrics.Sink, maxObjects int) *Manager {
	return &Manager{
		store:      store,
		presence:   pres,
		editlocks:  locks,
		relay:      rel,
		audit:      aud,
		metrics:    met,
		maxObjects: maxObjects,
	}
}

// SetIdleFlushHook wires the auto-save worker's final-flush-for-board
// call into hub shutdown. It must be called once during startup wiring
// before any board is created (main.go does this right after
// constructing both the manager and the auto-save worker).
func (m *Manager) SetIdleFlushHook(fn func(ctx context.Context, boardID string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIdleFlush = fn
}

// GetOrCreate returns the running Board for boardID, starting its
// goroutine on first access (LoadOrStore races benignly: only the
// winner's goroutine survives, the loser's is simply never started).
func (m *Manager) GetOrCreate(boardID string) *Board {
	if existing, ok := m.boards.Load(boardID); ok {
		return existing.(*Board)
	}
	b := &Board{
		id:          boardID,
		manager:     m,
		inbox:       make(chan command, inboxDepth),
		subscribers: make(map[string]*Subscriber),
		store:       m.store,
		presence:    m.presence,
		editlocks:   m.editlocks,
		relay:       m.relay,
		audit:       m.audit,
		metrics:     m.metrics,
		maxObjects:  m.maxObjects,
		done:        make(chan struct{}),
	}
	actual, loaded := m.boards.LoadOrStore(boardID, b)
	if loaded {
		return actual.(*Board)
	}
	go actual.(*Board).run(context.Background())
	return actual.(*Board)
}

// Lookup returns the Board for boardID only if one is already running,
// without creating it.
func (m *Manager) Lookup(boardID string) (*Board, bool) {
	existing, ok := m.boards.Load(boardID)
	if !ok {
		return nil, false
	}
	return existing.(*Board), true
}

// ActiveBoardIDs lists every board with a currently-running hub
// goroutine — the auto-save worker's scan source per spec §4.C7.
func (m *Manager) ActiveBoardIDs() []string {
	var ids []string
	m.boards.Range(func(key, _ interface{}) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

func (m *Manager) remove(boardID string) {
	m.boards.Delete(boardID)
}

// Board is the per-board actor. All fields below inbox are only ever
// touched from within run's goroutine; nothing else may read or write
// them, which is what makes the single-writer guarantee hold without
// a mutex.
type Board struct {
	id      string
	manager *Manager
	inbox   chan command
	done    chan struct{}

	subscribers map[string]*Subscriber

	store      *cachestate.Store
	presence   *presence.Registry
	editlocks  *editlock.Registry
	relay      *relay.Relay
	audit      *audit.Sink
	metrics    *metrics.Sink
	maxObjects int
}

func (b *Board) ID() string { return b.id }

// enqueue submits cmd for serialized execution on this board's
// goroutine. A full inbox means the board is overwhelmed; the caller
// (connection handler) surfaces this as backpressure rather than
// blocking indefinitely and stalling the reader loop for one socket.
func (b *Board) enqueue(cmd command) bool {
	select {
	case b.inbox <- cmd:
		return true
	default:
		return false
	}
}

func (b *Board) run(ctx context.Context) {
	unsubscribeRelay, err := b.relay.Subscribe(b.id, func(env relay.Envelope) {
		b.enqueue(&cmdRemoteEvent{env: env})
	})
	if err != nil {
		log.Printf("hub %s: relay subscribe failed: %v", b.id, err)
	}
	defer unsubscribeRelay()
	defer close(b.done)

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case cmd, ok := <-b.inbox:
			if !ok {
				return
			}
			cmd.apply(ctx, b)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)

		case <-idle.C:
			if len(b.subscribers) > 0 {
				idle.Reset(idleTimeout)
				continue
			}
			b.shutdown(ctx)
			return
		}
	}
}

func (b *Board) shutdown(ctx context.Context) {
	b.manager.mu.Lock()
	flush := b.manager.onIdleFlush
	b.manager.mu.Unlock()
	if flush != nil {
		if err := flush(ctx, b.id); err != nil {
			log.Printf("hub %s: idle flush failed: %v", b.id, err)
		}
	}
	if err := b.store.Evict(ctx, b.id); err != nil {
		log.Printf("hub %s: evict cache failed: %v", b.id, err)
	}
	b.manager.remove(b.id)
}

func (b *Board) broadcastReliable(event string, data interface{}, except string) {
	env := model.OutboundEnvelope{Event: event, Data: data}
	for connID, sub := range b.subscribers {
		if connID == except {
			continue
		}
		sub.sendReliable(env)
	}
}

func (b *Board) broadcastLossy(event string, data interface{}, except string) {
	env := model.OutboundEnvelope{Event: event, Data: data}
	for connID, sub := range b.subscribers {
		if connID == except {
			continue
		}
		sub.sendLossy(env)
	}
}

func (b *Board) sendTo(connID, event string, data interface{}) {
	sub, ok := b.subscribers[connID]
	if !ok {
		return
	}
	sub.sendReliable(model.OutboundEnvelope{Event: event, Data: data})
}
