// Package fake is an in-memory boardrepo.Repository used by the
// cachestate, hub, and autosave test suites so they don't need a live
// Postgres instance to exercise cold-load and optimistic-locking paths.
package fake

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zamc/boardhub/internal/boardrepo"
	"github.com/zamc/boardhub/internal/model"
)

type Repo struct {
	mu     sync.Mutex
	boards map[string]*model.Board
}

func New() *Repo {
	return &Repo{boards: make(map[string]*model.Board)}
}

func (r *Repo) Seed(b *model.Board) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards[b.ID] = b
}

func (r *Repo) FindByID(ctx context.Context, id string) (*model.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[id]
	if !ok {
		return nil, model.NewError(model.KindNotFound, "board not found", nil)
	}
	clone := *b
	clone.Objects = append([]model.BoardObject{}, b.Objects...)
	return &clone, nil
}

func (r *Repo) FindMany(ctx context.Context, filter boardrepo.Filter) ([]*model.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Board
	for _, b := range r.boards {
		if filter.OwnerID != "" && b.OwnerID != filter.OwnerID {
			continue
		}
		clone := *b
		out = append(out, &clone)
	}
	return out, nil
}

func (r *Repo) Create(ctx context.Context, ownerID, title string, slot int, objects []model.BoardObject) (*model.Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &model.Board{ID: ownerID + "-board", OwnerID: ownerID, Title: title, Slot: slot, Objects: objects}
	r.boards[b.ID] = b
	return b, nil
}

func (r *Repo) Update(ctx context.Context, id string, patch boardrepo.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[id]
	if !ok {
		return model.NewError(model.KindNotFound, "board not found", nil)
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.IsDeleted != nil {
		b.IsDeleted = *patch.IsDeleted
	}
	return nil
}

func (r *Repo) UpdateWithVersion(ctx context.Context, id string, objectsJSON []byte, expectedVersion int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.boards[id]
	if !ok {
		return 0, model.NewError(model.KindNotFound, "board not found", nil)
	}
	if b.Version != expectedVersion {
		return 0, nil
	}
	var objects []model.BoardObject
	if err := json.Unmarshal(objectsJSON, &objects); err != nil {
		return 0, err
	}
	b.Objects = objects
	b.Version++
	return 1, nil
}
