// Package boardrepo is the C1 Board Repository: typed access to
// durable board rows, including the optimistic-locked auto-save write
// path.
package boardrepo

import (
	"context"

	"github.com/zamc/boardhub/internal/model"
)

// Filter narrows FindMany. Zero-valued fields are not applied.
type Filter struct {
	OwnerID      string
	IncludeDeleted bool
	Limit        int
}

// Patch is a full-rewrite update (title rename, thumbnail, soft
// delete) — anything that is NOT the optimistic-locked objects write.
type Patch struct {
	Title              *string
	IsDeleted          *bool
	Thumbnail          []byte
	ThumbnailVersion   *int
}

// Repository is the interface the rest of the engine depends on; the
// only implementation shipped here is Postgres-backed, but hub/autosave
// tests substitute an in-memory fake.
type Repository interface {
	FindByID(ctx context.Context, id string) (*model.Board, error)
	FindMany(ctx context.Context, filter Filter) ([]*model.Board, error)
	Create(ctx context.Context, ownerID, title string, slot int, objects []model.BoardObject) (*model.Board, error)
	Update(ctx context.Context, id string, patch Patch) error
	// UpdateWithVersion is the sole path for auto-save writes. It
	// returns rowsAffected: 1 on success, 0 on version mismatch.
	UpdateWithVersion(ctx context.Context, id string, objectsJSON []byte, expectedVersion int) (rowsAffected int, err error)
}
