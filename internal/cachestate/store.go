// Package cachestate implements the C2 Cached State Store: the live,
// cache-resident working copy of a board's objects.
package cachestate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/zamc/boardhub/internal/boardrepo"
	"github.com/zamc/boardhub/internal/model"
)

// MutateResult is the outcome of an AddObject/UpdateObject/RemoveObject
// call. Every mutating method returns one of these rather than a bare
// error, because MISS is a routine, expected outcome the caller (the
// hub) must react to by cold-loading and retrying exactly once.
type MutateResult int

const (
	OK MutateResult = iota
	Duplicate
	LimitExceeded
	NotFound
	Miss
)

func boardKey(boardID string) string {
	return fmt.Sprintf("board:%s:state", boardID)
}

// Store is the Redis-backed implementation. All mutating operations
// are only ever invoked from within a board's owning hub goroutine
// (the recommended serialization strategy from spec §4.C2), so a plain
// GET/mutate/SET round trip is safe without a server-side script.
type Store struct {
	rdb  *redis.Client
	repo boardrepo.Repository
}

func New(rdb *redis.Client, repo boardrepo.Repository) *Store {
	return &Store{rdb: rdb, repo: repo}
}

func (s *Store) GetState(ctx context.Context, boardID string) (*model.CachedBoardState, error) {
	raw, err := s.rdb.Get(ctx, boardKey(boardID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewError(model.KindTransient, "get cached state", err)
	}
	var state model.CachedBoardState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal cached state: %w", err)
	}
	return &state, nil
}

func (s *Store) setState(ctx context.Context, boardID string, state *model.CachedBoardState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal cached state: %w", err)
	}
	if err := s.rdb.Set(ctx, boardKey(boardID), raw, 0).Err(); err != nil {
		return model.NewError(model.KindTransient, "set cached state", err)
	}
	return nil
}

// LoadFromDurable reads the board row from the repository and seeds
// the cache from it, returning the freshly loaded state.
func (s *Store) LoadFromDurable(ctx context.Context, boardID string) (*model.CachedBoardState, error) {
	board, err := s.repo.FindByID(ctx, boardID)
	if err != nil {
		return nil, err
	}
	state := &model.CachedBoardState{
		Objects:         board.Objects,
		PostgresVersion: board.Version,
		LastSyncedAt:    time.Now(),
	}
	if state.Objects == nil {
		state.Objects = []model.BoardObject{}
	}
	if err := s.setState(ctx, boardID, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) Evict(ctx context.Context, boardID string) error {
	if err := s.rdb.Del(ctx, boardKey(boardID)).Err(); err != nil {
		return model.NewError(model.KindTransient, "evict cached state", err)
	}
	return nil
}

func (s *Store) AddObject(ctx context.Context, boardID string, obj model.BoardObject, max int) (MutateResult, error) {
	state, err := s.GetState(ctx, boardID)
	if err != nil {
		return Miss, err
	}
	if state == nil {
		return Miss, nil
	}
	if state.IndexOf(obj.ID) != -1 {
		return Duplicate, nil
	}
	if len(state.Objects) >= max {
		return LimitExceeded, nil
	}
	state.Objects = append(state.Objects, obj)
	if err := s.setState(ctx, boardID, state); err != nil {
		return Miss, err
	}
	return OK, nil
}

// UpdateObject merges patch into the matching object (LWW). mutate is
// given a pointer to the cached object, and a clone of the result is
// returned so the hub can build its broadcast without a second round
// trip.
func (s *Store) UpdateObject(ctx context.Context, boardID, objectID string, mutate func(*model.BoardObject)) (MutateResult, *model.BoardObject, error) {
	state, err := s.GetState(ctx, boardID)
	if err != nil {
		return Miss, nil, err
	}
	if state == nil {
		return Miss, nil, nil
	}
	idx := state.IndexOf(objectID)
	if idx == -1 {
		return NotFound, nil, nil
	}
	mutate(&state.Objects[idx])
	if err := s.setState(ctx, boardID, state); err != nil {
		return Miss, nil, err
	}
	result := state.Objects[idx].Clone()
	return OK, &result, nil
}

func (s *Store) RemoveObject(ctx context.Context, boardID, objectID string) (MutateResult, error) {
	state, err := s.GetState(ctx, boardID)
	if err != nil {
		return Miss, err
	}
	if state == nil {
		return Miss, nil
	}
	idx := state.IndexOf(objectID)
	if idx == -1 {
		return NotFound, nil
	}
	state.Objects = append(state.Objects[:idx], state.Objects[idx+1:]...)
	if err := s.setState(ctx, boardID, state); err != nil {
		return Miss, err
	}
	return OK, nil
}

// MutateAll applies fn to the whole object slice in one round trip —
// used by object_delete to detach connectors/children in the same
// tick as the removal, per spec §9's ordering guidance.
func (s *Store) MutateAll(ctx context.Context, boardID string, fn func([]model.BoardObject) []model.BoardObject) (*model.CachedBoardState, error) {
	state, err := s.GetState(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	state.Objects = fn(state.Objects)
	if err := s.setState(ctx, boardID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetSyncMeta overwrites the cached state with objects, version and a
// fresh last_synced_at after a successful (or reconciled) auto-save
// flush.
func (s *Store) SetSyncMeta(ctx context.Context, boardID string, version int, objects []model.BoardObject) error {
	state := &model.CachedBoardState{
		Objects:         objects,
		PostgresVersion: version,
		LastSyncedAt:    time.Now(),
	}
	return s.setState(ctx, boardID, state)
}
