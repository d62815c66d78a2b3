// Package editlock implements C4: the edit-lock registry that arbitrates
// which user may currently mutate a given object.
package editlock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/zamc/boardhub/internal/model"
)

func lockKey(boardID, objectID string) string {
	return fmt.Sprintf("edit:%s:%s", boardID, objectID)
}

// userLocksKey is a reverse index, same trick as presence's boardsKey,
// so ClearUserEdits does not need to scan the whole edit-lock keyspace.
func userLocksKey(boardID, userID string) string {
	return fmt.Sprintf("editlock:user:%s:%s", boardID, userID)
}

type Registry struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{rdb: rdb, ttl: ttl}
}

// StartEdit attempts to acquire the lock on objectID for userID. It
// succeeds if the object is unlocked, or already locked by the same
// user (refresh-on-reselect), and fails with KindConflict naming the
// current holder otherwise.
func (r *Registry) StartEdit(ctx context.Context, boardID, objectID, userID, userName string) error {
	key := lockKey(boardID, objectID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil && err != redis.Nil {
		return model.NewError(model.KindTransient, "start edit", err)
	}
	if err == nil {
		var existing model.EditLock
		if json.Unmarshal(raw, &existing) == nil && existing.UserID != userID {
			return model.NewError(model.KindConflict, fmt.Sprintf("object locked by %s", existing.UserName), nil)
		}
	}

	lock := model.EditLock{
		BoardID:   boardID,
		ObjectID:  objectID,
		UserID:    userID,
		UserName:  userName,
		StartedAt: time.Now(),
	}
	encoded, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal edit lock: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, key, encoded, r.ttl)
	pipe.SAdd(ctx, userLocksKey(boardID, userID), objectID)
	pipe.Expire(ctx, userLocksKey(boardID, userID), r.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.NewError(model.KindTransient, "start edit", err)
	}
	return nil
}

// EndEdit releases the lock. It is a no-op if the lock is absent or
// held by a different user (a stale end_edit racing a takeover).
func (r *Registry) EndEdit(ctx context.Context, boardID, objectID, userID string) error {
	key := lockKey(boardID, objectID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return model.NewError(model.KindTransient, "end edit", err)
	}
	var existing model.EditLock
	if json.Unmarshal(raw, &existing) == nil && existing.UserID != userID {
		return nil
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, userLocksKey(boardID, userID), objectID)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.NewError(model.KindTransient, "end edit", err)
	}
	return nil
}

// ClearUserEdits releases every lock userID holds on boardID, returning
// the affected object IDs so the caller can account for each released
// lock.
func (r *Registry) ClearUserEdits(ctx context.Context, boardID, userID string) ([]string, error) {
	key := userLocksKey(boardID, userID)
	objectIDs, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, model.NewError(model.KindTransient, "clear user edits", err)
	}
	for _, objectID := range objectIDs {
		r.rdb.Del(ctx, lockKey(boardID, objectID))
	}
	r.rdb.Del(ctx, key)
	return objectIDs, nil
}

// Get returns the current holder of objectID's lock, or nil if unlocked.
func (r *Registry) Get(ctx context.Context, boardID, objectID string) (*model.EditLock, error) {
	raw, err := r.rdb.Get(ctx, lockKey(boardID, objectID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewError(model.KindTransient, "get edit lock", err)
	}
	var lock model.EditLock
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal edit lock: %w", err)
	}
	return &lock, nil
}
