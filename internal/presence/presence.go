// Package presence implements C3: the presence & session registry,
// keyed, TTL-refreshed state shared across all service instances.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/zamc/boardhub/internal/model"
)

func presenceKey(boardID, userID string) string {
	return fmt.Sprintf("presence:%s:%s", boardID, userID)
}

func sessionKey(connectionID string) string {
	return fmt.Sprintf("ws:session:%s", connectionID)
}

// boardsKey is the auxiliary reverse-index set from spec §9's Open
// Question: which boards is this user currently present on. It lets
// RemoveUserFromAllBoards avoid a full SCAN of the presence keyspace.
func boardsKey(userID string) string {
	return fmt.Sprintf("presence:boards:%s", userID)
}

type Registry struct {
	rdb         *redis.Client
	presenceTTL time.Duration
	sessionTTL  time.Duration
}

func New(rdb *redis.Client, presenceTTL time.Duration) *Registry {
	return &Registry{rdb: rdb, presenceTTL: presenceTTL, sessionTTL: 24 * time.Hour}
}

func (r *Registry) AddUser(ctx context.Context, boardID string, info model.PresenceRecord) error {
	info.BoardID = boardID
	info.LastHeartbeat = time.Now()
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, presenceKey(boardID, info.UserID), raw, r.presenceTTL)
	pipe.SAdd(ctx, boardsKey(info.UserID), boardID)
	pipe.Expire(ctx, boardsKey(info.UserID), r.presenceTTL*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.NewError(model.KindTransient, "add presence", err)
	}
	return nil
}

// Refresh extends the TTL of an existing presence record. It is a
// no-op (not an error) if the record already expired; the record is
// not recreated.
func (r *Registry) Refresh(ctx context.Context, boardID, userID string) error {
	key := presenceKey(boardID, userID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return model.NewError(model.KindTransient, "refresh presence", err)
	}
	var rec model.PresenceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("unmarshal presence: %w", err)
	}
	rec.LastHeartbeat = time.Now()
	updated, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := r.rdb.Set(ctx, key, updated, r.presenceTTL).Err(); err != nil {
		return model.NewError(model.KindTransient, "refresh presence", err)
	}
	r.rdb.Expire(ctx, boardsKey(userID), r.presenceTTL*2)
	return nil
}

func (r *Registry) RemoveUser(ctx context.Context, boardID, userID string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, presenceKey(boardID, userID))
	pipe.SRem(ctx, boardsKey(userID), boardID)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.NewError(model.KindTransient, "remove presence", err)
	}
	return nil
}

func (r *Registry) ListUsers(ctx context.Context, boardID string) ([]model.PresenceRecord, error) {
	pattern := fmt.Sprintf("presence:%s:*", boardID)
	keys, err := r.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, model.NewError(model.KindTransient, "list presence", err)
	}
	var users []model.PresenceRecord
	for _, key := range keys {
		raw, err := r.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between KEYS and GET; fail-open
		}
		if err != nil {
			continue
		}
		var rec model.PresenceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		users = append(users, rec)
	}
	return users, nil
}

// RemoveUserFromAllBoards clears every presence record for a user
// (called on disconnect) and returns the board IDs the user had been
// on, so the caller can broadcast user:left to each. Prefers the
// per-user board set; falls back to a presence-keyspace SCAN if the
// set is empty (e.g. it predates this registry version, or expired).
func (r *Registry) RemoveUserFromAllBoards(ctx context.Context, userID string) ([]string, error) {
	boards, err := r.rdb.SMembers(ctx, boardsKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, model.NewError(model.KindTransient, "list user boards", err)
	}
	if len(boards) == 0 {
		boards, err = r.scanBoardsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	for _, boardID := range boards {
		r.rdb.Del(ctx, presenceKey(boardID, userID))
	}
	r.rdb.Del(ctx, boardsKey(userID))
	return boards, nil
}

func (r *Registry) scanBoardsForUser(ctx context.Context, userID string) ([]string, error) {
	var boards []string
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, "presence:*:"+userID, 100).Result()
		if err != nil {
			return nil, model.NewError(model.KindTransient, "scan presence", err)
		}
		for _, key := range keys {
			// key shape: presence:{board_id}:{user_id}
			boardID := key[len("presence:") : len(key)-len(":"+userID)]
			boards = append(boards, boardID)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return boards, nil
}

func (r *Registry) AddSession(ctx context.Context, sess model.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(sess.ConnectionID), raw, r.sessionTTL).Err(); err != nil {
		return model.NewError(model.KindTransient, "add session", err)
	}
	return nil
}

func (r *Registry) GetSession(ctx context.Context, connectionID string) (*model.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(connectionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewError(model.KindTransient, "get session", err)
	}
	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (r *Registry) RemoveSession(ctx context.Context, connectionID string) error {
	if err := r.rdb.Del(ctx, sessionKey(connectionID)).Err(); err != nil {
		return model.NewError(model.KindTransient, "remove session", err)
	}
	return nil
}
