// Package chathistory implements C10: a per-(board, user) sliding
// window of chat messages, interface-only per spec — the producing/
// consuming AI surface is external to this engine.
package chathistory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultCap = 50
	ttl        = 24 * time.Hour
)

type Message struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func key(boardID, userID string) string {
	return fmt.Sprintf("chat:%s:%s", boardID, userID)
}

// boardUsersKey indexes which users have chat history on a board, so
// purge_all does not need a keyspace scan.
func boardUsersKey(boardID string) string {
	return fmt.Sprintf("chat:users:%s", boardID)
}

type Store struct {
	rdb *redis.Client
	cap int64
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, cap: defaultCap}
}

// Append records msg and trims the window to cap. Failures are
// swallowed by callers per spec §7 — chat history loss on a cache
// outage is tolerated, never surfaced as a hard error to the client.
func (s *Store) Append(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	k := key(msg.BoardID, msg.UserID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, k, raw)
	pipe.LTrim(ctx, k, -s.cap, -1)
	pipe.Expire(ctx, k, ttl)
	pipe.SAdd(ctx, boardUsersKey(msg.BoardID), msg.UserID)
	pipe.Expire(ctx, boardUsersKey(msg.BoardID), ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, boardID, userID string) ([]Message, error) {
	raws, err := s.rdb.LRange(ctx, key(boardID, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get chat history: %w", err)
	}
	messages := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *Store) Purge(ctx context.Context, boardID, userID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key(boardID, userID))
	pipe.SRem(ctx, boardUsersKey(boardID), userID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) PurgeAll(ctx context.Context, boardID string) error {
	users, err := s.rdb.SMembers(ctx, boardUsersKey(boardID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("list chat users: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	for _, userID := range users {
		pipe.Del(ctx, key(boardID, userID))
	}
	pipe.Del(ctx, boardUsersKey(boardID))
	_, err = pipe.Exec(ctx)
	return err
}
