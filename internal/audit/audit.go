// Package audit implements C13: a capped, durable-ish log of
// security-relevant events (rate-limit trips, validation rejects,
// duplicate-session closures, auth failures). Adapted from the
// teacher's SecurityMonitor, narrowed to the events this engine
// actually raises and without its alert-threshold paging logic, which
// depended on outbound webhook/email integrations outside this spec's
// scope.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

type EventType string

const (
	EventRateLimitHit       EventType = "rate_limit_hit"
	EventValidationRejected EventType = "validation_rejected"
	EventDuplicateSession   EventType = "duplicate_session"
	EventAuthFailure        EventType = "auth_failure"
	EventEditConflict       EventType = "edit_conflict"
)

type Event struct {
	Type      EventType `json:"type"`
	BoardID   string    `json:"board_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	listKey    = "audit:events"
	maxEntries = 5000
	listTTL    = 7 * 24 * time.Hour
)

// Sink is Redis-backed: a capped list (LPUSH + LTRIM) so retrieval for
// an admin surface is cheap, plus a structured log line per event so
// nothing is lost if Redis itself is the thing misbehaving.
type Sink struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Sink {
	return &Sink{rdb: rdb}
}

func (s *Sink) record(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now()
	log.Printf("audit event=%s board=%s user=%s detail=%q", ev.Type, ev.BoardID, ev.UserID, ev.Detail)

	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, listKey, raw)
	pipe.LTrim(ctx, listKey, 0, maxEntries-1)
	pipe.Expire(ctx, listKey, listTTL)
	// Best effort: audit storage failures must never block the
	// operation that triggered the event.
	_, _ = pipe.Exec(ctx)
}

func (s *Sink) RateLimitHit(ctx context.Context, boardID, userID, detail string) {
	s.record(ctx, Event{Type: EventRateLimitHit, BoardID: boardID, UserID: userID, Detail: detail})
}

func (s *Sink) ValidationRejected(ctx context.Context, boardID, userID, detail string) {
	s.record(ctx, Event{Type: EventValidationRejected, BoardID: boardID, UserID: userID, Detail: detail})
}

func (s *Sink) DuplicateSession(ctx context.Context, userID, detail string) {
	s.record(ctx, Event{Type: EventDuplicateSession, UserID: userID, Detail: detail})
}

func (s *Sink) AuthFailure(ctx context.Context, detail string) {
	s.record(ctx, Event{Type: EventAuthFailure, Detail: detail})
}

func (s *Sink) EditConflict(ctx context.Context, boardID, userID, detail string) {
	s.record(ctx, Event{Type: EventEditConflict, BoardID: boardID, UserID: userID, Detail: detail})
}

// Recent returns the n most recent audit events, newest first.
func (s *Sink) Recent(ctx context.Context, n int64) ([]Event, error) {
	raws, err := s.rdb.LRange(ctx, listKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
