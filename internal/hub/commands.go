package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/zamc/boardhub/internal/cachestate"
	"github.com/zamc/boardhub/internal/model"
	"github.com/zamc/boardhub/internal/relay"
	"github.com/zamc/boardhub/internal/validate"
)

// command is the sealed set of messages a board's single goroutine
// processes, one at a time, in arrival order — this total order is
// what spec §5 calls the hub's ordering guarantee.
type command interface {
	apply(ctx context.Context, b *Board)
}

func now() int64 { return time.Now().UnixMilli() }

// --- subscribe / unsubscribe -------------------------------------------------

type cmdSubscribe struct {
	sub   *Subscriber
	reply chan error
}

func (c *cmdSubscribe) apply(ctx context.Context, b *Board) {
	state, err := b.loadStateOrCold(ctx)
	if err != nil {
		c.reply <- err
		return
	}

	if err := b.presence.AddUser(ctx, b.id, model.PresenceRecord{
		UserID: c.sub.UserID,
		Name:   c.sub.UserName,
		Avatar: c.sub.Avatar,
		Color:  c.sub.Color,
	}); err != nil {
		log.Printf("hub %s: add presence failed: %v", b.id, err)
	}

	b.subscribers[c.sub.ConnectionID] = c.sub
	b.metrics.IncGauge("connections_active", 1)

	users, err := b.presence.ListUsers(ctx, b.id)
	if err != nil {
		log.Printf("hub %s: list presence failed: %v", b.id, err)
	}
	userInfos := make([]model.UserInfo, 0, len(users))
	for _, u := range users {
		userInfos = append(userInfos, model.UserInfo{UserID: u.UserID, Name: u.Name, Avatar: u.Avatar, Color: u.Color})
	}

	b.sendTo(c.sub.ConnectionID, model.EvBoardState, model.BoardStatePayload{
		BoardID: b.id,
		Objects: state.Objects,
		Users:   userInfos,
	})

	joined := model.UserJoinedPayload{
		BoardID:   b.id,
		User:      model.UserInfo{UserID: c.sub.UserID, Name: c.sub.UserName, Avatar: c.sub.Avatar, Color: c.sub.Color},
		Timestamp: now(),
	}
	b.broadcastReliable(model.EvUserJoined, joined, c.sub.ConnectionID)
	if err := b.relay.Publish(b.id, model.EvUserJoined, joined); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=board:join}")
	close(c.reply)
}

type cmdUnsubscribe struct {
	connectionID string
}

func (c *cmdUnsubscribe) apply(ctx context.Context, b *Board) {
	sub, ok := b.subscribers[c.connectionID]
	if !ok {
		return
	}
	delete(b.subscribers, c.connectionID)
	close(sub.Out)
	b.metrics.IncGauge("connections_active", -1)

	if err := b.presence.RemoveUser(ctx, b.id, sub.UserID); err != nil {
		log.Printf("hub %s: remove presence failed: %v", b.id, err)
	}
	objectIDs, err := b.editlocks.ClearUserEdits(ctx, b.id, sub.UserID)
	if err != nil {
		log.Printf("hub %s: clear edit locks failed: %v", b.id, err)
	}
	for range objectIDs {
		b.metrics.IncGauge("edit_locks_active", -1)
	}

	left := model.UserLeftPayload{BoardID: b.id, UserID: sub.UserID, Timestamp: now()}
	b.broadcastReliable(model.EvUserLeft, left, c.connectionID)
	if err := b.relay.Publish(b.id, model.EvUserLeft, left); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=board:leave}")
}

// --- cursor / heartbeat (lossy, no cold-load) -------------------------------

type cmdCursorMove struct {
	connectionID string
	payload      model.CursorMovePayload
}

func (c *cmdCursorMove) apply(ctx context.Context, b *Board) {
	sub, ok := b.subscribers[c.connectionID]
	if !ok {
		return
	}
	if err := validate.ValidateCoordinate("x", c.payload.X); err != nil {
		return
	}
	if err := validate.ValidateCoordinate("y", c.payload.Y); err != nil {
		return
	}
	moved := model.CursorMovedPayload{BoardID: b.id, UserID: sub.UserID, X: c.payload.X, Y: c.payload.Y, Timestamp: now()}
	b.broadcastLossy(model.EvCursorMoved, moved, c.connectionID)
	b.metrics.Inc("ws_event_total{event=cursor:move}")
}

type cmdHeartbeat struct {
	connectionID string
}

func (c *cmdHeartbeat) apply(ctx context.Context, b *Board) {
	sub, ok := b.subscribers[c.connectionID]
	if !ok {
		return
	}
	if err := b.presence.Refresh(ctx, b.id, sub.UserID); err != nil {
		log.Printf("hub %s: refresh presence failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=heartbeat}")
}

// --- object lifecycle --------------------------------------------------------

type cmdObjectCreate struct {
	connectionID string
	obj          model.BoardObject
	reply        chan error
}

func (c *cmdObjectCreate) apply(ctx context.Context, b *Board) {
	sub := b.subscribers[c.connectionID]
	ts := time.Now()
	c.obj.CreatedAt = ts
	c.obj.UpdatedAt = ts
	if sub != nil {
		c.obj.CreatedBy = sub.UserID
		c.obj.LastEditedBy = sub.UserID
	}

	result, err := b.store.AddObject(ctx, b.id, c.obj, b.maxObjects)
	if err != nil {
		c.reply <- err
		return
	}
	result, err = b.retryOnMiss(ctx, result, err, func() (cachestate.MutateResult, error) {
		return b.store.AddObject(ctx, b.id, c.obj, b.maxObjects)
	})
	if err != nil {
		c.reply <- err
		return
	}
	switch result {
	case cachestate.Duplicate:
		c.reply <- model.NewError(model.KindConflict, "duplicate object id", nil)
		return
	case cachestate.LimitExceeded:
		c.reply <- model.NewError(model.KindLimit, "board object limit reached", nil)
		return
	case cachestate.Miss:
		c.reply <- model.NewError(model.KindTransient, "board state unavailable", nil)
		return
	}

	created := model.ObjectEventPayload{BoardID: b.id, Object: c.obj, UserID: c.obj.CreatedBy, Timestamp: now()}
	b.broadcastReliable(model.EvObjectCreated, created, "")
	if err := b.relay.Publish(b.id, model.EvObjectCreated, created); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=object:create}")
	close(c.reply)
}

type cmdObjectUpdate struct {
	connectionID string
	objectID     string
	patch        model.Patch
	reply        chan error
}

func (c *cmdObjectUpdate) apply(ctx context.Context, b *Board) {
	sub := b.subscribers[c.connectionID]
	userID := ""
	if sub != nil {
		userID = sub.UserID
	}

	mutate := func(o *model.BoardObject) {
		o.ApplyPatch(c.patch)
		o.UpdatedAt = time.Now()
		o.LastEditedBy = userID
	}

	result, updated, err := b.store.UpdateObject(ctx, b.id, c.objectID, mutate)
	if err != nil {
		c.reply <- err
		return
	}
	if result == cachestate.Miss {
		if _, err := b.loadStateOrCold(ctx); err != nil {
			c.reply <- err
			return
		}
		result, updated, err = b.store.UpdateObject(ctx, b.id, c.objectID, mutate)
		if err != nil {
			c.reply <- err
			return
		}
	}
	if result == cachestate.NotFound {
		c.reply <- model.NewError(model.KindNotFound, "object not found", nil)
		return
	}

	payload := model.ObjectEventPayload{BoardID: b.id, Object: *updated, UserID: userID, Timestamp: now()}
	b.broadcastReliable(model.EvObjectUpdated, payload, "")
	if err := b.relay.Publish(b.id, model.EvObjectUpdated, payload); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=object:update}")
	close(c.reply)
}

type cmdObjectDelete struct {
	connectionID string
	objectID     string
	reply        chan error
}

func (c *cmdObjectDelete) apply(ctx context.Context, b *Board) {
	sub := b.subscribers[c.connectionID]
	userID := ""
	if sub != nil {
		userID = sub.UserID
	}

	var detached []model.BoardObject
	var found bool
	state, err := b.store.MutateAll(ctx, b.id, func(objs []model.BoardObject) []model.BoardObject {
		out := make([]model.BoardObject, 0, len(objs))
		for i := range objs {
			if objs[i].ID == c.objectID {
				found = true
				continue
			}
			if objs[i].DetachFrom(c.objectID) {
				objs[i].UpdatedAt = time.Now()
				detached = append(detached, objs[i])
			}
			out = append(out, objs[i])
		}
		return out
	})
	if err != nil {
		c.reply <- err
		return
	}
	if state == nil {
		if _, err := b.loadStateOrCold(ctx); err != nil {
			c.reply <- err
			return
		}
		c.apply(ctx, b)
		return
	}
	if !found {
		c.reply <- model.NewError(model.KindNotFound, "object not found", nil)
		return
	}

	for _, obj := range detached {
		b.broadcastReliable(model.EvObjectUpdated, model.ObjectEventPayload{
			BoardID: b.id, Object: obj, UserID: userID, Timestamp: now(),
		}, "")
	}
	deleted := model.ObjectDeletedPayload{BoardID: b.id, ObjectID: c.objectID, UserID: userID, Timestamp: now()}
	b.broadcastReliable(model.EvObjectDeleted, deleted, "")
	if err := b.relay.Publish(b.id, model.EvObjectDeleted, deleted); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=object:delete}")
	close(c.reply)
}

// --- batch ops ---------------------------------------------------------------

type cmdBatchCreate struct {
	connectionID string
	objects      []model.BoardObject
	reply        chan error
}

func (c *cmdBatchCreate) apply(ctx context.Context, b *Board) {
	if err := validate.ValidateBatchSize(len(c.objects)); err != nil {
		c.reply <- err
		return
	}
	sub := b.subscribers[c.connectionID]
	userID := ""
	if sub != nil {
		userID = sub.UserID
	}
	ts := time.Now()
	for i := range c.objects {
		c.objects[i].CreatedAt = ts
		c.objects[i].UpdatedAt = ts
		c.objects[i].CreatedBy = userID
		c.objects[i].LastEditedBy = userID
	}

	var rejected error
	state, err := b.store.MutateAll(ctx, b.id, func(objs []model.BoardObject) []model.BoardObject {
		seen := make(map[string]struct{}, len(objs)+len(c.objects))
		for _, o := range objs {
			seen[o.ID] = struct{}{}
		}
		for _, o := range c.objects {
			if _, dup := seen[o.ID]; dup {
				rejected = model.NewError(model.KindConflict, "duplicate object id", nil)
				return objs
			}
			seen[o.ID] = struct{}{}
		}
		if len(objs)+len(c.objects) > b.maxObjects {
			rejected = model.NewError(model.KindLimit, "board object limit reached", nil)
			return objs
		}
		return append(objs, c.objects...)
	})
	if err != nil {
		c.reply <- err
		return
	}
	if state == nil {
		if _, err := b.loadStateOrCold(ctx); err != nil {
			c.reply <- err
			return
		}
		c.apply(ctx, b)
		return
	}
	if rejected != nil {
		c.reply <- rejected
		return
	}

	created := model.BatchCreatedPayload{BoardID: b.id, Objects: c.objects, UserID: userID, Timestamp: now()}
	b.broadcastReliable(model.EvObjectsBatchCreated, created, "")
	if err := b.relay.Publish(b.id, model.EvObjectsBatchCreated, created); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=objects:batch_create}")
	close(c.reply)
}

type cmdBatchMove struct {
	connectionID string
	moves        []model.Move
	reply        chan error
}

func (c *cmdBatchMove) apply(ctx context.Context, b *Board) {
	if err := validate.ValidateBatchSize(len(c.moves)); err != nil {
		c.reply <- err
		return
	}
	sub := b.subscribers[c.connectionID]
	userID := ""
	if sub != nil {
		userID = sub.UserID
	}

	byID := make(map[string]model.Move, len(c.moves))
	for _, m := range c.moves {
		byID[m.ObjectID] = m
	}

	state, err := b.store.MutateAll(ctx, b.id, func(objs []model.BoardObject) []model.BoardObject {
		for i := range objs {
			if m, ok := byID[objs[i].ID]; ok {
				objs[i].X = m.X
				objs[i].Y = m.Y
				objs[i].UpdatedAt = time.Now()
				objs[i].LastEditedBy = userID
			}
		}
		return objs
	})
	if err != nil {
		c.reply <- err
		return
	}
	if state == nil {
		if _, err := b.loadStateOrCold(ctx); err != nil {
			c.reply <- err
			return
		}
		c.apply(ctx, b)
		return
	}

	moved := model.BatchMovedPayload{BoardID: b.id, Moves: c.moves, UserID: userID, Timestamp: now()}
	b.broadcastReliable(model.EvObjectsBatchMoved, moved, "")
	if err := b.relay.Publish(b.id, model.EvObjectsBatchMoved, moved); err != nil {
		log.Printf("hub %s: relay publish failed: %v", b.id, err)
	}
	b.metrics.Inc("ws_event_total{event=objects:batch_move}")
	close(c.reply)
}

// --- edit locks ----------------------------------------------------------

type cmdEditStart struct {
	connectionID string
	objectID     string
	reply        chan error
}

func (c *cmdEditStart) apply(ctx context.Context, b *Board) {
	sub := b.subscribers[c.connectionID]
	if sub == nil {
		close(c.reply)
		return
	}
	err := b.editlocks.StartEdit(ctx, b.id, c.objectID, sub.UserID, sub.UserName)
	if err != nil {
		if model.KindOf(err) == model.KindConflict {
			holder, _ := b.editlocks.Get(ctx, b.id, c.objectID)
			editors := []model.EditorRef{}
			if holder != nil {
				editors = append(editors, model.EditorRef{UserID: holder.UserID, UserName: holder.UserName})
			}
			b.sendTo(c.connectionID, model.EvEditWarning, model.EditWarningPayload{
				BoardID: b.id, ObjectID: c.objectID, Editors: editors,
			})
			if holder != nil {
				b.sendTo(c.connectionID, model.EvConflictWarning, model.ConflictWarningPayload{
					BoardID:             b.id,
					ObjectID:            c.objectID,
					ConflictingUserID:   holder.UserID,
					ConflictingUserName: holder.UserName,
					Message:             "object is currently being edited",
				})
			}
			b.audit.EditConflict(ctx, b.id, sub.UserID, c.objectID)
		}
		c.reply <- err
		return
	}
	b.metrics.IncGauge("edit_locks_active", 1)
	close(c.reply)
}

type cmdEditEnd struct {
	connectionID string
	objectID     string
}

func (c *cmdEditEnd) apply(ctx context.Context, b *Board) {
	sub := b.subscribers[c.connectionID]
	if sub == nil {
		return
	}
	if err := b.editlocks.EndEdit(ctx, b.id, c.objectID, sub.UserID); err != nil {
		log.Printf("hub %s: end edit failed: %v", b.id, err)
		return
	}
	b.metrics.IncGauge("edit_locks_active", -1)
}

// --- cross-instance relay replay --------------------------------------------

// cmdRemoteEvent replays an event another instance already committed
// to this instance's own subscribers. It never re-mutates cached
// state — the originating instance's hub already wrote it to the
// shared cache — it only fans the event out to connections attached
// to this process, which the origin instance has no direct handle to.
type cmdRemoteEvent struct {
	env relay.Envelope
}

func (c *cmdRemoteEvent) apply(ctx context.Context, b *Board) {
	b.broadcastReliable(c.env.Event, json.RawMessage(c.env.Payload), "")
}

// --- shared helpers ----------------------------------------------------------

// loadStateOrCold implements the MISS -> cold-load -> retry-once
// contract from spec §4.C2: every caller that gets a cachestate.Miss
// calls this exactly once before re-attempting its mutation.
func (b *Board) loadStateOrCold(ctx context.Context) (*model.CachedBoardState, error) {
	state, err := b.store.GetState(ctx, b.id)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}
	return b.store.LoadFromDurable(ctx, b.id)
}

func (b *Board) retryOnMiss(ctx context.Context, result cachestate.MutateResult, err error, retry func() (cachestate.MutateResult, error)) (cachestate.MutateResult, error) {
	if result != cachestate.Miss || err != nil {
		return result, err
	}
	if _, lerr := b.loadStateOrCold(ctx); lerr != nil {
		return cachestate.Miss, lerr
	}
	return retry()
}
