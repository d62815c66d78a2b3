package hub

import (
	"context"

	"github.com/zamc/boardhub/internal/model"
)

// errBackpressure is returned when a board's inbox is full — the board
// goroutine is falling behind. Connection handlers surface this as a
// board:error frame rather than blocking the reader indefinitely.
func errBackpressure() error {
	return model.NewError(model.KindTransient, "board is overloaded, try again", nil)
}

// waitReply blocks for cmd's reply channel or ctx cancellation,
// whichever comes first. A closed-without-send channel (the success
// path for fire-and-forget-style commands) yields a nil error.
func waitReply(ctx context.Context, reply chan error) error {
	select {
	case err, ok := <-reply:
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Board) Subscribe(ctx context.Context, sub *Subscriber) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdSubscribe{sub: sub, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) Unsubscribe(connectionID string) {
	b.enqueue(&cmdUnsubscribe{connectionID: connectionID})
}

func (b *Board) CursorMove(connectionID string, payload model.CursorMovePayload) {
	b.enqueue(&cmdCursorMove{connectionID: connectionID, payload: payload})
}

func (b *Board) Heartbeat(connectionID string) {
	b.enqueue(&cmdHeartbeat{connectionID: connectionID})
}

func (b *Board) CreateObject(ctx context.Context, connectionID string, obj model.BoardObject) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdObjectCreate{connectionID: connectionID, obj: obj, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) UpdateObject(ctx context.Context, connectionID, objectID string, patch model.Patch) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdObjectUpdate{connectionID: connectionID, objectID: objectID, patch: patch, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) DeleteObject(ctx context.Context, connectionID, objectID string) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdObjectDelete{connectionID: connectionID, objectID: objectID, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) BatchCreate(ctx context.Context, connectionID string, objects []model.BoardObject) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdBatchCreate{connectionID: connectionID, objects: objects, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) BatchMove(ctx context.Context, connectionID string, moves []model.Move) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdBatchMove{connectionID: connectionID, moves: moves, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) EditStart(ctx context.Context, connectionID, objectID string) error {
	reply := make(chan error, 1)
	if !b.enqueue(&cmdEditStart{connectionID: connectionID, objectID: objectID, reply: reply}) {
		return errBackpressure()
	}
	return waitReply(ctx, reply)
}

func (b *Board) EditEnd(connectionID, objectID string) {
	b.enqueue(&cmdEditEnd{connectionID: connectionID, objectID: objectID})
}
