package wsconn

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/zamc/boardhub/internal/hub"
	"github.com/zamc/boardhub/internal/model"
	"github.com/zamc/boardhub/internal/validate"
)

const dispatchTimeout = 5 * time.Second

// dispatch decodes raw into the payload type for event and routes it
// to the addressed board hub, per spec §4.C6's rate-limit -> validate
// -> dispatch pipeline. Invalid events get one board:error frame and
// are otherwise dropped — they never reach the hub.
func (c *conn) dispatch(event string, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch event {
	case model.EvBoardJoin:
		var p model.BoardJoinPayload
		if !c.decode(raw, &p) {
			return
		}
		c.handleJoin(ctx, p)

	case model.EvBoardLeave:
		c.leaveBoard()
		c.setState(stateAuthenticated)

	case model.EvCursorMove:
		var p model.CursorMovePayload
		if !c.decode(raw, &p) {
			return
		}
		if b := c.activeBoard(); b != nil {
			b.CursorMove(c.id, p)
		}

	case model.EvHeartbeat:
		if b := c.activeBoard(); b != nil {
			b.Heartbeat(c.id)
		}

	case model.EvObjectCreate:
		var p model.ObjectCreatePayload
		if !c.decode(raw, &p) {
			return
		}
		c.withValidObject(&p.Object, func(b *hub.Board) {
			if err := b.CreateObject(ctx, c.id, p.Object); err != nil {
				c.sendError(model.KindOf(err), err.Error())
			}
		})

	case model.EvObjectUpdate:
		var p model.ObjectUpdatePayload
		if !c.decode(raw, &p) {
			return
		}
		if err := validate.ValidateUUID(p.ObjectID); err != nil {
			c.sendError(model.KindValidation, err.Error())
			return
		}
		if err := validate.ValidatePatch(p.Updates); err != nil {
			c.sendError(model.KindValidation, err.Error())
			return
		}
		if b := c.activeBoard(); b != nil {
			if err := b.UpdateObject(ctx, c.id, p.ObjectID, p.Updates); err != nil {
				c.sendError(model.KindOf(err), err.Error())
			}
		}

	case model.EvObjectDelete:
		var p model.ObjectDeletePayload
		if !c.decode(raw, &p) {
			return
		}
		if b := c.activeBoard(); b != nil {
			if err := b.DeleteObject(ctx, c.id, p.ObjectID); err != nil {
				c.sendError(model.KindOf(err), err.Error())
			}
		}

	case model.EvObjectsBatchCreate:
		var p model.BatchCreatePayload
		if !c.decode(raw, &p) {
			return
		}
		if err := validate.ValidateBatchSize(len(p.Objects)); err != nil {
			c.sendError(model.KindValidation, err.Error())
			return
		}
		for i := range p.Objects {
			if err := c.server.validator.ValidateObject(&p.Objects[i]); err != nil {
				c.sendError(model.KindValidation, err.Error())
				return
			}
		}
		if b := c.activeBoard(); b != nil {
			if err := b.BatchCreate(ctx, c.id, p.Objects); err != nil {
				c.sendError(model.KindOf(err), err.Error())
			}
		}

	case model.EvObjectsBatchUpdate:
		var p model.BatchUpdatePayload
		if !c.decode(raw, &p) {
			return
		}
		if err := validate.ValidateBatchSize(len(p.Moves)); err != nil {
			c.sendError(model.KindValidation, err.Error())
			return
		}
		if b := c.activeBoard(); b != nil {
			if err := b.BatchMove(ctx, c.id, p.Moves); err != nil {
				c.sendError(model.KindOf(err), err.Error())
			}
		}

	case model.EvEditStart:
		var p model.EditStartPayload
		if !c.decode(raw, &p) {
			return
		}
		if b := c.activeBoard(); b != nil {
			if err := b.EditStart(ctx, c.id, p.ObjectID); err != nil && model.KindOf(err) != model.KindConflict {
				c.sendError(model.KindOf(err), err.Error())
			}
		}

	case model.EvEditEnd:
		var p model.EditEndPayload
		if !c.decode(raw, &p) {
			return
		}
		if b := c.activeBoard(); b != nil {
			b.EditEnd(c.id, p.ObjectID)
		}

	default:
		c.sendError(model.KindValidation, "unknown event: "+event)
	}
}

func (c *conn) decode(raw []byte, dest interface{}) bool {
	if err := json.Unmarshal(raw, dest); err != nil {
		c.sendError(model.KindValidation, "malformed payload")
		return false
	}
	return true
}

func (c *conn) withValidObject(obj *model.BoardObject, fn func(b *hub.Board)) {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	if err := validate.ValidateUUID(obj.ID); err != nil {
		c.sendError(model.KindValidation, err.Error())
		return
	}
	if err := c.server.validator.ValidateObjectType(obj.Type); err != nil {
		c.sendError(model.KindValidation, err.Error())
		return
	}
	if err := c.server.validator.ValidateObject(obj); err != nil {
		c.sendError(model.KindValidation, err.Error())
		return
	}
	if b := c.activeBoard(); b != nil {
		fn(b)
	}
}

func (c *conn) activeBoard() *hub.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOnBoard {
		return nil
	}
	return c.board
}

func (c *conn) handleJoin(ctx context.Context, p model.BoardJoinPayload) {
	if err := validate.ValidateUUID(p.BoardID); err != nil {
		c.sendError(model.KindValidation, err.Error())
		return
	}

	c.mu.Lock()
	if c.state == stateOnBoard {
		c.mu.Unlock()
		c.sendError(model.KindValidation, "already on a board")
		return
	}
	c.mu.Unlock()

	board := c.server.hubs.GetOrCreate(p.BoardID)
	sub := hub.NewSubscriber(c.id, c.identity.UserID, c.identity.Name, c.identity.Avatar, "")

	if err := board.Subscribe(ctx, sub); err != nil {
		c.sendError(model.KindOf(err), err.Error())
		return
	}

	c.mu.Lock()
	c.board = board
	c.sub = sub
	c.state = stateOnBoard
	c.mu.Unlock()

	c.startWriter(sub)
}
