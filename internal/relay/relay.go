// Package relay implements C12: cross-instance event relay so that
// multiple service instances can each serve a subset of connections
// for the same board and still see each other's committed events. It
// is adapted from the teacher's board-update NATS subject, generalized
// from a single update kind to the full set of hub-broadcast events and
// tagged with an origin instance ID to prevent echo loops.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Envelope is what actually travels over the bus. OriginInstance lets
// a subscriber discard messages it published itself.
type Envelope struct {
	OriginInstance string          `json:"origin_instance"`
	BoardID        string          `json:"board_id"`
	Event          string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
}

func subject(boardID string) string {
	return fmt.Sprintf("boardhub.board.%s.events", boardID)
}

// Relay is optional infrastructure: a nil *Relay (constructed when
// NATS_URL is unset, or when the initial dial fails) makes Publish and
// Subscribe no-ops so a single-instance deployment runs unaffected.
type Relay struct {
	nc         *nats.Conn
	instanceID string
}

// Connect dials NATS if natsURL is non-empty. On any error, or an
// empty URL, it returns a nil *Relay rather than an error — cross-
// instance relay is an optional deployment topology per spec §1, not
// a startup dependency.
func Connect(natsURL, instanceID string) *Relay {
	if natsURL == "" {
		return nil
	}
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil
	}
	return &Relay{nc: nc, instanceID: instanceID}
}

func (r *Relay) Close() {
	if r == nil || r.nc == nil {
		return
	}
	r.nc.Close()
}

// Publish broadcasts a locally-committed hub event to other instances.
// Failures are swallowed (logged by the caller) — the relay is best
// effort; local delivery to this instance's own connections already
// happened before Publish is called.
func (r *Relay) Publish(boardID, event string, payload interface{}) error {
	if r == nil || r.nc == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}
	env := Envelope{
		OriginInstance: r.instanceID,
		BoardID:        boardID,
		Event:          event,
		Payload:        raw,
	}
	encoded, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	return r.nc.Publish(subject(boardID), encoded)
}

// Subscribe registers handler for remote events on boardID. handler is
// never invoked for envelopes this instance itself published. Returns
// a no-op unsubscribe func when the relay is disabled.
func (r *Relay) Subscribe(boardID string, handler func(Envelope)) (func(), error) {
	if r == nil || r.nc == nil {
		return func() {}, nil
	}
	sub, err := r.nc.Subscribe(subject(boardID), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return
		}
		if env.OriginInstance == r.instanceID {
			return
		}
		handler(env)
	})
	if err != nil {
		return func() {}, fmt.Errorf("subscribe relay: %w", err)
	}
	return func() { sub.Unsubscribe() }, nil
}
