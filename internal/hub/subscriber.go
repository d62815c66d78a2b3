package hub

import (
	"sync"

	"github.com/zamc/boardhub/internal/model"
)

// outboundBuffer is the per-subscriber bounded channel depth. Reliable
// events (object lifecycle) use a non-blocking send, so the hub's
// broadcast loop never waits; a full buffer on a reliable send is treated as
// backpressure and the subscriber is kicked rather than stalling the
// whole board.
const outboundBuffer = 128

// Subscriber is one connection's membership in a board. The connection
// handler (C6) owns reading from Out and writing it to the socket; the
// hub only ever writes to Out, never reads from it.
type Subscriber struct {
	ConnectionID string
	UserID       string
	UserName     string
	Avatar       string
	Color        string

	Out chan model.OutboundEnvelope

	kickOnce sync.Once
	kicked   chan struct{}
}

func NewSubscriber(connectionID, userID, userName, avatar, color string) *Subscriber {
	return &Subscriber{
		ConnectionID: connectionID,
		UserID:       userID,
		UserName:     userName,
		Avatar:       avatar,
		Color:        color,
		Out:          make(chan model.OutboundEnvelope, outboundBuffer),
		kicked:       make(chan struct{}),
	}
}

// Kicked is closed once the subscriber should be force-disconnected
// (reliable-send backpressure). The connection handler's write loop
// selects on it alongside Out.
func (s *Subscriber) Kicked() <-chan struct{} {
	return s.kicked
}

func (s *Subscriber) kick() {
	s.kickOnce.Do(func() { close(s.kicked) })
}

// sendReliable delivers an object-lifecycle event. A full buffer kicks
// the subscriber per spec §4.C5's backpressure rule instead of
// silently dropping or blocking the hub.
func (s *Subscriber) sendReliable(env model.OutboundEnvelope) {
	select {
	case s.Out <- env:
	default:
		s.kick()
	}
}

// sendLossy delivers cursor/heartbeat-class events. A full buffer just
// drops the message.
func (s *Subscriber) sendLossy(env model.OutboundEnvelope) {
	select {
	case s.Out <- env:
	default:
	}
}
