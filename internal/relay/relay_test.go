package relay

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestConnect_ReturnsNilWhenURLUnset(t *testing.T) {
	r := Connect("", "instance-a")
	assert.Nil(t, r)
}

func TestConnect_ReturnsNilOnUnreachableURL(t *testing.T) {
	r := Connect("nats://127.0.0.1:1", "instance-a")
	assert.Nil(t, r)
}

func TestNilRelay_CloseIsNoop(t *testing.T) {
	var r *Relay
	assert.NotPanics(t, func() { r.Close() })
}

func TestNilRelay_PublishIsNoop(t *testing.T) {
	var r *Relay
	assert.NoError(t, r.Publish("board-1", "object_created", map[string]string{"id": "obj-1"}))
}

func TestNilRelay_SubscribeReturnsNoopUnsubscribe(t *testing.T) {
	var r *Relay
	unsub, err := r.Subscribe("board-1", func(Envelope) {})
	assert.NoError(t, err)
	assert.NotPanics(t, unsub)
}

// RelayTestSuite exercises real cross-instance delivery against a live
// NATS server, gated behind TEST_NATS_URL the same way the Redis/
// Postgres suites are gated behind their TEST_*_URL env vars.
type RelayTestSuite struct {
	suite.Suite
	natsURL string
}

func (s *RelayTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("Skipping integration tests in short mode")
		return
	}
	s.natsURL = os.Getenv("TEST_NATS_URL")
	if s.natsURL == "" {
		s.T().Skip("TEST_NATS_URL not set")
	}
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelayTestSuite))
}

func (s *RelayTestSuite) TestPublishSubscribe_DeliversAcrossInstances() {
	publisher := Connect(s.natsURL, "instance-pub")
	require.NotNil(s.T(), publisher)
	defer publisher.Close()

	subscriber := Connect(s.natsURL, "instance-sub")
	require.NotNil(s.T(), subscriber)
	defer subscriber.Close()

	received := make(chan Envelope, 1)
	unsub, err := subscriber.Subscribe("board-relay-1", func(env Envelope) {
		received <- env
	})
	s.Require().NoError(err)
	defer unsub()

	time.Sleep(50 * time.Millisecond) // allow subscription to register

	s.Require().NoError(publisher.Publish("board-relay-1", "object_created", map[string]string{"id": "obj-1"}))

	select {
	case env := <-received:
		s.Equal("instance-pub", env.OriginInstance)
		s.Equal("object_created", env.Event)
	case <-time.After(2 * time.Second):
		s.Fail("timed out waiting for relayed event")
	}
}

func (s *RelayTestSuite) TestSubscribe_IgnoresOwnPublishedEnvelope() {
	r := Connect(s.natsURL, "instance-echo")
	require.NotNil(s.T(), r)
	defer r.Close()

	received := make(chan Envelope, 1)
	unsub, err := r.Subscribe("board-relay-2", func(env Envelope) {
		received <- env
	})
	s.Require().NoError(err)
	defer unsub()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(r.Publish("board-relay-2", "object_created", map[string]string{"id": "obj-1"}))

	select {
	case <-received:
		s.Fail("handler must not fire for envelopes published by the same instance")
	case <-time.After(300 * time.Millisecond):
	}
}
