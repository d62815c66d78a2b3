package audit

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SinkTestSuite struct {
	suite.Suite
	rdb  *redis.Client
	sink *Sink
	ctx  context.Context
}

func (s *SinkTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("Skipping integration tests in short mode")
		return
	}
	addr := os.Getenv("TEST_REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	s.rdb = redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(s.T(), s.rdb.Ping(context.Background()).Err())
	s.ctx = context.Background()
}

func (s *SinkTestSuite) TearDownSuite() {
	if s.rdb != nil {
		s.rdb.Del(s.ctx, listKey)
		s.rdb.Close()
	}
}

func (s *SinkTestSuite) SetupTest() {
	s.Require().NoError(s.rdb.Del(s.ctx, listKey).Err())
	s.sink = New(s.rdb)
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkTestSuite))
}

func (s *SinkTestSuite) TestRateLimitHit_IsRetrievable() {
	s.sink.RateLimitHit(s.ctx, "board-1", "user-1", "cursor:move")

	events, err := s.sink.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(EventRateLimitHit, events[0].Type)
	s.Equal("board-1", events[0].BoardID)
}

func (s *SinkTestSuite) TestRecent_NewestFirst() {
	s.sink.AuthFailure(s.ctx, "first")
	s.sink.AuthFailure(s.ctx, "second")

	events, err := s.sink.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("second", events[0].Detail)
}

func (s *SinkTestSuite) TestEditConflict_RecordsBoardAndUser() {
	s.sink.EditConflict(s.ctx, "board-9", "user-9", "obj-1")

	events, err := s.sink.Recent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("board-9", events[0].BoardID)
	s.Equal("user-9", events[0].UserID)
}
