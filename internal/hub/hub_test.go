package hub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/zamc/boardhub/internal/audit"
	"github.com/zamc/boardhub/internal/boardrepo/fake"
	"github.com/zamc/boardhub/internal/cachestate"
	"github.com/zamc/boardhub/internal/editlock"
	"github.com/zamc/boardhub/internal/metrics"
	"github.com/zamc/boardhub/internal/model"
	"github.com/zamc/boardhub/internal/presence"
)

// HubTestSuite drives whole boards end to end against a real Redis
// instance and an in-memory repository, the same integration-style
// the teacher used for its resolver suite (real collaborators, no
// database mocking of Scan/Rows).
type HubTestSuite struct {
	suite.Suite
	rdb     *redis.Client
	repo    *fake.Repo
	manager *Manager
	ctx     context.Context
}

func (s *HubTestSuite) SetupSuite() {
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

func (s *HubTestSuite) TearDownSuite() {
	if s.rdb != nil {
		s.rdb.Close()
	}
}

func (s *HubTestSuite) SetupTest() {
	s.repo = fake.New()
	store := cachestate.New(s.rdb, s.repo)
	pres := presence.New(s.rdb, 30*time.Second)
	locks := editlock.New(s.rdb, 5*time.Minute)
	s.manager = NewManager(store, pres, locks, nil, audit.New(s.rdb), metrics.New(), 2000)
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubTestSuite))
}

func (s *HubTestSuite) seedBoard(boardID string) {
	s.repo.Seed(&model.Board{ID: boardID, Version: 0})
}

func (s *HubTestSuite) TestSubscribe_DeliversBoardState() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))

	select {
	case env := <-sub.Out:
		s.Equal(model.EvBoardState, env.Event)
	case <-time.After(time.Second):
		s.Fail("timed out waiting for board:state")
	}
}

func (s *HubTestSuite) TestSubscribe_BroadcastsUserJoinedToOthers() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	first := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, first))
	<-first.Out // board:state

	second := NewSubscriber("conn-2", "user-2", "Bob", "", "#00FF00")
	s.Require().NoError(board.Subscribe(s.ctx, second))

	select {
	case env := <-first.Out:
		s.Equal(model.EvUserJoined, env.Event)
	case <-time.After(time.Second):
		s.Fail("first subscriber never saw user:joined for the second")
	}
}

func (s *HubTestSuite) TestUnsubscribe_ClosesOutChannel() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))
	<-sub.Out // board:state

	board.Unsubscribe("conn-1")

	select {
	case _, ok := <-sub.Out:
		s.False(ok, "Out must be closed once the subscriber leaves, so the connection's writer goroutine exits")
	case <-time.After(time.Second):
		s.Fail("timed out waiting for Out to close after unsubscribe")
	}
}

func (s *HubTestSuite) TestCreateObject_BroadcastsToAllSubscribers() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))
	<-sub.Out // board:state

	obj := model.BoardObject{ID: uuid.NewString(), Type: model.ObjectSticky, CreatedBy: "user-1"}
	s.Require().NoError(board.CreateObject(s.ctx, "conn-1", obj))

	select {
	case env := <-sub.Out:
		s.Equal(model.EvObjectCreated, env.Event)
	case <-time.After(time.Second):
		s.Fail("creator never received object:created")
	}
}

func (s *HubTestSuite) TestUpdateObject_NotFoundYieldsError() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))
	<-sub.Out

	err := board.UpdateObject(s.ctx, "conn-1", "missing-object", model.Patch{"x": 1.0})
	s.Require().Error(err)
	s.Equal(model.KindNotFound, model.KindOf(err))
}

func (s *HubTestSuite) TestDeleteObject_DetachesFrameChildren() {
	boardID := uuid.NewString()
	frameID := uuid.NewString()
	childID := uuid.NewString()
	fid := frameID
	s.repo.Seed(&model.Board{ID: boardID, Objects: []model.BoardObject{
		{ID: frameID, Type: model.ObjectFrame},
		{ID: childID, Type: model.ObjectSticky, FrameID: &fid},
	}})
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))
	<-sub.Out // board:state

	s.Require().NoError(board.DeleteObject(s.ctx, "conn-1", frameID))

	seenDetach, seenDelete := false, false
	for i := 0; i < 2; i++ {
		select {
		case env := <-sub.Out:
			switch env.Event {
			case model.EvObjectUpdated:
				seenDetach = true
			case model.EvObjectDeleted:
				seenDelete = true
			}
		case <-time.After(time.Second):
			s.Fail("timed out waiting for detach/delete broadcast")
		}
	}
	s.True(seenDetach, "child object should be rebroadcast as updated once detached")
	s.True(seenDelete, "frame deletion should be broadcast")
}

func (s *HubTestSuite) TestEditStart_ConflictSendsWarningAndReturnsConflict() {
	boardID := uuid.NewString()
	objectID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	first := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, first))
	<-first.Out

	second := NewSubscriber("conn-2", "user-2", "Bob", "", "#00FF00")
	s.Require().NoError(board.Subscribe(s.ctx, second))
	<-second.Out // board:state
	<-first.Out  // user:joined

	s.Require().NoError(board.EditStart(s.ctx, "conn-1", objectID))

	err := board.EditStart(s.ctx, "conn-2", objectID)
	s.Require().Error(err)
	s.Equal(model.KindConflict, model.KindOf(err))

	select {
	case env := <-second.Out:
		s.Equal(model.EvEditWarning, env.Event)
	case <-time.After(time.Second):
		s.Fail("requester never received edit:warning")
	}
}

func (s *HubTestSuite) TestBatchCreate_EnforcesBoardObjectCap() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)

	tinyCapBoard := &Board{
		id:          boardID,
		manager:     s.manager,
		inbox:       make(chan command, inboxDepth),
		subscribers: make(map[string]*Subscriber),
		store:       s.manager.store,
		presence:    s.manager.presence,
		editlocks:   s.manager.editlocks,
		relay:       s.manager.relay,
		audit:       s.manager.audit,
		metrics:     s.manager.metrics,
		maxObjects:  1,
		done:        make(chan struct{}),
	}
	go tinyCapBoard.run(s.ctx)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(tinyCapBoard.Subscribe(s.ctx, sub))
	<-sub.Out

	objs := []model.BoardObject{
		{ID: uuid.NewString(), Type: model.ObjectSticky},
		{ID: uuid.NewString(), Type: model.ObjectSticky},
	}
	err := tinyCapBoard.BatchCreate(s.ctx, "conn-1", objs)
	s.Require().Error(err)
	s.Equal(model.KindLimit, model.KindOf(err))

	state, err := s.manager.store.GetState(s.ctx, boardID)
	s.Require().NoError(err)
	s.Empty(state.Objects, "an over-cap batch must leave nothing persisted")
}

func (s *HubTestSuite) TestBatchCreate_RejectsDuplicateIDAgainstExistingObject() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))
	<-sub.Out

	existingID := uuid.NewString()
	s.Require().NoError(board.CreateObject(s.ctx, "conn-1", model.BoardObject{ID: existingID, Type: model.ObjectSticky}))
	<-sub.Out // object:created

	err := board.BatchCreate(s.ctx, "conn-1", []model.BoardObject{
		{ID: existingID, Type: model.ObjectSticky},
	})
	s.Require().Error(err)
	s.Equal(model.KindConflict, model.KindOf(err))

	state, err := s.manager.store.GetState(s.ctx, boardID)
	s.Require().NoError(err)
	s.Len(state.Objects, 1, "the rejected batch must not be appended")
}

func (s *HubTestSuite) TestBatchCreate_RejectsDuplicateIDWithinBatch() {
	boardID := uuid.NewString()
	s.seedBoard(boardID)
	board := s.manager.GetOrCreate(boardID)

	sub := NewSubscriber("conn-1", "user-1", "Ada", "", "#FF0000")
	s.Require().NoError(board.Subscribe(s.ctx, sub))
	<-sub.Out

	dupID := uuid.NewString()
	err := board.BatchCreate(s.ctx, "conn-1", []model.BoardObject{
		{ID: dupID, Type: model.ObjectSticky},
		{ID: dupID, Type: model.ObjectSticky},
	})
	s.Require().Error(err)
	s.Equal(model.KindConflict, model.KindOf(err))

	state, err := s.manager.store.GetState(s.ctx, boardID)
	s.Require().NoError(err)
	s.Empty(state.Objects, "a batch carrying an internal duplicate must not be appended")
}
