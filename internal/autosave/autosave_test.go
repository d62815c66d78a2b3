package autosave

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/zamc/boardhub/internal/boardrepo/fake"
	"github.com/zamc/boardhub/internal/cachestate"
	"github.com/zamc/boardhub/internal/hub"
	"github.com/zamc/boardhub/internal/metrics"
	"github.com/zamc/boardhub/internal/model"
)

// WorkerTestSuite exercises FlushBoard directly against a real Redis
// cache and an in-memory repository — no snapshot service is needed to
// validate the flush-and-reconcile algorithm itself.
type WorkerTestSuite struct {
	suite.Suite
	rdb  *redis.Client
	repo *fake.Repo
	ctx  context.Context
}

func (s *WorkerTestSuite) SetupSuite() {
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

func (s *WorkerTestSuite) TearDownSuite() {
	if s.rdb != nil {
		s.rdb.Close()
	}
}

func (s *WorkerTestSuite) SetupTest() {
	s.repo = fake.New()
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) newWorker(store *cachestate.Store) *Worker {
	hubs := hub.NewManager(store, nil, nil, nil, nil, metrics.New(), 2000)
	return New(s.repo, store, hubs, nil, metrics.New(), time.Minute, 5)
}

func (s *WorkerTestSuite) TestFlushBoard_NoopWhenNothingCached() {
	store := cachestate.New(s.rdb, s.repo)
	w := s.newWorker(store)

	err := w.FlushBoard(s.ctx, uuid.NewString())
	s.NoError(err)
}

func (s *WorkerTestSuite) TestFlushBoard_AdvancesVersionOnSuccess() {
	boardID := uuid.NewString()
	s.repo.Seed(&model.Board{ID: boardID, Version: 0})
	store := cachestate.New(s.rdb, s.repo)
	_, err := store.LoadFromDurable(s.ctx, boardID)
	s.Require().NoError(err)
	_, err = store.AddObject(s.ctx, boardID, model.BoardObject{ID: "obj-1"}, 10)
	s.Require().NoError(err)

	w := s.newWorker(store)
	s.Require().NoError(w.FlushBoard(s.ctx, boardID))

	board, err := s.repo.FindByID(s.ctx, boardID)
	s.Require().NoError(err)
	s.Equal(1, board.Version)
	s.Len(board.Objects, 1)
}

func (s *WorkerTestSuite) TestFlushBoard_ReconcilesOnVersionConflict() {
	boardID := uuid.NewString()
	s.repo.Seed(&model.Board{ID: boardID, Version: 5, Objects: []model.BoardObject{{ID: "durable-obj"}}})
	store := cachestate.New(s.rdb, s.repo)
	require.NoError(s.T(), store.SetSyncMeta(s.ctx, boardID, 0, []model.BoardObject{{ID: "stale-obj"}}))

	w := s.newWorker(store)
	s.Require().NoError(w.FlushBoard(s.ctx, boardID))

	state, err := store.GetState(s.ctx, boardID)
	s.Require().NoError(err)
	s.Require().NotNil(state)
	s.Equal(5, state.PostgresVersion)
	s.Require().Len(state.Objects, 1)
	s.Equal("durable-obj", state.Objects[0].ID)
}

func (s *WorkerTestSuite) TestIncrementAndResetCounter() {
	w := s.newWorker(cachestate.New(s.rdb, s.repo))

	s.Equal(1, w.incrementCounter("board-a"))
	s.Equal(2, w.incrementCounter("board-a"))
	w.resetCounter("board-a")
	s.Equal(1, w.incrementCounter("board-a"))
}

func (s *WorkerTestSuite) TestStop_RunsFinalFlushBeforeReturning() {
	boardID := uuid.NewString()
	s.repo.Seed(&model.Board{ID: boardID, Version: 0})
	store := cachestate.New(s.rdb, s.repo)
	_, err := store.LoadFromDurable(s.ctx, boardID)
	s.Require().NoError(err)

	hubs := hub.NewManager(store, nil, nil, nil, nil, metrics.New(), 2000)
	hubs.GetOrCreate(boardID)
	w := New(s.repo, store, hubs, nil, metrics.New(), time.Hour, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	w.Stop(stopCtx)

	board, err := s.repo.FindByID(s.ctx, boardID)
	s.Require().NoError(err)
	s.Equal(1, board.Version, "Stop must flush every active board exactly once before returning")
}
