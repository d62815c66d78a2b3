// Package wsconn implements C6, the per-connection handler: WebSocket
// upgrade, the NEW/AUTHENTICATED/ON_BOARD/CLOSED state machine, and
// the rate-limit -> validate -> dispatch pipeline for every inbound
// frame. Grounded on the teacher's gorilla/websocket usage pattern
// (main.go's HTTP surface) generalized from a GraphQL-over-websocket
// transport to this engine's named-JSON-event protocol.
package wsconn

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zamc/boardhub/internal/audit"
	"github.com/zamc/boardhub/internal/auth"
	"github.com/zamc/boardhub/internal/hub"
	"github.com/zamc/boardhub/internal/metrics"
	"github.com/zamc/boardhub/internal/model"
	"github.com/zamc/boardhub/internal/presence"
	"github.com/zamc/boardhub/internal/ratelimit"
	"github.com/zamc/boardhub/internal/validate"
)

type state int

const (
	stateNew state = iota
	stateAuthenticated
	stateOnBoard
	stateClosed
)

const writeWait = 10 * time.Second

// Server wires everything a connection handler needs and exposes the
// http.HandlerFunc that upgrades and serves one socket per call.
type Server struct {
	verifier   auth.Verifier
	hubs       *hub.Manager
	presence   *presence.Registry
	limiter    *ratelimit.Limiter
	validator  *validate.Validator
	audit      *audit.Sink
	metrics    *metrics.Sink
	readLimit  int64
	corsOrigin func(r *http.Request) bool

	sessions sessionRegistry
}

func NewServer(verifier auth.Verifier, hubs *hub.Manager, pres *presence.Registry, limiter *ratelimit.Limiter, validator *validate.Validator, aud *audit.Sink, met *metrics.Sink, readLimit int64, corsOrigin func(r *http.Request) bool) *Server {
	return &Server{
		verifier:   verifier,
		hubs:       hubs,
		presence:   pres,
		limiter:    limiter,
		validator:  validator,
		audit:      aud,
		metrics:    met,
		readLimit:  readLimit,
		corsOrigin: corsOrigin,
		sessions:   sessionRegistry{byUser: make(map[string]*conn)},
	}
}

// sessionRegistry enforces the duplicate-session policy: at most one
// live connection per user, per instance. Cross-instance duplicate
// sessions are not detected — that would need a distributed lock this
// spec does not call for.
type sessionRegistry struct {
	mu     sync.Mutex
	byUser map[string]*conn
}

func (r *sessionRegistry) takeOver(userID string, c *conn) *conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.byUser[userID]
	r.byUser[userID] = c
	return old
}

func (r *sessionRegistry) release(userID string, c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] == c {
		delete(r.byUser, userID)
	}
}

type conn struct {
	id       string
	ws       *websocket.Conn
	identity *auth.Identity
	server   *Server

	mu    sync.Mutex
	state state

	board *hub.Board
	sub   *hub.Subscriber

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.corsOrigin,
	}
}

// ServeHTTP authenticates the bearer token carried as ?token=, upgrades
// on success, and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	identity, err := s.verifier.Verify(token)
	if err != nil {
		s.audit.AuthFailure(r.Context(), err.Error())
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsconn: upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(s.readLimit)

	c := &conn{
		id:       uuid.NewString(),
		ws:       ws,
		identity: identity,
		server:   s,
		state:    stateAuthenticated,
		closed:   make(chan struct{}),
	}

	if old := s.sessions.takeOver(identity.UserID, c); old != nil {
		old.closeWithCode(websocket.CloseNormalClosure, "DUPLICATE_SESSION")
		s.audit.DuplicateSession(r.Context(), identity.UserID, "superseded by new connection")
	}
	defer s.sessions.release(identity.UserID, c)

	if err := s.presence.AddSession(r.Context(), model.Session{
		ConnectionID: c.id,
		UserID:       identity.UserID,
		ConnectedAt:  time.Now(),
	}); err != nil {
		log.Printf("wsconn: add session failed: %v", err)
	}
	defer s.presence.RemoveSession(context.Background(), c.id)

	c.run()
}

func (c *conn) closeWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		c.setState(stateClosed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
		close(c.closed)
	})
}

func (c *conn) setState(st state) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *conn) getState() state {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// run drives both directions of the socket: a writer goroutine drains
// the subscriber's outbound channel (once board:join has happened),
// and the calling goroutine reads inbound frames until the socket
// closes.
func (c *conn) run() {
	defer c.leaveBoard()
	defer c.closeWithCode(websocket.CloseNormalClosure, "")

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var head struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			c.sendError(model.KindValidation, "malformed frame")
			continue
		}

		allowed, _ := c.server.limiter.Allow(context.Background(), c.id, bucketFor(head.Event))
		if !allowed {
			c.server.audit.RateLimitHit(context.Background(), c.boardID(), c.identity.UserID, head.Event)
			c.closeWithCode(websocket.CloseNormalClosure, "RATE_LIMIT")
			return
		}

		c.dispatch(head.Event, raw)
	}
}

func bucketFor(event string) ratelimit.Bucket {
	if event == model.EvCursorMove {
		return ratelimit.BucketCursor
	}
	return ratelimit.BucketDefault
}

func (c *conn) boardID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.board == nil {
		return ""
	}
	return c.board.ID()
}

func (c *conn) sendError(kind model.ErrorKind, message string) {
	if kind == model.KindValidation {
		c.server.audit.ValidationRejected(context.Background(), c.boardID(), c.identity.UserID, message)
	}
	env := model.OutboundEnvelope{
		Event: model.EvBoardError,
		Data: model.BoardErrorPayload{
			Code:      kind,
			Message:   message,
			Timestamp: time.Now().UnixMilli(),
		},
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.TextMessage, raw)
}

// startWriter launches the goroutine that drains sub.Out to the
// socket once the connection has joined a board. One is started per
// board:join; it exits when the hub closes sub.Out on leave.
func (c *conn) startWriter(sub *hub.Subscriber) {
	go func() {
		for {
			select {
			case env, ok := <-sub.Out:
				if !ok {
					return
				}
				raw, err := json.Marshal(env)
				if err != nil {
					continue
				}
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
					c.closeWithCode(websocket.CloseNormalClosure, "")
					return
				}
			case <-sub.Kicked():
				c.closeWithCode(websocket.CloseMessageTooBig, "backpressure")
				return
			case <-c.closed:
				return
			}
		}
	}()
}

func (c *conn) leaveBoard() {
	c.mu.Lock()
	board := c.board
	c.board = nil
	c.mu.Unlock()
	if board != nil {
		board.Unsubscribe(c.id)
	}
}
