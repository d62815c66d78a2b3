package model

import "encoding/json"

// Inbound event names (client -> server), spec section 6.
const (
	EvBoardJoin          = "board:join"
	EvBoardLeave         = "board:leave"
	EvCursorMove         = "cursor:move"
	EvHeartbeat          = "heartbeat"
	EvObjectCreate       = "object:create"
	EvObjectUpdate       = "object:update"
	EvObjectDelete       = "object:delete"
	EvObjectsBatchCreate = "objects:batch_create"
	EvObjectsBatchUpdate = "objects:batch_update"
	EvEditStart          = "edit:start"
	EvEditEnd            = "edit:end"
)

// Outbound event names (server -> client), spec section 6.
const (
	EvBoardState         = "board:state"
	EvUserJoined         = "user:joined"
	EvUserLeft           = "user:left"
	EvCursorMoved        = "cursor:moved"
	EvObjectCreated      = "object:created"
	EvObjectUpdated      = "object:updated"
	EvObjectDeleted      = "object:deleted"
	EvObjectsBatchCreated = "objects:batch_created"
	EvObjectsBatchMoved  = "objects:batch_moved"
	EvEditWarning        = "edit:warning"
	EvConflictWarning    = "conflict:warning"
	EvBoardError         = "board:error"
)

// InboundEnvelope is the wire shape of every client->server frame:
// {"event": "...", ...payload fields}. The connection handler decodes
// the event name first, then decodes the whole frame again into the
// event-specific payload type.
type InboundEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"-"`
}

// OutboundEnvelope is what actually gets marshaled and sent to a
// client; the named event plus its payload nested under "data".
type OutboundEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type CursorMovePayload struct {
	BoardID   string  `json:"board_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

type HeartbeatPayload struct {
	BoardID   string `json:"board_id"`
	Timestamp int64  `json:"timestamp"`
}

type ObjectCreatePayload struct {
	BoardID   string      `json:"board_id"`
	Object    BoardObject `json:"object"`
	Timestamp int64       `json:"timestamp"`
}

type ObjectUpdatePayload struct {
	BoardID   string `json:"board_id"`
	ObjectID  string `json:"object_id"`
	Updates   Patch  `json:"updates"`
	Timestamp int64  `json:"timestamp"`
}

type ObjectDeletePayload struct {
	BoardID   string `json:"board_id"`
	ObjectID  string `json:"object_id"`
	Timestamp int64  `json:"timestamp"`
}

type BatchCreatePayload struct {
	BoardID   string        `json:"board_id"`
	Objects   []BoardObject `json:"objects"`
	Timestamp int64         `json:"timestamp"`
}

type Move struct {
	ObjectID string  `json:"object_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type BatchUpdatePayload struct {
	BoardID   string `json:"board_id"`
	Moves     []Move `json:"moves"`
	Timestamp int64  `json:"timestamp"`
}

type EditStartPayload struct {
	BoardID   string `json:"board_id"`
	ObjectID  string `json:"object_id"`
	Timestamp int64  `json:"timestamp"`
}

type EditEndPayload struct {
	BoardID   string `json:"board_id"`
	ObjectID  string `json:"object_id"`
	Timestamp int64  `json:"timestamp"`
}

type BoardJoinPayload struct {
	BoardID string `json:"board_id"`
}

type BoardLeavePayload struct {
	BoardID string `json:"board_id"`
}

// UserInfo is the presence-facing projection of an authenticated user,
// carried in board:state / user:joined / user:left.
type UserInfo struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
}

type BoardStatePayload struct {
	BoardID string        `json:"board_id"`
	Objects []BoardObject `json:"objects"`
	Users   []UserInfo    `json:"users"`
}

type UserJoinedPayload struct {
	BoardID   string   `json:"board_id"`
	User      UserInfo `json:"user"`
	Timestamp int64    `json:"timestamp"`
}

type UserLeftPayload struct {
	BoardID   string `json:"board_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

type CursorMovedPayload struct {
	BoardID   string  `json:"board_id"`
	UserID    string  `json:"user_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

type ObjectEventPayload struct {
	BoardID   string      `json:"board_id"`
	Object    BoardObject `json:"object"`
	UserID    string      `json:"user_id"`
	Timestamp int64       `json:"timestamp"`
}

type ObjectDeletedPayload struct {
	BoardID   string `json:"board_id"`
	ObjectID  string `json:"object_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

type BatchCreatedPayload struct {
	BoardID   string        `json:"board_id"`
	Objects   []BoardObject `json:"objects"`
	UserID    string        `json:"user_id"`
	Timestamp int64         `json:"timestamp"`
}

type BatchMovedPayload struct {
	BoardID   string `json:"board_id"`
	Moves     []Move `json:"moves"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

type EditorRef struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type EditWarningPayload struct {
	BoardID  string      `json:"board_id"`
	ObjectID string      `json:"object_id"`
	Editors  []EditorRef `json:"editors"`
}

type ConflictWarningPayload struct {
	BoardID               string `json:"board_id"`
	ObjectID              string `json:"object_id"`
	ConflictingUserID     string `json:"conflicting_user_id"`
	ConflictingUserName   string `json:"conflicting_user_name"`
	Message               string `json:"message"`
}

type BoardErrorPayload struct {
	Code      ErrorKind `json:"code"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}
