package model

import "time"

// CachedBoardState is the live working copy held in the cache store
// between cold-load and the next auto-save flush.
type CachedBoardState struct {
	Objects         []BoardObject `json:"objects"`
	PostgresVersion int           `json:"postgres_version"`
	LastSyncedAt    time.Time     `json:"last_synced_at"`
}

// IndexOf returns the position of the object with the given id, or -1.
func (s *CachedBoardState) IndexOf(id string) int {
	for i := range s.Objects {
		if s.Objects[i].ID == id {
			return i
		}
	}
	return -1
}

// PresenceRecord describes a user actively viewing a board.
type PresenceRecord struct {
	UserID        string    `json:"user_id"`
	BoardID       string    `json:"board_id"`
	Name          string    `json:"name"`
	Avatar        string    `json:"avatar,omitempty"`
	Color         string    `json:"color,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Session ties a connection to the user and board it is currently on.
type Session struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	BoardID      string    `json:"board_id,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// EditLock is a short-TTL exclusive claim on one object.
type EditLock struct {
	BoardID   string    `json:"board_id"`
	ObjectID  string    `json:"object_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	StartedAt time.Time `json:"started_at"`
}

// BoardVersion is an immutable snapshot row used for rollback.
type BoardVersion struct {
	ID        string        `json:"id"`
	BoardID   string        `json:"board_id"`
	Snapshot  []BoardObject `json:"snapshot"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
}
