// Package snapshot implements C8: durable, immutable version rows used
// for rollback, with a capped retention window.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/zamc/boardhub/internal/model"
)

type Service struct {
	db            *sql.DB
	maxPerBoard   int
}

func New(db *sql.DB, maxPerBoard int) *Service {
	return &Service{db: db, maxPerBoard: maxPerBoard}
}

// CreateSnapshot inserts a new immutable version row and trims the
// oldest rows beyond maxPerBoard. Failures are logged and swallowed —
// per spec §4.C8, snapshotting is best-effort and must never fail the
// auto-save flush that triggered it.
func (s *Service) CreateSnapshot(ctx context.Context, boardID, createdBy string, objects []model.BoardObject) {
	if err := s.createSnapshot(ctx, boardID, createdBy, objects); err != nil {
		log.Printf("snapshot %s: create failed: %v", boardID, err)
		return
	}
	if err := s.trim(ctx, boardID); err != nil {
		log.Printf("snapshot %s: trim failed: %v", boardID, err)
	}
}

func (s *Service) createSnapshot(ctx context.Context, boardID, createdBy string, objects []model.BoardObject) error {
	raw, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("marshal snapshot objects: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO board_versions (id, board_id, snapshot, created_by, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now())
	`, boardID, raw, createdBy)
	return err
}

func (s *Service) trim(ctx context.Context, boardID string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM board_versions WHERE board_id = $1`, boardID).Scan(&count); err != nil {
		return err
	}
	if count <= s.maxPerBoard {
		return nil
	}
	excess := count - s.maxPerBoard
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM board_versions WHERE id IN (
			SELECT id FROM board_versions WHERE board_id = $1 ORDER BY created_at ASC LIMIT $2
		)
	`, boardID, excess)
	return err
}

// List returns the most recent snapshots for boardID, newest first.
func (s *Service) List(ctx context.Context, boardID string, limit int) ([]model.BoardVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, snapshot, created_by, created_at
		FROM board_versions WHERE board_id = $1 ORDER BY created_at DESC LIMIT $2
	`, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []model.BoardVersion
	for rows.Next() {
		var v model.BoardVersion
		var raw []byte
		var createdAt time.Time
		if err := rows.Scan(&v.ID, &v.BoardID, &raw, &v.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &v.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		v.CreatedAt = createdAt
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
