package boardrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/zamc/boardhub/internal/model"
)

// DB wraps *sql.DB the way the teacher's internal/database package did
// (embedding rather than aliasing, so callers can still reach the raw
// connection for health checks).
type DB struct {
	*sql.DB
}

func Connect(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: sqlDB}, nil
}

// Postgres is the lib/pq-backed Repository implementation.
type Postgres struct {
	db *DB
}

func NewPostgres(db *DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*model.Board, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, slot, version, is_deleted, deleted_at,
		       last_accessed_at, thumbnail, thumbnail_version, thumbnail_updated_at,
		       objects, created_at, updated_at
		FROM boards WHERE id = $1
	`, id)

	board, err := scanBoard(row)
	if err == sql.ErrNoRows {
		return nil, model.NewError(model.KindNotFound, "board not found", err)
	}
	if err != nil {
		return nil, classifyErr(err, "find board")
	}
	return board, nil
}

func (p *Postgres) FindMany(ctx context.Context, filter Filter) ([]*model.Board, error) {
	query := `
		SELECT id, owner_id, title, slot, version, is_deleted, deleted_at,
		       last_accessed_at, thumbnail, thumbnail_version, thumbnail_updated_at,
		       objects, created_at, updated_at
		FROM boards WHERE 1=1`
	var args []interface{}
	n := 0

	if filter.OwnerID != "" {
		n++
		query += fmt.Sprintf(" AND owner_id = $%d", n)
		args = append(args, filter.OwnerID)
	}
	if !filter.IncludeDeleted {
		query += " AND is_deleted = false"
	}
	query += " ORDER BY last_accessed_at DESC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(err, "find boards")
	}
	defer rows.Close()

	var boards []*model.Board
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, classifyErr(err, "scan board")
		}
		boards = append(boards, board)
	}
	return boards, rows.Err()
}

func (p *Postgres) Create(ctx context.Context, ownerID, title string, slot int, objects []model.BoardObject) (*model.Board, error) {
	objJSON, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("marshal objects: %w", err)
	}

	row := p.db.QueryRowContext(ctx, `
		INSERT INTO boards (id, owner_id, title, slot, version, is_deleted, last_accessed_at, objects, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 0, false, now(), $4, now(), now())
		RETURNING id, owner_id, title, slot, version, is_deleted, deleted_at,
		          last_accessed_at, thumbnail, thumbnail_version, thumbnail_updated_at,
		          objects, created_at, updated_at
	`, ownerID, title, slot, objJSON)

	board, err := scanBoard(row)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
		return nil, model.NewError(model.KindConflict, "duplicate slot for owner", err)
	}
	if err != nil {
		return nil, classifyErr(err, "create board")
	}
	return board, nil
}

func (p *Postgres) Update(ctx context.Context, id string, patch Patch) error {
	sets := []string{}
	args := []interface{}{}
	n := 0

	if patch.Title != nil {
		n++
		sets = append(sets, fmt.Sprintf("title = $%d", n))
		args = append(args, *patch.Title)
	}
	if patch.IsDeleted != nil {
		n++
		sets = append(sets, fmt.Sprintf("is_deleted = $%d", n))
		args = append(args, *patch.IsDeleted)
		if *patch.IsDeleted {
			sets = append(sets, "deleted_at = now()")
		} else {
			sets = append(sets, "deleted_at = NULL")
		}
	}
	if patch.Thumbnail != nil {
		n++
		sets = append(sets, fmt.Sprintf("thumbnail = $%d", n))
		args = append(args, patch.Thumbnail)
		sets = append(sets, "thumbnail_updated_at = now()")
	}
	if patch.ThumbnailVersion != nil {
		n++
		sets = append(sets, fmt.Sprintf("thumbnail_version = $%d", n))
		args = append(args, *patch.ThumbnailVersion)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")

	n++
	query := fmt.Sprintf("UPDATE boards SET %s WHERE id = $%d", strings.Join(sets, ", "), n)
	args = append(args, id)

	_, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classifyErr(err, "update board")
	}
	return nil
}

func (p *Postgres) UpdateWithVersion(ctx context.Context, id string, objectsJSON []byte, expectedVersion int) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE boards SET objects = $1, version = version + 1, updated_at = now(), last_accessed_at = now()
		WHERE id = $2 AND version = $3
	`, objectsJSON, id, expectedVersion)
	if err != nil {
		return 0, classifyErr(err, "auto-save flush")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classifyErr(err, "auto-save flush rows affected")
	}
	return int(affected), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBoard(row scanner) (*model.Board, error) {
	var b model.Board
	var objJSON []byte
	if err := row.Scan(
		&b.ID, &b.OwnerID, &b.Title, &b.Slot, &b.Version, &b.IsDeleted, &b.DeletedAt,
		&b.LastAccessedAt, &b.Thumbnail, &b.ThumbnailVersion, &b.ThumbnailUpdatedAt,
		&objJSON, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(objJSON) > 0 {
		if err := json.Unmarshal(objJSON, &b.Objects); err != nil {
			return nil, fmt.Errorf("unmarshal objects: %w", err)
		}
	}
	return &b, nil
}

// classifyErr maps a raw driver error to the engine's error-kind model
// per spec §4.C1: unique-constraint violation -> CONFLICT; connection
// loss and every other driver error -> TRANSIENT (retriable).
func classifyErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return model.NewError(model.KindConflict, op, err)
		}
	}
	if err == sql.ErrConnDone || err == sql.ErrTxDone {
		return model.NewError(model.KindTransient, op, err)
	}
	return model.NewError(model.KindTransient, op, err)
}
