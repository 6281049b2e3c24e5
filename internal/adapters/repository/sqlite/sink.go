// Package sqlite provides a SQLite persistence sink: a single database
// file with checkpoint and session tables, suited to large histories and
// queryable audit trails.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
	"github.com/ekessh/agent-checkpoint-protocol/pkg/serialization"
)

// Sink implements session.Sink over a *sql.DB opened with the modernc
// sqlite driver.
type Sink struct {
	db         *sql.DB
	serializer *serialization.Serializer
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite sink: %w", err)
	}
	s := NewSink(db, nil)
	if err := s.CreateTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSink wraps an existing database handle. A nil serializer uses the
// default.
func NewSink(db *sql.DB, serializer *serialization.Serializer) *Sink {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &Sink{db: db, serializer: serializer}
}

// CreateTables ensures the checkpoint and session tables and indexes.
func (s *Sink) CreateTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			branch_name TEXT NOT NULL,
			parent_id TEXT,
			status TEXT NOT NULL,
			hash TEXT NOT NULL,
			state BLOB NOT NULL,
			metadata TEXT,
			logic_path TEXT,
			error_context TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_branch ON checkpoints (branch_name);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_timestamp ON checkpoints (timestamp);

		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Save stores a checkpoint, replacing any previous row with the same id.
func (s *Sink) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}

	stateBlob, err := s.serializer.Serialize(cp.State)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	logicPathJSON, err := json.Marshal(cp.LogicPath)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	errorContextJSON, err := json.Marshal(cp.ErrorContext)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints
		(id, timestamp, branch_name, parent_id, status, hash, state, metadata, logic_path, error_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.ID, cp.Timestamp.UnixNano(), cp.BranchName, cp.ParentID, string(cp.Status),
		cp.Hash, stateBlob, string(metadataJSON), string(logicPathJSON), string(errorContextJSON))
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	return nil
}

// Load retrieves a checkpoint by id.
func (s *Sink) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, branch_name, parent_id, status, hash, state, metadata, logic_path, error_context
		FROM checkpoints WHERE id = ?
	`, id)
	cp, err := s.scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return cp, err
}

// List returns checkpoints matching the filter, newest first.
func (s *Sink) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, timestamp, branch_name, parent_id, status, hash, state, metadata, logic_path, error_context
		FROM checkpoints WHERE 1=1`
	var args []any
	if filter.Branch != "" {
		query += " AND branch_name = ?"
		args = append(args, filter.Branch)
	}
	if filter.Since != nil {
		query += " AND timestamp > ?"
		args = append(args, filter.Since.UnixNano())
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	defer rows.Close()

	var results []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := s.scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, cp)
	}
	return results, rows.Err()
}

// Delete removes a checkpoint by id.
func (s *Sink) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrDeleteFailed, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrDeleteFailed, err)
	}
	if affected == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// SaveSession appends a full session snapshot.
func (s *Sink) SaveSession(ctx context.Context, snap *session.Snapshot) error {
	blob, err := s.serializer.Serialize(snap)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (snapshot, created_at) VALUES (?, ?)",
		blob, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the most recent session snapshot, or nil when the
// sessions table is empty.
func (s *Sink) LoadSession(ctx context.Context) (*session.Snapshot, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM sessions ORDER BY id DESC LIMIT 1").Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var snap session.Snapshot
	if err := s.serializer.Deserialize(blob, &snap); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &snap, nil
}

// Close closes the underlying database.
func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Sink) scanCheckpoint(row rowScanner) (*checkpoint.Checkpoint, error) {
	var (
		cp               checkpoint.Checkpoint
		ts               int64
		parentID         sql.NullString
		status           string
		stateBlob        []byte
		metadataJSON     sql.NullString
		logicPathJSON    sql.NullString
		errorContextJSON sql.NullString
	)
	err := row.Scan(&cp.ID, &ts, &cp.BranchName, &parentID, &status, &cp.Hash,
		&stateBlob, &metadataJSON, &logicPathJSON, &errorContextJSON)
	if err != nil {
		return nil, err
	}

	cp.Timestamp = time.Unix(0, ts).UTC()
	cp.ParentID = parentID.String
	cp.Status = checkpoint.Status(status)

	cp.State = make(map[string]any)
	if err := s.serializer.Deserialize(stateBlob, &cp.State); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
	}
	if logicPathJSON.Valid && logicPathJSON.String != "" {
		if err := json.Unmarshal([]byte(logicPathJSON.String), &cp.LogicPath); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
	}
	if errorContextJSON.Valid && errorContextJSON.String != "" && errorContextJSON.String != "null" {
		if err := json.Unmarshal([]byte(errorContextJSON.String), &cp.ErrorContext); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
	}
	return &cp, nil
}
