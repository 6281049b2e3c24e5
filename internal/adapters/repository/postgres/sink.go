// Package postgres provides a PostgreSQL persistence sink backed by a
// pgx connection pool, for deployments that share checkpoint history
// across processes.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
	"github.com/ekessh/agent-checkpoint-protocol/pkg/serialization"
)

// Sink implements session.Sink over a pgx connection pool.
type Sink struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
}

// Open connects to the database at dsn and ensures the schema.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres sink: %w", err)
	}
	s := NewSink(pool, nil)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewSink wraps an existing pool. A nil serializer uses the default.
func NewSink(pool *pgxpool.Pool, serializer *serialization.Serializer) *Sink {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &Sink{pool: pool, serializer: serializer}
}

// CreateTables ensures the checkpoint and session tables and indexes.
func (s *Sink) CreateTables(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			branch_name TEXT NOT NULL,
			parent_id TEXT,
			status TEXT NOT NULL,
			hash TEXT NOT NULL,
			state BYTEA NOT NULL,
			metadata JSONB,
			logic_path JSONB,
			error_context JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_branch ON checkpoints (branch_name);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_timestamp ON checkpoints (timestamp);

		CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			snapshot BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Save upserts a checkpoint keyed by id.
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints
		(id, timestamp, branch_name, parent_id, status, hash, state, metadata, logic_path, error_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			branch_name = EXCLUDED.branch_name,
			parent_id = EXCLUDED.parent_id,
			status = EXCLUDED.status,
			hash = EXCLUDED.hash,
			state = EXCLUDED.state,
			metadata = EXCLUDED.metadata,
			logic_path = EXCLUDED.logic_path,
			error_context = EXCLUDED.error_context
	`, cp.ID, cp.Timestamp, cp.BranchName, nullable(cp.ParentID), string(cp.Status),
		cp.Hash, stateBlob, metadataJSON, logicPathJSON, errorContextJSON)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	return nil
}

// Load retrieves a checkpoint by id.
func (s *Sink) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, timestamp, branch_name, parent_id, status, hash, state, metadata, logic_path, error_context
		FROM checkpoints WHERE id = $1
	`, id)
	cp, err := s.scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		FROM checkpoints WHERE true`
	var args []any
	if filter.Branch != "" {
		args = append(args, filter.Branch)
		query += fmt.Sprintf(" AND branch_name = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND timestamp > $%d", len(args))
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
	tag, err := s.pool.Exec(ctx, "DELETE FROM checkpoints WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrDeleteFailed, err)
	}
	if tag.RowsAffected() == 0 {
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
	if _, err := s.pool.Exec(ctx,
		"INSERT INTO sessions (snapshot) VALUES ($1)", blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the most recent session snapshot, or nil when the
// sessions table is empty.
func (s *Sink) LoadSession(ctx context.Context) (*session.Snapshot, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		"SELECT snapshot FROM sessions ORDER BY id DESC LIMIT 1").Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
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

// Close releases the connection pool.
func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Sink) scanCheckpoint(row rowScanner) (*checkpoint.Checkpoint, error) {
	var (
		cp               checkpoint.Checkpoint
		parentID         *string
		status           string
		stateBlob        []byte
		metadataJSON     []byte
		logicPathJSON    []byte
		errorContextJSON []byte
	)
	err := row.Scan(&cp.ID, &cp.Timestamp, &cp.BranchName, &parentID, &status,
		&cp.Hash, &stateBlob, &metadataJSON, &logicPathJSON, &errorContextJSON)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		cp.ParentID = *parentID
	}
	cp.Status = checkpoint.Status(status)
	cp.Timestamp = cp.Timestamp.UTC()

	cp.State = make(map[string]any)
	if err := s.serializer.Deserialize(stateBlob, &cp.State); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
	}
	if len(logicPathJSON) > 0 {
		if err := json.Unmarshal(logicPathJSON, &cp.LogicPath); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
	}
	if len(errorContextJSON) > 0 && string(errorContextJSON) != "null" {
		if err := json.Unmarshal(errorContextJSON, &cp.ErrorContext); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
	}
	return &cp, nil
}
