package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/pregelgo/store"
)

// SqliteCheckpointStore implements store.CheckpointStore on an embedded
// SQLite database. It is the durable store for single-binary deployments.
type SqliteCheckpointStore struct {
	db        *sql.DB
	tableName string
}

var _ store.CheckpointStore = (*SqliteCheckpointStore)(nil)

// SqliteOptions configures the SQLite connection.
type SqliteOptions struct {
	Path      string
	TableName string // Default "checkpoints"
}

// NewSqliteCheckpointStore opens (or creates) the database at opts.Path
// and ensures the checkpoint table exists.
func NewSqliteCheckpointStore(opts SqliteOptions) (*SqliteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &SqliteCheckpointStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the checkpoint table if it doesn't exist.
// The (thread_id, superstep) unique index gives Put upsert semantics and
// keeps writes within a thread serialized by the database.
func (s *SqliteCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			superstep INTEGER NOT NULL,
			state TEXT NOT NULL,
			next_nodes TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (thread_id, superstep)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_id ON %s (thread_id);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteCheckpointStore) Close() error {
	return s.db.Close()
}

// Put stores a checkpoint, durable on return.
func (s *SqliteCheckpointStore) Put(ctx context.Context, checkpoint *store.Checkpoint) (string, error) {
	id := store.CheckpointID(checkpoint.ThreadID, checkpoint.Superstep)
	ts := checkpoint.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	stateJSON, err := json.Marshal(checkpoint.State)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	nextJSON, err := json.Marshal(checkpoint.NextNodes)
	if err != nil {
		return "", fmt.Errorf("failed to marshal next nodes: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, thread_id, superstep, state, next_nodes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, superstep) DO UPDATE SET
			id = excluded.id,
			state = excluded.state,
			next_nodes = excluded.next_nodes,
			timestamp = excluded.timestamp
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		id,
		checkpoint.ThreadID,
		checkpoint.Superstep,
		string(stateJSON),
		string(nextJSON),
		ts,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return id, nil
}

func (s *SqliteCheckpointStore) scanRow(row interface{ Scan(...any) error }) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	var stateJSON, nextJSON string

	err := row.Scan(
		&cp.ID,
		&cp.ThreadID,
		&cp.Superstep,
		&stateJSON,
		&nextJSON,
		&cp.Timestamp,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(nextJSON), &cp.NextNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next nodes: %w", err)
	}

	return &cp, nil
}

// GetLatest returns the checkpoint with the highest superstep for a thread.
func (s *SqliteCheckpointStore) GetLatest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, thread_id, superstep, state, next_nodes, timestamp
		FROM %s
		WHERE thread_id = ?
		ORDER BY superstep DESC
		LIMIT 1
	`, s.tableName)

	return s.scanRow(s.db.QueryRowContext(ctx, query, threadID))
}

// Get returns a specific checkpoint by id.
func (s *SqliteCheckpointStore) Get(ctx context.Context, threadID, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, thread_id, superstep, state, next_nodes, timestamp
		FROM %s
		WHERE thread_id = ? AND id = ?
	`, s.tableName)

	return s.scanRow(s.db.QueryRowContext(ctx, query, threadID, checkpointID))
}

// List returns all checkpoints for a thread, newest first.
func (s *SqliteCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, thread_id, superstep, state, next_nodes, timestamp
		FROM %s
		WHERE thread_id = ?
		ORDER BY superstep DESC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*store.Checkpoint
	for rows.Next() {
		cp, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}

	return checkpoints, nil
}

// Clear removes every checkpoint for a thread.
func (s *SqliteCheckpointStore) Clear(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
