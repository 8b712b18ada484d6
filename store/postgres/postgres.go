package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/pregelgo/store"
)

// DBPool is the slice of pgxpool.Pool the store needs. Tests substitute a
// pgxmock pool through it.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCheckpointStore implements store.CheckpointStore on PostgreSQL.
type PostgresCheckpointStore struct {
	pool      DBPool
	tableName string
}

var _ store.CheckpointStore = (*PostgresCheckpointStore)(nil)

// PostgresOptions configures the Postgres connection.
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "checkpoints"
}

// NewPostgresCheckpointStore creates a new Postgres checkpoint store.
func NewPostgresCheckpointStore(ctx context.Context, opts PostgresOptions) (*PostgresCheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	return &PostgresCheckpointStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

// NewPostgresCheckpointStoreWithPool creates a store with an existing pool.
// Useful for testing with mocks.
func NewPostgresCheckpointStoreWithPool(pool DBPool, tableName string) *PostgresCheckpointStore {
	if tableName == "" {
		tableName = "checkpoints"
	}
	return &PostgresCheckpointStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the checkpoint table if it doesn't exist.
func (s *PostgresCheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			superstep INTEGER NOT NULL,
			state JSONB NOT NULL,
			next_nodes JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (thread_id, superstep)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_thread_id ON %s (thread_id);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresCheckpointStore) Close() {
	s.pool.Close()
}

// Put stores a checkpoint, durable on return.
func (s *PostgresCheckpointStore) Put(ctx context.Context, checkpoint *store.Checkpoint) (string, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (thread_id, superstep) DO UPDATE SET
			id = EXCLUDED.id,
			state = EXCLUDED.state,
			next_nodes = EXCLUDED.next_nodes,
			timestamp = EXCLUDED.timestamp
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		id,
		checkpoint.ThreadID,
		checkpoint.Superstep,
		stateJSON,
		nextJSON,
		ts,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return id, nil
}

func scanRow(row pgx.Row) (*store.Checkpoint, error) {
	var cp store.Checkpoint
	var stateJSON, nextJSON []byte

	err := row.Scan(
		&cp.ID,
		&cp.ThreadID,
		&cp.Superstep,
		&stateJSON,
		&nextJSON,
		&cp.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal(nextJSON, &cp.NextNodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next nodes: %w", err)
	}

	return &cp, nil
}

// GetLatest returns the checkpoint with the highest superstep for a thread.
func (s *PostgresCheckpointStore) GetLatest(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, thread_id, superstep, state, next_nodes, timestamp
		FROM %s
		WHERE thread_id = $1
		ORDER BY superstep DESC
		LIMIT 1
	`, s.tableName)

	return scanRow(s.pool.QueryRow(ctx, query, threadID))
}

// Get returns a specific checkpoint by id.
func (s *PostgresCheckpointStore) Get(ctx context.Context, threadID, checkpointID string) (*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, thread_id, superstep, state, next_nodes, timestamp
		FROM %s
		WHERE thread_id = $1 AND id = $2
	`, s.tableName)

	return scanRow(s.pool.QueryRow(ctx, query, threadID, checkpointID))
}

// List returns all checkpoints for a thread, newest first.
func (s *PostgresCheckpointStore) List(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, thread_id, superstep, state, next_nodes, timestamp
		FROM %s
		WHERE thread_id = $1
		ORDER BY superstep DESC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*store.Checkpoint
	for rows.Next() {
		cp, err := scanRow(rows)
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
func (s *PostgresCheckpointStore) Clear(ctx context.Context, threadID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE thread_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}
