// Package store defines the checkpoint persistence contract for the
// pregelgo execution engine, plus the deep-copy helpers shared by its
// backends.
//
// The engine writes one Checkpoint per completed superstep and reads them
// back to resume a paused or crashed run. Backends live in subpackages:
//
//   - store/memory: process-local map, the default for tests
//   - store/file: one JSON file per checkpoint, durable on return
//   - store/sqlite: embedded SQL via mattn/go-sqlite3
//   - store/postgres: jackc/pgx/v5 connection pool
//   - store/redis: redis/go-redis/v9 with a per-thread sorted-set index
//
// All backends assign ids with CheckpointID, so a replayed run produces
// identical checkpoint ids step for step.
package store
