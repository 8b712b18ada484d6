package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrNotFound is returned when a requested checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// ErrCorruptStore is returned when a store's own bookkeeping contradicts
// itself, e.g. a thread index naming a checkpoint whose record is gone.
var ErrCorruptStore = errors.New("checkpoint store is corrupt")

// Checkpoint is a persisted snapshot of a workflow thread after one
// completed superstep. Checkpoints are written once and never edited.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint within its thread.
	// Stores assign it via CheckpointID, so replaying a run with the
	// same thread id produces the same ids step for step.
	ID string `json:"id"`

	// ThreadID namespaces the checkpoint to one workflow run.
	ThreadID string `json:"thread_id"`

	// Superstep is the round this snapshot was taken after.
	Superstep int `json:"superstep"`

	// State is the full merged state after the superstep.
	State map[string]any `json:"state"`

	// NextNodes is the active set scheduled for the following superstep.
	// Empty means the run has finished.
	NextNodes []string `json:"next_nodes"`

	// Timestamp records when the checkpoint was written.
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointID builds the deterministic, per-thread monotonic id used by
// every store implementation. The zero-padded superstep keeps ids sortable
// as plain strings.
func CheckpointID(threadID string, superstep int) string {
	return fmt.Sprintf("%s:%08d", threadID, superstep)
}

// Clone returns a deep copy of the checkpoint. Stores hand out clones so
// callers cannot alias state held inside the store.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State = cloneMap(c.State)
	cp.NextNodes = append([]string(nil), c.NextNodes...)
	return &cp
}

// CheckpointStore persists checkpoints keyed by (thread, checkpoint).
//
// Implementations must be safe for concurrent use across threads and must
// serialize writes within one thread. Put is atomic: either the whole
// checkpoint is durable on return, or nothing was written.
type CheckpointStore interface {
	// Put stores a checkpoint and returns its assigned id.
	// Writing the same (thread, superstep) twice replaces the earlier
	// snapshot; resuming from an old checkpoint rewrites history forward.
	Put(ctx context.Context, checkpoint *Checkpoint) (string, error)

	// GetLatest returns the checkpoint with the highest superstep for the
	// thread, or ErrNotFound if the thread has none.
	GetLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Get returns a specific checkpoint, or ErrNotFound.
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a thread, newest first.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Clear removes every checkpoint for a thread.
	Clear(ctx context.Context, threadID string) error
}

// cloneMap deep-copies a state mapping. Nested maps and slices are copied;
// scalar leaves are shared, which is safe because the engine treats state
// values as immutable.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}
