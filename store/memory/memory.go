package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/pregelgo/store"
)

// MemoryCheckpointStore keeps checkpoints in a process-local map.
// It is the default store for tests and short-lived runs; nothing
// survives process exit.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	threads map[string][]*store.Checkpoint // ascending by superstep
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		threads: make(map[string][]*store.Checkpoint),
	}
}

// Put stores a checkpoint. A checkpoint for the same superstep replaces
// the earlier one, so resuming from an old snapshot rewrites history
// forward step by step.
func (ms *MemoryCheckpointStore) Put(_ context.Context, checkpoint *store.Checkpoint) (string, error) {
	cp := checkpoint.Clone()
	cp.ID = store.CheckpointID(cp.ThreadID, cp.Superstep)
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	chain := ms.threads[cp.ThreadID]
	idx := sort.Search(len(chain), func(i int) bool {
		return chain[i].Superstep >= cp.Superstep
	})
	if idx < len(chain) && chain[idx].Superstep == cp.Superstep {
		chain[idx] = cp
	} else {
		chain = append(chain, nil)
		copy(chain[idx+1:], chain[idx:])
		chain[idx] = cp
	}
	ms.threads[cp.ThreadID] = chain

	return cp.ID, nil
}

// GetLatest returns the checkpoint with the highest superstep.
func (ms *MemoryCheckpointStore) GetLatest(_ context.Context, threadID string) (*store.Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	chain := ms.threads[threadID]
	if len(chain) == 0 {
		return nil, store.ErrNotFound
	}
	return chain[len(chain)-1].Clone(), nil
}

// Get returns a specific checkpoint by id.
func (ms *MemoryCheckpointStore) Get(_ context.Context, threadID, checkpointID string) (*store.Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, cp := range ms.threads[threadID] {
		if cp.ID == checkpointID {
			return cp.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// List returns all checkpoints for a thread, newest first.
func (ms *MemoryCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	chain := ms.threads[threadID]
	out := make([]*store.Checkpoint, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Clone())
	}
	return out, nil
}

// Clear removes every checkpoint for a thread.
func (ms *MemoryCheckpointStore) Clear(_ context.Context, threadID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.threads, threadID)
	return nil
}
