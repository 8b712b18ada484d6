package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/pregelgo/store"
)

// FileCheckpointStore persists one JSON file per checkpoint under
// <root>/<thread_id>/<superstep>.json. Writes go through a temp file and
// rename, so a crash mid-write never leaves a torn checkpoint behind.
type FileCheckpointStore struct {
	root string
	mu   sync.Mutex
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)

// NewFileCheckpointStore creates a file-backed checkpoint store rooted at
// the given directory, creating it if needed.
func NewFileCheckpointStore(root string) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint root: %w", err)
	}
	return &FileCheckpointStore{root: root}, nil
}

func (fs *FileCheckpointStore) threadDir(threadID string) string {
	return filepath.Join(fs.root, threadID)
}

func (fs *FileCheckpointStore) checkpointPath(threadID string, superstep int) string {
	return filepath.Join(fs.threadDir(threadID), fmt.Sprintf("%08d.json", superstep))
}

// Put stores a checkpoint, durable on return.
func (fs *FileCheckpointStore) Put(_ context.Context, checkpoint *store.Checkpoint) (string, error) {
	cp := checkpoint.Clone()
	cp.ID = store.CheckpointID(cp.ThreadID, cp.Superstep)
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := fs.threadDir(cp.ThreadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create thread directory: %w", err)
	}

	final := fs.checkpointPath(cp.ThreadID, cp.Superstep)
	tmp, err := os.CreateTemp(dir, ".ckpt-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to publish checkpoint: %w", err)
	}

	return cp.ID, nil
}

func (fs *FileCheckpointStore) readFile(path string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// steps returns the sorted supersteps present for a thread.
func (fs *FileCheckpointStore) steps(threadID string) ([]int, error) {
	entries, err := os.ReadDir(fs.threadDir(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list thread directory: %w", err)
	}
	var steps []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var step int
		if _, err := fmt.Sscanf(name, "%d.json", &step); err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// GetLatest returns the checkpoint with the highest superstep.
func (fs *FileCheckpointStore) GetLatest(_ context.Context, threadID string) (*store.Checkpoint, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	steps, err := fs.steps(threadID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, store.ErrNotFound
	}
	return fs.readFile(fs.checkpointPath(threadID, steps[len(steps)-1]))
}

// Get returns a specific checkpoint by id.
func (fs *FileCheckpointStore) Get(_ context.Context, threadID, checkpointID string) (*store.Checkpoint, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	steps, err := fs.steps(threadID)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if store.CheckpointID(threadID, step) == checkpointID {
			return fs.readFile(fs.checkpointPath(threadID, step))
		}
	}
	return nil, store.ErrNotFound
}

// List returns all checkpoints for a thread, newest first.
func (fs *FileCheckpointStore) List(_ context.Context, threadID string) ([]*store.Checkpoint, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	steps, err := fs.steps(threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Checkpoint, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		cp, err := fs.readFile(fs.checkpointPath(threadID, steps[i]))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Clear removes every checkpoint for a thread.
func (fs *FileCheckpointStore) Clear(_ context.Context, threadID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.RemoveAll(fs.threadDir(threadID)); err != nil {
		return fmt.Errorf("failed to clear thread checkpoints: %w", err)
	}
	return nil
}
