package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/pregelgo/store"
)

func newStore(t *testing.T) *FileCheckpointStore {
	t.Helper()
	fs, err := NewFileCheckpointStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestFileCheckpointStore_PutGet(t *testing.T) {
	t.Parallel()

	fs := newStore(t)
	ctx := context.Background()

	id, err := fs.Put(ctx, &store.Checkpoint{
		ThreadID:  "t1",
		Superstep: 0,
		State:     map[string]any{"x": 1.0, "log": []any{"a"}},
		NextNodes: []string{"b"},
	})
	require.NoError(t, err)
	assert.Equal(t, store.CheckpointID("t1", 0), id)

	loaded, err := fs.Get(ctx, "t1", id)
	require.NoError(t, err)
	assert.Equal(t, "t1", loaded.ThreadID)
	assert.Equal(t, 0, loaded.Superstep)
	assert.Equal(t, map[string]any{"x": 1.0, "log": []any{"a"}}, loaded.State)
	assert.Equal(t, []string{"b"}, loaded.NextNodes)
	assert.False(t, loaded.Timestamp.IsZero())
}

func TestFileCheckpointStore_GetLatestAndList(t *testing.T) {
	t.Parallel()

	fs := newStore(t)
	ctx := context.Background()

	for step := 0; step < 3; step++ {
		_, err := fs.Put(ctx, &store.Checkpoint{
			ThreadID:  "t1",
			Superstep: step,
			State:     map[string]any{"step": float64(step)},
		})
		require.NoError(t, err)
	}

	latest, err := fs.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Superstep)

	list, err := fs.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 2, list[0].Superstep)
	assert.Equal(t, 0, list[2].Superstep)
}

func TestFileCheckpointStore_NotFound(t *testing.T) {
	t.Parallel()

	fs := newStore(t)
	ctx := context.Background()

	_, err := fs.GetLatest(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = fs.Get(ctx, "nope", "nope:00000000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileCheckpointStore_Clear(t *testing.T) {
	t.Parallel()

	fs := newStore(t)
	ctx := context.Background()

	_, err := fs.Put(ctx, &store.Checkpoint{ThreadID: "t1", Superstep: 0})
	require.NoError(t, err)
	_, err = fs.Put(ctx, &store.Checkpoint{ThreadID: "t2", Superstep: 0})
	require.NoError(t, err)

	require.NoError(t, fs.Clear(ctx, "t1"))

	_, err = fs.GetLatest(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = fs.GetLatest(ctx, "t2")
	assert.NoError(t, err)
}

func TestFileCheckpointStore_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)

	_, err = fs.Put(context.Background(), &store.Checkpoint{ThreadID: "t1", Superstep: 0})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "t1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "00000000.json", entries[0].Name())
}

func TestFileCheckpointStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)

	_, err = fs.Put(context.Background(), &store.Checkpoint{
		ThreadID:  "t1",
		Superstep: 4,
		State:     map[string]any{"x": "persisted"},
	})
	require.NoError(t, err)

	reopened, err := NewFileCheckpointStore(dir)
	require.NoError(t, err)

	latest, err := reopened.GetLatest(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, latest.Superstep)
	assert.Equal(t, "persisted", latest.State["x"])
}
