package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/pregelgo/store"
)

func TestMemoryCheckpointStore_New(t *testing.T) {
	t.Parallel()

	ms := NewMemoryCheckpointStore()

	if ms == nil {
		t.Fatal("Store should not be nil")
	}

	// Verify it implements the interface
	var _ store.CheckpointStore = ms
}

func TestMemoryCheckpointStore_BasicOperations(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()

		ms := NewMemoryCheckpointStore()
		ctx := context.Background()

		cp := &store.Checkpoint{
			ThreadID:  "thread-123",
			Superstep: 0,
			State: map[string]any{
				"messages": []any{"hello"},
				"done":     false,
			},
			NextNodes: []string{"tools"},
			Timestamp: time.Now(),
		}

		id, err := ms.Put(ctx, cp)
		if err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
		if id != store.CheckpointID("thread-123", 0) {
			t.Errorf("Unexpected id: %s", id)
		}

		loaded, err := ms.Get(ctx, "thread-123", id)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}

		if loaded.ThreadID != cp.ThreadID {
			t.Errorf("ThreadID mismatch: got %s, want %s", loaded.ThreadID, cp.ThreadID)
		}
		if loaded.Superstep != 0 {
			t.Errorf("Superstep mismatch: got %d, want 0", loaded.Superstep)
		}
		if done, ok := loaded.State["done"].(bool); !ok || done {
			t.Error("State not preserved correctly")
		}
		if len(loaded.NextNodes) != 1 || loaded.NextNodes[0] != "tools" {
			t.Errorf("NextNodes mismatch: got %v", loaded.NextNodes)
		}
	})

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		t.Parallel()

		ms := NewMemoryCheckpointStore()
		if _, err := ms.Get(context.Background(), "nope", "nope:00000000"); err != store.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := ms.GetLatest(context.Background(), "nope"); err != store.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("get latest picks highest superstep", func(t *testing.T) {
		t.Parallel()

		ms := NewMemoryCheckpointStore()
		ctx := context.Background()

		for step := 0; step < 3; step++ {
			_, err := ms.Put(ctx, &store.Checkpoint{
				ThreadID:  "t1",
				Superstep: step,
				State:     map[string]any{"step": step},
			})
			if err != nil {
				t.Fatalf("Failed to put step %d: %v", step, err)
			}
		}

		latest, err := ms.GetLatest(ctx, "t1")
		if err != nil {
			t.Fatalf("Failed to get latest: %v", err)
		}
		if latest.Superstep != 2 {
			t.Errorf("Expected superstep 2, got %d", latest.Superstep)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		t.Parallel()

		ms := NewMemoryCheckpointStore()
		ctx := context.Background()

		for step := 0; step < 3; step++ {
			if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: "t1", Superstep: step}); err != nil {
				t.Fatalf("Failed to put: %v", err)
			}
		}

		list, err := ms.List(ctx, "t1")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("Expected 3 checkpoints, got %d", len(list))
		}
		for i, cp := range list {
			if cp.Superstep != 2-i {
				t.Errorf("Position %d: expected superstep %d, got %d", i, 2-i, cp.Superstep)
			}
		}
	})

	t.Run("put same superstep replaces", func(t *testing.T) {
		t.Parallel()

		ms := NewMemoryCheckpointStore()
		ctx := context.Background()

		if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: "t1", Superstep: 0, State: map[string]any{"v": 1}}); err != nil {
			t.Fatal(err)
		}
		if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: "t1", Superstep: 0, State: map[string]any{"v": 2}}); err != nil {
			t.Fatal(err)
		}

		list, err := ms.List(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 {
			t.Fatalf("Expected 1 checkpoint, got %d", len(list))
		}
		if v := list[0].State["v"]; v != 2 {
			t.Errorf("Expected replaced state, got %v", v)
		}
	})

	t.Run("clear removes a thread only", func(t *testing.T) {
		t.Parallel()

		ms := NewMemoryCheckpointStore()
		ctx := context.Background()

		if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: "t1", Superstep: 0}); err != nil {
			t.Fatal(err)
		}
		if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: "t2", Superstep: 0}); err != nil {
			t.Fatal(err)
		}

		if err := ms.Clear(ctx, "t1"); err != nil {
			t.Fatalf("Failed to clear: %v", err)
		}
		if _, err := ms.GetLatest(ctx, "t1"); err != store.ErrNotFound {
			t.Errorf("Expected ErrNotFound after clear, got %v", err)
		}
		if _, err := ms.GetLatest(ctx, "t2"); err != nil {
			t.Errorf("Other thread should survive, got %v", err)
		}
	})
}

func TestMemoryCheckpointStore_Isolation(t *testing.T) {
	t.Parallel()

	ms := NewMemoryCheckpointStore()
	ctx := context.Background()

	state := map[string]any{"list": []any{"a"}}
	if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: "t1", Superstep: 0, State: state}); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's map after Put must not affect the store.
	state["list"] = []any{"mutated"}

	loaded, err := ms.GetLatest(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	list, ok := loaded.State["list"].([]any)
	if !ok || len(list) != 1 || list[0] != "a" {
		t.Errorf("Store aliased caller state: %v", loaded.State["list"])
	}

	// Mutating a loaded checkpoint must not affect later reads.
	loaded.State["list"] = []any{"also mutated"}
	again, err := ms.GetLatest(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	list, ok = again.State["list"].([]any)
	if !ok || list[0] != "a" {
		t.Errorf("Store handed out aliased state: %v", again.State["list"])
	}
}

func TestMemoryCheckpointStore_ConcurrentThreads(t *testing.T) {
	t.Parallel()

	ms := NewMemoryCheckpointStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			threadID := fmt.Sprintf("thread-%d", i)
			for step := 0; step < 20; step++ {
				if _, err := ms.Put(ctx, &store.Checkpoint{ThreadID: threadID, Superstep: step}); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
				if _, err := ms.GetLatest(ctx, threadID); err != nil {
					t.Errorf("GetLatest failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		latest, err := ms.GetLatest(ctx, fmt.Sprintf("thread-%d", i))
		if err != nil {
			t.Fatalf("GetLatest failed: %v", err)
		}
		if latest.Superstep != 19 {
			t.Errorf("thread-%d: expected superstep 19, got %d", i, latest.Superstep)
		}
	}
}
