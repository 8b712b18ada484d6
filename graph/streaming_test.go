package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStreamValuesMode(t *testing.T) {
	t.Parallel()

	r := buildLinear(t)
	ch, err := r.Stream(context.Background(), map[string]any{"x": 0, "log": []any{}}, NewConfig("t-stream-values"))
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)

	assert.Equal(t, EventSuperstepComplete, events[0].Kind)
	assert.Equal(t, 0, events[0].Superstep)
	assert.Equal(t, 1, events[0].State["x"])
	assert.Equal(t, []string{"b"}, events[0].NextNodes)

	assert.Equal(t, EventSuperstepComplete, events[1].Kind)
	assert.Equal(t, 1, events[1].Superstep)
	assert.Equal(t, []any{"a_done"}, events[1].State["log"])

	last := events[2]
	assert.Equal(t, EventRunEnd, last.Kind)
	assert.Equal(t, RunStatusCompleted, last.Status)
	assert.NoError(t, last.Err)
}

func TestStreamUpdatesMode(t *testing.T) {
	t.Parallel()

	r := buildLinear(t)
	cfg := NewConfig("t-stream-updates")
	cfg.StreamMode = StreamModeUpdates

	ch, err := r.Stream(context.Background(), map[string]any{"x": 0, "log": []any{}}, cfg)
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)

	assert.Equal(t, map[string]map[string]any{"a": {"x": 1}}, events[0].Updates)
	assert.Equal(t, map[string]map[string]any{"b": {"log": "a_done"}}, events[1].Updates)
	assert.Nil(t, events[0].State)
}

func TestStreamEventsMode(t *testing.T) {
	t.Parallel()

	r := buildLinear(t)
	cfg := NewConfig("t-stream-events")
	cfg.StreamMode = StreamModeEvents

	ch, err := r.Stream(context.Background(), map[string]any{"x": 0, "log": []any{}}, cfg)
	require.NoError(t, err)

	events := collect(t, ch)

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventNodeStart, EventNodeEnd, EventSuperstepComplete, EventCheckpointWritten,
		EventNodeStart, EventNodeEnd, EventSuperstepComplete, EventCheckpointWritten,
		EventRunEnd,
	}, kinds)

	assert.Equal(t, "a", events[0].Node)
	assert.True(t, events[1].OK)
	assert.NotEmpty(t, events[3].CheckpointID)
	assert.Equal(t, RunStatusCompleted, events[8].Status)
}

func TestStreamDeliversTerminalError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	g := NewStateGraph()
	require.NoError(t, g.AddNode("a", "", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		return nil, boom
	}))
	require.NoError(t, g.AddEdge("a", END))
	require.NoError(t, g.SetEntryPoint("a"))

	r, err := g.Compile()
	require.NoError(t, err)

	ch, err := r.Stream(context.Background(), nil, NewConfig("t-stream-err"))
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)

	assert.Equal(t, EventRunEnd, events[0].Kind)
	assert.Equal(t, RunStatusFailed, events[0].Status)

	var ne *NodeError
	require.True(t, errors.As(events[0].Err, &ne))
	assert.Equal(t, "a", ne.Node)
}

func TestStreamHonoursCancellation(t *testing.T) {
	t.Parallel()

	g := NewStateGraph()
	require.NoError(t, g.AddNode("loop", "", noopNode))
	require.NoError(t, g.AddConditionalEdge("loop", func(ctx context.Context, state map[string]any) []string {
		return []string{"loop"}
	}))
	require.NoError(t, g.SetEntryPoint("loop"))

	r, err := g.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := NewConfig("t-stream-cancel")
	cfg.RecursionLimit = 1000

	ch, err := r.Stream(ctx, nil, cfg)
	require.NoError(t, err)

	// Read a couple of supersteps, then walk away.
	<-ch
	<-ch
	cancel()

	for range ch {
		// Drain whatever was in flight; the channel must close.
	}
}

func TestStreamEventStateIsACopy(t *testing.T) {
	t.Parallel()

	r := buildLinear(t)
	ch, err := r.Stream(context.Background(), map[string]any{"x": 0, "log": []any{}}, NewConfig("t-stream-copy"))
	require.NoError(t, err)

	first := <-ch
	first.State["x"] = 12345 // must not perturb the run

	events := collect(t, ch)
	last := events[len(events)-1]
	assert.Equal(t, RunStatusCompleted, last.Status)
	assert.Equal(t, 1, events[0].State["x"])
}
