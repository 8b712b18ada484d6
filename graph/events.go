package graph

import "time"

// EventKind discriminates stream events.
type EventKind string

const (
	// EventNodeStart marks a node being launched (events mode only).
	EventNodeStart EventKind = "node_start"

	// EventNodeEnd marks a node returning, with outcome and duration
	// (events mode only).
	EventNodeEnd EventKind = "node_end"

	// EventSuperstepComplete marks a superstep's barrier and merge being
	// done. Its payload depends on the stream mode.
	EventSuperstepComplete EventKind = "superstep_complete"

	// EventCheckpointWritten marks a checkpoint having been persisted
	// (events mode only).
	EventCheckpointWritten EventKind = "checkpoint_written"

	// EventRunEnd is the final event of a stream. It is missing when the
	// stream's context was cancelled before the consumer received it.
	EventRunEnd EventKind = "run_end"
)

// RunStatus is the terminal status carried by EventRunEnd.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StreamEvent is one element of the lazy event sequence produced by
// Stream. Which fields are populated depends on Kind and the configured
// stream mode.
type StreamEvent struct {
	Kind      EventKind
	Superstep int

	// Node is set on node start/end events.
	Node string

	// OK and Duration describe a node's outcome on EventNodeEnd.
	OK       bool
	Duration time.Duration

	// State carries the full merged state on EventSuperstepComplete in
	// values mode.
	State map[string]any

	// Updates carries the node-name → partial-update map on
	// EventSuperstepComplete in updates mode.
	Updates map[string]map[string]any

	// NextNodes is the active set scheduled for the following superstep.
	NextNodes []string

	// CheckpointID is set on EventCheckpointWritten.
	CheckpointID string

	// Status and Err are set on EventRunEnd.
	Status RunStatus
	Err    error

	Timestamp time.Time
}
