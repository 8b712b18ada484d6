package graph

import (
	"fmt"
	"time"
)

// DefaultRecursionLimit is the superstep budget applied by NewConfig.
const DefaultRecursionLimit = 25

// StreamMode controls the payload granularity of stream events.
type StreamMode string

const (
	// StreamModeValues emits the full merged state after each superstep.
	StreamModeValues StreamMode = "values"

	// StreamModeUpdates emits the per-node partial updates of each superstep.
	StreamModeUpdates StreamMode = "updates"

	// StreamModeEvents emits fine-grained lifecycle events: node start/end,
	// superstep completion, and checkpoint writes.
	StreamModeEvents StreamMode = "events"
)

// ErrorPolicy controls how a superstep reacts to a failing node.
type ErrorPolicy string

const (
	// ErrorPolicyHalt aborts the superstep on the first node error; no
	// checkpoint is written and the run fails. The default.
	ErrorPolicyHalt ErrorPolicy = "halt"

	// ErrorPolicyContinue drops the failing node's contribution (updates
	// and successors) and lets the remaining nodes proceed.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// Config carries the per-run options recognized by Invoke, Stream, and
// Resume. ThreadID is required; it namespaces the run's checkpoints.
//
// RecursionLimit is taken literally: a zero limit forbids any superstep.
// Build configs with NewConfig to start from the defaults.
type Config struct {
	// ThreadID is the run identity. Required.
	ThreadID string

	// CheckpointID selects the checkpoint Resume starts from.
	// Empty means the thread's latest.
	CheckpointID string

	// RecursionLimit caps the number of supersteps. Exceeding it fails
	// the run with RecursionLimitError.
	RecursionLimit int

	// StreamMode selects the event payload granularity for Stream.
	StreamMode StreamMode

	// ErrorPolicy selects halt or continue behaviour on node errors.
	ErrorPolicy ErrorPolicy

	// NodeTimeout caps each node invocation's wall clock. Zero means
	// unlimited. A timed-out node counts as a failed node.
	NodeTimeout time.Duration

	// RunTimeout caps the whole run. Zero means unlimited. The deadline
	// is enforced at barriers, never mid-node.
	RunTimeout time.Duration
}

// NewConfig returns a config with the given thread id and defaults for
// everything else.
func NewConfig(threadID string) *Config {
	return &Config{
		ThreadID:       threadID,
		RecursionLimit: DefaultRecursionLimit,
		StreamMode:     StreamModeValues,
		ErrorPolicy:    ErrorPolicyHalt,
	}
}

// normalizeConfig validates a caller config and fills in defaulted enums.
func normalizeConfig(cfg *Config) (Config, error) {
	if cfg == nil || cfg.ThreadID == "" {
		return Config{}, ErrThreadRequired
	}
	out := *cfg
	if out.RecursionLimit < 0 {
		return Config{}, fmt.Errorf("recursion limit must not be negative, got %d", out.RecursionLimit)
	}
	switch out.StreamMode {
	case "":
		out.StreamMode = StreamModeValues
	case StreamModeValues, StreamModeUpdates, StreamModeEvents:
	default:
		return Config{}, fmt.Errorf("unknown stream mode %q", out.StreamMode)
	}
	switch out.ErrorPolicy {
	case "":
		out.ErrorPolicy = ErrorPolicyHalt
	case ErrorPolicyHalt, ErrorPolicyContinue:
	default:
		return Config{}, fmt.Errorf("unknown error policy %q", out.ErrorPolicy)
	}
	return out, nil
}
