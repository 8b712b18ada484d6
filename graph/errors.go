package graph

import (
	"errors"
	"fmt"
	"time"
)

// Build-time errors. These surface from the builder methods or Compile
// and always indicate an authoring mistake.

// ErrNoEntry is returned by Compile when no entry point was set.
var ErrNoEntry = errors.New("entry point not set")

// ErrEndUnreachable is returned by Compile in strict mode when no path
// from the entry point can reach END.
var ErrEndUnreachable = errors.New("__end__ is not reachable from __start__")

// DuplicateNodeError is returned when a node name is declared twice.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %s already declared", e.Name)
}

// ReservedNameError is returned when a reserved name is used where a
// user-declared node is required.
type ReservedNameError struct {
	Name string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("name %s is reserved", e.Name)
}

// UnknownReferenceError is returned by Compile when an edge, router, or
// entry point references an undeclared node.
type UnknownReferenceError struct {
	// From names the referencing side (a node or START).
	From string
	// Name is the undeclared node.
	Name string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s references undeclared node %s", e.From, e.Name)
}

// EdgeConflictError is returned when a source would carry both static
// edges and a conditional router, or a second router.
type EdgeConflictError struct {
	From string
}

func (e *EdgeConflictError) Error() string {
	return fmt.Sprintf("node %s already has outgoing edges of a conflicting kind", e.From)
}

// Run-time errors. Each terminal error carries the superstep it occurred
// in and the names needed to identify the failure site. All of them leave
// the previous superstep's checkpoint intact.

// ErrNodeNotFound is wrapped by NodeError when the active set names a node
// the compiled graph does not contain (a corrupted or foreign checkpoint).
var ErrNodeNotFound = errors.New("node not found")

// ErrCancelled is matched (via errors.Is) by the error returned from a
// cooperatively cancelled run.
var ErrCancelled = errors.New("run cancelled")

// ErrThreadRequired is returned when a run config has no thread id.
var ErrThreadRequired = errors.New("thread id is required")

// NodeError reports a node that returned an error (or panicked, or timed
// out) during a superstep under the halt error policy.
type NodeError struct {
	Node      string
	Superstep int
	Cause     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed at superstep %d: %v", e.Node, e.Superstep, e.Cause)
}

func (e *NodeError) Unwrap() error { return e.Cause }

// ReducerError reports a reducer that rejected its inputs. The superstep
// is aborted; state is not advanced and no checkpoint is written.
type ReducerError struct {
	Field     string
	Superstep int
	Cause     error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer for field %s failed at superstep %d: %v", e.Field, e.Superstep, e.Cause)
}

func (e *ReducerError) Unwrap() error { return e.Cause }

// UnknownTargetError reports a router that returned a name the compiled
// graph does not contain.
type UnknownTargetError struct {
	From      string
	Target    string
	Superstep int
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("router of node %s returned unknown target %q at superstep %d", e.From, e.Target, e.Superstep)
}

// CheckpointError reports a failed checkpoint write. The run halts; the
// previous checkpoint remains authoritative and the run is resumable.
type CheckpointError struct {
	Superstep int
	Cause     error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint write failed at superstep %d: %v", e.Superstep, e.Cause)
}

func (e *CheckpointError) Unwrap() error { return e.Cause }

// RecursionLimitError reports that the run reached its superstep budget
// while nodes were still scheduled.
type RecursionLimitError struct {
	Limit     int
	Superstep int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit %d reached at superstep %d", e.Limit, e.Superstep)
}

// RunTimeoutError reports that the whole-run deadline expired. It is
// raised at a barrier, never mid-node.
type RunTimeoutError struct {
	Superstep int
	Timeout   time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run timeout %v exceeded at superstep %d", e.Timeout, e.Superstep)
}

// CancelledError reports cooperative cancellation, observed at a barrier.
// errors.Is(err, ErrCancelled) matches it.
type CancelledError struct {
	Superstep int
	Cause     error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled at superstep %d: %v", e.Superstep, e.Cause)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }
