package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/smallnest/pregelgo/log"
)

const (
	// START is the reserved name of the virtual entry node. It cannot be
	// declared; an edge from START binds the graph's entry point.
	START = "__start__"

	// END is the reserved name of the terminal sink. Routing a branch to
	// END terminates it; when every branch has reached END the run is done.
	END = "__end__"
)

// NodeFunc is the function a node executes each superstep. It receives a
// read-only snapshot of the current state and returns a partial update
// naming only the fields it wishes to change. Returning an empty (or nil)
// map is a valid no-op; the node still routes to its successors.
//
// The snapshot is a private copy: mutating it has no effect on the run.
// Long-running functions should honour ctx cancellation and deadlines.
type NodeFunc func(ctx context.Context, state map[string]any) (map[string]any, error)

// Node is a processing unit in the workflow graph.
type Node struct {
	// Name is the unique identifier for the node.
	Name string

	// Description describes the functionality of the node.
	Description string

	// Function runs the node's logic.
	Function NodeFunc
}

// Edge is a static connection between two nodes. Multiple edges from the
// same source fan out to all targets in the same superstep.
type Edge struct {
	From string
	To   string
}

// Router picks the next node(s) from a source after a superstep's merge.
// It must be pure and deterministic for a given state; resumed runs replay
// routing decisions and depend on it. Returning nil or an empty slice
// terminates the branch, as does returning END.
type Router func(ctx context.Context, state map[string]any) []string

// NewThreadID generates a fresh thread identifier for a run.
func NewThreadID() string {
	return uuid.NewString()
}

// StateGraph is the mutable builder for a workflow graph. Declare nodes
// and edges, then Compile into an immutable Runnable. A StateGraph is not
// safe for concurrent use; the Runnable it produces is.
type StateGraph struct {
	nodes      map[string]Node
	edges      []Edge
	routers    map[string]Router
	entryPoint string
	schema     *Schema
	strict     bool
	logger     log.Logger
}

// NewStateGraph creates an empty graph builder. Fields without a
// registered reducer merge by overwrite.
func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes:   make(map[string]Node),
		routers: make(map[string]Router),
		schema:  NewSchema(),
		logger:  log.GetDefaultLogger(),
	}
}

// AddNode declares a node. The name must be unique and not reserved.
func (g *StateGraph) AddNode(name, description string, fn NodeFunc) error {
	if name == START || name == END {
		return &ReservedNameError{Name: name}
	}
	if name == "" {
		return fmt.Errorf("node name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("node %s: function must not be nil", name)
	}
	if _, exists := g.nodes[name]; exists {
		return &DuplicateNodeError{Name: name}
	}
	g.nodes[name] = Node{
		Name:        name,
		Description: description,
		Function:    fn,
	}
	return nil
}

// AddEdge records a static edge. An edge from START binds the entry point,
// the same as SetEntryPoint. Endpoint existence is checked at Compile so
// declaration order doesn't matter.
func (g *StateGraph) AddEdge(from, to string) error {
	if from == END {
		return &ReservedNameError{Name: END}
	}
	if from == START {
		return g.SetEntryPoint(to)
	}
	if _, conflict := g.routers[from]; conflict {
		return &EdgeConflictError{From: from}
	}
	g.edges = append(g.edges, Edge{From: from, To: to})
	return nil
}

// AddConditionalEdge records a router for a source node. A source has
// either static edges or exactly one router, never both.
func (g *StateGraph) AddConditionalEdge(from string, router Router) error {
	if from == START || from == END {
		return &ReservedNameError{Name: from}
	}
	if router == nil {
		return fmt.Errorf("node %s: router must not be nil", from)
	}
	if _, dup := g.routers[from]; dup {
		return &EdgeConflictError{From: from}
	}
	for _, e := range g.edges {
		if e.From == from {
			return &EdgeConflictError{From: from}
		}
	}
	g.routers[from] = router
	return nil
}

// SetEntryPoint binds START to the named node. Setting it to END yields a
// graph that terminates immediately with the initial state.
func (g *StateGraph) SetEntryPoint(name string) error {
	if name == START {
		return &ReservedNameError{Name: START}
	}
	g.entryPoint = name
	return nil
}

// SetSchema replaces the state schema. A nil schema restores the default
// (overwrite for every field).
func (g *StateGraph) SetSchema(schema *Schema) {
	g.schema = schema
}

// SetStrict toggles strict compile validation. In strict mode an END
// unreachable from the entry point is a compile error; in the default
// permissive mode it is only logged as a warning.
func (g *StateGraph) SetStrict(strict bool) {
	g.strict = strict
}

// SetLogger sets the logger used for compile warnings. Runnables get
// their own logger via WithLogger.
func (g *StateGraph) SetLogger(logger log.Logger) {
	if logger != nil {
		g.logger = logger
	}
}
