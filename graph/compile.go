package graph

import (
	"sort"

	"github.com/smallnest/pregelgo/log"
	"github.com/smallnest/pregelgo/store"
	"github.com/smallnest/pregelgo/store/memory"
)

// CompiledGraph is the immutable execution plan produced by Compile:
// node table, static adjacency, routers, and a validated entry point.
// Changing the builder after Compile has no effect on it; recompile to
// pick up changes.
type CompiledGraph struct {
	nodes      map[string]Node
	adjacency  map[string][]string
	routers    map[string]Router
	entryPoint string
	schema     *Schema
}

// EntryPoint returns the node START is bound to.
func (cg *CompiledGraph) EntryPoint() string {
	return cg.entryPoint
}

// Nodes returns the declared node names in sorted order.
func (cg *CompiledGraph) Nodes() []string {
	names := make([]string, 0, len(cg.nodes))
	for name := range cg.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile validates the graph and returns a Runnable holding the
// immutable plan. Validation checks that an entry point is set, that
// every referenced node is declared, and, in strict mode, that END is
// reachable. Cycles are deliberately permitted; the per-run recursion
// limit terminates them.
//
// The Runnable defaults to an in-memory checkpoint store and a no-op
// logger; see WithStore and WithLogger.
func (g *StateGraph) Compile() (*Runnable, error) {
	if g.entryPoint == "" {
		return nil, ErrNoEntry
	}
	if _, declared := g.nodes[g.entryPoint]; !declared && g.entryPoint != END {
		return nil, &UnknownReferenceError{From: START, Name: g.entryPoint}
	}

	adjacency := make(map[string][]string)
	for _, e := range g.edges {
		if _, declared := g.nodes[e.From]; !declared {
			return nil, &UnknownReferenceError{From: e.From, Name: e.From}
		}
		if _, declared := g.nodes[e.To]; !declared && e.To != END {
			return nil, &UnknownReferenceError{From: e.From, Name: e.To}
		}
		if _, conflict := g.routers[e.From]; conflict {
			return nil, &EdgeConflictError{From: e.From}
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}
	for from, targets := range adjacency {
		sort.Strings(targets)
		adjacency[from] = dedupeSorted(targets)
	}

	routers := make(map[string]Router, len(g.routers))
	for from, router := range g.routers {
		if _, declared := g.nodes[from]; !declared {
			return nil, &UnknownReferenceError{From: from, Name: from}
		}
		routers[from] = router
	}

	nodes := make(map[string]Node, len(g.nodes))
	for name, node := range g.nodes {
		nodes[name] = node
	}

	schema := g.schema
	if schema == nil {
		schema = NewSchema()
	}

	cg := &CompiledGraph{
		nodes:      nodes,
		adjacency:  adjacency,
		routers:    routers,
		entryPoint: g.entryPoint,
		schema:     schema,
	}

	if !cg.endReachable() {
		if g.strict {
			return nil, ErrEndUnreachable
		}
		g.logger.Warn("graph compiled without a static path to %s; runs end only where a branch reaches a node without outgoing edges, or at the recursion limit", END)
	}

	return &Runnable{
		graph:  cg,
		store:  memory.NewMemoryCheckpointStore(),
		logger: &log.NoOpLogger{},
	}, nil
}

// endReachable walks the static adjacency from the entry point. A node
// carrying a router counts as a potential path to END, since routers may
// return it at runtime.
func (cg *CompiledGraph) endReachable() bool {
	if cg.entryPoint == END {
		return true
	}

	seen := map[string]bool{cg.entryPoint: true}
	queue := []string{cg.entryPoint}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if _, hasRouter := cg.routers[name]; hasRouter {
			return true
		}
		for _, to := range cg.adjacency[name] {
			if to == END {
				return true
			}
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return false
}

// Runnable is a compiled graph bound to a checkpoint store and logger.
// It is immutable and safe to share across goroutines and threads; the
// With* methods return configured copies.
type Runnable struct {
	graph  *CompiledGraph
	store  store.CheckpointStore
	logger log.Logger
}

// Graph returns the immutable execution plan.
func (r *Runnable) Graph() *CompiledGraph {
	return r.graph
}

// WithStore returns a copy of the runnable using the given checkpoint
// store.
func (r *Runnable) WithStore(cs store.CheckpointStore) *Runnable {
	out := *r
	out.store = cs
	return &out
}

// WithLogger returns a copy of the runnable using the given logger.
func (r *Runnable) WithLogger(logger log.Logger) *Runnable {
	out := *r
	out.logger = logger
	return &out
}

func dedupeSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}
