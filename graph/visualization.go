package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Exporter renders a compiled plan in diagram formats. Conditional
// routers have no static targets: Mermaid draws each as a dashed edge to
// a decision marker, DOT as a dashed edge labelled "router" to END.
type Exporter struct {
	graph *CompiledGraph
}

// Export returns an exporter for the runnable's compiled plan.
func (r *Runnable) Export() *Exporter {
	return &Exporter{graph: r.graph}
}

// DrawMermaid generates a Mermaid flowchart of the graph.
func (e *Exporter) DrawMermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	sb.WriteString(fmt.Sprintf("    %s([\"start\"])\n", mermaidID(START)))
	sb.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(START), mermaidID(e.graph.entryPoint)))

	for _, name := range e.graph.Nodes() {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", mermaidID(name), name))
	}
	sb.WriteString(fmt.Sprintf("    %s([\"end\"])\n", mermaidID(END)))

	for _, from := range sortedKeys(e.graph.adjacency) {
		for _, to := range e.graph.adjacency[from] {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(from), mermaidID(to)))
		}
	}
	for _, from := range sortedKeys(e.graph.routers) {
		sb.WriteString(fmt.Sprintf("    %s -.-> %s{\"?\"}\n", mermaidID(from), mermaidID(from)+"_router"))
	}

	return sb.String()
}

// DrawDOT generates a Graphviz DOT representation of the graph.
func (e *Exporter) DrawDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph workflow {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString(fmt.Sprintf("    %q [shape=circle];\n", START))
	sb.WriteString(fmt.Sprintf("    %q [shape=doublecircle];\n", END))

	for _, name := range e.graph.Nodes() {
		sb.WriteString(fmt.Sprintf("    %q [shape=box];\n", name))
	}

	sb.WriteString(fmt.Sprintf("    %q -> %q;\n", START, e.graph.entryPoint))
	for _, from := range sortedKeys(e.graph.adjacency) {
		for _, to := range e.graph.adjacency[from] {
			sb.WriteString(fmt.Sprintf("    %q -> %q;\n", from, to))
		}
	}
	for _, from := range sortedKeys(e.graph.routers) {
		sb.WriteString(fmt.Sprintf("    %q -> %q [style=dashed, label=\"router\"];\n", from, END))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// mermaidID strips characters Mermaid treats specially from node ids.
func mermaidID(name string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
