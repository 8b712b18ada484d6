// Package graph implements a Bulk Synchronous Parallel (Pregel-style)
// execution engine for stateful agent workflows.
//
// A workflow is a directed graph over a shared map state. Build one with
// StateGraph, compile it, and run it:
//
//	g := graph.NewStateGraph()
//
//	schema := graph.NewSchema()
//	schema.RegisterReducer("messages", graph.AppendReducer)
//	g.SetSchema(schema)
//
//	g.AddNode("agent", "calls the model", func(ctx context.Context, state map[string]any) (map[string]any, error) {
//		return map[string]any{"messages": "thinking..."}, nil
//	})
//	g.AddConditionalEdge("agent", func(ctx context.Context, state map[string]any) []string {
//		if done, _ := state["done"].(bool); done {
//			return []string{graph.END}
//		}
//		return []string{"tools"}
//	})
//	g.AddNode("tools", "runs tool calls", toolsFn)
//	g.AddEdge("tools", "agent")
//	g.SetEntryPoint("agent")
//
//	runnable, err := g.Compile()
//	final, err := runnable.Invoke(ctx, initial, graph.NewConfig(graph.NewThreadID()))
//
// Execution advances in supersteps. Every node in the active set runs
// concurrently against a private snapshot of the state; at the barrier
// their partial updates are merged through the schema's per-field
// reducers in canonical node-name order, the next active set is computed
// from the graph's edges, and a checkpoint is persisted. Cycles are
// expected (agents loop); the per-run recursion limit terminates them.
//
// Because a checkpoint is written after every superstep, a run can be
// cancelled at any barrier and picked up again with Resume, on the same
// or another process, as long as both see the same checkpoint store.
// Stream delivers the same run as a lazy event sequence whose pacing is
// controlled by the consumer.
package graph
