// Package pregelgo executes stateful, LLM-driven agent workflows as
// directed graphs over a shared, typed state.
//
// The module is organized as:
//
//   - graph: the builder, compiled plan, state schema with per-field
//     reducers, and the BSP scheduler (Invoke / Stream / Resume)
//   - store: the checkpoint persistence contract, with in-memory, file,
//     SQLite, Postgres, and Redis backends in subpackages
//   - log: the logging interface the engine writes through, with stdlib
//     and kataras/golog implementations
//
// See the graph package documentation for a worked example.
package pregelgo
