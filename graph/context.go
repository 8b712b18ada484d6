package graph

import "context"

// ExecInfo identifies the node invocation a context belongs to. The
// scheduler attaches it to every node call so node functions and the
// clients they wrap can tag their work.
type ExecInfo struct {
	// ThreadID of the running workflow.
	ThreadID string

	// Superstep currently executing.
	Superstep int

	// Node is the name of the invoked node.
	Node string
}

type execInfoKey struct{}

// withExecInfo attaches execution info to a node's context.
func withExecInfo(ctx context.Context, info ExecInfo) context.Context {
	return context.WithValue(ctx, execInfoKey{}, info)
}

// ExecInfoFromContext retrieves the execution info the scheduler attached
// to a node's context.
func ExecInfoFromContext(ctx context.Context) (ExecInfo, bool) {
	info, ok := ctx.Value(execInfoKey{}).(ExecInfo)
	return info, ok
}
