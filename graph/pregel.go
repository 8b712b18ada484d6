package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/pregelgo/store"
)

// nodeResult is one node's outcome for a superstep, collected at the
// barrier.
type nodeResult struct {
	name     string
	update   map[string]any
	err      error
	duration time.Duration
}

// Invoke runs the graph to completion and returns the final state.
// The run starts at superstep 0 from the entry point; one checkpoint is
// written per completed superstep under cfg.ThreadID.
func (r *Runnable) Invoke(ctx context.Context, initial map[string]any, cfg *Config) (map[string]any, error) {
	conf, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	state := cloneState(initial)
	if state == nil {
		state = make(map[string]any)
	}
	return r.run(ctx, state, []string{r.graph.entryPoint}, 0, conf, nil)
}

// Resume loads a checkpoint for cfg.ThreadID (cfg.CheckpointID if set,
// the latest otherwise) and continues the run from the superstep after
// it. Resuming a finished run is a no-op that returns the final state.
func (r *Runnable) Resume(ctx context.Context, cfg *Config) (map[string]any, error) {
	conf, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	var cp *store.Checkpoint
	if conf.CheckpointID != "" {
		cp, err = r.store.Get(ctx, conf.ThreadID, conf.CheckpointID)
	} else {
		cp, err = r.store.GetLatest(ctx, conf.ThreadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for thread %s: %w", conf.ThreadID, err)
	}

	state := cloneState(cp.State)
	if state == nil {
		state = make(map[string]any)
	}
	return r.run(ctx, state, cp.NextNodes, cp.Superstep+1, conf, nil)
}

// Stream runs the graph like Invoke but returns a lazy, finite event
// sequence instead of the final state. The channel is unbuffered: a
// consumer that stops reading pauses the scheduler at the next barrier.
// The sequence finishes with an EventRunEnd carrying the terminal status
// and error, after which the channel is closed. Once ctx is cancelled, an
// event the consumer has not yet received, the EventRunEnd included, may
// be dropped; the channel is closed either way. The sequence is one-shot;
// restart a paused thread with Resume.
func (r *Runnable) Stream(ctx context.Context, initial map[string]any, cfg *Config) (<-chan StreamEvent, error) {
	conf, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	state := cloneState(initial)
	if state == nil {
		state = make(map[string]any)
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		emit := func(ev StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		_, _ = r.run(ctx, state, []string{r.graph.entryPoint}, 0, conf, emit)
	}()
	return ch, nil
}

// History returns a thread's checkpoints, newest first.
func (r *Runnable) History(ctx context.Context, threadID string) ([]*store.Checkpoint, error) {
	return r.store.List(ctx, threadID)
}

// run drives the superstep loop. It owns the state: nodes only ever see
// private snapshots, and the state advances exclusively at barriers.
// emit may be nil (Invoke/Resume); when set, a false return means the
// consumer is gone and the run stops as cancelled.
func (r *Runnable) run(ctx context.Context, state map[string]any, active []string, step int, cfg Config, emit func(StreamEvent) bool) (map[string]any, error) {
	var runDeadline time.Time
	if cfg.RunTimeout > 0 {
		runDeadline = time.Now().Add(cfg.RunTimeout)
	}

	finish := func(status RunStatus, superstep int, err error) (map[string]any, error) {
		if emit != nil {
			emit(StreamEvent{
				Kind:      EventRunEnd,
				Superstep: superstep,
				Status:    status,
				Err:       err,
				Timestamp: time.Now(),
			})
		}
		if err != nil {
			return nil, err
		}
		return state, nil
	}

	for {
		active = canonicalActive(active)

		// Step 1-2: empty active set means every branch has terminated.
		if len(active) == 0 {
			r.logger.Debug("thread %s completed at superstep %d", cfg.ThreadID, step)
			return finish(RunStatusCompleted, step, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(RunStatusCancelled, step, &CancelledError{Superstep: step, Cause: err})
		}
		// Step 3: recursion budget.
		if step >= cfg.RecursionLimit {
			r.logger.Warn("thread %s hit recursion limit %d", cfg.ThreadID, cfg.RecursionLimit)
			return finish(RunStatusFailed, step, &RecursionLimitError{Limit: cfg.RecursionLimit, Superstep: step})
		}
		if !runDeadline.IsZero() && time.Now().After(runDeadline) {
			return finish(RunStatusFailed, step, &RunTimeoutError{Superstep: step, Timeout: cfg.RunTimeout})
		}

		r.logger.Debug("thread %s superstep %d: running %v", cfg.ThreadID, step, active)

		// A checkpoint from another graph (or a hand-edited one) may name
		// nodes this plan doesn't have; catch that before launching.
		for _, name := range active {
			if _, declared := r.graph.nodes[name]; !declared {
				return finish(RunStatusFailed, step, &NodeError{Node: name, Superstep: step, Cause: ErrNodeNotFound})
			}
		}

		if emit != nil && cfg.StreamMode == StreamModeEvents {
			for _, name := range active {
				if !emit(StreamEvent{Kind: EventNodeStart, Superstep: step, Node: name, Timestamp: time.Now()}) {
					return finish(RunStatusCancelled, step, &CancelledError{Superstep: step, Cause: ctx.Err()})
				}
			}
		}

		// Step 4: launch all active nodes against private snapshots.
		results := make([]nodeResult, len(active))
		var wg sync.WaitGroup
		for i, name := range active {
			node := r.graph.nodes[name]
			wg.Add(1)
			go func(i int, node Node) {
				defer wg.Done()
				start := time.Now()
				defer func() {
					if p := recover(); p != nil {
						results[i] = nodeResult{
							name:     node.Name,
							err:      fmt.Errorf("panic: %v", p),
							duration: time.Since(start),
						}
					}
				}()

				nodeCtx := withExecInfo(ctx, ExecInfo{ThreadID: cfg.ThreadID, Superstep: step, Node: node.Name})
				if cfg.NodeTimeout > 0 {
					var cancel context.CancelFunc
					nodeCtx, cancel = context.WithTimeout(nodeCtx, cfg.NodeTimeout)
					defer cancel()
				}

				update, err := node.Function(nodeCtx, cloneState(state))
				if err == nil && cfg.NodeTimeout > 0 && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
					err = fmt.Errorf("node exceeded timeout %v: %w", cfg.NodeTimeout, context.DeadlineExceeded)
				}
				results[i] = nodeResult{
					name:     node.Name,
					update:   update,
					err:      err,
					duration: time.Since(start),
				}
			}(i, node)
		}

		// Step 5: barrier. Cancellation and the run deadline are honoured
		// here, after in-flight work has finished; the cancelled step
		// writes no checkpoint.
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return finish(RunStatusCancelled, step, &CancelledError{Superstep: step, Cause: err})
		}
		if !runDeadline.IsZero() && time.Now().After(runDeadline) {
			return finish(RunStatusFailed, step, &RunTimeoutError{Superstep: step, Timeout: cfg.RunTimeout})
		}

		if emit != nil && cfg.StreamMode == StreamModeEvents {
			for _, res := range results {
				ok := emit(StreamEvent{
					Kind:      EventNodeEnd,
					Superstep: step,
					Node:      res.name,
					OK:        res.err == nil,
					Duration:  res.duration,
					Timestamp: time.Now(),
				})
				if !ok {
					return finish(RunStatusCancelled, step, &CancelledError{Superstep: step, Cause: ctx.Err()})
				}
			}
		}

		// Error policy. results is in canonical order because active was
		// sorted before launch.
		ran := results[:0]
		for _, res := range results {
			if res.err != nil {
				if cfg.ErrorPolicy == ErrorPolicyHalt {
					r.logger.Warn("thread %s node %s failed at superstep %d: %v", cfg.ThreadID, res.name, step, res.err)
					return finish(RunStatusFailed, step, &NodeError{Node: res.name, Superstep: step, Cause: res.err})
				}
				r.logger.Warn("thread %s node %s failed at superstep %d, dropping its contribution: %v", cfg.ThreadID, res.name, step, res.err)
				continue
			}
			ran = append(ran, res)
		}

		// Steps 6-7: reduce contributions in canonical node-name order.
		contribs := make([]Contribution, 0, len(ran))
		for _, res := range ran {
			if len(res.update) > 0 {
				contribs = append(contribs, Contribution{Node: res.name, Update: res.update})
			}
		}
		newState, err := r.graph.schema.Apply(state, contribs)
		if err != nil {
			var re *ReducerError
			if errors.As(err, &re) {
				re.Superstep = step
			}
			r.logger.Warn("thread %s superstep %d merge failed: %v", cfg.ThreadID, step, err)
			return finish(RunStatusFailed, step, err)
		}

		// Step 8: compute the next active set from the edges of every
		// node that ran. Routers see the merged state of this superstep.
		nextSet := make(map[string]bool)
		for _, res := range ran {
			if router, ok := r.graph.routers[res.name]; ok {
				for _, target := range router(ctx, cloneState(newState)) {
					if target == END {
						continue
					}
					if _, declared := r.graph.nodes[target]; !declared {
						return finish(RunStatusFailed, step, &UnknownTargetError{From: res.name, Target: target, Superstep: step})
					}
					nextSet[target] = true
				}
				continue
			}
			for _, target := range r.graph.adjacency[res.name] {
				if target != END {
					nextSet[target] = true
				}
			}
		}
		next := make([]string, 0, len(nextSet))
		for name := range nextSet {
			next = append(next, name)
		}
		sort.Strings(next)

		// Step 9: persist the checkpoint before anything can observe the
		// new state.
		checkpointID, err := r.store.Put(ctx, &store.Checkpoint{
			ThreadID:  cfg.ThreadID,
			Superstep: step,
			State:     newState,
			NextNodes: next,
		})
		if err != nil {
			r.logger.Error("thread %s checkpoint write failed at superstep %d: %v", cfg.ThreadID, step, err)
			return finish(RunStatusFailed, step, &CheckpointError{Superstep: step, Cause: err})
		}
		r.logger.Debug("thread %s checkpoint %s written", cfg.ThreadID, checkpointID)

		// Step 10: emit the superstep's events per stream mode.
		if emit != nil {
			var ok bool
			switch cfg.StreamMode {
			case StreamModeValues:
				ok = emit(StreamEvent{
					Kind:      EventSuperstepComplete,
					Superstep: step,
					State:     cloneState(newState),
					NextNodes: next,
					Timestamp: time.Now(),
				})
			case StreamModeUpdates:
				updates := make(map[string]map[string]any, len(contribs))
				for _, c := range contribs {
					updates[c.Node] = cloneState(c.Update)
				}
				ok = emit(StreamEvent{
					Kind:      EventSuperstepComplete,
					Superstep: step,
					Updates:   updates,
					NextNodes: next,
					Timestamp: time.Now(),
				})
			case StreamModeEvents:
				ok = emit(StreamEvent{
					Kind:      EventSuperstepComplete,
					Superstep: step,
					NextNodes: next,
					Timestamp: time.Now(),
				}) && emit(StreamEvent{
					Kind:         EventCheckpointWritten,
					Superstep:    step,
					CheckpointID: checkpointID,
					Timestamp:    time.Now(),
				})
			}
			if !ok {
				return finish(RunStatusCancelled, step, &CancelledError{Superstep: step + 1, Cause: ctx.Err()})
			}
		}

		// Step 11: advance.
		state = newState
		active = next
		step++
	}
}

// canonicalActive drops END, collapses duplicates, and sorts by node name
// (lexicographic on UTF-8 code points). This is the order node results
// are merged in, making concurrent updates deterministic.
func canonicalActive(active []string) []string {
	set := make(map[string]bool, len(active))
	for _, name := range active {
		if name != END && name != "" {
			set[name] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
