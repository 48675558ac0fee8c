package shutdown

import (
	"context"
	"fmt"
	"runtime/debug"
)

// runSubsystem spawns the goroutine that drives one subsystem's body to
// completion, classifies its outcome, applies the escalation policy, and
// joins its children before returning. It is invoked from
// SubsystemHandle.Start and never blocks the caller - all of the work
// happens on the spawned goroutine.
func runSubsystem(n *node, fn runnerFunc, h *SubsystemHandle) {
	go func() {
		n.logger.Info(fmt.Sprintf("subsystem %q starting", n.path))

		o := executeSubsystem(n, fn, h)

		n.seal()
		applyErrorAction(n, o)
		n.setResult(o)

		joinChildren(n)

		n.logger.Info(fmt.Sprintf("subsystem %q finished", n.path))
	}()
}

// executeSubsystem runs the user function and turns panics into a Panic
// outcome instead of crashing the process.
func executeSubsystem(n *node, fn runnerFunc, h *SubsystemHandle) outcome {
	n.token.mu.Lock()
	cancelledBeforeStart := n.token.global
	n.token.mu.Unlock()
	if cancelledBeforeStart {
		// Cancelled-before-start: an ancestor's global shutdown already
		// reached this node before the runtime got around to scheduling it.
		// The body never runs at all.
		return outcome{kind: outcomeCancelled, err: ErrCancelledByShutdown}
	}

	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{
					kind: outcomePanic,
					err:  &SubsystemPanickedError{Path: n.path, Message: fmt.Sprintf("%v\n%s", r, debug.Stack())},
				}
			}
		}()

		ctx, cancel := contextForTokenCancel(n.token)
		defer cancel()
		err := fn(ctx, h)
		if err != nil {
			resultCh <- outcome{kind: outcomeUserError, err: err}
			return
		}
		resultCh <- outcome{kind: outcomeSuccess}
	}()

	return <-resultCh
}

// applyErrorAction implements the Runner's completion contract:
//  1. shutdown_on_finish + Success => local shutdown of this node.
//  2. UserError or Panic => always local shutdown of this node, and (unless
//     detached) escalate global shutdown up the ancestor chain.
func applyErrorAction(n *node, o outcome) {
	switch o.kind {
	case outcomeSuccess:
		if n.shutdownOnFinish {
			n.token.triggerLocal()
		}
	case outcomeCancelled:
		// Already a consequence of shutdown reaching this node before it
		// ever ran; nothing more to escalate.
		n.token.triggerLocal()
	case outcomeUserError, outcomePanic:
		n.token.triggerLocal()
		if !n.detached {
			wrapped := o.err
			if o.kind == outcomeUserError {
				wrapped = &SubsystemFailedError{Path: n.path, Err: o.err}
			}
			n.logger.Error(fmt.Sprintf("subsystem %q escalating failure to parent: %s", n.path, wrapped))
			escalate(n.parent)
		}
	}
}

// escalate propagates a failure up the ancestor chain, triggering local
// shutdown at each node in turn until it reaches a detached node - its own
// shutdown domain boundary - or runs out of ancestors at the true root.
// Any subsystem's failure or panic, no matter how deeply nested, therefore
// still reaches and cancels the nearest enclosing (nested or outer)
// Toplevel's own root.
func escalate(n *node) {
	for n != nil {
		n.token.triggerLocal()
		if n.detached {
			return
		}
		n = n.parent
	}
}

// joinChildren waits for every child of n to finish before n's runner
// completes. It is purely a wait and sends no signal: children stop only
// once some shutdown reaches their tokens (n's own failure or
// shutdownOnFinish, or an ancestor's shutdown). A child that never sees a
// shutdown keeps n's runner waiting here.
func joinChildren(n *node) {
	for _, c := range n.snapshotChildren() {
		<-c.waitFinished()
	}
}

// contextForToken returns a context.Context whose cancellation mirrors the
// token's shutdown-requested edge, so subsystem bodies that prefer
// context-based cancellation (e.g. to pass into an http.Server or a
// database call) can use ctx.Done() interchangeably with
// SubsystemHandle.OnShutdownRequested.
func contextForToken(t *token) context.Context {
	ctx, _ := contextForTokenCancel(t)
	return ctx
}

// contextForTokenCancel is contextForToken plus the cancel func, so a caller
// that knows when it's done watching (the Runner, once the subsystem body
// returns) can stop the bridging goroutine immediately instead of leaving it
// parked until the token eventually fires.
func contextForTokenCancel(t *token) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-t.awaitShutdown():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
