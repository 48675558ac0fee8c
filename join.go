package shutdown

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// waitSubtree fans out a waiter per node in tops and every non-detached
// descendant of each, concurrently via errgroup.Group - the idiomatic Go
// analogue of the original crate's join_all over futures - so that waiting
// for one slow subtree never delays noticing that a sibling already
// finished. It returns once every waiter has either observed its node's
// finished flag or ctx ended. A detached node's own subtree is skipped: it
// is its own shutdown domain, joined only through InitiatePartialShutdown
// (which passes that very node as one of tops, so it itself is still
// waited on) or its own nested Toplevel.
func waitSubtree(ctx context.Context, tops []*node) {
	g, gctx := errgroup.WithContext(ctx)

	var fanOut func(n *node)
	fanOut = func(n *node) {
		for _, c := range n.snapshotChildren() {
			if c.detached {
				continue
			}
			fanOut(c)
		}
		g.Go(func() error {
			select {
			case <-n.waitFinished():
			case <-gctx.Done():
			}
			return nil
		})
	}
	for _, n := range tops {
		fanOut(n)
	}
	_ = g.Wait()
}

// nonDetachedChildren returns root's children that are not themselves
// detached, the traversal root JoinCollector starts from.
func nonDetachedChildren(root *node) []*node {
	var tops []*node
	for _, c := range root.snapshotChildren() {
		if !c.detached {
			tops = append(tops, c)
		}
	}
	return tops
}

// runJoinCollector waits, bounded by timeout, for every non-detached
// descendant of root to finish, then classifies each by reading its
// already-settled result - which is what makes the reported order
// deterministic regardless of which goroutine actually finished first.
func runJoinCollector(ctx context.Context, root *node, timeout time.Duration) *GracefulShutdownError {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tops := nonDetachedChildren(root)
	waitSubtree(waitCtx, tops)

	failed, timedOut := collectOutcomes(tops)
	gerr := &GracefulShutdownError{Failed: failed, TimedOut: timedOut}
	if gerr.IsEmpty() {
		return nil
	}
	return gerr
}

// collectOutcomes walks each of tops and its non-detached descendants in
// post-order - children before their own parent, siblings left to right -
// and classifies every node that has settled by the time the caller stopped
// waiting. A node still running at that point contributes a TimedOut entry
// instead of a result; its own descendants are walked too, since they are
// just as stuck. Only outcomeSuccess contributes nothing: user errors,
// panics, and cancelled-before-start nodes are all non-success outcomes and
// all contribute to Failed.
//
// tops is the set of nodes to start each walk from; JoinCollector passes a
// root's non-detached children (the root itself contributes no outcome of
// its own), while InitiatePartialShutdown passes the single subsystem being
// partially shut down, so that subsystem's own outcome is included even
// though it is detached.
func collectOutcomes(tops []*node) (failed []error, timedOut []string) {
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.snapshotChildren() {
			if c.detached {
				continue
			}
			walk(c)
		}

		if !n.isFinished() {
			timedOut = append(timedOut, n.path)
			return
		}

		o := n.getResult()
		switch o.kind {
		case outcomeUserError, outcomeCancelled:
			failed = append(failed, &SubsystemFailedError{Path: n.path, Err: o.err})
		case outcomePanic:
			failed = append(failed, o.err)
		}
	}
	for _, n := range tops {
		walk(n)
	}
	return failed, timedOut
}
