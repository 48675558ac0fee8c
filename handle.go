package shutdown

import (
	"context"

	"github.com/google/uuid"
)

// SubsystemHandle is the capability object passed into every subsystem
// body. It is the only way user code reaches into the tree: starting
// children, observing or requesting shutdown, and scoping a partial
// shutdown or a nested Toplevel to a subtree.
//
// A SubsystemHandle is only valid for as long as the subsystem it belongs
// to is running. Holding onto one after the subsystem has returned is
// harmless - every method on it keeps working, mirroring the core's stance
// that dropping a handle has no effect on its subsystem's execution - but
// Start will always fail with ErrAlreadyFinished once the owning runner has
// sealed its node.
type SubsystemHandle struct {
	node   *node
	logger Logger
}

// NestedSubsystem is returned by Start and identifies a started child for
// later use with InitiatePartialShutdown.
type NestedSubsystem struct {
	node *node
}

// Name returns the nested subsystem's own name, not its full path.
func (n *NestedSubsystem) Name() string { return n.node.name }

// Path returns the nested subsystem's full slash-joined path from the root.
func (n *NestedSubsystem) Path() string { return n.node.path }

// Start spawns a child subsystem under this handle's subsystem, as
// described by builder. It returns ErrAlreadyFinished if this handle's own
// runner has already begun winding down, since no new children may attach
// past that point.
func (h *SubsystemHandle) Start(builder SubsystemBuilder) (*NestedSubsystem, error) {
	// detached only cuts off escalation (applyErrorAction consults
	// child.detached, not this token), never the downward cascade: a
	// detached subtree still winds down when an ancestor's shutdown reaches
	// it, it just won't drag that ancestor down if it fails on its own.
	tok := newChildToken(h.node.token)

	child := newNode(builder.name, childPath(h.node.path, builder.name), h.node, tok, builder.detached, builder.shutdownOnFinish, h.logger)

	if err := h.node.addChild(child); err != nil {
		return nil, err
	}

	childHandle := &SubsystemHandle{node: child, logger: h.logger}
	runSubsystem(child, builder.run, childHandle)

	return &NestedSubsystem{node: child}, nil
}

// OnShutdownRequested returns a channel that closes once this subsystem's
// local-or-global shutdown edge fires. It is the shared per-token channel,
// never a private one, so it is cheap to construct and cancellation-safe: a
// caller that loses a select on it simply stops reading, leaving nothing to
// clean up.
func (h *SubsystemHandle) OnShutdownRequested() <-chan struct{} {
	return h.node.token.awaitShutdown()
}

// Wait blocks until either shutdown is requested or ctx is done, whichever
// happens first. It returns ctx.Err() in the latter case, nil in the former.
func (h *SubsystemHandle) Wait(ctx context.Context) error {
	select {
	case <-h.node.token.awaitShutdown():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdownRequested reports a snapshot of whether this subsystem's
// local-or-global shutdown edge is currently set.
func (h *SubsystemHandle) IsShutdownRequested() bool {
	return h.node.token.isShutdownRequested()
}

// RequestShutdown triggers local shutdown of this subsystem's own subtree.
// Descendants observe it as global shutdown. The parent, the siblings and
// the Toplevel's root are not triggered by it; use RequestGlobalShutdown to
// shut down the whole tree.
func (h *SubsystemHandle) RequestShutdown() {
	h.node.token.triggerLocal()
}

// RequestGlobalShutdown walks up to the root of the tree and triggers local
// shutdown there, bringing down the entire program's subsystem tree
// (detached subtrees included, since their tokens still descend from the
// root token even though their failures don't escalate back up).
func (h *SubsystemHandle) RequestGlobalShutdown() {
	n := h.node
	for n.parent != nil {
		n = n.parent
	}
	n.token.triggerLocal()
}

// InitiatePartialShutdown triggers local shutdown of child's subtree and
// blocks until that subtree has fully joined - every descendant finished -
// or ctx is done first. It returns ErrSubsystemNotFound if child is not one
// of this handle's own direct children.
func (h *SubsystemHandle) InitiatePartialShutdown(ctx context.Context, child *NestedSubsystem) error {
	root := h.node
	for root.parent != nil {
		root = root.parent
	}
	if root.token.isShutdownRequested() {
		return &PartialShutdownError{Err: ErrAlreadyShuttingDown}
	}

	found := false
	for _, c := range h.node.snapshotChildren() {
		if c == child.node {
			found = true
			break
		}
	}
	if !found {
		return &PartialShutdownError{Err: ErrSubsystemNotFound}
	}

	child.node.token.triggerLocal()

	waitSubtree(ctx, []*node{child.node})
	if err := ctx.Err(); err != nil {
		return &PartialShutdownError{Err: err}
	}

	failed, timedOut := collectOutcomes([]*node{child.node})
	gerr := &GracefulShutdownError{Failed: failed, TimedOut: timedOut}
	if gerr.IsEmpty() {
		return nil
	}
	return &PartialShutdownError{Err: gerr}
}

// CreateCancellationToken returns a context.Context that cancels once this
// subsystem's shutdown edge fires, without registering a tracked tree node.
// It is meant for lightweight call sites - a single connection handler, for
// instance - where the overhead of a full nested subsystem isn't warranted.
func (h *SubsystemHandle) CreateCancellationToken() context.Context {
	return contextForToken(newChildToken(h.node.token))
}

// ID returns the subsystem's stable identity, distinguishing siblings that
// happen to share a name (names need not be unique per §4.3).
func (h *SubsystemHandle) ID() uuid.UUID { return h.node.id }

// Name returns this subsystem's own name, not its full path.
func (h *SubsystemHandle) Name() string { return h.node.name }

// Path returns this subsystem's full slash-joined path from the root.
func (h *SubsystemHandle) Path() string { return h.node.path }
