package shutdown

import (
	"sync"

	"github.com/google/uuid"
)

// outcomeKind classifies how a subsystem's run ended.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeUserError
	outcomePanic
	outcomeCancelled
)

// outcome is the write-once result recorded for a finished subsystem.
type outcome struct {
	kind outcomeKind
	err  error // set for outcomeUserError (the user error), outcomePanic (the SubsystemPanickedError) and outcomeCancelled (ErrCancelledByShutdown)
}

// node is one subsystem in the tree. Exactly one node exists per started
// subsystem; the root node belongs to the Toplevel.
type node struct {
	id   uuid.UUID
	name string
	path string

	token  *token
	parent *node

	mu       sync.Mutex
	children []*node // insertion order, for deterministic reporting
	sealed   bool    // true once this node's own runner began wind-down; blocks new children

	detached         bool
	shutdownOnFinish bool

	result       *outcome
	finished     bool
	finishedOnce sync.Once
	finishedCh   chan struct{}

	logger Logger
}

func newNode(name, path string, parent *node, tok *token, detached, shutdownOnFinish bool, logger Logger) *node {
	return &node{
		id:               uuid.New(),
		name:             name,
		path:             path,
		token:            tok,
		parent:           parent,
		detached:         detached,
		shutdownOnFinish: shutdownOnFinish,
		finishedCh:       make(chan struct{}),
		logger:           logger,
	}
}

// addChild registers a new child node. No new children may be attached once
// this node has sealed (its own runner has begun wind-down); it returns
// ErrAlreadyFinished in that case.
func (n *node) addChild(child *node) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sealed {
		return ErrAlreadyFinished
	}
	n.children = append(n.children, child)
	return nil
}

// seal prevents any further children from being added. Called by the
// Runner right before it begins waiting for existing children to drain.
func (n *node) seal() {
	n.mu.Lock()
	n.sealed = true
	n.mu.Unlock()
}

// snapshotChildren returns a stable copy of the children slice in
// insertion order.
func (n *node) snapshotChildren() []*node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*node(nil), n.children...)
}

// setResult records the outcome and flips finished exactly once.
func (n *node) setResult(o outcome) {
	n.finishedOnce.Do(func() {
		n.mu.Lock()
		n.result = &o
		n.finished = true
		n.mu.Unlock()
		close(n.finishedCh)
	})
}

// isFinished reports the current finished snapshot.
func (n *node) isFinished() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finished
}

// getResult returns the recorded outcome, or nil if not finished yet.
func (n *node) getResult() *outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result
}

// waitFinished returns the channel that closes once this node is finished.
func (n *node) waitFinished() <-chan struct{} {
	return n.finishedCh
}

func childPath(parentPath, name string) string {
	if parentPath == "" {
		return "/" + name
	}
	return parentPath + "/" + name
}
