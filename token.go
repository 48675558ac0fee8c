package shutdown

import "sync"

// token is one node of the cancellation tree. It exposes two independent,
// monotone edges: local (this node's own subtree is stopping) and global
// (an ancestor triggered shutdown and it reached this node). Both edges feed
// the same "done" channel, closed exactly once, so a waiter only ever cares
// about the union of the two.
//
// parent is a read-only back-reference recorded at construction. No token
// operation reads it: upward escalation walks node parents instead (see
// escalate in runner.go), and the token never mutates its parent's fields.
type token struct {
	mu       sync.Mutex
	parent   *token
	children []*token

	local  bool
	global bool

	closed bool
	done   chan struct{}
}

// newRootToken creates a standalone root token with no parent.
func newRootToken() *token {
	return &token{done: make(chan struct{})}
}

// newChildToken creates a token registered as a child of parent. If parent
// is already shut down (local or global edge), the child is born already
// globally shut down - this check happens under the parent's lock so there
// is no window where a child could be created after that shutdown without
// observing it.
func newChildToken(parent *token) *token {
	child := &token{parent: parent, done: make(chan struct{})}

	parent.mu.Lock()
	parent.children = append(parent.children, child)
	bornGlobal := parent.local || parent.global
	parent.mu.Unlock()

	if bornGlobal {
		child.triggerGlobalFromParent()
	}

	return child
}

// triggerLocal marks this token's local edge and cascades global shutdown to
// every descendant. A no-op if local shutdown was already triggered.
func (t *token) triggerLocal() {
	t.mu.Lock()
	if t.local {
		t.mu.Unlock()
		return
	}
	t.local = true
	t.closeDone()
	children := append([]*token(nil), t.children...)
	t.mu.Unlock()

	for _, c := range children {
		c.triggerGlobalFromParent()
	}
}

// triggerGlobalFromParent marks this token's global edge (invoked when an
// ancestor's local or global shutdown reaches this node) and recurses into
// children. A no-op if global shutdown already reached this token.
func (t *token) triggerGlobalFromParent() {
	t.mu.Lock()
	if t.global {
		t.mu.Unlock()
		return
	}
	t.global = true
	t.closeDone()
	children := append([]*token(nil), t.children...)
	t.mu.Unlock()

	for _, c := range children {
		c.triggerGlobalFromParent()
	}
}

// closeDone closes the done channel exactly once. Caller must hold t.mu.
func (t *token) closeDone() {
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

// isShutdownRequested reports whether either edge is set.
func (t *token) isShutdownRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local || t.global
}

// awaitShutdown returns the channel that closes once this token's shutdown
// is requested. It is shared across all callers and cancellation-safe: a
// caller that abandons its select on this channel leaves nothing to clean
// up, since the channel is never private to a single waiter.
func (t *token) awaitShutdown() <-chan struct{} {
	return t.done
}
