package shutdown

import (
	"context"
	"fmt"
)

// SubsystemFunc describes the function signatures that can be used as the
// body of a subsystem. A subsystem that has no use for its own handle (a
// leaf that only ever reacts to context cancellation) can be written
// without one; anything that wants to start children, query shutdown state,
// or initiate a partial shutdown takes the handle. Either shape can also
// drop the context argument entirely, for a subsystem body with no use for
// cancellation at all (e.g. one that only ever blocks on
// SubsystemHandle.OnShutdownRequested).
type SubsystemFunc interface {
	func(context.Context) error | func(context.Context, *SubsystemHandle) error | func() error | func(*SubsystemHandle) error
}

// runnerFunc is the uniform shape every subsystem body is erased to before
// it reaches the Runner.
type runnerFunc func(context.Context, *SubsystemHandle) error

func adaptSubsystemFunc[F SubsystemFunc](fn F) runnerFunc {
	if f, ok := any(fn).(func(context.Context) error); ok {
		return func(ctx context.Context, _ *SubsystemHandle) error { return f(ctx) }
	}
	if f, ok := any(fn).(func(context.Context, *SubsystemHandle) error); ok {
		return f
	}
	if f, ok := any(fn).(func() error); ok {
		return func(context.Context, *SubsystemHandle) error { return f() }
	}
	if f, ok := any(fn).(func(*SubsystemHandle) error); ok {
		return func(_ context.Context, h *SubsystemHandle) error { return f(h) }
	}
	panic(fmt.Sprintf("unexpected function signature for subsystem: %T", fn))
}

// SubsystemBuilder carries everything SubsystemHandle.Start needs to spawn a
// child subsystem. Construct one with NewSubsystem and the With* options.
type SubsystemBuilder struct {
	name             string
	run              runnerFunc
	detached         bool
	shutdownOnFinish bool
}

// SubsystemOption configures a SubsystemBuilder.
type SubsystemOption func(*SubsystemBuilder)

// WithDetached marks the subsystem as detached: its failure will not
// escalate global shutdown to its parent. The failure surfaces only through
// the NestedSubsystem returned by Start, or through a nested Toplevel.
func WithDetached() SubsystemOption {
	return func(b *SubsystemBuilder) { b.detached = true }
}

// WithShutdownOnFinish marks the subsystem so that, if it returns
// successfully, local shutdown of its own subtree is requested - modeling a
// leaf-driven shutdown where one task's natural completion should wind down
// whatever else it started.
func WithShutdownOnFinish() SubsystemOption {
	return func(b *SubsystemBuilder) { b.shutdownOnFinish = true }
}

// NewSubsystem builds a SubsystemBuilder for use with SubsystemHandle.Start.
//
// Accepted function signatures:
//
//	func(context.Context) error
//	func(context.Context, *SubsystemHandle) error
//	func() error
//	func(*SubsystemHandle) error
func NewSubsystem[F SubsystemFunc](name string, fn F, opts ...SubsystemOption) SubsystemBuilder {
	b := SubsystemBuilder{name: name, run: adaptSubsystemFunc(fn)}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}
