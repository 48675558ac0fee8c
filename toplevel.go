package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Toplevel is the root harness for one shutdown domain. It owns either the
// root of the whole subsystem tree (NewToplevel) or the root of a detached
// subtree scoped to one subsystem (SubsystemHandle.NewNestedToplevel), and
// drives that subtree's JoinCollector once shutdown is requested.
type Toplevel struct {
	node   *node
	Handle *SubsystemHandle
	logger Logger
	nested bool

	sigOnce sync.Once
	sigStop func()
}

// ToplevelOption configures a Toplevel at construction time.
type ToplevelOption func(*toplevelConfig)

type toplevelConfig struct {
	logger Logger
}

// WithLogger overrides the Logger used for this Toplevel's own diagnostics
// and inherited by every subsystem started under it.
func WithLogger(logger Logger) ToplevelOption {
	return func(c *toplevelConfig) { c.logger = logger }
}

// NewToplevel creates the root of a new subsystem tree and immediately runs
// init with a SubsystemHandle bound to the root, so init can start the
// program's top-level subsystems before CatchSignals or
// HandleShutdownRequests are called.
func NewToplevel(init func(*SubsystemHandle), opts ...ToplevelOption) *Toplevel {
	cfg := toplevelConfig{logger: NewDefaultLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := effectiveLogger(cfg.logger)

	root := newNode("", "", nil, newRootToken(), false, false, logger)
	handle := &SubsystemHandle{node: root, logger: logger}

	tl := &Toplevel{node: root, Handle: handle, logger: logger}
	if init != nil {
		init(handle)
	}
	return tl
}

// NewNestedToplevel attaches a detached child of h's subsystem and returns
// a Toplevel scoped to that subtree: its failures never escalate to h's own
// subsystem, and it drains on its own timeout, independent of the parent's.
// This is the mechanism behind partial program shutdown domains - a
// subtree that can fail and be collected on its own without bringing down
// the rest of the tree.
//
// h's own subsystem still owns the nested node as a child: its runner will
// not consider itself finished until the nested node finishes too, so
// HandleShutdownRequests must be called on the returned Toplevel (directly
// or from a goroutine h's subsystem waits on) before h's subsystem returns.
func (h *SubsystemHandle) NewNestedToplevel(name string, init func(*SubsystemHandle), opts ...ToplevelOption) *Toplevel {
	cfg := toplevelConfig{logger: h.logger}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := effectiveLogger(cfg.logger)

	tok := newChildToken(h.node.token)
	child := newNode(name, childPath(h.node.path, name), h.node, tok, true, false, logger)
	_ = h.node.addChild(child) // a sealed parent just means the nested domain won't be auto-joined; it remains usable standalone.

	handle := &SubsystemHandle{node: child, logger: logger}
	tl := &Toplevel{node: child, Handle: handle, logger: logger, nested: true}
	if init != nil {
		init(handle)
	}
	return tl
}

// CatchSignals installs a listener for sig (default: SIGINT and SIGTERM)
// that requests global shutdown of this Toplevel's root on the first
// delivery. Subsequent deliveries during the shutdown wait are logged and
// otherwise ignored by the core - triggerLocal is idempotent, so there is
// nothing left for a second signal to do here.
func (t *Toplevel) CatchSignals(sig ...os.Signal) *Toplevel {
	if len(sig) == 0 {
		sig = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)

	t.sigOnce.Do(func() {
		t.sigStop = func() { signal.Stop(ch) }
		go func() {
			first := true
			for range ch {
				if first {
					first = false
					t.logger.Info("received shutdown signal, requesting global shutdown")
					t.node.token.triggerLocal()
				} else {
					t.logger.Info("received additional shutdown signal, shutdown already in progress")
				}
			}
		}()
	})

	return t
}

// HandleShutdownRequests blocks until shutdown is requested - by
// CatchSignals, by a subsystem calling RequestShutdown/RequestGlobalShutdown,
// by a failing child escalating, or by ctx being done - then collects the
// tree within timeout. It returns nil if every subsystem returned
// successfully within the deadline, or a *GracefulShutdownError otherwise.
func (t *Toplevel) HandleShutdownRequests(ctx context.Context, timeout time.Duration) error {
	select {
	case <-t.node.token.awaitShutdown():
	case <-ctx.Done():
		t.node.token.triggerLocal()
	}

	if t.sigStop != nil {
		t.sigStop()
	}

	gerr := runJoinCollector(ctx, t.node, timeout)

	if t.nested {
		if gerr != nil {
			t.node.setResult(outcome{kind: outcomeUserError, err: gerr})
		} else {
			t.node.setResult(outcome{kind: outcomeSuccess})
		}
	}

	if gerr == nil {
		return nil
	}
	return gerr
}
