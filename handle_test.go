package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRootHandle() *SubsystemHandle {
	root := newNode("", "", nil, newRootToken(), false, false, nopLogger{})
	return &SubsystemHandle{node: root, logger: nopLogger{}}
}

func TestHandle_StartAssignsPath(t *testing.T) {
	root := newRootHandle()

	ns, err := root.Start(NewSubsystem("a", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "/a", ns.Path())
	assert.Equal(t, "a", ns.Name())

	root.RequestGlobalShutdown()
	require.True(t, closedWithin(t, ns.node.waitFinished(), time.Second))
}

func TestHandle_StartAcceptsNoContextShapes(t *testing.T) {
	root := newRootHandle()

	called := false
	ns, err := root.Start(NewSubsystem("plain", func() error {
		called = true
		return nil
	}))
	require.NoError(t, err)
	require.True(t, closedWithin(t, ns.node.waitFinished(), time.Second))
	assert.True(t, called)

	var seenHandle *SubsystemHandle
	ns2, err := root.Start(NewSubsystem("with-handle", func(h *SubsystemHandle) error {
		seenHandle = h
		return nil
	}))
	require.NoError(t, err)
	require.True(t, closedWithin(t, ns2.node.waitFinished(), time.Second))
	require.NotNil(t, seenHandle)
	assert.Equal(t, "with-handle", seenHandle.Name())
}

func TestHandle_StartAfterSealReturnsAlreadyFinished(t *testing.T) {
	root := newRootHandle()

	var aHandle *SubsystemHandle
	ns, err := root.Start(NewSubsystem("a", func(ctx context.Context, h *SubsystemHandle) error {
		aHandle = h
		return nil
	}))
	require.NoError(t, err)
	require.True(t, closedWithin(t, ns.node.waitFinished(), time.Second))

	// a's runner sealed a's node before marking it finished.
	_, err = aHandle.Start(NewSubsystem("late", func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrAlreadyFinished)
}

func TestHandle_OnShutdownRequestedAndIsShutdownRequested(t *testing.T) {
	root := newRootHandle()
	assert.False(t, root.IsShutdownRequested())

	select {
	case <-root.OnShutdownRequested():
		t.Fatal("should not fire before shutdown")
	default:
	}

	root.RequestShutdown()
	assert.True(t, root.IsShutdownRequested())
	require.True(t, closedWithin(t, root.OnShutdownRequested(), time.Second))
}

func TestHandle_RequestGlobalShutdownReachesRootFromDeepChild(t *testing.T) {
	root := newRootHandle()
	var mid, leaf *SubsystemHandle

	midNS, err := root.Start(NewSubsystem("mid", func(ctx context.Context, h *SubsystemHandle) error {
		mid = h
		leafNS, err := h.Start(NewSubsystem("leaf", func(ctx context.Context, h *SubsystemHandle) error {
			leaf = h
			<-h.OnShutdownRequested()
			return nil
		}))
		require.NoError(t, err)
		_ = leafNS
		<-h.OnShutdownRequested()
		return nil
	}))
	require.NoError(t, err)
	_ = midNS

	time.Sleep(20 * time.Millisecond)
	require.NotNil(t, leaf)

	leaf.RequestGlobalShutdown()

	assert.True(t, root.IsShutdownRequested())
	assert.True(t, mid.IsShutdownRequested())
}

func TestHandle_InitiatePartialShutdown(t *testing.T) {
	root := newRootHandle()

	c1Started := make(chan struct{})
	c1, err := root.Start(NewSubsystem("c1", func(ctx context.Context, h *SubsystemHandle) error {
		close(c1Started)
		<-h.OnShutdownRequested()
		return nil
	}))
	require.NoError(t, err)

	c2Finished := false
	_, err = root.Start(NewSubsystem("c2", func(ctx context.Context, h *SubsystemHandle) error {
		<-h.OnShutdownRequested()
		c2Finished = true
		return nil
	}))
	require.NoError(t, err)

	<-c1Started

	require.NoError(t, root.InitiatePartialShutdown(context.Background(), c1))

	require.True(t, c1.node.isFinished())
	assert.False(t, root.IsShutdownRequested())
	assert.False(t, c2Finished)
}

func TestHandle_InitiatePartialShutdown_NotFound(t *testing.T) {
	rootA := newRootHandle()
	rootB := newRootHandle()

	foreign, err := rootB.Start(NewSubsystem("x", func(ctx context.Context) error { return nil }))
	require.NoError(t, err)

	err = rootA.InitiatePartialShutdown(context.Background(), foreign)
	var psErr *PartialShutdownError
	require.ErrorAs(t, err, &psErr)
	assert.ErrorIs(t, psErr.Err, ErrSubsystemNotFound)
}

func TestHandle_InitiatePartialShutdown_AlreadyShuttingDown(t *testing.T) {
	root := newRootHandle()
	ns, err := root.Start(NewSubsystem("a", func(ctx context.Context) error { return nil }))
	require.NoError(t, err)

	root.RequestGlobalShutdown()

	err = root.InitiatePartialShutdown(context.Background(), ns)
	var psErr *PartialShutdownError
	require.ErrorAs(t, err, &psErr)
	assert.ErrorIs(t, psErr.Err, ErrAlreadyShuttingDown)
}

func TestHandle_InitiatePartialShutdown_ReportsChildFailure(t *testing.T) {
	root := newRootHandle()
	boom := errors.New("boom")

	ns, err := root.Start(NewSubsystem("a", func(ctx context.Context) error {
		return boom
	}, WithDetached()))
	require.NoError(t, err)
	require.True(t, closedWithin(t, ns.node.waitFinished(), time.Second))

	err = root.InitiatePartialShutdown(context.Background(), ns)
	require.Error(t, err)
	var psErr *PartialShutdownError
	require.ErrorAs(t, err, &psErr)
	var gerr *GracefulShutdownError
	require.ErrorAs(t, psErr.Err, &gerr)
	require.Len(t, gerr.Failed, 1)
	assert.Contains(t, gerr.Failed[0].Error(), "boom")
}

func TestHandle_CreateCancellationToken(t *testing.T) {
	root := newRootHandle()
	ctx := root.CreateCancellationToken()

	select {
	case <-ctx.Done():
		t.Fatal("should not be cancelled yet")
	default:
	}

	root.RequestShutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("token never cancelled")
	}
}
