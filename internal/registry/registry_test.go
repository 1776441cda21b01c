// ABOUTME: Tests for the backend registry
// ABOUTME: Uses in-memory stub backends behind a fake dialer

package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/recgate/internal/metrics"
	"github.com/2389/recgate/internal/service"
	"github.com/2389/recgate/internal/service/servicetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	*servicetest.Stub
	closed   atomic.Bool
	watching atomic.Bool
	obs      service.Observer
}

func (f *fakeBackend) Watch(obs service.Observer) (func(), error) {
	f.watching.Store(true)
	f.obs = obs
	return func() { f.watching.Store(false) }, nil
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

// fakeDialer hands out one fakeBackend per port; ports listed in refuse fail.
type fakeDialer struct {
	mu       sync.Mutex
	backends map[int]*fakeBackend
	refuse   map[int]bool
	dials    int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{backends: make(map[int]*fakeBackend), refuse: make(map[int]bool)}
}

func (d *fakeDialer) Dial(_ context.Context, info service.RemoteInfo) (Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.refuse[info.Port] {
		return nil, errors.New("connection refused")
	}
	b := &fakeBackend{Stub: servicetest.New(fmt.Sprintf("b%d", info.Port))}
	d.backends[info.Port] = b
	return b, nil
}

func (d *fakeDialer) backend(port int) *fakeBackend {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backends[port]
}

func info(port int) service.RemoteInfo {
	return service.RemoteInfo{Host: "127.0.0.1", Port: port, Account: "admin", Password: "admin"}
}

func TestBind_AddsAndDoesNotDuplicate(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	ctx := context.Background()

	require.True(t, l.Bind(ctx, info(9001), nil))
	assert.Equal(t, 1, l.Size())
	assert.Equal(t, 0, l.IndexOf("127.0.0.1", 9001))

	require.True(t, l.Bind(ctx, info(9001), nil))
	assert.Equal(t, 1, l.Size())
	assert.Equal(t, 1, d.dials, "live entry kept without redialing")
}

func TestBind_ReplacesDeadEntry(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	ctx := context.Background()

	require.True(t, l.Bind(ctx, info(9001), nil))
	first := d.backend(9001)
	first.SetPingErr(errors.New("down"))

	require.True(t, l.Bind(ctx, info(9001), nil))
	assert.Equal(t, 1, l.Size())
	assert.True(t, first.closed.Load())
	assert.NotSame(t, first, l.First().Backend())
}

func TestBind_FailureIsReportedNotPropagated(t *testing.T) {
	d := newFakeDialer()
	d.refuse[9002] = true
	l := NewBindServerList(d, testLogger())

	assert.False(t, l.Bind(context.Background(), info(9002), nil))
	assert.Equal(t, 0, l.Size())
	assert.Equal(t, -1, l.IndexOf("127.0.0.1", 9002))
}

func TestBindAll_CountsSuccesses(t *testing.T) {
	d := newFakeDialer()
	d.refuse[9003] = true
	l := NewBindServerList(d, testLogger())

	n := l.BindAll(context.Background(), []service.RemoteInfo{info(9001), info(9002), info(9003)}, nil)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, l.Size())
}

func TestBind_StartsAndStopsWatch(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	obs := service.ObserverFunc(func(service.Event) {})

	require.True(t, l.Bind(context.Background(), info(9001), obs))
	b := d.backend(9001)
	assert.True(t, b.watching.Load())

	assert.True(t, l.Unbind("127.0.0.1", 9001))
	assert.False(t, b.watching.Load())
	assert.True(t, b.closed.Load())
	assert.False(t, l.Unbind("127.0.0.1", 9001))
}

func TestRebind_LeavesSingleEntry(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	ctx := context.Background()
	l.BindAll(ctx, []service.RemoteInfo{info(9001), info(9002)}, nil)

	require.True(t, l.Rebind(ctx, info(9003), nil))
	assert.Equal(t, 1, l.Size())
	assert.Equal(t, 9003, l.First().Info().Port)
	assert.True(t, d.backend(9001).closed.Load())
	assert.True(t, d.backend(9002).closed.Load())
}

func TestPrune_RemovesExactlyFailingEntries(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	ctx := context.Background()
	ports := []int{9001, 9002, 9003, 9004, 9005}
	for _, p := range ports {
		require.True(t, l.Bind(ctx, info(p), nil))
	}

	d.backend(9002).SetPingErr(errors.New("down"))
	d.backend(9004).SetPingErr(errors.New("down"))

	assert.Equal(t, 2, l.Prune(ctx))
	assert.Equal(t, 3, l.Size())
	var left []int
	for _, s := range l.Servers() {
		left = append(left, s.Info().Port)
	}
	assert.Equal(t, []int{9001, 9003, 9005}, left)
	assert.Equal(t, 0, l.Prune(ctx))
}

func TestIdleServer_PicksLowestActivity(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	ctx := context.Background()
	for _, p := range []int{9001, 9002, 9003} {
		require.True(t, l.Bind(ctx, info(p), nil))
	}
	d.backend(9001).SetActivity(5)
	d.backend(9002).SetActivity(2)
	d.backend(9003).SetActivity(8)

	assert.Equal(t, 9002, l.IdleServer(ctx).Info().Port)
}

func TestIdleServer_TiesGoToEarliest(t *testing.T) {
	d := newFakeDialer()
	l := NewBindServerList(d, testLogger())
	ctx := context.Background()
	for _, p := range []int{9001, 9002, 9003} {
		require.True(t, l.Bind(ctx, info(p), nil))
		d.backend(p).SetActivity(3)
	}

	assert.Equal(t, 9001, l.IdleServer(ctx).Info().Port)
}

func TestIdleServer_EmptyIsNil(t *testing.T) {
	l := NewBindServerList(newFakeDialer(), testLogger())
	assert.Nil(t, l.IdleServer(context.Background()))
	assert.Nil(t, l.First())
}

func TestBoundGaugeIsPerRegistry(t *testing.T) {
	ctx := context.Background()
	a := NewBindServerList(newFakeDialer(), testLogger(), WithName("gauge-a"))
	b := NewBindServerList(newFakeDialer(), testLogger(), WithName("gauge-b"))

	a.BindAll(ctx, []service.RemoteInfo{info(9101), info(9102)}, nil)
	b.Bind(ctx, info(9103), nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BoundBackends.WithLabelValues("gauge-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BoundBackends.WithLabelValues("gauge-b")))

	b.UnbindAll()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BoundBackends.WithLabelValues("gauge-a")))
	assert.Zero(t, testutil.ToFloat64(metrics.BoundBackends.WithLabelValues("gauge-b")))
}
