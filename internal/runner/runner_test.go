// ABOUTME: Tests for the Runner lifecycle primitive
// ABOUTME: Covers start/pause/resume/stop transitions, hooks, failures and force stop

package runner

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingTask returns a task that increments n and yields briefly.
func countingTask(n *atomic.Int64) func() error {
	return func() error {
		n.Add(1)
		time.Sleep(time.Millisecond)
		return nil
	}
}

func assertInvariants(t *testing.T, r *Runner) {
	t.Helper()
	if r.IsPaused() {
		assert.True(t, r.IsStarted(), "paused implies started")
	}
	assert.Equal(t, r.State() != StateStopped, r.IsStarted())
}

func TestRunner_StartStop(t *testing.T) {
	var n atomic.Int64
	var cleared atomic.Int32
	r := New("count", countingTask(&n), WithLogger(testLogger()), WithClear(func() { cleared.Add(1) }))

	assert.False(t, r.IsStarted())
	require.True(t, r.Start())
	assert.True(t, r.IsStarted())
	assert.True(t, r.IsRunning())
	assertInvariants(t, r)

	assert.Eventually(t, func() bool { return n.Load() > 3 }, time.Second, time.Millisecond)

	require.True(t, r.Stop())
	assert.False(t, r.IsStarted())
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, int32(1), cleared.Load())
	assertInvariants(t, r)

	// Stopping twice is a no-op.
	assert.False(t, r.Stop())
	assert.Equal(t, int32(1), cleared.Load())
}

func TestRunner_StartTwiceIsNoop(t *testing.T) {
	var n atomic.Int64
	r := New("count", countingTask(&n), WithLogger(testLogger()))
	require.True(t, r.Start())
	defer r.Stop()

	assert.False(t, r.Start())
	assert.True(t, r.IsRunning())
}

func TestRunner_Restart(t *testing.T) {
	var n atomic.Int64
	r := New("count", countingTask(&n), WithLogger(testLogger()))

	require.True(t, r.Start())
	require.True(t, r.Stop())
	require.True(t, r.Start())
	defer r.Stop()

	before := n.Load()
	assert.Eventually(t, func() bool { return n.Load() > before }, time.Second, time.Millisecond)
}

func TestRunner_PauseResume(t *testing.T) {
	var n atomic.Int64
	r := New("count", countingTask(&n), WithLogger(testLogger()))
	require.True(t, r.Start())
	defer r.Stop()

	require.True(t, r.Pause())
	assert.True(t, r.IsPaused())
	assert.False(t, r.IsRunning())
	assert.Equal(t, StatePaused, r.State())
	assertInvariants(t, r)

	frozen := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, n.Load(), "task must not run while paused")

	require.True(t, r.Resume())
	assert.False(t, r.IsPaused())
	assert.Eventually(t, func() bool { return n.Load() > frozen }, time.Second, time.Millisecond)
}

func TestRunner_PauseAndResumeNoopsOutsideValidStates(t *testing.T) {
	var n atomic.Int64
	r := New("count", countingTask(&n), WithLogger(testLogger()))

	assert.False(t, r.Pause(), "pause on stopped runner")
	assert.False(t, r.Resume(), "resume on stopped runner")

	require.True(t, r.Start())
	defer r.Stop()

	assert.False(t, r.Resume(), "resume on running runner")
	require.True(t, r.Pause())
	assert.False(t, r.Pause(), "pause on paused runner")
}

func TestRunner_PauseBlocksUntilCheckpoint(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	r := New("gated", func() error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
		return nil
	}, WithLogger(testLogger()))
	require.True(t, r.Start())
	<-entered

	paused := make(chan bool, 1)
	go func() { paused <- r.Pause() }()

	select {
	case <-paused:
		t.Fatal("Pause returned before the task reached its checkpoint")
	case <-time.After(30 * time.Millisecond):
	}

	close(gate)
	select {
	case ok := <-paused:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pause did not return after the task finished")
	}

	require.True(t, r.Stop())
}

func TestRunner_InterruptHook(t *testing.T) {
	wake := make(chan struct{}, 1)
	var interrupts atomic.Int32
	r := New("blocking", func() error {
		<-wake
		return nil
	}, WithLogger(testLogger()), WithInterrupt(func() {
		interrupts.Add(1)
		wake <- struct{}{}
	}))

	require.True(t, r.Start())
	require.True(t, r.Pause())
	require.True(t, r.Resume())
	require.True(t, r.Stop())

	assert.Equal(t, int32(2), interrupts.Load())
}

func TestRunner_StopFromPaused(t *testing.T) {
	var n atomic.Int64
	var cleared atomic.Bool
	r := New("count", countingTask(&n), WithLogger(testLogger()), WithClear(func() { cleared.Store(true) }))

	require.True(t, r.Start())
	require.True(t, r.Pause())
	require.True(t, r.Stop())

	assert.True(t, cleared.Load())
	assert.False(t, r.IsStarted())
	assert.False(t, r.IsPaused())
}

func TestRunner_TaskFailuresDoNotStopLoop(t *testing.T) {
	var n atomic.Int64
	r := New("flaky", func() error {
		switch n.Add(1) % 3 {
		case 0:
			panic("boom")
		case 1:
			return errors.New("transient")
		}
		return nil
	}, WithLogger(testLogger()))

	require.True(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool { return n.Load() > 10 }, time.Second, time.Millisecond)
	assert.True(t, r.IsRunning())
}

func TestRunner_HaltFromTask(t *testing.T) {
	var r *Runner
	var cleared atomic.Bool
	var n atomic.Int64
	r = New("once", func() error {
		if n.Add(1) == 3 {
			r.Halt()
		}
		return nil
	}, WithLogger(testLogger()), WithClear(func() { cleared.Store(true) }))

	require.True(t, r.Start())
	assert.Eventually(t, func() bool { return !r.IsStarted() }, time.Second, time.Millisecond)
	assert.True(t, cleared.Load())
	assert.Equal(t, int64(3), n.Load())
}

func TestRunner_ForceStopSkipsClear(t *testing.T) {
	hang := make(chan struct{})
	var cleared atomic.Bool
	r := New("hung", func() error {
		<-hang
		return nil
	}, WithLogger(testLogger()), WithClear(func() { cleared.Store(true) }))

	require.True(t, r.Start())
	r.ForceStop()

	assert.False(t, r.IsStarted())
	assert.Equal(t, StateStopped, r.State())

	// The abandoned goroutine finishes its task but must not clear.
	close(hang)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, cleared.Load())

	// A forced runner can be started again.
	require.True(t, r.Start())
	require.True(t, r.Stop())
	assert.True(t, cleared.Load())
}

func TestRunner_ForceStopReleasesBlockedStop(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	r := New("hung", func() error {
		<-hang
		return nil
	}, WithLogger(testLogger()))
	require.True(t, r.Start())

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return r.State() == StateStopRequested }, time.Second, time.Millisecond)
	r.ForceStop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop stayed blocked after ForceStop")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(42).String())
}
