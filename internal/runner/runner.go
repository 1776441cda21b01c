// ABOUTME: Generic start/pause/resume/stop worker loop executed on one goroutine
// ABOUTME: Uses a condition variable over an explicit state enum for pause acknowledgement

package runner

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Runner.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StatePauseRequested
	StatePaused
	StateStopRequested
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePauseRequested:
		return "pause_requested"
	case StatePaused:
		return "paused"
	case StateStopRequested:
		return "stop_requested"
	default:
		return "unknown"
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithClear sets the teardown hook run on the loop goroutine after it exits.
func WithClear(fn func()) Option {
	return func(r *Runner) { r.clear = fn }
}

// WithInterrupt sets the hook called after a pause or stop has been requested.
// It should unblock a task that is waiting on I/O.
func WithInterrupt(fn func()) Option {
	return func(r *Runner) { r.interrupt = fn }
}

// WithLogger sets the logger used for task failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// Runner repeatedly executes a task on a dedicated goroutine.
type Runner struct {
	name      string
	task      func() error
	clear     func()
	interrupt func()
	logger    *slog.Logger

	// ctl serializes Start, Pause, Resume and Stop.
	ctl sync.Mutex

	mu    sync.Mutex
	cond  *sync.Cond
	state State
	// gen identifies the current loop goroutine; ForceStop bumps it so an
	// abandoned goroutine exits silently if it ever returns.
	gen uint64

	started atomic.Bool
	paused  atomic.Bool
}

// New creates a stopped Runner for task.
func New(name string, task func() error, opts ...Option) *Runner {
	r := &Runner{
		name:   name,
		task:   task,
		logger: slog.Default(),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("runner", name)
	return r
}

// Name returns the runner name.
func (r *Runner) Name() string { return r.name }

// Start launches the loop goroutine. It returns false if the runner is
// already started. Start blocks until the goroutine has begun.
func (r *Runner) Start() bool {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.state != StateStopped {
		r.mu.Unlock()
		return false
	}
	r.gen++
	gen := r.gen
	r.state = StateRunning
	r.paused.Store(false)
	r.started.Store(true)
	r.mu.Unlock()

	begun := make(chan struct{})
	go r.loop(gen, begun)
	<-begun

	r.logger.Debug("runner started")
	return true
}

// Pause asks the loop to stop at its next checkpoint and blocks until it
// does. It returns false without effect unless the runner is running.
func (r *Runner) Pause() bool {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return false
	}
	r.state = StatePauseRequested
	gen := r.gen
	r.mu.Unlock()

	r.callInterrupt()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.gen == gen && r.state == StatePauseRequested {
		r.cond.Wait()
	}
	return r.gen == gen && r.state == StatePaused
}

// Resume wakes a paused loop. It returns false without effect unless the
// runner is paused.
func (r *Runner) Resume() bool {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return false
	}
	r.state = StateRunning
	r.paused.Store(false)
	r.cond.Broadcast()
	return true
}

// Stop asks the loop to exit after the current iteration and blocks until
// the goroutine has exited and the clear hook has run. It must not be called
// from the task itself; use Halt there.
func (r *Runner) Stop() bool {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return false
	}
	r.state = StateStopRequested
	gen := r.gen
	r.cond.Broadcast()
	r.mu.Unlock()

	r.callInterrupt()

	r.mu.Lock()
	for r.gen == gen && r.state != StateStopped {
		r.cond.Wait()
	}
	r.mu.Unlock()

	r.logger.Debug("runner stopped")
	return true
}

// Halt requests a stop without waiting for it. It is safe to call from the
// task, which then returns and lets the loop exit normally.
func (r *Runner) Halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRunning, StatePauseRequested, StatePaused:
		r.state = StateStopRequested
		r.cond.Broadcast()
	}
}

// ForceStop marks the runner stopped immediately without waiting for the
// loop goroutine. The goroutine is abandoned: if its task ever returns it
// exits without running the clear hook. Use only for a task that is hung.
func (r *Runner) ForceStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateStopped {
		return
	}
	r.gen++
	r.state = StateStopped
	r.paused.Store(false)
	r.started.Store(false)
	r.cond.Broadcast()
	r.logger.Warn("runner force stopped")
}

// IsStarted reports whether the runner is running or paused.
func (r *Runner) IsStarted() bool { return r.started.Load() }

// IsPaused reports whether the runner is paused.
func (r *Runner) IsPaused() bool { return r.paused.Load() }

// IsRunning reports whether the runner is started and not paused.
func (r *Runner) IsRunning() bool { return r.started.Load() && !r.paused.Load() }

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) loop(gen uint64, begun chan<- struct{}) {
	close(begun)
	for r.checkpoint(gen) {
		r.runTask()
	}
	r.finish(gen)
}

// checkpoint parks the loop while a pause is in effect and reports whether
// another iteration should run.
func (r *Runner) checkpoint(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.gen != gen {
			return false
		}
		switch r.state {
		case StatePauseRequested:
			r.state = StatePaused
			r.paused.Store(true)
			r.cond.Broadcast()
		case StatePaused:
			r.cond.Wait()
		case StateStopRequested, StateStopped:
			return false
		default:
			return true
		}
	}
}

func (r *Runner) finish(gen uint64) {
	r.mu.Lock()
	abandoned := r.gen != gen
	r.mu.Unlock()
	if abandoned {
		return
	}

	if r.clear != nil {
		r.safeCall("clear", r.clear)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.state = StateStopped
	r.paused.Store(false)
	r.started.Store(false)
	r.cond.Broadcast()
}

func (r *Runner) runTask() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("runner task panicked", "panic", p, "stack", string(debug.Stack()))
		}
	}()
	if err := r.task(); err != nil {
		r.logger.Error("runner task failed", "error", err)
	}
}

func (r *Runner) callInterrupt() {
	if r.interrupt != nil {
		r.safeCall("interrupt", r.interrupt)
	}
}

func (r *Runner) safeCall(hook string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("runner hook panicked", "hook", hook, "panic", p)
		}
	}()
	fn()
}
