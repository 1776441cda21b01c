// ABOUTME: BindServer and BindServerList: the gateway's registry of bound backends
// ABOUTME: Binds through a Dialer, probes liveness in parallel, and picks the least busy entry

package registry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/recgate/internal/metrics"
	"github.com/2389/recgate/internal/service"
)

// ErrNoBackend is returned when a request finds no bound backend.
var ErrNoBackend = errors.New("no backend bound")

// Backend is a bound backend connection.
type Backend interface {
	service.Service
	Watch(obs service.Observer) (stop func(), err error)
	Close() error
}

// Dialer opens a Backend for a RemoteInfo, validating its credentials.
type Dialer interface {
	Dial(ctx context.Context, info service.RemoteInfo) (Backend, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, info service.RemoteInfo) (Backend, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, info service.RemoteInfo) (Backend, error) {
	return f(ctx, info)
}

// BindServer is one bound backend.
type BindServer struct {
	info      service.RemoteInfo
	backend   Backend
	stopWatch func()
	boundAt   time.Time
	once      sync.Once
}

// Info returns the endpoint and credentials of the entry.
func (b *BindServer) Info() service.RemoteInfo { return b.info }

// Backend returns the live backend client.
func (b *BindServer) Backend() Backend { return b.backend }

// BoundAt returns when the entry was bound.
func (b *BindServer) BoundAt() time.Time { return b.boundAt }

// Alive reports whether the backend answers a liveness probe.
func (b *BindServer) Alive(ctx context.Context) bool {
	return b.backend.Ping(ctx) == nil
}

// Activity returns the backend's current load.
func (b *BindServer) Activity(ctx context.Context) (service.Activity, error) {
	return b.backend.Activity(ctx)
}

// Unbind stops the event watch and closes the client. Safe to call twice.
func (b *BindServer) Unbind() {
	b.once.Do(func() {
		if b.stopWatch != nil {
			b.stopWatch()
		}
		_ = b.backend.Close()
	})
}

// Option configures a BindServerList.
type Option func(*BindServerList)

// WithProbeTimeout bounds each liveness probe made by Bind and Prune.
func WithProbeTimeout(d time.Duration) Option {
	return func(l *BindServerList) { l.probeTimeout = d }
}

// WithName labels the registry's bound-backends gauge.
func WithName(name string) Option {
	return func(l *BindServerList) { l.name = name }
}

// BindServerList is the ordered registry of bound backends.
type BindServerList struct {
	name    string
	mu      sync.RWMutex
	servers []*BindServer

	opMu         sync.Mutex
	dialer       Dialer
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewBindServerList creates an empty registry that binds through dialer.
func NewBindServerList(dialer Dialer, logger *slog.Logger, opts ...Option) *BindServerList {
	if logger == nil {
		logger = slog.Default()
	}
	l := &BindServerList{
		name:   "default",
		dialer: dialer,
		logger: logger.With("component", "registry"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Size returns the number of bound backends.
func (l *BindServerList) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.servers)
}

// Get returns the entry at i, or nil when i is out of range.
func (l *BindServerList) Get(i int) *BindServer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.servers) {
		return nil
	}
	return l.servers[i]
}

// First returns the earliest bound entry, or nil.
func (l *BindServerList) First() *BindServer {
	return l.Get(0)
}

// Servers returns a snapshot of the entries in bind order.
func (l *BindServerList) Servers() []*BindServer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.servers)
}

// IndexOf returns the position of the entry for host and port, or -1.
func (l *BindServerList) IndexOf(host string, port int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(host, port)
}

func (l *BindServerList) indexLocked(host string, port int) int {
	return slices.IndexFunc(l.servers, func(s *BindServer) bool {
		return s.info.SameEndpoint(host, port)
	})
}

// Bind binds the backend described by info. An existing live entry for the
// same endpoint is kept; a dead one is replaced. Failures are logged and
// reported as false.
func (l *BindServerList) Bind(ctx context.Context, info service.RemoteInfo, obs service.Observer) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	return l.bindLocked(ctx, info, obs)
}

// BindAll binds every entry of infos and returns how many are bound.
func (l *BindServerList) BindAll(ctx context.Context, infos []service.RemoteInfo, obs service.Observer) int {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	n := 0
	for _, info := range infos {
		if l.bindLocked(ctx, info, obs) {
			n++
		}
	}
	return n
}

// Rebind drops every entry and binds info alone.
func (l *BindServerList) Rebind(ctx context.Context, info service.RemoteInfo, obs service.Observer) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.unbindAllLocked()
	return l.bindLocked(ctx, info, obs)
}

// Unbind removes the entry for host and port.
func (l *BindServerList) Unbind(host string, port int) bool {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	i := l.indexLocked(host, port)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	s := l.servers[i]
	l.servers = slices.Delete(l.servers, i, i+1)
	l.updateGaugeLocked()
	l.mu.Unlock()

	s.Unbind()
	l.logger.Info("backend unbound", "backend", s.info.String())
	return true
}

// UnbindAll removes every entry.
func (l *BindServerList) UnbindAll() {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	l.unbindAllLocked()
}

// Prune probes every entry in parallel and removes the ones that fail. It
// returns the number removed.
func (l *BindServerList) Prune(ctx context.Context) int {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	snapshot := l.Servers()
	dead := make([]bool, len(snapshot))

	var g errgroup.Group
	for i, s := range snapshot {
		g.Go(func() error {
			dead[i] = !l.probe(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	var removed []*BindServer
	for i, s := range snapshot {
		if dead[i] {
			removed = append(removed, s)
		}
	}
	if len(removed) == 0 {
		return 0
	}

	l.mu.Lock()
	l.servers = slices.DeleteFunc(l.servers, func(s *BindServer) bool {
		return slices.Contains(removed, s)
	})
	l.updateGaugeLocked()
	l.mu.Unlock()

	for _, s := range removed {
		s.Unbind()
		l.logger.Warn("pruned unreachable backend", "backend", s.info.String())
	}
	metrics.PrunedTotal.Add(float64(len(removed)))
	return len(removed)
}

// IdleServer returns the entry reporting the lowest activity. Ties go to the
// earliest bound entry; entries whose activity cannot be read are skipped.
func (l *BindServerList) IdleServer(ctx context.Context) *BindServer {
	var (
		best     *BindServer
		bestLoad service.Activity
	)
	for _, s := range l.Servers() {
		load, err := s.Activity(ctx)
		if err != nil {
			l.logger.Debug("activity query failed", "backend", s.info.String(), "error", err)
			continue
		}
		if best == nil || load.Compare(bestLoad) < 0 {
			best, bestLoad = s, load
		}
	}
	return best
}

func (l *BindServerList) bindLocked(ctx context.Context, info service.RemoteInfo, obs service.Observer) bool {
	l.mu.RLock()
	i := l.indexLocked(info.Host, info.Port)
	var existing *BindServer
	if i >= 0 {
		existing = l.servers[i]
	}
	l.mu.RUnlock()

	if existing != nil {
		if l.probe(ctx, existing) {
			return true
		}
		l.logger.Warn("replacing dead backend", "backend", info.String())
		l.mu.Lock()
		l.servers = slices.DeleteFunc(l.servers, func(s *BindServer) bool { return s == existing })
		l.updateGaugeLocked()
		l.mu.Unlock()
		existing.Unbind()
	}

	backend, err := l.dialer.Dial(ctx, info)
	if err != nil {
		metrics.BindFailuresTotal.Inc()
		l.logger.Warn("bind failed", "backend", info.String(), "error", err)
		return false
	}

	s := &BindServer{info: info, backend: backend, boundAt: time.Now()}
	if obs != nil {
		stop, err := backend.Watch(obs)
		if err != nil {
			l.logger.Debug("backend events unavailable", "backend", info.String(), "error", err)
		} else {
			s.stopWatch = stop
		}
	}

	l.mu.Lock()
	l.servers = append(l.servers, s)
	l.updateGaugeLocked()
	total := len(l.servers)
	l.mu.Unlock()

	l.logger.Info("backend bound", "backend", info.String(), "total_backends", total)
	return true
}

func (l *BindServerList) unbindAllLocked() {
	l.mu.Lock()
	old := l.servers
	l.servers = nil
	l.updateGaugeLocked()
	l.mu.Unlock()

	for _, s := range old {
		s.Unbind()
	}
}

func (l *BindServerList) probe(ctx context.Context, s *BindServer) bool {
	if l.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.probeTimeout)
		defer cancel()
	}
	return s.Alive(ctx)
}

func (l *BindServerList) updateGaugeLocked() {
	metrics.BoundBackends.WithLabelValues(l.name).Set(float64(len(l.servers)))
}
