// ABOUTME: Gateway server owning the client listener, delegators, registry and maintenance loop
// ABOUTME: Construction, backend selection, account validation and configuration swaps

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/delegator"
	"github.com/2389/recgate/internal/registry"
	"github.com/2389/recgate/internal/runner"
	"github.com/2389/recgate/internal/service"
	"github.com/2389/recgate/internal/service/remote"
)

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock driving the maintenance ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithDialer replaces the gRPC backend dialer.
func WithDialer(d registry.Dialer) Option {
	return func(s *Server) { s.dialer = d }
}

// WithExitFunc replaces os.Exit as the last step of Exit.
func WithExitFunc(fn func(code int)) Option {
	return func(s *Server) { s.exitFn = fn }
}

// Server is the recgate gateway.
type Server struct {
	id     string
	logger *slog.Logger
	clock  clockwork.Clock
	dialer registry.Dialer
	exitFn func(int)

	cfgMu     sync.RWMutex
	cfg       *config.Config
	policy    Policy
	validator *auth.Validator
	cache     *auth.ValidationCache

	reg *registry.BindServerList

	// ctl serializes Start, Pause, Resume and Stop.
	ctl sync.Mutex

	lnMu   sync.Mutex
	ln     net.Listener
	wakeMu sync.Mutex
	wakes  map[string]time.Time

	accept *runner.Runner
	maint  *runner.Runner
	ticker clockwork.Ticker
	poke   chan struct{}

	dmu        sync.Mutex
	delegators map[string]*delegator.Delegator

	observers *service.Observers
	hookMu    sync.Mutex
	exitHooks []func()

	httpMu     sync.Mutex
	httpServer *http.Server
	httpAddr   net.Addr

	closeOnce sync.Once
}

// New builds a stopped gateway for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	s := &Server{
		id:         uuid.New().String(),
		logger:     logger.With("component", "gateway"),
		clock:      clockwork.NewRealClock(),
		exitFn:     os.Exit,
		cfg:        cfg,
		wakes:      make(map[string]time.Time),
		poke:       make(chan struct{}, 1),
		delegators: make(map[string]*delegator.Delegator),
		observers:  service.NewObservers(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = remoteDialer(logger)
	}

	s.reg = registry.NewBindServerList(s.dialer, logger,
		registry.WithName(s.id),
		registry.WithProbeTimeout(cfg.Server.BackendTimeout),
	)
	s.policy = NewPolicy(cfg, s.reg, s.logger)
	s.validator, s.cache = newValidator(cfg, logger)
	s.ticker = s.clock.NewTicker(cfg.Server.TaskPeriod)

	s.accept = runner.New("accept", s.acceptOnce,
		runner.WithInterrupt(s.wakeAccept),
		runner.WithClear(s.closeListener),
		runner.WithLogger(s.logger),
	)
	s.maint = runner.New("maintenance", s.maintainOnce,
		runner.WithInterrupt(s.pokeMaintenance),
		runner.WithLogger(s.logger),
	)
	return s, nil
}

func remoteDialer(logger *slog.Logger) registry.Dialer {
	d := &remote.Dialer{Logger: logger}
	return registry.DialerFunc(func(ctx context.Context, info service.RemoteInfo) (registry.Backend, error) {
		c, err := d.Dial(ctx, info)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func newValidator(cfg *config.Config, logger *slog.Logger) (*auth.Validator, *auth.ValidationCache) {
	var cache *auth.ValidationCache
	if cfg.Account.CacheTTL > 0 {
		cache = auth.NewValidationCache(cfg.Account.CacheTTL, cfg.Account.CacheSize, nil)
	}
	local := auth.LocalAccount{
		Name:       cfg.Account.Name,
		Password:   cfg.Account.Password,
		Privileges: auth.Privileges(cfg.Account.Privileges),
	}
	return auth.NewValidator(local, cache, logger), cache
}

// ID returns the instance id of this gateway.
func (s *Server) ID() string { return s.id }

// Registry returns the backend registry.
func (s *Server) Registry() *registry.BindServerList { return s.reg }

// Addr returns the client listener address, or nil while stopped.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Observe registers obs for lifecycle events and returns its removal func.
func (s *Server) Observe(obs service.Observer) (remove func()) {
	return s.observers.Add(obs)
}

// OnExit registers fn to run first when Exit is called.
func (s *Server) OnExit(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.exitHooks = append(s.exitHooks, fn)
}

// Select picks the backend for one request under the current policy.
func (s *Server) Select(ctx context.Context) (service.Service, error) {
	return s.currentPolicy().Select(ctx)
}

func (s *Server) currentPolicy() Policy {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.policy
}

func (s *Server) currentValidator() *auth.Validator {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.validator
}

// ValidateAccount checks credentials the same way a client's first request is
// checked.
func (s *Server) ValidateAccount(ctx context.Context, account, password string, privileges auth.Privileges) bool {
	var checker auth.AccountChecker
	if svc, err := s.Select(ctx); err == nil {
		checker = svc
	}
	return s.currentValidator().Validate(ctx, checker, account, password, privileges)
}

// Config returns a copy of the active configuration.
func (s *Server) Config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// SetConfig replaces the configuration. Durations are parsed from their raw
// strings. Listener address changes take effect on the next Start.
func (s *Server) SetConfig(next *config.Config) error {
	next = next.Clone()
	if err := next.Prepare(); err != nil {
		return err
	}

	s.cfgMu.Lock()
	prev := s.cfg
	if next.Path() == "" {
		next.SetPath(prev.Path())
	}
	s.cfg = next
	if !strings.EqualFold(prev.Policy, next.Policy) {
		s.reg.UnbindAll()
		s.policy = NewPolicy(next, s.reg, s.logger)
	}
	oldCache := s.cache
	s.validator, s.cache = newValidator(next, s.logger)
	s.cfgMu.Unlock()

	if oldCache != nil {
		oldCache.Close()
	}
	if prev.Server.TaskPeriod != next.Server.TaskPeriod {
		s.ticker.Reset(next.Server.TaskPeriod)
	}
	if s.accept.IsStarted() {
		s.maintain()
	}
	s.logger.Info("configuration replaced", "policy", next.Policy, "backends", len(next.Backends))
	s.notify(service.EventConfig)
	return nil
}

// BackendStatus describes one bound backend.
type BackendStatus struct {
	Address string `json:"address"`
	Account string `json:"account"`
	BoundAt string `json:"bound_at"`
}

// Status is a snapshot of the gateway state.
type Status struct {
	ID         string          `json:"id"`
	Policy     string          `json:"policy"`
	Started    bool            `json:"started"`
	Paused     bool            `json:"paused"`
	Address    string          `json:"address,omitempty"`
	Backends   []BackendStatus `json:"backends"`
	Delegators int             `json:"delegators"`
}

// Status reports the current state.
func (s *Server) Status() Status {
	st := Status{
		ID:         s.id,
		Policy:     s.currentPolicy().Name(),
		Started:    s.accept.IsStarted(),
		Paused:     s.accept.IsPaused(),
		Backends:   []BackendStatus{},
		Delegators: len(s.liveDelegators()),
	}
	if addr := s.Addr(); addr != nil {
		st.Address = addr.String()
	}
	for _, b := range s.reg.Servers() {
		info := b.Info()
		st.Backends = append(st.Backends, BackendStatus{
			Address: info.Addr(),
			Account: info.Account,
			BoundAt: b.BoundAt().UTC().Format(time.RFC3339),
		})
	}
	return st
}

func (s *Server) String() string {
	return fmt.Sprintf("gateway %s (%s)", s.id[:8], s.currentPolicy().Name())
}
