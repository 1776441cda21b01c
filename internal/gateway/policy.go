// ABOUTME: Listener and Balancer backend selection policies over the registry
// ABOUTME: Each policy picks a backend per request and maintains the registry periodically

package gateway

import (
	"context"
	"log/slog"

	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/registry"
	"github.com/2389/recgate/internal/service"
)

// Policy decides which backends are bound and which one serves a request.
type Policy interface {
	Name() string
	Select(ctx context.Context) (service.Service, error)
	Maintain(ctx context.Context, cfg *config.Config)
	Registry() *registry.BindServerList
}

// NewPolicy builds the policy named by cfg.
func NewPolicy(cfg *config.Config, reg *registry.BindServerList, logger *slog.Logger) Policy {
	if cfg.IsListener() {
		return NewListener(reg, logger)
	}
	return NewBalancer(reg, logger)
}

// backendEvents prunes the registry as soon as a bound backend reports that
// it is exiting.
type backendEvents struct {
	reg    *registry.BindServerList
	logger *slog.Logger
}

func (b *backendEvents) OnEvent(ev service.Event) {
	if ev.Kind != service.EventExit {
		return
	}
	b.logger.Info("backend exiting", "source", ev.Source)
	go func() {
		if n := b.reg.Prune(context.Background()); n > 0 {
			b.logger.Info("pruned after backend exit", "removed", n)
		}
	}()
}

// Listener forwards every request to a single backend.
type Listener struct {
	reg    *registry.BindServerList
	events *backendEvents
	logger *slog.Logger
}

// NewListener creates a single-backend policy over reg.
func NewListener(reg *registry.BindServerList, logger *slog.Logger) *Listener {
	logger = logger.With("policy", config.PolicyListener)
	return &Listener{reg: reg, events: &backendEvents{reg: reg, logger: logger}, logger: logger}
}

// Name returns "listener".
func (l *Listener) Name() string { return config.PolicyListener }

// Registry returns the registry the policy drives.
func (l *Listener) Registry() *registry.BindServerList { return l.reg }

// Select returns the bound backend.
func (l *Listener) Select(context.Context) (service.Service, error) {
	b := l.reg.First()
	if b == nil {
		return nil, registry.ErrNoBackend
	}
	return b.Backend(), nil
}

// Maintain unbinds everything and binds the configured backend again, so
// reapplied credentials always take effect.
func (l *Listener) Maintain(ctx context.Context, cfg *config.Config) {
	info, ok := cfg.PrimaryBackend()
	if !ok {
		l.reg.UnbindAll()
		return
	}
	if !l.reg.Rebind(ctx, info, l.events) {
		l.logger.Warn("backend unavailable", "backend", info.String())
	}
}

// Balancer spreads requests over every configured backend.
type Balancer struct {
	reg    *registry.BindServerList
	events *backendEvents
	logger *slog.Logger
}

// NewBalancer creates a least-activity policy over reg.
func NewBalancer(reg *registry.BindServerList, logger *slog.Logger) *Balancer {
	logger = logger.With("policy", config.PolicyBalancer)
	return &Balancer{reg: reg, events: &backendEvents{reg: reg, logger: logger}, logger: logger}
}

// Name returns "balancer".
func (b *Balancer) Name() string { return config.PolicyBalancer }

// Registry returns the registry the policy drives.
func (b *Balancer) Registry() *registry.BindServerList { return b.reg }

// Select returns the least busy backend.
func (b *Balancer) Select(ctx context.Context) (service.Service, error) {
	s := b.reg.IdleServer(ctx)
	if s == nil {
		return nil, registry.ErrNoBackend
	}
	return s.Backend(), nil
}

// Maintain prunes dead entries, drops entries no longer configured and binds
// every configured backend.
func (b *Balancer) Maintain(ctx context.Context, cfg *config.Config) {
	b.reg.Prune(ctx)
	for _, s := range b.reg.Servers() {
		info := s.Info()
		if !configured(cfg.Backends, info) {
			b.reg.Unbind(info.Host, info.Port)
		}
	}
	bound := b.reg.BindAll(ctx, cfg.Backends, b.events)
	b.logger.Debug("maintenance done", "configured", len(cfg.Backends), "bound", bound)
}

func configured(infos []service.RemoteInfo, info service.RemoteInfo) bool {
	for _, c := range infos {
		if c.SameEndpoint(info.Host, info.Port) {
			return true
		}
	}
	return false
}
