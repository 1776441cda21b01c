// ABOUTME: Start, pause, resume, stop and exit of the gateway and everything it owns
// ABOUTME: Includes the accept loop and the maintenance loop run by their runners

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/delegator"
	"github.com/2389/recgate/internal/metrics"
	"github.com/2389/recgate/internal/protocol"
	"github.com/2389/recgate/internal/service"
)

// Start opens the client listener, binds backends once and starts the accept
// and maintenance loops. Failing to listen is the only error. Starting a
// started gateway does nothing.
func (s *Server) Start() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.accept.IsStarted() {
		return nil
	}
	cfg := s.Config()
	ln, err := s.listen(cfg)
	if err != nil {
		return err
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()
	s.logger.Info("listening", "addr", ln.Addr().String(), "policy", cfg.Policy)

	s.maintain()
	s.accept.Start()
	s.maint.Start()
	s.startHTTP(cfg)

	s.notify(service.EventStarted)
	return nil
}

// Pause stops accepting, parks every delegator between requests and pauses
// maintenance. It blocks until all of them have acknowledged.
func (s *Server) Pause() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.accept.Pause() {
		return false
	}
	for _, d := range s.liveDelegators() {
		d.Pause()
	}
	s.maint.Pause()
	s.notify(service.EventPaused)
	return true
}

// Resume undoes Pause.
func (s *Server) Resume() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.accept.Resume() {
		return false
	}
	for _, d := range s.liveDelegators() {
		d.Resume()
	}
	s.maint.Resume()
	s.notify(service.EventResumed)
	return true
}

// Stop closes the listener and every connection and stops maintenance.
// Bound backends stay bound so a later Start can serve immediately.
func (s *Server) Stop() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.accept.Stop() {
		return false
	}
	var g errgroup.Group
	for _, d := range s.liveDelegators() {
		g.Go(func() error {
			d.Stop()
			return nil
		})
	}
	_ = g.Wait()
	s.maint.Stop()
	s.notify(service.EventStopped)
	return true
}

// Exit runs the exit hooks, saves the configuration to the file it came
// from, stops, releases every backend and ends the process.
func (s *Server) Exit() {
	s.logger.Info("exiting")

	s.hookMu.Lock()
	hooks := append([]func(){}, s.exitHooks...)
	s.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	cfg := s.Config()
	if path := cfg.Path(); path != "" {
		if err := cfg.Save(path); err != nil {
			s.logger.Error("saving configuration", "path", path, "error", err)
		} else {
			s.logger.Info("configuration saved", "path", path)
		}
	}

	s.Stop()
	s.Close()
	s.notify(service.EventExit)
	s.exitFn(0)
}

// Close releases the side HTTP server, the backends and the ticker. It does
// not stop a running gateway; call Stop first.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.stopHTTP()
		s.reg.UnbindAll()
		s.ticker.Stop()
		s.cfgMu.RLock()
		cache := s.cache
		s.cfgMu.RUnlock()
		if cache != nil {
			cache.Close()
		}
	})
}

func (s *Server) notify(kind service.EventKind) {
	metrics.LifecycleEventsTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Info("gateway "+string(kind), "gateway", s.id)
	s.observers.Notify(service.NewEvent(kind, s.id))
}

func (s *Server) listen(cfg *config.Config) (net.Listener, error) {
	addr := cfg.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}
	if !cfg.Server.RandomPortFallback {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.logger.Warn("configured port unavailable, falling back to a random port", "addr", addr, "error", err)
	ln, err2 := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, "0"))
	if err2 != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, errors.Join(err, err2))
	}
	return ln, nil
}

func (s *Server) listener() net.Listener {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	return s.ln
}

func (s *Server) closeListener() {
	s.lnMu.Lock()
	ln := s.ln
	s.ln = nil
	s.lnMu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.wakeMu.Lock()
	clear(s.wakes)
	s.wakeMu.Unlock()
}

// acceptOnce waits up to the accept timeout for one client.
func (s *Server) acceptOnce() error {
	ln := s.listener()
	if ln == nil {
		s.accept.Halt()
		return nil
	}
	if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
		_ = dl.SetDeadline(time.Now().Add(s.Config().Server.AcceptTimeout))
	}

	conn, err := ln.Accept()
	if err != nil {
		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			return nil
		case errors.Is(err, net.ErrClosed):
			s.accept.Halt()
			return nil
		}
		return fmt.Errorf("accepting connection: %w", err)
	}
	if s.isWake(conn) {
		_ = conn.Close()
		return nil
	}
	s.serve(conn)
	return nil
}

const wakeTTL = 2 * time.Second

// wakeAccept unblocks a pending Accept with a throwaway connection.
func (s *Server) wakeAccept() {
	ln := s.listener()
	if ln == nil {
		return
	}
	conn, err := net.DialTimeout("tcp", dialable(ln.Addr()), time.Second)
	if err != nil {
		s.logger.Debug("waking accept loop", "error", err)
		return
	}
	s.wakeMu.Lock()
	s.wakes[conn.LocalAddr().String()] = time.Now()
	s.wakeMu.Unlock()
	_, _ = io.WriteString(conn, protocol.QuitLine+"\n")
	_ = conn.Close()
}

// isWake reports whether conn is one of our wake connections. A wake that was
// accepted before its key was recorded is served as a normal client and
// reads QUIT; its key is dropped once it is older than wakeTTL.
func (s *Server) isWake(conn net.Conn) bool {
	key := conn.RemoteAddr().String()
	now := time.Now()
	s.wakeMu.Lock()
	defer s.wakeMu.Unlock()
	at, ok := s.wakes[key]
	delete(s.wakes, key)
	for k, t := range s.wakes {
		if now.Sub(t) > wakeTTL {
			delete(s.wakes, k)
		}
	}
	return ok && now.Sub(at) <= wakeTTL
}

// dialable turns a wildcard listen address into a loopback one.
func dialable(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	ip := net.IPv4(127, 0, 0, 1)
	if tcp.IP.To4() == nil {
		ip = net.IPv6loopback
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port))
}

func (s *Server) serve(conn net.Conn) {
	cfg := s.Config()
	d := delegator.New(conn, delegator.Options{
		Selector:       s,
		Validator:      s.currentValidator(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		BackendTimeout: cfg.Server.BackendTimeout,
		WebRoot:        cfg.Server.WebRoot,
		OnClose:        s.forget,
		Logger:         s.logger,
	})
	s.dmu.Lock()
	s.delegators[d.ID()] = d
	s.dmu.Unlock()
	metrics.ConnectionsTotal.Inc()
	d.Start()
}

func (s *Server) forget(d *delegator.Delegator) {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	delete(s.delegators, d.ID())
}

func (s *Server) liveDelegators() []*delegator.Delegator {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	out := make([]*delegator.Delegator, 0, len(s.delegators))
	for _, d := range s.delegators {
		out = append(out, d)
	}
	return out
}

// maintainOnce waits for the next tick and runs the policy maintenance.
func (s *Server) maintainOnce() error {
	select {
	case <-s.ticker.Chan():
	case <-s.poke:
		return nil
	}
	s.maintain()
	return nil
}

func (s *Server) pokeMaintenance() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

func (s *Server) maintain() {
	cfg := s.Config()
	budget := cfg.Server.BackendTimeout * time.Duration(len(cfg.Backends)+1)
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()
	s.currentPolicy().Maintain(ctx, cfg)
}
