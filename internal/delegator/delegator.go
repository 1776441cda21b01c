// ABOUTME: Per-connection worker reading one request line per runner iteration
// ABOUTME: Handles session checks, backend selection, dispatch and response writing

package delegator

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/metrics"
	"github.com/2389/recgate/internal/protocol"
	"github.com/2389/recgate/internal/runner"
	"github.com/2389/recgate/internal/service"
)

// Default timeouts used when Options leaves them zero.
const (
	DefaultReadTimeout    = 30 * time.Second
	DefaultBackendTimeout = 10 * time.Second
)

var errInterrupted = errors.New("read interrupted")

// Selector picks the backend serving the next request.
type Selector interface {
	Select(ctx context.Context) (service.Service, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context) (service.Service, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context) (service.Service, error) { return f(ctx) }

// Options configures a Delegator.
type Options struct {
	Selector       Selector
	Validator      *auth.Validator
	ReadTimeout    time.Duration
	BackendTimeout time.Duration
	WebRoot        string
	// OnClose runs on the delegator goroutine once the connection is closed.
	OnClose func(*Delegator)
	Logger  *slog.Logger
}

// Delegator serves a single client connection.
type Delegator struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	opts   Options
	logger *slog.Logger
	run    *runner.Runner

	// mu is held for the whole read-to-write sequence of one request.
	mu      sync.Mutex
	partial strings.Builder

	session atomic.Pointer[Session]
}

// New wraps conn. The delegator does nothing until Start.
func New(conn net.Conn, opts Options) *Delegator {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = DefaultBackendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Delegator{
		id:     uuid.New().String(),
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   opts,
	}
	d.logger = opts.Logger.With("component", "delegator", "delegator", d.id, "remote", conn.RemoteAddr().String())
	d.run = runner.New("delegator-"+d.id[:8], d.serveOnce,
		runner.WithInterrupt(d.interrupt),
		runner.WithClear(d.clear),
		runner.WithLogger(d.logger),
	)
	return d
}

// ID returns the delegator id.
func (d *Delegator) ID() string { return d.id }

// RemoteAddr returns the client address.
func (d *Delegator) RemoteAddr() net.Addr { return d.conn.RemoteAddr() }

// Session returns the authenticated session, or nil before the first
// accepted request.
func (d *Delegator) Session() *Session { return d.session.Load() }

// Start begins serving the connection.
func (d *Delegator) Start() bool {
	if !d.run.Start() {
		return false
	}
	metrics.LiveDelegators.Inc()
	d.logger.Debug("delegator started")
	return true
}

// Pause blocks until the delegator is parked between requests.
func (d *Delegator) Pause() bool { return d.run.Pause() }

// Resume continues a paused delegator.
func (d *Delegator) Resume() bool { return d.run.Resume() }

// Stop closes the connection and blocks until the delegator has exited.
func (d *Delegator) Stop() bool { return d.run.Stop() }

// IsStarted reports whether the delegator is running or paused.
func (d *Delegator) IsStarted() bool { return d.run.IsStarted() }

// IsPaused reports whether the delegator is paused.
func (d *Delegator) IsPaused() bool { return d.run.IsPaused() }

func (d *Delegator) interrupt() {
	_ = d.conn.SetReadDeadline(time.Now())
}

func (d *Delegator) clear() {
	if err := d.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		d.logger.Debug("closing connection", "error", err)
	}
	d.session.Store(nil)
	metrics.LiveDelegators.Dec()
	d.logger.Debug("delegator closed")
	if d.opts.OnClose != nil {
		d.opts.OnClose(d)
	}
}

// serveOnce handles exactly one request line.
func (d *Delegator) serveOnce() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	line, err := d.readLine()
	switch {
	case errors.Is(err, errInterrupted):
		return nil
	case err != nil:
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !isTimeout(err) {
			d.logger.Warn("reading request", "error", err)
		}
		d.run.Halt()
		return nil
	}

	if !d.handle(line) {
		d.run.Halt()
	}
	return nil
}

// readLine reads up to and including the next newline. Bytes received before
// an interrupt are kept and completed by the next call.
func (d *Delegator) readLine() (string, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout)); err != nil {
		return "", err
	}
	if d.run.State() != runner.StateRunning {
		return "", errInterrupted
	}

	chunk, err := d.reader.ReadString('\n')
	d.partial.WriteString(chunk)
	switch {
	case err == nil:
	case isTimeout(err) && d.run.State() != runner.StateRunning:
		return "", errInterrupted
	case errors.Is(err, io.EOF) && strings.TrimSpace(d.partial.String()) != "":
		// last unterminated line; the next read reports EOF again
	default:
		return "", err
	}
	line := d.partial.String()
	d.partial.Reset()
	return line, nil
}

// handle answers one line and reports whether the connection stays open.
func (d *Delegator) handle(line string) bool {
	req, err := protocol.Parse(line)
	if req != nil && req.IsHTTP() {
		d.serveHTTP(req, err)
		return false
	}

	switch {
	case errors.Is(err, protocol.ErrUnknownAction):
		d.logger.Info("unknown action", "error", err)
		record(protocol.ProtocolNative, "", metrics.OutcomeMalformed)
		return d.write(nil)
	case err != nil:
		d.logger.Info("malformed request", "error", err)
		record(protocol.ProtocolNative, "", metrics.OutcomeMalformed)
		d.write(nil)
		return false
	case req.IsQuit():
		record(protocol.ProtocolNative, string(req.Action), metrics.OutcomeOK)
		d.write(nil)
		return false
	}
	return d.serveNative(req)
}

func (d *Delegator) serveNative(req *protocol.Request) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.BackendTimeout)
	defer cancel()

	svc, selErr := d.opts.Selector.Select(ctx)

	sess := d.session.Load()
	if sess == nil {
		sess = d.authenticate(ctx, svc, req)
		if sess == nil {
			record(req.Protocol, string(req.Action), metrics.OutcomeDenied)
			d.write(nil)
			return false
		}
	}
	if !sess.Allows(req.Action.Privilege()) {
		d.logger.Info("privilege denied", "account", sess.Account, "action", req.Action, "privileges", sess.Privileges)
		record(req.Protocol, string(req.Action), metrics.OutcomeDenied)
		d.write(nil)
		return false
	}

	if selErr != nil {
		d.logger.Warn("no backend for request", "action", req.Action, "error", selErr)
		record(req.Protocol, string(req.Action), metrics.OutcomeNoBackend)
		return d.write(nil)
	}

	resp, err := d.dispatch(ctx, svc, req)
	if err != nil {
		d.logger.Warn("dispatch failed", "action", req.Action, "error", err)
		record(req.Protocol, string(req.Action), metrics.OutcomeError)
		return d.write(nil)
	}
	record(req.Protocol, string(req.Action), metrics.OutcomeOK)
	return d.write(resp)
}

// authenticate validates the credentials of the first request and installs
// the session.
func (d *Delegator) authenticate(ctx context.Context, svc service.Service, req *protocol.Request) *Session {
	if !req.HasCredentials() {
		d.logger.Info("first request without credentials", "action", req.Action)
		return nil
	}
	var checker auth.AccountChecker
	if svc != nil {
		checker = svc
	}
	if d.opts.Validator == nil || !d.opts.Validator.Validate(ctx, checker, req.AccountName, req.AccountPassword, req.AccountPrivileges) {
		return nil
	}
	sess := newSession(req.AccountName, req.AccountPrivileges)
	d.session.Store(sess)
	d.logger.Info("session opened", "session", sess.ID, "account", sess.Account, "privileges", sess.Privileges)
	return sess
}

func (d *Delegator) dispatch(ctx context.Context, svc service.Service, req *protocol.Request) (*protocol.Response, error) {
	start := time.Now()
	defer func() {
		metrics.DispatchSeconds.WithLabelValues(string(req.Action)).Observe(time.Since(start).Seconds())
	}()
	return dispatch(ctx, svc, req)
}

// write sends one native envelope and reports whether it went out.
func (d *Delegator) write(resp *protocol.Response) bool {
	if err := protocol.WriteNative(d.conn, resp); err != nil {
		d.logger.Debug("writing response", "error", err)
		return false
	}
	return true
}

func record(proto, action, outcome string) {
	if action == "" {
		action = "unknown"
	}
	metrics.RequestsTotal.WithLabelValues(proto, action, outcome).Inc()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
