// ABOUTME: Tests for the control service and its client
// ABOUTME: Drives a fake gateway over bufconn with and without JWT auth

package control

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/gateway"
	"github.com/2389/recgate/internal/service"
)

const testSecret = "control-test-secret-of-some-length"

type fakeTarget struct {
	mu        sync.Mutex
	calls     []string
	cfg       *config.Config
	startErr  error
	exited    chan struct{}
	exitHooks []func()
	observers *service.Observers
}

func newFakeTarget(t *testing.T) *fakeTarget {
	t.Helper()
	cfg := config.Default()
	cfg.Control.JWTSecret = testSecret
	cfg.Account.Name = "gw"
	cfg.Account.Password = "hunter2"
	require.NoError(t, cfg.Prepare())
	return &fakeTarget{cfg: cfg, exited: make(chan struct{}), observers: service.NewObservers(nil)}
}

func (f *fakeTarget) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTarget) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTarget) Start() error { f.record("start"); return f.startErr }
func (f *fakeTarget) Stop() bool   { f.record("stop"); return true }
func (f *fakeTarget) Pause() bool  { f.record("pause"); return true }
func (f *fakeTarget) Resume() bool { f.record("resume"); return false }

func (f *fakeTarget) Exit() {
	f.record("exit")
	f.mu.Lock()
	hooks := f.exitHooks
	f.mu.Unlock()
	for _, h := range hooks {
		h()
	}
	close(f.exited)
}

func (f *fakeTarget) Config() *config.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.Clone()
}

func (f *fakeTarget) SetConfig(cfg *config.Config) error {
	if err := cfg.Prepare(); err != nil {
		return err
	}
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	f.record("set_config")
	return nil
}

func (f *fakeTarget) ValidateAccount(_ context.Context, account, password string, privileges auth.Privileges) bool {
	return account == "alice" && password == "pw" && privileges == auth.Access
}

func (f *fakeTarget) Status() gateway.Status {
	return gateway.Status{ID: "gw-1", Policy: config.PolicyListener, Started: true}
}

func (f *fakeTarget) Observe(obs service.Observer) func() { return f.observers.Add(obs) }

func (f *fakeTarget) OnExit(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitHooks = append(f.exitHooks, fn)
}

type harness struct {
	target *fakeTarget
	server *Server
	conn   *grpc.ClientConn
}

func startControl(t *testing.T, secret string) *harness {
	t.Helper()
	target := newFakeTarget(t)
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(config.ControlConfig{Name: "recgate.Control", JWTSecret: secret}, target, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &harness{target: target, server: srv, conn: conn}
}

func (h *harness) client(name, token string) *Client {
	return NewClient(h.conn, name, token)
}

func token(t *testing.T) string {
	t.Helper()
	tok, err := auth.NewJWTVerifier([]byte(testSecret)).Generate("ops", time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	h := startControl(t, testSecret)
	ctx := context.Background()

	_, err := h.client("recgate.Control", "").Pause(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.client("recgate.Control", "not-a-jwt").Pause(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ok, err := h.client("recgate.Control", token(t)).Pause(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"pause"}, h.target.Calls())
}

func TestLifecycleCallsReachTarget(t *testing.T) {
	h := startControl(t, "")
	c := h.client("recgate.Control", "")
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	ok, err := c.Pause(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"start", "pause", "resume", "stop"}, h.target.Calls())
}

func TestStartFailureIsReported(t *testing.T) {
	h := startControl(t, "")
	h.target.startErr = errors.New("address in use")

	err := h.client("recgate.Control", "").Start(context.Background())
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "address in use")
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	h := startControl(t, "")
	cfg, err := h.client("recgate.Control", "").GetConfig(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cfg.Control.JWTSecret)
	assert.Empty(t, cfg.Account.Password)
	assert.Equal(t, "gw", cfg.Account.Name)
	require.NotEmpty(t, cfg.Backends)
	assert.Empty(t, cfg.Backends[0].Password)
}

func TestSetConfigKeepsSecretsAndRejectsInvalid(t *testing.T) {
	h := startControl(t, "")
	c := h.client("recgate.Control", "")
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	require.NoError(t, err)
	cfg.Policy = config.PolicyListener
	require.NoError(t, c.SetConfig(ctx, cfg))

	current := h.target.Config()
	assert.Equal(t, config.PolicyListener, current.Policy)
	assert.Equal(t, testSecret, current.Control.JWTSecret)
	assert.Equal(t, "hunter2", current.Account.Password)
	assert.Equal(t, "admin", current.Backends[0].Password)

	cfg.Policy = "round-robin"
	err = c.SetConfig(ctx, cfg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, config.PolicyListener, h.target.Config().Policy)

	err = c.SetConfig(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestValidateAndStatus(t *testing.T) {
	h := startControl(t, "")
	c := h.client("recgate.Control", "")
	ctx := context.Background()

	ok, err := c.ValidateAccount(ctx, "alice", "pw", auth.Access)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ValidateAccount(ctx, "alice", "wrong", auth.Access)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gw-1", st.ID)
	assert.True(t, st.Started)
}

func TestWatchStreamsEvents(t *testing.T) {
	h := startControl(t, "")
	c := h.client("recgate.Control", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan service.Event, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, func(ev service.Event) { got <- ev }) }()

	require.Eventually(t, func() bool { return h.target.observers.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.target.observers.Notify(service.NewEvent(service.EventPaused, "gw-1"))

	select {
	case ev := <-got:
		assert.Equal(t, service.EventPaused, ev.Kind)
		assert.Equal(t, "gw-1", ev.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end")
	}
	assert.Eventually(t, func() bool { return h.target.observers.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestExitRepliesThenUnpublishes(t *testing.T) {
	h := startControl(t, "")
	c := h.client("recgate.Control", "")

	require.NoError(t, c.Exit(context.Background()))
	select {
	case <-h.target.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("target did not exit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Pause(ctx)
	assert.Error(t, err)
}

func TestUnknownServiceName(t *testing.T) {
	h := startControl(t, "")
	_, err := h.client("recgate.Other", "").Pause(context.Background())
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
