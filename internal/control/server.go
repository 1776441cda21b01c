// ABOUTME: gRPC control service driving the gateway lifecycle and configuration
// ABOUTME: Registered under a configurable service name with the JSON codec

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/gateway"
	"github.com/2389/recgate/internal/grpcjson"
	"github.com/2389/recgate/internal/service"
)

// watchBuffer bounds the events queued for one slow console.
const watchBuffer = 16

// Target is the gateway as seen by the control surface.
type Target interface {
	Start() error
	Stop() bool
	Pause() bool
	Resume() bool
	Exit()
	Config() *config.Config
	SetConfig(cfg *config.Config) error
	ValidateAccount(ctx context.Context, account, password string, privileges auth.Privileges) bool
	Status() gateway.Status
	Observe(obs service.Observer) (remove func())
	OnExit(fn func())
}

// Server is the control gRPC server.
type Server struct {
	name   string
	target Target
	grpc   *grpc.Server
	logger *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewServer builds the control service for target and registers an exit hook
// that unpublishes it.
func NewServer(cfg config.ControlConfig, target Target, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "control")

	var unary grpc.UnaryServerInterceptor
	var stream grpc.StreamServerInterceptor
	if cfg.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
		unary = auth.UnaryInterceptor(verifier, logger)
		stream = auth.StreamInterceptor(verifier, logger)
		logger.Info("control auth enabled (JWT)")
	} else {
		unary = auth.NoAuthUnaryInterceptor()
		stream = auth.NoAuthStreamInterceptor()
		logger.Warn("control auth disabled - no jwt_secret configured")
	}

	gs := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(unary),
		grpc.ChainStreamInterceptor(stream),
	)
	s := &Server{
		name:   cfg.Name,
		target: target,
		grpc:   gs,
		logger: logger,
		done:   make(chan struct{}),
	}
	gs.RegisterService(serviceDesc(cfg.Name), &handler{srv: s})
	target.OnExit(func() { s.Shutdown(context.Background()) })
	return s
}

// Name returns the gRPC service name.
func (s *Server) Name() string { return s.name }

// Serve accepts control connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("control service published", "service", s.name, "addr", ln.Addr().String())
	if err := s.grpc.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving control: %w", err)
	}
	return nil
}

// Shutdown unpublishes the service. Open Watch streams are ended first; if
// unary calls are still running when ctx expires the server is stopped hard.
func (s *Server) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.done)
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
		}
		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpc.Stop()
		}
		s.logger.Info("control service unpublished", "service", s.name)
	})
}

// handler carries the server into the generic method descriptors.
type handler struct {
	srv *Server
}

type controlHandler interface {
	server() *Server
}

func (h *handler) server() *Server { return h.srv }

func (s *Server) operator(ctx context.Context) string {
	if op := auth.OperatorFromContext(ctx); op != nil {
		return op.Subject
	}
	return "unknown"
}

func (s *Server) start(ctx context.Context) (*ackReply, error) {
	s.logger.Info("start requested", "operator", s.operator(ctx))
	if err := s.target.Start(); err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &ackReply{OK: true}, nil
}

func (s *Server) exit(ctx context.Context) (*ackReply, error) {
	s.logger.Info("exit requested", "operator", s.operator(ctx))
	// the reply has to leave before the exit hooks unpublish the service
	go s.target.Exit()
	return &ackReply{OK: true}, nil
}

func (s *Server) getConfig() (*configMessage, error) {
	cfg := s.target.Config()
	cfg.Control.JWTSecret = ""
	cfg.Account.Password = ""
	cfg.Status.RedisPassword = ""
	for i := range cfg.Backends {
		cfg.Backends[i].Password = ""
	}
	return &configMessage{Config: cfg}, nil
}

func (s *Server) setConfig(ctx context.Context, req *configMessage) (*ackReply, error) {
	if req.Config == nil {
		return nil, status.Error(codes.InvalidArgument, "config is required")
	}
	next := req.Config
	keepSecrets(next, s.target.Config())
	if err := s.target.SetConfig(next); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Info("configuration replaced", "operator", s.operator(ctx))
	return &ackReply{OK: true}, nil
}

// keepSecrets carries the redacted fields of cur over to an incoming config
// that left them blank.
func keepSecrets(next, cur *config.Config) {
	if next.Control.JWTSecret == "" {
		next.Control.JWTSecret = cur.Control.JWTSecret
	}
	if next.Account.Password == "" && next.Account.Name == cur.Account.Name {
		next.Account.Password = cur.Account.Password
	}
	if next.Status.RedisPassword == "" && next.Status.RedisAddr == cur.Status.RedisAddr {
		next.Status.RedisPassword = cur.Status.RedisPassword
	}
	for i, b := range next.Backends {
		if b.Password != "" {
			continue
		}
		for _, c := range cur.Backends {
			if c.SameEndpoint(b.Host, b.Port) && c.Account == b.Account {
				next.Backends[i].Password = c.Password
				break
			}
		}
	}
}

func (s *Server) watch(ss grpc.ServerStream) error {
	events := make(chan service.Event, watchBuffer)
	remove := s.target.Observe(service.ObserverFunc(func(ev service.Event) {
		select {
		case events <- ev:
		default:
			s.logger.Warn("console too slow, dropping event", "event", ev.Kind)
		}
	}))
	defer remove()

	for {
		select {
		case <-ss.Context().Done():
			return nil
		case <-s.done:
			return nil
		case ev := <-events:
			if err := ss.SendMsg(&ev); err != nil {
				return err
			}
		}
	}
}

func serviceDesc(name string) *grpc.ServiceDesc {
	unary := func(method string, fn func(ctx context.Context, s *Server, req *emptyRequest) (any, error)) grpc.MethodDesc {
		return grpcjson.Unary(name, method, func(ctx context.Context, h controlHandler, req *emptyRequest) (any, error) {
			return fn(ctx, h.server(), req)
		})
	}
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*controlHandler)(nil),
		Methods: []grpc.MethodDesc{
			unary("Start", func(ctx context.Context, s *Server, _ *emptyRequest) (any, error) {
				return s.start(ctx)
			}),
			unary("Stop", func(_ context.Context, s *Server, _ *emptyRequest) (any, error) {
				return &ackReply{OK: s.target.Stop()}, nil
			}),
			unary("Pause", func(_ context.Context, s *Server, _ *emptyRequest) (any, error) {
				return &ackReply{OK: s.target.Pause()}, nil
			}),
			unary("Resume", func(_ context.Context, s *Server, _ *emptyRequest) (any, error) {
				return &ackReply{OK: s.target.Resume()}, nil
			}),
			unary("Exit", func(ctx context.Context, s *Server, _ *emptyRequest) (any, error) {
				return s.exit(ctx)
			}),
			unary("GetConfig", func(_ context.Context, s *Server, _ *emptyRequest) (any, error) {
				return s.getConfig()
			}),
			grpcjson.Unary(name, "SetConfig", func(ctx context.Context, h controlHandler, req *configMessage) (any, error) {
				return h.server().setConfig(ctx, req)
			}),
			grpcjson.Unary(name, "ValidateAccount", func(ctx context.Context, h controlHandler, req *validateRequest) (any, error) {
				ok := h.server().target.ValidateAccount(ctx, req.Account, req.Password, req.Privileges)
				return &ackReply{OK: ok}, nil
			}),
			unary("Status", func(_ context.Context, s *Server, _ *emptyRequest) (any, error) {
				st := s.target.Status()
				return &st, nil
			}),
		},
		Streams: []grpc.StreamDesc{
			grpcjson.ServerStream("Watch", func(h controlHandler, _ *emptyRequest, ss grpc.ServerStream) error {
				return h.server().watch(ss)
			}),
		},
	}
}
