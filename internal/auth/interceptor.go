// ABOUTME: gRPC interceptors guarding the control surface with bearer JWTs
// ABOUTME: Both interceptor kinds share one authenticate step that stores the operator in the context

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/2389/recgate/internal/metrics"
)

const (
	authHeader   = "authorization"
	bearerPrefix = "Bearer "
)

// authenticateFunc resolves the operator for an incoming call.
type authenticateFunc func(ctx context.Context, method string) (*Operator, error)

// UnaryInterceptor requires a valid bearer token on every unary call.
func UnaryInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return unary(bearer(tokens, logger))
}

// StreamInterceptor requires a valid bearer token when a stream opens.
func StreamInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.StreamServerInterceptor {
	return stream(bearer(tokens, logger))
}

// NoAuthUnaryInterceptor runs every unary call as the anonymous operator.
func NoAuthUnaryInterceptor() grpc.UnaryServerInterceptor {
	return unary(anonymousOnly)
}

// NoAuthStreamInterceptor runs every stream as the anonymous operator.
func NoAuthStreamInterceptor() grpc.StreamServerInterceptor {
	return stream(anonymousOnly)
}

func unary(authenticate authenticateFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		op, err := authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(WithOperator(ctx, op), req)
	}
}

func stream(authenticate authenticateFunc) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		op, err := authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &operatorStream{ServerStream: ss, ctx: WithOperator(ss.Context(), op)})
	}
}

func anonymousOnly(context.Context, string) (*Operator, error) {
	return &Operator{Subject: "anonymous", Anonymous: true}, nil
}

func bearer(tokens TokenVerifier, logger *slog.Logger) authenticateFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, method string) (*Operator, error) {
		reject := func(reason, msg string, attrs ...any) (*Operator, error) {
			metrics.AuthFailuresTotal.WithLabelValues("control").Inc()
			attrs = append(attrs, "reason", reason, "method", method)
			if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
				attrs = append(attrs, "peer_addr", p.Addr.String())
			}
			logger.Warn("control call rejected", attrs...)
			return nil, status.Error(codes.Unauthenticated, msg)
		}

		values := metadata.ValueFromIncomingContext(ctx, authHeader)
		if len(values) == 0 {
			return reject("missing_token", "missing authorization header")
		}
		raw, ok := strings.CutPrefix(values[0], bearerPrefix)
		if !ok || raw == "" {
			return reject("malformed_header", "authorization header must be a bearer token")
		}
		subject, err := tokens.Verify(raw)
		if err != nil {
			return reject("invalid_token", "invalid token", "error", err.Error())
		}
		return &Operator{Subject: subject}, nil
	}
}

// operatorStream carries the authenticated context into stream handlers.
type operatorStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *operatorStream) Context() context.Context { return s.ctx }
