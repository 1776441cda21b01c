// ABOUTME: gRPC server exposing a Service implementation as recgate.Service
// ABOUTME: Adds gRPC health for liveness and a Watch stream for lifecycle events

package remote

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/2389/recgate/internal/grpcjson"
	"github.com/2389/recgate/internal/service"
)

// ServiceName is the gRPC service name backends register under.
const ServiceName = "recgate.Service"

// watchBuffer bounds the events queued for one slow watcher.
const watchBuffer = 16

// handler is the implementation type the descriptor dispatches to.
type handler interface {
	service.Service
	watch(req *emptyRequest, ss grpc.ServerStream) error
}

// Server adapts a service.Service to gRPC.
type Server struct {
	service.Service

	health   *health.Server
	watchers *service.Observers
	logger   *slog.Logger
}

// NewServer wraps svc. Call Register to attach it to a grpc.Server.
func NewServer(svc service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "remote-server")
	return &Server{
		Service:  svc,
		health:   health.NewServer(),
		watchers: service.NewObservers(logger),
		logger:   logger,
	}
}

// Register attaches the service and the health service to gs and marks the
// backend as serving.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.SetServing(true)
}

// SetServing flips the health status reported for ServiceName.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

// Publish pushes ev to every open Watch stream.
func (s *Server) Publish(ev service.Event) {
	s.watchers.Notify(ev)
}

// Shutdown marks the backend as not serving and ends every health watch.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Watchers returns the number of open Watch streams.
func (s *Server) Watchers() int {
	return s.watchers.Len()
}

func (s *Server) watch(_ *emptyRequest, ss grpc.ServerStream) error {
	events := make(chan service.Event, watchBuffer)
	remove := s.watchers.Add(service.ObserverFunc(func(ev service.Event) {
		select {
		case events <- ev:
		default:
			s.logger.Warn("watcher too slow, dropping event", "event", ev.Kind)
		}
	}))
	defer remove()

	for {
		select {
		case <-ss.Context().Done():
			return nil
		case ev := <-events:
			if err := ss.SendMsg(&ev); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Error(codes.Unknown, err.Error())
	}
}

func method[Req any](name string, fn func(ctx context.Context, h handler, req *Req) (any, error)) grpc.MethodDesc {
	return grpcjson.Unary(ServiceName, name, fn)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		method("Estimate", func(ctx context.Context, h handler, req *estimateRequest) (any, error) {
			return reply(h.Estimate(ctx, req.Param, req.ItemIDs))
		}),
		method("Recommend", func(ctx context.Context, h handler, req *recommendRequest) (any, error) {
			return reply(h.Recommend(ctx, req.Param, req.MaxRecommend))
		}),
		method("UpdateRating", func(ctx context.Context, h handler, req *ratingRequest) (any, error) {
			return reply(h.UpdateRating(ctx, req.Rating))
		}),
		method("DeleteRating", func(ctx context.Context, h handler, req *ratingRequest) (any, error) {
			return reply(h.DeleteRating(ctx, req.Rating))
		}),

		method("GetUserIDs", func(ctx context.Context, h handler, _ *emptyRequest) (any, error) {
			return reply(h.GetUserIDs(ctx))
		}),
		method("GetUserRating", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.GetUserRating(ctx, req.ID))
		}),
		method("DeleteUserRating", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.DeleteUserRating(ctx, req.ID))
		}),
		method("GetUserProfile", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.GetUserProfile(ctx, req.ID))
		}),
		method("GetUserProfileByExternal", func(ctx context.Context, h handler, req *externalRequest) (any, error) {
			return reply(h.GetUserProfileByExternal(ctx, req.ExternalID))
		}),
		method("UpdateUserProfile", func(ctx context.Context, h handler, req *profileRequest) (any, error) {
			return reply(h.UpdateUserProfile(ctx, req.Profile))
		}),
		method("DeleteUserProfile", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.DeleteUserProfile(ctx, req.ID))
		}),
		method("GetUserExternalRecord", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.GetUserExternalRecord(ctx, req.ID))
		}),

		method("GetItemIDs", func(ctx context.Context, h handler, _ *emptyRequest) (any, error) {
			return reply(h.GetItemIDs(ctx))
		}),
		method("GetItemRating", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.GetItemRating(ctx, req.ID))
		}),
		method("DeleteItemRating", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.DeleteItemRating(ctx, req.ID))
		}),
		method("GetItemProfile", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.GetItemProfile(ctx, req.ID))
		}),
		method("GetItemProfileByExternal", func(ctx context.Context, h handler, req *externalRequest) (any, error) {
			return reply(h.GetItemProfileByExternal(ctx, req.ExternalID))
		}),
		method("UpdateItemProfile", func(ctx context.Context, h handler, req *profileRequest) (any, error) {
			return reply(h.UpdateItemProfile(ctx, req.Profile))
		}),
		method("DeleteItemProfile", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.DeleteItemProfile(ctx, req.ID))
		}),
		method("GetItemExternalRecord", func(ctx context.Context, h handler, req *idRequest) (any, error) {
			return reply(h.GetItemExternalRecord(ctx, req.ID))
		}),

		method("GetNominal", func(ctx context.Context, h handler, req *nominalKeyRequest) (any, error) {
			return reply(h.GetNominal(ctx, req.Attribute, req.Index))
		}),
		method("UpdateNominal", func(ctx context.Context, h handler, req *nominalRequest) (any, error) {
			return reply(h.UpdateNominal(ctx, req.Nominal))
		}),
		method("DeleteNominal", func(ctx context.Context, h handler, req *nominalKeyRequest) (any, error) {
			return reply(h.DeleteNominal(ctx, req.Attribute, req.Index))
		}),

		method("ValidateAccount", func(ctx context.Context, h handler, req *accountRequest) (any, error) {
			return reply(h.ValidateAccount(ctx, req.Account, req.Password, req.Privileges))
		}),
		method("Status", func(ctx context.Context, h handler, _ *emptyRequest) (any, error) {
			return reply(h.Status(ctx))
		}),
		method("Activity", func(ctx context.Context, h handler, _ *emptyRequest) (any, error) {
			return reply(h.Activity(ctx))
		}),
	},
	Streams: []grpc.StreamDesc{
		grpcjson.ServerStream("Watch", func(h handler, req *emptyRequest, ss grpc.ServerStream) error {
			return h.watch(req, ss)
		}),
	},
}
