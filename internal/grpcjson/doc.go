// Package grpcjson lets recgate expose gRPC services without generated code.
//
// Messages are plain Go structs encoded as JSON. The codec registers itself
// under the "json" content subtype, so servers pick it automatically when a
// client sends CallOption; standard protobuf services (such as gRPC health)
// keep working on the same server.
//
// Service descriptors are assembled from typed helpers:
//
//	desc := grpc.ServiceDesc{
//	    ServiceName: "recgate.Echo",
//	    HandlerType: (*Echoer)(nil),
//	    Methods: []grpc.MethodDesc{
//	        grpcjson.Unary("recgate.Echo", "Say", func(ctx context.Context, e Echoer, req *SayRequest) (any, error) {
//	            return e.Say(ctx, req)
//	        }),
//	    },
//	}
package grpcjson
