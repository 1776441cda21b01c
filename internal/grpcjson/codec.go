// ABOUTME: JSON codec for gRPC plus typed builders for method and stream descriptors
// ABOUTME: Registered under the "json" content subtype at package init

package grpcjson

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// Name is the content subtype the codec is registered under.
const Name = "json"

// Codec marshals gRPC messages as JSON.
type Codec struct{}

// Marshal encodes v as JSON.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes JSON data into v.
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the codec name.
func (Codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(Codec{})
}

// CallOption selects the JSON codec for a client call.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(Name)
}

// FullMethod returns the gRPC method path for service and method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// Invoke performs a unary call using the JSON codec.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, req, reply any, opts ...grpc.CallOption) error {
	opts = append(opts, CallOption())
	return conn.Invoke(ctx, FullMethod(service, method), req, reply, opts...)
}

// Unary builds a method descriptor whose handler decodes a *Req and calls fn
// with the registered implementation asserted to S.
func Unary[S any, Req any](service, method string, fn func(ctx context.Context, srv S, req *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			impl, ok := srv.(S)
			if !ok {
				return nil, status.Errorf(codes.Internal, "service %s: unexpected implementation %T", service, srv)
			}
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(ctx, impl, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(service, method)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				typed, ok := r.(*Req)
				if !ok {
					return nil, status.Errorf(codes.Internal, "%s: unexpected request %T", method, r)
				}
				return fn(ctx, impl, typed)
			})
		},
	}
}

// ServerStream builds a server-streaming descriptor. The handler receives the
// single request message first and then owns the stream.
func ServerStream[S any, Req any](stream string, fn func(srv S, req *Req, ss grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    stream,
		ServerStreams: true,
		Handler: func(srv any, ss grpc.ServerStream) error {
			impl, ok := srv.(S)
			if !ok {
				return status.Errorf(codes.Internal, "stream %s: unexpected implementation %T", stream, srv)
			}
			req := new(Req)
			if err := ss.RecvMsg(req); err != nil {
				return fmt.Errorf("receiving %s request: %w", stream, err)
			}
			return fn(impl, req, ss)
		},
	}
}

// OpenServerStream starts a server-streaming call, sends req and half-closes
// the send side. Replies are read with RecvMsg.
func OpenServerStream(ctx context.Context, conn grpc.ClientConnInterface, service, stream string, req any) (grpc.ClientStream, error) {
	desc := &grpc.StreamDesc{StreamName: stream, ServerStreams: true}
	cs, err := conn.NewStream(ctx, desc, FullMethod(service, stream), CallOption())
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}
