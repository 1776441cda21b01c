// ABOUTME: Tests for the JSON gRPC codec and descriptor builders
// ABOUTME: Runs a tiny echo service over bufconn

package grpcjson

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const echoService = "recgate.test.Echo"

type echoer interface {
	Say(ctx context.Context, text string) (string, error)
}

type upperEcho struct{}

func (upperEcho) Say(_ context.Context, text string) (string, error) {
	if text == "" {
		return "", errors.New("empty")
	}
	return strings.ToUpper(text), nil
}

type sayRequest struct {
	Text  string `json:"text"`
	Times int    `json:"times"`
}

type sayReply struct {
	Text string `json:"text"`
}

var echoDesc = grpc.ServiceDesc{
	ServiceName: echoService,
	HandlerType: (*echoer)(nil),
	Methods: []grpc.MethodDesc{
		Unary(echoService, "Say", func(ctx context.Context, e echoer, req *sayRequest) (any, error) {
			out, err := e.Say(ctx, req.Text)
			if err != nil {
				return nil, err
			}
			return &sayReply{Text: out}, nil
		}),
	},
	Streams: []grpc.StreamDesc{
		ServerStream("Repeat", func(e echoer, req *sayRequest, ss grpc.ServerStream) error {
			for i := 0; i < req.Times; i++ {
				out, err := e.Say(ss.Context(), req.Text)
				if err != nil {
					return err
				}
				if err := ss.SendMsg(&sayReply{Text: out}); err != nil {
					return err
				}
			}
			return nil
		}),
	},
}

func dialEcho(t *testing.T, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&echoDesc, upperEcho{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUnaryRoundTrip(t *testing.T) {
	conn := dialEcho(t)

	var reply sayReply
	err := Invoke(context.Background(), conn, echoService, "Say", &sayRequest{Text: "hello"}, &reply)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", reply.Text)

	err = Invoke(context.Background(), conn, echoService, "Say", &sayRequest{}, &reply)
	assert.Error(t, err)
}

func TestUnaryInterceptorSeesTypedRequest(t *testing.T) {
	var seen string
	conn := dialEcho(t, grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		seen = info.FullMethod
		if r, ok := req.(*sayRequest); ok {
			r.Text += "!"
		}
		return handler(ctx, req)
	}))

	var reply sayReply
	require.NoError(t, Invoke(context.Background(), conn, echoService, "Say", &sayRequest{Text: "hi"}, &reply))
	assert.Equal(t, "HI!", reply.Text)
	assert.Equal(t, "/recgate.test.Echo/Say", seen)
}

func TestServerStream(t *testing.T) {
	conn := dialEcho(t)

	cs, err := OpenServerStream(context.Background(), conn, echoService, "Repeat", &sayRequest{Text: "go", Times: 3})
	require.NoError(t, err)

	var got []string
	for {
		var reply sayReply
		err := cs.RecvMsg(&reply)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, reply.Text)
	}
	assert.Equal(t, []string{"GO", "GO", "GO"}, got)
}
