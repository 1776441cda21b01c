// ABOUTME: Client for the control service used by the admin CLI
// ABOUTME: Attaches the bearer token to every call and decodes JSON replies

package control

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/2389/recgate/internal/auth"
	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/gateway"
	"github.com/2389/recgate/internal/grpcjson"
	"github.com/2389/recgate/internal/service"
)

// Client calls a control service.
type Client struct {
	conn  grpc.ClientConnInterface
	name  string
	token string
	owned *grpc.ClientConn
}

// NewClient wraps an existing connection. token may be empty when the
// service runs without auth.
func NewClient(conn grpc.ClientConnInterface, name, token string) *Client {
	return &Client{conn: conn, name: name, token: token}
}

// Dial connects to the control service at addr.
func Dial(addr, name, token string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	c := NewClient(conn, name, token)
	c.owned = conn
	return c, nil
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

func (c *Client) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) ack(ctx context.Context, method string) (bool, error) {
	var reply ackReply
	if err := grpcjson.Invoke(c.withToken(ctx), c.conn, c.name, method, &emptyRequest{}, &reply); err != nil {
		return false, err
	}
	return reply.OK, nil
}

// Start starts the gateway.
func (c *Client) Start(ctx context.Context) error {
	_, err := c.ack(ctx, "Start")
	return err
}

// Stop stops the gateway and reports whether it was running.
func (c *Client) Stop(ctx context.Context) (bool, error) { return c.ack(ctx, "Stop") }

// Pause pauses the gateway.
func (c *Client) Pause(ctx context.Context) (bool, error) { return c.ack(ctx, "Pause") }

// Resume resumes a paused gateway.
func (c *Client) Resume(ctx context.Context) (bool, error) { return c.ack(ctx, "Resume") }

// Exit asks the gateway process to exit.
func (c *Client) Exit(ctx context.Context) error {
	_, err := c.ack(ctx, "Exit")
	return err
}

// GetConfig returns the running configuration with secrets blanked.
func (c *Client) GetConfig(ctx context.Context) (*config.Config, error) {
	var reply configMessage
	if err := grpcjson.Invoke(c.withToken(ctx), c.conn, c.name, "GetConfig", &emptyRequest{}, &reply); err != nil {
		return nil, err
	}
	if reply.Config == nil {
		return nil, errors.New("empty config reply")
	}
	return reply.Config, nil
}

// SetConfig replaces the running configuration. Blank secrets keep their
// current values.
func (c *Client) SetConfig(ctx context.Context, cfg *config.Config) error {
	var reply ackReply
	return grpcjson.Invoke(c.withToken(ctx), c.conn, c.name, "SetConfig", &configMessage{Config: cfg}, &reply)
}

// ValidateAccount checks credentials against the gateway's account rules.
func (c *Client) ValidateAccount(ctx context.Context, account, password string, privileges auth.Privileges) (bool, error) {
	var reply ackReply
	req := &validateRequest{Account: account, Password: password, Privileges: privileges}
	if err := grpcjson.Invoke(c.withToken(ctx), c.conn, c.name, "ValidateAccount", req, &reply); err != nil {
		return false, err
	}
	return reply.OK, nil
}

// Status returns the gateway's status snapshot.
func (c *Client) Status(ctx context.Context) (*gateway.Status, error) {
	var st gateway.Status
	if err := grpcjson.Invoke(c.withToken(ctx), c.conn, c.name, "Status", &emptyRequest{}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Watch calls fn for every lifecycle event until ctx ends or the service
// closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(service.Event)) error {
	cs, err := grpcjson.OpenServerStream(c.withToken(ctx), c.conn, c.name, "Watch", &emptyRequest{})
	if err != nil {
		return err
	}
	for {
		var ev service.Event
		if err := cs.RecvMsg(&ev); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(ev)
	}
}
