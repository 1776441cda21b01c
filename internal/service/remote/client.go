// ABOUTME: gRPC client implementing Service against a remote backend
// ABOUTME: Dial validates credentials up front; Ping uses gRPC health; Watch streams events

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/2389/recgate/internal/grpcjson"
	"github.com/2389/recgate/internal/service"
)

// ErrBadCredentials is returned by Dial when the backend rejects the account.
var ErrBadCredentials = errors.New("backend rejected credentials")

// ErrNotServing is returned by Ping when the backend reports it is not serving.
var ErrNotServing = errors.New("backend not serving")

// accessPrivilege is the bit a bound account must hold.
const accessPrivilege = 1

// Client talks to one backend.
type Client struct {
	info   service.RemoteInfo
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	logger *slog.Logger
}

// Dialer builds clients with shared dial options.
type Dialer struct {
	Options []grpc.DialOption
	Logger  *slog.Logger
}

// Dial connects to info and checks its credentials.
func (d *Dialer) Dial(ctx context.Context, info service.RemoteInfo) (*Client, error) {
	return Dial(ctx, info, d.Logger, d.Options...)
}

// Dial connects to the backend at info and validates info's account against
// it. A rejected account yields ErrBadCredentials.
func Dial(ctx context.Context, info service.RemoteInfo, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient("passthrough:///"+info.Addr(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", info, err)
	}

	c := &Client{
		info:   info,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		logger: logger.With("component", "remote-client", "backend", info.String()),
	}

	ok, err := c.ValidateAccount(ctx, info.Account, info.Password, accessPrivilege)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("validating account on %s: %w", info, err)
	}
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", info, ErrBadCredentials)
	}
	return c, nil
}

// Info returns the endpoint this client is bound to.
func (c *Client) Info() service.RemoteInfo {
	return c.info
}

// Addr returns the backend's host:port.
func (c *Client) Addr() string {
	return c.info.Addr()
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Watch subscribes obs to the backend's lifecycle events until stop is
// called or the stream breaks.
func (c *Client) Watch(obs service.Observer) (stop func(), err error) {
	ctx, cancel := context.WithCancel(context.Background())
	cs, err := grpcjson.OpenServerStream(ctx, c.conn, ServiceName, "Watch", &emptyRequest{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening watch on %s: %w", c.info, err)
	}

	go func() {
		defer cancel()
		for {
			var ev service.Event
			err := cs.RecvMsg(&ev)
			if err != nil {
				if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
					c.logger.Debug("watch ended", "error", err)
				}
				return
			}
			obs.OnEvent(ev)
		}
	}()
	return cancel, nil
}

// Ping reports an error unless the backend's health service says SERVING.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check %s: %w", c.info, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s: %w", c.info, resp.GetStatus(), ErrNotServing)
	}
	return nil
}

func call[T any](ctx context.Context, c *Client, method string, req any) (T, error) {
	var out valueReply[T]
	if err := grpcjson.Invoke(ctx, c.conn, ServiceName, method, req, &out); err != nil {
		var zero T
		return zero, fromStatus(err)
	}
	return out.Value, nil
}

func fromStatus(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", status.Convert(err).Message(), service.ErrNotFound)
	}
	return err
}

// Estimate asks the backend to predict ratings for itemIDs.
func (c *Client) Estimate(ctx context.Context, param service.RecommendParam, itemIDs []int) (*service.RatingVector, error) {
	return call[*service.RatingVector](ctx, c, "Estimate", &estimateRequest{Param: param, ItemIDs: itemIDs})
}

// Recommend asks the backend for up to maxRecommend items.
func (c *Client) Recommend(ctx context.Context, param service.RecommendParam, maxRecommend int) (*service.RatingVector, error) {
	return call[*service.RatingVector](ctx, c, "Recommend", &recommendRequest{Param: param, MaxRecommend: maxRecommend})
}

// UpdateRating stores the ratings in rating.
func (c *Client) UpdateRating(ctx context.Context, rating *service.RatingVector) (bool, error) {
	return call[bool](ctx, c, "UpdateRating", &ratingRequest{Rating: rating})
}

// DeleteRating removes the listed ratings.
func (c *Client) DeleteRating(ctx context.Context, rating *service.RatingVector) (bool, error) {
	return call[bool](ctx, c, "DeleteRating", &ratingRequest{Rating: rating})
}

// GetUserIDs lists every known user.
func (c *Client) GetUserIDs(ctx context.Context) ([]int, error) {
	return call[[]int](ctx, c, "GetUserIDs", &emptyRequest{})
}

// GetUserRating returns the ratings a user gave.
func (c *Client) GetUserRating(ctx context.Context, userID int) (*service.RatingVector, error) {
	return call[*service.RatingVector](ctx, c, "GetUserRating", &idRequest{ID: userID})
}

// DeleteUserRating removes every rating by a user.
func (c *Client) DeleteUserRating(ctx context.Context, userID int) (bool, error) {
	return call[bool](ctx, c, "DeleteUserRating", &idRequest{ID: userID})
}

// GetUserProfile returns a user's profile.
func (c *Client) GetUserProfile(ctx context.Context, userID int) (*service.Profile, error) {
	return call[*service.Profile](ctx, c, "GetUserProfile", &idRequest{ID: userID})
}

// GetUserProfileByExternal looks a user up by external id.
func (c *Client) GetUserProfileByExternal(ctx context.Context, externalID string) (*service.Profile, error) {
	return call[*service.Profile](ctx, c, "GetUserProfileByExternal", &externalRequest{ExternalID: externalID})
}

// UpdateUserProfile creates or replaces a user profile.
func (c *Client) UpdateUserProfile(ctx context.Context, profile *service.Profile) (bool, error) {
	return call[bool](ctx, c, "UpdateUserProfile", &profileRequest{Profile: profile})
}

// DeleteUserProfile removes a user profile.
func (c *Client) DeleteUserProfile(ctx context.Context, userID int) (bool, error) {
	return call[bool](ctx, c, "DeleteUserProfile", &idRequest{ID: userID})
}

// GetUserExternalRecord returns a user's external id mapping.
func (c *Client) GetUserExternalRecord(ctx context.Context, userID int) (*service.ExternalRecord, error) {
	return call[*service.ExternalRecord](ctx, c, "GetUserExternalRecord", &idRequest{ID: userID})
}

// GetItemIDs lists every known item.
func (c *Client) GetItemIDs(ctx context.Context) ([]int, error) {
	return call[[]int](ctx, c, "GetItemIDs", &emptyRequest{})
}

// GetItemRating returns the ratings an item received.
func (c *Client) GetItemRating(ctx context.Context, itemID int) (*service.RatingVector, error) {
	return call[*service.RatingVector](ctx, c, "GetItemRating", &idRequest{ID: itemID})
}

// DeleteItemRating removes every rating of an item.
func (c *Client) DeleteItemRating(ctx context.Context, itemID int) (bool, error) {
	return call[bool](ctx, c, "DeleteItemRating", &idRequest{ID: itemID})
}

// GetItemProfile returns an item's profile.
func (c *Client) GetItemProfile(ctx context.Context, itemID int) (*service.Profile, error) {
	return call[*service.Profile](ctx, c, "GetItemProfile", &idRequest{ID: itemID})
}

// GetItemProfileByExternal looks an item up by external id.
func (c *Client) GetItemProfileByExternal(ctx context.Context, externalID string) (*service.Profile, error) {
	return call[*service.Profile](ctx, c, "GetItemProfileByExternal", &externalRequest{ExternalID: externalID})
}

// UpdateItemProfile creates or replaces an item profile.
func (c *Client) UpdateItemProfile(ctx context.Context, profile *service.Profile) (bool, error) {
	return call[bool](ctx, c, "UpdateItemProfile", &profileRequest{Profile: profile})
}

// DeleteItemProfile removes an item profile.
func (c *Client) DeleteItemProfile(ctx context.Context, itemID int) (bool, error) {
	return call[bool](ctx, c, "DeleteItemProfile", &idRequest{ID: itemID})
}

// GetItemExternalRecord returns an item's external id mapping.
func (c *Client) GetItemExternalRecord(ctx context.Context, itemID int) (*service.ExternalRecord, error) {
	return call[*service.ExternalRecord](ctx, c, "GetItemExternalRecord", &idRequest{ID: itemID})
}

// GetNominal returns the nominal value at index of attribute.
func (c *Client) GetNominal(ctx context.Context, attribute string, index int) (*service.Nominal, error) {
	return call[*service.Nominal](ctx, c, "GetNominal", &nominalKeyRequest{Attribute: attribute, Index: index})
}

// UpdateNominal stores a nominal value.
func (c *Client) UpdateNominal(ctx context.Context, nominal *service.Nominal) (bool, error) {
	return call[bool](ctx, c, "UpdateNominal", &nominalRequest{Nominal: nominal})
}

// DeleteNominal removes a nominal value.
func (c *Client) DeleteNominal(ctx context.Context, attribute string, index int) (bool, error) {
	return call[bool](ctx, c, "DeleteNominal", &nominalKeyRequest{Attribute: attribute, Index: index})
}

// ValidateAccount asks the backend whether the credentials hold privileges.
func (c *Client) ValidateAccount(ctx context.Context, account, password string, privileges int) (bool, error) {
	return call[bool](ctx, c, "ValidateAccount", &accountRequest{Account: account, Password: password, Privileges: privileges})
}

// Status returns the backend's self-reported status.
func (c *Client) Status(ctx context.Context) (*service.Status, error) {
	return call[*service.Status](ctx, c, "Status", &emptyRequest{})
}

// Activity returns the backend's current load.
func (c *Client) Activity(ctx context.Context) (service.Activity, error) {
	return call[service.Activity](ctx, c, "Activity", &emptyRequest{})
}

var _ service.Service = (*Client)(nil)
