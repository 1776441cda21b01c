// ABOUTME: Service interface and data types shared by the gateway and its backends
// ABOUTME: Defines rating vectors, profiles, nominal values, external records and status

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrNotFound is returned when a requested user, item or value does not exist.
var ErrNotFound = errors.New("not found")

// RemoteInfo identifies one backend and the credentials used to bind to it.
type RemoteInfo struct {
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     int    `json:"port" yaml:"port" toml:"port"`
	Account  string `json:"account" yaml:"account" toml:"account"`
	Password string `json:"password" yaml:"password" toml:"password"`
}

// Addr returns host:port.
func (r RemoteInfo) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// SameEndpoint reports whether r and other point at the same host and port.
func (r RemoteInfo) SameEndpoint(host string, port int) bool {
	return r.Host == host && r.Port == port
}

// String renders the endpoint without credentials.
func (r RemoteInfo) String() string {
	return fmt.Sprintf("%s@%s", r.Account, r.Addr())
}

// RatingVector holds the ratings of one user (over items) or one item (over users).
type RatingVector struct {
	ID      int             `json:"id"`
	Ratings map[int]float64 `json:"ratings"`
}

// Len returns the number of rated entries.
func (v *RatingVector) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Ratings)
}

// Profile is the attribute record of a user or an item.
type Profile struct {
	ID         int               `json:"id"`
	ExternalID string            `json:"external_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ExternalRecord maps an internal id onto the id used by an external system.
type ExternalRecord struct {
	InternalID int    `json:"internal_id"`
	ExternalID string `json:"external_id"`
	Source     string `json:"source,omitempty"`
}

// Nominal is one value of a nominal (enumerated) attribute.
type Nominal struct {
	Attribute   string `json:"attribute"`
	Index       int    `json:"index"`
	Value       string `json:"value"`
	ParentIndex int    `json:"parent_index,omitempty"`
}

// RecommendParam carries the subject of an estimate or recommendation.
type RecommendParam struct {
	UserID  int           `json:"userid"`
	Ratings *RatingVector `json:"ratings,omitempty"`
	Profile *Profile      `json:"profile,omitempty"`
}

// Activity is a backend-reported load indicator. Lower means less busy. The
// gateway only relies on Compare; the meaning of Level belongs to the backend.
type Activity struct {
	Level float64 `json:"level"`
}

// Compare returns -1, 0 or 1 as a is less busy, as busy, or busier than b.
func (a Activity) Compare(b Activity) int {
	switch {
	case a.Level < b.Level:
		return -1
	case a.Level > b.Level:
		return 1
	default:
		return 0
	}
}

// Status describes a backend for introspection.
type Status struct {
	Name      string    `json:"name"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Activity  Activity  `json:"activity"`
	Users     int       `json:"users"`
	Items     int       `json:"items"`
	Ratings   int       `json:"ratings"`
}

// Service is the set of operations a backend recommendation server offers.
type Service interface {
	Estimate(ctx context.Context, param RecommendParam, itemIDs []int) (*RatingVector, error)
	Recommend(ctx context.Context, param RecommendParam, maxRecommend int) (*RatingVector, error)

	UpdateRating(ctx context.Context, rating *RatingVector) (bool, error)
	DeleteRating(ctx context.Context, rating *RatingVector) (bool, error)

	GetUserIDs(ctx context.Context) ([]int, error)
	GetUserRating(ctx context.Context, userID int) (*RatingVector, error)
	DeleteUserRating(ctx context.Context, userID int) (bool, error)
	GetUserProfile(ctx context.Context, userID int) (*Profile, error)
	GetUserProfileByExternal(ctx context.Context, externalID string) (*Profile, error)
	UpdateUserProfile(ctx context.Context, profile *Profile) (bool, error)
	DeleteUserProfile(ctx context.Context, userID int) (bool, error)
	GetUserExternalRecord(ctx context.Context, userID int) (*ExternalRecord, error)

	GetItemIDs(ctx context.Context) ([]int, error)
	GetItemRating(ctx context.Context, itemID int) (*RatingVector, error)
	DeleteItemRating(ctx context.Context, itemID int) (bool, error)
	GetItemProfile(ctx context.Context, itemID int) (*Profile, error)
	GetItemProfileByExternal(ctx context.Context, externalID string) (*Profile, error)
	UpdateItemProfile(ctx context.Context, profile *Profile) (bool, error)
	DeleteItemProfile(ctx context.Context, itemID int) (bool, error)
	GetItemExternalRecord(ctx context.Context, itemID int) (*ExternalRecord, error)

	GetNominal(ctx context.Context, attribute string, index int) (*Nominal, error)
	UpdateNominal(ctx context.Context, nominal *Nominal) (bool, error)
	DeleteNominal(ctx context.Context, attribute string, index int) (bool, error)

	ValidateAccount(ctx context.Context, account, password string, privileges int) (bool, error)
	Status(ctx context.Context) (*Status, error)
	Activity(ctx context.Context) (Activity, error)
	Ping(ctx context.Context) error
}
