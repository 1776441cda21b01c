// ABOUTME: In-memory Service stub for tests across the gateway packages
// ABOUTME: Records calls and serves canned ratings, profiles, ids and activity levels

package servicetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2389/recgate/internal/service"
)

// Account is a credential known to the stub.
type Account struct {
	Password   string
	Privileges int
}

// Stub implements service.Service over in-memory maps. Zero maps are created
// by New; tests fill the exported fields before use.
type Stub struct {
	mu sync.Mutex

	Name           string
	UserIDs        []int
	ItemIDs        []int
	UserRatings    map[int]*service.RatingVector
	ItemRatings    map[int]*service.RatingVector
	UserProfiles   map[int]*service.Profile
	ItemProfiles   map[int]*service.Profile
	Nominals       map[string]*service.Nominal
	Accounts       map[string]Account
	Recommendation *service.RatingVector
	Estimation     *service.RatingVector

	level   float64
	pingErr error
	err     error
	calls   map[string]int
}

// New creates a stub with an admin/admin account holding all privileges.
func New(name string) *Stub {
	return &Stub{
		Name:         name,
		UserRatings:  make(map[int]*service.RatingVector),
		ItemRatings:  make(map[int]*service.RatingVector),
		UserProfiles: make(map[int]*service.Profile),
		ItemProfiles: make(map[int]*service.Profile),
		Nominals:     make(map[string]*service.Nominal),
		Accounts:     map[string]Account{"admin": {Password: "admin", Privileges: 7}},
		calls:        make(map[string]int),
	}
}

// SetActivity sets the level reported by Activity.
func (s *Stub) SetActivity(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// SetPingErr makes Ping fail with err (nil restores liveness).
func (s *Stub) SetPingErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// SetErr makes every data operation fail with err.
func (s *Stub) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how often method was invoked.
func (s *Stub) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of data operations served.
func (s *Stub) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for m, c := range s.calls {
		if m != "Ping" && m != "Activity" {
			n += c
		}
	}
	return n
}

// enter records a call and returns the injected error; the caller holds mu
// until it returns.
func (s *Stub) enter(method string) error {
	s.mu.Lock()
	s.calls[method]++
	return s.err
}

func nominalKey(attribute string, index int) string {
	return fmt.Sprintf("%s#%d", attribute, index)
}

func (s *Stub) Estimate(_ context.Context, param service.RecommendParam, itemIDs []int) (*service.RatingVector, error) {
	defer s.mu.Unlock()
	if err := s.enter("Estimate"); err != nil {
		return nil, err
	}
	if s.Estimation != nil {
		return s.Estimation, nil
	}
	out := &service.RatingVector{ID: param.UserID, Ratings: make(map[int]float64, len(itemIDs))}
	for _, id := range itemIDs {
		out.Ratings[id] = 3
	}
	return out, nil
}

func (s *Stub) Recommend(_ context.Context, _ service.RecommendParam, _ int) (*service.RatingVector, error) {
	defer s.mu.Unlock()
	if err := s.enter("Recommend"); err != nil {
		return nil, err
	}
	return s.Recommendation, nil
}

func (s *Stub) UpdateRating(_ context.Context, rating *service.RatingVector) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("UpdateRating"); err != nil {
		return false, err
	}
	if rating == nil {
		return false, nil
	}
	current, ok := s.UserRatings[rating.ID]
	if !ok {
		current = &service.RatingVector{ID: rating.ID, Ratings: make(map[int]float64)}
		s.UserRatings[rating.ID] = current
	}
	for item, v := range rating.Ratings {
		current.Ratings[item] = v
	}
	return true, nil
}

func (s *Stub) DeleteRating(_ context.Context, rating *service.RatingVector) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("DeleteRating"); err != nil {
		return false, err
	}
	if rating == nil {
		return false, nil
	}
	current, ok := s.UserRatings[rating.ID]
	if !ok {
		return false, nil
	}
	for item := range rating.Ratings {
		delete(current.Ratings, item)
	}
	return true, nil
}

func (s *Stub) GetUserIDs(context.Context) ([]int, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserIDs"); err != nil {
		return nil, err
	}
	return append([]int(nil), s.UserIDs...), nil
}

func (s *Stub) GetUserRating(_ context.Context, userID int) (*service.RatingVector, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserRating"); err != nil {
		return nil, err
	}
	v, ok := s.UserRatings[userID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return v, nil
}

func (s *Stub) DeleteUserRating(_ context.Context, userID int) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("DeleteUserRating"); err != nil {
		return false, err
	}
	_, ok := s.UserRatings[userID]
	delete(s.UserRatings, userID)
	return ok, nil
}

func (s *Stub) GetUserProfile(_ context.Context, userID int) (*service.Profile, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserProfile"); err != nil {
		return nil, err
	}
	p, ok := s.UserProfiles[userID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return p, nil
}

func (s *Stub) GetUserProfileByExternal(_ context.Context, externalID string) (*service.Profile, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserProfileByExternal"); err != nil {
		return nil, err
	}
	for _, p := range s.UserProfiles {
		if p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s *Stub) UpdateUserProfile(_ context.Context, profile *service.Profile) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("UpdateUserProfile"); err != nil {
		return false, err
	}
	if profile == nil {
		return false, nil
	}
	s.UserProfiles[profile.ID] = profile
	return true, nil
}

func (s *Stub) DeleteUserProfile(_ context.Context, userID int) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("DeleteUserProfile"); err != nil {
		return false, err
	}
	_, ok := s.UserProfiles[userID]
	delete(s.UserProfiles, userID)
	return ok, nil
}

func (s *Stub) GetUserExternalRecord(_ context.Context, userID int) (*service.ExternalRecord, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserExternalRecord"); err != nil {
		return nil, err
	}
	p, ok := s.UserProfiles[userID]
	if !ok || p.ExternalID == "" {
		return nil, service.ErrNotFound
	}
	return &service.ExternalRecord{InternalID: userID, ExternalID: p.ExternalID, Source: s.Name}, nil
}

func (s *Stub) GetItemIDs(context.Context) ([]int, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetItemIDs"); err != nil {
		return nil, err
	}
	return append([]int(nil), s.ItemIDs...), nil
}

func (s *Stub) GetItemRating(_ context.Context, itemID int) (*service.RatingVector, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetItemRating"); err != nil {
		return nil, err
	}
	v, ok := s.ItemRatings[itemID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return v, nil
}

func (s *Stub) DeleteItemRating(_ context.Context, itemID int) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("DeleteItemRating"); err != nil {
		return false, err
	}
	_, ok := s.ItemRatings[itemID]
	delete(s.ItemRatings, itemID)
	return ok, nil
}

func (s *Stub) GetItemProfile(_ context.Context, itemID int) (*service.Profile, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetItemProfile"); err != nil {
		return nil, err
	}
	p, ok := s.ItemProfiles[itemID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return p, nil
}

func (s *Stub) GetItemProfileByExternal(_ context.Context, externalID string) (*service.Profile, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetItemProfileByExternal"); err != nil {
		return nil, err
	}
	for _, p := range s.ItemProfiles {
		if p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s *Stub) UpdateItemProfile(_ context.Context, profile *service.Profile) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("UpdateItemProfile"); err != nil {
		return false, err
	}
	if profile == nil {
		return false, nil
	}
	s.ItemProfiles[profile.ID] = profile
	return true, nil
}

func (s *Stub) DeleteItemProfile(_ context.Context, itemID int) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("DeleteItemProfile"); err != nil {
		return false, err
	}
	_, ok := s.ItemProfiles[itemID]
	delete(s.ItemProfiles, itemID)
	return ok, nil
}

func (s *Stub) GetItemExternalRecord(_ context.Context, itemID int) (*service.ExternalRecord, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetItemExternalRecord"); err != nil {
		return nil, err
	}
	p, ok := s.ItemProfiles[itemID]
	if !ok || p.ExternalID == "" {
		return nil, service.ErrNotFound
	}
	return &service.ExternalRecord{InternalID: itemID, ExternalID: p.ExternalID, Source: s.Name}, nil
}

func (s *Stub) GetNominal(_ context.Context, attribute string, index int) (*service.Nominal, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetNominal"); err != nil {
		return nil, err
	}
	n, ok := s.Nominals[nominalKey(attribute, index)]
	if !ok {
		return nil, service.ErrNotFound
	}
	return n, nil
}

func (s *Stub) UpdateNominal(_ context.Context, nominal *service.Nominal) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("UpdateNominal"); err != nil {
		return false, err
	}
	if nominal == nil {
		return false, nil
	}
	s.Nominals[nominalKey(nominal.Attribute, nominal.Index)] = nominal
	return true, nil
}

func (s *Stub) DeleteNominal(_ context.Context, attribute string, index int) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("DeleteNominal"); err != nil {
		return false, err
	}
	key := nominalKey(attribute, index)
	_, ok := s.Nominals[key]
	delete(s.Nominals, key)
	return ok, nil
}

func (s *Stub) ValidateAccount(_ context.Context, account, password string, privileges int) (bool, error) {
	defer s.mu.Unlock()
	if err := s.enter("ValidateAccount"); err != nil {
		return false, err
	}
	acc, ok := s.Accounts[account]
	if !ok || acc.Password != password {
		return false, nil
	}
	return acc.Privileges&privileges == privileges, nil
}

func (s *Stub) Status(context.Context) (*service.Status, error) {
	defer s.mu.Unlock()
	if err := s.enter("Status"); err != nil {
		return nil, err
	}
	return &service.Status{
		Name:      s.Name,
		StartedAt: time.Unix(0, 0).UTC(),
		Activity:  service.Activity{Level: s.level},
		Users:     len(s.UserIDs),
		Items:     len(s.ItemIDs),
		Ratings:   len(s.UserRatings),
	}, nil
}

func (s *Stub) Activity(context.Context) (service.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Activity"]++
	return service.Activity{Level: s.level}, nil
}

func (s *Stub) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Ping"]++
	return s.pingErr
}

var _ service.Service = (*Stub)(nil)
