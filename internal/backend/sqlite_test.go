// ABOUTME: Tests for the SQLite reference backend
// ABOUTME: Covers rating CRUD, profiles, nominals, accounts and the mean-rating ranking

package backend

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/recgate/internal/service"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "backend.db"), "test-backend", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRatings(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, v := range []*service.RatingVector{
		{ID: 1, Ratings: map[int]float64{100: 5, 101: 3}},
		{ID: 2, Ratings: map[int]float64{100: 4, 102: 2}},
		{ID: 3, Ratings: map[int]float64{101: 1, 103: 4.5}},
	} {
		ok, err := s.UpdateRating(ctx, v)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestRatings_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedRatings(t, s)

	users, err := s.GetUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, users)

	items, err := s.GetItemIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 101, 102, 103}, items)

	v, err := s.GetUserRating(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{100: 5, 101: 3}, v.Ratings)

	v, err = s.GetItemRating(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{1: 5, 2: 4}, v.Ratings)

	ok, err := s.DeleteRating(ctx, &service.RatingVector{ID: 1, Ratings: map[int]float64{101: 0}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteUserRating(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.GetUserRating(ctx, 2)
	assert.ErrorIs(t, err, service.ErrNotFound)

	ok, err = s.DeleteItemRating(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecommend_RanksUnratedByMean(t *testing.T) {
	s := newTestStore(t)
	seedRatings(t, s)

	// user 1 rated 100 and 101; 103 (4.5) beats 102 (2)
	rec, err := s.Recommend(context.Background(), service.RecommendParam{UserID: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{103: 4.5}, rec.Ratings)

	rec, err = s.Recommend(context.Background(), service.RecommendParam{UserID: 1}, 0)
	require.NoError(t, err)
	assert.Len(t, rec.Ratings, 2)
}

func TestEstimate_FallsBackToUserMean(t *testing.T) {
	s := newTestStore(t)
	seedRatings(t, s)

	est, err := s.Estimate(context.Background(), service.RecommendParam{UserID: 1}, []int{100, 555})
	require.NoError(t, err)
	assert.InDelta(t, 4.5, est.Ratings[100], 1e-9)
	assert.InDelta(t, 4.0, est.Ratings[555], 1e-9)
}

func TestProfiles_AndExternalRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.UpdateUserProfile(ctx, &service.Profile{ID: 7, ExternalID: "u-7", Attributes: map[string]string{"age": "31"}})
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := s.GetUserProfileByExternal(ctx, "u-7")
	require.NoError(t, err)
	assert.Equal(t, 7, p.ID)
	assert.Equal(t, "31", p.Attributes["age"])

	rec, err := s.GetUserExternalRecord(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "u-7", rec.ExternalID)
	assert.Equal(t, "test-backend", rec.Source)

	_, err = s.GetItemProfile(ctx, 7)
	assert.ErrorIs(t, err, service.ErrNotFound)

	ok, err = s.UpdateItemProfile(ctx, &service.Profile{ID: 8})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.GetItemExternalRecord(ctx, 8)
	assert.ErrorIs(t, err, service.ErrNotFound)

	ok, err = s.DeleteUserProfile(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.GetUserProfile(ctx, 7)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestNominals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.UpdateNominal(ctx, &service.Nominal{Attribute: "genre", Index: 1, Value: "rock"})
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.GetNominal(ctx, "genre", 1)
	require.NoError(t, err)
	assert.Equal(t, "rock", n.Value)

	ok, err = s.DeleteNominal(ctx, "genre", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.GetNominal(ctx, "genre", 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutAccount(ctx, "reader", "pw", 1))

	ok, err := s.ValidateAccount(ctx, "reader", "pw", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ValidateAccount(ctx, "reader", "pw", 3)
	require.NoError(t, err)
	assert.False(t, ok, "update bit not granted")

	ok, err = s.ValidateAccount(ctx, "reader", "nope", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ValidateAccount(ctx, "ghost", "pw", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusAndActivity(t *testing.T) {
	s := newTestStore(t)
	seedRatings(t, s)
	ctx := context.Background()

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-backend", st.Name)
	assert.Equal(t, 3, st.Users)
	assert.Equal(t, 4, st.Items)
	assert.Equal(t, 6, st.Ratings)

	act, err := s.Activity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, act.Level)
	require.NoError(t, s.Ping(ctx))
}
