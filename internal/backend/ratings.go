// ABOUTME: Rating storage plus the mean-rating estimator and recommender
// ABOUTME: Rating vectors are keyed by user (over items) or by item (over users)

package backend

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/2389/recgate/internal/service"
)

// UpdateRating upserts every rating of the user vector.
func (s *Store) UpdateRating(ctx context.Context, rating *service.RatingVector) (bool, error) {
	defer s.track()()
	if rating == nil || len(rating.Ratings) == 0 {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for item, value := range rating.Ratings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ratings (user_id, item_id, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, item_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, rating.ID, item, value, now)
		if err != nil {
			return false, fmt.Errorf("upserting rating %d/%d: %w", rating.ID, item, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing ratings: %w", err)
	}
	return true, nil
}

// DeleteRating removes the listed items from the user vector. It reports
// whether anything was deleted.
func (s *Store) DeleteRating(ctx context.Context, rating *service.RatingVector) (bool, error) {
	defer s.track()()
	if rating == nil {
		return false, nil
	}
	var deleted int64
	for item := range rating.Ratings {
		res, err := s.db.ExecContext(ctx, `DELETE FROM ratings WHERE user_id = ? AND item_id = ?`, rating.ID, item)
		if err != nil {
			return false, fmt.Errorf("deleting rating %d/%d: %w", rating.ID, item, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted > 0, nil
}

func (s *Store) GetUserIDs(ctx context.Context) ([]int, error) {
	defer s.track()()
	return s.ids(ctx, `SELECT user_id FROM ratings UNION SELECT id FROM profiles WHERE kind = 'user' ORDER BY 1`)
}

func (s *Store) GetItemIDs(ctx context.Context) ([]int, error) {
	defer s.track()()
	return s.ids(ctx, `SELECT item_id FROM ratings UNION SELECT id FROM profiles WHERE kind = 'item' ORDER BY 1`)
}

func (s *Store) GetUserRating(ctx context.Context, userID int) (*service.RatingVector, error) {
	defer s.track()()
	return s.vector(ctx, userID, `SELECT item_id, value FROM ratings WHERE user_id = ?`)
}

func (s *Store) GetItemRating(ctx context.Context, itemID int) (*service.RatingVector, error) {
	defer s.track()()
	return s.vector(ctx, itemID, `SELECT user_id, value FROM ratings WHERE item_id = ?`)
}

func (s *Store) DeleteUserRating(ctx context.Context, userID int) (bool, error) {
	defer s.track()()
	return s.exec(ctx, `DELETE FROM ratings WHERE user_id = ?`, userID)
}

func (s *Store) DeleteItemRating(ctx context.Context, itemID int) (bool, error) {
	defer s.track()()
	return s.exec(ctx, `DELETE FROM ratings WHERE item_id = ?`, itemID)
}

// Estimate predicts the user's rating of each item as the item's mean rating,
// or the user's own mean when nobody rated the item yet. Items with neither
// are left out.
func (s *Store) Estimate(ctx context.Context, param service.RecommendParam, itemIDs []int) (*service.RatingVector, error) {
	defer s.track()()

	userMean, hasUserMean, err := s.userMean(ctx, param)
	if err != nil {
		return nil, err
	}

	out := &service.RatingVector{ID: param.UserID, Ratings: make(map[int]float64, len(itemIDs))}
	for _, item := range itemIDs {
		var mean sql.NullFloat64
		if err := s.db.QueryRowContext(ctx, `SELECT AVG(value) FROM ratings WHERE item_id = ?`, item).Scan(&mean); err != nil {
			return nil, fmt.Errorf("estimating item %d: %w", item, err)
		}
		switch {
		case mean.Valid:
			out.Ratings[item] = mean.Float64
		case hasUserMean:
			out.Ratings[item] = userMean
		}
	}
	return out, nil
}

// Recommend returns up to maxRecommend items the user has not rated, highest
// mean rating first. A maxRecommend of zero or less means no limit.
func (s *Store) Recommend(ctx context.Context, param service.RecommendParam, maxRecommend int) (*service.RatingVector, error) {
	defer s.track()()

	rated := make(map[int]bool)
	if param.Ratings != nil {
		for item := range param.Ratings.Ratings {
			rated[item] = true
		}
	}
	own, err := s.vector(ctx, param.UserID, `SELECT item_id, value FROM ratings WHERE user_id = ?`)
	if err == nil {
		for item := range own.Ratings {
			rated[item] = true
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT item_id, AVG(value) FROM ratings GROUP BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("ranking items: %w", err)
	}
	defer rows.Close()

	type scored struct {
		item int
		mean float64
	}
	var candidates []scored
	for rows.Next() {
		var c scored
		if err := rows.Scan(&c.item, &c.mean); err != nil {
			return nil, fmt.Errorf("scanning item mean: %w", err)
		}
		if !rated[c.item] {
			candidates = append(candidates, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].mean != candidates[j].mean {
			return candidates[i].mean > candidates[j].mean
		}
		return candidates[i].item < candidates[j].item
	})
	if maxRecommend > 0 && len(candidates) > maxRecommend {
		candidates = candidates[:maxRecommend]
	}

	out := &service.RatingVector{ID: param.UserID, Ratings: make(map[int]float64, len(candidates))}
	for _, c := range candidates {
		out.Ratings[c.item] = c.mean
	}
	return out, nil
}

func (s *Store) userMean(ctx context.Context, param service.RecommendParam) (float64, bool, error) {
	if param.Ratings != nil && len(param.Ratings.Ratings) > 0 {
		var sum float64
		for _, v := range param.Ratings.Ratings {
			sum += v
		}
		return sum / float64(len(param.Ratings.Ratings)), true, nil
	}
	var mean sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(value) FROM ratings WHERE user_id = ?`, param.UserID).Scan(&mean); err != nil {
		return 0, false, fmt.Errorf("user mean: %w", err)
	}
	return mean.Float64, mean.Valid, nil
}

func (s *Store) ids(ctx context.Context, query string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) vector(ctx context.Context, id int, query string) (*service.RatingVector, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("loading ratings of %d: %w", id, err)
	}
	defer rows.Close()

	v := &service.RatingVector{ID: id, Ratings: make(map[int]float64)}
	for rows.Next() {
		var key int
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning rating: %w", err)
		}
		v.Ratings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(v.Ratings) == 0 {
		return nil, service.ErrNotFound
	}
	return v, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
