// ABOUTME: User and item profiles, external id records and nominal attribute values
// ABOUTME: Attributes are stored as a JSON object per profile row

package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/recgate/internal/service"
)

func (s *Store) GetUserProfile(ctx context.Context, userID int) (*service.Profile, error) {
	defer s.track()()
	return s.profile(ctx, kindUser, `id = ?`, userID)
}

func (s *Store) GetItemProfile(ctx context.Context, itemID int) (*service.Profile, error) {
	defer s.track()()
	return s.profile(ctx, kindItem, `id = ?`, itemID)
}

func (s *Store) GetUserProfileByExternal(ctx context.Context, externalID string) (*service.Profile, error) {
	defer s.track()()
	return s.profile(ctx, kindUser, `external_id = ?`, externalID)
}

func (s *Store) GetItemProfileByExternal(ctx context.Context, externalID string) (*service.Profile, error) {
	defer s.track()()
	return s.profile(ctx, kindItem, `external_id = ?`, externalID)
}

func (s *Store) UpdateUserProfile(ctx context.Context, profile *service.Profile) (bool, error) {
	defer s.track()()
	return s.putProfile(ctx, kindUser, profile)
}

func (s *Store) UpdateItemProfile(ctx context.Context, profile *service.Profile) (bool, error) {
	defer s.track()()
	return s.putProfile(ctx, kindItem, profile)
}

func (s *Store) DeleteUserProfile(ctx context.Context, userID int) (bool, error) {
	defer s.track()()
	return s.exec(ctx, `DELETE FROM profiles WHERE kind = ? AND id = ?`, kindUser, userID)
}

func (s *Store) DeleteItemProfile(ctx context.Context, itemID int) (bool, error) {
	defer s.track()()
	return s.exec(ctx, `DELETE FROM profiles WHERE kind = ? AND id = ?`, kindItem, itemID)
}

func (s *Store) GetUserExternalRecord(ctx context.Context, userID int) (*service.ExternalRecord, error) {
	defer s.track()()
	return s.externalRecord(ctx, kindUser, userID)
}

func (s *Store) GetItemExternalRecord(ctx context.Context, itemID int) (*service.ExternalRecord, error) {
	defer s.track()()
	return s.externalRecord(ctx, kindItem, itemID)
}

func (s *Store) profile(ctx context.Context, kind, where string, arg any) (*service.Profile, error) {
	var p service.Profile
	var attrs string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, attributes FROM profiles WHERE kind = ? AND `+where+` LIMIT 1`,
		kind, arg,
	).Scan(&p.ID, &p.ExternalID, &attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s profile: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
		return nil, fmt.Errorf("decoding %s profile %d: %w", kind, p.ID, err)
	}
	return &p, nil
}

func (s *Store) putProfile(ctx context.Context, kind string, p *service.Profile) (bool, error) {
	if p == nil {
		return false, nil
	}
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return false, fmt.Errorf("encoding attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (kind, id, external_id, attributes) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET external_id = excluded.external_id, attributes = excluded.attributes
	`, kind, p.ID, p.ExternalID, string(raw))
	if err != nil {
		return false, fmt.Errorf("saving %s profile %d: %w", kind, p.ID, err)
	}
	return true, nil
}

func (s *Store) externalRecord(ctx context.Context, kind string, id int) (*service.ExternalRecord, error) {
	var external string
	err := s.db.QueryRowContext(ctx,
		`SELECT external_id FROM profiles WHERE kind = ? AND id = ?`, kind, id,
	).Scan(&external)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && external == "") {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s external record: %w", kind, err)
	}
	return &service.ExternalRecord{InternalID: id, ExternalID: external, Source: s.name}, nil
}

// GetNominal returns one value of a nominal attribute.
func (s *Store) GetNominal(ctx context.Context, attribute string, index int) (*service.Nominal, error) {
	defer s.track()()
	n := service.Nominal{Attribute: attribute, Index: index}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, parent_index FROM nominals WHERE attribute = ? AND idx = ?`, attribute, index,
	).Scan(&n.Value, &n.ParentIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading nominal %s/%d: %w", attribute, index, err)
	}
	return &n, nil
}

// UpdateNominal upserts a nominal value.
func (s *Store) UpdateNominal(ctx context.Context, n *service.Nominal) (bool, error) {
	defer s.track()()
	if n == nil || n.Attribute == "" {
		return false, nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nominals (attribute, idx, value, parent_index) VALUES (?, ?, ?, ?)
		ON CONFLICT (attribute, idx) DO UPDATE SET value = excluded.value, parent_index = excluded.parent_index
	`, n.Attribute, n.Index, n.Value, n.ParentIndex)
	if err != nil {
		return false, fmt.Errorf("saving nominal %s/%d: %w", n.Attribute, n.Index, err)
	}
	return true, nil
}

// DeleteNominal removes a nominal value.
func (s *Store) DeleteNominal(ctx context.Context, attribute string, index int) (bool, error) {
	defer s.track()()
	return s.exec(ctx, `DELETE FROM nominals WHERE attribute = ? AND idx = ?`, attribute, index)
}
