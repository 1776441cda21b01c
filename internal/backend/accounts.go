// ABOUTME: Backend accounts with bcrypt password hashes and privilege bitmasks
// ABOUTME: ValidateAccount is what the gateway calls when binding and on session creation

package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PutAccount creates or replaces an account.
func (s *Store) PutAccount(ctx context.Context, name, password string, privileges int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (name, password_hash, privileges) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET password_hash = excluded.password_hash, privileges = excluded.privileges
	`, name, string(hash), privileges)
	if err != nil {
		return fmt.Errorf("saving account %s: %w", name, err)
	}
	return nil
}

// ValidateAccount reports whether the password matches and the account holds
// every requested privilege bit.
func (s *Store) ValidateAccount(ctx context.Context, account, password string, privileges int) (bool, error) {
	defer s.track()()

	var hash string
	var granted int
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, privileges FROM accounts WHERE name = ?`, account,
	).Scan(&hash, &granted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading account %s: %w", account, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return false, nil
	}
	return granted&privileges == privileges, nil
}
