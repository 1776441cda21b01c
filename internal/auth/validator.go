// ABOUTME: Account validation for native-protocol sessions
// ABOUTME: Asks the selected backend first and falls back to the local account from config

package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/recgate/internal/metrics"
)

// AccountChecker is the part of a backend the validator needs.
type AccountChecker interface {
	ValidateAccount(ctx context.Context, account, password string, privileges int) (bool, error)
}

// LocalAccount is the fallback credential pair. Password may be a bcrypt hash.
type LocalAccount struct {
	Name       string
	Password   string
	Privileges Privileges
}

// Validator checks client credentials.
type Validator struct {
	local  LocalAccount
	cache  *ValidationCache
	logger *slog.Logger
}

// NewValidator creates a validator. cache may be nil to disable caching.
func NewValidator(local LocalAccount, cache *ValidationCache, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{local: local, cache: cache, logger: logger.With("component", "validator")}
}

// Validate reports whether account and password are accepted with the
// requested privileges. The Access bit is always required. When backend is
// non-nil and answers, its verdict is final; otherwise the local account is
// consulted.
func (v *Validator) Validate(ctx context.Context, backend AccountChecker, account, password string, privileges Privileges) bool {
	if !privileges.Has(Access) {
		v.reject(account, "access bit missing")
		return false
	}

	key := ValidationKey(checkerScope(backend), account, password, privileges)
	if v.cache != nil && v.cache.Check(key) {
		return true
	}

	ok, answered := v.askBackend(ctx, backend, account, password, privileges)
	if !answered {
		ok = v.checkLocal(account, password, privileges)
	}

	if !ok {
		if v.cache != nil {
			v.cache.Forget(key)
		}
		v.reject(account, "credentials rejected")
		return false
	}
	if v.cache != nil {
		v.cache.Mark(key)
	}
	return true
}

// checkerScope names who answers for a credential, so one backend's verdict
// is never reused for another. Checkers that know their endpoint use it and
// survive a rebind; others are keyed by identity.
func checkerScope(backend AccountChecker) string {
	switch b := backend.(type) {
	case nil:
		return "local"
	case interface{ Addr() string }:
		return b.Addr()
	default:
		return fmt.Sprintf("%T@%p", b, b)
	}
}

func (v *Validator) askBackend(ctx context.Context, backend AccountChecker, account, password string, privileges Privileges) (ok, answered bool) {
	if backend == nil {
		return false, false
	}
	ok, err := backend.ValidateAccount(ctx, account, password, int(privileges))
	if err != nil {
		v.logger.Warn("backend account check failed, using local account", "account", account, "error", err)
		return false, false
	}
	return ok, true
}

func (v *Validator) checkLocal(account, password string, privileges Privileges) bool {
	if v.local.Name == "" || account != v.local.Name {
		return false
	}
	if !v.local.Privileges.Has(privileges) {
		return false
	}
	return PasswordMatches(v.local.Password, password)
}

func (v *Validator) reject(account, reason string) {
	metrics.AuthFailuresTotal.WithLabelValues("native").Inc()
	v.logger.Info("account rejected", "account", account, "reason", reason)
}

// PasswordMatches compares password against stored, which is either a bcrypt
// hash or a plain string compared in constant time.
func PasswordMatches(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// HashPassword returns a bcrypt hash suitable for account.password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
