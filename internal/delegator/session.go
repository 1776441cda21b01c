// ABOUTME: Per-connection session created by the first authenticated native request
// ABOUTME: Owned by one Delegator and dropped with its connection

package delegator

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/recgate/internal/auth"
)

// Session records the account a connection authenticated as.
type Session struct {
	ID         string
	Account    string
	Privileges auth.Privileges
	Created    time.Time
}

func newSession(account string, privileges auth.Privileges) *Session {
	return &Session{
		ID:         uuid.New().String(),
		Account:    account,
		Privileges: privileges,
		Created:    time.Now().UTC(),
	}
}

// Allows reports whether the session may perform an action needing want.
func (s *Session) Allows(want auth.Privileges) bool {
	return s != nil && s.Privileges.Has(want)
}
