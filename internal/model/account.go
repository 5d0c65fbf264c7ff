package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Account holds a registered identity. Accounts are never removed; a
// deactivated account keeps its row so chat history still resolves.
type Account struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	Roles         []Role     `json:"roles"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// Active reports whether the account may still authenticate.
func (a Account) Active() bool {
	return a.DeactivatedAt == nil
}

// HasRole reports whether r is among the account's roles.
func (a Account) HasRole(r Role) bool {
	return lo.Contains(a.Roles, r)
}
