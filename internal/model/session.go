package model

import (
	"time"

	"github.com/google/uuid"
)

// Session proves a prior successful login. Token is only populated on the
// value returned by the issuer; stores persist TokenHash instead.
type Session struct {
	Token     string    `json:"token,omitempty"`
	TokenHash string    `json:"-"`
	AccountID uuid.UUID `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session is past its lifetime at t. A session
// is valid strictly before ExpiresAt.
func (s Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// ExpiredSessionGrace is how long an expired session stays stored. During it
// validation keeps reporting the token as expired rather than unknown.
const ExpiredSessionGrace = time.Hour
