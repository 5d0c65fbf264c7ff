// Package apperr defines the error kinds surfaced by the account, session
// and chat components. Callers test for a kind with errors.Is; every kind is
// distinct from the others.
package apperr

import "errors"

var (
	// ErrInvalid reports input with a bad shape: length, charset, unknown role.
	ErrInvalid = errors.New("invalid input")
	// ErrConflict reports a username that is already taken.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized reports a bad credential or an unknown session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrExpired reports a session past its lifetime.
	ErrExpired = errors.New("session expired")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Kind returns the sentinel that err wraps, or nil when err carries none of
// the known kinds.
func Kind(err error) error {
	for _, k := range []error{ErrInvalid, ErrConflict, ErrUnauthorized, ErrExpired, ErrNotFound, ErrForbidden} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
