package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"wrapped_invalid", fmt.Errorf("%w: username too short", ErrInvalid), ErrInvalid},
		{"wrapped_conflict", fmt.Errorf("register: %w", ErrConflict), ErrConflict},
		{"unauthorized", ErrUnauthorized, ErrUnauthorized},
		{"expired", fmt.Errorf("validate: %w", ErrExpired), ErrExpired},
		{"plain_error", errors.New("boom"), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestKindsAreDistinct(t *testing.T) {
	kinds := []error{ErrInvalid, ErrConflict, ErrUnauthorized, ErrExpired, ErrNotFound, ErrForbidden}
	for i, a := range kinds {
		for j, b := range kinds {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}
