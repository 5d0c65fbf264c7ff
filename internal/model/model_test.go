package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoles(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []Role
		wantErr bool
	}{
		{"empty_defaults_to_user", nil, []Role{RoleUser}, false},
		{"dedupe_and_sort", []string{"user", "admin", "user"}, []Role{RoleAdmin, RoleUser}, false},
		{"moderator", []string{"moderator"}, []Role{RoleModerator}, false},
		{"unknown_role", []string{"user", "superuser"}, nil, true},
		{"case_sensitive", []string{"Admin"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoles(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccountHasRole(t *testing.T) {
	acct := Account{Roles: []Role{RoleAdmin, RoleUser}}
	assert.True(t, acct.HasRole(RoleAdmin))
	assert.False(t, acct.HasRole(RoleModerator))
	assert.True(t, acct.Active())

	now := time.Now()
	acct.DeactivatedAt = &now
	assert.False(t, acct.Active())
}

func TestSessionExpiredAt(t *testing.T) {
	exp := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ExpiresAt: exp}

	assert.False(t, s.ExpiredAt(exp.Add(-time.Nanosecond)))
	assert.True(t, s.ExpiredAt(exp))
	assert.True(t, s.ExpiredAt(exp.Add(time.Second)))
}
