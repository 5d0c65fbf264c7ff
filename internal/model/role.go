package model

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Role is a privilege name. Only the constants below are accepted.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

var knownRoles = []Role{RoleAdmin, RoleModerator, RoleUser}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return lo.Contains(knownRoles, r)
}

// ParseRoles converts raw role names into a sorted, de-duplicated role set.
// An empty input yields the default [user] set.
func ParseRoles(names []string) ([]Role, error) {
	if len(names) == 0 {
		return []Role{RoleUser}, nil
	}

	roles := make([]Role, 0, len(names))
	for _, n := range names {
		r := Role(n)
		if !r.Valid() {
			return nil, fmt.Errorf("unknown role %q", n)
		}
		roles = append(roles, r)
	}

	roles = lo.Uniq(roles)
	slices.Sort(roles)
	return roles, nil
}

// RoleNames converts roles back into plain strings for storage and claims.
func RoleNames(roles []Role) []string {
	return lo.Map(roles, func(r Role, _ int) string { return string(r) })
}
