package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/johndosdos/paychat/internal/model"
)

type ContextKey string

const (
	PrincipalKey    ContextKey = "principal"
	SessionTokenKey ContextKey = "sessionToken"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	AccountID uuid.UUID
	Username  string
	Roles     []model.Role
}

func (p Principal) HasRole(r model.Role) bool {
	return lo.Contains(p.Roles, r)
}

// PrincipalFromAccount builds the context principal for acct.
func PrincipalFromAccount(acct model.Account) Principal {
	return Principal{AccountID: acct.ID, Username: acct.Username, Roles: acct.Roles}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func GetPrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	if !ok || p.AccountID == uuid.Nil {
		return Principal{}, errors.New("internal/auth: no principal in context")
	}

	return p, nil
}

func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, SessionTokenKey, token)
}

// GetSessionTokenFromContext returns the raw session token the request
// authenticated with, if any.
func GetSessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(SessionTokenKey).(string)
	return token, ok && token != ""
}
