package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/handler"
	"github.com/johndosdos/paychat/internal/model"
)

type SessionValidator interface {
	Validate(ctx context.Context, token string) (model.Account, error)
}

type AccessTokens interface {
	MakeJWT(acct model.Account, expiresIn time.Duration) (string, error)
	ValidateJWT(tokenString string) (auth.Principal, error)
}

// Authenticator resolves the caller of a request from an access JWT or, when
// that is missing or stale, from the session token.
type Authenticator struct {
	tokens    AccessTokens
	sessions  SessionValidator
	accessTTL time.Duration
	cookies   handler.Cookies
}

func NewAuthenticator(tokens AccessTokens, sessions SessionValidator, accessTTL time.Duration, cookies handler.Cookies) *Authenticator {
	return &Authenticator{
		tokens:    tokens,
		sessions:  sessions,
		accessTTL: accessTTL,
		cookies:   cookies,
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(handler.AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware attaches the caller's principal and session token to the
// request context, or answers 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessionToken := handler.SessionToken(r)
		if sessionToken != "" {
			ctx = auth.WithSessionToken(ctx, sessionToken)
		}

		// Check JWT if it exists. If valid, append the principal to context
		// and serve the next handler.
		if jwt := bearerToken(r); jwt != "" {
			p, err := a.tokens.ValidateJWT(jwt)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, p)))
				return
			}
		}

		// If JWT does not exist or is not valid, fall back to the session
		// token and hand out a fresh JWT.
		if sessionToken == "" {
			handler.WriteError(w, r, fmt.Errorf("%w: no credentials", apperr.ErrUnauthorized))
			return
		}

		acct, err := a.sessions.Validate(ctx, sessionToken)
		if err != nil {
			handler.WriteError(w, r, err)
			return
		}

		jwt, err := a.tokens.MakeJWT(acct, a.accessTTL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create JWT", slog.Any("error", err))
		} else {
			a.cookies.SetAccess(w, jwt, a.accessTTL)
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, auth.PrincipalFromAccount(acct))))
	})
}

type AccountLookup interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (model.Account, error)
}

// RequireRole answers 403 unless the authenticated caller holds role. Roles
// are read from accounts rather than from the access token, so a demotion or
// deactivation applies to the next request.
func RequireRole(accounts AccountLookup, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			p, err := auth.GetPrincipalFromContext(ctx)
			if err != nil {
				handler.WriteError(w, r, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err))
				return
			}

			acct, err := accounts.GetAccountByID(ctx, p.AccountID)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					err = fmt.Errorf("%w: account no longer exists", apperr.ErrUnauthorized)
				}
				handler.WriteError(w, r, err)
				return
			}
			if !acct.Active() {
				handler.WriteError(w, r, fmt.Errorf("%w: account deactivated", apperr.ErrUnauthorized))
				return
			}
			if !acct.HasRole(role) {
				handler.WriteError(w, r, fmt.Errorf("%w: %s role required", apperr.ErrForbidden, role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
