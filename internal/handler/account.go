package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/account"
	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/model"
)

type Registrar interface {
	Register(ctx context.Context, in account.RegisterInput) (model.Account, error)
}

type CredentialVerifier interface {
	Verify(ctx context.Context, username, secret string) (model.Account, error)
}

type SessionIssuer interface {
	Issue(ctx context.Context, acct model.Account) (model.Session, error)
	Validate(ctx context.Context, token string) (model.Account, error)
	Revoke(ctx context.Context, token string) error
	RevokeAccount(ctx context.Context, accountID uuid.UUID) error
}

type TokenMaker interface {
	MakeJWT(acct model.Account, expiresIn time.Duration) (string, error)
}

// Auth bundles what the account endpoints need.
type Auth struct {
	Registry  Registrar
	Verifier  CredentialVerifier
	Sessions  SessionIssuer
	Tokens    TokenMaker
	AccessTTL time.Duration
	Cookies   Cookies
}

type signupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

// registerInput is the one place a signup body becomes a registration.
// Public signups never choose their roles.
func (req signupRequest) registerInput() (account.RegisterInput, error) {
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		return account.RegisterInput{}, fmt.Errorf("%w: passwords do not match", apperr.ErrInvalid)
	}
	return account.RegisterInput{
		Username: req.Username,
		Secret:   req.Password,
	}, nil
}

// ServeSignup handles user account creation.
func ServeSignup(a Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req signupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		in, err := req.registerInput()
		if err != nil {
			WriteError(w, r, err)
			return
		}

		acct, err := a.Registry.Register(ctx, in)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusCreated, acct)

		slog.InfoContext(ctx, "user signed up",
			slog.String("username", acct.Username))
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Account      model.Account `json:"account"`
	SessionToken string        `json:"session_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	AccessToken  string        `json:"access_token"`
}

// ServeLogin verifies credentials and starts a session.
func ServeLogin(a Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		acct, err := a.Verifier.Verify(ctx, req.Username, req.Password)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		sess, err := a.Sessions.Issue(ctx, acct)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		jwt, err := a.Tokens.MakeJWT(acct, a.AccessTTL)
		if err != nil {
			WriteError(w, r, fmt.Errorf("failed to create JWT: %w", err))
			return
		}

		a.Cookies.SetSession(w, sess.Token, sess.ExpiresAt)
		a.Cookies.SetAccess(w, jwt, a.AccessTTL)

		WriteJSON(w, http.StatusOK, loginResponse{
			Account:      acct,
			SessionToken: sess.Token,
			ExpiresAt:    sess.ExpiresAt,
			AccessToken:  jwt,
		})

		slog.InfoContext(ctx, "user logged in",
			slog.String("username", acct.Username))
	}
}

// ServeLogout revokes the caller's session and clears the auth cookies.
func ServeLogout(a Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token := SessionToken(r); token != "" {
			if err := a.Sessions.Revoke(ctx, token); err != nil {
				WriteError(w, r, err)
				return
			}
		}

		a.Cookies.Clear(w)
		w.WriteHeader(http.StatusNoContent)

		slog.InfoContext(ctx, "user logged out")
	}
}
