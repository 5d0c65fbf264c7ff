package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/account"
	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/model"
)

type AccountAdmin interface {
	Registrar
	SetRoles(ctx context.Context, id uuid.UUID, roles []string) (model.Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) (model.Account, error)
}

// Admin bundles what the administrative endpoints need.
type Admin struct {
	Accounts AccountAdmin
	Sessions SessionIssuer
}

type createAccountRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

func accountID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed account id", apperr.ErrInvalid)
	}
	return id, nil
}

// CreateAccount registers an account with explicit roles.
func CreateAccount(a Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		acct, err := a.Accounts.Register(ctx, account.RegisterInput{
			Username: req.Username,
			Secret:   req.Password,
			Roles:    req.Roles,
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusCreated, acct)
	}
}

// SetRoles replaces an account's roles.
func SetRoles(a Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := accountID(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		var req rolesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		acct, err := a.Accounts.SetRoles(r.Context(), id, req.Roles)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, acct)
	}
}

// DeactivateAccount deactivates an account and ends all of its sessions.
func DeactivateAccount(a Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := accountID(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		acct, err := a.Accounts.Deactivate(ctx, id)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		if err := a.Sessions.RevokeAccount(ctx, id); err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, acct)

		slog.InfoContext(ctx, "account deactivated",
			slog.String("username", acct.Username))
	}
}
