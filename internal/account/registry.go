// Package account owns registered identities: the registry that creates and
// administers accounts and the verifier that checks presented secrets.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/model"
)

// Store persists accounts. CreateAccount must make the username check and
// the insert one atomic step and report a taken username as
// apperr.ErrConflict. Lookups report a missing account as apperr.ErrNotFound.
type Store interface {
	CreateAccount(ctx context.Context, acct model.Account) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (model.Account, error)
	UpdateRoles(ctx context.Context, id uuid.UUID, roles []model.Role) (model.Account, error)
	DeactivateAccount(ctx context.Context, id uuid.UUID, at time.Time) (model.Account, error)
}

// RegisterInput is the single account-creation model. HTTP request bodies
// are translated into it by the handlers.
type RegisterInput struct {
	Username string `validate:"min=3,max=50"`
	Secret   string `validate:"min=6"`
	Roles    []string
}

type Registry struct {
	store    Store
	hasher   *auth.PasswordHasher
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewRegistry(store Store, hasher *auth.PasswordHasher, log *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		hasher:   hasher,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// Register validates in, hashes the secret and stores a new account.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (model.Account, error) {
	// Validate before any expensive hashing.
	if err := r.validate.Struct(in); err != nil {
		return model.Account{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	roles, err := model.ParseRoles(in.Roles)
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	hash, err := r.hasher.HashPassword(in.Secret)
	if err != nil {
		return model.Account{}, err
	}

	acct := model.Account{
		ID:           uuid.New(),
		Username:     in.Username,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    r.now().UTC(),
	}

	if err := r.store.CreateAccount(ctx, acct); err != nil {
		return model.Account{}, fmt.Errorf("register %q: %w", in.Username, err)
	}

	r.log.InfoContext(ctx, "account registered",
		slog.String("username", acct.Username),
		slog.String("account_id", acct.ID.String()),
		slog.Any("roles", model.RoleNames(roles)))

	return acct, nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return r.store.GetAccountByID(ctx, id)
}

// SetRoles replaces the role set of an account.
func (r *Registry) SetRoles(ctx context.Context, id uuid.UUID, names []string) (model.Account, error) {
	if len(names) == 0 {
		return model.Account{}, fmt.Errorf("%w: role set must not be empty", apperr.ErrInvalid)
	}

	roles, err := model.ParseRoles(names)
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	acct, err := r.store.UpdateRoles(ctx, id, roles)
	if err != nil {
		return model.Account{}, fmt.Errorf("set roles: %w", err)
	}

	r.log.InfoContext(ctx, "account roles changed",
		slog.String("account_id", id.String()),
		slog.Any("roles", model.RoleNames(roles)))

	return acct, nil
}

// Deactivate soft-deletes an account. Deactivating twice keeps the first
// timestamp.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID) (model.Account, error) {
	acct, err := r.store.DeactivateAccount(ctx, id, r.now().UTC())
	if err != nil {
		return model.Account{}, fmt.Errorf("deactivate: %w", err)
	}

	r.log.InfoContext(ctx, "account deactivated",
		slog.String("account_id", id.String()),
		slog.String("username", acct.Username))

	return acct, nil
}
