package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/model"
)

// Verifier checks a presented secret against the stored credential.
type Verifier struct {
	store  Store
	hasher *auth.PasswordHasher
	log    *slog.Logger

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one argon2id derivation.
	dummyHash string
}

func NewVerifier(store Store, hasher *auth.PasswordHasher, log *slog.Logger) (*Verifier, error) {
	dummy, err := hasher.HashPassword("paychat-dummy-secret")
	if err != nil {
		return nil, err
	}

	return &Verifier{store: store, hasher: hasher, log: log, dummyHash: dummy}, nil
}

// Verify returns the account for username when secret matches. Unknown
// usernames, wrong secrets and deactivated accounts all yield
// apperr.ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, username, secret string) (model.Account, error) {
	acct, err := v.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return model.Account{}, fmt.Errorf("verify: %w", err)
		}

		_, _ = v.hasher.CheckPasswordHash(secret, v.dummyHash)
		return model.Account{}, apperr.ErrUnauthorized
	}

	ok, err := v.hasher.CheckPasswordHash(secret, acct.PasswordHash)
	if err != nil {
		v.log.ErrorContext(ctx, "cannot verify password, hash may be corrupted",
			slog.String("account_id", acct.ID.String()),
			slog.Any("error", err))
		return model.Account{}, fmt.Errorf("verify: %w", err)
	}

	if !ok || !acct.Active() {
		return model.Account{}, apperr.ErrUnauthorized
	}

	return acct, nil
}
