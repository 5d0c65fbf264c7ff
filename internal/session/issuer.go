// Package session issues and validates the opaque bearer tokens handed out
// after a successful login.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/model"
)

// Store persists sessions keyed by token hash. GetSession reports an unknown
// hash as apperr.ErrNotFound.
type Store interface {
	CreateSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, tokenHash string) (model.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteAccountSessions(ctx context.Context, accountID uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// AccountLookup resolves the owner of a session.
type AccountLookup interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (model.Account, error)
}

// Revocations is told about sessions that end before their expiry, so
// connections opened with them can be closed.
type Revocations interface {
	SessionRevoked(ctx context.Context, tokenHash string)
	AccountRevoked(ctx context.Context, accountID uuid.UUID)
}

type Issuer struct {
	store    Store
	accounts AccountLookup
	ttl      time.Duration
	log      *slog.Logger
	revoked  Revocations

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewIssuer(store Store, accounts AccountLookup, ttl time.Duration, log *slog.Logger) *Issuer {
	return &Issuer{
		store:    store,
		accounts: accounts,
		ttl:      ttl,
		log:      log,
		Now:      time.Now,
	}
}

// NotifyRevocations makes Revoke and RevokeAccount report to r. Call it
// before the issuer is shared between goroutines.
func (i *Issuer) NotifyRevocations(r Revocations) {
	i.revoked = r
}

// TTL is the fixed lifetime of every issued session.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a session for acct. The returned value is the only place the
// raw token appears.
func (i *Issuer) Issue(ctx context.Context, acct model.Account) (model.Session, error) {
	if !acct.Active() {
		return model.Session{}, apperr.ErrUnauthorized
	}

	token, hash := auth.MakeSessionToken()
	now := i.Now().UTC()
	sess := model.Session{
		Token:     token,
		TokenHash: hash,
		AccountID: acct.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	if err := i.store.CreateSession(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("issue session: %w", err)
	}

	return sess, nil
}

// Validate returns the account owning token. Unknown or revoked tokens and
// deactivated accounts yield apperr.ErrUnauthorized; a token at or past its
// expiry instant yields apperr.ErrExpired until the sweeper purges it.
func (i *Issuer) Validate(ctx context.Context, token string) (model.Account, error) {
	if token == "" {
		return model.Account{}, apperr.ErrUnauthorized
	}

	hash := auth.HashToken(token)
	sess, err := i.store.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Account{}, apperr.ErrUnauthorized
		}
		return model.Account{}, fmt.Errorf("validate session: %w", err)
	}

	if sess.ExpiredAt(i.Now()) {
		return model.Account{}, apperr.ErrExpired
	}

	acct, err := i.accounts.GetAccountByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Account{}, apperr.ErrUnauthorized
		}
		return model.Account{}, fmt.Errorf("validate session: %w", err)
	}

	if !acct.Active() {
		return model.Account{}, apperr.ErrUnauthorized
	}

	return acct, nil
}

// Revoke ends the session behind token. Revoking an unknown token is not an
// error.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	hash := auth.HashToken(token)
	if err := i.store.DeleteSession(ctx, hash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if i.revoked != nil {
		i.revoked.SessionRevoked(ctx, hash)
	}
	return nil
}

// RevokeAccount ends every session of accountID.
func (i *Issuer) RevokeAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := i.store.DeleteAccountSessions(ctx, accountID); err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}
	if i.revoked != nil {
		i.revoked.AccountRevoked(ctx, accountID)
	}
	return nil
}

// Sweep deletes sessions that expired more than model.ExpiredSessionGrace
// ago.
func (i *Issuer) Sweep(ctx context.Context) (int64, error) {
	n, err := i.store.DeleteExpiredSessions(ctx, i.Now().UTC().Add(-model.ExpiredSessionGrace))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (i *Issuer) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := i.Sweep(ctx)
			if err != nil {
				i.log.ErrorContext(ctx, "session sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				i.log.DebugContext(ctx, "expired sessions removed", slog.Int64("count", n))
			}
		}
	}
}
