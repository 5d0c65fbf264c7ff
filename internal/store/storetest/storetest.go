// Package storetest is a conformance suite every store backend runs from its
// own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/paychat/internal/account"
	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/chat"
	"github.com/johndosdos/paychat/internal/model"
	"github.com/johndosdos/paychat/internal/session"
)

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewAccount returns an account with a unique username so suites can share a
// database.
func NewAccount() model.Account {
	id := uuid.New()
	return model.Account{
		ID:           id,
		Username:     "user-" + id.String()[:8],
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		Roles:        []model.Role{model.RoleUser},
		CreatedAt:    now(),
	}
}

func RunAccountStore(t *testing.T, s account.Store) {
	ctx := context.Background()

	t.Run("create_and_get", func(t *testing.T) {
		acct := NewAccount()
		require.NoError(t, s.CreateAccount(ctx, acct))

		byID, err := s.GetAccountByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, acct, byID)

		byName, err := s.GetAccountByUsername(ctx, acct.Username)
		require.NoError(t, err)
		assert.Equal(t, acct, byName)
	})

	t.Run("duplicate_username", func(t *testing.T) {
		acct := NewAccount()
		require.NoError(t, s.CreateAccount(ctx, acct))

		dup := NewAccount()
		dup.Username = acct.Username
		assert.ErrorIs(t, s.CreateAccount(ctx, dup), apperr.ErrConflict)
	})

	t.Run("concurrent_duplicate_username", func(t *testing.T) {
		username := NewAccount().Username

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				acct := NewAccount()
				acct.Username = username
				err := s.CreateAccount(ctx, acct)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, apperr.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, 7, conflicts)
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := s.GetAccountByID(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = s.GetAccountByUsername(ctx, "nobody-"+uuid.NewString())
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = s.UpdateRoles(ctx, uuid.New(), []model.Role{model.RoleAdmin})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = s.DeactivateAccount(ctx, uuid.New(), now())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update_roles", func(t *testing.T) {
		acct := NewAccount()
		require.NoError(t, s.CreateAccount(ctx, acct))

		roles := []model.Role{model.RoleAdmin, model.RoleUser}
		updated, err := s.UpdateRoles(ctx, acct.ID, roles)
		require.NoError(t, err)
		assert.Equal(t, roles, updated.Roles)

		got, err := s.GetAccountByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, roles, got.Roles)
	})

	t.Run("deactivate_keeps_first_timestamp", func(t *testing.T) {
		acct := NewAccount()
		require.NoError(t, s.CreateAccount(ctx, acct))

		first := now()
		got, err := s.DeactivateAccount(ctx, acct.ID, first)
		require.NoError(t, err)
		require.NotNil(t, got.DeactivatedAt)
		assert.True(t, first.Equal(*got.DeactivatedAt))

		got, err = s.DeactivateAccount(ctx, acct.ID, first.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, first.Equal(*got.DeactivatedAt))

		// Deactivated accounts are still readable.
		got, err = s.GetAccountByUsername(ctx, acct.Username)
		require.NoError(t, err)
		assert.False(t, got.Active())
	})
}

func RunSessionStore(t *testing.T, s session.Store, accounts account.Store) {
	ctx := context.Background()

	owner := NewAccount()
	require.NoError(t, accounts.CreateAccount(ctx, owner))

	newSession := func(expiresIn time.Duration) model.Session {
		issued := now()
		return model.Session{
			TokenHash: uuid.NewString(),
			AccountID: owner.ID,
			IssuedAt:  issued,
			ExpiresAt: issued.Add(expiresIn),
		}
	}

	t.Run("create_get_delete", func(t *testing.T) {
		sess := newSession(time.Hour)
		require.NoError(t, s.CreateSession(ctx, sess))

		got, err := s.GetSession(ctx, sess.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, sess.AccountID, got.AccountID)
		assert.Equal(t, sess.TokenHash, got.TokenHash)
		assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))
		assert.True(t, sess.IssuedAt.Equal(got.IssuedAt))

		require.NoError(t, s.DeleteSession(ctx, sess.TokenHash))
		_, err = s.GetSession(ctx, sess.TokenHash)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		assert.NoError(t, s.DeleteSession(ctx, sess.TokenHash), "deleting twice is fine")
	})

	t.Run("raw_token_not_persisted", func(t *testing.T) {
		sess := newSession(time.Hour)
		sess.Token = "raw-token"
		require.NoError(t, s.CreateSession(ctx, sess))

		got, err := s.GetSession(ctx, sess.TokenHash)
		require.NoError(t, err)
		assert.Empty(t, got.Token)
	})

	t.Run("delete_account_sessions", func(t *testing.T) {
		a, b := newSession(time.Hour), newSession(time.Hour)
		require.NoError(t, s.CreateSession(ctx, a))
		require.NoError(t, s.CreateSession(ctx, b))

		require.NoError(t, s.DeleteAccountSessions(ctx, owner.ID))

		for _, sess := range []model.Session{a, b} {
			_, err := s.GetSession(ctx, sess.TokenHash)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		}
	})

	t.Run("delete_expired", func(t *testing.T) {
		expired := newSession(-time.Minute)
		live := newSession(time.Hour)
		require.NoError(t, s.CreateSession(ctx, expired))
		require.NoError(t, s.CreateSession(ctx, live))

		n, err := s.DeleteExpiredSessions(ctx, now())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = s.GetSession(ctx, expired.TokenHash)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = s.GetSession(ctx, live.TokenHash)
		assert.NoError(t, err)
	})
}

func RunMessageStore(t *testing.T, s chat.MessageStore, accounts account.Store) {
	ctx := context.Background()

	author := NewAccount()
	require.NoError(t, accounts.CreateAccount(ctx, author))

	t.Run("ids_increase_and_list_is_oldest_first", func(t *testing.T) {
		var stored []model.ChatMessage
		for _, body := range []string{"one", "two", "three"} {
			msg, err := s.CreateMessage(ctx, model.ChatMessage{
				AuthorID:       author.ID,
				AuthorUsername: author.Username,
				Body:           body,
				CreatedAt:      now(),
			})
			require.NoError(t, err)
			if len(stored) > 0 {
				assert.Greater(t, msg.ID, stored[len(stored)-1].ID)
			}
			stored = append(stored, msg)
		}

		got, err := s.ListMessages(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, stored[1].ID, got[0].ID)
		assert.Equal(t, stored[2].ID, got[1].ID)
		assert.Equal(t, "three", got[1].Body)
		assert.Equal(t, author.Username, got[1].AuthorUsername)
		assert.Equal(t, author.ID, got[1].AuthorID)
		assert.True(t, stored[2].CreatedAt.Equal(got[1].CreatedAt))
	})

	t.Run("unknown_author", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, model.ChatMessage{
			AuthorID:       uuid.New(),
			AuthorUsername: "ghost",
			Body:           "boo",
			CreatedAt:      now(),
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
