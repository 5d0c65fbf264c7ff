package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/model"
	"github.com/johndosdos/paychat/internal/store/memory"
)

var cheapParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestRegistry(t *testing.T) (*Registry, *Verifier, *memory.Store) {
	t.Helper()

	store := memory.New()
	hasher := auth.NewPasswordHasher(cheapParams)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier, err := NewVerifier(store, hasher, log)
	require.NoError(t, err)

	return NewRegistry(store, hasher, log), verifier, store
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		in       RegisterInput
		wantKind error
	}{
		{"valid", RegisterInput{Username: "alice", Secret: "secret1"}, nil},
		{"min_username", RegisterInput{Username: "bob", Secret: "secret1"}, nil},
		{"max_username", RegisterInput{Username: strings.Repeat("a", 50), Secret: "secret1"}, nil},
		{"multibyte_username", RegisterInput{Username: "ñoño", Secret: "secret1"}, nil},
		{"username_too_short", RegisterInput{Username: "al", Secret: "secret1"}, apperr.ErrInvalid},
		{"username_too_long", RegisterInput{Username: strings.Repeat("a", 51), Secret: "secret1"}, apperr.ErrInvalid},
		{"secret_too_short", RegisterInput{Username: "carol", Secret: "12345"}, apperr.ErrInvalid},
		{"unknown_role", RegisterInput{Username: "dave", Secret: "secret1", Roles: []string{"root"}}, apperr.ErrInvalid},
		{"admin_role", RegisterInput{Username: "erin", Secret: "secret1", Roles: []string{"admin"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, _ := newTestRegistry(t)

			acct, err := reg.Register(context.Background(), tt.in)
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.in.Username, acct.Username)
			assert.NotEqual(t, uuid.Nil, acct.ID)
			assert.NotEqual(t, tt.in.Secret, acct.PasswordHash)
			assert.NotContains(t, acct.PasswordHash, tt.in.Secret)
			assert.NotEmpty(t, acct.Roles)
		})
	}
}

func TestRegisterDefaultsToUserRole(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	acct, err := reg.Register(context.Background(), RegisterInput{Username: "alice", Secret: "secret1", Roles: []string{}})
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleUser}, acct.Roles)
}

func TestRegisterConflict(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, RegisterInput{Username: "alice", Secret: "secret1"})
	require.NoError(t, err)

	for _, secret := range []string{"secret1", "another-secret"} {
		_, err = reg.Register(ctx, RegisterInput{Username: "alice", Secret: secret})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
}

func TestRegisterConcurrentSameUsername(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Register(context.Background(), RegisterInput{Username: "racer", Secret: "secret1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
}

func TestRegisterThenVerify(t *testing.T) {
	reg, ver, _ := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		username := fmt.Sprintf("user-%d", i)
		secret := strings.Repeat("s", 6+i)

		_, err := reg.Register(ctx, RegisterInput{Username: username, Secret: secret})
		require.NoError(t, err)

		acct, err := ver.Verify(ctx, username, secret)
		require.NoError(t, err)
		assert.Equal(t, username, acct.Username)
	}
}

func TestVerify(t *testing.T) {
	reg, ver, _ := newTestRegistry(t)
	ctx := context.Background()

	alice, err := reg.Register(ctx, RegisterInput{Username: "alice", Secret: "secret1"})
	require.NoError(t, err)

	t.Run("wrong_secret", func(t *testing.T) {
		_, err := ver.Verify(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("unknown_username", func(t *testing.T) {
		_, err := ver.Verify(ctx, "mallory", "secret1")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("unknown_and_wrong_are_indistinguishable", func(t *testing.T) {
		_, errWrong := ver.Verify(ctx, "alice", "wrong")
		_, errUnknown := ver.Verify(ctx, "mallory", "wrong")
		assert.Equal(t, errWrong.Error(), errUnknown.Error())
	})

	t.Run("correct_secret", func(t *testing.T) {
		acct, err := ver.Verify(ctx, "alice", "secret1")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, acct.ID)
	})

	t.Run("deactivated", func(t *testing.T) {
		_, err := reg.Deactivate(ctx, alice.ID)
		require.NoError(t, err)

		_, err = ver.Verify(ctx, "alice", "secret1")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestVerifyCorruptHash(t *testing.T) {
	_, ver, store := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAccount(ctx, model.Account{
		ID:           uuid.New(),
		Username:     "broken",
		PasswordHash: "not-a-hash",
		Roles:        []model.Role{model.RoleUser},
	}))

	_, err := ver.Verify(ctx, "broken", "secret1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestSetRoles(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	acct, err := reg.Register(ctx, RegisterInput{Username: "alice", Secret: "secret1"})
	require.NoError(t, err)

	updated, err := reg.SetRoles(ctx, acct.ID, []string{"moderator", "user", "moderator"})
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleModerator, model.RoleUser}, updated.Roles)

	_, err = reg.SetRoles(ctx, acct.ID, []string{"owner"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = reg.SetRoles(ctx, acct.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = reg.SetRoles(ctx, uuid.New(), []string{"user"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := reg.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Roles, got.Roles)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	acct, err := reg.Register(ctx, RegisterInput{Username: "alice", Secret: "secret1"})
	require.NoError(t, err)

	first, err := reg.Deactivate(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, first.DeactivatedAt)

	second, err := reg.Deactivate(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.DeactivatedAt, *second.DeactivatedAt)

	_, err = reg.Deactivate(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
