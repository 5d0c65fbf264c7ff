package badgerdb

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/paychat/internal/model"
	"github.com/johndosdos/paychat/internal/store/storetest"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestAccountStore(t *testing.T) {
	storetest.RunAccountStore(t, newTestStore(t, ""))
}

func TestSessionStore(t *testing.T) {
	s := newTestStore(t, "")
	storetest.RunSessionStore(t, s, s)
}

func TestMessageStore(t *testing.T) {
	s := newTestStore(t, "")
	storetest.RunMessageStore(t, s, s)
}

func TestMessageKeyOrder(t *testing.T) {
	assert.Less(t, messageKey(9), messageKey(10))
	assert.Less(t, messageKey(99999), messageKey(100000))
}

func TestListMessagesWithoutLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "")

	author := storetest.NewAccount()
	require.NoError(t, s.CreateAccount(ctx, author))

	for _, body := range []string{"a", "b", "c"} {
		_, err := s.CreateMessage(ctx, model.ChatMessage{
			AuthorID:       author.ID,
			AuthorUsername: author.Username,
			Body:           body,
			CreatedAt:      time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, "c", msgs[2].Body)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	acct := storetest.NewAccount()
	require.NoError(t, s.CreateAccount(ctx, acct))
	first, err := s.CreateMessage(ctx, model.ChatMessage{
		AuthorID:       acct.ID,
		AuthorUsername: acct.Username,
		Body:           "before restart",
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = newTestStore(t, dir)

	got, err := s.GetAccountByUsername(ctx, acct.Username)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, acct.PasswordHash, got.PasswordHash)

	second, err := s.CreateMessage(ctx, model.ChatMessage{
		AuthorID:       acct.ID,
		AuthorUsername: acct.Username,
		Body:           "after restart",
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
}
