package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/paychat/internal/account"
	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/broker"
	"github.com/johndosdos/paychat/internal/model"
	"github.com/johndosdos/paychat/internal/session"
	"github.com/johndosdos/paychat/internal/store/memory"
)

type harness struct {
	registry *account.Registry
	verifier *account.Verifier
	issuer   *session.Issuer
	bus      *broker.Local
	hub      *Hub
	chat     *Broadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	hasher := auth.NewPasswordHasher(&argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	verifier, err := account.NewVerifier(store, hasher, log)
	require.NoError(t, err)

	bus := broker.NewLocal()
	issuer := session.NewIssuer(store, store, time.Hour, log)
	h := &harness{
		registry: account.NewRegistry(store, hasher, log),
		verifier: verifier,
		issuer:   issuer,
		bus:      bus,
		hub:      NewHub(bus, log),
		chat:     NewBroadcaster(issuer, store, bus, 200, 50, log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = h.hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})

	return h
}

func (h *harness) login(t *testing.T, username string) model.Session {
	t.Helper()
	ctx := context.Background()

	acct, err := h.registry.Register(ctx, account.RegisterInput{Username: username, Secret: "secret1"})
	require.NoError(t, err)

	sess, err := h.issuer.Issue(ctx, acct)
	require.NoError(t, err)
	return sess
}

func (h *harness) subscribe(t *testing.T, username string, buffer int) *Recipient {
	t.Helper()

	r := NewRecipient(uuid.New(), username, "", buffer)
	require.NoError(t, h.hub.Subscribe(context.Background(), r))
	return r
}

func receive(t *testing.T, r *Recipient) model.ChatMessage {
	t.Helper()

	select {
	case msg, ok := <-r.MessageCh:
		require.True(t, ok, "recipient channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("recipient %s received nothing", r.Username)
		return model.ChatMessage{}
	}
}

func TestScenarioRegisterVerifyIssueSend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice, err := h.registry.Register(ctx, account.RegisterInput{Username: "alice", Secret: "secret1", Roles: []string{}})
	require.NoError(t, err)

	_, err = h.verifier.Verify(ctx, "alice", "wrong")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	acct, err := h.verifier.Verify(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.Equal(t, alice.ID, acct.ID)

	sess, err := h.issuer.Issue(ctx, acct)
	require.NoError(t, err)

	watcher := h.subscribe(t, "watcher", 8)

	msg, err := h.chat.Send(ctx, sess.Token, "hi")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.AuthorUsername)
	assert.Equal(t, alice.ID, msg.AuthorID)
	assert.Equal(t, "hi", msg.Body)
	assert.NotZero(t, msg.ID)

	got := receive(t, watcher)
	assert.Equal(t, msg, got)
}

func TestSendUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t, "alice")

	_, err := h.chat.Send(ctx, "not-a-session", "hi")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, h.issuer.Revoke(ctx, sess.Token))
	_, err = h.chat.Send(ctx, sess.Token, "hi")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestSendExpired(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, "alice")

	h.issuer.Now = func() time.Time { return sess.ExpiresAt }
	_, err := h.chat.Send(context.Background(), sess.Token, "hi")
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

func TestSendInvalidBody(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, "alice")

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"only_markup", "<script></script>"},
		{"too_long", strings.Repeat("x", 201)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.chat.Send(context.Background(), sess.Token, tt.body)
			assert.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}
}

func TestSendSanitizes(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, "alice")

	msg, err := h.chat.Send(context.Background(), sess.Token, `<b onclick="x()">pay</b> now`)
	require.NoError(t, err)
	assert.Equal(t, "pay now", msg.Body)
}

func TestSendTimestampsNeverDecrease(t *testing.T) {
	h := newHarness(t)
	sess := h.login(t, "alice")
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second), base.Add(-time.Hour)}
	i := 0
	h.chat.Now = func() time.Time {
		t := clock[i%len(clock)]
		i++
		return t
	}

	var prev time.Time
	for range clock {
		msg, err := h.chat.Send(ctx, sess.Token, "tick")
		require.NoError(t, err)
		assert.False(t, msg.CreatedAt.Before(prev), "timestamp went backwards: %v after %v", msg.CreatedAt, prev)
		prev = msg.CreatedAt
	}

	// Idle senders are not remembered, yet their next stamp still follows
	// the last one.
	h.chat.mu.Lock()
	assert.Empty(t, h.chat.senders)
	h.chat.mu.Unlock()

	h.chat.Now = func() time.Time { return base.Add(-24 * time.Hour) }
	msg, err := h.chat.Send(ctx, sess.Token, "tock")
	require.NoError(t, err)
	assert.False(t, msg.CreatedAt.Before(prev))
}

func TestConcurrentSendsKeepPerSenderOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	watcher := h.subscribe(t, "watcher", 256)

	senders := []model.Session{h.login(t, "alice"), h.login(t, "bob"), h.login(t, "carol")}
	const perSender = 20

	var wg sync.WaitGroup
	for _, s := range senders {
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(s model.Session) {
				defer wg.Done()
				for j := 0; j < perSender/2; j++ {
					_, err := h.chat.Send(ctx, s.Token, "msg")
					assert.NoError(t, err)
				}
			}(s)
		}
	}
	wg.Wait()

	lastTS := map[string]time.Time{}
	lastID := map[string]int64{}
	for i := 0; i < len(senders)*perSender; i++ {
		msg := receive(t, watcher)
		author := msg.AuthorUsername
		assert.False(t, msg.CreatedAt.Before(lastTS[author]))
		assert.Greater(t, msg.ID, lastID[author])
		lastTS[author] = msg.CreatedAt
		lastID[author] = msg.ID
	}
}

func TestFanOutIndependentRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t, "alice")

	fast1 := h.subscribe(t, "fast1", 8)
	fast2 := h.subscribe(t, "fast2", 8)
	slow := h.subscribe(t, "slow", 1)
	assert.Equal(t, 3, h.hub.Presence())

	var sent []model.ChatMessage
	for i := 0; i < 3; i++ {
		msg, err := h.chat.Send(ctx, sess.Token, "hello")
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	// The slow recipient never reads while messages flow; the fast ones
	// still get everything, in send order.
	for _, r := range []*Recipient{fast1, fast2} {
		for _, want := range sent {
			assert.Equal(t, want.ID, receive(t, r).ID)
		}
	}
	assert.Equal(t, sent[0].ID, receive(t, slow).ID)
}

func TestDuplicateBrokerDeliveryIsDroppedAtMostOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.subscribe(t, "watcher", 8)

	dup := model.ChatMessage{ID: 42, AuthorUsername: "alice", Body: "once"}
	require.NoError(t, h.bus.Publish(ctx, dup))
	require.NoError(t, h.bus.Publish(ctx, dup))
	require.NoError(t, h.bus.Publish(ctx, model.ChatMessage{ID: 43, AuthorUsername: "alice", Body: "next"}))

	assert.Equal(t, int64(42), receive(t, r).ID)
	assert.Equal(t, int64(43), receive(t, r).ID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := newHarness(t)
	r := h.subscribe(t, "watcher", 1)

	h.hub.Unsubscribe(r)
	_, ok := <-r.MessageCh
	assert.False(t, ok)
	assert.Equal(t, 0, h.hub.Presence())

	// A second unsubscribe is a no-op.
	h.hub.Unsubscribe(r)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t, "alice")

	for _, body := range []string{"one", "two", "three"} {
		_, err := h.chat.Send(ctx, sess.Token, body)
		require.NoError(t, err)
	}

	msgs, err := h.chat.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Body)
	assert.Equal(t, "three", msgs[1].Body)

	msgs, err = h.chat.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestRecentKeys(t *testing.T) {
	r := newRecentKeys(2)
	assert.True(t, r.Add("a:1"))
	assert.True(t, r.Add("a:2"))
	assert.False(t, r.Add("a:1"))
	assert.True(t, r.Add("b:1"))
	assert.True(t, r.Add("a:3")) // evicts a:1
	assert.True(t, r.Add("a:1"))
	assert.False(t, r.Add("a:3"))
}

func TestInstancesWithOwnStoresShareTheBus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	watcher := h.subscribe(t, "watcher", 8)

	// A second instance numbers its messages from 1 as well.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	hasher := auth.NewPasswordHasher(&argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	bob, err := account.NewRegistry(store, hasher, log).Register(ctx, account.RegisterInput{Username: "bob", Secret: "secret1"})
	require.NoError(t, err)
	issuer := session.NewIssuer(store, store, time.Hour, log)
	bobSess, err := issuer.Issue(ctx, bob)
	require.NoError(t, err)
	other := NewBroadcaster(issuer, store, h.bus, 200, 50, log)

	first, err := h.chat.Send(ctx, h.login(t, "alice").Token, "from alice")
	require.NoError(t, err)
	second, err := other.Send(ctx, bobSess.Token, "from bob")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	assert.Equal(t, "from alice", receive(t, watcher).Body)
	assert.Equal(t, "from bob", receive(t, watcher).Body)
}

func TestRevokedRecipientsAreEvicted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.issuer.NotifyRevocations(h.hub)

	alice := h.login(t, "alice")
	bob := h.login(t, "bob")

	aliceConn := NewRecipient(alice.AccountID, "alice", alice.TokenHash, 8)
	aliceOther := NewRecipient(alice.AccountID, "alice", "other-session", 8)
	bobConn := NewRecipient(bob.AccountID, "bob", bob.TokenHash, 8)
	for _, r := range []*Recipient{aliceConn, aliceOther, bobConn} {
		require.NoError(t, h.hub.Subscribe(ctx, r))
	}

	// Logging out closes only the channel opened with that session.
	require.NoError(t, h.issuer.Revoke(ctx, alice.Token))
	_, ok := <-aliceConn.MessageCh
	assert.False(t, ok)
	assert.True(t, aliceConn.Evicted)
	assert.Eventually(t, func() bool { return h.hub.Presence() == 2 }, time.Second, 5*time.Millisecond)

	// Revoking the account closes the rest of its channels.
	require.NoError(t, h.issuer.RevokeAccount(ctx, alice.AccountID))
	_, ok = <-aliceOther.MessageCh
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return h.hub.Presence() == 1 }, time.Second, 5*time.Millisecond)

	msg, err := h.chat.Send(ctx, bob.Token, "still here")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, receive(t, bobConn).ID)

	// An evicted recipient can still be unsubscribed safely.
	h.hub.Unsubscribe(aliceConn)
}

func TestTypingSkipsTheTypist(t *testing.T) {
	h := newHarness(t)
	alice := h.subscribe(t, "alice", 1)
	bob := h.subscribe(t, "bob", 1)

	h.hub.Typing(alice)

	select {
	case ev := <-bob.TypingCh:
		assert.Equal(t, "alice", ev.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("bob was not told alice is typing")
	}

	select {
	case ev := <-alice.TypingCh:
		t.Fatalf("typist received own indicator: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
