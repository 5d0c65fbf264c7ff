// Package chat accepts messages from authenticated sessions and fans them
// out to connected recipients.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/broker"
	"github.com/johndosdos/paychat/internal/model"
)

// SessionValidator resolves a session token to its account.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (model.Account, error)
}

// MessageStore persists messages. CreateMessage assigns the ID.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error)
	ListMessages(ctx context.Context, limit int) ([]model.ChatMessage, error)
}

type sanitizer interface {
	Sanitize(s string) string
}

// senderState serializes one sender's sends. Holding mu across stamping,
// persisting and publishing keeps that sender's timestamps, IDs and bus
// order in agreement without a lock shared between senders. refs counts the
// sends holding or waiting for mu; the state is dropped when it reaches zero.
type senderState struct {
	mu   sync.Mutex
	last time.Time
	refs int
}

type Broadcaster struct {
	sessions   SessionValidator
	store      MessageStore
	publisher  broker.Publisher
	sanitizer  sanitizer
	maxLen     int
	maxHistory int
	log        *slog.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time

	// Origin tags every published message with this process. It defaults to
	// a random UUID.
	Origin string

	mu      sync.Mutex
	senders map[uuid.UUID]*senderState
	// floor is the latest stamp handed to a sender whose state was dropped.
	// New states start from it, so a dropped sender never goes backwards.
	floor time.Time
}

func NewBroadcaster(sessions SessionValidator, store MessageStore, publisher broker.Publisher, maxLen, maxHistory int, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		sessions:   sessions,
		store:      store,
		publisher:  publisher,
		sanitizer:  bluemonday.StrictPolicy(),
		maxLen:     maxLen,
		maxHistory: maxHistory,
		log:        log,
		Now:        time.Now,
		Origin:     uuid.NewString(),
		senders:    make(map[uuid.UUID]*senderState),
	}
}

func (b *Broadcaster) acquire(id uuid.UUID) *senderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.senders[id]
	if !ok {
		st = &senderState{last: b.floor}
		b.senders[id] = st
	}
	st.refs++
	return st
}

func (b *Broadcaster) release(id uuid.UUID, st *senderState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st.refs--
	if st.refs > 0 {
		return
	}
	if st.last.After(b.floor) {
		b.floor = st.last
	}
	delete(b.senders, id)
}

// Send validates the session behind token, stores body as a new message and
// publishes it for delivery.
func (b *Broadcaster) Send(ctx context.Context, token, body string) (model.ChatMessage, error) {
	acct, err := b.sessions.Validate(ctx, token)
	if err != nil {
		return model.ChatMessage{}, err
	}

	// We need to sanitize incoming messages to prevent XSS.
	clean := strings.TrimSpace(b.sanitizer.Sanitize(body))
	if clean == "" {
		return model.ChatMessage{}, fmt.Errorf("%w: message body is empty", apperr.ErrInvalid)
	}
	if n := utf8.RuneCountInString(clean); n > b.maxLen {
		return model.ChatMessage{}, fmt.Errorf("%w: message body has %d characters, limit is %d", apperr.ErrInvalid, n, b.maxLen)
	}

	st := b.acquire(acct.ID)
	defer b.release(acct.ID, st)
	st.mu.Lock()
	defer st.mu.Unlock()

	// Postgres keeps microseconds; truncating here keeps the stored stamp
	// equal to the one we compare against.
	ts := b.Now().UTC().Truncate(time.Microsecond)
	if ts.Before(st.last) {
		ts = st.last
	}

	msg, err := b.store.CreateMessage(ctx, model.ChatMessage{
		AuthorID:       acct.ID,
		AuthorUsername: acct.Username,
		Body:           clean,
		CreatedAt:      ts,
	})
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("failed to store message: %w", err)
	}
	st.last = ts
	msg.Origin = b.Origin

	if err := b.publisher.Publish(ctx, msg); err != nil {
		b.log.ErrorContext(ctx, "message stored but not published",
			slog.Int64("message_id", msg.ID),
			slog.Any("error", err))
		return model.ChatMessage{}, fmt.Errorf("failed to publish message %d: %w", msg.ID, err)
	}

	b.log.DebugContext(ctx, "message sent",
		slog.Int64("message_id", msg.ID),
		slog.String("username", acct.Username))

	return msg, nil
}

// History returns up to limit recent messages, oldest first. A limit outside
// (0, maxHistory] is clamped to maxHistory.
func (b *Broadcaster) History(ctx context.Context, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 || limit > b.maxHistory {
		limit = b.maxHistory
	}

	msgs, err := b.store.ListMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return msgs, nil
}
