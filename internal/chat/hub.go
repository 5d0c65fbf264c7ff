package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/broker"
	"github.com/johndosdos/paychat/internal/model"
)

const typingBuffer = 8

// Recipient is one connected push channel. The hub writes into MessageCh and
// closes it on unregistration; the channel's owner drains it. TypingCh is
// never closed.
type Recipient struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Username  string
	// SessionHash is the hash of the session the channel was opened with.
	SessionHash string
	MessageCh   chan model.ChatMessage
	TypingCh    chan Typing

	// Evicted is set before MessageCh is closed when the recipient's
	// session or account was revoked. Read it only after MessageCh closed.
	Evicted bool
}

// NewRecipient returns a recipient with a queue of size buffer.
func NewRecipient(accountID uuid.UUID, username, sessionHash string, buffer int) *Recipient {
	return &Recipient{
		ID:          uuid.New(),
		AccountID:   accountID,
		Username:    username,
		SessionHash: sessionHash,
		MessageCh:   make(chan model.ChatMessage, buffer),
		TypingCh:    make(chan Typing, typingBuffer),
	}
}

// Typing tells the other recipients that an account is composing a message.
// It is not stored and does not cross the broker.
type Typing struct {
	AccountID uuid.UUID `json:"-"`
	Username  string    `json:"username"`
}

type Registration struct {
	Recipient *Recipient
	Done      chan struct{}
}

// eviction selects recipients to drop. Exactly one field is set.
type eviction struct {
	sessionHash string
	accountID   uuid.UUID
}

func (e eviction) matches(r *Recipient) bool {
	if e.sessionHash != "" {
		return r.SessionHash == e.sessionHash
	}
	return r.AccountID == e.accountID
}

// Hub owns the set of connected recipients. Only Run touches the set, so
// fan-out takes no lock.
type Hub struct {
	subscriber broker.Subscriber
	recipients map[uuid.UUID]*Recipient
	Register   chan Registration
	Unregister chan *Recipient
	BrokerMsg  chan model.ChatMessage
	typing     chan Typing
	evict      chan eviction
	seen       *recentKeys
	presence   atomic.Int64
	done       chan struct{}
	log        *slog.Logger
}

// NewHub returns a new instance of Hub.
func NewHub(subscriber broker.Subscriber, log *slog.Logger) *Hub {
	return &Hub{
		subscriber: subscriber,
		recipients: make(map[uuid.UUID]*Recipient),
		Register:   make(chan Registration),
		Unregister: make(chan *Recipient),
		BrokerMsg:  make(chan model.ChatMessage, 1024),
		typing:     make(chan Typing, 64),
		evict:      make(chan eviction),
		seen:       newRecentKeys(4096),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run manages incoming and outgoing hub traffic until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	if err := h.subscriber.Subscribe(ctx, h.BrokerMsg); err != nil {
		return fmt.Errorf("failed to subscribe to broker: %w", err)
	}

	for {
		select {
		case reg := <-h.Register:
			r := reg.Recipient
			h.recipients[r.ID] = r
			h.presence.Store(int64(len(h.recipients)))
			close(reg.Done)

		case r := <-h.Unregister:
			if _, ok := h.recipients[r.ID]; ok {
				delete(h.recipients, r.ID)
				close(r.MessageCh)
				h.presence.Store(int64(len(h.recipients)))
			}

		case msg := <-h.BrokerMsg:
			if !h.seen.Add(msg.DeliveryKey()) {
				h.log.DebugContext(ctx, "duplicate message skipped",
					slog.Int64("message_id", msg.ID),
					slog.String("origin", msg.Origin))
				continue
			}
			h.dispatch(ctx, msg)

		case t := <-h.typing:
			for _, r := range h.recipients {
				if r.AccountID == t.AccountID {
					continue
				}
				select {
				case r.TypingCh <- t:
				default:
				}
			}

		case e := <-h.evict:
			for id, r := range h.recipients {
				if !e.matches(r) {
					continue
				}
				delete(h.recipients, id)
				r.Evicted = true
				close(r.MessageCh)
				h.log.InfoContext(ctx, "recipient evicted",
					slog.String("username", r.Username))
			}
			h.presence.Store(int64(len(h.recipients)))

		case <-ctx.Done():
			for id, r := range h.recipients {
				delete(h.recipients, id)
				close(r.MessageCh)
			}
			h.presence.Store(0)
			return nil
		}
	}
}

// dispatch hands msg to every recipient's own queue. A recipient whose
// queue is full misses this message; the others are unaffected.
func (h *Hub) dispatch(ctx context.Context, msg model.ChatMessage) {
	for _, r := range h.recipients {
		select {
		case r.MessageCh <- msg:
		default:
			h.log.WarnContext(ctx, "skipping message payload - channel full or client slow",
				slog.Int64("message_id", msg.ID),
				slog.String("recipient", r.Username))
		}
	}
}

// Subscribe registers r and waits until the hub has taken it.
func (h *Hub) Subscribe(ctx context.Context, r *Recipient) error {
	reg := Registration{Recipient: r, Done: make(chan struct{})}

	select {
	case h.Register <- reg:
	case <-h.done:
		return fmt.Errorf("hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	// Wait for registration to complete
	select {
	case <-reg.Done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe removes r. It is safe to call after the hub stopped.
func (h *Hub) Unsubscribe(r *Recipient) {
	select {
	case h.Unregister <- r:
	case <-h.done:
	}
}

// Typing broadcasts that from is composing a message. It is dropped when
// the hub is busy.
func (h *Hub) Typing(from *Recipient) {
	select {
	case h.typing <- Typing{AccountID: from.AccountID, Username: from.Username}:
	default:
	}
}

func (h *Hub) sendEviction(ctx context.Context, e eviction) {
	select {
	case h.evict <- e:
	case <-h.done:
	case <-ctx.Done():
	}
}

// SessionRevoked closes every recipient opened with the session whose hash
// is tokenHash.
func (h *Hub) SessionRevoked(ctx context.Context, tokenHash string) {
	if tokenHash == "" {
		return
	}
	h.sendEviction(ctx, eviction{sessionHash: tokenHash})
}

// AccountRevoked closes every recipient of accountID.
func (h *Hub) AccountRevoked(ctx context.Context, accountID uuid.UUID) {
	h.sendEviction(ctx, eviction{accountID: accountID})
}

// Presence is the number of currently registered recipients.
func (h *Hub) Presence() int {
	return int(h.presence.Load())
}
