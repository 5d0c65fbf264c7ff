package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/chat"
	"github.com/johndosdos/paychat/internal/model"
)

const (
	TypeMessage     = "message"
	TypePresence    = "presence"
	TypeError       = "error"
	TypeRateLimited = "rate_limited"
	TypeTyping      = "typing"

	writeTimeout     = 10 * time.Second
	presenceInterval = 15 * time.Second
)

// Inbound is a frame sent by the client.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Outbound is a frame sent to the client. Only the fields of its Type are
// set.
type Outbound struct {
	Type       string             `json:"type"`
	Message    *model.ChatMessage `json:"message,omitempty"`
	Count      *int               `json:"count,omitempty"`
	Username   string             `json:"username,omitempty"`
	Error      string             `json:"error,omitempty"`
	RetryAfter int                `json:"retry_after,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, token, body string) (model.ChatMessage, error)
}

type Hub interface {
	Subscribe(ctx context.Context, r *chat.Recipient) error
	Unsubscribe(r *chat.Recipient)
	Typing(from *chat.Recipient)
	Presence() int
}

type SessionValidator interface {
	Validate(ctx context.Context, token string) (model.Account, error)
}

type Client struct {
	*chat.Recipient
	conn       *websocket.Conn
	hub        Hub
	sender     Sender
	token      string
	messageLim *rate.Limiter
	typingLim  *rate.Limiter
	sessions   SessionValidator
	checkEvery time.Duration
	replies    chan Outbound
	log        *slog.Logger
}

func NewClient(conn *websocket.Conn, recipient *chat.Recipient, hub Hub, sender Sender, token string, log *slog.Logger) *Client {
	return &Client{
		Recipient: recipient,
		conn:      conn,
		hub:       hub,
		sender:    sender,
		token:     token,
		replies:   make(chan Outbound, 16),
		log:       log,
	}
}

// SetMessageLimiter caps the client's sends at limit per second with burst.
func (c *Client) SetMessageLimiter(limit float64, burst int) {
	c.messageLim = rate.NewLimiter(rate.Limit(limit), burst)
}

// SetTypingLimiter caps the client's typing indicators at limit per second
// with burst. Indicators over the limit are dropped silently.
func (c *Client) SetTypingLimiter(limit float64, burst int) {
	c.typingLim = rate.NewLimiter(rate.Limit(limit), burst)
}

// SetSessionCheck makes the writer re-validate the client's session every
// interval and close the connection once it is no longer valid.
func (c *Client) SetSessionCheck(sessions SessionValidator, interval time.Duration) {
	c.sessions = sessions
	c.checkEvery = interval
}

// closeForSession closes the connection when err means the session is gone
// and reports whether it did.
func (c *Client) closeForSession(err error) bool {
	switch apperr.Kind(err) {
	case apperr.ErrExpired:
		c.conn.Close(websocket.StatusPolicyViolation, "session expired")
		return true
	case apperr.ErrUnauthorized:
		c.conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return true
	}
	return false
}

// reply queues a frame for this client only. Replies are dropped when the
// writer is behind.
func (c *Client) reply(out Outbound) {
	select {
	case c.replies <- out:
	default:
		c.log.Warn("skipping reply - channel full or client slow",
			slog.String("username", c.Username))
	}
}

func (c *Client) write(ctx context.Context, out Outbound) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, c.conn, out)
}

// WriteMessage writes chat messages, replies and presence updates to the
// websocket until the hub closes the recipient queue or ctx is done.
func (c *Client) WriteMessage(ctx context.Context) {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()

	lastPresence := -1
	sendPresence := func() error {
		n := c.hub.Presence()
		if n == lastPresence {
			return nil
		}
		lastPresence = n
		return c.write(ctx, Outbound{Type: TypePresence, Count: &n})
	}

	if err := sendPresence(); err != nil {
		c.log.WarnContext(ctx, "failed to write presence", slog.Any("error", err))
	}

	var sessionCheck <-chan time.Time
	if c.sessions != nil && c.checkEvery > 0 {
		t := time.NewTicker(c.checkEvery)
		defer t.Stop()
		sessionCheck = t.C
	}

	for {
		var err error

		select {
		case payload, ok := <-c.MessageCh:
			// We don't want to continue processing when the channel has already been
			// closed.
			if !ok {
				if c.Evicted {
					c.conn.Close(websocket.StatusPolicyViolation, "session ended")
					return
				}
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			err = c.write(ctx, Outbound{Type: TypeMessage, Message: &payload})

		case ev := <-c.TypingCh:
			err = c.write(ctx, Outbound{Type: TypeTyping, Username: ev.Username})

		case out := <-c.replies:
			err = c.write(ctx, out)

		case <-ticker.C:
			err = sendPresence()

		case <-sessionCheck:
			if _, verr := c.sessions.Validate(ctx, c.token); verr != nil {
				if c.closeForSession(verr) {
					return
				}
				c.log.WarnContext(ctx, "session check failed", slog.Any("error", verr))
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}

		if err != nil {
			c.log.WarnContext(ctx, "failed to write frame",
				slog.String("username", c.Username),
				slog.Any("error", err))
			c.conn.CloseNow()
			return
		}
	}
}
