package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/ratelimiter"
)

// ReadMessage reads client frames and sends chat messages until the
// connection or ctx ends. It unregisters the client on return.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		c.hub.Unsubscribe(c.Recipient)
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				c.log.WarnContext(ctx, "websocket read failed", slog.Any("error", err))
			}
			return
		}

		// The app only supports text format for now...
		if msgType != websocket.MessageText {
			c.reply(Outbound{Type: TypeError, Error: "only text frames are supported"})
			continue
		}

		var in Inbound
		if err := json.Unmarshal(p, &in); err != nil {
			c.reply(Outbound{Type: TypeError, Error: "malformed frame"})
			continue
		}
		switch in.Type {
		case TypeMessage:
		case TypeTyping:
			if c.typingLim == nil || c.typingLim.Allow() {
				c.hub.Typing(c.Recipient)
			}
			continue
		default:
			c.reply(Outbound{Type: TypeError, Error: "unknown frame type"})
			continue
		}

		if c.messageLim != nil {
			res := c.messageLim.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				c.reply(Outbound{
					Type:       TypeRateLimited,
					RetryAfter: ratelimiter.RetryAfterSeconds(delay),
				})
				continue
			}
		}

		if _, err := c.sender.Send(ctx, c.token, in.Content); err != nil {
			if c.closeForSession(err) {
				return
			}
			switch {
			case errors.Is(err, apperr.ErrInvalid):
				c.reply(Outbound{Type: TypeError, Error: err.Error()})
			default:
				c.log.ErrorContext(ctx, "failed to send message",
					slog.String("username", c.Username),
					slog.Any("error", err))
				c.reply(Outbound{Type: TypeError, Error: "message not sent"})
			}
		}
	}
}
