package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/chat"
	"github.com/johndosdos/paychat/internal/model"
)

// Subscriptions registers push channels with the hub.
type Subscriptions interface {
	Subscribe(ctx context.Context, r *chat.Recipient) error
	Unsubscribe(r *chat.Recipient)
	Presence() int
}

type SessionValidator interface {
	Validate(ctx context.Context, token string) (model.Account, error)
}

// SSEOptions configures the event stream endpoint.
type SSEOptions struct {
	Buffer    int
	Heartbeat time.Duration
	// SessionCheck is how often an open stream re-validates its session;
	// zero disables the check.
	SessionCheck time.Duration
}

func writeEvent(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event) //nolint:errcheck
	fmt.Fprintf(w, "data: %s\n\n", data) //nolint:errcheck
}

// StreamSSE pushes chat messages to the caller as server-sent events. The
// stream ends with a session_ended event once its session is revoked or
// expires.
func StreamSSE(hub Subscriptions, sessions SessionValidator, opts SSEOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.GetPrincipalFromContext(ctx)
		if err != nil {
			WriteError(w, r, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err))
			return
		}
		token, ok := auth.GetSessionTokenFromContext(ctx)
		if !ok {
			WriteError(w, r, fmt.Errorf("%w: event stream requires a session", apperr.ErrUnauthorized))
			return
		}

		// We'll register our new client to the central hub.
		c := chat.NewRecipient(p.AccountID, p.Username, auth.HashToken(token), opts.Buffer)
		if err := hub.Subscribe(ctx, c); err != nil {
			WriteError(w, r, err)
			return
		}
		defer hub.Unsubscribe(c)

		w.Header().Set("X-Accel-Buffering", "no")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			slog.WarnContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
			return
		}

		slog.InfoContext(ctx, "client connected",
			slog.String("username", c.Username),
			slog.String("transport", "sse"))

		ticker := time.NewTicker(opts.Heartbeat)
		defer ticker.Stop()

		var sessionCheck <-chan time.Time
		if opts.SessionCheck > 0 && sessions != nil {
			t := time.NewTicker(opts.SessionCheck)
			defer t.Stop()
			sessionCheck = t.C
		}

		endSession := func(reason string) {
			data, _ := json.Marshal(map[string]string{"reason": reason})
			writeEvent(w, "session_ended", data)
			if err := rc.Flush(); err != nil {
				slog.WarnContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
			}
		}

		for {
			select {
			case message, ok := <-c.MessageCh:
				if !ok {
					if c.Evicted {
						endSession("revoked")
					}
					return
				}

				data, err := json.Marshal(message)
				if err != nil {
					slog.ErrorContext(ctx, "failed to encode message", slog.Any("error", err))
					continue
				}

				fmt.Fprintf(w, "id: %d\n", message.ID) //nolint:errcheck
				writeEvent(w, "message", data)

				if err := rc.Flush(); err != nil {
					slog.WarnContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
					return
				}

			case ev := <-c.TypingCh:
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				writeEvent(w, "typing", data)
				if err := rc.Flush(); err != nil {
					slog.WarnContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
					return
				}

			case <-sessionCheck:
				if _, err := sessions.Validate(ctx, token); err != nil {
					switch apperr.Kind(err) {
					case apperr.ErrExpired:
						endSession("expired")
						return
					case apperr.ErrUnauthorized:
						endSession("unauthorized")
						return
					}
					slog.WarnContext(ctx, "session check failed", slog.Any("error", err))
				}

			case <-ticker.C:
				fmt.Fprint(w, ": \n\n") //nolint:errcheck
				if err := rc.Flush(); err != nil {
					slog.WarnContext(ctx, "could not flush buffer to writer", slog.Any("error", err))
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}
}
