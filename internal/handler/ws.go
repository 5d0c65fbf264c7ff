package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/chat"
	ws "github.com/johndosdos/paychat/internal/websocket"
)

// WsOptions configures the websocket endpoint.
type WsOptions struct {
	// OriginPatterns lists the accepted Origin hosts; empty allows only
	// same-origin requests.
	OriginPatterns   []string
	Buffer           int
	MessageRateLimit float64
	MessageRateBurst int
	TypingRateLimit  float64
	TypingRateBurst  int
	// SessionCheck is how often an open connection re-validates its
	// session; zero disables the check.
	SessionCheck time.Duration
}

// ServeWs handles the client's websocket connection upgrade.
func ServeWs(hub ws.Hub, sender ws.Sender, sessions ws.SessionValidator, opts WsOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		p, err := auth.GetPrincipalFromContext(ctx)
		if err != nil {
			WriteError(w, r, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err))
			return
		}
		token, ok := auth.GetSessionTokenFromContext(ctx)
		if !ok {
			WriteError(w, r, fmt.Errorf("%w: chat requires a session", apperr.ErrUnauthorized))
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to upgrade connection to websocket", slog.Any("error", err))
			return
		}

		log := slog.Default().With(slog.String("username", p.Username))

		// We'll register our new client to the central hub.
		recipient := chat.NewRecipient(p.AccountID, p.Username, auth.HashToken(token), opts.Buffer)
		c := ws.NewClient(conn, recipient, hub, sender, token, log)
		c.SetMessageLimiter(opts.MessageRateLimit, opts.MessageRateBurst)
		if opts.TypingRateLimit > 0 {
			c.SetTypingLimiter(opts.TypingRateLimit, opts.TypingRateBurst)
		}
		c.SetSessionCheck(sessions, opts.SessionCheck)

		if err := hub.Subscribe(ctx, c.Recipient); err != nil {
			log.WarnContext(ctx, "failed to register client", slog.Any("error", err))
			conn.Close(websocket.StatusTryAgainLater, "server busy")
			return
		}
		log.InfoContext(ctx, "client connected", slog.String("transport", "websocket"))

		// We block on c.ReadMessage() because the request context will be canceled as soon
		// we return from the ServeWs() handler.
		go c.WriteMessage(ctx)
		c.ReadMessage(ctx)
	}
}
