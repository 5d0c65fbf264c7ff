package internal

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/paychat/internal/chat"
	"github.com/johndosdos/paychat/internal/handler"
	"github.com/johndosdos/paychat/internal/model"
	"github.com/johndosdos/paychat/internal/ratelimiter"
)

type Chat interface {
	handler.MessageSender
	handler.HistoryLoader
}

// Routes holds everything the HTTP API is built from.
type Routes struct {
	Auth          handler.Auth
	Admin         handler.Admin
	Authenticator *Authenticator
	// Accounts is consulted for roles on the admin routes.
	Accounts AccountLookup
	Chat     Chat
	Hub      *chat.Hub
	// IPLimiter throttles the account endpoints; nil disables it.
	IPLimiter    *ratelimiter.IPRateLimiter
	Ws           handler.WsOptions
	SSE          handler.SSEOptions
	HealthChecks map[string]handler.HealthCheck
}

// NewRouter wires the HTTP API.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.ServeHealthz(rt.Hub.Presence, rt.HealthChecks))

	r.Route("/account", func(r chi.Router) {
		if rt.IPLimiter != nil {
			r.Use(rt.IPLimiter.Middleware)
		}
		r.Post("/signup", handler.ServeSignup(rt.Auth))
		r.Post("/login", handler.ServeLogin(rt.Auth))
		r.Post("/logout", handler.ServeLogout(rt.Auth))
		r.Post("/refresh", handler.RefreshToken(rt.Auth))
	})

	r.Group(func(r chi.Router) {
		r.Use(rt.Authenticator.Middleware)

		// Load chat history on HTTP GET on initial connection before starting websockets.
		r.Get("/messages", handler.ServeMessages(rt.Chat))
		r.Post("/messages", handler.PostMessage(rt.Chat))
		r.Get("/ws", handler.ServeWs(rt.Hub, rt.Chat, rt.Auth.Sessions, rt.Ws))
		r.Get("/events", handler.StreamSSE(rt.Hub, rt.Auth.Sessions, rt.SSE))

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(rt.Accounts, model.RoleAdmin))
			r.Post("/accounts", handler.CreateAccount(rt.Admin))
			r.Put("/accounts/{id}/roles", handler.SetRoles(rt.Admin))
			r.Post("/accounts/{id}/deactivate", handler.DeactivateAccount(rt.Admin))
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}
