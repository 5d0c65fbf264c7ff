package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/auth"
	"github.com/johndosdos/paychat/internal/model"
)

type MessageSender interface {
	Send(ctx context.Context, token, body string) (model.ChatMessage, error)
}

type HistoryLoader interface {
	History(ctx context.Context, limit int) ([]model.ChatMessage, error)
}

// ServeMessages loads recent chat history, oldest first. The limit query
// parameter is clamped by the loader.
func ServeMessages(history HistoryLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				WriteError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", apperr.ErrInvalid))
				return
			}
			limit = n
		}

		msgs, err := history.History(r.Context(), limit)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if msgs == nil {
			msgs = []model.ChatMessage{}
		}

		WriteJSON(w, http.StatusOK, msgs)
	}
}

type sendRequest struct {
	Content string `json:"content"`
}

// PostMessage sends a chat message as the session the request carries.
func PostMessage(sender MessageSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := auth.GetSessionTokenFromContext(ctx)
		if !ok {
			WriteError(w, r, fmt.Errorf("%w: sending requires a session", apperr.ErrUnauthorized))
			return
		}

		var req sendRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		msg, err := sender.Send(ctx, token, req.Content)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusCreated, msg)
	}
}
