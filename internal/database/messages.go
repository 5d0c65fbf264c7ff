package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/johndosdos/paychat/internal/model"
)

const createMessage = `
INSERT INTO messages (account_id, username, content, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

// CreateMessage stores msg and returns it with the DB-generated ID.
func (q *Queries) CreateMessage(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	err := q.db.QueryRow(ctx, createMessage,
		pgtype.UUID{Bytes: msg.AuthorID, Valid: true},
		msg.AuthorUsername,
		msg.Body,
		pgtype.Timestamptz{Time: msg.CreatedAt, Valid: true},
	).Scan(&msg.ID)
	if err != nil {
		return model.ChatMessage{}, classify(err)
	}
	return msg, nil
}

const listMessages = `
SELECT id, account_id, username, content, created_at FROM (
    SELECT id, account_id, username, content, created_at
    FROM messages ORDER BY id DESC LIMIT $1
) recent ORDER BY id ASC`

func (q *Queries) ListMessages(ctx context.Context, limit int) ([]model.ChatMessage, error) {
	rows, err := q.db.Query(ctx, listMessages, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var (
			msg       model.ChatMessage
			authorID  pgtype.UUID
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&msg.ID, &authorID, &msg.AuthorUsername, &msg.Body, &createdAt); err != nil {
			return nil, classify(err)
		}
		msg.AuthorID = authorID.Bytes
		msg.CreatedAt = createdAt.Time.UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return msgs, nil
}
