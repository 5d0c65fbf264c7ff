package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/johndosdos/paychat/internal/model"
)

const createSession = `
INSERT INTO sessions (token_hash, account_id, issued_at, expires_at)
VALUES ($1, $2, $3, $4)`

func (q *Queries) CreateSession(ctx context.Context, s model.Session) error {
	_, err := q.db.Exec(ctx, createSession,
		s.TokenHash,
		pgtype.UUID{Bytes: s.AccountID, Valid: true},
		pgtype.Timestamptz{Time: s.IssuedAt, Valid: true},
		pgtype.Timestamptz{Time: s.ExpiresAt, Valid: true},
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

const getSession = `
SELECT token_hash, account_id, issued_at, expires_at
FROM sessions WHERE token_hash = $1`

func (q *Queries) GetSession(ctx context.Context, tokenHash string) (model.Session, error) {
	var (
		s         model.Session
		accountID pgtype.UUID
		issuedAt  pgtype.Timestamptz
		expiresAt pgtype.Timestamptz
	)

	err := q.db.QueryRow(ctx, getSession, tokenHash).Scan(&s.TokenHash, &accountID, &issuedAt, &expiresAt)
	if err != nil {
		return model.Session{}, classify(err)
	}

	s.AccountID = accountID.Bytes
	s.IssuedAt = issuedAt.Time.UTC()
	s.ExpiresAt = expiresAt.Time.UTC()
	return s, nil
}

func (q *Queries) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return classify(err)
	}
	return nil
}

func (q *Queries) DeleteAccountSessions(ctx context.Context, accountID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`,
		pgtype.UUID{Bytes: accountID, Valid: true})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (q *Queries) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`,
		pgtype.Timestamptz{Time: before, Valid: true})
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}
