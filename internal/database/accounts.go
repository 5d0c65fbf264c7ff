package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/johndosdos/paychat/internal/model"
)

const accountColumns = `account_id, username, hashed_password, roles, created_at, deactivated_at`

func scanAccount(row interface{ Scan(...any) error }) (model.Account, error) {
	var (
		id            pgtype.UUID
		acct          model.Account
		roles         []string
		createdAt     pgtype.Timestamptz
		deactivatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &acct.Username, &acct.PasswordHash, &roles, &createdAt, &deactivatedAt); err != nil {
		return model.Account{}, classify(err)
	}

	acct.ID = id.Bytes
	acct.CreatedAt = createdAt.Time.UTC()
	if deactivatedAt.Valid {
		t := deactivatedAt.Time.UTC()
		acct.DeactivatedAt = &t
	}
	for _, r := range roles {
		acct.Roles = append(acct.Roles, model.Role(r))
	}

	return acct, nil
}

const createAccount = `
INSERT INTO accounts (account_id, username, hashed_password, roles, created_at)
VALUES ($1, $2, $3, $4, $5)`

// CreateAccount relies on the unique index on username for atomicity.
func (q *Queries) CreateAccount(ctx context.Context, acct model.Account) error {
	_, err := q.db.Exec(ctx, createAccount,
		pgtype.UUID{Bytes: acct.ID, Valid: true},
		acct.Username,
		acct.PasswordHash,
		model.RoleNames(acct.Roles),
		pgtype.Timestamptz{Time: acct.CreatedAt, Valid: true},
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

const getAccountByID = `SELECT ` + accountColumns + ` FROM accounts WHERE account_id = $1`

func (q *Queries) GetAccountByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountByID, pgtype.UUID{Bytes: id, Valid: true}))
}

const getAccountByUsername = `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountByUsername, username))
}

const updateRoles = `
UPDATE accounts SET roles = $2
WHERE account_id = $1
RETURNING ` + accountColumns

func (q *Queries) UpdateRoles(ctx context.Context, id uuid.UUID, roles []model.Role) (model.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, updateRoles,
		pgtype.UUID{Bytes: id, Valid: true},
		model.RoleNames(roles),
	))
}

const deactivateAccount = `
UPDATE accounts SET deactivated_at = COALESCE(deactivated_at, $2)
WHERE account_id = $1
RETURNING ` + accountColumns

func (q *Queries) DeactivateAccount(ctx context.Context, id uuid.UUID, at time.Time) (model.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, deactivateAccount,
		pgtype.UUID{Bytes: id, Valid: true},
		pgtype.Timestamptz{Time: at, Valid: true},
	))
}
