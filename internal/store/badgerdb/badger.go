// Package badgerdb is the embedded BadgerDB implementation of the account,
// session and message stores.
//
// Key layout:
//
//	acct:id:{uuid}              -> account record (JSON)
//	acct:name:{username}        -> uuid
//	sess:{token_hash}           -> session record (JSON), TTL at expiry
//	msg:{id_padded}             -> message record (JSON)
//
// Message IDs are zero padded to 19 digits so key order is ID order.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/model"
)

const (
	accountIDPrefix   = "acct:id:"
	accountNamePrefix = "acct:name:"
	sessionPrefix     = "sess:"
	messagePrefix     = "msg:"
	messageSeqKey     = "seq:msg"

	// maxTxnRetries bounds the retries of a transaction that lost a
	// conflict against a concurrent writer.
	maxTxnRetries = 10
)

type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

// Open opens the database at path, or an in-memory database when path is
// empty.
func Open(path string, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log: log})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}

	seq, err := db.GetSequence([]byte(messageSeqKey), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to get message sequence: %w", err)
	}

	return &Store{db: db, seq: seq, log: log}, nil
}

// badgerLogger routes badger's own logging into slog. Badger is chatty at
// info level, so that goes to debug.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn("failed to release message sequence", slog.Any("error", err))
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction and retries it when badger
// reports a conflict with a concurrent transaction.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set([]byte(key), data)
}

// accountRecord is the stored form of model.Account; the model hides the
// password hash from JSON.
type accountRecord struct {
	ID            uuid.UUID    `json:"id"`
	Username      string       `json:"username"`
	PasswordHash  string       `json:"password_hash"`
	Roles         []model.Role `json:"roles"`
	CreatedAt     time.Time    `json:"created_at"`
	DeactivatedAt *time.Time   `json:"deactivated_at,omitempty"`
}

func toRecord(a model.Account) accountRecord {
	return accountRecord(a)
}

func (r accountRecord) account() model.Account {
	return model.Account(r)
}

func (s *Store) CreateAccount(_ context.Context, acct model.Account) error {
	return s.update(func(txn *badger.Txn) error {
		nameKey := []byte(accountNamePrefix + acct.Username)
		if _, err := txn.Get(nameKey); err == nil {
			return apperr.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(nameKey, acct.ID[:]); err != nil {
			return err
		}
		return setJSON(txn, accountIDPrefix+acct.ID.String(), toRecord(acct))
	})
}

func (s *Store) GetAccountByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	var rec accountRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, accountIDPrefix+id.String(), &rec)
	})
	if err != nil {
		return model.Account{}, err
	}
	return rec.account(), nil
}

func (s *Store) GetAccountByUsername(_ context.Context, username string) (model.Account, error) {
	var rec accountRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(accountNamePrefix + username))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperr.ErrNotFound
			}
			return err
		}

		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("corrupt username index for %q: %w", username, err)
		}

		return getJSON(txn, accountIDPrefix+id.String(), &rec)
	})
	if err != nil {
		return model.Account{}, err
	}
	return rec.account(), nil
}

// modifyAccount applies fn to the stored account inside one transaction.
func (s *Store) modifyAccount(id uuid.UUID, fn func(*accountRecord)) (model.Account, error) {
	var rec accountRecord
	err := s.update(func(txn *badger.Txn) error {
		key := accountIDPrefix + id.String()
		if err := getJSON(txn, key, &rec); err != nil {
			return err
		}
		fn(&rec)
		return setJSON(txn, key, rec)
	})
	if err != nil {
		return model.Account{}, err
	}
	return rec.account(), nil
}

func (s *Store) UpdateRoles(_ context.Context, id uuid.UUID, roles []model.Role) (model.Account, error) {
	return s.modifyAccount(id, func(r *accountRecord) {
		r.Roles = roles
	})
}

func (s *Store) DeactivateAccount(_ context.Context, id uuid.UUID, at time.Time) (model.Account, error) {
	return s.modifyAccount(id, func(r *accountRecord) {
		if r.DeactivatedAt == nil {
			r.DeactivatedAt = &at
		}
	})
}
