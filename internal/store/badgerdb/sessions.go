package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/model"
)

type sessionRecord struct {
	TokenHash string    `json:"token_hash"`
	AccountID uuid.UUID `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r sessionRecord) session() model.Session {
	return model.Session{
		TokenHash: r.TokenHash,
		AccountID: r.AccountID,
		IssuedAt:  r.IssuedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func (s *Store) CreateSession(_ context.Context, sess model.Session) error {
	data, err := json.Marshal(sessionRecord{
		TokenHash: sess.TokenHash,
		AccountID: sess.AccountID,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt) + model.ExpiredSessionGrace
	if ttl <= 0 {
		ttl = time.Second
	}

	return s.update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(sessionPrefix+sess.TokenHash), data).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

func (s *Store) GetSession(_ context.Context, tokenHash string) (model.Session, error) {
	var rec sessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, sessionPrefix+tokenHash, &rec)
	})
	if err != nil {
		return model.Session{}, err
	}
	return rec.session(), nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + tokenHash))
	})
}

// deleteSessionsWhere deletes every session matched by match and reports
// how many were removed.
func (s *Store) deleteSessionsWhere(match func(sessionRecord) bool) (int64, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec sessionRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if match(rec) {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	err = s.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (s *Store) DeleteAccountSessions(_ context.Context, accountID uuid.UUID) error {
	_, err := s.deleteSessionsWhere(func(r sessionRecord) bool {
		return r.AccountID == accountID
	})
	return err
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	return s.deleteSessionsWhere(func(r sessionRecord) bool {
		return !before.Before(r.ExpiresAt)
	})
}
