package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/model"
)

func messageKey(id int64) string {
	return fmt.Sprintf("%s%019d", messagePrefix, id)
}

// CreateMessage stores msg under the next sequence number. The author must
// exist.
func (s *Store) CreateMessage(_ context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	next, err := s.seq.Next()
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("failed to allocate message id: %w", err)
	}
	// Sequences start at zero; IDs start at one.
	msg.ID = int64(next) + 1

	err = s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(accountIDPrefix + msg.AuthorID.String())); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperr.ErrNotFound
			}
			return err
		}
		return setJSON(txn, messageKey(msg.ID), msg)
	})
	if err != nil {
		return model.ChatMessage{}, err
	}
	return msg, nil
}

// ListMessages walks the message keys backwards from the newest and returns
// up to limit messages, oldest first.
func (s *Store) ListMessages(_ context.Context, limit int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(messagePrefix)
		// In reverse mode Seek lands on the largest key <= the seek key.
		seek := append([]byte(messagePrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(msgs) >= limit {
				break
			}
			var msg model.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
