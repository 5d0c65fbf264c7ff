// Package memory is an in-process implementation of the account, session
// and message stores. It backs development runs and unit tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/model"
)

type Store struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]model.Account
	byUsername map[string]uuid.UUID
	sessions   map[string]model.Session
	messages   []model.ChatMessage
	nextMsgID  int64
}

func New() *Store {
	return &Store{
		accounts:   make(map[uuid.UUID]model.Account),
		byUsername: make(map[string]uuid.UUID),
		sessions:   make(map[string]model.Session),
	}
}

func clone(a model.Account) model.Account {
	a.Roles = slices.Clone(a.Roles)
	if a.DeactivatedAt != nil {
		t := *a.DeactivatedAt
		a.DeactivatedAt = &t
	}
	return a
}

func (s *Store) CreateAccount(_ context.Context, acct model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[acct.Username]; taken {
		return apperr.ErrConflict
	}
	if _, taken := s.accounts[acct.ID]; taken {
		return apperr.ErrConflict
	}

	s.accounts[acct.ID] = clone(acct)
	s.byUsername[acct.Username] = acct.ID
	return nil
}

func (s *Store) GetAccountByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return model.Account{}, apperr.ErrNotFound
	}
	return clone(acct), nil
}

func (s *Store) GetAccountByUsername(_ context.Context, username string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return model.Account{}, apperr.ErrNotFound
	}
	return clone(s.accounts[id]), nil
}

func (s *Store) UpdateRoles(_ context.Context, id uuid.UUID, roles []model.Role) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return model.Account{}, apperr.ErrNotFound
	}
	acct.Roles = slices.Clone(roles)
	s.accounts[id] = acct
	return clone(acct), nil
}

func (s *Store) DeactivateAccount(_ context.Context, id uuid.UUID, at time.Time) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return model.Account{}, apperr.ErrNotFound
	}
	if acct.DeactivatedAt == nil {
		acct.DeactivatedAt = &at
		s.accounts[id] = acct
	}
	return clone(acct), nil
}

func (s *Store) CreateSession(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.Token = ""
	s.sessions[sess.TokenHash] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, tokenHash string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return model.Session{}, apperr.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) DeleteAccountSessions(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, sess := range s.sessions {
		if sess.AccountID == accountID {
			delete(s.sessions, k)
		}
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, sess := range s.sessions {
		if sess.ExpiredAt(before) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateMessage(_ context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[msg.AuthorID]; !ok {
		return model.ChatMessage{}, apperr.ErrNotFound
	}

	s.nextMsgID++
	msg.ID = s.nextMsgID
	s.messages = append(s.messages, msg)
	return msg, nil
}

// ListMessages returns up to limit of the most recent messages, oldest first.
func (s *Store) ListMessages(_ context.Context, limit int) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.messages) > limit {
		start = len(s.messages) - limit
	}
	return slices.Clone(s.messages[start:]), nil
}
