// Package redisdb keeps sessions in Redis so every instance behind a load
// balancer sees the same logins.
package redisdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/johndosdos/paychat/internal/apperr"
	"github.com/johndosdos/paychat/internal/model"
)

const DefaultKeyPrefix = "paychat:"

// SessionStore stores one JSON record per session, a set of session hashes
// per account and a sorted set of hashes scored by expiry.
type SessionStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewSessionStore(client *redis.Client, keyPrefix string) *SessionStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &SessionStore{client: client, keyPrefix: keyPrefix}
}

func (s *SessionStore) sessionKey(tokenHash string) string {
	return s.keyPrefix + "session:" + tokenHash
}

func (s *SessionStore) accountKey(id uuid.UUID) string {
	return s.keyPrefix + "account-sessions:" + id.String()
}

func (s *SessionStore) expiryKey() string {
	return s.keyPrefix + "session-expiry"
}

type sessionRecord struct {
	TokenHash string    `json:"token_hash"`
	AccountID uuid.UUID `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *SessionStore) CreateSession(ctx context.Context, sess model.Session) error {
	data, err := json.Marshal(sessionRecord{
		TokenHash: sess.TokenHash,
		AccountID: sess.AccountID,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt) + model.ExpiredSessionGrace
	if ttl <= 0 {
		ttl = time.Second
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.TokenHash), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.TokenHash)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
			Score:  float64(sess.ExpiresAt.UnixMilli()),
			Member: sess.TokenHash,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, tokenHash string) (model.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Session{}, apperr.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return model.Session{
		TokenHash: rec.TokenHash,
		AccountID: rec.AccountID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// removeSessions deletes the given session hashes and their index entries.
// The owning account is read from each record when known.
func (s *SessionStore) removeSessions(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = s.sessionKey(h)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("failed to get sessions: %w", err)
	}

	members := make([]any, len(hashes))
	for i, h := range hashes {
		members[i] = h
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.expiryKey(), members...)
		for i, val := range values {
			data, ok := val.(string)
			if !ok {
				continue
			}
			var rec sessionRecord
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				continue
			}
			pipe.SRem(ctx, s.accountKey(rec.AccountID), hashes[i])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete sessions from redis: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, tokenHash string) error {
	return s.removeSessions(ctx, []string{tokenHash})
}

func (s *SessionStore) DeleteAccountSessions(ctx context.Context, accountID uuid.UUID) error {
	hashes, err := s.client.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list account sessions: %w", err)
	}
	if err := s.removeSessions(ctx, hashes); err != nil {
		return err
	}
	return s.client.Del(ctx, s.accountKey(accountID)).Err()
}

func (s *SessionStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	hashes, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	if err := s.removeSessions(ctx, hashes); err != nil {
		return 0, err
	}
	return int64(len(hashes)), nil
}
