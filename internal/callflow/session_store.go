package callflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "call:session:"
	sessionTTL       = 24 * time.Hour
)

// SessionStore persists call sessions in Redis between webhook events. Each
// gateway event arrives as an independent HTTP request; the store is the
// durable pause that lets the state machine resume where it left off.
type SessionStore struct {
	rdb *redis.Client
}

// NewSessionStore creates a session store backed by Redis.
func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Save persists or updates a session.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("callflow: session store: session id required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("callflow: session store: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("callflow: session store: set: %w", err)
	}
	return nil
}

// Get retrieves a session, or nil when none exists.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("callflow: session store: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("callflow: session store: unmarshal: %w", err)
	}
	return &sess, nil
}

// Delete removes a session. Archived sessions no longer need live state.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("callflow: session store: delete: %w", err)
	}
	return nil
}
