// Package redis stores live access-token ids in Redis with the token's TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "aridos:session:"

// SessionStore keeps one key per live token.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a store using the default key prefix.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: defaultPrefix}
}

// Save records tokenID for userID until ttl elapses.
func (s *SessionStore) Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	if err := s.client.Set(ctx, s.prefix+tokenID, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Exists reports whether tokenID is still live.
func (s *SessionStore) Exists(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Delete revokes tokenID. Unknown ids are not an error.
func (s *SessionStore) Delete(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+tokenID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
