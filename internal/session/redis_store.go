// Package session provides chat history storage backends.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skein/internal/ai"
)

// HistoryStore persists per-session chat transcripts.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, messages ...ai.Message) error
	History(ctx context.Context, sessionID string) ([]ai.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// RedisStore keeps each session's chat history in a Redis list with a
// sliding TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed chat history store.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "chat:",
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Append pushes messages onto the session's history and refreshes its TTL.
func (s *RedisStore) Append(ctx context.Context, sessionID string, messages ...ai.Message) error {
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal chat message: %w", err)
		}
		values = append(values, data)
	}

	key := s.key(sessionID)
	if err := s.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("append chat history: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("refresh chat history ttl: %w", err)
		}
	}
	return nil
}

// History returns the session's messages oldest first. An unknown session is
// an empty history, not an error.
func (s *RedisStore) History(ctx context.Context, sessionID string) ([]ai.Message, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	messages := make([]ai.Message, 0, len(raw))
	for _, item := range raw {
		var msg ai.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear drops a session's history.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear chat history: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
