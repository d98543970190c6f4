// Package session keeps a rolling per-conversation context window in
// Redis lists, so the classifier can see the last few turns when it
// summarizes a new one.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxTurns bounds the stored window per (owner, session).
	DefaultMaxTurns = 10
	// DefaultTTL expires idle sessions.
	DefaultTTL = 24 * time.Hour
)

// Entry is one stored message of a conversation.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store manages conversation context windows in Redis lists.
type Store struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewStore creates a session store. Non-positive maxTurns or ttl fall
// back to the defaults.
func NewStore(client *redis.Client, maxTurns int, ttl time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, maxTurns: maxTurns, ttl: ttl}
}

func sessionKey(ownerID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", ownerID, sessionID)
}

// AppendTurn pushes the user and assistant messages of one turn, trims
// the window and refreshes the TTL in a single pipeline.
func (s *Store) AppendTurn(ctx context.Context, ownerID, sessionID, userMsg, aiMsg string) error {
	key := sessionKey(ownerID, sessionID)
	now := time.Now().UTC()

	userData, err := json.Marshal(Entry{Role: "user", Content: userMsg, Timestamp: now})
	if err != nil {
		return fmt.Errorf("marshaling user entry: %w", err)
	}
	aiData, err := json.Marshal(Entry{Role: "assistant", Content: aiMsg, Timestamp: now})
	if err != nil {
		return fmt.Errorf("marshaling assistant entry: %w", err)
	}

	// The window holds messages, so one turn costs two slots.
	maxEntries := int64(s.maxTurns * 2)

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(userData), string(aiData))
	pipe.LTrim(ctx, key, -maxEntries, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Recent returns the last `limit` messages, oldest first. Malformed
// entries are skipped.
func (s *Store) Recent(ctx context.Context, ownerID, sessionID string, limit int) ([]Entry, error) {
	key := sessionKey(ownerID, sessionID)

	vals, err := s.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var entry Entry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear drops the stored window for one conversation.
func (s *Store) Clear(ctx context.Context, ownerID, sessionID string) error {
	return s.client.Del(ctx, sessionKey(ownerID, sessionID)).Err()
}
