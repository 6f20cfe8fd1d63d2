// Package redisstore persists the per-user notification blobs in Redis.
// Each user has three independent keys: the ordered list, the deleted-key
// tombstone set, and the last-digest-date marker. Blobs are written
// whole; the notification service owns all merging logic.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/store"
)

// NotificationStore implements store.NotificationStore on Redis.
type NotificationStore struct {
	client *redis.Client
}

var _ store.NotificationStore = (*NotificationStore)(nil)

// New creates a Redis-backed notification store.
func New(client *redis.Client) *NotificationStore {
	return &NotificationStore{client: client}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func listKey(userID string) string       { return "notifications:" + userID }
func tombstonesKey(userID string) string { return "notification_tombstones:" + userID }
func digestKey(userID string) string     { return "last_digest_date:" + userID }

func (s *NotificationStore) GetList(ctx context.Context, userID string) ([]domain.Notification, error) {
	var list []domain.Notification
	if err := s.getJSON(ctx, listKey(userID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *NotificationStore) SaveList(ctx context.Context, userID string, list []domain.Notification) error {
	return s.setJSON(ctx, listKey(userID), list)
}

func (s *NotificationStore) GetTombstones(ctx context.Context, userID string) (map[string]time.Time, error) {
	tombstones := make(map[string]time.Time)
	if err := s.getJSON(ctx, tombstonesKey(userID), &tombstones); err != nil {
		return nil, err
	}
	return tombstones, nil
}

func (s *NotificationStore) SaveTombstones(ctx context.Context, userID string, tombstones map[string]time.Time) error {
	return s.setJSON(ctx, tombstonesKey(userID), tombstones)
}

func (s *NotificationStore) GetLastDigestDate(ctx context.Context, userID string) (string, error) {
	date, err := s.client.Get(ctx, digestKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read digest date: %w", err)
	}
	return date, nil
}

func (s *NotificationStore) SetLastDigestDate(ctx context.Context, userID string, date string) error {
	if err := s.client.Set(ctx, digestKey(userID), date, 0).Err(); err != nil {
		return fmt.Errorf("failed to write digest date: %w", err)
	}
	return nil
}

func (s *NotificationStore) getJSON(ctx context.Context, key string, out any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *NotificationStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
