package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "duochat:presence:"

// RedisPresenceStore keeps the last-seen record of each user in a redis hash.
type RedisPresenceStore struct {
	client *redis.Client
}

func NewRedisPresenceStore(addr string) (*RedisPresenceStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPresenceStore{client: client}, nil
}

func presenceKey(userId string) string {
	return presenceKeyPrefix + userId
}

func (s *RedisPresenceStore) UpdatePresence(ctx context.Context, userId string, online bool, lastSeen time.Time) error {
	err := s.client.HSet(ctx, presenceKey(userId),
		"online", online,
		"last_seen", lastSeen.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("hset presence: %w", err)
	}

	return nil
}

// LastSeen returns the stored last-seen time, or false if none was recorded.
func (s *RedisPresenceStore) LastSeen(ctx context.Context, userId string) (time.Time, bool, error) {
	val, err := s.client.HGet(ctx, presenceKey(userId), "last_seen").Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("hget presence: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last seen: %w", err)
	}

	return ts, true, nil
}

func (s *RedisPresenceStore) Close() error {
	return s.client.Close()
}
