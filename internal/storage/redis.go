package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// RedisBackend stores the collection as one JSON value under a single key, so
// a SET is the atomic replace.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(ctx context.Context, cfg config.RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	appLog.Info("redis storage connected", "addr", cfg.Addr, "db", cfg.DB, "key", cfg.Key)
	return newRedisBackend(client, cfg.Key), nil
}

func newRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = config.DefaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

func (b *RedisBackend) Load(ctx context.Context) ([]model.Event, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.Event{}, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", b.key, err)
	}

	events := make([]model.Event, 0)
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.key, err)
	}
	return events, nil
}

func (b *RedisBackend) Replace(ctx context.Context, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", b.key, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
