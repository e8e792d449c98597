package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/seenotify/agent/internal/storage"
)

var _ storage.Blob = (*RedisBlob)(nil)

// RedisBlob persists whole-collection blobs under namespaced Redis keys.
// It is the default durable backend for the notification store.
type RedisBlob struct {
	client    *goredis.Client
	keyPrefix string
}

func NewRedisBlob(client *goredis.Client, keyPrefix string) (*RedisBlob, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = "seenotify"
	}

	return &RedisBlob{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

func (b *RedisBlob) Get(ctx context.Context, key string) (string, bool, error) {
	if b == nil || b.client == nil {
		return "", false, fmt.Errorf("blob storage is not initialized")
	}

	value, err := b.client.Get(ctx, b.namespaced(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read blob %q: %w", key, err)
	}

	return value, true, nil
}

func (b *RedisBlob) Set(ctx context.Context, key, value string) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("blob storage is not initialized")
	}

	if err := b.client.Set(ctx, b.namespaced(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}

func (b *RedisBlob) namespaced(key string) string {
	return b.keyPrefix + ":" + key
}
