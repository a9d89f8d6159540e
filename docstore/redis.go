package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists documents in Redis, one value per document key.
type RedisStore struct {
	// client is the Redis client, owned by the caller.
	client *redis.Client

	// prefix namespaces the document keys.
	prefix string
}

// NewRedisStore creates a RedisStore on the given client. The
// connection is verified with a ping.
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "mdcrdt:doc:"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// SaveDocument stores the encoded document.
func (s *RedisStore) SaveDocument(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the encoded document.
func (s *RedisStore) LoadDocument(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrDocumentNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}

// ListDocuments returns every stored document key.
func (s *RedisStore) ListDocuments(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return keys, nil
}

// DeleteDocument removes the document stored under the key.
func (s *RedisStore) DeleteDocument(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
