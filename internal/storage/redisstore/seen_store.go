// Package redisstore keeps the seen-mint set in Redis so restarts and
// parallel instances do not surface the same launch twice.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-sniper/internal/storage"
)

// Defaults for SeenStore.
const (
	DefaultPrefix = "sniper:seen:"
	DefaultTTL    = 24 * time.Hour
)

// SeenStoreOptions configures SeenStore.
type SeenStoreOptions struct {
	Prefix string        // key prefix, defaults to DefaultPrefix
	TTL    time.Duration // how long a mint stays seen, defaults to DefaultTTL
}

// SeenStore implements storage.SeenStore with SET NX.
type SeenStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Compile-time interface check.
var _ storage.SeenStore = (*SeenStore)(nil)

// NewSeenStore creates a SeenStore on an existing client.
func NewSeenStore(client redis.UniversalClient, opts SeenStoreOptions) *SeenStore {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &SeenStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// Connect creates a client for addr and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		MinIdleConns: 1,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// MarkSeen records mint and reports whether it was new.
func (s *SeenStore) MarkSeen(ctx context.Context, mint string) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}

	fresh, err := s.client.SetNX(ctx, s.prefix+mint, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", mint, err)
	}
	return fresh, nil
}
