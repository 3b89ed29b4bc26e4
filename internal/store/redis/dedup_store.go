package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "godz-eyes:alerted:"

// DedupStore keeps alert keys in Redis so suppression survives restarts
// and is shared between replicas. Expiry is delegated to Redis TTLs.
type DedupStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	chain  string
}

func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewDedupStore(client redis.UniversalClient, chain string, ttl time.Duration) *DedupStore {
	return &DedupStore{client: client, ttl: ttl, chain: chain}
}

func (s *DedupStore) key(k string) string {
	return keyPrefix + s.chain + ":" + k
}

func (s *DedupStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *DedupStore) MarkIfAbsent(ctx context.Context, key string) (bool, error) {
	added, err := s.client.SetNX(ctx, s.key(key), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return added, nil
}
