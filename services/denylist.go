package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist remembers access token ids revoked before their expiry
type TokenDenylist interface {
	Deny(ctx context.Context, jti string, ttl time.Duration) error
	IsDenied(ctx context.Context, jti string) (bool, error)
}

const deniedTokenKeyPrefix = "denylist:jti:"

// RedisDenylist shares revocations between instances
type RedisDenylist struct {
	client *redis.Client
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

func (d *RedisDenylist) Deny(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, deniedTokenKeyPrefix+jti, "1", ttl).Err()
}

func (d *RedisDenylist) IsDenied(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	_, err := d.client.Get(ctx, deniedTokenKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryDenylist is the single instance fallback
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDenylist) Deny(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[jti] = d.now().Add(ttl)
	return nil
}

func (d *MemoryDenylist) IsDenied(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if !d.now().Before(until) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}

// Purge drops expired entries and returns how many were removed
func (d *MemoryDenylist) Purge() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	removed := 0
	for jti, until := range d.entries {
		if !now.Before(until) {
			delete(d.entries, jti)
			removed++
		}
	}
	return removed
}

// NewDenylist connects to Redis when redisURL is set, otherwise it falls back to memory
func NewDenylist(ctx context.Context, redisURL string) (TokenDenylist, error) {
	if redisURL == "" {
		return NewMemoryDenylist(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisDenylist(client), nil
}
