// Package ratelimit keeps per-source token buckets in Redis.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TokensPrefix = "currtokens:"
	Halted       = "halted"
	TempHalted   = "temp_halted"
)

// Bucket hands out crawl tokens for a source.
type Bucket struct {
	client redis.Cmdable
}

// NewBucket creates a Bucket backed by client.
func NewBucket(client redis.Cmdable) *Bucket {
	return &Bucket{client: client}
}

// Acquire takes one token for source. It reports false when the bucket is
// empty or missing.
func (b *Bucket) Acquire(ctx context.Context, source string) (bool, error) {
	n, err := b.client.Decr(ctx, TokensPrefix+source).Result()
	if err != nil {
		return false, fmt.Errorf("take token for %s: %w", source, err)
	}
	return n >= 0, nil
}
