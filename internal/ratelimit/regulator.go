package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/zlog"
)

const defaultInterval = time.Second

// Regulator refills token buckets to their configured per-second rates and
// halts sources whose recent requests fail too often.
type Regulator struct {
	client   redis.Cmdable
	rates    map[string]float64
	interval time.Duration
	ticks    int64
	now      func() time.Time
}

// NewRegulator creates a Regulator for the given source rates, in requests
// per second.
func NewRegulator(client redis.Cmdable, rates map[string]float64, interval time.Duration) *Regulator {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Regulator{client: client, rates: rates, interval: interval, now: time.Now}
}

// Run refills the buckets every interval until ctx is cancelled.
func (r *Regulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Refill(ctx); err != nil {
			zlog.Logger.Warn().Err(err).Msg("failed to refill rate tokens")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refill performs one refill round: error thresholds are checked first so
// that a source halted this round gets no tokens.
func (r *Regulator) Refill(ctx context.Context) error {
	rates := r.effectiveRates(ctx)

	for source := range rates {
		if err := r.checkThresholds(ctx, source); err != nil {
			zlog.Logger.Warn().Err(err).Str("source", source).Msg("failed to check error thresholds")
		}
	}

	halted, err := r.haltedSources(ctx)
	if err != nil {
		return err
	}

	tick := r.ticks
	r.ticks++

	pipe := r.client.Pipeline()
	for source, rate := range rates {
		if halted[source] {
			pipe.Set(ctx, TokensPrefix+source, 0, 0)
			continue
		}

		tokens, ok := tokensFor(rate, tick)
		if !ok {
			continue
		}
		pipe.Set(ctx, TokensPrefix+source, tokens, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set rate tokens: %w", err)
	}
	return nil
}

func (r *Regulator) haltedSources(ctx context.Context) (map[string]bool, error) {
	halted := make(map[string]bool)
	for _, key := range []string{Halted, TempHalted} {
		members, err := r.client.SMembers(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read %s sources: %w", key, err)
		}
		for _, m := range members {
			halted[m] = true
		}
	}
	return halted, nil
}

// tokensFor returns the bucket size for rate on the given tick. Rates below
// one request per second get a single token every 1/rate ticks; ok is false
// on ticks that should leave the bucket untouched.
func tokensFor(rate float64, tick int64) (int64, bool) {
	switch {
	case rate <= 0:
		return 0, true
	case rate >= 1:
		return int64(rate), true
	}

	every := int64(math.Round(1 / rate))
	if tick%every == 0 {
		return 1, true
	}
	return 0, false
}
