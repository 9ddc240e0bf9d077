package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-crawler/internal/stats"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestBucketAcquire(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()
	b := NewBucket(client)

	require.NoError(t, mr.Set(TokensPrefix+"flickr", "2"))

	for i := 0; i < 2; i++ {
		ok, err := b.Acquire(ctx, "flickr")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := b.Acquire(ctx, "flickr")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBucketAcquireMissingSource(t *testing.T) {
	client, _ := newTestRedis(t)

	ok, err := NewBucket(client).Acquire(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func tokens(t *testing.T, mr *miniredis.Miniredis, source string) string {
	t.Helper()

	v, err := mr.Get(TokensPrefix + source)
	require.NoError(t, err, source)
	return v
}

func TestRegulatorRefill(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()

	r := NewRegulator(client, map[string]float64{
		"flickr": 20,
		"museum": 0.5,
		"banned": 10,
	}, 0)
	_, err := mr.SAdd(Halted, "banned")
	require.NoError(t, err)

	require.NoError(t, r.Refill(ctx))

	assert.Equal(t, "20", tokens(t, mr, "flickr"))
	assert.Equal(t, "1", tokens(t, mr, "museum"))
	assert.Equal(t, "0", tokens(t, mr, "banned"))

	// Drain museum, then check the next tick leaves it alone.
	require.NoError(t, mr.Set(TokensPrefix+"museum", "0"))
	require.NoError(t, r.Refill(ctx))
	assert.Equal(t, "0", tokens(t, mr, "museum"))

	require.NoError(t, r.Refill(ctx))
	assert.Equal(t, "1", tokens(t, mr, "museum"))
}

func TestRefillAppliesOverrides(t *testing.T) {
	client, mr := newTestRedis(t)

	r := NewRegulator(client, map[string]float64{"flickr": 20, "museum": 5}, 0)
	require.NoError(t, mr.Set(OverridePrefix+"flickr", "3"))
	require.NoError(t, mr.Set(OverridePrefix+"museum", "fast"))

	require.NoError(t, r.Refill(context.Background()))

	assert.Equal(t, "3", tokens(t, mr, "flickr"))
	assert.Equal(t, "5", tokens(t, mr, "museum"))
}

func TestRefillHaltsFailingSource(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()
	m := stats.New(client)

	for i := 0; i < 60; i++ {
		require.NoError(t, m.RecordError(ctx, "flaky", "503"))
	}

	r := NewRegulator(client, map[string]float64{"flaky": 10}, 0)
	require.NoError(t, r.Refill(ctx))

	assert.True(t, mr.Exists(TempHalted))
	tempHalted, err := mr.IsMember(TempHalted, "flaky")
	require.NoError(t, err)
	assert.True(t, tempHalted)

	halted, err := mr.IsMember(Halted, "flaky")
	require.NoError(t, err)
	assert.True(t, halted)

	assert.Equal(t, "0", tokens(t, mr, "flaky"))
}

func TestRefillTemporaryHaltOnly(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()
	m := stats.New(client)

	// 4 errors against 6 successes is well over the tolerance, but the last
	// statuses still contain successes.
	for i := 0; i < 6; i++ {
		require.NoError(t, m.RecordSuccess(ctx, "shaky"))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, m.RecordError(ctx, "shaky", "Timeout"))
	}

	r := NewRegulator(client, map[string]float64{"shaky": 10}, 0)
	require.NoError(t, r.Refill(ctx))

	tempHalted, err := mr.IsMember(TempHalted, "shaky")
	require.NoError(t, err)
	assert.True(t, tempHalted)
	assert.False(t, mr.Exists(Halted))
	assert.Equal(t, "0", tokens(t, mr, "shaky"))
}

func TestRefillToleratesExpectedStatuses(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()
	m := stats.New(client)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.RecordSuccess(ctx, "steady"))
	}
	for _, code := range []string{"404", "NoRateToken", "UnidentifiedImageError", "503"} {
		require.NoError(t, m.RecordError(ctx, "steady", code))
	}

	r := NewRegulator(client, map[string]float64{"steady": 10}, 0)
	require.NoError(t, r.Refill(ctx))

	assert.False(t, mr.Exists(TempHalted))
	assert.Equal(t, "10", tokens(t, mr, "steady"))
}

func TestRefillNeedsEnoughSamples(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()
	m := stats.New(client)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.RecordError(ctx, "new", "500"))
	}

	r := NewRegulator(client, map[string]float64{"new": 10}, 0)
	require.NoError(t, r.Refill(ctx))

	assert.False(t, mr.Exists(TempHalted))
	assert.Equal(t, "10", tokens(t, mr, "new"))
}

func TestRefillResumesRecoveredSource(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()
	m := stats.New(client)

	r := NewRegulator(client, map[string]float64{"paused": 10}, 0)
	start := time.Now()
	r.now = func() time.Time { return start }

	for i := 0; i < 10; i++ {
		require.NoError(t, m.RecordError(ctx, "paused", "500"))
	}
	require.NoError(t, r.Refill(ctx))
	assert.Equal(t, "0", tokens(t, mr, "paused"))

	// A minute later the failures have left the window.
	r.now = func() time.Time { return start.Add(2 * time.Minute) }
	require.NoError(t, r.Refill(ctx))

	tempHalted, err := mr.IsMember(TempHalted, "paused")
	require.NoError(t, err)
	assert.False(t, tempHalted)
	assert.Equal(t, "10", tokens(t, mr, "paused"))
}

func TestWithinTolerance(t *testing.T) {
	ok := func(n int) []string { return repeat("200", n) }

	assert.True(t, withinTolerance(nil))
	assert.True(t, withinTolerance(repeat("500", 5)))
	assert.False(t, withinTolerance(repeat("500", 6)))
	assert.True(t, withinTolerance(append(ok(10), "500")))
	assert.False(t, withinTolerance(append(ok(10), "500", "500")))
}

func repeat(code string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = code
	}
	return out
}

func TestTokensFor(t *testing.T) {
	tests := []struct {
		name   string
		rate   float64
		tick   int64
		tokens int64
		ok     bool
	}{
		{"whole rate", 5, 3, 5, true},
		{"fractional above one", 2.7, 0, 2, true},
		{"zero", 0, 1, 0, true},
		{"quarter on boundary", 0.25, 8, 1, true},
		{"quarter between", 0.25, 9, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, ok := tokensFor(tt.rate, tt.tick)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.tokens, tokens)
			}
		})
	}
}
