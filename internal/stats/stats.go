// Package stats records per-source crawl outcomes in Redis.
//
// Counters:
//
//	resize_errors                 errors across all sources
//	resize_errors:{source}        errors for a source
//	resize_errors:{source}:{code} errors for a source by code
//	num_resized                   successful thumbnails
//	num_resized:{source}          successful thumbnails for a source
//
// Windows, used by the rate limit regulator to trip circuit breakers:
//
//	status60s:{source}, status1hr:{source}, status12hr:{source}
//	    sorted sets of "{code}:{unixnano}" scored by unix time
//	statuslast50req:{source}
//	    list of the last 50 codes
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ErrorCount      = "resize_errors"
	SpecificErrors  = "resize_errors:"
	SuccessCount    = "num_resized"
	SpecificSuccess = "num_resized:"

	Status60s     = "status60s:"
	Status1hr     = "status1hr:"
	Status12hr    = "status12hr:"
	LastRequests  = "statuslast50req:"
	lastRequestsN = 50

	successCode = "200"
)

var windows = []struct {
	prefix   string
	interval time.Duration
}{
	{Status60s, time.Minute},
	{Status1hr, time.Hour},
	{Status12hr, 12 * time.Hour},
}

// Manager writes crawl outcomes to Redis.
type Manager struct {
	client redis.Cmdable
	now    func() time.Time
}

// New creates a Manager backed by client.
func New(client redis.Cmdable) *Manager {
	return &Manager{client: client, now: time.Now}
}

// RecordSuccess counts a stored thumbnail for source.
func (m *Manager) RecordSuccess(ctx context.Context, source string) error {
	pipe := m.client.TxPipeline()
	pipe.Incr(ctx, SuccessCount)
	pipe.Incr(ctx, SpecificSuccess+source)
	m.recordWindows(ctx, pipe, source, successCode)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record success for %s: %w", source, err)
	}
	return nil
}

// RecordError counts a failed task for source under code.
func (m *Manager) RecordError(ctx context.Context, source, code string) error {
	pipe := m.client.TxPipeline()
	pipe.Incr(ctx, ErrorCount)
	pipe.Incr(ctx, SpecificErrors+source)
	pipe.Incr(ctx, SpecificErrors+source+":"+code)
	m.recordWindows(ctx, pipe, source, code)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record error %s for %s: %w", code, source, err)
	}
	return nil
}

// recordWindows inserts code into every sliding window and evicts samples
// that fell out of them.
func (m *Manager) recordWindows(ctx context.Context, pipe redis.Pipeliner, source, code string) {
	now := m.now()
	score := float64(now.UnixNano()) / float64(time.Second)
	member := code + ":" + strconv.FormatInt(now.UnixNano(), 10)

	for _, w := range windows {
		key := w.prefix + source
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
		cutoff := float64(now.Add(-w.interval).UnixNano()) / float64(time.Second)
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
	}

	pipe.RPush(ctx, LastRequests+source, code)
	pipe.LTrim(ctx, LastRequests+source, -lastRequestsN, -1)
}

// Snapshot is a read model of the counters kept for one source.
type Snapshot struct {
	Source       string         `json:"source"`
	Successful   int64          `json:"successful"`
	Errors       int64          `json:"errors"`
	LastStatuses map[string]int `json:"last_50_statuses"`
	Window60s    int64          `json:"window_60s"`
}

// Snapshot reads the counters for source.
func (m *Manager) Snapshot(ctx context.Context, source string) (Snapshot, error) {
	pipe := m.client.Pipeline()
	success := pipe.Get(ctx, SpecificSuccess+source)
	errs := pipe.Get(ctx, SpecificErrors+source)
	last := pipe.LRange(ctx, LastRequests+source, 0, -1)
	window := pipe.ZCard(ctx, Status60s+source)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("read stats for %s: %w", source, err)
	}

	snap := Snapshot{
		Source:       source,
		Successful:   intOrZero(success),
		Errors:       intOrZero(errs),
		LastStatuses: make(map[string]int),
		Window60s:    window.Val(),
	}
	for _, code := range last.Val() {
		snap.LastStatuses[code]++
	}

	return snap, nil
}

func intOrZero(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}
