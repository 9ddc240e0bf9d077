package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/stats"
)

const (
	// OverridePrefix keys an operator-set rate that replaces the configured one.
	OverridePrefix = "override_rate:"

	errorTolerance    = 0.10
	minWindowSamples  = 6
	lastRequestsLimit = 50
)

// expectedStatuses are outcomes of normal operation that never trip a halt.
var expectedStatuses = map[string]bool{
	"200":                    true,
	"300":                    true,
	"301":                    true,
	"302":                    true,
	"404":                    true,
	"UnidentifiedImageError": true,
	"NoRateToken":            true,
}

// checkThresholds halts source when it reports too many errors. A minute
// window over the tolerance puts it in the temp_halted set until the window
// recovers; fifty failed requests in a row put it in the halted set, which
// only an operator clears.
func (r *Regulator) checkThresholds(ctx context.Context, source string) error {
	windowKey := stats.Status60s + source
	cutoff := float64(r.now().Add(-time.Minute).UnixNano()) / float64(time.Second)

	if err := r.client.ZRemRangeByScore(ctx, windowKey, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64)).Err(); err != nil {
		return fmt.Errorf("trim status window for %s: %w", source, err)
	}
	members, err := r.client.ZRange(ctx, windowKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read status window for %s: %w", source, err)
	}
	last, err := r.client.LRange(ctx, stats.LastRequests+source, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read last statuses for %s: %w", source, err)
	}

	window := make([]string, len(members))
	for i, m := range members {
		window[i] = windowCode(m)
	}

	if withinTolerance(window) {
		if err := r.client.SRem(ctx, TempHalted, source).Err(); err != nil {
			return fmt.Errorf("resume %s: %w", source, err)
		}
	} else {
		added, err := r.client.SAdd(ctx, TempHalted, source).Result()
		if err != nil {
			return fmt.Errorf("halt %s: %w", source, err)
		}
		if added > 0 {
			logHalt(source, "temporary", window)
		}
	}

	if len(last) >= lastRequestsLimit && allFailed(last) {
		added, err := r.client.SAdd(ctx, Halted, source).Result()
		if err != nil {
			return fmt.Errorf("halt %s: %w", source, err)
		}
		if added > 0 {
			logHalt(source, "permanent", last)
		}
	}

	return nil
}

// windowCode strips the timestamp from a "{code}:{unixnano}" member.
func windowCode(member string) string {
	if i := strings.LastIndexByte(member, ':'); i >= 0 {
		return member[:i]
	}
	return member
}

func withinTolerance(codes []string) bool {
	if len(codes) < minWindowSamples {
		return true
	}

	var failed, ok int
	for _, code := range codes {
		if expectedStatuses[code] {
			ok++
		} else {
			failed++
		}
	}

	return ok > 0 && float64(failed)/float64(ok) <= errorTolerance
}

func allFailed(codes []string) bool {
	for _, code := range codes {
		if expectedStatuses[code] {
			return false
		}
	}
	return true
}

func logHalt(source, kind string, codes []string) {
	counts := make(map[string]int)
	for _, c := range codes {
		counts[c]++
	}

	zlog.Logger.Error().
		Str("event", "crawl_halted").
		Str("type", kind).
		Str("source", source).
		Interface("responses", counts).
		Msg("crawl halted after error threshold was exceeded")
}

// effectiveRates returns the configured rates with operator overrides applied.
func (r *Regulator) effectiveRates(ctx context.Context) map[string]float64 {
	rates := make(map[string]float64, len(r.rates))
	sources := make([]string, 0, len(r.rates))
	for source, rate := range r.rates {
		rates[source] = rate
		sources = append(sources, source)
	}
	if len(sources) == 0 {
		return rates
	}

	values, err := r.client.MGet(ctx, overrideKeys(sources)...).Result()
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to read rate overrides")
		return rates
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			zlog.Logger.Warn().Str("source", sources[i]).Str("value", s).Msg("ignoring invalid rate override")
			continue
		}
		rates[sources[i]] = rate
	}

	return rates
}

func overrideKeys(sources []string) []string {
	keys := make([]string, len(sources))
	for i, s := range sources {
		keys[i] = OverridePrefix + s
	}
	return keys
}
