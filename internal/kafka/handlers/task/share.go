package task

import (
	"context"
	"sync"
)

// maxShareDivisor caps any one source at a quarter of the schedule.
const maxShareDivisor = 4

// fairShare divides the schedule evenly between known sources so that a
// burst from one source cannot take every slot.
type fairShare struct {
	size int

	mu      sync.Mutex
	sources map[string]struct{}
	pending map[string]int
	changed chan struct{}
}

func newFairShare(size int, sources []string) *fairShare {
	f := &fairShare{
		size:    size,
		sources: make(map[string]struct{}, len(sources)),
		pending: make(map[string]int),
		changed: make(chan struct{}),
	}
	for _, s := range sources {
		f.sources[s] = struct{}{}
	}
	return f
}

// share is the number of pending tasks each source may hold. Callers hold mu.
func (f *fairShare) share() int {
	n := max(len(f.sources), 1)
	s := min(f.size/n, f.size/maxShareDivisor)
	return max(s, 1)
}

// acquire blocks until source is below its share or ctx ends.
func (f *fairShare) acquire(ctx context.Context, source string) error {
	for {
		f.mu.Lock()
		f.sources[source] = struct{}{}
		if f.pending[source] < f.share() {
			f.pending[source]++
			f.mu.Unlock()
			return nil
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

func (f *fairShare) release(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending[source]--
	if f.pending[source] <= 0 {
		delete(f.pending, source)
	}

	close(f.changed)
	f.changed = make(chan struct{})
}

// inFlight returns the number of unfinished tasks for source.
func (f *fairShare) inFlight(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[source]
}
