// Package workerpool runs CPU-bound work on a fixed set of goroutines so
// that image decoding and resizing cannot monopolise the process while
// thousands of fetches are in flight.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

type job struct {
	fn   func() error
	done chan error
}

// Pool is a fixed-size pool of worker goroutines.
type Pool struct {
	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// New starts a pool with size workers. A non-positive size uses
// runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	p := &Pool{jobs: make(chan job)}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for j := range p.jobs {
		var pc panics.Catcher
		var err error
		pc.Try(func() { err = j.fn() })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		j.done <- err
	}
}

// Submit runs fn on a worker and waits for its result. A panic inside fn is
// returned as an error. If ctx ends first, Submit returns ctx.Err() and fn,
// if already started, runs to completion in the background.
func (p *Pool) Submit(ctx context.Context, fn func() error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}

	j := job{fn: fn, done: make(chan error, 1)}

	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for running jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

// Do runs fn on the pool and returns its value.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Submit(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return out, nil
}
