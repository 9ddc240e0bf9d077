// Package pipeline turns image tasks into stored thumbnails and metadata
// events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/image-crawler/internal/metadata"
	"github.com/aliskhannn/image-crawler/internal/model"
	"github.com/aliskhannn/image-crawler/internal/processor"
	"github.com/aliskhannn/image-crawler/internal/workerpool"
)

const (
	DefaultMaxTasks    = 1000
	DefaultMaxAttempts = 3
)

// Error codes recorded for tasks that end without a thumbnail. HTTP failures
// are recorded under their numeric status instead.
const (
	CodeServerDisconnected = "ServerDisconnected"
	CodeNoRateToken        = "NoRateToken"
	CodeUnidentifiedImage  = "UnidentifiedImageError"
	CodeTimeout            = "Timeout"
	CodeConnectionError    = "ConnectionError"
)

// fetcher downloads image bytes under a per-source rate limit.
type fetcher interface {
	Get(ctx context.Context, url, source string) model.FetchOutcome
}

// persister stores finished thumbnails.
type persister interface {
	Persist(ctx context.Context, thumbnail []byte, identifier string) error
}

// statsRecorder counts task outcomes per source.
type statsRecorder interface {
	RecordSuccess(ctx context.Context, source string) error
	RecordError(ctx context.Context, source, code string) error
}

// Sink accepts events for asynchronous publishing. It must not block.
type Sink interface {
	Enqueue(event model.Event)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxTasks bounds the number of tasks processed at once.
func WithMaxTasks(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limiter = semaphore.NewWeighted(n)
		}
	}
}

// WithMetadataSink enables quality and EXIF events.
func WithMetadataSink(s Sink) Option {
	return func(o *Orchestrator) { o.metadata = s }
}

// WithLinkRotSink enables not-found notices.
func WithLinkRotSink(s Sink) Option {
	return func(o *Orchestrator) { o.linkRot = s }
}

// WithRetrySink enables retry notices for failed fetches.
func WithRetrySink(s Sink) Option {
	return func(o *Orchestrator) { o.retry = s }
}

// WithMaxAttempts sets how many times a task is crawled before retry
// notices stop.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Orchestrator runs tasks through fetch, decode, metadata, thumbnail,
// persist and stats.
type Orchestrator struct {
	fetcher   fetcher
	persister persister
	stats     statsRecorder
	pool      *workerpool.Pool
	processor *processor.Processor
	limiter   *semaphore.Weighted

	metadata Sink
	linkRot  Sink
	retry    Sink

	maxAttempts int
}

// New creates an Orchestrator. CPU-bound steps and persistence run on pool.
func New(
	f fetcher,
	p persister,
	s statsRecorder,
	pool *workerpool.Pool,
	proc *processor.Processor,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		fetcher:     f,
		persister:   p,
		stats:       s,
		pool:        pool,
		processor:   proc,
		limiter:     semaphore.NewWeighted(DefaultMaxTasks),
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Process runs one task. Fetch and decode failures are recorded in stats and
// end the task with a nil error. Errors are returned only when the task could
// not be run (cancellation, closed pool) or its thumbnail could not be built
// or stored.
func (o *Orchestrator) Process(ctx context.Context, task model.ImageTask) error {
	if err := o.limiter.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for task slot: %w", err)
	}
	defer o.limiter.Release(1)

	body, res := o.fetch(ctx, task)
	if !res.ok() {
		o.fail(ctx, task, res.code)
		return nil
	}

	img, res, err := o.decode(ctx, body)
	if err != nil {
		return err
	}
	if !res.ok() {
		o.fail(ctx, task, res.code)
		return nil
	}

	if o.metadata != nil {
		o.metadata.Enqueue(metadata.Quality(img, body, task.Identifier))
		if update, ok := metadata.Exif(img, task.Identifier); ok {
			o.metadata.Enqueue(update)
		}
	}

	thumb, err := workerpool.Do(ctx, o.pool, func() ([]byte, error) {
		return o.processor.Thumbnail(img.Image)
	})
	if err != nil {
		return fmt.Errorf("thumbnail %s: %w", task.Identifier, err)
	}

	err = o.pool.Submit(ctx, func() error {
		return o.persister.Persist(ctx, thumb, task.Identifier)
	})
	if err != nil {
		return fmt.Errorf("persist %s: %w", task.Identifier, err)
	}

	if err := o.stats.RecordSuccess(ctx, task.Source); err != nil {
		zlog.Logger.Warn().Err(err).Str("source", task.Source).Msg("failed to record success")
	}

	return nil
}

// fetch downloads the task's image and maps a failed outcome to its code.
// A 404 emits a link rot notice; other failures may emit a retry notice.
func (o *Orchestrator) fetch(ctx context.Context, task model.ImageTask) ([]byte, stageResult) {
	out := o.fetcher.Get(ctx, task.URL, task.Source)

	var res stageResult
	switch out.Kind {
	case model.FetchSuccess:
		return out.Body, stageResult{}
	case model.FetchRateLimited:
		res = failed(CodeNoRateToken)
	case model.FetchHTTPError:
		res = failed(strconv.Itoa(out.Status))
	default:
		res = failed(transportCode(out.Transport))
	}

	if out.Kind == model.FetchHTTPError && out.Status == http.StatusNotFound {
		if o.linkRot != nil {
			o.linkRot.Enqueue(metadata.LinkRot(task.Identifier))
		}
		return nil, res
	}

	if o.retry != nil && task.Attempts+1 < o.maxAttempts {
		o.retry.Enqueue(metadata.Retry(task.Identifier, task.Source, task.URL, task.Attempts+1))
	}

	return nil, res
}

// decode parses body on the worker pool. A corrupt payload, including one
// that makes the codec panic, is a failed stage rather than an error.
func (o *Orchestrator) decode(ctx context.Context, body []byte) (*model.DecodedImage, stageResult, error) {
	img, err := workerpool.Do(ctx, o.pool, func() (*model.DecodedImage, error) {
		return o.processor.Decode(body)
	})
	switch {
	case err == nil:
		return img, stageResult{}, nil
	case errors.Is(err, workerpool.ErrPoolClosed), ctx.Err() != nil:
		return nil, stageResult{}, fmt.Errorf("decode: %w", err)
	default:
		zlog.Logger.Debug().Err(err).Msg("failed to decode image")
		return nil, failed(CodeUnidentifiedImage), nil
	}
}

func (o *Orchestrator) fail(ctx context.Context, task model.ImageTask, code string) {
	zlog.Logger.Debug().
		Str("identifier", task.Identifier).
		Str("source", task.Source).
		Str("code", code).
		Msg("task ended without thumbnail")

	if err := o.stats.RecordError(ctx, task.Source, code); err != nil {
		zlog.Logger.Warn().Err(err).Str("source", task.Source).Str("code", code).Msg("failed to record error")
	}
}

func transportCode(kind model.TransportKind) string {
	switch kind {
	case model.TransportDisconnected:
		return CodeServerDisconnected
	case model.TransportTimeout:
		return CodeTimeout
	default:
		return CodeConnectionError
	}
}
