package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/image-crawler/internal/model"
)

// DefaultScheduleSize is the number of accepted tasks allowed to be pending.
const DefaultScheduleSize = 3000

// ErrInvalidTask is returned for messages that lack a URL or identifier.
var ErrInvalidTask = errors.New("invalid image task")

// processor defines the interface for running a single image task.
type processor interface {
	Process(ctx context.Context, task model.ImageTask) error
}

// Handler handles Kafka messages carrying image tasks.
// Each task runs in its own goroutine. Handle blocks, and so pauses
// consumption, while scheduleSize tasks are pending or while the task's
// source already holds its share of the schedule: the schedule split evenly
// between known sources, never more than a quarter of it.
type Handler struct {
	processor processor
	schedule  *semaphore.Weighted
	shares    *fairShare
	wg        sync.WaitGroup
}

// NewHandler creates a new handler with the given processor. sources seeds
// the set the schedule is shared between; sources first seen in messages
// join it.
func NewHandler(p processor, scheduleSize int64, sources ...string) *Handler {
	if scheduleSize <= 0 {
		scheduleSize = DefaultScheduleSize
	}
	return &Handler{
		processor: p,
		schedule:  semaphore.NewWeighted(scheduleSize),
		shares:    newFairShare(int(scheduleSize), sources),
	}
}

// Handle parses a task from msg and schedules it for processing.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var task model.ImageTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}
	if task.URL == "" || task.Identifier == "" {
		return fmt.Errorf("%w: url=%q identifier=%q", ErrInvalidTask, task.URL, task.Identifier)
	}

	if err := h.shares.acquire(ctx, task.Source); err != nil {
		return fmt.Errorf("schedule task for %s: %w", task.Source, err)
	}
	if err := h.schedule.Acquire(ctx, 1); err != nil {
		h.shares.release(task.Source)
		return fmt.Errorf("schedule task: %w", err)
	}

	// Accepted tasks run to completion even after consumption stops.
	taskCtx := context.WithoutCancel(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.shares.release(task.Source)
		defer h.schedule.Release(1)

		if err := h.processor.Process(taskCtx, task); err != nil {
			zlog.Logger.Error().
				Err(err).
				Str("identifier", task.Identifier).
				Str("source", task.Source).
				Msg("failed to process task")
		}
	}()

	return nil
}

// Wait blocks until every scheduled task has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}
