package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"

	statshandler "github.com/aliskhannn/image-crawler/internal/api/handlers/stats"
	taskhandler "github.com/aliskhannn/image-crawler/internal/api/handlers/task"
	"github.com/aliskhannn/image-crawler/internal/api/handlers/thumbnail"
	"github.com/aliskhannn/image-crawler/internal/api/router"
	"github.com/aliskhannn/image-crawler/internal/api/server"
	"github.com/aliskhannn/image-crawler/internal/config"
	"github.com/aliskhannn/image-crawler/internal/fetch"
	"github.com/aliskhannn/image-crawler/internal/infra/kafka/consumer"
	"github.com/aliskhannn/image-crawler/internal/infra/kafka/producer"
	taskmsg "github.com/aliskhannn/image-crawler/internal/kafka/handlers/task"
	"github.com/aliskhannn/image-crawler/internal/pipeline"
	"github.com/aliskhannn/image-crawler/internal/processor"
	"github.com/aliskhannn/image-crawler/internal/publisher"
	"github.com/aliskhannn/image-crawler/internal/ratelimit"
	tasksvc "github.com/aliskhannn/image-crawler/internal/service/task"
	"github.com/aliskhannn/image-crawler/internal/stats"
	"github.com/aliskhannn/image-crawler/internal/storage/file"
	"github.com/aliskhannn/image-crawler/internal/workerpool"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Redis holds rate tokens and crawl statistics.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Retry strategy for Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize thumbnail storage (MinIO).
	storage, err := file.NewStorage(ctx, cfg.Storage)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Kafka client shared by every publisher and the task API.
	p := producer.New(&cfg.Kafka, strategy)

	pubOpts := []publisher.Option{
		publisher.WithInterval(cfg.Publisher.FlushInterval),
		publisher.WithMaxAttempts(cfg.Publisher.MaxAttempts),
		publisher.WithBackoff(cfg.Publisher.Backoff),
	}
	if cfg.Publisher.RequeueExhausted {
		pubOpts = append(pubOpts, publisher.WithRequeueOnExhaustion())
	}
	publishers := []*publisher.Publisher{
		publisher.New(p, cfg.Kafka.MetadataTopic, pubOpts...),
		publisher.New(p, cfg.Kafka.LinkRotTopic, pubOpts...),
		publisher.New(p, cfg.Kafka.RetryTopic, pubOpts...),
	}
	metadataPub, linkRotPub, retryPub := publishers[0], publishers[1], publishers[2]

	// Processing pipeline.
	pool := workerpool.New(cfg.Pipeline.Workers)
	statsManager := stats.New(rdb)
	fetcher := fetch.New(cfg.Fetch, ratelimit.NewBucket(rdb))
	imageProcessor := processor.New(processor.Options{
		MaxWidth:  cfg.Pipeline.ThumbnailWidth,
		MaxHeight: cfg.Pipeline.ThumbnailHeight,
		Quality:   cfg.Pipeline.JPEGQuality,
	})
	orchestrator := pipeline.New(fetcher, storage, statsManager, pool, imageProcessor,
		pipeline.WithMaxTasks(int64(cfg.Pipeline.MaxTasks)),
		pipeline.WithMaxAttempts(cfg.Pipeline.MaxAttempts),
		pipeline.WithMetadataSink(metadataPub),
		pipeline.WithLinkRotSink(linkRotPub),
		pipeline.WithRetrySink(retryPub),
	)

	// Kafka consumer for inbound image tasks.
	sources := make([]string, 0, len(cfg.RateLimit.Rates))
	for source := range cfg.RateLimit.Rates {
		sources = append(sources, source)
	}
	taskHandler := taskmsg.NewHandler(orchestrator, int64(cfg.Pipeline.ScheduleSize), sources...)
	c := consumer.New(&cfg.Kafka, strategy, taskHandler)

	regulator := ratelimit.NewRegulator(rdb, cfg.RateLimit.Rates, cfg.RateLimit.Interval)

	// HTTP API.
	r := router.Setup(
		taskhandler.NewHandler(tasksvc.NewService(p, cfg.Kafka.InboundTopic)),
		statshandler.NewHandler(statsManager),
		thumbnail.NewHandler(storage),
	)
	s := server.New(cfg.Server, r)

	// The delivery loop outlives ctx so that the final flush reaches Kafka.
	deliveryCtx, stopDelivery := context.WithCancel(context.Background())
	deliveryDone := runDelivery(deliveryCtx, p.Run)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.Consume(gctx)
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(regulator.Run(gctx))
	})
	for _, pub := range publishers {
		pub := pub
		g.Go(func() error {
			return ignoreCanceled(pub.Run(gctx))
		})
	}
	g.Go(func() error {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		zlog.Logger.Info().Msg("shutting down server")
		if err := s.Shutdown(shutdownCtx); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zlog.Logger.Error().Err(err).Msg("worker stopped with error")
	}
	zlog.Logger.Info().Msg("context done")

	// Let accepted tasks finish, then publish what they produced.
	taskHandler.Wait()

	// The deadline must outlast a publisher back-off or a full buffer would
	// requeue the whole tail on the first retry.
	flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout(cfg.Publisher))
	defer cancel()
	for _, pub := range publishers {
		if err := pub.Flush(flushCtx); err != nil {
			zlog.Logger.Error().Err(err).Str("topic", pub.Topic()).Msg("failed to flush publisher")
		}
		if n := pub.Len(); n > 0 {
			zlog.Logger.Warn().Str("topic", pub.Topic()).Int("pending", n).Msg("events left unpublished at shutdown")
		}
	}

	stopDelivery()
	<-deliveryDone
	if n := p.Pending(); n > 0 {
		zlog.Logger.Warn().Int("pending", n).Msg("kafka messages left undelivered at shutdown")
	}

	pool.Close()

	// Close Kafka producer and consumer clients.
	if err := p.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err := c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
	if err := rdb.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close redis client")
	}
}

// runDelivery runs the Kafka delivery loop in the background. The returned
// channel is closed once the loop has returned.
func runDelivery(ctx context.Context, run func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := run(ctx); err != nil {
			zlog.Logger.Error().Err(err).Msg("kafka delivery loop stopped with error")
		}
	}()
	return done
}

// finalFlushTimeout leaves room for a few publisher back-offs on shutdown.
func finalFlushTimeout(cfg config.Publisher) time.Duration {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = publisher.DefaultBackoff
	}
	return shutdownTimeout + 3*backoff
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
