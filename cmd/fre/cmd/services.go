package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/tracing"
)

const (
	analyticsBuffer        = 10000
	analyticsBatchSize     = 100
	analyticsFlushInterval = time.Second
)

var startupRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// services holds the optional backends around the engine. Each is nil when
// disabled in config or unreachable at startup.
type services struct {
	metrics   *metrics.Metrics
	cache     *cache.QueryCache
	redis     *pkgredis.Client
	postgres  *postgres.Client
	runs      *runlog.Store
	collector *analytics.Collector
	closers   []func() error
}

func connect(ctx context.Context, cfg *config.Config) *services {
	s := &services{}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(nil)
	}

	var remote cache.Remote
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis, startupRetry)
		if err != nil {
			slog.Warn("redis unavailable, caching search results in process only", "addr", cfg.Redis.Addr, "error", err)
		} else {
			s.redis = client
			remote = client
			s.closers = append(s.closers, client.Close)
			slog.Info("redis search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	s.cache = cache.New(cache.Options{
		LRUSize: cfg.Redis.LRUSize,
		TTL:     cfg.Redis.CacheTTL,
		Remote:  remote,
		Breaker: resilience.NewCircuitBreaker("redis", resilience.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenProbes:   1,
		}),
		Metrics: s.metrics,
	})

	if cfg.Postgres.Enabled {
		client, err := postgres.New(ctx, cfg.Postgres, startupRetry)
		if err != nil {
			slog.Warn("postgres unavailable, indexing runs will not be recorded", "host", cfg.Postgres.Host, "error", err)
		} else {
			store := runlog.NewStore(client)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("creating run log schema failed", "error", err)
				client.Close()
			} else {
				s.postgres = client
				s.runs = store
				s.closers = append(s.closers, client.Close)
			}
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		s.collector = analytics.NewCollector(producer, analyticsBuffer, analyticsBatchSize, analyticsFlushInterval)
		s.collector.Start()
		// The collector flushes into the producer, so it closes first.
		s.closers = append(s.closers, func() error { s.collector.Close(); return nil }, producer.Close)
		slog.Info("analytics events enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents, "brokers", cfg.Kafka.Brokers)
	}
	return s
}

func (s *services) engineOptions(cfg *config.Config) []indexer.Option {
	opts := []indexer.Option{
		indexer.WithMetrics(s.metrics),
		indexer.WithCacheInvalidator(s.cache),
		indexer.WithTracer(tracing.New(cfg.Tracing.Enabled)),
		indexer.WithRequireAllTerms(cfg.Search.RequireAllTerms),
	}
	if s.runs != nil {
		opts = append(opts, indexer.WithRunRecorder(s.runs))
	}
	if s.collector != nil {
		opts = append(opts, indexer.WithRunTracker(s.collector))
	}
	return opts
}

func (s *services) registerChecks(checker *health.Checker) {
	if s.redis != nil {
		checker.Register("cache", func(ctx context.Context) error {
			if err := s.redis.Ping(ctx); err != nil {
				return fmt.Errorf("%w: redis: %v", health.ErrDegraded, err)
			}
			return nil
		})
	}
	if s.postgres != nil {
		checker.Register("postgres", func(ctx context.Context) error {
			if err := s.postgres.Ping(ctx); err != nil {
				return fmt.Errorf("%w: run log: %v", health.ErrDegraded, err)
			}
			return nil
		})
	}
}

// close releases backends in the order they were opened.
func (s *services) close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
