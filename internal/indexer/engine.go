// Package indexer builds the in-memory inverted index from a directory tree
// and answers queries against it.
//
// An Engine owns one index Store and one worker pool for its whole life.
// IndexDataset seeds one task per immediate subdirectory of the dataset root,
// waits for them under a deadline and reports what was indexed. Runs
// accumulate: indexing the same tree twice doubles its counts.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer/pool"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/tracing"
	"github.com/google/uuid"
)

// errRunDeadline is the cancellation cause of a run that hit RunTimeout.
var errRunDeadline = errors.New("indexing run deadline exceeded")

// Search modes, also used as cache key variants.
const (
	ModeSum = "sum"
	ModeAll = "all"
)

// RunReport describes one IndexDataset call. A run that timed out or was
// cancelled still reports what it indexed before stopping.
type RunReport struct {
	RunID        string
	Root         string
	StartedAt    time.Time
	Elapsed      time.Duration
	Subtrees     int
	FilesIndexed int64
	FilesFailed  int64
	TimedOut     bool
	Cancelled    bool
	// FileErrors aggregates per-file and per-directory failures, capped at
	// 100 entries. It is diagnostic and never fails the run.
	FileErrors error
}

// Outcome is "completed", "timed_out" or "cancelled".
func (r *RunReport) Outcome() string {
	switch {
	case r.TimedOut:
		return "timed_out"
	case r.Cancelled:
		return "cancelled"
	default:
		return "completed"
	}
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}

// RunTracker receives an analytics event per finished run.
type RunTracker interface {
	TrackIndexRun(event analytics.IndexRunEvent)
}

// CacheInvalidator drops cached search results once the index changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithRunRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithRunTracker(t RunTracker) Option {
	return func(e *Engine) { e.tracker = t }
}

func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(e *Engine) { e.invalidator = c }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRequireAllTerms makes searches drop documents that lack any distinct
// query term before ranking.
func WithRequireAllTerms(enabled bool) Option {
	return func(e *Engine) { e.requireAll = enabled }
}

// Engine is the indexing and query coordinator.
type Engine struct {
	cfg         config.EngineConfig
	store       *index.Store
	pool        *pool.Pool
	requireAll  bool
	metrics     *metrics.Metrics
	recorder    RunRecorder
	tracker     RunTracker
	invalidator CacheInvalidator
	tracer      *tracing.Tracer
	openFile    fileOpener
	logger      *slog.Logger

	shutdownOnce sync.Once
}

// NewEngine builds an engine with an empty index and a started pool.
// Zero-valued config fields take the defaults of config.DefaultEngineConfig;
// a non-positive worker count runs one worker and MaxResults is capped at
// config.MaxResultsLimit.
func NewEngine(cfg config.EngineConfig, opts ...Option) *Engine {
	defaults := config.DefaultEngineConfig()
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaults.RunTimeout
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaults.Extensions
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaults.MaxResults
	}
	cfg.MaxResults = min(cfg.MaxResults, config.MaxResultsLimit)
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Engine{
		cfg:      cfg,
		store:    index.NewStore(cfg.StoreShards),
		pool:     pool.New(cfg.Workers),
		openFile: openOS,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger.Info("engine started",
		"workers", cfg.Workers,
		"run_timeout", cfg.RunTimeout,
		"extensions", cfg.Extensions,
		"require_all_terms", e.requireAll,
	)
	return e
}

// IndexDataset indexes every matching file below the immediate
// subdirectories of root. Files directly inside root are not indexed.
// Symbolic links are followed; a link back to an enclosing directory is
// skipped.
//
// A root that is missing or not a directory yields an *errors.AppError
// wrapping ErrInvalidInput and nothing is indexed. After Shutdown it fails
// with ErrUnavailable. Hitting the run deadline or ctx ending is not an
// error: the report says so and whatever was applied stays in the index.
func (e *Engine) IndexDataset(ctx context.Context, root string) (*RunReport, error) {
	if root == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "dataset path is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "cannot resolve dataset path %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s is not a directory", root)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "cannot list %s", root)
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Root:      abs,
		StartedAt: time.Now(),
	}
	ctx = logger.WithRunID(ctx, report.RunID)
	log := logger.FromContext(ctx).With("component", "indexer")

	ctx, span := e.tracer.Start(ctx, "index_run", report.RunID)
	span.SetAttr("dataset_path", abs)

	runCtx, cancel := context.WithTimeoutCause(ctx, e.cfg.RunTimeout, errRunDeadline)
	defer cancel()
	run, err := e.pool.NewRun(runCtx)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "engine is shut down")
	}

	log.Info("Indexing started...", "dataset_path", abs, "workers", e.pool.Size())

	stats := &runStats{}
	ancestors := []os.FileInfo{info}
	for _, entry := range entries {
		subtree := filepath.Join(abs, entry.Name())
		if isDir, _, ok := resolveEntry(subtree, entry, log); !ok || !isDir {
			continue
		}
		report.Subtrees++
		w := &walker{
			store:      e.store,
			run:        run,
			extensions: e.cfg.Extensions,
			open:       e.openFile,
			stats:      stats,
			metrics:    e.metrics,
			logger:     log,
		}
		run.Go(func(ctx context.Context) {
			ctx, child := tracing.StartChild(ctx, "subtree")
			child.SetAttr("path", subtree)
			defer child.End()
			w.walk(ctx, subtree, ancestors)
		})
	}

	// Tasks return early once the context ends, so a run whose context
	// ended is incomplete even if every task has returned.
	waitErr := run.Wait()
	report.Elapsed = time.Since(report.StartedAt)
	// Close waits for tasks still unwinding, so the store does not change
	// after the run is reported and the cache invalidated.
	run.Close()
	if waitErr != nil || runCtx.Err() != nil {
		if errors.Is(context.Cause(runCtx), errRunDeadline) {
			report.TimedOut = true
		} else {
			report.Cancelled = true
		}
	}
	report.FilesIndexed = stats.filesIndexed.Load()
	report.FilesFailed = stats.filesFailed.Load()
	report.FileErrors = stats.errors()

	e.finishRun(ctx, log, report)
	span.SetAttr("files_indexed", report.FilesIndexed)
	span.SetAttr("outcome", report.Outcome())
	e.tracer.Finish(span)
	return report, nil
}

// finishRun publishes a finished run to the metrics, cache, run log and
// analytics sinks. Sink failures are logged and never fail the run.
func (e *Engine) finishRun(ctx context.Context, log *slog.Logger, report *RunReport) {
	st := e.store.Stats()
	e.metrics.ObserveRun(report.Outcome(), report.Elapsed, st.Terms, st.Postings)

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if e.invalidator != nil {
		if err := e.invalidator.Invalidate(sinkCtx); err != nil {
			log.Warn("search cache invalidation failed", "error", err)
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordRun(sinkCtx, report); err != nil {
			log.Warn("recording indexing run failed", "error", err)
		}
	}
	if e.tracker != nil {
		e.tracker.TrackIndexRun(analytics.IndexRunEvent{
			RunID:          report.RunID,
			Root:           report.Root,
			ElapsedSeconds: report.Elapsed.Seconds(),
			Subtrees:       report.Subtrees,
			FilesIndexed:   report.FilesIndexed,
			FilesFailed:    report.FilesFailed,
			TimedOut:       report.TimedOut,
			Cancelled:      report.Cancelled,
			Timestamp:      time.Now().UTC(),
		})
	}

	attrs := []any{
		"dataset_path", report.Root,
		"elapsed_seconds", fmt.Sprintf("%.2f", report.Elapsed.Seconds()),
		"subtrees", report.Subtrees,
		"files_indexed", report.FilesIndexed,
		"files_failed", report.FilesFailed,
		"terms", st.Terms,
	}
	switch {
	case report.TimedOut:
		log.Warn("indexing run timed out, keeping partial index", append(attrs, "run_timeout", e.cfg.RunTimeout)...)
	case report.Cancelled:
		log.Warn("indexing run cancelled, keeping partial index", attrs...)
	default:
		log.Info("Indexing completed", attrs...)
	}
}

// Search returns the file names of the best matches for query, at most
// MaxResults of them, best first.
func (e *Engine) Search(query string) []string {
	return ranker.DisplayNames(e.SearchScored(query))
}

// SearchScored is Search with full document paths and scores.
//
// The query is split on the literal " AND " with no trimming or case
// folding. Each document's score is the sum of its counts over the terms,
// duplicates included. Unless WithRequireAllTerms is set, a document
// matching any term is a result.
func (e *Engine) SearchScored(query string) []ranker.ScoredDoc {
	plan := parser.Parse(query)
	if plan.Empty() {
		return []ranker.ScoredDoc{}
	}
	scores := e.store.Query(plan.Terms)
	if e.requireAll {
		scores = ranker.FilterAll(scores, plan.DistinctTerms, e.store.Contains)
	}
	return ranker.Rank(scores, e.cfg.MaxResults)
}

// Mode returns ModeAll when searches require every term, else ModeSum.
func (e *Engine) Mode() string {
	if e.requireAll {
		return ModeAll
	}
	return ModeSum
}

// Postings returns a copy of term's postings.
func (e *Engine) Postings(term string) map[string]int {
	return e.store.Postings(term)
}

func (e *Engine) Stats() index.Stats {
	return e.store.Stats()
}

// Workers returns the pool size.
func (e *Engine) Workers() int {
	return e.pool.Size()
}

// Check is a health probe: it fails once the engine is shut down.
func (e *Engine) Check(ctx context.Context) error {
	if e.pool.Closed() {
		return errors.New("engine is shut down")
	}
	return nil
}

// Shutdown stops the pool and cancels any run in progress. Searches keep
// working on the index built so far. It is safe to call more than once.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.pool.Shutdown()
		e.logger.Info("engine shut down")
	})
}
