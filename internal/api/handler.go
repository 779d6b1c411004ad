// Package api serves the engine over HTTP: POST /index starts an indexing
// run and POST /search answers a query.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
)

// TimestampLayout formats the search response timestamp.
const TimestampLayout = "2006-01-02T15:04"

const maxBodyBytes = 1 << 20

// Engine is the part of *indexer.Engine the handlers use.
type Engine interface {
	IndexDataset(ctx context.Context, root string) (*indexer.RunReport, error)
	SearchScored(query string) []ranker.ScoredDoc
	Mode() string
	Stats() index.Stats
	Workers() int
}

// SearchTracker receives one event per answered query.
type SearchTracker interface {
	TrackSearch(e analytics.SearchEvent)
}

type IndexRequest struct {
	DatasetPath string `json:"dataset_path"`
}

type IndexResponse struct {
	Status         string  `json:"status"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	FilesIndexed   int64   `json:"files_indexed"`
	FilesFailed    int64   `json:"files_failed"`
	TimedOut       bool    `json:"timed_out"`
	RunID          string  `json:"run_id"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Timestamp string   `json:"timestamp"`
	TopFiles  []string `json:"top_files"`
}

type Handler struct {
	engine  Engine
	cache   *cache.QueryCache
	tracker SearchTracker
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Handler)

// WithCache memoizes search results.
func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithTracker(t SearchTracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(engine Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		logger: slog.Default().With("component", "api"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Index runs a synchronous indexing pass over the requested directory.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req IndexRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logger.FromContext(r.Context())
	log.Info("request received", "request_endpoint", "/index", "dataset_path", req.DatasetPath)
	if req.DatasetPath == "" {
		h.writeError(w, http.StatusBadRequest, "dataset_path parameter is missing")
		return
	}

	report, err := h.engine.IndexDataset(r.Context(), req.DatasetPath)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("indexing failed", "dataset_path", req.DatasetPath, "error", err)
		}
		h.writeError(w, status, apperrors.Message(err, "indexing failed"))
		return
	}

	h.writeJSON(w, http.StatusOK, IndexResponse{
		Status:         "Indexing Completed.",
		ElapsedSeconds: math.Round(report.Elapsed.Seconds()*100) / 100,
		FilesIndexed:   report.FilesIndexed,
		FilesFailed:    report.FilesFailed,
		TimedOut:       report.TimedOut,
		RunID:          report.RunID,
	})
}

// Search answers a query with the names of the best matching files.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	start := time.Now()
	var req SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)
	log.Info("request received", "request_endpoint", "/search", "query", req.Query)
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "Query parameter is missing")
		return
	}

	var (
		docs []ranker.ScoredDoc
		hit  bool
		err  error
	)
	compute := func() ([]ranker.ScoredDoc, error) {
		return h.engine.SearchScored(req.Query), nil
	}
	if h.cache != nil {
		docs, hit, err = h.cache.GetOrCompute(ctx, req.Query, h.engine.Mode(), compute)
	} else {
		docs, err = compute()
	}
	if err != nil {
		log.Error("search failed", "query", req.Query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	elapsed := time.Since(start)
	cacheStatus := "miss"
	if hit {
		cacheStatus = "hit"
	}
	h.metrics.ObserveSearch(cacheStatus, elapsed, len(docs))
	log.Debug("search completed",
		"query", req.Query,
		"returned", len(docs),
		"cache_hit", hit,
		"latency_us", elapsed.Microseconds(),
	)
	if h.tracker != nil {
		h.tracker.TrackSearch(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     req.Query,
			Terms:     parser.Parse(req.Query).Terms,
			Returned:  len(docs),
			LatencyUs: elapsed.Microseconds(),
			CacheHit:  hit,
			Timestamp: h.now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Timestamp: h.now().Format(TimestampLayout),
		TopFiles:  ranker.DisplayNames(docs),
	})
}

// Stats reports the index size and worker count.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Stats()
	resp := map[string]any{
		"terms":    st.Terms,
		"postings": st.Postings,
		"shards":   st.Shards,
		"updates":  st.Updates,
		"workers":  h.engine.Workers(),
		"mode":     h.engine.Mode(),
	}
	if h.cache != nil {
		hits, misses := h.cache.Stats()
		resp["cache_hits"] = hits
		resp["cache_misses"] = misses
		resp["cache_backend"] = "local"
		if h.cache.HasRemote() {
			resp["cache_backend"] = "redis"
			resp["cache_breaker"] = h.cache.RemoteState().String()
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheInvalidate drops all memoized search results.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
