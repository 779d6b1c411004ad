package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (r *recordingTracker) TrackSearch(e analytics.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	engine  *indexer.Engine
	cache   *cache.QueryCache
	tracker *recordingTracker
	server  http.Handler
	root    string
}

func newFixture(t *testing.T, opts RouterOptions) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{
		"a/doc1.txt": "Cat dog.",
		"b/doc2.txt": "dog dog dog",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	qc := cache.New(cache.Options{LRUSize: 16, TTL: time.Minute})
	engine := indexer.NewEngine(config.DefaultEngineConfig(), indexer.WithCacheInvalidator(qc))
	t.Cleanup(engine.Shutdown)

	tracker := &recordingTracker{}
	h := New(engine, WithCache(qc), WithTracker(tracker), WithMetrics(opts.Metrics))
	h.now = func() time.Time { return time.Date(2024, 3, 5, 9, 7, 31, 0, time.UTC) }

	return &fixture{engine: engine, cache: qc, tracker: tracker, server: NewRouter(h, opts), root: root}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestIndexThenSearch(t *testing.T) {
	f := newFixture(t, RouterOptions{})

	rec := f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"status":"Indexing Completed."`)
	assert.Contains(t, rec.Body.String(), `"files_indexed":2`)
	assert.Contains(t, rec.Body.String(), `"timed_out":false`)

	rec = f.do(t, http.MethodPost, "/search", `{"query":"cat AND dog"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"timestamp":"2024-03-05T09:07","top_files":["doc2.txt","doc1.txt"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/search", `{"query":"elephant"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"timestamp":"2024-03-05T09:07","top_files":[]}`, rec.Body.String())
}

func TestSearchUsesCacheUntilNextRun(t *testing.T) {
	f := newFixture(t, RouterOptions{})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`).Code)

	f.do(t, http.MethodPost, "/search", `{"query":"dog"}`)
	f.do(t, http.MethodPost, "/search", `{"query":"dog"}`)
	hits, misses := f.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	require.Len(t, f.tracker.events, 2)
	assert.False(t, f.tracker.events[0].CacheHit)
	assert.True(t, f.tracker.events[1].CacheHit)
	assert.Equal(t, []string{"dog"}, f.tracker.events[1].Terms)
	assert.Equal(t, 2, f.tracker.events[1].Returned)
	assert.NotEmpty(t, f.tracker.events[1].RequestID)

	path := filepath.Join(f.root, "c", "doc3.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("dog ", 10)), 0o644))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`).Code)

	rec := f.do(t, http.MethodPost, "/search", `{"query":"dog"}`)
	assert.Contains(t, rec.Body.String(), `"top_files":["doc3.txt"`)
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t, RouterOptions{})
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"index missing path", http.MethodPost, "/index", `{}`, http.StatusBadRequest, `{"error":"dataset_path parameter is missing"}`},
		{"index bad json", http.MethodPost, "/index", `{"dataset_path":`, http.StatusBadRequest, `{"error":"invalid JSON body"}`},
		{"index wrong method", http.MethodGet, "/index", ``, http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`},
		{"index not a directory", http.MethodPost, "/index", `{"dataset_path":"/definitely/not/here"}`, http.StatusBadRequest, ``},
		{"search missing query", http.MethodPost, "/search", `{}`, http.StatusBadRequest, `{"error":"Query parameter is missing"}`},
		{"search empty query", http.MethodPost, "/search", `{"query":""}`, http.StatusBadRequest, `{"error":"Query parameter is missing"}`},
		{"search wrong method", http.MethodPut, "/search", `{"query":"x"}`, http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`},
		{"search bad json", http.MethodPost, "/search", `nope`, http.StatusBadRequest, `{"error":"invalid JSON body"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestIndexAfterShutdownIsUnavailable(t *testing.T) {
	f := newFixture(t, RouterOptions{})
	f.engine.Shutdown()
	rec := f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIndexIsRateLimited(t *testing.T) {
	m := metrics.New(nil)
	f := newFixture(t, RouterOptions{Limiter: middleware.NewLimiter(1, time.Hour), Metrics: m})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/search", `{"query":"dog"}`).Code, "search is not limited")
}

func TestStatsAndInvalidate(t *testing.T) {
	f := newFixture(t, RouterOptions{})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/index", `{"dataset_path":"`+f.root+`"}`).Code)

	rec := f.do(t, http.MethodGet, "/stats", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"terms":2`)
	assert.Contains(t, rec.Body.String(), `"mode":"sum"`)
	assert.Contains(t, rec.Body.String(), `"cache_backend":"local"`)
	assert.NotContains(t, rec.Body.String(), `cache_breaker`)

	f.do(t, http.MethodPost, "/search", `{"query":"dog"}`)
	rec = f.do(t, http.MethodPost, "/cache/invalidate", ``)
	assert.JSONEq(t, `{"status":"invalidated"}`, rec.Body.String())
	f.do(t, http.MethodPost, "/search", `{"query":"dog"}`)
	hits, _ := f.cache.Stats()
	assert.Zero(t, hits)
}

func TestIndexCancelledWithRequest(t *testing.T) {
	f := newFixture(t, RouterOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/index", strings.NewReader(`{"dataset_path":"`+f.root+`"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timed_out":false`)
}
