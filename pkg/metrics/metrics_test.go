package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FileIndexed()
		m.FileFailed()
		m.ObserveRun("completed", time.Second, 1, 1)
		m.ObserveSearch("miss", time.Millisecond, 0)
		m.CacheHit("lru")
		m.CacheMiss()
		m.SetBreakerState("redis", 1)
		m.RateLimited()
	})
}

func TestNewTwiceDoesNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}

func TestRecorders(t *testing.T) {
	m := New(nil)
	m.FileIndexed()
	m.FileIndexed()
	m.FileFailed()
	m.ObserveRun("timed_out", 2*time.Second, 40, 90)
	m.ObserveSearch("hit", time.Millisecond, 0)
	m.CacheHit("redis")

	assert.Equal(t, 2.0, value(t, m.FilesIndexedTotal))
	assert.Equal(t, 1.0, value(t, m.IndexFileErrorsTotal))
	assert.Equal(t, 1.0, value(t, m.IndexRunsTotal.WithLabelValues("timed_out")))
	assert.Equal(t, 40.0, value(t, m.IndexTerms))
	assert.Equal(t, 90.0, value(t, m.IndexPostings))
	assert.Equal(t, 1.0, value(t, m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 1.0, value(t, m.CacheHitsTotal.WithLabelValues("redis")))
}

func TestMuxServesMetricsAndExtraRoutes(t *testing.T) {
	m := New(nil)
	m.FileIndexed()
	mux := NewMux(m, map[string]http.Handler{
		"/health/live": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "index_files_total 1")

	resp, err = http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
