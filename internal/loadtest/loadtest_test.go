package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPostsQueries(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen[body.Query]++
		mu.Unlock()
		if body.Query == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"top_files":[]}`))
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Concurrency: 4,
		Duration:    200 * time.Millisecond,
		Queries:     []string{"cat AND dog", "bad"},
	})
	require.NoError(t, err)

	require.Positive(t, res.Total)
	assert.Equal(t, res.Total, res.Success+res.Errors)
	assert.Positive(t, res.StatusCodes[http.StatusOK])
	assert.Positive(t, res.StatusCodes[http.StatusBadRequest])
	assert.Len(t, res.Latencies, int(res.Total))
	assert.True(t, res.Percentile(50) <= res.Percentile(99))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "cat AND dog")
	assert.Contains(t, seen, "bad")
}

func TestRunUnreachableCountsErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res, err := Run(context.Background(), Config{BaseURL: url, Concurrency: 1, Duration: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, res.Total, res.Errors)
	assert.Empty(t, res.Latencies)
}

func TestPercentileAndReport(t *testing.T) {
	res := &Result{
		Elapsed:     time.Second,
		Total:       4,
		Success:     3,
		Errors:      1,
		Latencies:   []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 4 * time.Millisecond},
		StatusCodes: map[int]int64{200: 3, 503: 1},
	}
	assert.Equal(t, 2*time.Millisecond, res.Percentile(50))
	assert.Equal(t, 4*time.Millisecond, res.Percentile(99))
	assert.Equal(t, time.Millisecond, res.Percentile(0))
	assert.Zero(t, (&Result{}).Percentile(50))
	assert.Equal(t, 4.0, res.RequestsPerSecond())

	var buf bytes.Buffer
	res.WriteReport(&buf)
	out := buf.String()
	assert.Contains(t, out, "Error Rate:      25.00%")
	assert.Contains(t, out, "P50:    2ms")
	assert.Contains(t, out, "  503: 1")
}
