// Package loadtest drives concurrent POST /search traffic at a running
// engine and reports throughput, latency percentiles and status codes.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueries exercise single terms, AND chains and repeated terms.
var DefaultQueries = []string{
	"the",
	"whale",
	"cat AND dog",
	"sea AND ship",
	"love AND war AND peace",
	"time",
	"the AND the",
	"captain AND whale",
	"night AND day",
	"unfindableterm",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
	Timeout     time.Duration
}

// Stats accumulates per-request outcomes from all workers.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 4096),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) record(d time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

// Result is the summary of one load test.
type Result struct {
	Elapsed     time.Duration
	Total       int64
	Success     int64
	Errors      int64
	Latencies   []time.Duration
	StatusCodes map[int]int64
}

func (r *Result) RequestsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Total) / r.Elapsed.Seconds()
}

// Percentile returns the p-th percentile latency, nearest rank.
func (r *Result) Percentile(p float64) time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(r.Latencies)))) - 1
	idx = max(0, min(idx, len(r.Latencies)-1))
	return r.Latencies[idx]
}

// Run sends queries round-robin from cfg.Concurrency workers until
// cfg.Duration elapses or ctx ends.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	bodies := make([][]byte, len(cfg.Queries))
	for i, q := range cfg.Queries {
		b, err := json.Marshal(map[string]string{"query": q})
		if err != nil {
			return nil, fmt.Errorf("encoding query %q: %w", q, err)
		}
		bodies[i] = b
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	stats := newStats()
	searchURL := cfg.BaseURL + "/search"
	start := time.Now()
	var wg sync.WaitGroup
	for w := range cfg.Concurrency {
		wg.Go(func() {
			for i := w; ctx.Err() == nil; i++ {
				body := bodies[i%len(bodies)]
				reqStart := time.Now()
				code, err := post(ctx, client, searchURL, body)
				if ctx.Err() != nil {
					return
				}
				stats.record(time.Since(reqStart), code, err)
			}
		})
	}
	wg.Wait()

	stats.mu.Lock()
	defer stats.mu.Unlock()
	latencies := slices.Clone(stats.latencies)
	slices.Sort(latencies)
	codes := make(map[int]int64, len(stats.statusCodes))
	for k, v := range stats.statusCodes {
		codes[k] = v
	}
	return &Result{
		Elapsed:     time.Since(start),
		Total:       stats.totalRequests.Load(),
		Success:     stats.successCount.Load(),
		Errors:      stats.errorCount.Load(),
		Latencies:   latencies,
		StatusCodes: codes,
	}, nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// WriteReport prints a human-readable summary of r.
func (r *Result) WriteReport(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", r.Total)
	fmt.Fprintf(w, "Successful:      %d\n", r.Success)
	fmt.Fprintf(w, "Errors:          %d\n", r.Errors)
	if r.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(r.Errors)/float64(r.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", r.RequestsPerSecond())
	}

	if n := len(r.Latencies); n > 0 {
		var sum time.Duration
		for _, l := range r.Latencies {
			sum += l
		}
		avg := sum / time.Duration(n)
		var sumSquared float64
		for _, l := range r.Latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", r.Latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", r.Percentile(50))
		fmt.Fprintf(w, "P90:    %s\n", r.Percentile(90))
		fmt.Fprintf(w, "P95:    %s\n", r.Percentile(95))
		fmt.Fprintf(w, "P99:    %s\n", r.Percentile(99))
		fmt.Fprintf(w, "Max:    %s\n", r.Latencies[n-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(n))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, r.StatusCodes[code])
	}
}
