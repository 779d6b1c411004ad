package analytics

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/kafka"
)

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Summary is the aggregate of every event applied so far.
type Summary struct {
	Searches          int64        `json:"searches"`
	CacheHits         int64        `json:"cache_hits"`
	ZeroResults       int64        `json:"zero_results"`
	AvgLatencyUs      float64      `json:"avg_latency_us"`
	P95LatencyUs      int64        `json:"p95_latency_us"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`

	IndexRuns         int64   `json:"index_runs"`
	TimedOutRuns      int64   `json:"timed_out_runs"`
	FilesIndexed      int64   `json:"files_indexed"`
	FilesFailed       int64   `json:"files_failed"`
	AvgRunSeconds     float64 `json:"avg_run_seconds"`
	UnknownEventTypes int64   `json:"unknown_event_types"`
}

// Aggregator folds decoded events into a Summary.
type Aggregator struct {
	mu          sync.Mutex
	summary     Summary
	latencies   []int64
	runSeconds  float64
	queries     map[string]int64
	zeroQueries map[string]int64
	logger      *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// Apply decodes one encoded event and folds it in. Undecodable payloads are
// returned as errors; unknown event types are counted and ignored.
func (a *Aggregator) Apply(value []byte) (EventType, error) {
	env, err := kafka.DecodeJSON[envelope](value)
	if err != nil {
		return "", err
	}
	switch env.Type {
	case EventSearch:
		e, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return env.Type, err
		}
		a.recordSearch(e)
	case EventIndexRun:
		e, err := kafka.DecodeJSON[IndexRunEvent](value)
		if err != nil {
			return env.Type, err
		}
		a.recordRun(e)
	default:
		a.mu.Lock()
		a.summary.UnknownEventTypes++
		a.mu.Unlock()
	}
	return env.Type, nil
}

// Handler adapts Apply to a Kafka consumer, calling onEvent after each
// successfully applied message when it is non-nil.
func (a *Aggregator) Handler(onEvent func(EventType, []byte)) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		typ, err := a.Apply(value)
		if err != nil {
			return fmt.Errorf("applying event %q: %w", key, err)
		}
		if onEvent != nil {
			onEvent(typ, value)
		}
		return nil
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Searches++
	if e.CacheHit {
		a.summary.CacheHits++
	}
	a.queries[e.Query]++
	if e.Returned == 0 {
		a.summary.ZeroResults++
		a.zeroQueries[e.Query]++
	}
	a.latencies = append(a.latencies, e.LatencyUs)
}

func (a *Aggregator) recordRun(e IndexRunEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.IndexRuns++
	if e.TimedOut {
		a.summary.TimedOutRuns++
	}
	a.summary.FilesIndexed += e.FilesIndexed
	a.summary.FilesFailed += e.FilesFailed
	a.runSeconds += e.ElapsedSeconds
}

// Summary returns the current aggregate.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.summary
	if n := len(a.latencies); n > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		s.AvgLatencyUs = float64(sum) / float64(n)
		s.P95LatencyUs = sorted[min(n-1, n*95/100)]
	}
	if s.IndexRuns > 0 {
		s.AvgRunSeconds = a.runSeconds / float64(s.IndexRuns)
	}
	s.TopQueries = topN(a.queries, 10)
	s.ZeroResultQueries = topN(a.zeroQueries, 10)
	return s
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
