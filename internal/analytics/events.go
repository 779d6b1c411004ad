// Package analytics ships search and indexing events to Kafka and folds a
// stream of them back into summary statistics.
package analytics

import "time"

type EventType string

const (
	EventSearch   EventType = "search"
	EventIndexRun EventType = "index_run"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Matched   int       `json:"matched"`
	Returned  int       `json:"returned"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexRunEvent describes one finished indexing run.
type IndexRunEvent struct {
	Type           EventType `json:"type"`
	RunID          string    `json:"run_id"`
	Root           string    `json:"root"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Subtrees       int       `json:"subtrees"`
	FilesIndexed   int64     `json:"files_indexed"`
	FilesFailed    int64     `json:"files_failed"`
	TimedOut       bool      `json:"timed_out"`
	Cancelled      bool      `json:"cancelled"`
	Timestamp      time.Time `json:"timestamp"`
}

// envelope reads only the discriminator of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}
