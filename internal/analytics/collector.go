package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/file-retrieval-engine/pkg/kafka"
)

// Publisher sends a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events and publishes them in batches from a single
// background goroutine. Tracking never blocks: when the buffer is full the
// event is dropped and counted.
type Collector struct {
	publisher     Publisher
	events        chan kafka.Event
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	logger        *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewCollector buffers up to bufferSize events and flushes every batchSize
// events or flushInterval, whichever comes first.
func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		events:        make(chan kafka.Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publishing loop. It runs until Close.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		go c.loop()
		c.logger.Info("analytics collector started",
			"buffer_size", cap(c.events),
			"batch_size", c.batchSize,
			"flush_interval", c.flushInterval,
		)
	})
}

// TrackSearch enqueues a search event.
func (c *Collector) TrackSearch(e SearchEvent) {
	e.Type = EventSearch
	c.track(string(EventSearch), e)
}

// TrackIndexRun enqueues an indexing-run event keyed by run ID.
func (c *Collector) TrackIndexRun(e IndexRunEvent) {
	e.Type = EventIndexRun
	c.track(e.RunID, e)
}

func (c *Collector) track(key string, value any) {
	select {
	case c.events <- kafka.Event{Key: key, Value: value}:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events, publishes what is buffered and waits for
// the loop to exit. Tracking after Close panics.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.Start()
		close(c.events)
		<-c.done
	})
}

func (c *Collector) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(batch)
			batch = batch[:0]
		}
	}
}

func (c *Collector) flush(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
	}
}
