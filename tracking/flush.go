package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Count aggregates accesses of one identity to one item since the last flush.
type Count struct {
	IdentityID string
	ContentID  string
	Hits       int64
	LastAt     time.Time
}

// CounterSource hands over and resets its accumulated counts.
type CounterSource interface {
	Drain(ctx context.Context) ([]Count, error)
}

// CountSink adds counts to durable storage.
type CountSink interface {
	AddAccessCounts(ctx context.Context, counts []Count) error
}

// Flusher periodically moves counts from a fast source (redis) into a durable
// sink (postgres).
type Flusher struct {
	src  CounterSource
	sink CountSink
	spec string
	log  logrus.FieldLogger

	mu sync.Mutex // serializes flushes
	c  *cron.Cron
}

// NewFlusher schedules a flush on the cron spec (e.g. "@every 1m").
func NewFlusher(src CounterSource, sink CountSink, spec string, log logrus.FieldLogger) *Flusher {
	if spec == "" {
		spec = "@every 1m"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Flusher{src: src, sink: sink, spec: spec, log: log}
}

// Start registers the job and starts the scheduler.
func (f *Flusher) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(f.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n, err := f.Flush(ctx); err != nil {
			f.log.WithError(err).Warn("access counter flush failed")
		} else if n > 0 {
			f.log.WithField("rows", n).Debug("access counters flushed")
		}
	}); err != nil {
		return fmt.Errorf("tracking: schedule flush %q: %w", f.spec, err)
	}
	f.c = c
	c.Start()
	return nil
}

// Stop halts the scheduler, waits for a running flush, then flushes once more.
func (f *Flusher) Stop(ctx context.Context) error {
	if f.c != nil {
		select {
		case <-f.c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	_, err := f.Flush(ctx)
	return err
}

// Flush drains the source into the sink and returns the number of rows moved.
// Drained counts that fail to reach the sink are lost; the source's own
// retention is the durability bound.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts, err := f.src.Drain(ctx)
	if err != nil {
		return 0, fmt.Errorf("tracking: drain counters: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	if err := f.sink.AddAccessCounts(ctx, counts); err != nil {
		return 0, fmt.Errorf("tracking: write %d counters: %w", len(counts), err)
	}
	return len(counts), nil
}
