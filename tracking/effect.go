// Package tracking records content accesses off the request path. Recording is
// best-effort: a slow or failing sink never delays or fails an authorization
// decision.
package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/sirupsen/logrus"
)

// Recorder persists one access. Implementations: storage/postgres.Store,
// storage/redis.AccessCounter, RiverRecorder.
type Recorder interface {
	RecordAccess(ctx context.Context, a entitlements.Access) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, a entitlements.Access) error

func (f RecorderFunc) RecordAccess(ctx context.Context, a entitlements.Access) error { return f(ctx, a) }

// Effect is a bounded, non-blocking queue in front of a Recorder. It
// implements entitlements.Tracker.
type Effect struct {
	rec     Recorder
	queue   chan entitlements.Access
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Int64
	failed  atomic.Int64
	onDrop  func()
	onFail  func()
}

// EffectOption configures an Effect.
type EffectOption func(*Effect)

// WithQueueSize bounds the number of pending records. Default 1024.
func WithQueueSize(n int) EffectOption {
	return func(e *Effect) {
		if n > 0 {
			e.queue = make(chan entitlements.Access, n)
		}
	}
}

// WithRecordTimeout bounds one RecordAccess call. Default 5s.
func WithRecordTimeout(d time.Duration) EffectOption {
	return func(e *Effect) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithEffectLogger(l logrus.FieldLogger) EffectOption {
	return func(e *Effect) { e.log = l }
}

// WithCounters installs callbacks for dropped and failed records, e.g.
// prometheus counters.
func WithCounters(onDrop, onFail func()) EffectOption {
	return func(e *Effect) {
		e.onDrop = onDrop
		e.onFail = onFail
	}
}

// NewEffect starts workers goroutines draining into rec.
func NewEffect(rec Recorder, workers int, opts ...EffectOption) *Effect {
	e := &Effect{
		rec:     rec,
		queue:   make(chan entitlements.Access, 1024),
		timeout: 5 * time.Second,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.work()
	}
	return e
}

// Track enqueues a without blocking. When the queue is full or the effect is
// closed the record is dropped and counted.
func (e *Effect) Track(_ context.Context, a entitlements.Access) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop()
		return
	}
	select {
	case e.queue <- a:
	default:
		e.drop()
	}
}

func (e *Effect) drop() {
	e.dropped.Add(1)
	if e.onDrop != nil {
		e.onDrop()
	}
}

func (e *Effect) work() {
	defer e.wg.Done()
	for a := range e.queue {
		// Request contexts are gone by now; each record gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.rec.RecordAccess(ctx, a)
		cancel()
		if err != nil {
			e.failed.Add(1)
			if e.onFail != nil {
				e.onFail()
			}
			e.log.WithFields(logrus.Fields{
				"identity_id": a.IdentityID,
				"content_id":  a.ContentID,
			}).WithError(err).Warn("access tracking failed")
		}
	}
}

// Dropped returns how many records were discarded without being recorded.
func (e *Effect) Dropped() int64 { return e.dropped.Load() }

// Failed returns how many RecordAccess calls returned an error.
func (e *Effect) Failed() int64 { return e.failed.Load() }

// Close stops accepting records and waits for the queue to drain or ctx to
// end, whichever comes first.
func (e *Effect) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
