package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

// RecordArgs is the durable job payload for one access.
type RecordArgs struct {
	IdentityID string    `json:"identity_id"`
	ContentID  string    `json:"content_id"`
	At         time.Time `json:"at"`
}

func (RecordArgs) Kind() string { return "content_access" }

func (RecordArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5, Queue: QueueTracking}
}

// QueueTracking is the river queue access jobs run on.
const QueueTracking = "tracking"

// RecordWorker writes queued accesses through a Recorder (normally the
// postgres store).
type RecordWorker struct {
	river.WorkerDefaults[RecordArgs]
	rec Recorder
}

func NewRecordWorker(rec Recorder) *RecordWorker { return &RecordWorker{rec: rec} }

func (w *RecordWorker) Work(ctx context.Context, job *river.Job[RecordArgs]) error {
	return w.rec.RecordAccess(ctx, entitlements.Access{
		IdentityID: job.Args.IdentityID,
		ContentID:  job.Args.ContentID,
		At:         job.Args.At,
	})
}

func (w *RecordWorker) Timeout(*river.Job[RecordArgs]) time.Duration { return 10 * time.Second }

// Inserter is the slice of *river.Client the recorder needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverRecorder enqueues accesses as river jobs, so records survive restarts
// and are retried by the queue.
type RiverRecorder struct {
	client Inserter
}

func NewRiverRecorder(client Inserter) *RiverRecorder { return &RiverRecorder{client: client} }

func (r *RiverRecorder) RecordAccess(ctx context.Context, a entitlements.Access) error {
	_, err := r.client.Insert(ctx, RecordArgs{IdentityID: a.IdentityID, ContentID: a.ContentID, At: a.At}, nil)
	if err != nil {
		return fmt.Errorf("tracking: enqueue access: %w", err)
	}
	return nil
}

// NewRiverClient builds a river client on pool that runs RecordWorker on the
// tracking queue. Start it with client.Start(ctx) and stop with client.Stop.
func NewRiverClient(pool *pgxpool.Pool, rec Recorder, workers int) (*river.Client[pgx.Tx], error) {
	if workers <= 0 {
		workers = 4
	}
	ws := river.NewWorkers()
	if err := river.AddWorkerSafely(ws, NewRecordWorker(rec)); err != nil {
		return nil, fmt.Errorf("tracking: register worker: %w", err)
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			QueueTracking: {MaxWorkers: workers},
		},
		Workers: ws,
	})
	if err != nil {
		return nil, fmt.Errorf("tracking: river client: %w", err)
	}
	return client, nil
}
