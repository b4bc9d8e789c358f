package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type memRecorder struct {
	mu   sync.Mutex
	got  []entitlements.Access
	err  error
	gate chan struct{}
}

func (m *memRecorder) RecordAccess(ctx context.Context, a entitlements.Access) error {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, a)
	return m.err
}

func (m *memRecorder) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

func TestEffect_RecordsAndDrainsOnClose(t *testing.T) {
	rec := &memRecorder{}
	e := NewEffect(rec, 2, WithEffectLogger(quiet()))
	for i := 0; i < 10; i++ {
		e.Track(context.Background(), entitlements.Access{IdentityID: "u1", ContentID: "v1"})
	}
	require.NoError(t, e.Close(context.Background()))
	require.Equal(t, 10, rec.len())
	require.Zero(t, e.Dropped())
}

func TestEffect_FullQueueDropsWithoutBlocking(t *testing.T) {
	rec := &memRecorder{gate: make(chan struct{})}
	var drops int
	var mu sync.Mutex
	e := NewEffect(rec, 1, WithQueueSize(1), WithEffectLogger(quiet()),
		WithCounters(func() { mu.Lock(); drops++; mu.Unlock() }, nil))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			e.Track(context.Background(), entitlements.Access{ContentID: "v"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Track blocked on a stalled recorder")
	}
	close(rec.gate)
	require.NoError(t, e.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Positive(t, drops)
	require.Equal(t, int64(drops), e.Dropped())
	require.Equal(t, 50, rec.len()+drops)
}

func TestEffect_FailuresAreSwallowed(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	e := NewEffect(rec, 1, WithEffectLogger(quiet()))
	e.Track(context.Background(), entitlements.Access{ContentID: "v1"})
	require.NoError(t, e.Close(context.Background()))
	require.Equal(t, int64(1), e.Failed())

	// after close, tracking is a counted no-op
	e.Track(context.Background(), entitlements.Access{ContentID: "v2"})
	require.Equal(t, int64(1), e.Dropped())
}

type fakeInserter struct {
	args []river.JobArgs
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	f.args = append(f.args, args)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: int64(len(f.args))}}, nil
}

func TestRiverRecorderAndWorker(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ins := &fakeInserter{}
	require.NoError(t, NewRiverRecorder(ins).RecordAccess(context.Background(), entitlements.Access{IdentityID: "u1", ContentID: "v1", At: at}))
	require.Len(t, ins.args, 1)
	args, ok := ins.args[0].(RecordArgs)
	require.True(t, ok)
	require.Equal(t, "content_access", args.Kind())
	require.Equal(t, QueueTracking, args.InsertOpts().Queue)

	rec := &memRecorder{}
	w := NewRecordWorker(rec)
	require.NoError(t, w.Work(context.Background(), &river.Job[RecordArgs]{Args: args}))
	require.Equal(t, []entitlements.Access{{IdentityID: "u1", ContentID: "v1", At: at}}, rec.got)
}

type memCounters struct {
	counts []Count
	added  [][]Count
	err    error
}

func (m *memCounters) Drain(context.Context) ([]Count, error) {
	out := m.counts
	m.counts = nil
	return out, nil
}

func (m *memCounters) AddAccessCounts(_ context.Context, c []Count) error {
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, c)
	return nil
}

func TestFlusher_Flush(t *testing.T) {
	m := &memCounters{counts: []Count{{IdentityID: "u1", ContentID: "v1", Hits: 3}}}
	f := NewFlusher(m, m, "", quiet())

	n, err := f.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, m.added, 1)

	n, err = f.Flush(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, m.added, 1)
}

func TestFlusher_StartStop(t *testing.T) {
	m := &memCounters{counts: []Count{{IdentityID: "u1", ContentID: "v1", Hits: 1}}}
	f := NewFlusher(m, m, "@every 1h", quiet())
	require.NoError(t, f.Start())
	require.NoError(t, f.Stop(context.Background()))
	require.Len(t, m.added, 1)
}

func TestFlusher_BadSpec(t *testing.T) {
	m := &memCounters{}
	require.Error(t, NewFlusher(m, m, "every minute", quiet()).Start())
}
