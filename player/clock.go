package player

import "time"

// Clock schedules refresh timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// refreshTask is the disposable handle of one armed refresh.
type refreshTask struct {
	timer Timer
}

func (t *refreshTask) Dispose() {
	if t != nil && t.timer != nil {
		t.timer.Stop()
	}
}
