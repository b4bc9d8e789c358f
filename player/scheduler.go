package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/lang"
	"github.com/sirupsen/logrus"
)

// Request names the item a session plays.
type Request struct {
	ContentID string
	ChapterID string
	Kind      content.Kind
	Autoplay  bool
}

// Fetcher obtains grants from the content API.
type Fetcher interface {
	FetchGrant(ctx context.Context, req Request) (Grant, error)
}

// BodyFetcher downloads the body behind a grant URL for in-memory playback.
type BodyFetcher interface {
	FetchBody(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// Media is the playback element a session drives. Calls are serialized by the
// session and never happen after Close returns.
type Media interface {
	Load(src Source, position float64, resume bool) error
	Position() float64
	Playing() bool
}

// Scheduler opens sessions that share one fetcher, clock and observer.
type Scheduler struct {
	fetcher  Fetcher
	bodies   BodyFetcher
	clock    Clock
	observe  func(Event)
	language string
	log      logrus.FieldLogger
}

type Option func(*Scheduler)

// WithBodyFetcher enables the in-memory fallback.
func WithBodyFetcher(b BodyFetcher) Option { return func(s *Scheduler) { s.bodies = b } }

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithObserver receives every state change, in order, on the session
// goroutine. The session is unlocked while the callback runs, so it may call
// State and PlaybackError; it must not call Close, which waits for that
// goroutine.
func WithObserver(f func(Event)) Option { return func(s *Scheduler) { s.observe = f } }

// WithLanguage selects the catalog for user-facing messages.
func WithLanguage(language string) Option { return func(s *Scheduler) { s.language = language } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *Scheduler) { s.log = l } }

func NewScheduler(f Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{fetcher: f, clock: realClock{}, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	if bf, ok := f.(BodyFetcher); ok && s.bodies == nil {
		s.bodies = bf
	}
	return s
}

// Open starts a session for req on media. The session loads in the background;
// progress is reported through the observer.
func (s *Scheduler) Open(ctx context.Context, req Request, media Media) *Session {
	ctx, cancel := context.WithCancel(ctx)
	ss := &Session{
		s:           s,
		req:         req,
		media:       media,
		ctx:         ctx,
		cancel:      cancel,
		refreshDue:  make(chan struct{}, 1),
		playbackErr: make(chan struct{}, 1),
		done:        make(chan struct{}),
		log:         s.log.WithFields(logrus.Fields{"content_id": req.ContentID, "kind": string(req.Kind)}),
	}
	go ss.loop()
	return ss
}

// Session is one open content item.
type Session struct {
	s      *Scheduler
	req    Request
	media  Media
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger

	refreshDue  chan struct{}
	playbackErr chan struct{}
	dueGen      atomic.Uint64
	done        chan struct{}
	closeOnce   sync.Once

	applyMu sync.Mutex
	closed  bool
	state   State
	pending []Event

	// owned by the loop goroutine
	grant        Grant
	gen          uint64
	task         *refreshTask
	fallbackUsed bool
}

// State returns the current state.
func (ss *Session) State() State {
	ss.applyMu.Lock()
	defer ss.applyMu.Unlock()
	return ss.state
}

// PlaybackError reports that the media element failed to play the current
// source. The first report per grant switches to in-memory playback; a second
// one fails the session.
func (ss *Session) PlaybackError() error {
	if ss.State() == StateClosed {
		return ErrClosed
	}
	select {
	case ss.playbackErr <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the session. Pending refreshes are cancelled, late responses
// are discarded and no callback or media call happens after Close returns.
func (ss *Session) Close() {
	ss.closeOnce.Do(func() {
		ss.applyMu.Lock()
		ss.closed = true
		ss.state = StateClosed
		ss.applyMu.Unlock()
		ss.cancel()
		<-ss.done
	})
}

// Done is closed when the session goroutine exits.
func (ss *Session) Done() <-chan struct{} { return ss.done }

func (ss *Session) loop() {
	defer close(ss.done)
	defer func() { ss.task.Dispose() }()

	if !ss.setState(StateLoading, "") {
		return
	}
	g, err := ss.s.fetcher.FetchGrant(ss.ctx, ss.req)
	if ss.ctx.Err() != nil {
		return
	}
	if err != nil {
		ss.openFailed(err)
		return
	}
	if !ss.present(g, 0, ss.req.Autoplay) {
		return
	}

	for {
		select {
		case <-ss.ctx.Done():
			return
		case <-ss.refreshDue:
			if ss.dueGen.Load() != ss.gen {
				continue
			}
			if !ss.refresh() {
				return
			}
		case <-ss.playbackErr:
			if !ss.recoverPlayback() {
				return
			}
		}
	}
}

// apply runs f under the session lock unless the session was closed, then
// reports the transitions f made once the lock is released.
func (ss *Session) apply(f func()) bool {
	ss.applyMu.Lock()
	if ss.closed || ss.ctx.Err() != nil {
		ss.applyMu.Unlock()
		return false
	}
	f()
	events := ss.pending
	ss.pending = nil
	ss.applyMu.Unlock()

	for _, e := range events {
		ss.s.observe(e)
	}
	return true
}

func (ss *Session) setState(st State, msg string) bool {
	return ss.apply(func() { ss.transition(st, msg) })
}

// transition must be called with applyMu held.
func (ss *Session) transition(st State, msg string) {
	ss.state = st
	if ss.s.observe != nil {
		ss.pending = append(ss.pending, Event{ContentID: ss.req.ContentID, State: st, Message: msg})
	}
}

func (ss *Session) message(key lang.MessageKey) string {
	return lang.Message(ss.s.language, key)
}

func (ss *Session) openFailed(err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		ss.setState(StateDenied, ss.message(lang.MsgAccessExpired))
	case errors.Is(err, ErrDenied):
		ss.setState(StateDenied, ss.message(lang.MsgNotAccessible))
	default:
		ss.log.WithError(err).Warn("content load failed")
		ss.setState(StateFailed, ss.message(lang.MsgUnavailable))
	}
}

// present loads g at position and arms the next refresh.
func (ss *Session) present(g Grant, position float64, resume bool) bool {
	var loadErr error
	src := Source{URL: g.URL, Data: g.Data, ContentType: g.ContentType}
	ok := ss.apply(func() {
		loadErr = ss.media.Load(src, position, resume)
		if loadErr == nil {
			ss.transition(StateReady, "")
		}
	})
	if !ok {
		return false
	}
	ss.grant = g
	ss.fallbackUsed = false
	if loadErr != nil {
		ss.log.WithError(loadErr).Info("media rejected source")
		return ss.fallback(position, resume)
	}
	ss.arm(g)
	return true
}

func (ss *Session) arm(g Grant) {
	ss.task.Dispose()
	ss.task = nil
	ss.gen++
	if g.Data != nil || g.URL == "" {
		return
	}
	gen := ss.gen
	ss.task = &refreshTask{timer: ss.s.clock.AfterFunc(RefreshDelay(g.ExpiresIn), func() {
		for {
			cur := ss.dueGen.Load()
			if gen <= cur || ss.dueGen.CompareAndSwap(cur, gen) {
				break
			}
		}
		select {
		case ss.refreshDue <- struct{}{}:
		default:
		}
	})}
}

func (ss *Session) refresh() bool {
	var position float64
	var playing bool
	if !ss.apply(func() {
		position, playing = ss.media.Position(), ss.media.Playing()
		ss.transition(StateRefreshing, "")
	}) {
		return false
	}

	g, err := ss.s.fetcher.FetchGrant(ss.ctx, ss.req)
	if ss.ctx.Err() != nil {
		return false
	}
	switch {
	case err == nil:
		return ss.present(g, position, playing)
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrDenied):
		ss.apply(func() {
			ss.transition(StateExpired, "")
			ss.transition(StateDenied, ss.message(lang.MsgAccessExpired))
		})
		return false
	default:
		ss.log.WithError(err).Warn("grant refresh failed")
		return ss.fallback(position, playing)
	}
}

func (ss *Session) recoverPlayback() bool {
	var position float64
	var playing bool
	var ready bool
	if !ss.apply(func() {
		ready = ss.state == StateReady
		position, playing = ss.media.Position(), ss.media.Playing()
	}) {
		return false
	}
	if !ready {
		return true
	}
	return ss.fallback(position, playing)
}

// fallback plays the current grant from memory. It is attempted once per grant.
func (ss *Session) fallback(position float64, resume bool) bool {
	g := ss.grant
	if ss.fallbackUsed || ss.s.bodies == nil || g.URL == "" {
		return ss.fail()
	}
	ss.fallbackUsed = true
	data, ctype, err := ss.s.bodies.FetchBody(ss.ctx, g.URL)
	if ss.ctx.Err() != nil {
		return false
	}
	if err != nil {
		ss.log.WithError(err).Warn("in-memory fallback failed")
		return ss.fail()
	}
	var loadErr error
	if !ss.apply(func() {
		loadErr = ss.media.Load(Source{Data: data, ContentType: ctype}, position, resume)
		if loadErr == nil {
			ss.transition(StateReady, "")
		}
	}) {
		return false
	}
	if loadErr != nil {
		return ss.fail()
	}
	// an in-memory body does not expire
	ss.task.Dispose()
	ss.task = nil
	ss.gen++
	return true
}

func (ss *Session) fail() bool {
	ss.setState(StateFailed, ss.message(lang.MsgUnavailable))
	return false
}
