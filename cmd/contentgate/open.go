package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/player"
	memorystore "github.com/PaulFidika/contentgate/storage/memory"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const openSessionKey = "cli"

// newOpenCommand drives one player session against a running API without a
// real media element. Loads and state changes are printed; with --follow the
// session stays open and refreshes its grant until interrupted.
func newOpenCommand() *cobra.Command {
	var (
		apiBase  string
		token    string
		kind     string
		id       string
		chapter  string
		language string
		follow   bool
	)

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open one content item the way the player does",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("CONTENTGATE_TOKEN")
			}
			if token == "" {
				return errors.New("open: --token or CONTENTGATE_TOKEN is required")
			}
			k, ok := content.ParseKind(kind)
			if !ok {
				return fmt.Errorf("open: unknown kind %q", kind)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runOpen(ctx, cmd.OutOrStdout(), openOptions{
				api:      apiBase,
				token:    token,
				req:      player.Request{ContentID: id, ChapterID: chapter, Kind: k, Autoplay: true},
				language: language,
				follow:   follow,
			})
		},
	}
	cmd.Flags().StringVar(&apiBase, "api", "http://localhost:8080", "Content API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Session token (defaults to CONTENTGATE_TOKEN)")
	cmd.Flags().StringVar(&kind, "kind", "video", "Content kind: video or pdf")
	cmd.Flags().StringVar(&id, "id", "", "Content id")
	cmd.Flags().StringVar(&chapter, "chapter", "", "Chapter id")
	cmd.Flags().StringVar(&language, "lang", "en", "Message language")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep the session open and refresh the grant")
	return cmd
}

type openOptions struct {
	api      string
	token    string
	req      player.Request
	language string
	follow   bool
}

func runOpen(ctx context.Context, w io.Writer, o openOptions) error {
	out := &syncWriter{w: w}
	store := memorystore.NewSessionStore(24 * time.Hour)
	defer store.Close()
	if err := store.Put(ctx, openSessionKey, player.Credential{AccessToken: o.token}); err != nil {
		return err
	}
	client, err := player.NewAPIClient(o.api, store, openSessionKey)
	if err != nil {
		return err
	}

	events := make(chan player.Event, 16)
	sched := player.NewScheduler(client,
		player.WithLanguage(o.language),
		player.WithObserver(func(e player.Event) {
			select {
			case events <- e:
			default:
			}
		}),
		player.WithLogger(logrus.StandardLogger()),
	)
	media := &headlessMedia{out: out, now: time.Now}
	sess := sched.Open(ctx, o.req, media)
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return drainEvents(out, events)
		case e := <-events:
			printEvent(out, e)
			if e.State.Terminal() {
				return fmt.Errorf("open: %s", strings.TrimSpace(e.State.String()+" "+e.Message))
			}
			if e.State == player.StateReady && !o.follow {
				return nil
			}
		}
	}
}

func drainEvents(out io.Writer, events <-chan player.Event) error {
	var last player.Event
	for {
		select {
		case e := <-events:
			printEvent(out, e)
			last = e
		default:
			if last.State == player.StateDenied || last.State == player.StateFailed {
				return fmt.Errorf("open: %s %s", last.State, last.Message)
			}
			return nil
		}
	}
}

func printEvent(out io.Writer, e player.Event) {
	if e.Message != "" {
		fmt.Fprintf(out, "%s\t%s\t%s\n", e.ContentID, e.State, e.Message)
		return
	}
	fmt.Fprintf(out, "%s\t%s\n", e.ContentID, e.State)
}

// headlessMedia stands in for a media element. Position advances with wall
// time while playing.
type headlessMedia struct {
	out io.Writer
	now func() time.Time

	mu      sync.Mutex
	offset  float64
	started time.Time
	playing bool
}

func (m *headlessMedia) Load(src player.Source, position float64, resume bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset, m.started, m.playing = position, m.now(), resume
	switch {
	case src.InMemory():
		fmt.Fprintf(m.out, "load\t%d bytes %s at %.1fs\n", len(src.Data), src.ContentType, position)
	default:
		fmt.Fprintf(m.out, "load\t%s at %.1fs\n", redactQuery(src.URL), position)
	}
	return nil
}

func (m *headlessMedia) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return m.offset
	}
	return m.offset + m.now().Sub(m.started).Seconds()
}

func (m *headlessMedia) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// redactQuery drops the signature from printed URLs.
func redactQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?…"
	}
	return u
}

// syncWriter serializes output from the session goroutine and the caller.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
