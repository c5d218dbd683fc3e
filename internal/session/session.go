package session

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"townwatch/internal/applog"
	"townwatch/internal/clock"
	"townwatch/internal/config"
	"townwatch/internal/poll"
	"townwatch/internal/router"
	"townwatch/internal/snapshot"
	"townwatch/internal/state"
	"townwatch/internal/stream"
)

// Options configures a Session.
type Options struct {
	SourceURL         string
	PollInterval      time.Duration
	ReconnectDelay    time.Duration
	HighlightDuration time.Duration
	RequestTimeout    time.Duration
	BillboardSize     int
	MaxLogs           int

	Clock      clock.Clock
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// OptionsFromConfig maps the loaded configuration onto session options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourceURL:         cfg.Source,
		PollInterval:      cfg.PollInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
		HighlightDuration: cfg.HighlightDuration,
		RequestTimeout:    cfg.RequestTimeout,
		BillboardSize:     cfg.BillboardSize,
		MaxLogs:           cfg.MaxLogs,
	}
}

// Session wires one dashboard: the snapshot poller and the event stream
// both feed a single View.
type Session struct {
	view   *state.View
	store  *snapshot.Store
	loop   *poll.Loop
	stream *stream.Manager
	log    *applog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a Session. Nothing runs until Start.
func New(opts Options) (*Session, error) {
	statusURL, err := snapshot.StatusURL(opts.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("status url: %w", err)
	}
	eventURL, err := stream.EventURL(opts.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("event url: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}

	view := state.New(state.Options{
		BillboardSize:     opts.BillboardSize,
		HighlightDuration: opts.HighlightDuration,
		MaxLogs:           opts.MaxLogs,
		Clock:             opts.Clock,
	})
	log := applog.New("Session", view)

	client := snapshot.NewClient(statusURL, opts.HTTPClient, opts.RequestTimeout)
	store := snapshot.NewStore(client, opts.Clock, log.With("Snapshot"))
	store.Subscribe(view.ApplySnapshot)

	s := &Session{
		view:  view,
		store: store,
		loop:  poll.New(store.Refresh, opts.PollInterval, opts.Clock, log.With("Poll")),
		stream: stream.New(stream.Options{
			URL:            eventURL,
			ReconnectDelay: opts.ReconnectDelay,
			Dispatcher:     router.New(view, view, view),
			OnState:        view.SetConnectionState,
			Dialer:         opts.Dialer,
			Clock:          opts.Clock,
			Logger:         log.With("Stream"),
		}),
		log: log,
	}
	log.Info("Session configured", "status", statusURL, "events", eventURL)
	return s, nil
}

// View returns the state the front-ends render.
func (s *Session) View() *state.View {
	return s.view
}

// Start opens the event stream and begins polling. It is a no-op after the
// first call.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.stream.Connect()
	s.loop.Start()
}

// RefreshNow requests an immediate snapshot poll.
func (s *Session) RefreshNow() {
	s.loop.Trigger()
}

// Stop closes the stream, stops polling and releases highlight timers.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.stream.Close()
	s.loop.Stop()
	s.view.Close()
	s.log.Info("Session stopped")
}
