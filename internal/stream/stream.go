package stream

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"townwatch/internal/applog"
	"townwatch/internal/clock"
	"townwatch/internal/router"
)

// EventsPath is the event stream path on the backend.
const EventsPath = "/ws/events"

// State is the lifecycle state of the event stream connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dispatcher receives decoded events.
type Dispatcher interface {
	Dispatch(ev router.LiveEvent)
}

type retryTimer struct {
	timer clock.Timer
}

// Options configures a Manager.
type Options struct {
	URL            string
	ReconnectDelay time.Duration
	Dispatcher     Dispatcher
	// OnState is called on every state transition, in order, while the
	// manager's lock is held. It must not call back into the Manager.
	OnState func(State)
	Dialer  *websocket.Dialer
	Clock   clock.Clock
	Logger  *applog.Logger
}

// Manager owns the single event stream socket and reconnects it after a
// fixed delay whenever it drops. Retries are unbounded.
type Manager struct {
	opts Options
	log  *applog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	retry  *retryTimer
	closed bool
	wg     sync.WaitGroup
}

// EventURL returns the event stream URL for a backend base URL: wss for an
// https source, ws otherwise.
func EventURL(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse source: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = EventsPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// New creates a Manager in the Disconnected state.
func New(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		state:  Disconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the stream unless it is already connecting or connected, or
// the manager is closed. An explicit Connect cancels a pending reconnect.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != Disconnected {
		return
	}
	if m.retry != nil {
		m.retry.timer.Stop()
		m.retry = nil
	}
	m.setStateLocked(Connecting)
	m.wg.Add(1)
	go m.run()
}

// Close tears the connection down for good and waits for the reader.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.retry != nil {
		m.retry.timer.Stop()
		m.retry = nil
	}
	conn := m.conn
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		conn.Close()
	}
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	m.log.Debug("Connecting to event stream", "url", m.opts.URL)
	conn, _, err := m.opts.Dialer.DialContext(m.ctx, m.opts.URL, nil)
	if err != nil {
		m.log.Warn("Event stream dial failed", "url", m.opts.URL, "error", err)
		m.handleClose()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		m.handleClose()
		return
	}
	m.conn = conn
	m.setStateLocked(Connected)
	m.mu.Unlock()
	m.log.Info("Event stream connected", "url", m.opts.URL)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.log.Warn("Event stream closed", "error", err)
			break
		}
		m.deliver(data)
	}
	conn.Close()
	m.handleClose()
}

// deliver decodes a frame and dispatches it. Bad frames are logged and
// dropped without affecting the connection.
func (m *Manager) deliver(data []byte) {
	ev, err := router.Decode(data)
	if err != nil {
		m.log.Warn("Dropped malformed event frame", "error", err, "bytes", len(data))
		return
	}
	if m.opts.Dispatcher != nil {
		m.opts.Dispatcher.Dispatch(ev)
	}
}

// handleClose moves to Disconnected and schedules exactly one reconnect.
func (m *Manager) handleClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = nil
	if !m.closed && m.retry == nil {
		delay := m.opts.ReconnectDelay
		r := &retryTimer{}
		r.timer = m.opts.Clock.AfterFunc(delay, func() {
			m.reconnect(r)
		})
		m.retry = r
		m.log.Info("Event stream reconnect scheduled", "delay", delay.String())
	}
	m.setStateLocked(Disconnected)
}

// reconnect runs when r fires. A timer that was superseded after Stop lost
// the race must not clear the newer handle.
func (m *Manager) reconnect(r *retryTimer) {
	m.mu.Lock()
	if m.retry != r {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.mu.Unlock()
	m.Connect()
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}
