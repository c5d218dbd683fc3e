package state

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"townwatch/internal/clock"
	"townwatch/internal/render"
	"townwatch/internal/router"
	"townwatch/internal/snapshot"
	"townwatch/internal/stream"
)

// LogEntry holds a single diagnostic log entry.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Label     string    `json:"label"`
	Message   string    `json:"message"`
}

// ViewData is a point-in-time copy of the View for rendering and JSON.
type ViewData struct {
	Revision    uint64                  `json:"revision"`
	Connection  render.Indicator        `json:"connection"`
	Billboard   []render.BillboardEntry `json:"billboard"`
	Ticker      string                  `json:"ticker"`
	Town        []render.Building       `json:"town"`
	Tools       []render.ToolCard       `json:"tools"`
	Stats       render.Stats            `json:"stats"`
	Domains     []render.DomainCard     `json:"domains"`
	LastRefresh time.Time               `json:"lastRefresh"`
	RefreshAgo  string                  `json:"refreshAgo"`
	Logs        []LogEntry              `json:"logs"`
}

type highlight struct {
	timer clock.Timer
}

// Options configures a View.
type Options struct {
	BillboardSize     int
	HighlightDuration time.Duration
	MaxLogs           int
	Clock             clock.Clock
}

// View is the dashboard's owned state: everything the front-ends draw.
// It is the sink for routed events, snapshot refreshes and connection
// changes.
type View struct {
	mu                sync.RWMutex
	clock             clock.Clock
	billboardSize     int
	highlightDuration time.Duration
	maxLogs           int

	connection  stream.State
	billboard   []render.BillboardEntry
	ticker      string
	snapshot    snapshot.SystemSnapshot
	lastRefresh time.Time
	town        []render.Building
	tools       []render.ToolCard
	stats       render.Stats
	open        map[string]bool
	highlights  map[string]*highlight // by window key
	logs        []LogEntry
	revision    uint64
	closed      bool

	subsMu sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// New creates an empty View.
func New(opts Options) *View {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.BillboardSize < 1 {
		opts.BillboardSize = 20
	}
	if opts.HighlightDuration <= 0 {
		opts.HighlightDuration = time.Second
	}
	if opts.MaxLogs < 1 {
		opts.MaxLogs = 200
	}
	return &View{
		clock:             opts.Clock,
		billboardSize:     opts.BillboardSize,
		highlightDuration: opts.HighlightDuration,
		maxLogs:           opts.MaxLogs,
		connection:        stream.Disconnected,
		billboard:         []render.BillboardEntry{},
		snapshot:          snapshot.Empty(),
		town:              []render.Building{},
		tools:             []render.ToolCard{},
		open:              make(map[string]bool),
		highlights:        make(map[string]*highlight),
		logs:              []LogEntry{},
		subs:              make(map[int]chan struct{}),
	}
}

// Subscribe returns a channel that receives a value whenever the view
// changes, and a func that releases it. Notifications coalesce. Release
// closes the channel and may be called more than once.
func (v *View) Subscribe() (<-chan struct{}, func()) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	id := v.nextID
	v.nextID++
	ch := make(chan struct{}, 1)
	v.subs[id] = ch
	return ch, func() {
		v.subsMu.Lock()
		defer v.subsMu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(ch)
		}
	}
}

// notifyChange does a non-blocking send to every subscriber.
// Must be called while NOT holding mu.
func (v *View) notifyChange() {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	for _, ch := range v.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SetConnectionState records a stream state transition.
func (v *View) SetConnectionState(s stream.State) {
	v.mu.Lock()
	v.connection = s
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
}

// PushEvent adds an event to the billboard.
func (v *View) PushEvent(name string, payload router.Payload) {
	v.mu.Lock()
	e := render.NewBillboardEntry(name, payload, v.clock.Now())
	v.billboard = render.PushBillboard(v.billboard, e, v.billboardSize)
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
}

// ShowLog replaces the ticker with a log line.
func (v *View) ShowLog(payload router.Payload) {
	v.mu.Lock()
	v.ticker = render.TickerText(payload)
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
}

// Highlight lights every rendered window whose domain matches the event
// name, for the highlight duration. A repeated match restarts the timer.
func (v *View) Highlight(name string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	lit := 0
	for _, b := range v.town {
		for _, w := range b.Windows {
			if !router.MatchesDomain(name, w.Domain) {
				continue
			}
			key := w.Key()
			if prev, ok := v.highlights[key]; ok {
				prev.timer.Stop()
			}
			h := &highlight{}
			h.timer = v.clock.AfterFunc(v.highlightDuration, func() {
				v.clearHighlight(key, h)
			})
			v.highlights[key] = h
			lit++
		}
	}
	if lit > 0 {
		v.revision++
	}
	v.mu.Unlock()
	if lit > 0 {
		v.notifyChange()
	}
}

func (v *View) clearHighlight(key string, h *highlight) {
	v.mu.Lock()
	if cur, ok := v.highlights[key]; !ok || cur != h {
		v.mu.Unlock()
		return
	}
	delete(v.highlights, key)
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
}

// ApplySnapshot re-renders everything derived from a new snapshot. Highlight
// state is dropped and the accordion resets to its first card.
func (v *View) ApplySnapshot(s snapshot.SystemSnapshot) {
	v.mu.Lock()
	v.snapshot = s
	v.lastRefresh = v.clock.Now()
	v.town = render.Town(s.Plugins)
	v.tools = render.Tools(s.Tools)
	v.stats = render.SnapshotStats(s)
	v.open = make(map[string]bool)
	if first, ok := render.FirstDomain(s.Plugins); ok {
		v.open[first] = true
	}
	v.stopHighlightsLocked()
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
}

// ToggleDomain flips a domain card open or closed. It returns the new state
// and false if no such domain is rendered.
func (v *View) ToggleDomain(name string) (open bool, found bool) {
	v.mu.Lock()
	for _, g := range render.GroupDomains(v.snapshot.Plugins) {
		if g.Name == name {
			found = true
			break
		}
	}
	if !found {
		v.mu.Unlock()
		return false, false
	}
	open = !v.open[name]
	v.open[name] = open
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
	return open, true
}

// Now reports the view clock's current time.
func (v *View) Now() time.Time {
	return v.clock.Now()
}

// AddLog appends a diagnostic log entry stamped at, trimming old entries if
// needed.
func (v *View) AddLog(at time.Time, level, label, message string) {
	v.mu.Lock()
	entry := LogEntry{
		Timestamp: at.UTC(),
		Level:     level,
		Label:     label,
		Message:   message,
	}
	v.logs = append(v.logs, entry)
	if len(v.logs) > v.maxLogs {
		v.logs = v.logs[len(v.logs)-v.maxLogs:]
	}
	v.revision++
	v.mu.Unlock()
	v.notifyChange()
}

// Snapshot returns a copy of the current view.
func (v *View) Snapshot() ViewData {
	v.mu.RLock()
	defer v.mu.RUnlock()

	town := make([]render.Building, len(v.town))
	for i, b := range v.town {
		windows := make([]render.Window, len(b.Windows))
		for j, w := range b.Windows {
			_, w.Active = v.highlights[w.Key()]
			windows[j] = w
		}
		town[i] = render.Building{Domain: b.Domain, Windows: windows}
	}

	billboard := make([]render.BillboardEntry, len(v.billboard))
	copy(billboard, v.billboard)
	logs := make([]LogEntry, len(v.logs))
	copy(logs, v.logs)
	tools := make([]render.ToolCard, len(v.tools))
	copy(tools, v.tools)

	return ViewData{
		Revision:    v.revision,
		Connection:  render.ConnectionIndicator(v.connection),
		Billboard:   billboard,
		Ticker:      v.ticker,
		Town:        town,
		Tools:       tools,
		Stats:       v.stats,
		Domains:     render.Domains(v.snapshot.Plugins, func(name string) bool { return v.open[name] }),
		LastRefresh: v.lastRefresh,
		RefreshAgo:  refreshAgo(v.lastRefresh, v.clock.Now()),
		Logs:        logs,
	}
}

func refreshAgo(last, now time.Time) string {
	if last.IsZero() {
		return "never refreshed"
	}
	return "refreshed " + humanize.RelTime(last, now, "ago", "from now")
}

// Revision returns a counter that increases on every change.
func (v *View) Revision() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revision
}

// Close stops all highlight timers. Later highlights are ignored.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.stopHighlightsLocked()
	v.mu.Unlock()
}

func (v *View) stopHighlightsLocked() {
	for key, h := range v.highlights {
		h.timer.Stop()
		delete(v.highlights, key)
	}
}
