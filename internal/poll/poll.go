package poll

import (
	"context"
	"sync"
	"time"

	"townwatch/internal/applog"
	"townwatch/internal/clock"
)

// RefreshFunc performs one poll.
type RefreshFunc func(ctx context.Context) error

// Loop calls a RefreshFunc once at Start and then at a fixed cadence until
// Stop. There is no backoff: a failed refresh simply waits for the next tick.
type Loop struct {
	refresh  RefreshFunc
	interval time.Duration
	clock    clock.Clock
	log      *applog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	timer   clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Loop.
func New(refresh RefreshFunc, interval time.Duration, clk clock.Clock, log *applog.Logger) *Loop {
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		refresh:  refresh,
		interval: interval,
		clock:    clk,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the first refresh immediately (on its own goroutine) and
// schedules the following ones. Calling Start twice is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.log.Info("Polling started", "interval", l.interval.String())
	go l.fire()
}

// Trigger runs one extra refresh now without changing the cadence.
func (l *Loop) Trigger() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		l.run("manual")
	}()
}

// Stop cancels the schedule and in-flight refreshes and waits for them.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	l.log.Info("Polling stopped")
}

// fire schedules the next tick before refreshing so the cadence does not
// drift with refresh latency.
func (l *Loop) fire() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.timer = l.clock.AfterFunc(l.interval, l.fire)
	l.wg.Add(1)
	l.mu.Unlock()

	defer l.wg.Done()
	l.run("scheduled")
}

func (l *Loop) run(trigger string) {
	if err := l.refresh(l.ctx); err != nil {
		l.log.Debug("Poll finished without update", "trigger", trigger, "error", err)
		return
	}
	l.log.Debug("Poll finished", "trigger", trigger)
}
