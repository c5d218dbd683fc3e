package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"townwatch/internal/applog"
	"townwatch/internal/clock"
)

// Store holds the most recent successfully fetched snapshot. A failed
// refresh keeps the previous one.
type Store struct {
	mu          sync.RWMutex
	notifyMu    sync.Mutex // orders replace+notify across overlapping refreshes
	current     SystemSnapshot
	lastRefresh time.Time
	fetcher     Fetcher
	clock       clock.Clock
	listeners   []func(SystemSnapshot)
	log         *applog.Logger
}

// NewStore creates a Store starting from the empty snapshot.
func NewStore(fetcher Fetcher, clk clock.Clock, log *applog.Logger) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		current: Empty(),
		fetcher: fetcher,
		clock:   clk,
		log:     log,
	}
}

// Subscribe registers fn to be called with every newly stored snapshot.
func (s *Store) Subscribe(fn func(SystemSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns the stored snapshot.
func (s *Store) Current() SystemSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastRefresh returns when the stored snapshot was fetched; zero before the
// first success.
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// Refresh fetches a new snapshot and, on success, replaces the stored one and
// notifies listeners. On failure the stored snapshot is left untouched.
func (s *Store) Refresh(ctx context.Context) error {
	snap, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.log.Error("Snapshot refresh failed", "error", err)
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.current = snap
	s.lastRefresh = s.clock.Now()
	listeners := make([]func(SystemSnapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.log.Debug("Snapshot refreshed",
		"tools", len(snap.Tools), "plugins", len(snap.Plugins), "domains", len(snap.Domains))

	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}
