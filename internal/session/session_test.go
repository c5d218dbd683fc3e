package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"townwatch/internal/snapshot"
	"townwatch/internal/state"
	"townwatch/internal/stream"
)

const statusBody = `{"success":true,"data":{
	"tools":{"sqlite":{"status":"OK"}},
	"plugins":{"ThemePlugin":{"domain":"ui"},"LoginPlugin":{"domain":"users","dependencies":["sqlite"]}},
	"domains":{"ui":{},"users":{}}
}}`

func newBackend(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc(snapshot.StatusPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(statusBody))
	})
	mux.HandleFunc(stream.EventsPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, conns
}

// waitFor polls the view until cond holds or the deadline passes.
func waitFor(t *testing.T, v *state.View, what string, cond func(state.ViewData) bool) state.ViewData {
	t.Helper()
	ch, cancel := v.Subscribe()
	defer cancel()
	deadline := time.After(3 * time.Second)
	for {
		d := v.Snapshot()
		if cond(d) {
			return d
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %s; last view %#v", what, d)
		}
	}
}

func TestSessionEndToEnd(t *testing.T) {
	srv, conns := newBackend(t)

	s, err := New(Options{
		SourceURL:         srv.URL,
		PollInterval:      time.Hour,
		ReconnectDelay:    50 * time.Millisecond,
		HighlightDuration: time.Hour,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.Start()
	defer s.Stop()

	v := s.View()
	waitFor(t, v, "initial snapshot", func(d state.ViewData) bool {
		return d.Stats.Plugins == 2 && len(d.Town) == 2
	})

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(3 * time.Second):
		t.Fatalf("stream never connected")
	}
	defer conn.Close()
	waitFor(t, v, "live indicator", func(d state.ViewData) bool { return d.Connection.Online })

	frames := []string{
		`{"type":"event","event":"ui.plugin.loaded","data":{"payload":{"message":"theme ready"}}}`,
		`{"type":"event","event":"system.log","data":{"level":"ERROR","message":"disk full"}}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	d := waitFor(t, v, "routed events", func(d state.ViewData) bool {
		return len(d.Billboard) == 2 && d.Ticker != ""
	})
	if d.Billboard[0].Name != "system.log" || d.Billboard[1].Message != "theme ready" {
		t.Fatalf("unexpected billboard %#v", d.Billboard)
	}
	if d.Ticker != "[ERROR] disk full" {
		t.Fatalf("unexpected ticker %q", d.Ticker)
	}
	if !d.Town[0].Windows[0].Active {
		t.Fatalf("expected ui window lit, got %#v", d.Town)
	}
	if d.Town[1].Windows[0].Active {
		t.Fatalf("users window should not be lit")
	}
	if !d.Domains[0].Open || d.Domains[0].Name != "ui" {
		t.Fatalf("expected ui card open, got %#v", d.Domains)
	}
}

func TestSessionReconnectsAfterDrop(t *testing.T) {
	srv, conns := newBackend(t)
	s, err := New(Options{SourceURL: srv.URL, PollInterval: time.Hour, ReconnectDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.Start()
	defer s.Stop()

	first := <-conns
	waitFor(t, s.View(), "connected", func(d state.ViewData) bool { return d.Connection.Online })
	first.Close()

	select {
	case c := <-conns:
		c.Close()
	case <-time.After(3 * time.Second):
		t.Fatalf("no reconnect after drop")
	}
}

func TestNewRejectsBadSource(t *testing.T) {
	if _, err := New(Options{SourceURL: "://nope"}); err == nil {
		t.Fatalf("expected error for malformed source")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	srv, _ := newBackend(t)
	s, err := New(Options{SourceURL: srv.URL, PollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.Start()
	s.Stop()
	s.Stop()
	s.Start()
}
