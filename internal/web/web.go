package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"townwatch/internal/state"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Refresher triggers an immediate snapshot poll.
type Refresher interface {
	RefreshNow()
}

// Server serves the web dashboard and its JSON API.
type Server struct {
	view      *state.View
	refresher Refresher
	port      string
	version   string

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan []byte

	httpServer *http.Server
	done       chan struct{}
	wg         sync.WaitGroup
}

// New creates a web server for a view. refresher may be nil.
func New(view *state.View, refresher Refresher, port string, version string) *Server {
	s := &Server{
		view:      view,
		refresher: refresher,
		port:      port,
		version:   version,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	s.wg.Add(2)
	go s.handleBroadcasts()
	go s.monitorViewChanges()

	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("/api/view", s.handleView)
	mux.HandleFunc("/api/domains/toggle", s.handleDomainToggle)
	mux.HandleFunc("/api/refresh", s.handleRefresh)

	mux.HandleFunc("/", s.handleUI)
	return mux
}

// Start listens on the configured port in a goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("Web UI listening", "address", addr, "component", "Web")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web server failed", "error", err, "component", "Web")
		}
	}()
	return nil
}

// Shutdown stops the listener, disconnects clients and stops broadcasting.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
	return err
}

// handleWebSocket upgrades the connection, sends the current view and then
// keeps the client registered until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err, "component", "Web")
		return
	}
	defer conn.Close()

	// Initial view and registration happen under the clients lock so no
	// broadcast is written concurrently or missed in between.
	s.clientsMu.Lock()
	if data, err := json.Marshal(s.view.Snapshot()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.clientsMu.Unlock()
			return
		}
	}
	s.clients[conn] = true
	s.clientsMu.Unlock()

	slog.Debug("WebSocket client connected", "component", "Web")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()

	slog.Debug("WebSocket client disconnected", "component", "Web")
}

// handleBroadcasts sends view updates to all connected WebSocket clients.
func (s *Server) handleBroadcasts() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case message := <-s.broadcast:
			s.clientsMu.Lock()
			for client := range s.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(s.clients, client)
				}
			}
			s.clientsMu.Unlock()
		}
	}
}

// monitorViewChanges broadcasts the view on every change, with a 1-second
// ticker as a fallback for coalesced notifications.
func (s *Server) monitorViewChanges() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	changeCh, release := s.view.Subscribe()
	defer release()

	var lastRevision uint64
	sent := false
	maybeBroadcast := func() {
		snapshot := s.view.Snapshot()
		if sent && snapshot.Revision == lastRevision {
			return
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			slog.Error("Failed to encode view", "error", err, "component", "Web")
			return
		}
		lastRevision = snapshot.Revision
		sent = true
		select {
		case s.broadcast <- data:
		default:
		}
	}

	for {
		select {
		case <-s.done:
			return
		case <-changeCh:
			maybeBroadcast()
		case <-ticker.C:
			maybeBroadcast()
		}
	}
}
