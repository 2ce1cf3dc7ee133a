// Package server previews a static site the way a browser would see it once
// its includes have run.
//
// HTML pages are loaded from the site root, have their placeholders replaced
// by the include engine, and are served with a small live-reload client.
// Everything else is served as is. A page whose includes fail is answered with
// an error overlay. Connected browsers are told over a websocket when a page
// finished its includes and when watched files change.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/stitch/internal/config"
	"github.com/conneroisu/stitch/internal/fetch"
	"github.com/conneroisu/stitch/internal/logging"
	"github.com/conneroisu/stitch/internal/ready"
	"github.com/conneroisu/stitch/internal/version"
	"github.com/conneroisu/stitch/internal/watcher"
)

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves a site with includes applied and live reload.
type PreviewServer struct {
	config       *config.Config
	site         http.FileSystem
	remote       fetch.Fetcher
	registry     *ready.Registry
	watcher      *watcher.FileWatcher
	logger       logging.Logger
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	done         chan struct{}
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Count     int       `json:"count,omitempty"`
	Files     []string  `json:"files,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a preview server for cfg.
func New(cfg *config.Config, logger logging.Logger) (*PreviewServer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("server")

	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &PreviewServer{
		config: cfg,
		site:   http.Dir(cfg.Site.Root),
		remote: fetch.New(fetch.Options{
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
			FileRoot:  cfg.Site.Root,
		}),
		registry:   ready.NewRegistry(logger),
		watcher:    fileWatcher,
		logger:     logger,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}, nil
}

// Registry returns the readiness registry shared by every page render.
func (s *PreviewServer) Registry() *ready.Registry {
	return s.registry
}

// Handler returns the server's routes wrapped in its middleware.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleSite)
	return s.addMiddleware(mux)
}

// Run starts the websocket hub, the ready event relay and the file watcher.
// It returns at once; everything stops when ctx is done.
func (s *PreviewServer) Run(ctx context.Context) {
	events, cancel := s.registry.Subscribe(16)
	go s.runWebSocketHub(ctx)
	go s.relayReadyEvents(ctx, events, cancel)
	s.setupFileWatcher(ctx)
}

// Start runs the background workers and serves HTTP until Shutdown.
func (s *PreviewServer) Start(ctx context.Context) error {
	s.Run(ctx)

	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Preview server listening", "addr", "http://"+addr, "root", s.config.Site.Root)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) {
	root := s.config.Site.Root
	s.watcher.AddFilter(watcher.GlobFilter(root, s.config.Watch.Patterns, s.config.Watch.Ignore))
	s.watcher.SkipDirs(watcher.IgnoreFilter(root, s.config.Watch.Ignore))
	s.watcher.AddHandler(s.handleFileChange)

	if err := s.watcher.AddRecursive(root); err != nil {
		s.logger.Warn(ctx, err, "Failed to watch site root", "root", root)
		return
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "Failed to start file watcher")
	}
}

func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	files := make([]string, len(events))
	for i, event := range events {
		files[i] = event.Path
		s.logger.Debug(context.Background(), "File changed", "path", event.Path, "type", event.Type.String())
	}
	s.broadcastMessage(UpdateMessage{Type: "reload", Files: files, Timestamp: time.Now()})
	return nil
}

// relayReadyEvents forwards every includes:ready event to connected clients.
func (s *PreviewServer) relayReadyEvents(ctx context.Context, events <-chan ready.Event, cancel func()) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.broadcastMessage(UpdateMessage{
				Type:      ev.Name,
				RunID:     ev.RunID,
				Count:     ev.Count,
				Timestamp: ev.Timestamp,
			})
		}
	}
}

func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *PreviewServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	return false
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Failed to marshal message")
		data = []byte(`{"type":"reload"}`)
	}

	select {
	case s.broadcast <- data:
	case <-s.done:
	}
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		close(s.done)

		if s.watcher != nil {
			_ = s.watcher.Stop()
		}

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.clientsMutex.RLock()
	clients := len(s.clients)
	s.clientsMutex.RUnlock()

	var lastRun interface{}
	if tok := s.registry.Current(); tok != nil {
		run := map[string]interface{}{"id": tok.ID, "settled": tok.Settled()}
		if err := tok.Err(); err != nil {
			run["error"] = err.Error()
		}
		lastRun = run
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"site_root":  s.config.Site.Root,
		"clients":    clients,
		"last_run":   lastRun,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
