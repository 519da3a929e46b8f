// Package server is the development server: browsers subscribe to build
// results over a websocket and Prometheus scrapes build metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/source"
	"github.com/conneroisu/assetkit/internal/version"
)

// Message types sent to browsers.
const (
	MessageCSSUpdate  = "css_update"
	MessageJSUpdate   = "js_update"
	MessageBuildError = "build_error"
)

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Server pushes build results to connected browsers.
type Server struct {
	config     config.ServerConfig
	logger     logging.Logger
	metrics    *build.BuildMetrics
	gatherer   prom.Gatherer
	httpServer *http.Server

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	done         chan struct{}
	closeOnce    sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a Server. gatherer backs /metrics; nil uses the default
// Prometheus registry.
func New(cfg config.ServerConfig, metrics *build.BuildMetrics, gatherer prom.Gatherer, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if gatherer == nil {
		gatherer = prom.DefaultGatherer
	}
	if metrics == nil {
		metrics = build.NewBuildMetrics()
	}

	return &Server{
		config:     cfg,
		logger:     logger.WithComponent("server"),
		metrics:    metrics,
		gatherer:   gatherer,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Handler returns the server routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/build/metrics", s.handleBuildMetrics)

	return mux
}

// Run starts the websocket hub. It returns when ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.runWebSocketHub(ctx)
}

// Start serves HTTP on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Server shutdown failed")
		}
	}()

	s.logger.Info(ctx, "Dev server listening", "addr", listener.Addr().String())
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// HandleBuildResult broadcasts r. It is shaped as a build.BuildCallback.
func (s *Server) HandleBuildResult(r build.Result) {
	msg := UpdateMessage{Timestamp: time.Now()}

	switch {
	case r.Err != nil:
		msg.Type = MessageBuildError
		msg.Target = r.Module
		msg.Content = r.Err.Error()
	case r.Kind == source.KindScript:
		msg.Type = MessageJSUpdate
		msg.Target = primaryArtifact(r)
	default:
		msg.Type = MessageCSSUpdate
		msg.Target = primaryArtifact(r)
	}

	s.Broadcast(msg)
}

func primaryArtifact(r build.Result) string {
	for _, artifact := range r.Artifacts {
		if filepath.Ext(artifact) != ".map" {
			return filepath.Base(artifact)
		}
	}

	return filepath.Base(source.ArtifactPath("", r.Kind, r.Module))
}

// Broadcast queues msg for every connected client. It drops msg once the
// hub stopped.
func (s *Server) Broadcast(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(context.Background(), err, "Cannot encode update message")
		return
	}

	select {
	case s.broadcast <- data:
	case <-s.done:
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"version": version.GetShortVersion(),
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleBuildMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.metrics.GetSnapshot()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"total_builds":        snapshot.TotalBuilds,
		"successful_builds":   snapshot.SuccessfulBuilds,
		"failed_builds":       snapshot.FailedBuilds,
		"coalesced":           snapshot.Coalesced,
		"average_duration_ms": snapshot.AverageDuration.Milliseconds(),
		"success_rate":        s.metrics.GetSuccessRate(),
	})
}
