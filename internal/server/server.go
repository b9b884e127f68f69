// Package server implements the HTTP and WebSocket surface of the LAN chat
// hub and wires it to the registries, router, and connection lifecycle.
package server

import (
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/lanchat/internal/registry"
	"github.com/Tyrowin/lanchat/internal/router"
	"github.com/Tyrowin/lanchat/internal/upload"
)

// Server owns one hub and everything it routes through.
type Server struct {
	config    Config
	logger    *slog.Logger
	conns     *registry.Connections
	groups    *registry.Groups
	router    *router.Router
	lifecycle *Lifecycle
	hub       *Hub
	origins   *originPolicy
	upgrader  websocket.Upgrader
	uploads   *upload.Handlers
}

// NewServer builds a Server from cfg. The upload directory is created if it
// does not exist.
func NewServer(cfg Config, logger *slog.Logger) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if logger == nil {
		logger = NewLogger(cfg.Env)
	}

	store, err := upload.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload store: %w", err)
	}

	s := &Server{
		config: cfg,
		logger: logger,
		conns:  registry.NewConnections(),
		groups: registry.NewGroups(),
		hub:    NewHub(logger.With("component", "hub")),
	}
	s.hub.sendBuffer = cfg.SendBufferSize
	s.router = router.New(s.conns, s.groups, s.hub, logger.With("component", "router"))
	s.lifecycle = NewLifecycle(s.conns, s.groups, s.router, logger.With("component", "lifecycle"))
	s.hub.lifecycle = s.lifecycle
	s.origins = newOriginPolicy(cfg.AllowedOrigins, logger)
	s.upgrader = newUpgrader(s.origins)
	s.uploads = upload.NewHandlers(store, cfg.MaxUploadSize, logger.With("component", "upload"))

	return s, nil
}

// Config returns the sanitized configuration the server was built with.
func (s *Server) Config() Config {
	return s.config
}

// Hub returns the server's hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Lifecycle returns the connection lifecycle.
func (s *Server) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// Connections returns the live connection registry.
func (s *Server) Connections() *registry.Connections {
	return s.conns
}

// Groups returns the group registry.
func (s *Server) Groups() *registry.Groups {
	return s.groups
}

// StartHub starts the hub loop in its own goroutine. It must be called before
// the HTTP server accepts WebSocket connections.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("Hub started and ready to manage WebSocket connections")
}
