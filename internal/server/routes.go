// Package server wires HTTP handlers into a ServeMux for the LAN chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/Tyrowin/lanchat/internal/metrics"
	"github.com/Tyrowin/lanchat/internal/upload"
)

// SetupRoutes configures the HTTP surface of the server: the WebSocket
// endpoint, file upload and download, health, metrics, and the test page.
// Every route is wrapped in CORS driven by the same origin policy as the
// WebSocket upgrade.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", s.TestPageHandler)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/upload", s.uploads.Upload)
	mux.HandleFunc("GET /download/{filename}", s.uploads.Download)
	mux.Handle(upload.URLPrefix, s.uploads.Files())

	c := cors.New(cors.Options{
		AllowOriginFunc: s.origins.allowsOrigin,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"*"},
	})
	return c.Handler(mux)
}
