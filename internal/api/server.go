// Package api exposes the campaign engine over HTTP: recipients, groups,
// imports, templates, campaign lifecycle and analytics under /api, plus the
// tracking endpoints when they are served by the same process.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/phishsim/internal/config"
	"github.com/ignite/phishsim/internal/service/analytics"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
	"github.com/ignite/phishsim/internal/storage"
)

// Services bundles everything the handlers call. Archive, Tracking and
// Health are optional.
type Services struct {
	Recipients *recipient.Service
	Templates  *template.Service
	Campaigns  *campaign.Service
	Events     *engagement.Service
	Analytics  *analytics.Service
	Archive    *storage.Archiver
	Tracking   http.Handler
	Health     *HealthChecker
}

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, svc Services) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(NewHandlers(svc), cfg.AllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Imports upload whole CSV files; everything else is small.
		ReadTimeout:       2 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
