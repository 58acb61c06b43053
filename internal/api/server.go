// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the gateway: the session
// endpoints the UI shell drives, the media file server playback URLs point
// at, and the health probes.
package api

import (
	"net/http"

	"github.com/ManuGH/micgw/internal/config"
	"github.com/ManuGH/micgw/internal/health"
	"github.com/ManuGH/micgw/internal/media"
	"github.com/ManuGH/micgw/internal/session"
)

// Server represents the HTTP API server for the gateway.
type Server struct {
	cfg        config.AppConfig
	controller *session.Controller
	resolver   *media.Resolver
	hm         *health.Manager
}

// New creates the API server around the session controller.
func New(cfg config.AppConfig, controller *session.Controller, resolver *media.Resolver, hm *health.Manager) *Server {
	return &Server{
		cfg:        cfg,
		controller: controller,
		resolver:   resolver,
		hm:         hm,
	}
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// HealthManager exposes the health manager for checker registration.
func (s *Server) HealthManager() *health.Manager {
	return s.hm
}
