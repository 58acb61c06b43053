// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimitPerMinute))

		r.Get("/session", s.handleSnapshot)
		r.Post("/session/permission", s.handlePermission)
		r.Post("/session/start", s.handleStart)
		r.Post("/session/stop", s.handleStop)
	})

	r.Handle("/media/*", s.mediaFileServer())

	return r
}
