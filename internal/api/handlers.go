// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/ManuGH/micgw/internal/log"
	"github.com/ManuGH/micgw/internal/session"
)

// sessionErrorResponse carries the rejection cause together with the state
// the UI should render.
type sessionErrorResponse struct {
	Error   string           `json:"error"`
	Session session.Snapshot `json:"session"`
}

// handleSnapshot returns the current session state.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handlePermission triggers a microphone permission attempt. A denial is a
// normal outcome: the snapshot carries the user-facing message either way.
func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.RequestPermission(r.Context())
	if err != nil {
		s.writeSessionError(w, r, "permission", snap, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleStart begins a new recording.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Start(r.Context())
	if err != nil {
		s.writeSessionError(w, r, "start", snap, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleStop finishes the active recording. A playback translation failure
// after a successful stop is not an error here; the snapshot carries it.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Stop(r.Context())
	if err != nil {
		s.writeSessionError(w, r, "stop", snap, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeSessionError responds with the snapshot alongside the mapped status so
// the UI can render state and error from one body.
func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, op string, snap session.Snapshot, err error) {
	status := statusForSessionError(err)
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Warn().
		Err(err).
		Str(log.FieldEvent, "session.request.failed").
		Str(log.FieldOp, op).
		Int("status", status).
		Msg("session transition rejected")
	writeJSON(w, status, sessionErrorResponse{Error: err.Error(), Session: snap})
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := s.hm.Health(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// handleReadyz is the readiness probe. Not-ready maps to 503 so orchestrators
// hold traffic.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := s.hm.Ready(r.Context())
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
