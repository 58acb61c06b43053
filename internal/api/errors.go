// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/micgw/internal/permission"
	"github.com/ManuGH/micgw/internal/recorder"
	"github.com/ManuGH/micgw/internal/session"
)

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusForSessionError maps controller errors onto HTTP statuses. Contract
// rejections are conflicts, denied permission is forbidden, an incomplete
// startup is unavailable, and everything else is a collaborator fault.
func statusForSessionError(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, permission.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrInitNotComplete),
		errors.Is(err, permission.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable
	case recorder.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
