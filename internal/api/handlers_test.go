// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/micgw/internal/config"
	"github.com/ManuGH/micgw/internal/health"
	"github.com/ManuGH/micgw/internal/media"
	"github.com/ManuGH/micgw/internal/permission"
	"github.com/ManuGH/micgw/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBroker struct {
	err error
}

func (b *stubBroker) AcquireMicrophone(context.Context) error { return b.err }

type stubRecorder struct {
	active   bool
	startErr error
	stopErr  error
	path     string
}

func (r *stubRecorder) Recording(context.Context) (bool, error) { return r.active, nil }

func (r *stubRecorder) Start(context.Context) (string, error) {
	if r.startErr != nil {
		return "", r.startErr
	}
	return r.path, nil
}

func (r *stubRecorder) Stop(context.Context) (string, error) {
	if r.stopErr != nil {
		return "", r.stopErr
	}
	return r.path, nil
}

type stubResolver struct {
	url string
	err error
}

func (p *stubResolver) Resolve(string) (string, error) { return p.url, p.err }

func newTestServer(t *testing.T, broker session.PermissionBroker, rec session.RecorderService, res session.PlaybackResolver) *Server {
	t.Helper()

	ctrl := session.New(session.Deps{
		Permission: broker,
		Recorder:   rec,
		Playback:   res,
		Logger:     zerolog.Nop(),
	})
	ctrl.Init(context.Background())
	<-ctrl.Ready()

	cfg := config.Defaults()
	mediaRes := media.NewResolver(nil, cfg.MediaBase)
	return New(cfg, ctrl, mediaRes, health.NewManager("test"))
}

func TestGetSession(t *testing.T) {
	s := newTestServer(t,
		&stubBroker{},
		&stubRecorder{path: "/recordings/a.wav"},
		&stubResolver{url: "/media/a.wav"},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.True(t, snap.PermissionGranted)
	assert.False(t, snap.Recording)
}

func TestStartStopFlow(t *testing.T) {
	rec := &stubRecorder{path: "/recordings/take.wav"}
	s := newTestServer(t,
		&stubBroker{},
		rec,
		&stubResolver{url: "http://127.0.0.1:8090/media/take.wav"},
	)
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/start", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.True(t, snap.Recording)
	assert.Equal(t, "/recordings/take.wav", snap.RecordingPath)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/stop", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.False(t, snap.Recording)
	assert.Equal(t, "http://127.0.0.1:8090/media/take.wav", snap.PlaybackURL)
}

func TestStartWhileRecordingConflict(t *testing.T) {
	rec := &stubRecorder{path: "/recordings/take.wav"}
	s := newTestServer(t, &stubBroker{}, rec, &stubResolver{url: "/media/take.wav"})
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/start", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/start", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body sessionErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.True(t, body.Session.Recording)
}

func TestStopWhileIdleConflict(t *testing.T) {
	s := newTestServer(t, &stubBroker{}, &stubRecorder{}, &stubResolver{})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/stop", nil))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestPermissionDeniedForbidden(t *testing.T) {
	s := newTestServer(t,
		&stubBroker{err: permission.ErrDenied},
		&stubRecorder{},
		&stubResolver{},
	)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/permission", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	var body sessionErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Session.PermissionGranted)
	assert.Contains(t, body.Session.LastError, "Microphone access denied")
}

func TestStartFailureBadGateway(t *testing.T) {
	s := newTestServer(t,
		&stubBroker{},
		&stubRecorder{startErr: errors.New("device unavailable")},
		&stubResolver{},
	)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/session/start", nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var body sessionErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Session.Recording)
	assert.Contains(t, body.Session.LastError, "Failed to start recording")
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, &stubBroker{}, &stubRecorder{}, &stubResolver{})
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestReadyzUnhealthyChecker(t *testing.T) {
	s := newTestServer(t, &stubBroker{}, &stubRecorder{}, &stubResolver{})
	s.HealthManager().RegisterChecker(health.NewRecorderChecker(func(context.Context) error {
		return errors.New("connection refused")
	}))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp health.ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
}

func TestRateLimitExceeded(t *testing.T) {
	s := newTestServer(t, &stubBroker{}, &stubRecorder{}, &stubResolver{})
	h := s.Handler()

	limited := false
	for i := 0; i < s.cfg.RateLimitPerMinute+5; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			assert.NotEmpty(t, rr.Header().Get("Retry-After"))
			break
		}
	}
	assert.True(t, limited, "expected a 429 after exhausting the per-minute budget")
}
