// SPDX-License-Identifier: MIT

// Package recorder implements the HTTP client for the native audio capture
// service. The gateway never captures audio itself; the native service owns
// the device, the encoder and the artifact on disk.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/micgw/internal/metrics"
)

// Options configures a Client.
type Options struct {
	// ProbeTimeout bounds the status query. Zero means no client timeout.
	ProbeTimeout time.Duration
	// CallTimeout bounds start/stop calls. Zero means no client timeout:
	// an in-flight start or stop is never abandoned by the gateway.
	CallTimeout time.Duration
}

// Client talks to the native recorder service.
type Client struct {
	base  string
	probe *http.Client
	call  *http.Client
}

// New creates a Client for the given base URL.
func New(base string, opts Options) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		probe: &http.Client{Timeout: opts.ProbeTimeout},
		call:  &http.Client{Timeout: opts.CallTimeout},
	}
}

// Recording reports whether the native service currently has an active
// recording. Used for startup reconciliation and readiness checks.
func (c *Client) Recording(ctx context.Context) (bool, error) {
	started := time.Now()
	var p struct {
		Recording bool `json:"recording"`
	}
	err := c.do(ctx, c.probe, http.MethodGet, "/api/recorder/status", "status", &p)
	metrics.ObserveRecorderRequest("status", outcome(err), time.Since(started))
	if err != nil {
		return false, err
	}
	return p.Recording, nil
}

// Start asks the native service to begin a new recording. On success it
// returns the storage location the service will write to. The location is
// provisional: the service may finalize the artifact under a different path,
// reported by Stop.
func (c *Client) Start(ctx context.Context) (string, error) {
	started := time.Now()
	var p struct {
		Path string `json:"path"`
	}
	err := c.do(ctx, c.call, http.MethodPost, "/api/recorder/start", "start", &p)
	metrics.ObserveRecorderRequest("start", outcome(err), time.Since(started))
	if err != nil {
		return "", err
	}
	if p.Path == "" {
		return "", &CallError{Sentinel: ErrBadResponse, Operation: "start", Detail: "missing path in response"}
	}
	return p.Path, nil
}

// Stop asks the native service to finish the active recording and returns
// the final storage location. The returned path is authoritative and may
// differ from the one reported by Start.
func (c *Client) Stop(ctx context.Context) (string, error) {
	started := time.Now()
	var p struct {
		Path string `json:"path"`
	}
	err := c.do(ctx, c.call, http.MethodPost, "/api/recorder/stop", "stop", &p)
	metrics.ObserveRecorderRequest("stop", outcome(err), time.Since(started))
	if err != nil {
		return "", err
	}
	if p.Path == "" {
		return "", &CallError{Sentinel: ErrBadResponse, Operation: "stop", Detail: "missing path in response"}
	}
	return p.Path, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return &CallError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	res, err := hc.Do(req)
	if err != nil {
		return &CallError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return c.statusError(op, res)
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return &CallError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return nil
}

// statusError maps non-200 responses to sentinel errors, preserving the
// service-reported detail for user-facing messages.
func (c *Client) statusError(op string, res *http.Response) error {
	detail := ""
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<10)).Decode(&body); err == nil {
		detail = body.Error
	}

	sentinel := ErrBadResponse
	switch {
	case res.StatusCode == http.StatusConflict:
		if op == "stop" {
			sentinel = ErrNotRecording
		} else {
			sentinel = ErrBusy
		}
	case res.StatusCode >= 500:
		sentinel = ErrInternal
	}
	return &CallError{Sentinel: sentinel, Operation: op, Status: res.StatusCode, Detail: detail}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// IsConflict reports whether err is a state conflict the caller provoked
// (start while busy, stop while idle) rather than a service fault.
func IsConflict(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrNotRecording)
}
