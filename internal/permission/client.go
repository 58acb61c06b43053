// SPDX-License-Identifier: MIT

// Package permission implements the client for the host media-permission
// broker. Acquisition only proves grant or denial: the capability lease is
// released immediately, the native recorder holds its own grant.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/micgw/internal/log"
	"github.com/ManuGH/micgw/internal/metrics"
)

var (
	// ErrDenied is returned when the user or platform policy refuses
	// microphone access.
	ErrDenied = errors.New("permission: microphone access denied")
	// ErrBrokerUnavailable is returned on transport failures or broker faults.
	ErrBrokerUnavailable = errors.New("permission: broker unreachable or failed")
)

// Options configures a Client.
type Options struct {
	// Timeout bounds the acquisition call. Zero means no client timeout;
	// a grant may wait on user interaction.
	Timeout time.Duration
}

// Client talks to the host media-permission broker.
type Client struct {
	base string
	http *http.Client
}

// New creates a Client for the given broker base URL.
func New(base string, opts Options) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: opts.Timeout},
	}
}

// AcquireMicrophone requests the microphone capability. The returned lease is
// released before AcquireMicrophone returns; a nil error means the capability
// is currently grantable.
func (c *Client) AcquireMicrophone(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/permission/microphone", nil)
	if err != nil {
		metrics.IncPermissionRequest("error")
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		metrics.IncPermissionRequest("error")
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		metrics.IncPermissionRequest("denied")
		return ErrDenied
	default:
		metrics.IncPermissionRequest("error")
		return fmt.Errorf("%w: HTTP %d", ErrBrokerUnavailable, res.StatusCode)
	}

	var p struct {
		Lease string `json:"lease"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<10)).Decode(&p); err != nil {
		metrics.IncPermissionRequest("error")
		return fmt.Errorf("%w: malformed grant response: %v", ErrBrokerUnavailable, err)
	}

	if p.Lease != "" {
		c.release(ctx, p.Lease)
	}
	metrics.IncPermissionRequest("granted")
	return nil
}

// release frees the capability lease. Best effort: a failed release does not
// invalidate the grant decision.
func (c *Client) release(ctx context.Context, lease string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.base+"/api/permission/lease/"+url.PathEscape(lease), nil)
	if err != nil {
		return
	}
	res, err := c.http.Do(req)
	if err != nil {
		logger := log.WithComponent("permission")
		logger.Warn().
			Err(err).
			Str(log.FieldLeaseID, lease).
			Msg("failed to release capability lease")
		return
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
}
