// SPDX-License-Identifier: MIT

// Package session implements the recording-session controller: the state
// machine reconciling user intent, permission acquisition, the external
// recorder lifecycle and playback resolution.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/micgw/internal/log"
	"github.com/ManuGH/micgw/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// User-facing message templates. The permission message instructs rather
// than explains: the remedy is always the same.
const (
	msgPermissionDenied = "Microphone access denied. Please enable microphone access and try again."
	msgStartFailed      = "Failed to start recording: %s"
	msgStopFailed       = "Failed to stop recording: %s"
	msgPlaybackFailed   = "Failed to prepare playback: %s"
)

var (
	// ErrAlreadyRecording rejects a start while a recording is active.
	ErrAlreadyRecording = errors.New("session: recording already in progress")
	// ErrNotRecording rejects a stop while no recording is active.
	ErrNotRecording = errors.New("session: no recording in progress")
	// ErrInitNotComplete rejects user transitions before both startup tasks
	// (permission attempt and recorder reconciliation) have resolved.
	ErrInitNotComplete = errors.New("session: initialization not complete")
)

// PermissionBroker acquires the microphone capability.
type PermissionBroker interface {
	AcquireMicrophone(ctx context.Context) error
}

// RecorderService is the native capture service.
type RecorderService interface {
	Recording(ctx context.Context) (bool, error)
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
}

// PlaybackResolver translates a storage location into a playable URL.
type PlaybackResolver interface {
	Resolve(location string) (string, error)
}

// Deps holds the controller's collaborators.
type Deps struct {
	Permission PermissionBroker
	Recorder   RecorderService
	Playback   PlaybackResolver
	Logger     zerolog.Logger
}

// Controller owns the session state. All transitions are serialized: the
// mutex is held across the collaborator call, so at most one transition is
// in flight and each resolves against the state it started from.
type Controller struct {
	mu   sync.Mutex
	deps Deps

	ready chan struct{} // closed when both init tasks have resolved

	permissionGranted bool
	recording         bool
	recordingPath     string
	playbackURL       string
	lastError         string
}

// New creates a Controller. Init must be called before user transitions are
// accepted.
func New(deps Deps) *Controller {
	return &Controller{
		deps:  deps,
		ready: make(chan struct{}),
	}
}

// Init launches the two startup tasks: the first permission attempt and the
// recorder reconciliation. They run concurrently with no ordering between
// them; user transitions are accepted once both have resolved. Init returns
// immediately.
func (c *Controller) Init(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.initPermission(ctx)
		return nil
	})
	g.Go(func() error {
		c.reconcile(ctx)
		return nil
	})
	go func() {
		_ = g.Wait()
		close(c.ready)
	}()
}

// Ready is closed once both startup tasks have resolved.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		PermissionGranted: c.permissionGranted,
		Recording:         c.recording,
		RecordingPath:     c.recordingPath,
		PlaybackURL:       c.playbackURL,
		LastError:         c.lastError,
		Phase:             phase(c.permissionGranted, c.recording),
	}
}

// RequestPermission attempts to acquire the microphone capability. Callable
// from any phase. A denial is recorded in the snapshot and returned.
func (c *Controller) RequestPermission(ctx context.Context) (Snapshot, error) {
	if err := c.waitReady(ctx); err != nil {
		return c.Snapshot(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.acquirePermissionLocked(ctx)
	return c.snapshotLocked(), err
}

// Start begins a new recording. From Idle it invokes the recorder; from
// NoPermission it only attempts permission acquisition and stops on grant —
// the user must invoke Start again. This avoids recording in the same
// gesture that granted access.
func (c *Controller) Start(ctx context.Context) (Snapshot, error) {
	if err := c.waitReady(ctx); err != nil {
		return c.Snapshot(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := log.WithContext(ctx, c.deps.Logger)

	if c.recording {
		return c.snapshotLocked(), ErrAlreadyRecording
	}

	if !c.permissionGranted {
		err := c.acquirePermissionLocked(ctx)
		return c.snapshotLocked(), err
	}

	// Discard any stale playback target before the new recording exists.
	c.lastError = ""
	c.playbackURL = ""

	logger.Info().
		Str(log.FieldEvent, "session.start.attempt").
		Msg("starting recording")

	path, err := c.deps.Recorder.Start(ctx)
	if err != nil {
		c.lastError = fmt.Sprintf(msgStartFailed, reason(err))
		metrics.IncSessionTransition("start", "failure")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "session.start.failed").
			Msg("recorder start failed")
		return c.snapshotLocked(), err
	}

	c.recording = true
	c.recordingPath = path
	metrics.IncSessionTransition("start", "success")
	metrics.SetRecording(true)
	logger.Info().
		Str(log.FieldEvent, "session.start.ok").
		Str(log.FieldPath, path).
		Msg("recording started")
	return c.snapshotLocked(), nil
}

// Stop finishes the active recording. On success the recorder's returned
// location is adopted unconditionally; the provisional path cached at start
// is discarded. A failed playback translation does not undo the stop.
func (c *Controller) Stop(ctx context.Context) (Snapshot, error) {
	if err := c.waitReady(ctx); err != nil {
		return c.Snapshot(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := log.WithContext(ctx, c.deps.Logger)

	if !c.recording {
		return c.snapshotLocked(), ErrNotRecording
	}

	c.lastError = ""

	logger.Info().
		Str(log.FieldEvent, "session.stop.attempt").
		Msg("stopping recording")

	path, err := c.deps.Recorder.Stop(ctx)
	if err != nil {
		// The recorder's true status is unknown; do not guess. The session
		// stays in Recording until a stop succeeds.
		c.lastError = fmt.Sprintf(msgStopFailed, reason(err))
		metrics.IncSessionTransition("stop", "failure")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "session.stop.failed").
			Msg("recorder stop failed")
		return c.snapshotLocked(), err
	}

	c.recording = false
	c.recordingPath = path
	metrics.IncSessionTransition("stop", "success")
	metrics.SetRecording(false)
	logger.Info().
		Str(log.FieldEvent, "session.stop.ok").
		Str(log.FieldPath, path).
		Msg("recording stopped")

	url, err := c.deps.Playback.Resolve(path)
	if err != nil {
		// The recording exists; only preview is unavailable.
		c.playbackURL = ""
		c.lastError = fmt.Sprintf(msgPlaybackFailed, reason(err))
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "session.playback.unavailable").
			Str(log.FieldPath, path).
			Msg("playback resolution failed after stop")
		return c.snapshotLocked(), nil
	}

	c.playbackURL = url
	logger.Info().
		Str(log.FieldEvent, "session.playback.ready").
		Str(log.FieldPlaybackURL, url).
		Msg("playback resource ready")
	return c.snapshotLocked(), nil
}

// acquirePermissionLocked runs a permission attempt against the broker and
// records the outcome. Caller holds the mutex.
func (c *Controller) acquirePermissionLocked(ctx context.Context) error {
	logger := log.WithContext(ctx, c.deps.Logger)

	c.lastError = ""

	logger.Info().
		Str(log.FieldEvent, "session.permission.attempt").
		Msg("requesting microphone access")

	err := c.deps.Permission.AcquireMicrophone(ctx)
	c.recordPermissionLocked(logger, err)
	return err
}

// recordPermissionLocked records a permission attempt outcome. Caller holds
// the mutex.
func (c *Controller) recordPermissionLocked(logger zerolog.Logger, err error) {
	if err != nil {
		c.permissionGranted = false
		c.lastError = msgPermissionDenied
		metrics.IncSessionTransition("permission", "failure")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "session.permission.denied").
			Msg("microphone access not granted")
		return
	}

	c.permissionGranted = true
	metrics.IncSessionTransition("permission", "success")
	logger.Info().
		Str(log.FieldEvent, "session.permission.granted").
		Msg("microphone access granted")
}

// initPermission is the startup-time permission attempt. The broker call runs
// outside the mutex, like reconcile: a slow broker must not block Snapshot or
// the ready-gate rejections of user transitions.
func (c *Controller) initPermission(ctx context.Context) {
	logger := log.WithContext(ctx, c.deps.Logger)

	logger.Info().
		Str(log.FieldEvent, "session.permission.attempt").
		Msg("requesting microphone access")

	err := c.deps.Permission.AcquireMicrophone(ctx)

	c.mu.Lock()
	c.recordPermissionLocked(logger, err)
	c.mu.Unlock()
}

// reconcile aligns local state with the recorder's true status. A recorder
// already running from a prior session moves the controller straight to
// Recording. Failures are logged, never surfaced: the query is not
// user-initiated and must not block the UI.
func (c *Controller) reconcile(ctx context.Context) {
	logger := log.WithContext(ctx, c.deps.Logger)

	active, err := c.deps.Recorder.Recording(ctx)
	if err != nil {
		metrics.IncSessionTransition("reconcile", "failure")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "session.reconcile.failed").
			Msg("could not query recorder state at startup")
		return
	}

	c.mu.Lock()
	c.recording = active
	c.mu.Unlock()

	metrics.IncSessionTransition("reconcile", "success")
	metrics.SetRecording(active)
	logger.Info().
		Str(log.FieldEvent, "session.reconcile.ok").
		Bool("recording", active).
		Msg("reconciled with recorder state")
}

// waitReady blocks until both startup tasks have resolved or ctx is done.
func (c *Controller) waitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrInitNotComplete, ctx.Err())
	}
}

// reason extracts a short human-readable cause from a collaborator error,
// preferring the service-reported detail when the collaborator exposes one.
func reason(err error) string {
	var r interface{ Reason() string }
	if errors.As(err, &r) {
		return r.Reason()
	}
	return err.Error()
}
