// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubBroker struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (b *stubBroker) AcquireMicrophone(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.err
}

func (b *stubBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type stubRecorder struct {
	mu sync.Mutex

	active    bool
	stateErr  error
	startPath string
	startErr  error
	stopPath  string
	stopErr   error

	startCalls int
	stopCalls  int
}

func (r *stubRecorder) Recording(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.stateErr
}

func (r *stubRecorder) Start(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	return r.startPath, r.startErr
}

func (r *stubRecorder) Stop(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	return r.stopPath, r.stopErr
}

type stubResolver struct {
	url string
	err error
}

func (p *stubResolver) Resolve(string) (string, error) {
	return p.url, p.err
}

// newReadyController builds a controller from the stubs, runs Init and waits
// for both startup tasks to resolve.
func newReadyController(t *testing.T, broker *stubBroker, rec *stubRecorder, res *stubResolver) *Controller {
	t.Helper()
	c := New(Deps{
		Permission: broker,
		Recorder:   rec,
		Playback:   res,
		Logger:     zerolog.Nop(),
	})
	c.Init(context.Background())
	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("controller init did not complete")
	}
	return c
}

// checkInvariant asserts the core state invariant: a playback URL exists only
// once a recording location is known and recording has fully stopped.
func checkInvariant(t *testing.T, s Snapshot) {
	t.Helper()
	if s.PlaybackURL != "" {
		assert.NotEmpty(t, s.RecordingPath, "playback URL without recording location")
		assert.False(t, s.Recording, "playback URL while recording")
	}
}

func TestPermissionDenied(t *testing.T) {
	broker := &stubBroker{err: errors.New("user declined")}
	c := newReadyController(t, broker, &stubRecorder{}, &stubResolver{})

	snap, err := c.RequestPermission(context.Background())
	require.Error(t, err)
	checkInvariant(t, snap)

	assert.False(t, snap.PermissionGranted)
	assert.Equal(t, PhaseNoPermission, snap.Phase)
	assert.Equal(t, msgPermissionDenied, snap.LastError)
}

func TestGrantStartStop(t *testing.T) {
	rec := &stubRecorder{startPath: "/tmp/a.wav", stopPath: "/tmp/a.wav"}
	res := &stubResolver{url: "/media/a.wav"}
	c := newReadyController(t, &stubBroker{}, rec, res)

	snap := c.Snapshot()
	require.True(t, snap.PermissionGranted, "init should have acquired permission")
	require.Equal(t, PhaseIdle, snap.Phase)

	snap, err := c.Start(context.Background())
	require.NoError(t, err)
	checkInvariant(t, snap)
	assert.True(t, snap.Recording)
	assert.Equal(t, "/tmp/a.wav", snap.RecordingPath)
	assert.Equal(t, PhaseRecording, snap.Phase)

	snap, err = c.Stop(context.Background())
	require.NoError(t, err)
	checkInvariant(t, snap)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, "/tmp/a.wav", snap.RecordingPath)
	assert.Equal(t, "/media/a.wav", snap.PlaybackURL)
	assert.Empty(t, snap.LastError)
}

func TestStartFailure_DeviceBusy(t *testing.T) {
	rec := &stubRecorder{startErr: errors.New("device busy")}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{})

	snap, err := c.Start(context.Background())
	require.Error(t, err)
	checkInvariant(t, snap)

	assert.False(t, snap.Recording)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, "Failed to start recording: device busy", snap.LastError)
}

func TestStopFailure_KeepsRecording(t *testing.T) {
	rec := &stubRecorder{startPath: "/tmp/a.wav", stopErr: errors.New("receiver gone")}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{})

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	snap, err := c.Stop(context.Background())
	require.Error(t, err)
	checkInvariant(t, snap)

	// The recorder's true status is unknown: stay in Recording, keep the
	// provisional location.
	assert.True(t, snap.Recording)
	assert.Equal(t, PhaseRecording, snap.Phase)
	assert.Equal(t, "/tmp/a.wav", snap.RecordingPath)
	assert.Equal(t, "Failed to stop recording: receiver gone", snap.LastError)
}

func TestStopSucceeds_PlaybackResolutionFails(t *testing.T) {
	rec := &stubRecorder{startPath: "/tmp/a.wav", stopPath: "/tmp/a.wav"}
	res := &stubResolver{err: errors.New("file not accessible")}
	c := newReadyController(t, &stubBroker{}, rec, res)

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	snap, err := c.Stop(context.Background())
	require.NoError(t, err, "a failed translation must not fail the stop")
	checkInvariant(t, snap)

	assert.False(t, snap.Recording)
	assert.Equal(t, "/tmp/a.wav", snap.RecordingPath)
	assert.Empty(t, snap.PlaybackURL)
	assert.Equal(t, "Failed to prepare playback: file not accessible", snap.LastError)
}

func TestStopAdoptsFinalPath(t *testing.T) {
	rec := &stubRecorder{startPath: "/tmp/a.partial.wav", stopPath: "/tmp/a.wav"}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{url: "/media/a.wav"})

	snap, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.partial.wav", snap.RecordingPath)

	snap, err = c.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.wav", snap.RecordingPath, "stop's return value wins")
}

func TestStartClearsStalePlayback(t *testing.T) {
	rec := &stubRecorder{startPath: "/tmp/a.wav", stopPath: "/tmp/a.wav"}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{url: "/media/a.wav"})

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	snap, err := c.Stop(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, snap.PlaybackURL)

	// Second start fails, but the stale playback target must already be gone.
	rec.mu.Lock()
	rec.startErr = errors.New("device busy")
	rec.mu.Unlock()

	snap, err = c.Start(context.Background())
	require.Error(t, err)
	checkInvariant(t, snap)
	assert.Empty(t, snap.PlaybackURL, "stale playback target survived a new start attempt")
}

func TestReconcileActiveRecording(t *testing.T) {
	rec := &stubRecorder{active: true}
	c := newReadyController(t, &stubBroker{err: errors.New("denied")}, rec, &stubResolver{})

	snap := c.Snapshot()
	checkInvariant(t, snap)
	assert.True(t, snap.Recording, "reconciliation must adopt the recorder's state")
	assert.Equal(t, PhaseRecording, snap.Phase)
	assert.Equal(t, 0, rec.startCalls, "no local start may have been issued")
}

func TestReconcileFailureIsSilent(t *testing.T) {
	rec := &stubRecorder{stateErr: errors.New("unreachable")}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{})

	snap := c.Snapshot()
	assert.Empty(t, snap.LastError, "reconciliation failures are logged, not surfaced")
	assert.False(t, snap.Recording)
}

func TestStartWhileRecordingRejected(t *testing.T) {
	rec := &stubRecorder{startPath: "/tmp/a.wav"}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{})

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, 1, rec.startCalls)
}

func TestStopWhileIdleRejected(t *testing.T) {
	c := newReadyController(t, &stubBroker{}, &stubRecorder{}, &stubResolver{})

	_, err := c.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStartFromNoPermission_GrantsButDoesNotRecord(t *testing.T) {
	broker := &stubBroker{err: errors.New("denied")}
	rec := &stubRecorder{startPath: "/tmp/a.wav"}
	c := newReadyController(t, broker, rec, &stubResolver{})
	require.False(t, c.Snapshot().PermissionGranted)

	// Permission becomes available; the next start only acquires it.
	broker.mu.Lock()
	broker.err = nil
	broker.mu.Unlock()

	snap, err := c.Start(context.Background())
	require.NoError(t, err)
	checkInvariant(t, snap)

	assert.True(t, snap.PermissionGranted)
	assert.False(t, snap.Recording, "start must not chain into recording on a fresh grant")
	assert.Equal(t, 0, rec.startCalls)
	assert.Equal(t, PhaseIdle, snap.Phase)

	// The user re-invokes start explicitly.
	snap, err = c.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Recording)
}

func TestStartFromNoPermission_DenialRecorded(t *testing.T) {
	broker := &stubBroker{err: errors.New("denied")}
	rec := &stubRecorder{}
	c := newReadyController(t, broker, rec, &stubResolver{})

	snap, err := c.Start(context.Background())
	require.Error(t, err)
	assert.False(t, snap.PermissionGranted)
	assert.Equal(t, msgPermissionDenied, snap.LastError)
	assert.Equal(t, 0, rec.startCalls)
}

func TestLastErrorClearedOnNewAttempt(t *testing.T) {
	rec := &stubRecorder{startErr: errors.New("device busy")}
	c := newReadyController(t, &stubBroker{}, rec, &stubResolver{})

	snap, _ := c.Start(context.Background())
	require.NotEmpty(t, snap.LastError)

	rec.mu.Lock()
	rec.startErr = nil
	rec.startPath = "/tmp/b.wav"
	rec.mu.Unlock()

	snap, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.LastError, "a new attempt clears the previous error")
}

func TestUserTransitionsWaitForInit(t *testing.T) {
	// A broker that blocks until released keeps init unresolved.
	release := make(chan struct{})
	broker := &blockingBroker{release: release}
	c := New(Deps{
		Permission: broker,
		Recorder:   &stubRecorder{},
		Playback:   &stubResolver{},
		Logger:     zerolog.Nop(),
	})
	c.Init(context.Background())

	// Snapshot must not block while the startup permission call is in flight.
	snapped := make(chan Snapshot, 1)
	go func() { snapped <- c.Snapshot() }()
	select {
	case snap := <-snapped:
		assert.False(t, snap.PermissionGranted)
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked during init")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Start(ctx)
	assert.ErrorIs(t, err, ErrInitNotComplete)

	close(release)
	select {
	case <-c.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("controller init did not complete after release")
	}

	_, err = c.Start(context.Background())
	assert.NoError(t, err, "transitions are accepted once init resolved")
}

type blockingBroker struct {
	release chan struct{}
}

func (b *blockingBroker) AcquireMicrophone(context.Context) error {
	<-b.release
	return nil
}

func TestInitAcquiresPermissionOnce(t *testing.T) {
	broker := &stubBroker{}
	c := newReadyController(t, broker, &stubRecorder{}, &stubResolver{})

	assert.Equal(t, 1, broker.callCount())
	assert.True(t, c.Snapshot().PermissionGranted)
}
