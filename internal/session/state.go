// SPDX-License-Identifier: MIT

package session

// Phase is the coarse state of the recording session.
type Phase string

const (
	// PhaseNoPermission means the microphone capability is not held.
	PhaseNoPermission Phase = "no_permission"
	// PhaseIdle means permission is granted and no recording is active.
	PhaseIdle Phase = "idle"
	// PhaseRecording means the native recorder reports an active recording.
	// Reconciliation can enter this phase without a local start.
	PhaseRecording Phase = "recording"
)

// Snapshot is a point-in-time copy of the session state, safe to hand out.
type Snapshot struct {
	PermissionGranted bool   `json:"permissionGranted"`
	Recording         bool   `json:"recording"`
	RecordingPath     string `json:"recordingPath,omitempty"`
	PlaybackURL       string `json:"playbackURL,omitempty"`
	LastError         string `json:"lastError,omitempty"`
	Phase             Phase  `json:"phase"`
}

// phase derives the coarse state. An active recording dominates: a recorder
// reconciled as running is Recording even before permission is granted.
func phase(permissionGranted, recording bool) Phase {
	switch {
	case recording:
		return PhaseRecording
	case permissionGranted:
		return PhaseIdle
	default:
		return PhaseNoPermission
	}
}
