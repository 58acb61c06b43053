// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldLeaseID   = "lease_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOp        = "op"

	// Path / URL fields
	FieldPath        = "path"
	FieldPlaybackURL = "playback_url"
)
