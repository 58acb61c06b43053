// SPDX-License-Identifier: MIT

package recorder

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrBusy         = errors.New("recorder: already recording")
	ErrNotRecording = errors.New("recorder: no active recording")
	ErrUnavailable  = errors.New("recorder: host unreachable or transport failure")
	ErrInternal     = errors.New("recorder: internal error (5xx)")
	ErrBadResponse  = errors.New("recorder: invalid response format or malformed data")
)

// CallError is a rich error type that wraps the sentinel errors with context.
type CallError struct {
	Sentinel  error
	Operation string
	Status    int
	Detail    string
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("recorder: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Sentinel
}

// Reason returns the service-reported detail if present, falling back to the
// sentinel description. Used for user-facing messages.
func (e *CallError) Reason() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Sentinel.Error()
}

// Reason returns the service-reported detail for err if present, falling
// back to the error's own description.
func Reason(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Reason()
	}
	return err.Error()
}
