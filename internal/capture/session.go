// Package capture models one attempt to turn a camera photo into a confirmed
// text value for a medicine field.
//
// The state machine itself is pure: Transition takes a Session and an Event
// and returns the next Session plus the side effects the host must perform.
package capture

import (
	"errors"
	"fmt"
)

// Target is the medicine field a capture session populates.
type Target string

const (
	TargetMedicineName Target = "medicine-name"
	TargetExpiryDate   Target = "expiry-date"
)

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	t := Target(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
	return t, nil
}

func (t Target) Valid() bool {
	return t == TargetMedicineName || t == TargetExpiryDate
}

func (t Target) String() string { return string(t) }

// State of a capture session.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCaptured
	StateRecognizing
	StateResolved
	StateFailed
	StateConfirmed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCaptured:
		return "captured"
	case StateRecognizing:
		return "recognizing"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateConfirmed:
		return "confirmed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further event can change the session.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled
}

var (
	// ErrInvalidTarget is returned for an unknown capture target.
	ErrInvalidTarget = errors.New("invalid capture target")
	// ErrInvalidTransition marks an event that is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid capture transition")
	// ErrDeviceUnavailable is reported when the camera feed cannot be acquired.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrEmptyFrame is returned when a capture carries no image data.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrNothingRecognized marks a recognition that produced no text.
	ErrNothingRecognized = errors.New("no text recognized")
)

// TransitionError describes an event delivered in a state that does not
// accept it. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	State State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s not allowed in state %s", ErrInvalidTransition, e.Event, e.State)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Session is an immutable snapshot of one capture attempt. The zero value is
// not usable; create sessions with NewSession.
type Session struct {
	target    Target
	state     State
	acquiring bool
	cycle     uint64
	frame     []byte
	text      string
	err       error
}

// NewSession returns an Idle session for target.
func NewSession(target Target) (Session, error) {
	if !target.Valid() {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	return Session{target: target, state: StateIdle}, nil
}

func (s Session) Target() Target { return s.target }
func (s Session) State() State   { return s.state }

// Acquiring reports whether a device feed request is outstanding.
func (s Session) Acquiring() bool { return s.acquiring }

// Cycle identifies the current acquire/recognize round. Retake starts a new one.
func (s Session) Cycle() uint64 { return s.cycle }

// Frame returns the captured still image, if the session holds one.
func (s Session) Frame() []byte { return s.frame }

// RecognizedText returns the recognition result while Resolved or Confirmed.
func (s Session) RecognizedText() (string, bool) {
	if s.state == StateResolved || s.state == StateConfirmed {
		return s.text, true
	}
	return "", false
}

// Result returns the final value; ok is false unless the session is Confirmed.
func (s Session) Result() (string, bool) {
	if s.state != StateConfirmed {
		return "", false
	}
	return s.text, true
}

// Err returns the last recoverable failure: a device acquisition error while
// Idle, or a recognition error while Failed.
func (s Session) Err() error { return s.err }
