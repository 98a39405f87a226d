package capture

import (
	"bytes"
	"fmt"
	"strings"
)

// Transition applies ev to s and returns the next session together with the
// effects the host has to carry out, in order.
//
// Events reaching a terminal session are dropped without error, as are
// results tagged with an older cycle than the session's. An event that the
// current state does not accept returns the unchanged session and an error
// matching ErrInvalidTransition. FeedFailed is accepted but still returns an
// error matching ErrDeviceUnavailable so the host can surface it.
func Transition(s Session, ev Event) (Session, []Effect, error) {
	if !s.target.Valid() {
		return s, nil, fmt.Errorf("%w: session not initialised", ErrInvalidTarget)
	}
	if s.state.Terminal() {
		if _, ok := ev.(FeedReady); ok {
			// a feed that opened after the session ended still has to be closed
			return s, []Effect{ReleaseFeed{}}, nil
		}
		return s, nil, nil
	}

	switch e := ev.(type) {
	case Start:
		if s.state != StateIdle || s.acquiring {
			return s, nil, invalid(s, ev)
		}
		next := s.beginCycle()
		return next, []Effect{AcquireFeed{Cycle: next.cycle}}, nil

	case FeedReady:
		if e.Cycle != s.cycle {
			return s, nil, nil
		}
		if s.state != StateIdle || !s.acquiring {
			return s, nil, invalid(s, ev)
		}
		next := s
		next.state = StateStreaming
		next.acquiring = false
		next.err = nil
		return next, nil, nil

	case FeedFailed:
		if e.Cycle != s.cycle {
			return s, nil, nil
		}
		if s.state != StateIdle || !s.acquiring {
			return s, nil, invalid(s, ev)
		}
		err := ErrDeviceUnavailable
		if e.Err != nil {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, e.Err)
		}
		next := s
		next.acquiring = false
		next.err = err
		return next, nil, err

	case Capture:
		if s.state != StateStreaming {
			return s, nil, invalid(s, ev)
		}
		if len(e.Frame) == 0 {
			return s, nil, ErrEmptyFrame
		}
		next := s
		next.state = StateCaptured
		next.frame = bytes.Clone(e.Frame)
		return next, []Effect{ReleaseFeed{}}, nil

	case BeginRecognition:
		if s.state != StateCaptured {
			return s, nil, invalid(s, ev)
		}
		next := s
		next.state = StateRecognizing
		return next, []Effect{Recognize{Cycle: s.cycle, Target: s.target, Frame: s.frame}}, nil

	case RecognitionComplete:
		if e.Cycle != s.cycle {
			return s, nil, nil
		}
		if s.state != StateRecognizing {
			return s, nil, invalid(s, ev)
		}
		next := s
		text := strings.TrimSpace(e.Text)
		if text == "" {
			next.state = StateFailed
			next.err = ErrNothingRecognized
			return next, nil, nil
		}
		next.state = StateResolved
		next.text = text
		return next, nil, nil

	case RecognitionFailed:
		if e.Cycle != s.cycle {
			return s, nil, nil
		}
		if s.state != StateRecognizing {
			return s, nil, invalid(s, ev)
		}
		next := s
		next.state = StateFailed
		next.err = e.Err
		if next.err == nil {
			next.err = ErrNothingRecognized
		}
		return next, nil, nil

	case Confirm:
		if s.state != StateResolved {
			return s, nil, invalid(s, ev)
		}
		next := s
		next.state = StateConfirmed
		next.frame = nil
		return next, []Effect{Deliver{Target: s.target, Text: s.text}}, nil

	case Retake:
		switch s.state {
		case StateCaptured, StateRecognizing, StateResolved, StateFailed:
		default:
			return s, nil, invalid(s, ev)
		}
		next := s.beginCycle()
		return next, []Effect{DiscardFrame{}, AcquireFeed{Cycle: next.cycle}}, nil

	case Cancel:
		var effects []Effect
		switch {
		case s.state == StateStreaming:
			effects = []Effect{ReleaseFeed{}}
		case s.state == StateIdle && s.acquiring:
			effects = []Effect{DiscardFrame{}}
		case s.state == StateCaptured, s.state == StateRecognizing,
			s.state == StateResolved, s.state == StateFailed:
			effects = []Effect{DiscardFrame{}}
		default:
			return s, nil, invalid(s, ev)
		}
		next := s
		next.state = StateCancelled
		next.acquiring = false
		next.frame = nil
		next.text = ""
		next.err = nil
		return next, effects, nil
	}

	return s, nil, invalid(s, ev)
}

// beginCycle resets s to Idle with a pending feed request for a new cycle.
func (s Session) beginCycle() Session {
	return Session{
		target:    s.target,
		state:     StateIdle,
		acquiring: true,
		cycle:     s.cycle + 1,
	}
}

func invalid(s Session, ev Event) error {
	return &TransitionError{State: s.state, Event: EventName(ev)}
}
