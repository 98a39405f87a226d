// Package capturehost drives capture sessions: it feeds events into
// capture.Transition and carries out the effects it returns against a camera
// device and a recognition provider.
package capturehost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/franckalain/medtrack/internal/capture"
	"github.com/franckalain/medtrack/internal/logger"
	"github.com/franckalain/medtrack/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Device is the camera feed a session acquires and releases.
type Device interface {
	// Acquire blocks until the feed is live, ctx is done or the device refuses.
	Acquire(ctx context.Context) error
	Release() error
}

// Recognizer turns a still image into text for a target field.
type Recognizer interface {
	Recognize(ctx context.Context, target capture.Target, frame []byte) (string, error)
}

// Snapshot is the host-facing view of a session after an event.
type Snapshot struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	Target    capture.Target `json:"target"`
	State     capture.State  `json:"-"`
	StateName string         `json:"state"`
	Acquiring bool           `json:"acquiring"`
	Text      string         `json:"text,omitempty"`
	Error     string         `json:"error,omitempty"`
	Done      bool           `json:"done"`

	err error
}

// Err returns the recoverable failure carried by the session, if any.
func (s Snapshot) Err() error { return s.err }

// Result returns the confirmed text.
func (s Snapshot) Result() (string, bool) {
	if s.State != capture.StateConfirmed {
		return "", false
	}
	return s.Text, true
}

// Observer is notified with the latest snapshot after every accepted event.
// Snapshots are delivered in order; an older one is skipped if a newer one
// has already been delivered. An observer must not call back into the Runner.
type Observer func(Snapshot)

type Option func(*Runner)

func WithObserver(fn Observer) Option {
	return func(r *Runner) { r.observer = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

func WithID(id string) Option {
	return func(r *Runner) { r.id = id }
}

// Runner hosts one capture session. Acquisition and recognition run in their
// own goroutines and report back through Dispatch. Runner is safe for
// concurrent use.
type Runner struct {
	id         string
	device     Device
	recognizer Recognizer
	observer   Observer
	log        zerolog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu          sync.Mutex
	session     capture.Session
	seq         uint64
	cycleCancel context.CancelFunc
	done        chan struct{}

	notifyMu     sync.Mutex
	lastNotified uint64
}

// NewRunner creates a Runner with an Idle session for target.
func NewRunner(target capture.Target, device Device, recognizer Recognizer, opts ...Option) (*Runner, error) {
	s, err := capture.NewSession(target)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("capture runner: nil device")
	}
	if recognizer == nil {
		return nil, fmt.Errorf("capture runner: nil recognizer")
	}
	ctx, stop := context.WithCancel(context.Background())
	r := &Runner{
		id:         uuid.NewString(),
		device:     device,
		recognizer: recognizer,
		log:        logger.WithComponent("capture"),
		ctx:        ctx,
		stop:       stop,
		session:    s,
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With().Str("session", r.id).Str("target", target.String()).Logger()
	return r, nil
}

func (r *Runner) ID() string { return r.id }

// Done is closed once the session reaches Confirmed or Cancelled.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Session returns the current session value.
func (r *Runner) Session() capture.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Snapshot returns the current host-facing view.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) Start() error { return r.Dispatch(capture.Start{}) }

func (r *Runner) Capture(frame []byte) error { return r.Dispatch(capture.Capture{Frame: frame}) }

func (r *Runner) BeginRecognition() error { return r.Dispatch(capture.BeginRecognition{}) }

func (r *Runner) Confirm() error { return r.Dispatch(capture.Confirm{}) }

func (r *Runner) Retake() error { return r.Dispatch(capture.Retake{}) }

func (r *Runner) Cancel() error { return r.Dispatch(capture.Cancel{}) }

// Dispatch applies ev to the session. It returns the error from
// capture.Transition; for ErrDeviceUnavailable the session has already been
// updated when the error is returned.
func (r *Runner) Dispatch(ev capture.Event) error {
	r.mu.Lock()
	prev := r.session
	next, effects, err := capture.Transition(prev, ev)
	if err != nil && !errors.Is(err, capture.ErrDeviceUnavailable) {
		r.mu.Unlock()
		r.log.Warn().Err(err).Str("event", capture.EventName(ev)).Msg("capture event rejected")
		return err
	}

	changed := !sameSession(prev, next)
	r.session = next
	if changed {
		r.seq++
		r.recordLocked(prev, next, ev)
	} else {
		r.log.Debug().Str("event", capture.EventName(ev)).Str("state", next.State().String()).Msg("capture event dropped")
	}
	for _, e := range effects {
		r.applyLocked(e)
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Msg("capture device unavailable")
	}
	if changed {
		r.notify(snap)
	}
	return err
}

// Close cancels a live session and waits for background work to finish.
func (r *Runner) Close() {
	s := r.Session()
	if !s.State().Terminal() && (s.State() != capture.StateIdle || s.Acquiring()) {
		_ = r.Dispatch(capture.Cancel{})
	}
	r.stop()
	r.wg.Wait()
}

// Wait blocks until no acquisition or recognition is running.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) applyLocked(e capture.Effect) {
	r.log.Debug().Str("effect", capture.EffectName(e)).Msg("applying capture effect")
	switch e := e.(type) {
	case capture.AcquireFeed:
		ctx := r.newCycleContextLocked()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.device.Acquire(ctx); err != nil {
				_ = r.Dispatch(capture.FeedFailed{Cycle: e.Cycle, Err: err})
				return
			}
			_ = r.Dispatch(capture.FeedReady{Cycle: e.Cycle})
		}()

	case capture.ReleaseFeed:
		if err := r.device.Release(); err != nil {
			r.log.Error().Err(err).Msg("release capture device")
		}

	case capture.Recognize:
		ctx := r.newCycleContextLocked()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			started := time.Now()
			text, err := r.recognizer.Recognize(ctx, e.Target, e.Frame)
			metrics.ObserveRecognition(e.Target.String(), err == nil, time.Since(started))
			if err != nil {
				r.log.Info().Err(err).Uint64("cycle", e.Cycle).Msg("recognition failed")
				_ = r.Dispatch(capture.RecognitionFailed{Cycle: e.Cycle, Err: err})
				return
			}
			_ = r.Dispatch(capture.RecognitionComplete{Cycle: e.Cycle, Text: text})
		}()

	case capture.DiscardFrame:
		r.cancelCycleLocked()

	case capture.Deliver:
		r.log.Info().Str("text", e.Text).Msg("capture confirmed")
	}
}

func (r *Runner) newCycleContextLocked() context.Context {
	r.cancelCycleLocked()
	ctx, cancel := context.WithCancel(r.ctx)
	r.cycleCancel = cancel
	return ctx
}

func (r *Runner) cancelCycleLocked() {
	if r.cycleCancel != nil {
		r.cycleCancel()
		r.cycleCancel = nil
	}
}

func (r *Runner) recordLocked(prev, next capture.Session, ev capture.Event) {
	from, to := prev.State().String(), next.State().String()
	target := next.Target().String()
	if from != to {
		metrics.RecordCaptureTransition(target, from, to)
	}
	r.log.Debug().
		Str("event", capture.EventName(ev)).
		Str("from", from).
		Str("to", to).
		Bool("acquiring", next.Acquiring()).
		Uint64("cycle", next.Cycle()).
		Msg("capture transition")

	if next.State().Terminal() {
		metrics.RecordCaptureOutcome(target, to)
		r.cancelCycleLocked()
		close(r.done)
	}
}

func (r *Runner) snapshotLocked() Snapshot {
	s := r.session
	snap := Snapshot{
		ID:        r.id,
		Seq:       r.seq,
		Target:    s.Target(),
		State:     s.State(),
		StateName: s.State().String(),
		Acquiring: s.Acquiring(),
		Done:      s.State().Terminal(),
		err:       s.Err(),
	}
	if text, ok := s.RecognizedText(); ok {
		snap.Text = text
	}
	if snap.err != nil {
		snap.Error = snap.err.Error()
	}
	return snap
}

func (r *Runner) notify(snap Snapshot) {
	if r.observer == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if snap.Seq <= r.lastNotified {
		return
	}
	r.lastNotified = snap.Seq
	r.observer(snap)
}

func sameSession(a, b capture.Session) bool {
	ta, _ := a.RecognizedText()
	tb, _ := b.RecognizedText()
	return a.State() == b.State() &&
		a.Acquiring() == b.Acquiring() &&
		a.Cycle() == b.Cycle() &&
		ta == tb &&
		(a.Err() == nil) == (b.Err() == nil) &&
		len(a.Frame()) == len(b.Frame())
}
