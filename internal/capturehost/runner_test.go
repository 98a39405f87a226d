package capturehost

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franckalain/medtrack/internal/capture"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	acquireErr error
	// gate, when set, blocks Acquire until closed; ctx is ignored to model a
	// device that answers late.
	gate chan struct{}

	acquired atomic.Int32
	released atomic.Int32
}

func (d *fakeDevice) Acquire(ctx context.Context) error {
	if d.gate != nil {
		<-d.gate
	}
	if d.acquireErr != nil {
		return d.acquireErr
	}
	d.acquired.Add(1)
	return nil
}

func (d *fakeDevice) Release() error {
	d.released.Add(1)
	return nil
}

type fakeRecognizer struct {
	text string
	err  error
	gate chan struct{}

	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeRecognizer) Recognize(ctx context.Context, target capture.Target, frame []byte) (string, error) {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.text, f.err
}

func (f *fakeRecognizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func waitState(t *testing.T, r *Runner, want capture.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := r.Session()
		return s.State() == want && !s.Acquiring()
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s, have %s", want, r.Session().State())
}

func TestRunner_happyPath(t *testing.T) {
	dev := &fakeDevice{}
	rec := &fakeRecognizer{text: "Aspirin 325mg"}
	obs := &recorder{}
	r, err := NewRunner(capture.TargetMedicineName, dev, rec, WithObserver(obs.observe))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Start())
	waitState(t, r, capture.StateStreaming)

	require.NoError(t, r.Capture([]byte("photo")))
	require.Equal(t, int32(1), dev.released.Load())

	require.NoError(t, r.BeginRecognition())
	waitState(t, r, capture.StateResolved)
	require.Equal(t, "Aspirin 325mg", r.Snapshot().Text)

	require.NoError(t, r.Confirm())
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("session not done")
	}

	result, ok := r.Snapshot().Result()
	require.True(t, ok)
	require.Equal(t, "Aspirin 325mg", result)
	require.Equal(t, int32(1), dev.acquired.Load())
	require.Equal(t, 1, rec.calls())

	last := obs.last()
	require.Equal(t, "confirmed", last.StateName)
	require.True(t, last.Done)
	require.Equal(t, r.ID(), last.ID)
}

func TestRunner_deviceFailureIsRecoverable(t *testing.T) {
	dev := &fakeDevice{acquireErr: errors.New("permission denied")}
	obs := &recorder{}
	r, err := NewRunner(capture.TargetExpiryDate, dev, &fakeRecognizer{}, WithObserver(obs.observe))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Start())
	r.Wait()

	s := r.Session()
	require.Equal(t, capture.StateIdle, s.State())
	require.False(t, s.Acquiring())
	require.ErrorIs(t, r.Snapshot().Err(), capture.ErrDeviceUnavailable)
	require.Contains(t, obs.last().Error, "permission denied")

	dev.acquireErr = nil
	require.NoError(t, r.Start())
	waitState(t, r, capture.StateStreaming)
	require.Empty(t, r.Snapshot().Error)
}

func TestRunner_cancelWhileRecognizingDropsLateResult(t *testing.T) {
	dev := &fakeDevice{}
	rec := &fakeRecognizer{text: "Aspirin 325mg", gate: make(chan struct{})}
	r, err := NewRunner(capture.TargetMedicineName, dev, rec)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	waitState(t, r, capture.StateStreaming)
	require.NoError(t, r.Capture([]byte("photo")))
	require.NoError(t, r.BeginRecognition())
	require.Eventually(t, func() bool { return rec.calls() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Cancel())
	require.Equal(t, capture.StateCancelled, r.Session().State())

	close(rec.gate)
	r.Wait()

	require.Equal(t, capture.StateCancelled, r.Session().State())
	_, ok := r.Snapshot().Result()
	require.False(t, ok)
	r.Close()
}

func TestRunner_lateFeedAfterCancelIsReleased(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{})}
	r, err := NewRunner(capture.TargetMedicineName, dev, &fakeRecognizer{})
	require.NoError(t, err)

	require.NoError(t, r.Start())
	require.True(t, r.Session().Acquiring())
	require.NoError(t, r.Cancel())

	close(dev.gate)
	r.Wait()

	require.Equal(t, capture.StateCancelled, r.Session().State())
	require.Equal(t, int32(1), dev.acquired.Load())
	require.Equal(t, int32(1), dev.released.Load())
	r.Close()
}

func TestRunner_retake(t *testing.T) {
	dev := &fakeDevice{}
	rec := &fakeRecognizer{text: "Tylenol"}
	r, err := NewRunner(capture.TargetMedicineName, dev, rec)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Start())
	waitState(t, r, capture.StateStreaming)
	require.NoError(t, r.Capture([]byte("blurry")))
	require.NoError(t, r.BeginRecognition())
	waitState(t, r, capture.StateResolved)

	require.NoError(t, r.Retake())
	waitState(t, r, capture.StateStreaming)
	require.Empty(t, r.Snapshot().Text)

	require.NoError(t, r.Capture([]byte("sharp")))
	require.Equal(t, capture.StateCaptured, r.Session().State())
	_, ok := r.Session().RecognizedText()
	require.False(t, ok)

	require.Equal(t, int32(2), dev.acquired.Load())
	require.Equal(t, int32(2), dev.released.Load())
}

func TestRunner_recognitionFailure(t *testing.T) {
	cause := errors.New("model unavailable")
	r, err := NewRunner(capture.TargetExpiryDate, &fakeDevice{}, &fakeRecognizer{err: cause})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Start())
	waitState(t, r, capture.StateStreaming)
	require.NoError(t, r.Capture([]byte("photo")))
	require.NoError(t, r.BeginRecognition())
	waitState(t, r, capture.StateFailed)

	require.ErrorIs(t, r.Snapshot().Err(), cause)
	require.ErrorIs(t, r.Confirm(), capture.ErrInvalidTransition)
	require.NoError(t, r.Retake())
	waitState(t, r, capture.StateStreaming)
}

func TestRunner_outOfStateEvent(t *testing.T) {
	r, err := NewRunner(capture.TargetMedicineName, &fakeDevice{}, &fakeRecognizer{})
	require.NoError(t, err)
	defer r.Close()

	require.ErrorIs(t, r.Confirm(), capture.ErrInvalidTransition)
	require.ErrorIs(t, r.Cancel(), capture.ErrInvalidTransition)
	require.Equal(t, capture.StateIdle, r.Session().State())
}

func TestRunner_closeCancelsLiveSession(t *testing.T) {
	dev := &fakeDevice{}
	r, err := NewRunner(capture.TargetMedicineName, dev, &fakeRecognizer{})
	require.NoError(t, err)

	require.NoError(t, r.Start())
	waitState(t, r, capture.StateStreaming)
	r.Close()

	require.Equal(t, capture.StateCancelled, r.Session().State())
	require.Equal(t, int32(1), dev.released.Load())
}

func TestNewRunner_validation(t *testing.T) {
	_, err := NewRunner("photo", &fakeDevice{}, &fakeRecognizer{})
	require.ErrorIs(t, err, capture.ErrInvalidTarget)
	_, err = NewRunner(capture.TargetExpiryDate, nil, &fakeRecognizer{})
	require.Error(t, err)
	_, err = NewRunner(capture.TargetExpiryDate, &fakeDevice{}, nil)
	require.Error(t, err)
}
