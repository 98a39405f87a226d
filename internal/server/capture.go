package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franckalain/medtrack/internal/capture"
	"github.com/franckalain/medtrack/internal/capturehost"
	"github.com/franckalain/medtrack/internal/inventory"
	"github.com/franckalain/medtrack/internal/models"
)

// wsDevice is the browser camera seen through the websocket: acquiring asks
// the client to open its camera and waits for camera_ready or camera_error.
type wsDevice struct {
	c       *client
	timeout time.Duration

	mu      sync.Mutex
	pending chan error
}

func newWSDevice(c *client, timeout time.Duration) *wsDevice {
	return &wsDevice{c: c, timeout: timeout}
}

func (d *wsDevice) Acquire(ctx context.Context) error {
	reply := make(chan error, 1)
	d.mu.Lock()
	d.pending = reply
	d.mu.Unlock()

	if err := d.c.send("camera_open", nil); err != nil {
		d.clear(reply)
		return fmt.Errorf("request camera: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		d.clear(reply)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("camera did not respond within %s", d.timeout)
		}
		return ctx.Err()
	}
}

func (d *wsDevice) Release() error {
	return d.c.send("camera_close", nil)
}

// resolve answers the pending acquisition. It reports false when nothing was
// waiting, e.g. after a timeout or a cancel.
func (d *wsDevice) resolve(err error) bool {
	d.mu.Lock()
	reply := d.pending
	d.pending = nil
	d.mu.Unlock()

	if reply == nil {
		return false
	}
	reply <- err
	return true
}

func (d *wsDevice) clear(reply chan error) {
	d.mu.Lock()
	if d.pending == reply {
		d.pending = nil
	}
	d.mu.Unlock()
}

// captureSlot is the connection's single capture session.
type captureSlot struct {
	runner     *capturehost.Runner
	startedAt  time.Time
	frameBytes atomic.Int64
}

type captureResult struct {
	SessionID string         `json:"session_id"`
	Target    capture.Target `json:"target"`
	Text      string         `json:"text"`
	Value     string         `json:"value"`
}

func (c *client) currentCapture() (*captureSlot, error) {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.capture == nil {
		return nil, errNoSession
	}
	return c.capture, nil
}

func (c *client) closeCapture() {
	c.captureMu.Lock()
	slot := c.capture
	c.capture = nil
	c.captureMu.Unlock()

	if slot != nil {
		slot.runner.Close()
	}
}

func (c *client) handleCaptureStart(data json.RawMessage) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeData(data, &req); err != nil {
		c.sendErrorMessage(kindBadRequest, "invalid capture request")
		return
	}
	target, err := capture.ParseTarget(req.Target)
	if err != nil {
		c.sendError(err)
		return
	}

	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if old := c.capture; old != nil {
		s := old.runner.Session()
		idle := s.State() == capture.StateIdle && !s.Acquiring()
		switch {
		case idle && s.Target() == target:
			// Retry after the camera was refused.
			if err := old.runner.Start(); err != nil {
				c.sendError(err)
			}
			return
		case idle, s.State().Terminal():
			old.runner.Close()
		default:
			c.sendError(errSessionBusy)
			return
		}
	}

	slot := &captureSlot{startedAt: time.Now()}
	runner, err := capturehost.NewRunner(target, c.device, c.server.recognizer,
		capturehost.WithObserver(func(snap capturehost.Snapshot) { c.onSnapshot(slot, snap) }),
		capturehost.WithLogger(c.log.With().Str("component", "capture").Logger()),
	)
	if err != nil {
		c.sendError(err)
		return
	}
	slot.runner = runner
	c.capture = slot

	if err := runner.Start(); err != nil {
		c.sendError(err)
	}
}

func (c *client) handleCameraReady() {
	if !c.device.resolve(nil) {
		// Nobody is waiting any more; make the browser let go of the camera.
		_ = c.device.Release()
	}
}

func (c *client) handleCameraError(data json.RawMessage) {
	var req struct {
		Message string `json:"message"`
	}
	_ = decodeData(data, &req)
	if strings.TrimSpace(req.Message) == "" {
		req.Message = "camera unavailable"
	}
	c.device.resolve(errors.New(req.Message))
}

// handleCapturePhoto takes the still and immediately starts recognizing it.
func (c *client) handleCapturePhoto(data json.RawMessage) {
	var req struct {
		Image string `json:"image"`
	}
	if err := decodeData(data, &req); err != nil {
		c.sendErrorMessage(kindBadRequest, "invalid image data")
		return
	}
	// Browsers send data URLs; keep only the payload.
	if i := strings.Index(req.Image, ","); i >= 0 && strings.HasPrefix(req.Image, "data:") {
		req.Image = req.Image[i+1:]
	}
	frame, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		c.sendErrorMessage(kindBadRequest, "invalid image format")
		return
	}

	slot, err := c.currentCapture()
	if err != nil {
		c.sendError(err)
		return
	}
	if err := slot.runner.Capture(frame); err != nil {
		c.sendError(err)
		return
	}
	slot.frameBytes.Store(int64(len(frame)))
	if err := slot.runner.BeginRecognition(); err != nil {
		c.sendError(err)
	}
}

func (c *client) handleCaptureEvent(messageType string) {
	slot, err := c.currentCapture()
	if err != nil {
		c.sendError(err)
		return
	}

	switch messageType {
	case "capture_confirm":
		err = slot.runner.Confirm()
	case "capture_retake":
		err = slot.runner.Retake()
	case "capture_cancel":
		err = slot.runner.Cancel()
	}
	if err != nil {
		c.sendError(err)
	}
}

// onSnapshot runs for every session change. It must not call into the runner.
func (c *client) onSnapshot(slot *captureSlot, snap capturehost.Snapshot) {
	_ = c.send("capture_state", snap)
	if !snap.Done {
		return
	}

	scan := &models.CaptureScan{
		ID:           snap.ID,
		ConnectionID: c.id,
		Target:       snap.Target.String(),
		State:        snap.StateName,
		Text:         snap.Text,
		Error:        snap.Error,
		FrameBytes:   int(slot.frameBytes.Load()),
		CreatedAt:    slot.startedAt,
	}
	if err := c.server.db.SaveCaptureScan(context.Background(), scan); err != nil {
		c.log.Error().Err(err).Str("session", snap.ID).Msg("error saving capture scan")
	}

	text, ok := snap.Result()
	if !ok {
		return
	}
	value, err := inventory.InterpretCapture(snap.Target, text)
	if err != nil {
		c.sendError(err)
		return
	}
	_ = c.send("capture_result", captureResult{
		SessionID: snap.ID,
		Target:    snap.Target,
		Text:      text,
		Value:     value,
	})
}
