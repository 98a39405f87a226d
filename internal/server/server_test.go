package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franckalain/medtrack/internal/capture"
	"github.com/franckalain/medtrack/internal/database"
	"github.com/franckalain/medtrack/internal/recognition"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, target capture.Target, frame []byte) (string, error) {
	return f.text, f.err
}

func fixedNow() time.Time {
	return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
}

type harness struct {
	db   *database.SQLiteDB
	conn *websocket.Conn
}

func newHarness(t *testing.T, rec *fakeRecognizer, timeout time.Duration) *harness {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "medtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db, rec, Options{AcquireTimeout: timeout, Now: fixedNow})
	ts := httptest.NewServer(s.Router(""))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{db: db, conn: conn}
}

func (h *harness) send(t *testing.T, messageType string, data any) {
	t.Helper()
	require.NoError(t, h.conn.WriteJSON(outgoing{Type: messageType, Data: data}))
}

// readUntil skips messages until one of messageType arrives and returns its data.
func (h *harness) readUntil(t *testing.T, messageType string) json.RawMessage {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg message
		require.NoError(t, h.conn.ReadJSON(&msg), "waiting for %s", messageType)
		if msg.Type == messageType {
			return msg.Data
		}
	}
}

type stateMsg struct {
	State     string `json:"state"`
	Acquiring bool   `json:"acquiring"`
	Text      string `json:"text"`
	Error     string `json:"error"`
	Done      bool   `json:"done"`
}

func (h *harness) readState(t *testing.T, state string) stateMsg {
	t.Helper()
	for {
		var s stateMsg
		require.NoError(t, json.Unmarshal(h.readUntil(t, "capture_state"), &s))
		if s.State == state && !s.Acquiring {
			return s
		}
	}
}

func (h *harness) readError(t *testing.T) errorPayload {
	t.Helper()
	var e errorPayload
	require.NoError(t, json.Unmarshal(h.readUntil(t, "error"), &e))
	return e
}

func TestHealth(t *testing.T) {
	s := New(nil, &fakeRecognizer{}, Options{})
	rec := httptest.NewRecorder()
	s.Router("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestWebSocket_medicines(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{}, time.Second)

	h.send(t, "add_medicine", map[string]string{"name": "Ibuprofen", "expiry_date": "2025-01-05"})
	var saved struct {
		ID        string `json:"id"`
		AddedDate string `json:"added_date"`
	}
	require.NoError(t, json.Unmarshal(h.readUntil(t, "medicine_saved"), &saved))
	require.NotEmpty(t, saved.ID)
	require.Equal(t, "2025-01-01", saved.AddedDate)

	var dash struct {
		Entries []struct {
			Name     string `json:"name"`
			Status   string `json:"status"`
			DaysLeft int    `json:"days_left"`
			Label    string `json:"label"`
		} `json:"entries"`
		Summary struct {
			Critical int `json:"critical"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(h.readUntil(t, "dashboard"), &dash))
	require.Len(t, dash.Entries, 1)
	require.Equal(t, "critical", dash.Entries[0].Status)
	require.Equal(t, 4, dash.Entries[0].DaysLeft)
	require.Equal(t, "4 days left", dash.Entries[0].Label)
	require.Equal(t, 1, dash.Summary.Critical)

	h.send(t, "add_medicine", map[string]string{"name": "", "expiry_date": "2025-01-05"})
	require.Equal(t, kindValidation, h.readError(t).Kind)

	h.send(t, "delete_medicine", map[string]string{"id": saved.ID})
	h.readUntil(t, "medicine_deleted")

	h.send(t, "delete_medicine", map[string]string{"id": saved.ID})
	require.Equal(t, kindNotFound, h.readError(t).Kind)
}

func TestWebSocket_captureHappyPath(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{text: "EXP 05/2027"}, time.Second)

	h.send(t, "capture_start", map[string]string{"target": "expiry-date"})
	h.readUntil(t, "camera_open")
	h.send(t, "camera_ready", nil)
	h.readState(t, "streaming")

	img := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3})
	h.send(t, "capture_photo", map[string]string{"image": "data:image/jpeg;base64," + img})
	h.readUntil(t, "camera_close")
	resolved := h.readState(t, "resolved")
	require.Equal(t, "EXP 05/2027", resolved.Text)

	h.send(t, "capture_confirm", nil)
	var res captureResult
	require.NoError(t, json.Unmarshal(h.readUntil(t, "capture_result"), &res))
	require.Equal(t, capture.TargetExpiryDate, res.Target)
	require.Equal(t, "EXP 05/2027", res.Text)
	require.Equal(t, "2027-05-31", res.Value)

	scans, err := h.db.ListCaptureScans(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	require.Equal(t, "confirmed", scans[0].State)
	require.Equal(t, 7, scans[0].FrameBytes)
}

func TestWebSocket_cameraRefusedThenRetry(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{text: "Aspirin"}, time.Second)

	h.send(t, "capture_start", map[string]string{"target": "medicine-name"})
	h.readUntil(t, "camera_open")
	h.send(t, "camera_error", map[string]string{"message": "NotAllowedError"})
	idle := h.readState(t, "idle")
	require.Contains(t, idle.Error, "NotAllowedError")
	require.False(t, idle.Done)

	h.send(t, "capture_start", map[string]string{"target": "medicine-name"})
	h.readUntil(t, "camera_open")
	h.send(t, "camera_ready", nil)
	require.Empty(t, h.readState(t, "streaming").Error)

	h.send(t, "capture_start", map[string]string{"target": "medicine-name"})
	require.Equal(t, kindSessionBusy, h.readError(t).Kind)

	h.send(t, "capture_cancel", nil)
	cancelled := h.readState(t, "cancelled")
	require.True(t, cancelled.Done)
}

func TestWebSocket_recognitionFailureIsReported(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{err: recognition.ErrNotRecognized}, time.Second)

	h.send(t, "capture_start", map[string]string{"target": "medicine-name"})
	h.readUntil(t, "camera_open")
	h.send(t, "camera_ready", nil)
	h.readState(t, "streaming")

	h.send(t, "capture_photo", map[string]string{"image": base64.StdEncoding.EncodeToString([]byte("photo"))})
	failed := h.readState(t, "failed")
	require.Contains(t, failed.Error, "not recognized")
	require.Empty(t, failed.Text)

	h.send(t, "capture_confirm", nil)
	require.Equal(t, kindInvalidTransition, h.readError(t).Kind)

	h.send(t, "capture_retake", nil)
	h.readUntil(t, "camera_open")
}

func TestWebSocket_cameraTimeout(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{}, 50*time.Millisecond)

	h.send(t, "capture_start", map[string]string{"target": "medicine-name"})
	h.readUntil(t, "camera_open")
	idle := h.readState(t, "idle")
	require.Contains(t, idle.Error, "did not respond")

	// A late answer must not leave the camera open.
	h.send(t, "camera_ready", nil)
	h.readUntil(t, "camera_close")
}

func TestWebSocket_badRequests(t *testing.T) {
	h := newHarness(t, &fakeRecognizer{}, time.Second)

	h.send(t, "capture_confirm", nil)
	require.Equal(t, kindNoSession, h.readError(t).Kind)

	h.send(t, "capture_start", map[string]string{"target": "barcode"})
	require.Equal(t, kindInvalidTarget, h.readError(t).Kind)

	h.send(t, "teleport", nil)
	require.Equal(t, kindBadRequest, h.readError(t).Kind)

	require.NoError(t, h.conn.WriteMessage(websocket.TextMessage, []byte("{")))
	require.Equal(t, kindBadRequest, h.readError(t).Kind)
}
