package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// message is the envelope for every websocket frame in both directions.
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// client is one websocket connection. Writes come from the read loop and
// from capture goroutines, so they go through writeMu.
type client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	log    zerolog.Logger

	writeMu sync.Mutex

	device *wsDevice

	captureMu sync.Mutex
	capture   *captureSlot
}

func newClient(s *Server, id string, conn *websocket.Conn) *client {
	c := &client{
		id:     id,
		server: s,
		conn:   conn,
		log:    s.log.With().Str("client", id).Logger(),
	}
	c.device = newWSDevice(c, s.acquireTimeout)
	return c
}

func (c *client) run(ctx context.Context) {
	defer c.conn.Close()
	defer c.closeCapture()

	c.conn.SetReadLimit(maxMessageBytes)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("error reading message")
			}
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendErrorMessage(kindBadRequest, "invalid message format")
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *client) handleMessage(ctx context.Context, msg message) {
	c.log.Debug().Str("type", msg.Type).Msg("message received")

	switch msg.Type {
	case "list_medicines":
		c.sendDashboard(ctx)
	case "add_medicine":
		c.handleAddMedicine(ctx, msg.Data)
	case "update_medicine":
		c.handleUpdateMedicine(ctx, msg.Data)
	case "delete_medicine":
		c.handleDeleteMedicine(ctx, msg.Data)
	case "list_scans":
		c.handleListScans(ctx)
	case "capture_start":
		c.handleCaptureStart(msg.Data)
	case "camera_ready":
		c.handleCameraReady()
	case "camera_error":
		c.handleCameraError(msg.Data)
	case "capture_photo":
		c.handleCapturePhoto(msg.Data)
	case "capture_confirm":
		c.handleCaptureEvent(msg.Type)
	case "capture_retake":
		c.handleCaptureEvent(msg.Type)
	case "capture_cancel":
		c.handleCaptureEvent(msg.Type)
	default:
		c.sendErrorMessage(kindBadRequest, "unknown message type: "+msg.Type)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errMissingData
	}
	return json.Unmarshal(data, v)
}

func (c *client) send(messageType string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(outgoing{Type: messageType, Data: data}); err != nil {
		c.log.Debug().Err(err).Str("type", messageType).Msg("error sending message")
		return err
	}
	return nil
}
