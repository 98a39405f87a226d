package server

import (
	"errors"

	"github.com/franckalain/medtrack/internal/capture"
	"github.com/franckalain/medtrack/internal/expiry"
	"github.com/franckalain/medtrack/internal/inventory"
	"github.com/franckalain/medtrack/internal/recognition"
)

// Error kinds sent to the client so it can react without parsing messages.
const (
	kindBadRequest        = "bad_request"
	kindValidation        = "validation"
	kindNotFound          = "not_found"
	kindInvalidTarget     = "invalid_target"
	kindInvalidTransition = "invalid_transition"
	kindNoSession         = "no_session"
	kindSessionBusy       = "session_busy"
	kindDeviceUnavailable = "device_unavailable"
	kindNotRecognized     = "not_recognized"
	kindRecognitionDown   = "recognition_unavailable"
	kindInternal          = "internal"
)

var (
	errMissingData = errors.New("missing data")
	errNoSession   = errors.New("no capture session")
	errSessionBusy = errors.New("a capture session is already in progress")
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, errMissingData):
		return kindBadRequest
	case errors.Is(err, errNoSession):
		return kindNoSession
	case errors.Is(err, errSessionBusy):
		return kindSessionBusy
	case errors.Is(err, inventory.ErrNotFound):
		return kindNotFound
	case errors.Is(err, inventory.ErrValidation),
		errors.Is(err, expiry.ErrInvalidDate),
		errors.Is(err, capture.ErrEmptyFrame):
		return kindValidation
	case errors.Is(err, capture.ErrInvalidTarget):
		return kindInvalidTarget
	case errors.Is(err, capture.ErrInvalidTransition):
		return kindInvalidTransition
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return kindDeviceUnavailable
	case errors.Is(err, recognition.ErrNotRecognized):
		return kindNotRecognized
	case errors.Is(err, recognition.ErrUnavailable):
		return kindRecognitionDown
	default:
		return kindInternal
	}
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func (c *client) sendError(err error) {
	kind := errorKind(err)
	msg := err.Error()
	if kind == kindInternal {
		c.log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	c.sendErrorMessage(kind, msg)
}

func (c *client) sendErrorMessage(kind, message string) {
	_ = c.send("error", errorPayload{Message: message, Kind: kind})
}
