package models

import (
	"time"
)

// Medicine is one tracked item. ExpiryDate and AddedDate are calendar dates in
// YYYY-MM-DD form; the expiry status is derived on read and never stored.
type Medicine struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ExpiryDate string    `json:"expiry_date"`
	Dosage     string    `json:"dosage,omitempty"`
	Quantity   string    `json:"quantity,omitempty"`
	AddedDate  string    `json:"added_date"` // set once on creation
	UpdatedAt  time.Time `json:"updated_at"`
}

// CaptureScan records how a finished capture session ended
type CaptureScan struct {
	ID           string    `json:"id"` // capture session id
	ConnectionID string    `json:"connection_id,omitempty"`
	Target       string    `json:"target"` // "medicine-name" or "expiry-date"
	State        string    `json:"state"`  // "confirmed" or "cancelled"
	Text         string    `json:"text,omitempty"`
	Error        string    `json:"error,omitempty"`
	FrameBytes   int       `json:"frame_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
