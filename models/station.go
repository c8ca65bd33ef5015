package models

import (
	"time"
)

// Station session states. One state machine per physical device.
const (
	StationIdle       = "idle"
	StationScanning   = "scanning"
	StationProcessing = "processing"
	StationSuccess    = "success"
	StationError      = "error"
)

// StationEvent is emitted on every state transition and consumed by the
// kiosk/mobile UI layer.
type StationEvent struct {
	StationID string         `json:"station_id"`
	State     string         `json:"state"`
	At        time.Time      `json:"at"`
	ScanID    string         `json:"scan_id,omitempty"`
	Result    *CheckInResult `json:"result,omitempty"`
	// QueuedOffline marks a success that was durably enqueued instead of
	// confirmed by the server. The operator sees "queued - will sync".
	QueuedOffline bool   `json:"queued_offline,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	// ProfileID is set when the scan was a profile lookup; the UI layer
	// owns what happens next.
	ProfileID string `json:"profile_id,omitempty"`
}

// ScanIntent is what the payload classifier produces from a raw QR string.
type ScanIntent interface {
	scanIntent()
}

// TicketScan asks the processor to admit the referenced ticket. Raw payloads
// that fail structured parsing land here too, so resolution can fail loudly
// server-side instead of crashing the scan loop.
type TicketScan struct {
	TicketRef string
}

// ProfileScan asks the surrounding app to open an attendee profile. The
// engine only classifies it; handling belongs to the UI layer.
type ProfileScan struct {
	ProfileID string
}

func (TicketScan) scanIntent()  {}
func (ProfileScan) scanIntent() {}
