package models

import (
	"time"
)

// Check-in methods as carried on the wire.
const (
	MethodQRCode = "qr_code"
	MethodKiosk  = "kiosk"
	MethodManual = "manual"
)

// CheckInRecord is the authoritative server-side admission record. For a given
// (event, ticket) pair exactly one record exists; the unique index in the
// check_ins collection is what enforces that, not application locking.
type CheckInRecord struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	TicketID     string    `json:"ticket_id"`
	StationID    string    `json:"station_id"`
	Method       string    `json:"method"`
	ClientScanID string    `json:"client_scan_id"`
	CheckedInAt  time.Time `json:"checked_in_at"` // server clock
}

// CheckInResult is what the processor hands back for any accepted attempt.
// Duplicate is not an error: a rescan returns the original record flagged so
// the UI can show "already checked in at HH:MM".
type CheckInResult struct {
	Record       CheckInRecord `json:"record"`
	AttendeeName string        `json:"attendee_name"`
	Duplicate    bool          `json:"duplicate"`
	// FirstCheckInAt is set only when Duplicate is true and carries the
	// timestamp of the effective admission.
	FirstCheckInAt *time.Time `json:"first_check_in_at,omitempty"`
}

// CheckInRequest is the wire request of POST /api/checkin.
type CheckInRequest struct {
	ClientScanID string    `json:"client_scan_id"`
	TicketRef    string    `json:"ticket_ref"`
	StationID    string    `json:"station_id"`
	Method       string    `json:"method"`
	CapturedAt   time.Time `json:"captured_at"` // client clock, informational
}

// CheckInResponse is the wire response of POST /api/checkin.
type CheckInResponse struct {
	Success bool             `json:"success"`
	Data    *CheckInData     `json:"data,omitempty"`
	Error   *CheckInAPIError `json:"error,omitempty"`
}

type CheckInData struct {
	TicketID          string     `json:"ticket_id"`
	AttendeeName      string     `json:"attendee_name"`
	CheckedInAt       time.Time  `json:"checked_in_at"`
	IsDuplicate       bool       `json:"is_duplicate"`
	PreviousCheckInAt *time.Time `json:"previous_check_in_at,omitempty"`
	StationID         string     `json:"station_id"`
}

type CheckInAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
