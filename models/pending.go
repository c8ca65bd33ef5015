package models

import (
	"time"
)

// Pending item lifecycle: queued -> in_flight -> synced (gone) or back to
// queued on a transient failure, or failed_permanent once the retry ceiling or
// a terminal business error is hit.
const (
	PendingStatusQueued          = "queued"
	PendingStatusInFlight        = "in_flight"
	PendingStatusSynced          = "synced"
	PendingStatusFailedPermanent = "failed_permanent"
)

// PendingCheckIn is a client-local attempt that has not been acknowledged by
// the server yet. Created by the station when the processor is unreachable,
// mutated only by the reconciler.
type PendingCheckIn struct {
	ClientScanID  string    `json:"client_scan_id"` // idempotency key, UUID
	TicketRef     string    `json:"ticket_ref"`
	StationID     string    `json:"station_id"`
	Method        string    `json:"method"`
	CapturedAt    time.Time `json:"captured_at"` // client clock, drain order
	AttemptCount  int       `json:"attempt_count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
}

// SyncSummary is the outcome of one reconciler pass.
type SyncSummary struct {
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}
