package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Ticket struct {
	ID           string          `json:"id"`
	Ref          string          `json:"ref"` // value encoded in the QR code
	EventID      string          `json:"event_id"`
	AttendeeName string          `json:"attendee_name"`
	Tier         string          `json:"tier"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"` // valid, revoked, refunded
	IssuedAt     time.Time       `json:"issued_at"`
}

const (
	TicketStatusValid    = "valid"
	TicketStatusRevoked  = "revoked"
	TicketStatusRefunded = "refunded"
)

// Admissible reports whether the ticket can still be used at the door.
// Status transitions are owned by the order system; the engine only reads them.
func (t *Ticket) Admissible() bool {
	return t.Status == TicketStatusValid
}
