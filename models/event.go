package models

import (
	"time"
)

type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Venue     string    `json:"venue"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"` // draft, published, ongoing, closed
}

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusOngoing   = "ongoing"
	EventStatusClosed    = "closed"
)

// Open reports whether the event currently admits check-ins.
func (e *Event) Open() bool {
	return e.Status == EventStatusOngoing
}
