package services

import (
	"fmt"
	"log"

	pubnub "github.com/pubnub/go"

	"checkin-system/models"
)

// PubNubActivityPublisher pushes admission activity onto a per-event channel
// for live door dashboards. Best-effort: a failed publish is logged and
// dropped, the admission itself is already durable.
type PubNubActivityPublisher struct {
	pubnub *pubnub.PubNub
}

func NewPubNubActivityPublisher(pn *pubnub.PubNub) *PubNubActivityPublisher {
	return &PubNubActivityPublisher{pubnub: pn}
}

func (p *PubNubActivityPublisher) PublishCheckIn(eventID string, result *models.CheckInResult) {
	if p.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("event-%s", eventID)
	_, _, err := p.pubnub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":          "check_in",
			"event_id":      eventID,
			"ticket_id":     result.Record.TicketID,
			"attendee_name": result.AttendeeName,
			"station_id":    result.Record.StationID,
			"checked_in_at": result.Record.CheckedInAt,
		}).
		Execute()
	if err != nil {
		log.Printf("Activity publish failed for event %s: %v", eventID, err)
	}
}
