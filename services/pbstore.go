package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"checkin-system/internal/status"
	"checkin-system/models"
)

// PBStore backs the processor interfaces with PocketBase collections. The
// check_ins collection carries the unique index on (event_id, ticket_id) that
// makes Insert the linearization point under concurrent stations.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) ResolveTicket(ctx context.Context, ref string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"ref = {:ref} || id = {:ref}",
		dbx.Params{"ref": ref},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: ref %q", status.ErrTicketNotFound, ref)
		}
		return nil, fmt.Errorf("%w: ticket lookup: %v", status.ErrUnavailable, err)
	}

	return &models.Ticket{
		ID:           record.Id,
		Ref:          record.GetString("ref"),
		EventID:      record.GetString("event_id"),
		AttendeeName: record.GetString("attendee_name"),
		Tier:         record.GetString("tier"),
		Price:        decimal.NewFromFloat(record.GetFloat("price")),
		Status:       record.GetString("status"),
		IssuedAt:     record.GetDateTime("created").Time(),
	}, nil
}

func (s *PBStore) FindEvent(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A ticket pointing at a missing event is a data problem, not
			// something a rescan can fix differently; report it as an outage.
			return nil, fmt.Errorf("%w: event %q not found", status.ErrUnavailable, eventID)
		}
		return nil, fmt.Errorf("%w: event lookup: %v", status.ErrUnavailable, err)
	}

	return &models.Event{
		ID:        record.Id,
		Name:      record.GetString("name"),
		Venue:     record.GetString("venue"),
		StartTime: record.GetDateTime("start_time").Time(),
		EndTime:   record.GetDateTime("end_time").Time(),
		Status:    record.GetString("status"),
	}, nil
}

func (s *PBStore) FindByTicket(ctx context.Context, eventID, ticketID string) (*models.CheckInRecord, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"check_ins",
		"event_id = {:event} && ticket_id = {:ticket}",
		dbx.Params{"event": eventID, "ticket": ticketID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return recordToCheckIn(record), nil
}

func (s *PBStore) Insert(ctx context.Context, rec *models.CheckInRecord) (*models.CheckInRecord, error) {
	collection, err := s.app.FindCollectionByNameOrId("check_ins")
	if err != nil {
		return nil, err
	}

	record := core.NewRecord(collection)
	record.Set("event_id", rec.EventID)
	record.Set("ticket_id", rec.TicketID)
	record.Set("station_id", rec.StationID)
	record.Set("method", rec.Method)
	record.Set("client_scan_id", rec.ClientScanID)
	record.Set("checked_in_at", rec.CheckedInAt)

	if err := s.app.Save(record); err != nil {
		if isUniqueViolation(err) {
			return nil, status.ErrConflict
		}
		return nil, err
	}

	saved := *rec
	saved.ID = record.Id
	return &saved, nil
}

// ListCheckIns returns the admission records of an event, newest first.
func (s *PBStore) ListCheckIns(ctx context.Context, eventID string, limit int) ([]models.CheckInRecord, error) {
	records, err := s.app.FindRecordsByFilter(
		"check_ins",
		"event_id = {:event}",
		"-checked_in_at",
		limit,
		0,
		dbx.Params{"event": eventID},
	)
	if err != nil {
		return nil, err
	}

	out := make([]models.CheckInRecord, 0, len(records))
	for _, r := range records {
		out = append(out, *recordToCheckIn(r))
	}
	return out, nil
}

func recordToCheckIn(record *core.Record) *models.CheckInRecord {
	return &models.CheckInRecord{
		ID:           record.Id,
		EventID:      record.GetString("event_id"),
		TicketID:     record.GetString("ticket_id"),
		StationID:    record.GetString("station_id"),
		Method:       record.GetString("method"),
		ClientScanID: record.GetString("client_scan_id"),
		CheckedInAt:  record.GetDateTime("checked_in_at").Time(),
	}
}

// isUniqueViolation recognizes both the raw SQLite error and PocketBase's
// unique-index validation wrapper.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "validation_not_unique")
}
