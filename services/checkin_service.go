package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/monitoring"
)

// TicketResolver resolves a scanned reference (ticket ref or id) to a ticket.
// Returns status.ErrTicketNotFound when nothing matches.
type TicketResolver interface {
	ResolveTicket(ctx context.Context, ref string) (*models.Ticket, error)
}

// EventFinder looks up the event a ticket belongs to.
type EventFinder interface {
	FindEvent(ctx context.Context, eventID string) (*models.Event, error)
}

// CheckInStore is the durable record store. Insert must be atomic and fail
// with status.ErrConflict when the (event_id, ticket_id) unique index already
// holds a record; that constraint is the linearization point for concurrent
// stations, not any locking in this package.
type CheckInStore interface {
	FindByTicket(ctx context.Context, eventID, ticketID string) (*models.CheckInRecord, error)
	Insert(ctx context.Context, rec *models.CheckInRecord) (*models.CheckInRecord, error)
}

// AttendanceCounter tracks effective admissions per event. Incremented exactly
// once per effective admission, never on duplicates.
type AttendanceCounter interface {
	IncrAttendance(ctx context.Context, eventID string) error
	Attendance(ctx context.Context, eventID string) (int64, error)
}

// ActivityPublisher fans out admission activity to live dashboards. Failures
// are logged, never surfaced: realtime is best-effort.
type ActivityPublisher interface {
	PublishCheckIn(eventID string, result *models.CheckInResult)
}

type CheckInService struct {
	tickets   TicketResolver
	events    EventFinder
	store     CheckInStore
	counter   AttendanceCounter
	publisher ActivityPublisher
	monitor   *monitoring.Monitor
	now       func() time.Time
}

func NewCheckInService(
	tickets TicketResolver,
	events EventFinder,
	store CheckInStore,
	counter AttendanceCounter,
	publisher ActivityPublisher,
	monitor *monitoring.Monitor,
) *CheckInService {
	return &CheckInService{
		tickets:   tickets,
		events:    events,
		store:     store,
		counter:   counter,
		publisher: publisher,
		monitor:   monitor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process validates and durably records one check-in attempt.
//
// Idempotency: the effective-admission lookup is keyed by ticket, not by
// client_scan_id. Every attempt after the first collapses onto the single
// existing record and reports a duplicate, whether it is the same attempt
// replayed (station retry, reconciler redelivery) or the ticket presented
// again under a fresh scan id. The scan id only tells those two apart in the
// metrics.
func (s *CheckInService) Process(ctx context.Context, req models.CheckInRequest) (*models.CheckInResult, error) {
	ticket, err := s.tickets.ResolveTicket(ctx, req.TicketRef)
	if err != nil {
		s.track(req, "", status.ToCode(err))
		return nil, err
	}

	if !ticket.Admissible() {
		s.track(req, ticket.EventID, status.CodeTicketInvalid)
		return nil, fmt.Errorf("%w: ticket %s is %s", status.ErrTicketInvalid, ticket.ID, ticket.Status)
	}

	event, err := s.events.FindEvent(ctx, ticket.EventID)
	if err != nil {
		s.track(req, ticket.EventID, status.CodeUnavailable)
		return nil, fmt.Errorf("find event %s: %w", ticket.EventID, err)
	}
	if !event.Open() {
		s.track(req, event.ID, status.CodeEventClosed)
		return nil, fmt.Errorf("%w: event %s is %s", status.ErrEventClosed, event.ID, event.Status)
	}

	existing, err := s.store.FindByTicket(ctx, event.ID, ticket.ID)
	if err != nil {
		s.track(req, event.ID, status.CodeUnavailable)
		return nil, fmt.Errorf("%w: lookup failed: %v", status.ErrUnavailable, err)
	}
	if existing != nil {
		return s.duplicateResult(req, ticket, existing), nil
	}

	rec := &models.CheckInRecord{
		EventID:      event.ID,
		TicketID:     ticket.ID,
		StationID:    req.StationID,
		Method:       req.Method,
		ClientScanID: req.ClientScanID,
		CheckedInAt:  s.now(),
	}

	inserted, err := s.store.Insert(ctx, rec)
	if errors.Is(err, status.ErrConflict) {
		// Another station won the insert race. The winner's record is the
		// effective admission; re-read and report a duplicate.
		winner, findErr := s.store.FindByTicket(ctx, event.ID, ticket.ID)
		if findErr != nil || winner == nil {
			s.track(req, event.ID, status.CodeUnavailable)
			return nil, fmt.Errorf("%w: conflict re-read failed: %v", status.ErrUnavailable, findErr)
		}
		return s.duplicateResult(req, ticket, winner), nil
	}
	if err != nil {
		s.track(req, event.ID, status.CodeUnavailable)
		return nil, fmt.Errorf("%w: insert failed: %v", status.ErrUnavailable, err)
	}

	if err := s.counter.IncrAttendance(ctx, event.ID); err != nil {
		log.Printf("CheckIn: attendance counter for event %s: %v", event.ID, err)
	}
	s.track(req, event.ID, "admitted")

	result := &models.CheckInResult{
		Record:       *inserted,
		AttendeeName: ticket.AttendeeName,
		Duplicate:    false,
	}

	if s.publisher != nil {
		s.publisher.PublishCheckIn(event.ID, result)
	}

	return result, nil
}

// Attendance returns the effective-admission count for an event.
func (s *CheckInService) Attendance(ctx context.Context, eventID string) (int64, error) {
	return s.counter.Attendance(ctx, eventID)
}

func (s *CheckInService) duplicateResult(req models.CheckInRequest, ticket *models.Ticket, existing *models.CheckInRecord) *models.CheckInResult {
	outcome := "duplicate"
	if existing.ClientScanID == req.ClientScanID {
		outcome = "replayed"
	}
	s.track(req, existing.EventID, outcome)

	first := existing.CheckedInAt
	return &models.CheckInResult{
		Record:         *existing,
		AttendeeName:   ticket.AttendeeName,
		Duplicate:      true,
		FirstCheckInAt: &first,
	}
}

func (s *CheckInService) track(req models.CheckInRequest, eventID, result string) {
	if s.monitor == nil {
		return
	}
	if eventID == "" {
		eventID = "unknown"
	}
	s.monitor.TrackCheckIn(eventID, req.Method, result)
}
