package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin-system/internal/status"
	"checkin-system/models"
)

type fakeResolver struct {
	tickets map[string]*models.Ticket
}

func (f *fakeResolver) ResolveTicket(_ context.Context, ref string) (*models.Ticket, error) {
	if t, ok := f.tickets[ref]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", status.ErrTicketNotFound, ref)
}

type fakeEvents struct {
	events map[string]*models.Event
}

func (f *fakeEvents) FindEvent(_ context.Context, id string) (*models.Event, error) {
	if e, ok := f.events[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("event %s not found", id)
}

// fakeStore mimics the unique-index behavior of the real collection: the
// first insert per (event, ticket) wins, later ones get ErrConflict.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.CheckInRecord
	inserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*models.CheckInRecord{}}
}

func (f *fakeStore) key(eventID, ticketID string) string {
	return eventID + "/" + ticketID
}

func (f *fakeStore) FindByTicket(_ context.Context, eventID, ticketID string) (*models.CheckInRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[f.key(eventID, ticketID)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) Insert(_ context.Context, rec *models.CheckInRecord) (*models.CheckInRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inserts++
	key := f.key(rec.EventID, rec.TicketID)
	if _, ok := f.records[key]; ok {
		return nil, status.ErrConflict
	}

	stored := *rec
	stored.ID = fmt.Sprintf("rec-%d", f.inserts)
	f.records[key] = &stored
	cp := stored
	return &cp, nil
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}}
}

func (f *fakeCounter) IncrAttendance(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[eventID]++
	return nil
}

func (f *fakeCounter) Attendance(_ context.Context, eventID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[eventID], nil
}

func setupCheckInService() (*CheckInService, *fakeStore, *fakeCounter) {
	resolver := &fakeResolver{tickets: map[string]*models.Ticket{
		"TKT-001": {ID: "t1", Ref: "TKT-001", EventID: "ev1", AttendeeName: "Ada", Status: models.TicketStatusValid},
		"TKT-REV": {ID: "t2", Ref: "TKT-REV", EventID: "ev1", AttendeeName: "Bob", Status: models.TicketStatusRevoked},
		"TKT-CLS": {ID: "t3", Ref: "TKT-CLS", EventID: "ev2", AttendeeName: "Cyd", Status: models.TicketStatusValid},
	}}
	events := &fakeEvents{events: map[string]*models.Event{
		"ev1": {ID: "ev1", Name: "Launch Party", Status: models.EventStatusOngoing},
		"ev2": {ID: "ev2", Name: "Last Year", Status: models.EventStatusClosed},
	}}
	store := newFakeStore()
	counter := newFakeCounter()

	service := NewCheckInService(resolver, events, store, counter, nil, nil)
	return service, store, counter
}

func request(scanID, ref string) models.CheckInRequest {
	return models.CheckInRequest{
		ClientScanID: scanID,
		TicketRef:    ref,
		StationID:    "gate-1",
		Method:       models.MethodQRCode,
		CapturedAt:   time.Now().UTC(),
	}
}

func TestCheckInService_Process_AdmitsValidTicket(t *testing.T) {
	service, store, counter := setupCheckInService()
	ctx := context.Background()

	result, err := service.Process(ctx, request("scan-1", "TKT-001"))

	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Nil(t, result.FirstCheckInAt)
	assert.Equal(t, "Ada", result.AttendeeName)
	assert.Equal(t, "t1", result.Record.TicketID)
	assert.Equal(t, "gate-1", result.Record.StationID)
	assert.NotEmpty(t, result.Record.ID)
	assert.Len(t, store.records, 1)

	count, err := counter.Attendance(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCheckInService_Process_RescanIsDuplicateNotError(t *testing.T) {
	service, store, counter := setupCheckInService()
	ctx := context.Background()

	first, err := service.Process(ctx, request("scan-1", "TKT-001"))
	require.NoError(t, err)

	// Different scan id: someone presented the same ticket again.
	second, err := service.Process(ctx, request("scan-2", "TKT-001"))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	require.NotNil(t, second.FirstCheckInAt)
	assert.Equal(t, first.Record.CheckedInAt, *second.FirstCheckInAt)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	// One record, one admission.
	assert.Len(t, store.records, 1)
	count, _ := counter.Attendance(ctx, "ev1")
	assert.Equal(t, int64(1), count)
}

func TestCheckInService_Process_ReplaySameScanID(t *testing.T) {
	service, _, counter := setupCheckInService()
	ctx := context.Background()

	first, err := service.Process(ctx, request("scan-1", "TKT-001"))
	require.NoError(t, err)

	// Same scan id replayed: the station timed out and the reconciler is
	// retrying the exact same attempt. Only the first attempt admits; the
	// replay succeeds but reports the existing admission as a duplicate.
	replay, err := service.Process(ctx, request("scan-1", "TKT-001"))
	require.NoError(t, err)

	assert.True(t, replay.Duplicate)
	require.NotNil(t, replay.FirstCheckInAt)
	assert.Equal(t, first.Record.CheckedInAt, *replay.FirstCheckInAt)
	assert.Equal(t, first.Record.ID, replay.Record.ID)

	count, _ := counter.Attendance(ctx, "ev1")
	assert.Equal(t, int64(1), count)
}

func TestCheckInService_Process_ManyAttemptsOneRecord(t *testing.T) {
	service, store, counter := setupCheckInService()
	ctx := context.Background()

	// A mix of replays and fresh scans of the same ticket: only the first
	// attempt admits, every other one reports a duplicate.
	scanIDs := []string{"scan-1", "scan-1", "scan-2", "scan-3", "scan-3"}
	duplicates := 0
	for _, id := range scanIDs {
		result, err := service.Process(ctx, request(id, "TKT-001"))
		require.NoError(t, err)
		if result.Duplicate {
			duplicates++
		}
	}

	assert.Equal(t, len(scanIDs)-1, duplicates)
	assert.Len(t, store.records, 1)
	count, _ := counter.Attendance(ctx, "ev1")
	assert.Equal(t, int64(1), count)
}

func TestCheckInService_Process_UnknownTicket(t *testing.T) {
	service, _, _ := setupCheckInService()

	_, err := service.Process(context.Background(), request("scan-1", "TKT-NOPE"))

	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
	assert.True(t, status.IsTerminal(err))
}

func TestCheckInService_Process_RevokedTicket(t *testing.T) {
	service, store, counter := setupCheckInService()

	_, err := service.Process(context.Background(), request("scan-1", "TKT-REV"))

	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrTicketInvalid)
	assert.Len(t, store.records, 0)
	count, _ := counter.Attendance(context.Background(), "ev1")
	assert.Equal(t, int64(0), count)
}

func TestCheckInService_Process_ClosedEvent(t *testing.T) {
	service, _, _ := setupCheckInService()

	_, err := service.Process(context.Background(), request("scan-1", "TKT-CLS"))

	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrEventClosed)
}

// raceStore forces the lost-insert path: FindByTicket reports no record, the
// insert conflicts, and the re-read returns the winner.
type raceStore struct {
	*fakeStore
	raced bool
}

func (r *raceStore) FindByTicket(ctx context.Context, eventID, ticketID string) (*models.CheckInRecord, error) {
	if !r.raced {
		// First lookup: pretend another station inserts right after it.
		r.raced = true
		_, err := r.fakeStore.Insert(ctx, &models.CheckInRecord{
			EventID:      eventID,
			TicketID:     ticketID,
			StationID:    "gate-2",
			Method:       models.MethodQRCode,
			ClientScanID: "winner-scan",
			CheckedInAt:  time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		return nil, nil
	}
	return r.fakeStore.FindByTicket(ctx, eventID, ticketID)
}

func TestCheckInService_Process_LostInsertRaceReportsDuplicate(t *testing.T) {
	resolver := &fakeResolver{tickets: map[string]*models.Ticket{
		"TKT-001": {ID: "t1", Ref: "TKT-001", EventID: "ev1", AttendeeName: "Ada", Status: models.TicketStatusValid},
	}}
	events := &fakeEvents{events: map[string]*models.Event{
		"ev1": {ID: "ev1", Status: models.EventStatusOngoing},
	}}
	store := &raceStore{fakeStore: newFakeStore()}
	counter := newFakeCounter()
	service := NewCheckInService(resolver, events, store, counter, nil, nil)

	result, err := service.Process(context.Background(), request("loser-scan", "TKT-001"))

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	require.NotNil(t, result.FirstCheckInAt)
	assert.Equal(t, "winner-scan", result.Record.ClientScanID)
	assert.Equal(t, "gate-2", result.Record.StationID)

	// The losing station must not bump attendance.
	count, _ := counter.Attendance(context.Background(), "ev1")
	assert.Equal(t, int64(0), count)
}
