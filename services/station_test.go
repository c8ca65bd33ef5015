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

type stubProcessor struct {
	mu     sync.Mutex
	err    error
	result *models.CheckInResult
	calls  int
}

func (p *stubProcessor) Process(_ context.Context, req models.CheckInRequest) (*models.CheckInResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls += 1
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &models.CheckInResult{
		Record:       models.CheckInRecord{TicketID: req.TicketRef, ClientScanID: req.ClientScanID},
		AttendeeName: "Ada",
	}, nil
}

type stubQueue struct {
	mu         sync.Mutex
	items      []models.PendingCheckIn
	enqueueErr error
}

func (q *stubQueue) Enqueue(_ context.Context, item models.PendingCheckIn) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.items = append(q.items, item)
	return nil
}

func (q *stubQueue) Count(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *stubQueue) LastSyncAt(_ context.Context) (*time.Time, error) {
	return nil, nil
}

type stubDecoder struct {
	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int
}

func (d *stubDecoder) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	d.pauses++
}

func (d *stubDecoder) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	d.resumes++
}

func setupStation(processor *stubProcessor, queue *stubQueue) (*StationSession, *stubDecoder) {
	decoder := &stubDecoder{}
	session := NewStationSession(StationConfig{
		StationID:      "gate-1",
		Method:         models.MethodQRCode,
		AutoResetDelay: 25 * time.Millisecond,
		ProcessTimeout: time.Second,
	}, processor, queue, decoder)
	session.Activate()
	return session, decoder
}

// drainEvents collects transitions emitted during a test without blocking the
// session.
func drainEvents(session *StationSession) func() []models.StationEvent {
	var mu sync.Mutex
	var seen []models.StationEvent
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case ev := <-session.Events():
				mu.Lock()
				seen = append(seen, ev)
				mu.Unlock()
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	return func() []models.StationEvent {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return seen
	}
}

func TestStationSession_SuccessfulScan(t *testing.T) {
	processor := &stubProcessor{}
	queue := &stubQueue{}
	session, decoder := setupStation(processor, queue)

	session.HandlePayload(context.Background(), "TKT-001")

	assert.Equal(t, models.StationSuccess, session.State())
	assert.Equal(t, 1, processor.calls)
	assert.Empty(t, queue.items)
	// Decoder paused on entry to processing; resume happens on auto-reset.
	assert.Equal(t, 1, decoder.pauses)
}

func TestStationSession_AutoResetAfterResult(t *testing.T) {
	processor := &stubProcessor{}
	session, decoder := setupStation(processor, &stubQueue{})

	session.HandlePayload(context.Background(), "TKT-001")
	require.Equal(t, models.StationSuccess, session.State())

	assert.Eventually(t, func() bool {
		return session.State() == models.StationScanning
	}, time.Second, 5*time.Millisecond)

	decoder.mu.Lock()
	defer decoder.mu.Unlock()
	assert.False(t, decoder.paused)
}

func TestStationSession_TerminalRejectionShowsError(t *testing.T) {
	processor := &stubProcessor{err: fmt.Errorf("%w: revoked", status.ErrTicketInvalid)}
	queue := &stubQueue{}
	session, _ := setupStation(processor, queue)

	session.HandlePayload(context.Background(), "TKT-REV")

	assert.Equal(t, models.StationError, session.State())
	// A rejected ticket is not retried later.
	assert.Empty(t, queue.items)
}

func TestStationSession_OfflineFallsBackToQueue(t *testing.T) {
	processor := &stubProcessor{err: fmt.Errorf("%w: connection refused", status.ErrUnavailable)}
	queue := &stubQueue{}
	session, _ := setupStation(processor, queue)
	collect := drainEvents(session)

	session.HandlePayload(context.Background(), "TKT-001")

	// Offline is a success for the operator: the scan is durably queued.
	assert.Equal(t, models.StationSuccess, session.State())
	require.Len(t, queue.items, 1)
	assert.Equal(t, "TKT-001", queue.items[0].TicketRef)
	assert.Equal(t, "gate-1", queue.items[0].StationID)
	assert.NotEmpty(t, queue.items[0].ClientScanID)

	var queuedEvent bool
	for _, ev := range collect() {
		if ev.State == models.StationSuccess && ev.QueuedOffline {
			queuedEvent = true
		}
	}
	assert.True(t, queuedEvent)
}

func TestStationSession_EnqueueFailureIsAnError(t *testing.T) {
	processor := &stubProcessor{err: fmt.Errorf("%w: timeout", status.ErrUnavailable)}
	queue := &stubQueue{enqueueErr: fmt.Errorf("redis: connection pool exhausted")}
	session, _ := setupStation(processor, queue)

	session.HandlePayload(context.Background(), "TKT-001")

	// Telling the operator "queued" without a durable write would lose the
	// scan; this must surface as an error instead.
	assert.Equal(t, models.StationError, session.State())
}

func TestStationSession_IgnoresPayloadsWhileBusy(t *testing.T) {
	processor := &stubProcessor{err: fmt.Errorf("%w", status.ErrEventClosed)}
	session, _ := setupStation(processor, &stubQueue{})

	session.HandlePayload(context.Background(), "TKT-001")
	require.Equal(t, models.StationError, session.State())

	// The result is still on screen; a second scan must not sneak through.
	session.HandlePayload(context.Background(), "TKT-002")
	assert.Equal(t, 1, processor.calls)
}

func TestStationSession_DismissSkipsAutoReset(t *testing.T) {
	processor := &stubProcessor{}
	session, _ := setupStation(processor, &stubQueue{})

	session.HandlePayload(context.Background(), "TKT-001")
	require.Equal(t, models.StationSuccess, session.State())

	session.Dismiss()
	assert.Equal(t, models.StationScanning, session.State())
}

func TestStationSession_ProfileScanBypassesProcessor(t *testing.T) {
	processor := &stubProcessor{}
	session, _ := setupStation(processor, &stubQueue{})
	collect := drainEvents(session)

	session.HandlePayload(context.Background(), `{"type":"profile","id":"user-42"}`)

	assert.Equal(t, models.StationSuccess, session.State())
	assert.Equal(t, 0, processor.calls)

	var profileEvent bool
	for _, ev := range collect() {
		if ev.ProfileID == "user-42" {
			profileEvent = true
		}
	}
	assert.True(t, profileEvent)
}

func TestStationSession_ActivateAndCancel(t *testing.T) {
	session := NewStationSession(StationConfig{StationID: "gate-1"}, &stubProcessor{}, &stubQueue{}, nil)

	assert.Equal(t, models.StationIdle, session.State())
	session.Activate()
	assert.Equal(t, models.StationScanning, session.State())
	session.Cancel()
	assert.Equal(t, models.StationIdle, session.State())
}

func TestStationSession_PanicInProcessorRecovers(t *testing.T) {
	session, _ := setupStation(&stubProcessor{}, &stubQueue{})
	session.processor = panicProcessor{}

	session.HandlePayload(context.Background(), "TKT-001")

	assert.Equal(t, models.StationError, session.State())
}

type panicProcessor struct{}

func (panicProcessor) Process(context.Context, models.CheckInRequest) (*models.CheckInResult, error) {
	panic("boom")
}
