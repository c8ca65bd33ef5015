package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/scanner"
)

// StationQueue is the slice of the pending queue the station itself touches.
type StationQueue interface {
	Enqueue(ctx context.Context, item models.PendingCheckIn) error
	Count(ctx context.Context) (int, error)
	LastSyncAt(ctx context.Context) (*time.Time, error)
}

// DecoderControl lets the session gate the scan loop while a check-in is in
// flight.
type DecoderControl interface {
	Pause()
	Resume()
}

type StationConfig struct {
	StationID      string
	Method         string
	AutoResetDelay time.Duration
	ProcessTimeout time.Duration
}

// StationSession is the per-device interaction state machine:
//
//	idle -> scanning -> processing -> success|error -> scanning (auto-reset)
//
// Exactly one scan is in flight per station: the decoder is paused on entry
// to processing and resumed when the session returns to scanning. The session
// is in-memory only; the pending queue is the part that survives restarts.
type StationSession struct {
	cfg       StationConfig
	processor ProcessorCaller
	queue     StationQueue
	decoder   DecoderControl
	events    chan models.StationEvent
	now       func() time.Time
	newScanID func() string

	mu         sync.Mutex
	state      string
	resetTimer *time.Timer
}

func NewStationSession(cfg StationConfig, processor ProcessorCaller, queue StationQueue, decoder DecoderControl) *StationSession {
	if cfg.AutoResetDelay <= 0 {
		cfg.AutoResetDelay = 4 * time.Second
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 5 * time.Second
	}
	if cfg.Method == "" {
		cfg.Method = models.MethodQRCode
	}
	return &StationSession{
		cfg:       cfg,
		processor: processor,
		queue:     queue,
		decoder:   decoder,
		events:    make(chan models.StationEvent, 32),
		now:       func() time.Time { return time.Now().UTC() },
		newScanID: func() string { return uuid.NewString() },
		state:     models.StationIdle,
	}
}

// Events is the stream of state transitions for the UI layer.
func (s *StationSession) Events() <-chan models.StationEvent {
	return s.events
}

// State returns the current machine state.
func (s *StationSession) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate arms the station: idle -> scanning.
func (s *StationSession) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StationIdle {
		return
	}
	s.setStateLocked(models.StationScanning, models.StationEvent{})
	if s.decoder != nil {
		s.decoder.Resume()
	}
}

// Cancel is the operator backing out: scanning -> idle.
func (s *StationSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StationScanning {
		return
	}
	s.setStateLocked(models.StationIdle, models.StationEvent{})
}

// Dismiss skips the auto-reset delay after a result.
func (s *StationSession) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StationSuccess && s.state != models.StationError {
		return
	}
	s.resetLocked()
}

// Run consumes decoded payloads until ctx is done or the channel closes.
func (s *StationSession) Run(ctx context.Context, payloads <-chan string) {
	s.Activate()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-payloads:
			if !ok {
				return
			}
			s.HandlePayload(ctx, raw)
		}
	}
}

// HandlePayload drives one decoded payload through the machine. Payloads
// arriving outside the scanning state are dropped; that is the station-level
// single-flight guarantee.
func (s *StationSession) HandlePayload(ctx context.Context, raw string) {
	s.mu.Lock()
	if s.state != models.StationScanning {
		s.mu.Unlock()
		return
	}

	intent := scanner.Classify(raw)

	switch scan := intent.(type) {
	case models.ProfileScan:
		// Profile handling belongs to the UI layer; the engine only routes.
		s.setStateLocked(models.StationSuccess, models.StationEvent{ProfileID: scan.ProfileID})
		s.scheduleResetLocked()
		s.mu.Unlock()

	case models.TicketScan:
		scanID := s.newScanID()
		if s.decoder != nil {
			s.decoder.Pause()
		}
		s.setStateLocked(models.StationProcessing, models.StationEvent{ScanID: scanID})
		s.mu.Unlock()

		s.process(ctx, scanID, scan.TicketRef)
	}
}

// process performs the direct processor call and, on connectivity failure,
// the durable offline fallback. Runs without holding the lock; the state
// gate above guarantees it is never concurrent with itself.
func (s *StationSession) process(ctx context.Context, scanID, ticketRef string) {
	capturedAt := s.now()

	defer func() {
		if r := recover(); r != nil {
			// A scan must never leave the station wedged in processing.
			log.Printf("Station %s: panic while processing scan %s: %v", s.cfg.StationID, scanID, r)
			s.finish(models.StationError, models.StationEvent{
				ScanID:       scanID,
				ErrorMessage: "internal error, please rescan",
			})
		}
	}()

	req := models.CheckInRequest{
		ClientScanID: scanID,
		TicketRef:    ticketRef,
		StationID:    s.cfg.StationID,
		Method:       s.cfg.Method,
		CapturedAt:   capturedAt,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	result, err := s.processor.Process(callCtx, req)

	switch {
	case err == nil:
		s.finish(models.StationSuccess, models.StationEvent{
			ScanID: scanID,
			Result: result,
		})

	case status.IsTerminal(err):
		s.finish(models.StationError, models.StationEvent{
			ScanID:       scanID,
			ErrorMessage: err.Error(),
		})

	default:
		// Connectivity or timeout: queue durably and tell the operator the
		// scan is in. The reconciler owns it from here.
		item := models.PendingCheckIn{
			ClientScanID: scanID,
			TicketRef:    ticketRef,
			StationID:    s.cfg.StationID,
			Method:       s.cfg.Method,
			CapturedAt:   capturedAt,
		}
		if enqErr := s.queue.Enqueue(ctx, item); enqErr != nil {
			log.Printf("Station %s: offline enqueue failed: %v", s.cfg.StationID, enqErr)
			s.finish(models.StationError, models.StationEvent{
				ScanID:       scanID,
				ErrorMessage: "could not record scan, please retry",
			})
			return
		}
		s.finish(models.StationSuccess, models.StationEvent{
			ScanID:        scanID,
			QueuedOffline: true,
		})
	}
}

// PendingCount exposes the queue depth for the UI.
func (s *StationSession) PendingCount(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}

// LastSyncAt exposes the last acknowledged sync for the UI.
func (s *StationSession) LastSyncAt(ctx context.Context) (*time.Time, error) {
	return s.queue.LastSyncAt(ctx)
}

func (s *StationSession) finish(state string, event models.StationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StationProcessing {
		return
	}
	s.setStateLocked(state, event)
	s.scheduleResetLocked()
}

// scheduleResetLocked arms the auto-reset, replacing any previous timer so at
// most one is live per station.
func (s *StationSession) scheduleResetLocked() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(s.cfg.AutoResetDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != models.StationSuccess && s.state != models.StationError {
			return
		}
		s.resetLocked()
	})
}

func (s *StationSession) resetLocked() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.setStateLocked(models.StationScanning, models.StationEvent{})
	if s.decoder != nil {
		s.decoder.Resume()
	}
}

func (s *StationSession) setStateLocked(state string, event models.StationEvent) {
	s.state = state
	event.StationID = s.cfg.StationID
	event.State = state
	event.At = s.now()

	select {
	case s.events <- event:
	default:
		log.Printf("Station %s: event buffer full, dropping %s event", s.cfg.StationID, state)
	}
}
