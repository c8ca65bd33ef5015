package services

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"
	"checkin-system/monitoring"
)

// PendingQueue is the slice of the queue store the reconciler needs. The
// Redis-backed PendingQueueStore implements it; tests use an in-memory fake.
type PendingQueue interface {
	PeekBatch(ctx context.Context, n int) ([]models.PendingCheckIn, error)
	MarkInFlight(ctx context.Context, ids []string) error
	MarkSynced(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, permanent bool, retryAt time.Time, cause string) error
	MarkSkipped(ctx context.Context, ids []string, notBefore time.Time) error
	Count(ctx context.Context) (int, error)
}

// OnlineSignal is the connectivity view the reconciler consumes.
type OnlineSignal interface {
	Online() bool
	Events() <-chan struct{}
}

type ReconcilerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:    30 * time.Second,
		BatchSize:   25,
		Concurrency: 4,
		MaxAttempts: 8,
		Backoff:     DefaultBackoff(),
	}
}

// SyncReconciler drains the pending queue against the processor. Ordering is
// sequential only among attempts sharing a ticket_ref, which preserves the
// duplicate-collapsing guarantee; distinct tickets sync concurrently up to
// the configured cap.
type SyncReconciler struct {
	queue     PendingQueue
	processor ProcessorCaller
	cfg       ReconcilerConfig
	monitor   *monitoring.Monitor
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	current *syncRun
}

type syncRun struct {
	done    chan struct{}
	summary models.SyncSummary
	err     error
}

func NewSyncReconciler(queue PendingQueue, processor ProcessorCaller, cfg ReconcilerConfig, monitor *monitoring.Monitor) *SyncReconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	return &SyncReconciler{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		monitor:   monitor,
		now:       func() time.Time { return time.Now().UTC() },
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SyncNow runs one logical sync pass. Single-flight with join semantics: a
// call that arrives while a pass is in progress waits for that pass and
// returns its summary instead of starting a second drain of the same batch.
func (s *SyncReconciler) SyncNow(ctx context.Context) (models.SyncSummary, error) {
	s.mu.Lock()
	if s.current != nil {
		run := s.current
		s.mu.Unlock()
		select {
		case <-run.done:
			return run.summary, run.err
		case <-ctx.Done():
			return models.SyncSummary{}, ctx.Err()
		}
	}

	run := &syncRun{done: make(chan struct{})}
	s.current = run
	s.mu.Unlock()

	run.summary, run.err = s.drain(ctx)

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	close(run.done)

	return run.summary, run.err
}

// Run triggers passes on the interval while online and immediately on every
// offline-to-online edge, until ctx is cancelled.
func (s *SyncReconciler) Run(ctx context.Context, signal OnlineSignal) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Reconciler started: interval=%s batch=%d", s.cfg.Interval, s.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconciler stopping")
			return
		case <-ticker.C:
			if signal != nil && !signal.Online() {
				continue
			}
			s.runPass(ctx, "interval")
		case <-signalEvents(signal):
			s.runPass(ctx, "online-edge")
		}
	}
}

func signalEvents(signal OnlineSignal) <-chan struct{} {
	if signal == nil {
		return nil
	}
	return signal.Events()
}

func (s *SyncReconciler) runPass(ctx context.Context, trigger string) {
	summary, err := s.SyncNow(ctx)
	if err != nil {
		log.Printf("Reconciler pass (%s) failed: %v", trigger, err)
		return
	}
	if summary.Synced > 0 || summary.Failed > 0 {
		log.Printf("Reconciler pass (%s): synced=%d failed=%d remaining=%d",
			trigger, summary.Synced, summary.Failed, summary.Remaining)
	}
}

func (s *SyncReconciler) drain(ctx context.Context) (models.SyncSummary, error) {
	var total models.SyncSummary

	for {
		batch, err := s.queue.PeekBatch(ctx, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]string, len(batch))
		for i, item := range batch {
			ids[i] = item.ClientScanID
		}
		if err := s.queue.MarkInFlight(ctx, ids); err != nil {
			return total, err
		}

		synced, failed := s.processBatch(ctx, batch)
		total.Synced += synced
		total.Failed += failed

		// No progress means the processor is down or everything is backing
		// off; stop instead of spinning on the same items.
		if synced == 0 {
			break
		}
	}

	remaining, err := s.queue.Count(ctx)
	if err != nil {
		return total, err
	}
	total.Remaining = remaining
	return total, nil
}

// processBatch fans groups of same-ticket attempts out to workers. PeekBatch
// returns items oldest-first, so within each group capture order is already
// drain order.
func (s *SyncReconciler) processBatch(ctx context.Context, batch []models.PendingCheckIn) (synced, failed int) {
	groups := make(map[string][]models.PendingCheckIn)
	order := make([]string, 0, len(batch))
	for _, item := range batch {
		if _, seen := groups[item.TicketRef]; !seen {
			order = append(order, item.TicketRef)
		}
		groups[item.TicketRef] = append(groups[item.TicketRef], item)
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Concurrency)
	)

	for _, ref := range order {
		group := groups[ref]
		wg.Add(1)
		sem <- struct{}{}
		go func(group []models.PendingCheckIn) {
			defer wg.Done()
			defer func() { <-sem }()

			ok, bad := s.processGroup(ctx, group)
			mu.Lock()
			synced += ok
			failed += bad
			mu.Unlock()
		}(group)
	}

	wg.Wait()
	return synced, failed
}

func (s *SyncReconciler) processGroup(ctx context.Context, group []models.PendingCheckIn) (synced, failed int) {
	for i, item := range group {
		req := models.CheckInRequest{
			ClientScanID: item.ClientScanID,
			TicketRef:    item.TicketRef,
			StationID:    item.StationID,
			Method:       item.Method,
			CapturedAt:   item.CapturedAt,
		}

		result, err := s.processor.Process(ctx, req)
		switch {
		case err == nil:
			if markErr := s.queue.MarkSynced(ctx, []string{item.ClientScanID}); markErr != nil {
				log.Printf("Reconciler: mark synced %s: %v", item.ClientScanID, markErr)
				failed++
				continue
			}
			synced++
			if result.Duplicate {
				s.trackOutcome("synced_duplicate")
			} else {
				s.trackOutcome("synced")
			}

		case status.IsTerminal(err):
			// Retrying a fundamentally invalid ticket wastes cycles; park it
			// for a human regardless of attempt count.
			if markErr := s.queue.MarkFailed(ctx, item.ClientScanID, true, time.Time{}, err.Error()); markErr != nil {
				log.Printf("Reconciler: mark failed %s: %v", item.ClientScanID, markErr)
			}
			failed++
			s.trackOutcome("failed_permanent")

		default:
			permanent := item.AttemptCount+1 >= s.cfg.MaxAttempts
			retryAt := s.retryAt(item.AttemptCount + 1)
			if markErr := s.queue.MarkFailed(ctx, item.ClientScanID, permanent, retryAt, err.Error()); markErr != nil {
				log.Printf("Reconciler: mark failed %s: %v", item.ClientScanID, markErr)
			}
			failed++
			if permanent {
				s.trackOutcome("failed_permanent")
			} else {
				s.trackOutcome("retry_scheduled")
			}
			// Later attempts for this ticket must stay behind the failed
			// one, so the rest of the group goes back to queued without
			// burning an attempt and inherits the head's retry time.
			rest := make([]string, 0, len(group)-i-1)
			for _, skipped := range group[i+1:] {
				rest = append(rest, skipped.ClientScanID)
			}
			if len(rest) > 0 {
				notBefore := retryAt
				if permanent {
					// The head left the drain order; the tail is the new
					// head and may go as soon as the next pass.
					notBefore = time.Time{}
				}
				if markErr := s.queue.MarkSkipped(ctx, rest, notBefore); markErr != nil {
					log.Printf("Reconciler: requeue skipped items: %v", markErr)
				}
			}
			return synced, failed
		}
	}
	return synced, failed
}

func (s *SyncReconciler) retryAt(attempt int) time.Time {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return NextRetryAt(s.now(), attempt, s.cfg.Backoff, s.rng)
}

func (s *SyncReconciler) trackOutcome(result string) {
	if s.monitor != nil {
		s.monitor.TrackSyncOutcome(result)
	}
}
