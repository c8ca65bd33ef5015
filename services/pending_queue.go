package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"checkin-system/models"
)

// PendingQueueStore is the station-local durable queue of unacknowledged
// check-in attempts. FIFO by captured_at so an accidental double scan of the
// same ticket while offline reaches the server in capture order and the
// second attempt collapses into a duplicate.
//
// The store is single-writer: only the owning station's goroutines touch its
// keys, which is why plain command sequences are enough and no scripting is
// needed for atomicity.
type PendingQueueStore struct {
	Redis     *redis.Client
	stationID string
	now       func() time.Time
}

func NewPendingQueueStore(redisClient *redis.Client, stationID string) *PendingQueueStore {
	return &PendingQueueStore{
		Redis:     redisClient,
		stationID: stationID,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PendingQueueStore) queueKey() string {
	return fmt.Sprintf("pending:queue:%s", s.stationID)
}

func (s *PendingQueueStore) itemKey(scanID string) string {
	return fmt.Sprintf("pending:item:%s", scanID)
}

func (s *PendingQueueStore) backlogKey() string {
	return fmt.Sprintf("pending:backlog:%s", s.stationID)
}

func (s *PendingQueueStore) lastSyncKey() string {
	return fmt.Sprintf("pending:lastsync:%s", s.stationID)
}

// Enqueue durably stores a new attempt. It returns only after both writes
// landed; the station reports "queued" to the operator strictly afterwards.
func (s *PendingQueueStore) Enqueue(ctx context.Context, item models.PendingCheckIn) error {
	item.Status = models.PendingStatusQueued
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = item.CapturedAt
	}

	if err := s.writeItem(ctx, &item); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ClientScanID, err)
	}

	err := s.Redis.ZAdd(ctx, s.queueKey(), redis.Z{
		Score:  float64(item.CapturedAt.UnixNano()),
		Member: item.ClientScanID,
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.ClientScanID, err)
	}

	return nil
}

// PeekBatch returns up to n queued items that are eligible now (their backoff
// window has passed), oldest first.
func (s *PendingQueueStore) PeekBatch(ctx context.Context, n int) ([]models.PendingCheckIn, error) {
	ids, err := s.Redis.ZRange(ctx, s.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	now := s.now()
	batch := make([]models.PendingCheckIn, 0, n)
	for _, id := range ids {
		if len(batch) >= n {
			break
		}

		item, err := s.readItem(ctx, id)
		if err != nil {
			log.Printf("PendingQueue: dropping unreadable item %s: %v", id, err)
			s.Redis.ZRem(ctx, s.queueKey(), id)
			continue
		}

		if item.Status != models.PendingStatusQueued || item.NextAttemptAt.After(now) {
			continue
		}
		batch = append(batch, *item)
	}

	return batch, nil
}

// MarkInFlight transitions claimed items to in_flight so an overlapping pass
// cannot pick them up again.
func (s *PendingQueueStore) MarkInFlight(ctx context.Context, ids []string) error {
	for _, id := range ids {
		item, err := s.readItem(ctx, id)
		if err != nil {
			return err
		}
		item.Status = models.PendingStatusInFlight
		if err := s.writeItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// MarkSynced removes acknowledged items and stamps the last successful sync.
func (s *PendingQueueStore) MarkSynced(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.Redis.ZRem(ctx, s.queueKey(), id).Err(); err != nil {
			return err
		}
		if err := s.Redis.Del(ctx, s.itemKey(id)).Err(); err != nil {
			return err
		}
	}
	return s.Redis.Set(ctx, s.lastSyncKey(), s.now().Format(time.RFC3339Nano), 0).Err()
}

// MarkFailed records a failed attempt. Transient failures go back to queued
// with retryAt as their next eligibility; permanent ones leave the drain
// order and land in the manual-review backlog.
func (s *PendingQueueStore) MarkFailed(ctx context.Context, id string, permanent bool, retryAt time.Time, cause string) error {
	item, err := s.readItem(ctx, id)
	if err != nil {
		return err
	}

	item.AttemptCount++
	item.LastAttemptAt = s.now()
	item.LastError = cause

	if permanent {
		item.Status = models.PendingStatusFailedPermanent
		if err := s.writeItem(ctx, item); err != nil {
			return err
		}
		if err := s.Redis.ZRem(ctx, s.queueKey(), id).Err(); err != nil {
			return err
		}
		return s.Redis.SAdd(ctx, s.backlogKey(), id).Err()
	}

	item.Status = models.PendingStatusQueued
	item.NextAttemptAt = retryAt
	return s.writeItem(ctx, item)
}

// MarkSkipped returns in_flight items to queued without touching their
// attempt counters. Used when the reconciler abandons the tail of a
// same-ticket group after its head failed; notBefore carries the head's
// retry time so the tail cannot become eligible ahead of it.
func (s *PendingQueueStore) MarkSkipped(ctx context.Context, ids []string, notBefore time.Time) error {
	for _, id := range ids {
		item, err := s.readItem(ctx, id)
		if err != nil {
			return err
		}
		item.Status = models.PendingStatusQueued
		if notBefore.After(item.NextAttemptAt) {
			item.NextAttemptAt = notBefore
		}
		if err := s.writeItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Requeue moves a permanently failed item back into the drain order after an
// operator decided it is worth another try. The attempt counter restarts so
// the retry ceiling applies afresh.
func (s *PendingQueueStore) Requeue(ctx context.Context, id string) error {
	item, err := s.readItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != models.PendingStatusFailedPermanent {
		return fmt.Errorf("requeue %s: status is %s", id, item.Status)
	}

	item.Status = models.PendingStatusQueued
	item.AttemptCount = 0
	item.NextAttemptAt = s.now()
	item.LastError = ""

	if err := s.writeItem(ctx, item); err != nil {
		return err
	}
	if err := s.Redis.SRem(ctx, s.backlogKey(), id).Err(); err != nil {
		return err
	}
	return s.Redis.ZAdd(ctx, s.queueKey(), redis.Z{
		Score:  float64(item.CapturedAt.UnixNano()),
		Member: id,
	}).Err()
}

// ListAll returns every queued/in-flight item, oldest first.
func (s *PendingQueueStore) ListAll(ctx context.Context) ([]models.PendingCheckIn, error) {
	ids, err := s.Redis.ZRange(ctx, s.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.readItems(ctx, ids)
}

// ListBacklog returns the permanently failed items awaiting manual review.
func (s *PendingQueueStore) ListBacklog(ctx context.Context) ([]models.PendingCheckIn, error) {
	ids, err := s.Redis.SMembers(ctx, s.backlogKey()).Result()
	if err != nil {
		return nil, err
	}
	return s.readItems(ctx, ids)
}

// Count returns the number of not-yet-synced items.
func (s *PendingQueueStore) Count(ctx context.Context) (int, error) {
	n, err := s.Redis.ZCard(ctx, s.queueKey()).Result()
	return int(n), err
}

// LastSyncAt returns the time of the last fully acknowledged sync, or nil if
// none happened yet.
func (s *PendingQueueStore) LastSyncAt(ctx context.Context) (*time.Time, error) {
	val, err := s.Redis.Get(ctx, s.lastSyncKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// ReclaimInFlight moves items a crash left in_flight back to queued. Called
// once on station startup, before the reconciler starts.
func (s *PendingQueueStore) ReclaimInFlight(ctx context.Context) (int, error) {
	ids, err := s.Redis.ZRange(ctx, s.queueKey(), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, id := range ids {
		item, err := s.readItem(ctx, id)
		if err != nil {
			continue
		}
		if item.Status != models.PendingStatusInFlight {
			continue
		}
		item.Status = models.PendingStatusQueued
		if err := s.writeItem(ctx, item); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (s *PendingQueueStore) readItem(ctx context.Context, id string) (*models.PendingCheckIn, error) {
	data, err := s.Redis.Get(ctx, s.itemKey(id)).Result()
	if err != nil {
		return nil, err
	}
	var item models.PendingCheckIn
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PendingQueueStore) readItems(ctx context.Context, ids []string) ([]models.PendingCheckIn, error) {
	items := make([]models.PendingCheckIn, 0, len(ids))
	for _, id := range ids {
		item, err := s.readItem(ctx, id)
		if err != nil {
			log.Printf("PendingQueue: skipping unreadable item %s: %v", id, err)
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

func (s *PendingQueueStore) writeItem(ctx context.Context, item *models.PendingCheckIn) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, s.itemKey(item.ClientScanID), data, 0).Err()
}
