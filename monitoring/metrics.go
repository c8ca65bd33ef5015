package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	checkins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Check-in attempts by outcome",
		},
		[]string{"event_id", "method", "result"},
	)

	pendingDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pending_queue_depth",
			Help: "Unsynced check-in attempts per station",
		},
		[]string{"station_id"},
	)

	backlogDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pending_backlog_depth",
			Help: "Permanently failed attempts awaiting manual review per station",
		},
		[]string{"station_id"},
	)

	syncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_operations_total",
			Help: "Reconciler item outcomes",
		},
		[]string{"result"},
	)

	processorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processor_request_seconds",
			Help:    "Duration of processor calls from the station",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"outcome"},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processor_breaker_state",
			Help: "Processor circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

type Monitor struct {
	redis     *redis.Client
	stationID string
}

func NewMonitor(redisClient *redis.Client, stationID string) *Monitor {
	monitor := &Monitor{redis: redisClient, stationID: stationID}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	// Queue gauges only make sense on a station; the server tracks counters
	// at the processing call sites.
	if m.stationID == "" {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectQueueMetrics(ctx)
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	queueKey := "pending:queue:" + m.stationID
	depth, err := m.redis.ZCard(ctx, queueKey).Result()
	if err == nil {
		pendingDepth.WithLabelValues(m.stationID).Set(float64(depth))
	}

	backlogKey := "pending:backlog:" + m.stationID
	backlog, err := m.redis.SCard(ctx, backlogKey).Result()
	if err == nil {
		backlogDepth.WithLabelValues(m.stationID).Set(float64(backlog))
	}
}

// TrackCheckIn records a processed attempt: admitted, duplicate, or an error
// code.
func (m *Monitor) TrackCheckIn(eventID, method, result string) {
	checkins.WithLabelValues(eventID, method, result).Inc()
}

// TrackSyncOutcome records one reconciler item outcome.
func (m *Monitor) TrackSyncOutcome(result string) {
	syncOperations.WithLabelValues(result).Inc()
}

// TrackProcessorCall records a processor round trip from the station.
func (m *Monitor) TrackProcessorCall(outcome string, duration time.Duration) {
	processorLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// TrackBreakerState mirrors the circuit breaker state into a gauge.
func (m *Monitor) TrackBreakerState(state int) {
	breakerState.Set(float64(state))
}
