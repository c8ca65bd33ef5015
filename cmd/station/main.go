package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"checkin-system/config"
	"checkin-system/handlers"
	"checkin-system/models"
	"checkin-system/monitoring"
	"checkin-system/scanner"
	"checkin-system/security"
	"checkin-system/services"
	"checkin-system/utils"
)

func main() {
	cfg := config.LoadConfig()

	stationID := cfg.StationID
	if stationID == "" {
		code, err := utils.GenerateCode(6)
		if err != nil {
			log.Fatalf("Failed to generate station id: %v", err)
		}
		stationID = "station-" + code
		log.Printf("No STATION_ID configured, using %s", stationID)
	}

	// Station-local Redis holds the pending queue; losing connectivity to the
	// server must never lose a scan.
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewMonitor(redisClient, stationID)

	queue := services.NewPendingQueueStore(redisClient, stationID)
	if reclaimed, err := queue.ReclaimInFlight(ctx); err != nil {
		log.Printf("Reclaim in-flight items: %v", err)
	} else if reclaimed > 0 {
		log.Printf("Reclaimed %d in-flight items from previous run", reclaimed)
	}

	client := services.NewCheckInClient(cfg.ServerURL, cfg.ProcessTimeout, monitor)

	prober := services.NewConnectivityProber(cfg.ServerURL, cfg.ProbeInterval)
	go prober.Run(ctx)

	reconciler := services.NewSyncReconciler(queue, client, services.ReconcilerConfig{
		Interval:    cfg.SyncInterval,
		BatchSize:   cfg.SyncBatchSize,
		Concurrency: cfg.SyncConcurrency,
		MaxAttempts: cfg.MaxSyncAttempts,
		Backoff: services.BackoffConfig{
			Base: cfg.BackoffBase,
			Cap:  cfg.BackoffCap,
		},
	}, monitor)
	go reconciler.Run(ctx, prober)

	// Stdin stands in for the camera pipeline: wedge scanners type one line
	// per decode.
	decoder := scanner.NewDecoder(scanner.NewLineSource(os.Stdin), cfg.ScanInterval, cfg.ScanCooldown)
	go decoder.Run(ctx)

	session := services.NewStationSession(services.StationConfig{
		StationID:      stationID,
		Method:         cfg.Method,
		AutoResetDelay: cfg.AutoResetDelay,
		ProcessTimeout: cfg.ProcessTimeout,
	}, client, queue, decoder)
	go session.Run(ctx, decoder.Payloads())
	go consumeEvents(ctx, session.Events())

	// Optional realtime side channel: ops heartbeat plus remote sync trigger
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(stationID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey

		link := services.NewStationLink(pubnub.NewPubNub(pnConfig), stationID, session, reconciler)
		go link.Run(ctx)
	}

	adminServer := newAdminServer(cfg, redisClient, session, reconciler, queue, prober)
	go func() {
		log.Printf("Station %s admin API listening on :%s", stationID, cfg.Port)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Admin server failed: %v", err)
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin server shutdown: %v", err)
	}
}

func newAdminServer(
	cfg *config.Config,
	redisClient *redis.Client,
	session *services.StationSession,
	reconciler *services.SyncReconciler,
	queue *services.PendingQueueStore,
	prober *services.ConnectivityProber,
) *http.Server {
	e := echo.New()

	guard := security.NewStationGuard(redisClient, cfg.OperatorPINHash)
	handler := handlers.NewStationHandler(session, reconciler, queue, prober)

	api := e.Group("/api/station", guard.OperatorPIN())
	api.GET("/status", handler.GetStatus)
	api.POST("/sync", handler.TriggerSync, guard.SyncRateLimit(6, time.Minute))
	api.GET("/backlog", handler.GetBacklog)
	api.POST("/backlog/:id/requeue", handler.RequeueBacklogItem)
	api.POST("/dismiss", handler.Dismiss)

	if cfg.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	return &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}
}

// consumeEvents is the stand-in for the kiosk display: it narrates state
// transitions to the operator console.
func consumeEvents(ctx context.Context, events <-chan models.StationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logEvent(ev)
		}
	}
}

func logEvent(ev models.StationEvent) {
	switch ev.State {
	case models.StationProcessing:
		log.Printf("[%s] processing scan %s", ev.StationID, ev.ScanID)
	case models.StationSuccess:
		switch {
		case ev.QueuedOffline:
			log.Printf("[%s] scan %s queued for sync", ev.StationID, ev.ScanID)
		case ev.ProfileID != "":
			log.Printf("[%s] profile %s scanned", ev.StationID, ev.ProfileID)
		case ev.Result != nil && ev.Result.Duplicate:
			log.Printf("[%s] ALREADY CHECKED IN: %s (first at %s)",
				ev.StationID, ev.Result.AttendeeName, ev.Result.FirstCheckInAt)
		case ev.Result != nil:
			log.Printf("[%s] welcome %s", ev.StationID, ev.Result.AttendeeName)
		}
	case models.StationError:
		log.Printf("[%s] scan %s rejected: %s", ev.StationID, ev.ScanID, ev.ErrorMessage)
	}
}
