package main

import (
	"log"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"checkin-system/config"
	"checkin-system/handlers"
	_ "checkin-system/migrations"
	"checkin-system/monitoring"
	"checkin-system/services"
	"checkin-system/utils"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub for the live attendance dashboard
	var publisher services.ActivityPublisher
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		publisher = services.NewPubNubActivityPublisher(pubnub.NewPubNub(pnConfig))
	}

	// Initialize services
	monitor := monitoring.NewMonitor(redisClient, "")
	store := services.NewPBStore(app)
	counter := services.NewRedisAttendanceCounter(redisClient)
	checkInService := services.NewCheckInService(store, store, store, counter, publisher, monitor)

	// Initialize handlers
	checkInHandler := handlers.NewCheckInHandler(checkInService, store)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Expose Prometheus metrics on a side port so the main API stays clean
	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Check-in endpoints
		e.Router.POST("/api/checkin", checkInHandler.Create)
		e.Router.GET("/api/events/{eventId}/checkins", checkInHandler.ListByEvent)
		e.Router.GET("/api/events/{eventId}/attendance", checkInHandler.Attendance)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("Metrics listening on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}
