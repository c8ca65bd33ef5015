package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	ServerURL   string // base URL stations use to reach the processor

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Station configuration
	StationID       string
	Method          string
	OperatorPINHash string // bcrypt hash guarding the station admin API
	ScanInterval    time.Duration
	ScanCooldown    time.Duration
	AutoResetDelay  time.Duration
	ProcessTimeout  time.Duration

	// Sync configuration
	SyncInterval    time.Duration
	SyncBatchSize   int
	SyncConcurrency int
	MaxSyncAttempts int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	ProbeInterval   time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env: %v", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerURL:   getEnv("SERVER_URL", "http://localhost:8090"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Station
		StationID:       getEnv("STATION_ID", ""),
		Method:          getEnv("CHECKIN_METHOD", "qr_code"),
		OperatorPINHash: getEnv("OPERATOR_PIN_HASH", ""),
		ScanInterval:    getEnvAsDuration("SCAN_INTERVAL", "150ms"),
		ScanCooldown:    getEnvAsDuration("SCAN_COOLDOWN", "2s"),
		AutoResetDelay:  getEnvAsDuration("AUTO_RESET_DELAY", "4s"),
		ProcessTimeout:  getEnvAsDuration("PROCESS_TIMEOUT", "5s"),

		// Sync
		SyncInterval:    getEnvAsDuration("SYNC_INTERVAL", "30s"),
		SyncBatchSize:   getEnvAsInt("SYNC_BATCH_SIZE", 25),
		SyncConcurrency: getEnvAsInt("SYNC_CONCURRENCY", 4),
		MaxSyncAttempts: getEnvAsInt("MAX_SYNC_ATTEMPTS", 8),
		BackoffBase:     getEnvAsDuration("BACKOFF_BASE", "1s"),
		BackoffCap:      getEnvAsDuration("BACKOFF_CAP", "60s"),
		ProbeInterval:   getEnvAsDuration("PROBE_INTERVAL", "5s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
