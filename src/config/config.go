package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

// GlobalConfig holds all service configuration, loaded from the environment
type GlobalConfig struct {
	Host     string
	Port     string
	LogLevel string

	Database DatabaseConfig

	// EventsAMQPURL enables mirroring of collaboration events to a RabbitMQ
	// fanout exchange when set; empty disables the mirror.
	EventsAMQPURL      string
	EventsExchangeName string

	// AIServiceURL is the base URL of the generation provider service.
	AIServiceURL string

	CacheTTL          time.Duration
	InactivityWindow  time.Duration
	SweepInterval     time.Duration
	WorkerCount       int
	JobMaxRetries     int
	JobBackoffBase    time.Duration
	JobBackoffCap     time.Duration
	StageTimeout      time.Duration
	PersistMaxRetries int
	JobRetention      time.Duration
}

// NewConfig loads configuration from the environment. Connection details are
// required; tuning knobs fall back to defaults.
func NewConfig() (*GlobalConfig, error) {
	host, err := requireEnv("HOST")
	if err != nil {
		return nil, err
	}
	port, err := requireEnv("PORT")
	if err != nil {
		return nil, err
	}

	dbHost, err := requireEnv("DB_HOST")
	if err != nil {
		return nil, err
	}
	dbPortStr, err := requireEnv("DB_PORT")
	if err != nil {
		return nil, err
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("DB_PORT must be a valid integer: %w", err)
	}
	dbUser, err := requireEnv("DB_USER")
	if err != nil {
		return nil, err
	}
	dbPass, err := requireEnv("DB_PASS")
	if err != nil {
		return nil, err
	}
	dbName, err := requireEnv("DB_NAME")
	if err != nil {
		return nil, err
	}

	aiServiceURL, err := requireEnv("AI_SERVICE_URL")
	if err != nil {
		return nil, err
	}

	cfg := &GlobalConfig{
		Host:     host,
		Port:     port,
		LogLevel: envDefault("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     dbHost,
			Port:     dbPort,
			User:     dbUser,
			Password: dbPass,
			DBName:   dbName,
		},
		EventsAMQPURL:      os.Getenv("EVENTS_AMQP_URL"),
		EventsExchangeName: envDefault("EVENTS_EXCHANGE_NAME", "trip_events"),
		AIServiceURL:       aiServiceURL,
		CacheTTL:           envSecondsDefault("CACHE_TTL_SECONDS", 300),
		InactivityWindow:   envSecondsDefault("SESSION_INACTIVITY_SECONDS", 120),
		SweepInterval:      envSecondsDefault("SESSION_SWEEP_INTERVAL_SECONDS", 30),
		WorkerCount:        envIntDefault("WORKER_COUNT", 4),
		JobMaxRetries:      envIntDefault("JOB_MAX_RETRIES", 3),
		JobBackoffBase:     envMillisDefault("JOB_BACKOFF_BASE_MS", 500),
		JobBackoffCap:      envMillisDefault("JOB_BACKOFF_CAP_MS", 30000),
		StageTimeout:       envSecondsDefault("STAGE_TIMEOUT_SECONDS", 60),
		PersistMaxRetries:  envIntDefault("PERSIST_MAX_RETRIES", 3),
		JobRetention:       envSecondsDefault("JOB_RETENTION_SECONDS", 86400),
	}

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return value, nil
}

func envDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envSecondsDefault(key string, fallback int) time.Duration {
	return time.Duration(envIntDefault(key, fallback)) * time.Second
}

func envMillisDefault(key string, fallback int) time.Duration {
	return time.Duration(envIntDefault(key, fallback)) * time.Millisecond
}
