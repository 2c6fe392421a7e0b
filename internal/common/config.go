package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Worker   WorkerConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	Storage  StorageConfig
	Health   HealthConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// WorkerConfig holds job pipeline configuration
type WorkerConfig struct {
	ID             string
	PollInterval   time.Duration
	Workers        int
	ParserBin      string
	ParseTimeout   time.Duration
	ParseMaxOutput int64
	UploadDir      string
	MaxUploadBytes int64
	NotifyTimeout  time.Duration
}

// RedisConfig holds the push channel transport configuration
type RedisConfig struct {
	URL           string
	ChannelPrefix string
}

// SMTPConfig holds email transport configuration
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
	TLS         string
	Timeout     time.Duration
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	GCSEnabled bool
	GCSBucket  string // upload target for ordersctl submit; reads accept any bucket
}

// HealthConfig holds the gRPC health endpoint configuration
type HealthConfig struct {
	Addr     string
	Interval time.Duration
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string
	Format string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory (or its parent) is read first; real env vars win.
func LoadConfig() *Config {
	loadEnvFile()

	smtpUser := getEnv("SMTP_USER", "")
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Worker: WorkerConfig{
			ID:             getEnv("WORKER_ID", ""),
			PollInterval:   getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
			Workers:        getEnvAsInt("WORKERS", 1),
			ParserBin:      getEnv("PARSER_BIN", "sheet-parser"),
			ParseTimeout:   getEnvAsDuration("PARSE_TIMEOUT", 30*time.Second),
			ParseMaxOutput: getEnvAsInt64("PARSE_MAX_OUTPUT", 64<<20),
			UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 50<<20),
			NotifyTimeout:  getEnvAsDuration("NOTIFY_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
			ChannelPrefix: getEnv("PUSH_CHANNEL_PREFIX", "owner:"),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:        getEnvAsInt("SMTP_PORT", 587),
			Username:    smtpUser,
			Password:    getEnv("SMTP_PASS", ""),
			FromName:    getEnv("FROM_NAME", "Bulk Order Dashboard"),
			FromAddress: getEnv("FROM_ADDRESS", smtpUser),
			TLS:         strings.ToLower(getEnv("SMTP_TLS", "opportunistic")),
			Timeout:     getEnvAsDuration("SMTP_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			GCSEnabled: getEnvAsBool("GCS_ENABLED", false),
			GCSBucket:  getEnv("GCS_BUCKET", ""),
		},
		Health: HealthConfig{
			Addr:     getEnv("HEALTH_ADDR", ":8081"),
			Interval: getEnvAsDuration("HEALTH_INTERVAL", 10*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
}

func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	_ = godotenv.Load(filepath.Join(parent, ".env"))
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_URL", c.Database.DSN, Required).
		Field("DB_DRIVER", c.Database.Driver, OneOf(DriverPostgres, DriverSQLite)).
		Field("PARSER_BIN", c.Worker.ParserBin, Required).
		Field("UPLOAD_DIR", c.Worker.UploadDir, Required).
		Field("REDIS_URL", c.Redis.URL, Required).
		Field("SMTP_HOST", c.SMTP.Host, Required)
	if c.Worker.PollInterval <= 0 {
		v.Add("POLL_INTERVAL", c.Worker.PollInterval, "must be positive")
	}
	if c.Worker.Workers < 1 {
		v.Add("WORKERS", c.Worker.Workers, "must be at least 1")
	}
	if c.Worker.ParseTimeout <= 0 {
		v.Add("PARSE_TIMEOUT", c.Worker.ParseTimeout, "must be positive")
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
