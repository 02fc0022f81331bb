// Package config provides configuration management for the wallet sync client.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Backend       BackendConfig
	Sync          SyncConfig
	Watch         WatchConfig
	Notifications NotificationConfig
	Store         StoreConfig
	Logging       LoggingConfig
}

// ServerConfig holds the local status API configuration
type ServerConfig struct {
	Port        string
	Host        string
	ClientRPS   int
	ClientBurst int
}

// BackendConfig holds the remote wallet API configuration
type BackendConfig struct {
	BaseURL        string
	Token          string
	Identity       string
	RequestsPerSec int
	Timeout        time.Duration
}

// SyncConfig holds sync controller configuration
type SyncConfig struct {
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
	PageLimit          int
	FetchTimeout       time.Duration
}

// WatchConfig holds payment status watcher configuration
type WatchConfig struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

// NotificationConfig holds push/notification configuration
type NotificationConfig struct {
	UserAgent               string
	PushEndpoint            string // empty disables push on the headless platform
	PublicBaseURL           string // prefix for relative notification links
	TelegramBotToken        string
	TelegramChatID          int64
	OrphanReconcileInterval time.Duration
}

// StoreConfig selects and configures the preference store backend
type StoreConfig struct {
	Backend    string // memory, redis or sqlite
	SQLitePath string
	Redis      RedisConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; variables may come from the environment
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8787"),
			Host:        getEnv("SERVER_HOST", "127.0.0.1"),
			ClientRPS:   getEnvAsInt("API_CLIENT_RPS", 20),
			ClientBurst: getEnvAsInt("API_CLIENT_BURST", 40),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimSuffix(getEnv("WALLET_API_BASE_URL", "http://localhost:3000/api"), "/"),
			Token:          getEnv("WALLET_API_TOKEN", ""),
			Identity:       getEnv("WALLET_IDENTITY", ""),
			RequestsPerSec: getEnvAsInt("WALLET_API_RPS", 10),
			Timeout:        getEnvAsDuration("WALLET_API_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			ForegroundInterval: getEnvAsDuration("SYNC_FOREGROUND_INTERVAL", 10*time.Second),
			BackgroundInterval: getEnvAsDuration("SYNC_BACKGROUND_INTERVAL", 30*time.Second),
			PageLimit:          getEnvAsInt("SYNC_PAGE_LIMIT", 20),
			FetchTimeout:       getEnvAsDuration("SYNC_FETCH_TIMEOUT", 15*time.Second),
		},
		Watch: WatchConfig{
			Interval:    getEnvAsDuration("WATCH_INTERVAL", 2*time.Second),
			MaxDuration: getEnvAsDuration("WATCH_MAX_DURATION", 10*time.Minute),
		},
		Notifications: NotificationConfig{
			UserAgent:               getEnv("USER_AGENT", "walletsync/1.0 (X11; Linux x86_64)"),
			PushEndpoint:            getEnv("PUSH_ENDPOINT", ""),
			PublicBaseURL:           strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", ""), "/"),
			TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:          getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			OrphanReconcileInterval: getEnvAsDuration("ORPHAN_RECONCILE_INTERVAL", 5*time.Minute),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("PREFERENCE_STORE", "memory")),
			SQLitePath: getEnv("SQLITE_PATH", "./walletsync.db"),
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Sync.ForegroundInterval <= 0 || c.Sync.BackgroundInterval <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	if c.Sync.PageLimit <= 0 {
		return fmt.Errorf("SYNC_PAGE_LIMIT must be positive, got %d", c.Sync.PageLimit)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("WATCH_INTERVAL must be positive")
	}
	if c.Notifications.TelegramBotToken != "" && c.Notifications.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	switch c.Store.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown PREFERENCE_STORE %q (want memory, redis or sqlite)", c.Store.Backend)
	}
	return nil
}

// RedisAddr returns host:port for the Redis preference store
func (c RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
