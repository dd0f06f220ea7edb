package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration. All values are read once
// at startup; every field has a default.
type Config struct {
	Host string
	Port string

	// Admission and abuse controls
	MaxPayload     int64
	MaxClients     int
	MaxRoomClients int

	// Per-client frame token bucket
	MessageRatePerSec float64
	MessageBurst      int

	// Liveness
	HeartbeatInterval time.Duration

	// Admission auth
	WSSecret       string
	AllowedOrigins string

	// Per-IP connection-attempt limit (formatted rate, e.g. "100-M")
	ConnectRatePerIP string

	DevelopmentMode bool
	LogLevel        string
}

// Defaults for every tunable.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = "3000"
	DefaultMaxPayload        = 65536
	DefaultMaxClients        = 1000
	DefaultMaxRoomClients    = 50
	DefaultMessageRatePerSec = 10
	DefaultMessageBurst      = 20
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultConnectRatePerIP  = "100-M"
)

// Load reads, validates, and defaults all environment variables.
// Returns an error describing every invalid variable at once.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Host = getEnvOrDefault("HOST", DefaultHost)

	cfg.Port = getEnvOrDefault("PORT", DefaultPort)
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	maxPayload, err := getEnvInt("MAX_PAYLOAD", DefaultMaxPayload)
	if err != nil || maxPayload < 1 {
		errs = append(errs, fmt.Sprintf("MAX_PAYLOAD must be a positive integer (got '%s')", os.Getenv("MAX_PAYLOAD")))
	}
	cfg.MaxPayload = int64(maxPayload)

	cfg.MaxClients, err = getEnvInt("MAX_CLIENTS", DefaultMaxClients)
	if err != nil || cfg.MaxClients < 1 {
		errs = append(errs, fmt.Sprintf("MAX_CLIENTS must be a positive integer (got '%s')", os.Getenv("MAX_CLIENTS")))
	}

	cfg.MaxRoomClients, err = getEnvInt("MAX_ROOM_CLIENTS", DefaultMaxRoomClients)
	if err != nil || cfg.MaxRoomClients < 1 {
		errs = append(errs, fmt.Sprintf("MAX_ROOM_CLIENTS must be a positive integer (got '%s')", os.Getenv("MAX_ROOM_CLIENTS")))
	}

	ratePerSec, err := getEnvInt("MESSAGE_RATE_PER_SEC", DefaultMessageRatePerSec)
	if err != nil || ratePerSec < 1 {
		errs = append(errs, fmt.Sprintf("MESSAGE_RATE_PER_SEC must be a positive integer (got '%s')", os.Getenv("MESSAGE_RATE_PER_SEC")))
	}
	cfg.MessageRatePerSec = float64(ratePerSec)

	cfg.MessageBurst, err = getEnvInt("MESSAGE_BURST", DefaultMessageBurst)
	if err != nil || cfg.MessageBurst < 1 {
		errs = append(errs, fmt.Sprintf("MESSAGE_BURST must be a positive integer (got '%s')", os.Getenv("MESSAGE_BURST")))
	}

	// HEARTBEAT_INTERVAL is expressed in milliseconds.
	heartbeatMs, err := getEnvInt("HEARTBEAT_INTERVAL", int(DefaultHeartbeatInterval/time.Millisecond))
	if err != nil || heartbeatMs < 1 {
		errs = append(errs, fmt.Sprintf("HEARTBEAT_INTERVAL must be a positive integer of milliseconds (got '%s')", os.Getenv("HEARTBEAT_INTERVAL")))
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatMs) * time.Millisecond

	cfg.WSSecret = os.Getenv("WS_SECRET")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.ConnectRatePerIP = getEnvOrDefault("CONNECT_RATE_PER_IP", DefaultConnectRatePerIP)
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated",
		"host", cfg.Host,
		"port", cfg.Port,
		"max_payload", cfg.MaxPayload,
		"max_clients", cfg.MaxClients,
		"max_room_clients", cfg.MaxRoomClients,
		"message_rate_per_sec", cfg.MessageRatePerSec,
		"message_burst", cfg.MessageBurst,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"ws_secret", redactSecret(cfg.WSSecret),
		"allowed_origins", cfg.AllowedOrigins,
		"connect_rate_per_ip", cfg.ConnectRatePerIP,
		"development_mode", cfg.DevelopmentMode,
		"log_level", cfg.LogLevel,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default
// value if unset or empty
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable, falling back to the default when unset.
func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

// redactSecret redacts a secret, keeping only a short prefix for identification
func redactSecret(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}
