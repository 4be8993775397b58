// Package config provides configuration handling for voiceform.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/formversation/voiceform/pkg/logging"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Speech configuration
	Speech SpeechConfig `json:"speech"`

	// Collector configuration
	Collector CollectorConfig `json:"collector"`

	// Logging configuration
	Logging logging.Config `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "postgres"

	// PostgreSQL configuration
	Postgres PostgresConfig `json:"postgres"`

	// Sessions configuration
	Sessions SessionsConfig `json:"sessions"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// SessionsConfig contains session snapshot settings
type SessionsConfig struct {
	// Backend selects where snapshots live: "provider" keeps them in
	// the main storage provider, "redis" uses a dedicated Redis store
	Backend string `json:"backend"`

	// Redis configuration (when Backend is "redis")
	Redis RedisConfig `json:"redis"`

	// MaxAgeMinutes is how long an idle session survives before the
	// sweeper removes it
	MaxAgeMinutes int `json:"max_age_minutes"`

	// SweepSchedule is the cron expression for the expiry sweep
	SweepSchedule string `json:"sweep_schedule"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	// Addr is the Redis address
	Addr string `json:"addr"`

	// Password is the Redis password
	Password string `json:"password"`

	// DB is the Redis database number
	DB int `json:"db"`
}

// SpeechConfig contains conversation turn settings
type SpeechConfig struct {
	// ListenTimeoutMs is how long one listen waits for an utterance
	ListenTimeoutMs int `json:"listen_timeout_ms"`

	// MaxAttempts caps re-asks per step; 0 means unbounded
	MaxAttempts int `json:"max_attempts"`
}

// CollectorConfig contains submission collector settings
type CollectorConfig struct {
	// WebhookURL receives submissions for forms without their own URL
	WebhookURL string `json:"webhook_url"`

	// SMTP configuration for submission notification mail
	SMTP SMTPConfig `json:"smtp"`
}

// SMTPConfig contains outbound mail settings
type SMTPConfig struct {
	// Host is the SMTP host; empty disables mail notifications
	Host string `json:"host"`

	// Port is the SMTP port
	Port int `json:"port"`

	// Username for SMTP auth
	Username string `json:"username"`

	// Password for SMTP auth
	Password string `json:"password"`

	// From is the sender address
	From string `json:"from"`

	// To is the notification recipient
	To string `json:"to"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "voiceform",
				User:     "voiceform",
				SSLMode:  "disable",
			},
			Sessions: SessionsConfig{
				Backend:       "provider",
				Redis:         RedisConfig{Addr: "localhost:6379"},
				MaxAgeMinutes: 30,
				SweepSchedule: "*/5 * * * *",
			},
		},
		Speech: SpeechConfig{
			ListenTimeoutMs: 12000,
			MaxAttempts:     0,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
