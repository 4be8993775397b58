package storage

import (
	"fmt"
	"time"

	"github.com/formversation/voiceform/pkg/config"
)

// NewProvider creates a storage provider from configuration.
func NewProvider(cfg config.StorageConfig) (Provider, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryProvider(), nil
	case "postgres", "postgresql":
		return NewPostgreSQLProvider(PostgreSQLProviderConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewSessionStore creates the session store from configuration. The
// "redis" backend gets a dedicated TTL-based store; anything else uses
// the provider's own session store.
func NewSessionStore(cfg config.SessionsConfig, provider Provider) (SessionStore, error) {
	switch cfg.Backend {
	case "provider", "":
		return provider.SessionStore(), nil
	case "redis":
		ttl := time.Duration(cfg.MaxAgeMinutes) * time.Minute
		return NewRedisSessionStore(RedisSessionStoreConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}
