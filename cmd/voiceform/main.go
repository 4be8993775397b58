// Package main is the entry point for the voiceform server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/formversation/voiceform/pkg/api"
	"github.com/formversation/voiceform/pkg/config"
	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/registry"
	"github.com/formversation/voiceform/pkg/scheduler"
	"github.com/formversation/voiceform/pkg/storage"
)

var (
	// Command-line flags
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "voiceform"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Application failed: %v", err)
		}
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Fatalf("Error during shutdown: %v", err)
		}
	}
}

// loadConfig loads the configuration from the specified path or creates a default one
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".voiceform", "config.json"),
			"/etc/voiceform/config.json",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		// If no config file is found, create a default one
		if cfg == nil {
			cfg = config.DefaultConfig()

			defaultPath := filepath.Join(os.Getenv("HOME"), ".voiceform", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}

			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	overrideConfigFromEnv(cfg)

	return cfg, nil
}

// overrideConfigFromEnv overrides configuration values from environment variables
func overrideConfigFromEnv(cfg *config.Config) {
	// Server configuration
	if host := os.Getenv("VOICEFORM_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("VOICEFORM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Storage configuration
	if storageType := os.Getenv("VOICEFORM_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}

	// PostgreSQL configuration
	if host := os.Getenv("VOICEFORM_POSTGRES_HOST"); host != "" {
		cfg.Storage.Postgres.Host = host
	}
	if port := os.Getenv("VOICEFORM_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Storage.Postgres.Port = p
		}
	}
	if database := os.Getenv("VOICEFORM_POSTGRES_DATABASE"); database != "" {
		cfg.Storage.Postgres.Database = database
	}
	if user := os.Getenv("VOICEFORM_POSTGRES_USER"); user != "" {
		cfg.Storage.Postgres.User = user
	}
	if password := os.Getenv("VOICEFORM_POSTGRES_PASSWORD"); password != "" {
		cfg.Storage.Postgres.Password = password
	}
	if sslMode := os.Getenv("VOICEFORM_POSTGRES_SSL_MODE"); sslMode != "" {
		cfg.Storage.Postgres.SSLMode = sslMode
	}

	// Session configuration
	if backend := os.Getenv("VOICEFORM_SESSION_BACKEND"); backend != "" {
		cfg.Storage.Sessions.Backend = backend
	}
	if addr := os.Getenv("VOICEFORM_REDIS_ADDR"); addr != "" {
		cfg.Storage.Sessions.Redis.Addr = addr
	}
	if password := os.Getenv("VOICEFORM_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Sessions.Redis.Password = password
	}

	// Collector configuration
	if url := os.Getenv("VOICEFORM_WEBHOOK_URL"); url != "" {
		cfg.Collector.WebhookURL = url
	}
	if host := os.Getenv("VOICEFORM_SMTP_HOST"); host != "" {
		cfg.Collector.SMTP.Host = host
	}
	if port := os.Getenv("VOICEFORM_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Collector.SMTP.Port = p
		}
	}
	if user := os.Getenv("VOICEFORM_SMTP_USERNAME"); user != "" {
		cfg.Collector.SMTP.Username = user
	}
	if password := os.Getenv("VOICEFORM_SMTP_PASSWORD"); password != "" {
		cfg.Collector.SMTP.Password = password
	}
	if from := os.Getenv("VOICEFORM_SMTP_FROM"); from != "" {
		cfg.Collector.SMTP.From = from
	}
	if to := os.Getenv("VOICEFORM_SMTP_TO"); to != "" {
		cfg.Collector.SMTP.To = to
	}

	// Logging configuration
	if level := os.Getenv("VOICEFORM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// App represents the voiceform application
type App struct {
	config          *config.Config
	log             logging.Logger
	server          *api.Server
	sweeper         *scheduler.Sweeper
	storageProvider storage.Provider
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	storageProvider, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	if err := storageProvider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("storage initialized", logging.F("type", cfg.Storage.Type))

	sessionStore, err := storage.NewSessionStore(cfg.Storage.Sessions, storageProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	formRegistry := registry.NewFormRegistry(storageProvider.FormStore(), flow.NewLoader())

	server := api.NewServer(cfg, formRegistry, storageProvider.SubmissionStore(), sessionStore, logger)

	maxAge := time.Duration(cfg.Storage.Sessions.MaxAgeMinutes) * time.Minute
	sweeper := scheduler.NewSweeper(sessionStore, server.Sessions(), maxAge, cfg.Storage.Sessions.SweepSchedule, logger)

	return &App{
		config:          cfg,
		log:             logger,
		server:          server,
		sweeper:         sweeper,
		storageProvider: storageProvider,
	}, nil
}

// Start starts the HTTP server and the session sweeper
func (a *App) Start() error {
	if err := a.sweeper.Start(); err != nil {
		return err
	}
	return a.server.Start()
}

// Stop shuts the application down gracefully
func (a *App) Stop(ctx context.Context) error {
	a.sweeper.Stop()
	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	return a.storageProvider.Close()
}
