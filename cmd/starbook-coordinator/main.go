// Package main is the entry point for the Starbook coordinator service.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-starbook/internal/config"
	"github.com/unklstewy/bigskies-starbook/internal/coordinators"
	"github.com/unklstewy/bigskies-starbook/internal/journal"
	"github.com/unklstewy/bigskies-starbook/internal/metrics"
	"github.com/unklstewy/bigskies-starbook/pkg/starbook"
)

func main() {
	fs := pflag.NewFlagSet("starbook-coordinator", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateCoordinator(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting Starbook coordinator",
		zap.String("mount", cfg.Mount.Host),
		zap.Int("port", cfg.Mount.Port),
		zap.String("broker", cfg.MQTT.BrokerURL),
		zap.String("database", maskDatabaseURL(cfg.Database.URL)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := starbook.NewHTTPTransport(cfg.TransportConfig(), logger)
	mount, err := starbook.NewCommandInterface(cfg.StarbookConfig(), transport, logger)
	if err != nil {
		logger.Fatal("Failed to create command interface", zap.Error(err))
	}

	recorder, closeJournal, err := openJournal(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to open command journal", zap.Error(err))
	}
	defer closeJournal()

	bus, err := coordinators.CreateMQTTClient(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password, logger)
	if err != nil {
		logger.Fatal("Failed to create MQTT client", zap.Error(err))
	}

	coordinator, err := coordinators.NewStarbookCoordinator(&coordinators.StarbookCoordinatorConfig{
		MountName:      cfg.Mount.Host,
		StatusInterval: cfg.Coordinator.StatusInterval,
		HealthInterval: cfg.Coordinator.HealthInterval,
		HTTPAddress:    cfg.Coordinator.HTTPAddress,
		Recorder:       recorder,
		Metrics:        metrics.New(),
	}, mount, bus, logger)
	if err != nil {
		logger.Fatal("Failed to create Starbook coordinator", zap.Error(err))
	}

	if err := coordinator.Start(ctx); err != nil {
		logger.Fatal("Failed to start coordinator", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Starbook coordinator running, press Ctrl+C to stop")

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := coordinator.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Starbook coordinator stopped successfully")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zapConfig := zap.NewProductionConfig()
	if err := zapConfig.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return zapConfig.Build()
}

// openJournal opens the PostgreSQL journal, or an in-memory one when no
// database is configured.
func openJournal(ctx context.Context, databaseURL string, logger *zap.Logger) (journal.Recorder, func(), error) {
	if databaseURL == "" {
		logger.Info("No database configured, journaling in memory")
		return journal.NewMemory(0), func() {}, nil
	}

	j, err := journal.Open(ctx, databaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := j.EnsureSchema(ctx); err != nil {
		j.Close()
		return nil, nil, err
	}
	return j, j.Close, nil
}

// maskDatabaseURL hides the password of a database URL for logging.
func maskDatabaseURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
