// Package main serves a simulated Starbook mount.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-starbook/internal/config"
	"github.com/unklstewy/bigskies-starbook/pkg/starbook/simulator"
)

func main() {
	fs := pflag.NewFlagSet("starbook-simulator", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Log.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	simConfig := simulator.Config{
		ListenAddress: cfg.Simulator.ListenAddress,
		Version:       cfg.Simulator.Version,
		HorizonLimit:  cfg.Simulator.HorizonLimit,
		SlewDuration:  cfg.Simulator.SlewDuration,
		Debug:         cfg.Log.Level == "debug",
	}

	server, err := simulator.NewServer(simConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create simulator", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting Starbook simulator",
		zap.String("address", simConfig.ListenAddress),
		zap.String("version", simConfig.Version),
		zap.Float64("horizon_limit", simConfig.HorizonLimit))

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Simulator failed", zap.Error(err))
	}
}
