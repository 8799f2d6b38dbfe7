// Package api defines the interfaces shared by coordinator binaries.
package api

import (
	"context"

	"github.com/unklstewy/bigskies-starbook/pkg/healthcheck"
)

// Coordinator is a long-running service with a managed lifecycle.
type Coordinator interface {
	// Name returns the unique name of the coordinator
	Name() string

	// Start initializes and starts the coordinator
	Start(ctx context.Context) error

	// Stop gracefully shuts down the coordinator
	Stop(ctx context.Context) error

	// HealthCheck returns the health status of the coordinator
	HealthCheck(ctx context.Context) *healthcheck.Result

	// IsRunning returns true if the coordinator is currently running
	IsRunning() bool
}
