// Package coordinators implements the services that bridge devices onto the
// message bus.
package coordinators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-starbook/pkg/api"
	"github.com/unklstewy/bigskies-starbook/pkg/healthcheck"
	"github.com/unklstewy/bigskies-starbook/pkg/mqtt"
)

// connector is implemented by buses that manage their own connection.
type connector interface {
	Connect() error
	Disconnect()
}

// BaseCoordinator provides lifecycle, health and shutdown bookkeeping shared by
// coordinators.
type BaseCoordinator struct {
	name          string
	bus           mqtt.Bus
	healthEngine  *healthcheck.Engine
	logger        *zap.Logger
	running       bool
	mu            sync.RWMutex
	startTime     time.Time
	shutdownFuncs []func(context.Context) error
}

// NewBaseCoordinator creates a base coordinator. bus may be nil in tests.
func NewBaseCoordinator(name string, bus mqtt.Bus, logger *zap.Logger) *BaseCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BaseCoordinator{
		name:          name,
		bus:           bus,
		healthEngine:  healthcheck.NewEngine(logger, 5*time.Second),
		logger:        logger.With(zap.String("coordinator", name)),
		shutdownFuncs: make([]func(context.Context) error, 0),
	}
}

// Name returns the coordinator name.
func (bc *BaseCoordinator) Name() string {
	return bc.name
}

// IsRunning returns true if the coordinator is running.
func (bc *BaseCoordinator) IsRunning() bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.running
}

func (bc *BaseCoordinator) setRunning(running bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.running = running
	if running {
		bc.startTime = time.Now()
	}
}

// Start connects the bus if needed and marks the coordinator running.
func (bc *BaseCoordinator) Start(ctx context.Context) error {
	if bc.IsRunning() {
		return fmt.Errorf("coordinator %s is already running", bc.name)
	}

	bc.logger.Info("Starting coordinator")

	if bc.bus != nil && !bc.bus.IsConnected() {
		if conn, ok := bc.bus.(connector); ok {
			if err := conn.Connect(); err != nil {
				return fmt.Errorf("failed to connect MQTT: %w", err)
			}
		}
	}

	bc.setRunning(true)
	bc.logger.Info("Coordinator started successfully")

	return nil
}

// Stop runs shutdown functions in reverse registration order and disconnects.
func (bc *BaseCoordinator) Stop(ctx context.Context) error {
	if !bc.IsRunning() {
		return nil
	}

	bc.logger.Info("Stopping coordinator")

	bc.mu.RLock()
	funcs := append([]func(context.Context) error(nil), bc.shutdownFuncs...)
	bc.mu.RUnlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			bc.logger.Error("Shutdown function failed", zap.Error(err))
		}
	}

	if bc.bus != nil && bc.bus.IsConnected() {
		if conn, ok := bc.bus.(connector); ok {
			conn.Disconnect()
		}
	}

	bc.setRunning(false)
	bc.logger.Info("Coordinator stopped")

	return nil
}

// HealthCheck reports whether the coordinator runs and its bus is connected.
func (bc *BaseCoordinator) HealthCheck(ctx context.Context) *healthcheck.Result {
	status := healthcheck.StatusHealthy
	message := "Coordinator is healthy"

	connected := bc.bus != nil && bc.bus.IsConnected()
	if !bc.IsRunning() {
		status = healthcheck.StatusUnhealthy
		message = "Coordinator is not running"
	} else if bc.bus != nil && !connected {
		status = healthcheck.StatusDegraded
		message = "MQTT client not connected"
	}

	bc.mu.RLock()
	uptime := time.Since(bc.startTime)
	bc.mu.RUnlock()

	return &healthcheck.Result{
		ComponentName: bc.name,
		Status:        status,
		Message:       message,
		Timestamp:     time.Now(),
		Details: map[string]interface{}{
			"uptime_seconds": uptime.Seconds(),
			"mqtt_connected": connected,
		},
	}
}

// RegisterShutdownFunc adds a function to be called during shutdown.
func (bc *BaseCoordinator) RegisterShutdownFunc(fn func(context.Context) error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.shutdownFuncs = append(bc.shutdownFuncs, fn)
}

// RegisterHealthCheck adds a health checker to the coordinator.
func (bc *BaseCoordinator) RegisterHealthCheck(checker healthcheck.Checker) {
	bc.healthEngine.Register(checker)
}

// HealthEngine returns the health check engine.
func (bc *BaseCoordinator) HealthEngine() *healthcheck.Engine {
	return bc.healthEngine
}

// Bus returns the message bus, possibly nil.
func (bc *BaseCoordinator) Bus() mqtt.Bus {
	return bc.bus
}

// Logger returns the coordinator logger.
func (bc *BaseCoordinator) Logger() *zap.Logger {
	return bc.logger
}

// StartHealthPublishing publishes the aggregated health every interval until
// ctx is done. Without a bus the checks still run so /healthz stays current.
func (bc *BaseCoordinator) StartHealthPublishing(ctx context.Context, interval time.Duration) {
	reporter := healthcheck.NewReporter(bc.healthEngine, bc.publishHealth, bc.logger)
	reporter.Run(ctx, interval)
}

func (bc *BaseCoordinator) publishHealth(_ context.Context, result *healthcheck.AggregatedResult) error {
	if bc.bus == nil {
		return nil
	}

	msg, err := mqtt.NewMessage(mqtt.MessageTypeStatus, "coordinator:"+bc.name, result)
	if err != nil {
		return fmt.Errorf("failed to create health message: %w", err)
	}

	topic := mqtt.CoordinatorHealthTopic(bc.name)
	if err := bc.bus.PublishJSON(topic, true, msg); err != nil {
		return fmt.Errorf("failed to publish health to %s: %w", topic, err)
	}
	return nil
}

// CreateMQTTClient builds the bus client for a coordinator.
func CreateMQTTClient(brokerURL, clientID, username, password string, logger *zap.Logger) (*mqtt.Client, error) {
	if brokerURL == "" {
		brokerURL = "tcp://localhost:1883"
	}

	config := mqtt.DefaultConfig(brokerURL, clientID)
	config.Username = username
	config.Password = password

	return mqtt.NewClient(config, logger)
}

var _ api.Coordinator = (*BaseCoordinator)(nil)
