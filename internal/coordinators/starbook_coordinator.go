package coordinators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-starbook/internal/journal"
	"github.com/unklstewy/bigskies-starbook/internal/metrics"
	"github.com/unklstewy/bigskies-starbook/pkg/healthcheck"
	"github.com/unklstewy/bigskies-starbook/pkg/mqtt"
	"github.com/unklstewy/bigskies-starbook/pkg/starbook"
)

// StarbookCoordinatorConfig holds configuration for the Starbook coordinator.
type StarbookCoordinatorConfig struct {
	// MountName labels journal entries, usually the mount host
	MountName string
	// StatusInterval is the GETSTATUS poll period (0 disables polling)
	StatusInterval time.Duration
	// HealthInterval is the health publishing period
	HealthInterval time.Duration
	// HTTPAddress serves /healthz, /diagnostics and /metrics (empty disables it)
	HTTPAddress string
	// DiagnosticsLimit caps the journal entries returned by /diagnostics
	DiagnosticsLimit int
	// Recorder journals every round trip (optional)
	Recorder journal.Recorder
	// Metrics receives round-trip observations (optional)
	Metrics *metrics.Metrics
}

// Diagnostics is the last exchange with the mount.
type Diagnostics struct {
	Operation      string    `json:"operation,omitempty"`
	LastRequestURL string    `json:"last_request_url"`
	LastResponse   string    `json:"last_response"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StarbookCoordinator bridges one Starbook mount onto the message bus. Every
// operation takes the mount lock, so commands from MQTT, the status poll and
// the health check never overlap on the wire.
type StarbookCoordinator struct {
	*BaseCoordinator
	config *StarbookCoordinatorConfig

	mount   *starbook.CommandInterface
	mountMu sync.Mutex

	diagMu      sync.RWMutex
	diagnostics Diagnostics

	router     *gin.Engine
	httpServer *http.Server

	wg sync.WaitGroup
}

// NewStarbookCoordinator creates a coordinator for mount.
//
// Parameters:
//   - config: Coordinator configuration (defaults are filled in place)
//   - mount: Command interface of the mount, owned by the coordinator from now on
//   - bus: Message bus (nil runs the coordinator without MQTT)
//   - logger: Structured logger (if nil, a no-op logger is used)
func NewStarbookCoordinator(config *StarbookCoordinatorConfig, mount *starbook.CommandInterface, bus mqtt.Bus, logger *zap.Logger) (*StarbookCoordinator, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if mount == nil {
		return nil, fmt.Errorf("mount cannot be nil")
	}
	if config.MountName == "" {
		config.MountName = mqtt.CoordinatorStarbook
	}
	if config.HealthInterval == 0 {
		config.HealthInterval = 30 * time.Second
	}
	if config.DiagnosticsLimit == 0 {
		config.DiagnosticsLimit = 20
	}

	coord := &StarbookCoordinator{
		BaseCoordinator: NewBaseCoordinator(mqtt.CoordinatorStarbook, bus, logger),
		config:          config,
		mount:           mount,
	}
	coord.router = coord.setupRouter()

	coord.RegisterHealthCheck(healthcheck.NewChecker("mount", coord.checkMount))
	coord.RegisterHealthCheck(healthcheck.NewChecker("coordinator", coord.HealthCheck))

	return coord, nil
}

// Handler returns the ops HTTP handler.
func (c *StarbookCoordinator) Handler() http.Handler {
	return c.router
}

// Start subscribes to the command topics and launches the status poll, the
// health publisher and the ops HTTP server.
func (c *StarbookCoordinator) Start(ctx context.Context) error {
	if err := c.BaseCoordinator.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		c.wg.Wait()
		return nil
	})

	if bus := c.Bus(); bus != nil {
		topic := mqtt.CoordinatorCommandWildcard(mqtt.CoordinatorStarbook)
		handler := func(topic string, payload []byte) error {
			return c.handleMessage(runCtx, topic, payload)
		}
		if err := bus.Subscribe(topic, handler); err != nil {
			_ = c.BaseCoordinator.Stop(ctx)
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		c.RegisterShutdownFunc(func(context.Context) error {
			if !bus.IsConnected() {
				return nil
			}
			return bus.Unsubscribe(topic)
		})
	}

	c.goLoop(func() { c.StartHealthPublishing(runCtx, c.config.HealthInterval) })

	if c.config.StatusInterval > 0 {
		c.goLoop(func() { c.pollStatus(runCtx) })
	}

	if c.config.HTTPAddress != "" {
		c.startHTTP()
	}

	c.Logger().Info("Starbook coordinator started",
		zap.String("mount", c.config.MountName),
		zap.Duration("status_interval", c.config.StatusInterval),
		zap.String("http_address", c.config.HTTPAddress))

	return nil
}

func (c *StarbookCoordinator) goLoop(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *StarbookCoordinator) startHTTP() {
	c.httpServer = &http.Server{
		Addr:              c.config.HTTPAddress,
		Handler:           c.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.goLoop(func() {
		c.Logger().Info("Ops endpoint listening", zap.String("address", c.httpServer.Addr))
		if err := c.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger().Error("Ops endpoint failed", zap.Error(err))
		}
	})

	c.RegisterShutdownFunc(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return c.httpServer.Shutdown(shutdownCtx)
	})
}

// Dispatch runs op with a JSON request body and builds the response payload.
// It is the single entry point for MQTT and HTTP callers.
func (c *StarbookCoordinator) Dispatch(ctx context.Context, op string, body json.RawMessage) mqtt.ResponseMessage {
	operation, ok := operations[op]
	if !ok {
		return mqtt.ResponseMessage{
			Success: false,
			Error:   fmt.Sprintf("unknown operation %q", op),
		}
	}

	result, code, err := c.run(ctx, op, operation, body)
	if err != nil {
		return mqtt.ResponseMessage{
			Success: false,
			Data:    OpResult{Code: code},
			Error:   err.Error(),
		}
	}

	resp := mqtt.ResponseMessage{
		Success: code == starbook.ResponseOK,
		Data:    OpResult{Code: code, Result: result},
	}
	if !resp.Success {
		resp.Error = code.String()
	}
	return resp
}

// run executes one operation under the mount lock and records the exchange.
func (c *StarbookCoordinator) run(ctx context.Context, op string, operation operation, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
	c.mountMu.Lock()
	start := time.Now()
	result, code, err := operation.run(ctx, c.mount, body)
	duration := time.Since(start)
	sent := !rejectedLocally(err)
	var url, payload string
	if sent {
		url = c.mount.LastRequestURL()
		payload = c.mount.LastResponse()
	}
	c.mountMu.Unlock()

	if sent {
		c.diagMu.Lock()
		c.diagnostics = Diagnostics{
			Operation:      op,
			LastRequestURL: url,
			LastResponse:   payload,
			UpdatedAt:      time.Now().UTC(),
		}
		c.diagMu.Unlock()
	}

	c.observe(ctx, operation.command, url, payload, code, err, duration, sent)

	return result, code, err
}

// rejectedLocally reports errors raised before anything was sent to the mount.
func rejectedLocally(err error) bool {
	return errors.Is(err, starbook.ErrValidation) || errors.Is(err, errBadRequest)
}

// errorKind labels a hard failure for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "request"
	case errors.Is(err, starbook.ErrValidation):
		return "validation"
	case errors.Is(err, starbook.ErrTransport):
		return "transport"
	case errors.Is(err, starbook.ErrFraming):
		return "framing"
	case errors.Is(err, starbook.ErrParse):
		return "parse"
	case errors.Is(err, starbook.ErrFormat):
		return "format"
	default:
		return "unknown"
	}
}

func (c *StarbookCoordinator) observe(ctx context.Context, command, url, payload string, code starbook.ResponseCode, err error, duration time.Duration, sent bool) {
	if m := c.config.Metrics; m != nil {
		if err != nil {
			m.ObserveFailure(command, errorKind(err), duration)
		} else {
			m.ObserveCommand(command, code.String(), duration)
		}
	}

	if c.config.Recorder == nil || !sent {
		return
	}

	entry := journal.Entry{
		Mount:      c.config.MountName,
		Command:    command,
		RequestURL: url,
		Payload:    payload,
		Code:       code.String(),
		Duration:   duration,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if err := c.config.Recorder.Record(ctx, entry); err != nil {
		c.Logger().Warn("Failed to journal command",
			zap.String("command", command),
			zap.Error(err))
	}
}

// handleMessage answers one command published on the bus.
func (c *StarbookCoordinator) handleMessage(ctx context.Context, topic string, payload []byte) error {
	op, err := mqtt.CommandOp(mqtt.CoordinatorStarbook, topic)
	if err != nil {
		return err
	}

	request, err := mqtt.ParseMessage(payload)
	if err != nil {
		c.publishResponse(op, nil, mqtt.ResponseMessage{Success: false, Error: err.Error()})
		return fmt.Errorf("failed to parse %s request: %w", op, err)
	}

	resp := c.Dispatch(ctx, op, request.Payload)

	c.Logger().Debug("Command handled",
		zap.String("operation", op),
		zap.String("request_id", request.ID),
		zap.Bool("success", resp.Success))

	c.publishResponse(op, request, resp)
	return nil
}

func (c *StarbookCoordinator) publishResponse(op string, request *mqtt.Message, resp mqtt.ResponseMessage) {
	bus := c.Bus()
	if bus == nil {
		return
	}

	msg, err := mqtt.NewResponse("coordinator:"+c.Name(), request, resp)
	if err != nil {
		c.Logger().Error("Failed to create response", zap.String("operation", op), zap.Error(err))
		return
	}

	topic := mqtt.CoordinatorResponseTopic(mqtt.CoordinatorStarbook, op)
	if err := bus.PublishJSON(topic, false, msg); err != nil {
		c.Logger().Error("Failed to publish response",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// pollStatus publishes GETSTATUS every StatusInterval until ctx is done.
func (c *StarbookCoordinator) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(c.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishStatus(ctx)
		}
	}
}

func (c *StarbookCoordinator) publishStatus(ctx context.Context) {
	result, code, err := c.run(ctx, OpStatus, operations[OpStatus], nil)
	if err != nil || code != starbook.ResponseOK {
		c.Logger().Warn("Status poll failed",
			zap.Stringer("code", code),
			zap.Error(err))
		return
	}

	status := result.(starbook.StatusResult)
	if m := c.config.Metrics; m != nil {
		m.SetSlewing(status.ExecutingGoto)
	}

	bus := c.Bus()
	if bus == nil {
		return
	}

	msg, err := mqtt.NewMessage(mqtt.MessageTypeStatus, "coordinator:"+c.Name(), status)
	if err != nil {
		c.Logger().Error("Failed to create status message", zap.Error(err))
		return
	}
	topic := mqtt.CoordinatorStatusTopic(mqtt.CoordinatorStarbook)
	if err := bus.PublishJSON(topic, true, msg); err != nil {
		c.Logger().Warn("Failed to publish status", zap.Error(err))
	}
}

// checkMount reports the mount healthy when VERSION succeeds.
func (c *StarbookCoordinator) checkMount(ctx context.Context) *healthcheck.Result {
	start := time.Now()
	result, code, err := c.run(ctx, OpVersion, operations[OpVersion], nil)

	res := &healthcheck.Result{
		ComponentName: "mount",
		Status:        healthcheck.StatusHealthy,
		Message:       "Mount is reachable",
		Timestamp:     time.Now(),
		Duration:      time.Since(start),
		Details:       map[string]interface{}{"mount": c.config.MountName},
	}

	switch {
	case err != nil:
		res.Status = healthcheck.StatusUnhealthy
		res.Message = err.Error()
	case code != starbook.ResponseOK:
		res.Status = healthcheck.StatusDegraded
		res.Message = "VERSION answered " + code.String()
	default:
		res.Details["version"] = result.(starbook.VersionResult).Full
	}

	if m := c.config.Metrics; m != nil {
		m.SetReachable(res.Status == healthcheck.StatusHealthy)
	}
	return res
}

// Diagnostics returns the last exchange with the mount.
func (c *StarbookCoordinator) Diagnostics() Diagnostics {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	return c.diagnostics
}
