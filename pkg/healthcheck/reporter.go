package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PublishFunc is called with every aggregate the reporter produces.
type PublishFunc func(ctx context.Context, result *AggregatedResult) error

// Reporter runs the engine periodically and publishes the results.
type Reporter struct {
	engine    *Engine
	publisher PublishFunc
	logger    *zap.Logger

	mu         sync.Mutex
	lastStatus Status
}

// NewReporter creates a reporter. publisher may be nil.
func NewReporter(engine *Engine, publisher PublishFunc, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reporter{
		engine:    engine,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "health_reporter")),
	}
}

// Report runs all checks once and publishes the aggregate.
func (r *Reporter) Report(ctx context.Context) error {
	result := r.engine.CheckAll(ctx)
	r.noteTransition(result)

	if r.publisher != nil {
		if err := r.publisher(ctx, result); err != nil {
			r.logger.Error("Failed to publish health check results", zap.Error(err))
			return err
		}
	}

	r.logger.Debug("Health check report published",
		zap.String("status", string(result.OverallStatus)),
		zap.Int("components", len(result.Components)))

	return nil
}

// noteTransition logs overall status changes so an outage shows up once at
// warn level instead of in every periodic report.
func (r *Reporter) noteTransition(result *AggregatedResult) {
	r.mu.Lock()
	previous := r.lastStatus
	r.lastStatus = result.OverallStatus
	r.mu.Unlock()

	if previous == "" || previous == result.OverallStatus {
		return
	}

	fields := []zap.Field{
		zap.String("from", string(previous)),
		zap.String("to", string(result.OverallStatus)),
	}
	for name, component := range result.Components {
		if component.Status != StatusHealthy {
			fields = append(fields, zap.String(name, component.Message))
		}
	}

	if result.OverallStatus == StatusHealthy {
		r.logger.Info("Health recovered", fields...)
	} else {
		r.logger.Warn("Health degraded", fields...)
	}
}

// Run reports immediately and then every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("Starting health check reporter", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.Report(ctx); err != nil {
			r.logger.Warn("Health check report failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Health check reporter stopped")
			return
		case <-ticker.C:
		}
	}
}
