package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine runs registered checkers concurrently and remembers the last outcome.
type Engine struct {
	checkers map[string]Checker
	timeout  time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	last *AggregatedResult
}

// NewEngine creates an engine. Each checker gets at most timeout per run
// (0 means 5s).
func NewEngine(logger *zap.Logger, timeout time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Engine{
		checkers: make(map[string]Checker),
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "healthcheck")),
	}
}

// Register adds or replaces a checker.
func (e *Engine) Register(checker Checker) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkers[checker.Name()] = checker
	e.logger.Info("Registered health checker", zap.String("checker", checker.Name()))
}

// Unregister removes a checker.
func (e *Engine) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.checkers, name)
}

// CheckAll runs every checker and returns the aggregate. A checker returning
// nil is reported as unknown.
func (e *Engine) CheckAll(ctx context.Context) *AggregatedResult {
	e.mu.RLock()
	checkers := make([]Checker, 0, len(e.checkers))
	for _, c := range e.checkers {
		checkers = append(checkers, c)
	}
	e.mu.RUnlock()

	results := make(map[string]*Result, len(checkers))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result == nil {
				result = &Result{Status: StatusUnknown, Message: "checker returned no result"}
			}
			result.ComponentName = c.Name()
			result.Duration = time.Since(start)
			if result.Timestamp.IsZero() {
				result.Timestamp = time.Now()
			}

			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}

	wg.Wait()

	aggregated := &AggregatedResult{
		OverallStatus: DetermineOverallStatus(results),
		Components:    results,
		Timestamp:     time.Now(),
	}

	e.mu.Lock()
	e.last = aggregated
	e.mu.Unlock()

	return aggregated
}

// Last returns the most recent aggregate, or nil before the first CheckAll.
func (e *Engine) Last() *AggregatedResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}
