// Package simulator serves a fake Starbook mount over HTTP for development and
// end-to-end tests.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes a simulated Mount with the same URL scheme and reply pages
// as the real firmware.
type Server struct {
	config Config
	mount  *Mount
	router *gin.Engine
	logger *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer creates a simulator. The server must be started with Start() before
// it accepts connections; Handler() can be used directly with httptest.
//
// Parameters:
//   - config: Simulator configuration (validated, defaults filled)
//   - logger: Structured logger (if nil, a no-op logger is used)
func NewServer(config Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{
		config: config,
		mount:  NewMount(config),
		logger: logger.With(zap.String("component", "starbook_simulator")),
		stopCh: make(chan struct{}),
	}
	s.router = s.setupRouter()

	s.logger.Info("Starbook simulator created",
		zap.String("listen_address", config.ListenAddress),
		zap.String("version", config.Version),
		zap.Float64("horizon_limit", config.HorizonLimit))

	return s, nil
}

// Mount returns the simulated device so callers can inspect or force its state.
func (s *Server) Mount() *Mount {
	return s.mount
}

// Handler returns the HTTP handler serving the mount.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter wires middleware and the single command route. Every command is
// a top-level path ("/GOTORADEC", "/VERSION", ...).
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Recovery first so panics in later middleware still produce a reply page
	router.Use(RecoveryMiddleware(s.logger))
	router.Use(LoggingMiddleware(s.logger))

	router.GET("/:command", s.handleCommand)
	router.NoRoute(func(c *gin.Context) {
		writePage(c, http.StatusOK, replyError)
	})

	return router
}

func (s *Server) handleCommand(c *gin.Context) {
	command := strings.ToUpper(c.Param("command"))
	params := parseQuery(c.Request.URL.RawQuery)

	payload := s.mount.Handle(command, params)
	c.Set("payload", payload)

	writePage(c, http.StatusOK, payload)
}

// writePage renders payload the way the firmware does: inside an HTML comment.
func writePage(c *gin.Context, status int, payload string) {
	page := "<html><head><title>StarBook</title></head><body><!--" + payload + "--></body></html>"
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}

// Start serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)

	serverErrors := make(chan error, 1)

	go func() {
		defer wg.Done()

		s.logger.Info("Simulator listening", zap.String("address", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case <-s.stopCh:
		s.logger.Info("Simulator stop requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error during HTTP server shutdown", zap.Error(err))
	}

	wg.Wait()

	s.logger.Info("Simulator shutdown complete")
	return nil
}

// Stop asks a running Start to shut down. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
