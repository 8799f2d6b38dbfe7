package starbook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultUserAgent is sent with every request. Some firmware revisions only
// answer clients that look like curl.
const DefaultUserAgent = "curl/7.58.0"

// Transport performs one request against the mount and returns the raw body.
// Implementations own timeouts; CommandInterface never retries.
type Transport interface {
	Perform(ctx context.Context, url string) (string, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, url string) (string, error)

// Perform calls f.
func (f TransportFunc) Perform(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// HTTPTransportConfig configures an HTTPTransport.
type HTTPTransportConfig struct {
	// Timeout bounds a whole round trip (0 means 10s)
	Timeout time.Duration
	// UserAgent overrides DefaultUserAgent
	UserAgent string
}

// HTTPTransport issues plain GET requests.
type HTTPTransport struct {
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
}

// NewHTTPTransport creates a transport backed by net/http.
func NewHTTPTransport(config HTTPTransportConfig, logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &HTTPTransport{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		userAgent: config.UserAgent,
		logger:    logger.With(zap.String("component", "starbook_transport")),
	}
}

// Perform executes GET url and returns the body. The HTTP status is not
// checked: the firmware reports errors inside the page, not in the status line.
func (t *HTTPTransport) Perform(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	t.logger.Debug("Mount replied",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("size", len(body)))

	return string(body), nil
}
