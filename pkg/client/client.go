package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

var (
	// ErrStaleFrame is returned when the daemon rejected a frame as out of order.
	ErrStaleFrame = errors.New("stale frame")
	// ErrUnavailable is returned when the daemon's session is closed.
	ErrUnavailable = errors.New("session unavailable")
)

// APIError carries a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrStaleFrame:
		return e.Status == http.StatusConflict
	case ErrUnavailable:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

// Client provides HTTP client functionality to communicate with the drowsy daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	CACert   string       // CA certificate file path for https daemons
	Insecure bool         // Skip TLS verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new drowsy API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.CACert != "" || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Status fetches the session snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, c.baseURL+"/status", nil, &st)
	return st, err
}

// SendFrames posts frames in one batch. On a stale frame the returned response still
// holds the frames accepted before it and the error matches ErrStaleFrame.
func (c *Client) SendFrames(ctx context.Context, frames ...Frame) (FramesResponse, error) {
	var out FramesResponse
	if len(frames) == 0 {
		return out, nil
	}
	data, err := json.Marshal(frames)
	if err != nil {
		return out, fmt.Errorf("marshal frames: %w", err)
	}
	c.logger.Debug("Sending frames", "count", len(frames))
	err = c.do(ctx, http.MethodPost, c.baseURL+"/frames", data, &out)
	return out, err
}

// Presence reports whether a face is currently tracked.
func (c *Client) Presence(ctx context.Context, present bool) error {
	data, err := json.Marshal(map[string]bool{"present": present})
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/presence", data, nil)
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if err := loadCACert(tlsConfig, config.CACert); err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}

// do performs an HTTP request and decodes the JSON response into out when non-nil.
// Error responses are decoded into out as well, so partial frame results survive.
func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode == http.StatusOK {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return c.handleErrorResponse(resp.StatusCode, raw)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(status int, raw []byte) error {
	if status == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.Unmarshal(raw, &errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", status)
		return &APIError{Status: status, Message: http.StatusText(status)}
	}

	c.logger.Debug("API request failed", "error", errorResp.Error, "status", status)
	return &APIError{Status: status, Message: errorResp.Error}
}
