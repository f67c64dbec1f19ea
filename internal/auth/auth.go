// Package auth implements the HTTPS login preamble: server directory,
// dashboard link scrape, and token acquisition.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nrevox/growfleet/internal/constants"
)

// ErrCredentials marks a definitive rejection: the caller must stop the
// session instead of retrying.
var ErrCredentials = errors.New("credentials rejected")

// User-Agent strings the endpoints expect. Both are fixed.
const (
	userAgentDirectory = "UbiServices_SDK_2022.Release.9_PC64_ansi_static"
	userAgentBrowser   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
)

// Endpoints are the preamble URLs. Tests point them at local servers.
type Endpoints struct {
	// ServerDirectory URLs are tried in order until one answers.
	ServerDirectory []string
	// Validate receives the legacy login form POST.
	Validate string
}

// DefaultEndpoints targets the live service.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ServerDirectory: []string{
			"https://www.growtopia1.com/growtopia/server_data.php",
			"https://www.growtopia2.com/growtopia/server_data.php",
		},
		Validate: "https://login.growtopiagame.com/player/growid/login/validate",
	}
}

// Client drives the preamble. Safe for use by one agent at a time.
type Client struct {
	http     *http.Client
	log      *slog.Logger
	eps      Endpoints
	attempts int
	backoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithEndpoints overrides the preamble URLs.
func WithEndpoints(eps Endpoints) Option {
	return func(c *Client) { c.eps = eps }
}

// WithAttempts sets the retry budget for the retried fetches.
func WithAttempts(n int) Option {
	return func(c *Client) { c.attempts = n }
}

// NewClient builds a preamble client with the live defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      slog.Default(),
		eps:      DefaultEndpoints(),
		attempts: 3,
		backoff:  time.Duration(constants.HTTPRetryBackoffMs) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// withRetry runs fn up to the attempt budget with the fixed backoff.
// A credential rejection aborts immediately.
func (c *Client) withRetry(ctx context.Context, name string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrCredentials) {
			return err
		}
		c.log.Warn("preamble fetch failed",
			"step", name,
			"attempt", attempt,
			"error", err)
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
	return err
}
