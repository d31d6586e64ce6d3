package client

// Functional options applied by New before any component is built, so every
// component sees the final logger, handlers and transport.

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/notify"
)

// Option configures a Client during construction in New.
type Option func(*Client) error

// WithLogger sets the logger handed to every component.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) error {
		c.log = l
		return nil
	}
}

// WithIntentHandler receives the navigation intent of every routed
// notification. It runs on the dispatcher goroutine.
func WithIntentHandler(fn func(Intent)) Option {
	return func(c *Client) error {
		c.onIntent = fn
		return nil
	}
}

// WithAlertHandler receives notifications that arrived while the app was in
// the foreground.
func WithAlertHandler(fn func(Envelope)) Option {
	return func(c *Client) error {
		c.onAlert = fn
		return nil
	}
}

// WithRegistration registers the device token at baseURL on every
// activation of the dispatcher.
func WithRegistration(baseURL, platform string) Option {
	return func(c *Client) error {
		if baseURL == "" {
			return fmt.Errorf("registration url must not be empty")
		}
		c.registrationURL, c.platform = baseURL, platform
		return nil
	}
}

// WithQueue sizes the serial queue shared by session writes and
// notifications.
func WithQueue(size int, enqueueTimeout time.Duration) Option {
	return func(c *Client) error {
		if size <= 0 {
			return fmt.Errorf("queue size must be > 0")
		}
		c.queueSize, c.enqueueTimeout = size, enqueueTimeout
		return nil
	}
}

// WithTokenBackoff bounds retries of the push provider token fetch.
func WithTokenBackoff(initial, maxElapsed time.Duration) Option {
	return func(c *Client) error {
		c.notifyOpts = append(c.notifyOpts, notify.WithTokenBackoff(initial, maxElapsed))
		return nil
	}
}

// WithHTTPTimeout sets the timeout of the http.Client used for device
// registration. The value must be greater than zero.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("http timeout must be > 0")
		}
		c.http.Timeout = d
		return nil
	}
}

// WithHTTPClient replaces the http.Client used for device registration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.http = hc
		return nil
	}
}

// WithDebugLogging logs registration traffic when enabled is true. Do not
// enable it in production: dumps include session tokens.
func WithDebugLogging(enabled bool) Option {
	return func(c *Client) error {
		c.debugHTTP = enabled
		return nil
	}
}
