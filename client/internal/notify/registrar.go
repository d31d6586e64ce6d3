package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
)

// TokenRegistrar tells the backend which device token belongs to the signed
// in user.
type TokenRegistrar interface {
	Register(ctx context.Context, sessionToken, deviceToken string) error
}

// HTTPRegistrar registers device tokens with POST /devices.
type HTTPRegistrar struct {
	client      *resty.Client
	platform    string
	maxElapsed  time.Duration
	initialWait time.Duration
	log         zerolog.Logger
}

// RegistrarOption configures an HTTPRegistrar.
type RegistrarOption func(*HTTPRegistrar)

// WithRegistrarHTTPClient replaces the underlying *http.Client, e.g. to add
// a debug transport. A non-zero hc.Timeout is kept as is.
func WithRegistrarHTTPClient(hc *http.Client) RegistrarOption {
	return func(r *HTTPRegistrar) { r.client = resty.NewWithClient(hc).SetBaseURL(r.client.BaseURL) }
}

// WithRegistrarBackoff bounds retries of recoverable failures.
func WithRegistrarBackoff(initial, maxElapsed time.Duration) RegistrarOption {
	return func(r *HTTPRegistrar) { r.initialWait, r.maxElapsed = initial, maxElapsed }
}

// WithRegistrarLogger sets the logger.
func WithRegistrarLogger(l zerolog.Logger) RegistrarOption {
	return func(r *HTTPRegistrar) { r.log = l.With().Str("component", "notify.registrar").Logger() }
}

// NewHTTPRegistrar returns a registrar for the API at baseURL.
func NewHTTPRegistrar(baseURL, platform string, opts ...RegistrarOption) *HTTPRegistrar {
	r := &HTTPRegistrar{
		client:      resty.New().SetBaseURL(baseURL),
		platform:    platform,
		maxElapsed:  30 * time.Second,
		initialWait: 200 * time.Millisecond,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client.SetHeader("Content-Type", "application/json")
	if r.client.GetClient().Timeout == 0 {
		r.client.SetTimeout(10 * time.Second)
	}
	return r
}

type registerRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Register implements TokenRegistrar. 4xx answers other than 408 and 429
// fail at once; everything else is retried until maxElapsed.
func (r *HTTPRegistrar) Register(ctx context.Context, sessionToken, deviceToken string) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.initialWait
	exp.MaxElapsedTime = r.maxElapsed
	b := backoff.WithContext(exp, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := r.registerOnce(ctx, sessionToken, deviceToken)
		if err == nil {
			return nil
		}
		if errors.IsIrrecoverable(err) {
			return backoff.Permanent(err)
		}
		r.log.Debug().Err(err).Int("attempt", attempt).Msg("device registration failed, retrying")
		return err
	}
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	r.log.Debug().Int("attempts", attempt).Msg("device registered")
	return nil
}

func (r *HTTPRegistrar) registerOnce(ctx context.Context, sessionToken, deviceToken string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(sessionToken).
		SetBody(&registerRequest{Token: deviceToken, Platform: r.platform}).
		Post("/devices")
	if err != nil {
		return errors.NewNetworkError("notify.register", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return errors.ClassifyHTTPError("notify.register", resp.StatusCode(), resp.String(),
			fmt.Errorf("register device: HTTP %d", resp.StatusCode()))
	}
}
