package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
)

func TestHTTPRegistrar_PostsDeviceToken(t *testing.T) {
	t.Parallel()
	var got registerRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/devices", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	reg := NewHTTPRegistrar(srv.URL, "ios")
	require.NoError(t, reg.Register(context.Background(), "t1", "device-1"))
	assert.Equal(t, "Bearer t1", auth)
	assert.Equal(t, registerRequest{Token: "device-1", Platform: "ios"}, got)
}

func TestHTTPRegistrar_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := NewHTTPRegistrar(srv.URL, "android", WithRegistrarBackoff(time.Millisecond, time.Second))
	require.NoError(t, reg.Register(context.Background(), "t1", "device-1"))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPRegistrar_ClientErrorsFailFast(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "expired session", http.StatusUnauthorized)
	}))
	defer srv.Close()

	reg := NewHTTPRegistrar(srv.URL, "ios", WithRegistrarBackoff(time.Millisecond, time.Second))
	err := reg.Register(context.Background(), "stale", "device-1")
	require.Error(t, err)
	assert.True(t, errors.IsIrrecoverable(err))
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPRegistrar_CustomHTTPClient(t *testing.T) {
	t.Parallel()
	var seen int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&seen, 1)
		return http.DefaultTransport.RoundTrip(r)
	})}
	reg := NewHTTPRegistrar(srv.URL, "ios", WithRegistrarHTTPClient(hc))
	require.NoError(t, reg.Register(context.Background(), "t1", "device-1"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&seen))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHTTPRegistrar_KeepsCallerTimeout(t *testing.T) {
	t.Parallel()
	hc := &http.Client{Timeout: time.Second}
	reg := NewHTTPRegistrar("http://example.invalid", "ios", WithRegistrarHTTPClient(hc))
	assert.Equal(t, time.Second, hc.Timeout)
	assert.Equal(t, time.Second, reg.client.GetClient().Timeout)

	assert.Equal(t, 10*time.Second, NewHTTPRegistrar("http://example.invalid", "ios").client.GetClient().Timeout)
	assert.Equal(t, 10*time.Second,
		NewHTTPRegistrar("http://example.invalid", "ios", WithRegistrarHTTPClient(&http.Client{})).client.GetClient().Timeout)
}
