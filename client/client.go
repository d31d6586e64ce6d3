// Package client is the process root of the mobile state layer. A Client owns
// the one Session Manager, the normalized cache, the consistency engine on
// top of it and the notification dispatcher, and wires their lifecycles:
// logging in activates notifications, logging out deactivates them.
package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/cache"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/config"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/consistency"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/kvstore"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/logger"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/notify"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/session"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/shardqueue"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/types"
)

type Client struct {
	store        kvstore.Store
	ownsStore    bool
	provider     notify.Provider
	ownsProvider bool
	log          zerolog.Logger

	session    *session.Manager
	cache      *cache.Cache
	engine     *consistency.Engine
	dispatcher *notify.Dispatcher
	exec       executor

	http            *http.Client
	debugHTTP       bool
	registrationURL string
	platform        string
	queueSize       int
	enqueueTimeout  time.Duration
	notifyOpts      []notify.Option
	onIntent        func(Intent)
	onAlert         func(Envelope)

	unobserve  func()
	closedOnce uint32
}

// New wires a Client on top of store and provider. The session starts
// Unknown; call Start to restore it.
func New(store Store, provider Provider, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("push provider must not be nil")
	}

	c := &Client{
		store:          store,
		provider:       provider,
		log:            zerolog.Nop(),
		http:           &http.Client{Timeout: 30 * time.Second},
		queueSize:      64,
		enqueueTimeout: 250 * time.Millisecond,
	}

	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.debugHTTP {
		c.http.Transport = &debugTransport{base: c.http.Transport, log: c.log}
	}

	queue := shardqueue.NewShardExecutor(shardqueue.Config{
		Shards:         2,
		QueueSize:      c.queueSize,
		EnqueueTimeout: c.enqueueTimeout,
		Logger:         c.log,
	})
	c.exec = queue
	c.session = session.New(store, session.WithLogger(c.log))
	c.cache = cache.New(cache.WithLogger(c.log))
	c.engine = consistency.New(c.cache, consistency.WithLogger(c.log))

	nopts := []notify.Option{
		notify.WithLogger(c.log),
		notify.WithExecutor(queue),
	}
	if c.onIntent != nil {
		nopts = append(nopts, notify.WithIntentHandler(c.onIntent))
	}
	if c.onAlert != nil {
		nopts = append(nopts, notify.WithAlertHandler(c.onAlert))
	}
	if c.registrationURL != "" {
		nopts = append(nopts, notify.WithRegistrar(notify.NewHTTPRegistrar(c.registrationURL, c.platform,
			notify.WithRegistrarHTTPClient(c.http),
			notify.WithRegistrarLogger(c.log),
		)))
	}
	nopts = append(nopts, c.notifyOpts...)
	c.dispatcher = notify.New(provider, c.session, c.engine, nopts...)

	c.unobserve = c.session.Subscribe(func(s types.Session) {
		if s.Status == types.StatusAnonymous {
			c.dispatcher.Deactivate()
		}
	})
	return c, nil
}

// Open builds the store named by cfg and a Client on top of it. A nil
// provider selects the websocket gateway at cfg.PushURL. The store is closed
// with the Client.
func Open(cfg *Config, provider Provider, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log := logger.New("hamhibokka-client", cfg.LogLevel)

	ownsProvider := provider == nil
	if provider == nil {
		if cfg.PushURL == "" {
			return nil, fmt.Errorf("no push provider: set HAMHIBOKKA_PUSH_URL")
		}
		provider = notify.NewWebSocketProvider(notify.WebSocketConfig{
			URL:      cfg.PushURL,
			Platform: cfg.Platform,
			Logger:   log,
		})
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithLogger(log),
		WithQueue(cfg.QueueSize, cfg.EnqueueTimeout),
		WithDebugLogging(cfg.Debug),
	}
	if cfg.RegistrationURL != "" {
		base = append(base, WithRegistration(cfg.RegistrationURL, cfg.Platform))
	}
	c, err := New(store, provider, append(base, opts...)...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.ownsStore = true
	c.ownsProvider = ownsProvider
	return c, nil
}

func openStore(cfg *Config, log zerolog.Logger) (kvstore.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return kvstore.NewMemory(), nil
	case config.DriverSQLite:
		s, err := kvstore.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverBadger, "":
		bc := kvstore.DefaultBadgerConfig(cfg.StorePath)
		bc.Logger = &log
		b, err := kvstore.OpenBadger(bc)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// Start restores the session from the durable store and, when it comes back
// authenticated, activates the notification dispatcher. Restore never fails;
// the returned error is the activation failure, if any.
func (c *Client) Start(ctx context.Context) (Session, error) {
	if c.closed() {
		return Session{}, ErrClosed
	}
	s := c.session.Restore(ctx)
	if !s.Authenticated() {
		return s, nil
	}
	_, err := c.dispatcher.Activate(ctx)
	return c.session.Current(), err
}

// Login persists the credentials and makes the session Authenticated, then
// activates the dispatcher. It is serialized with Logout. A failed
// activation is logged; the login itself still stands.
func (c *Client) Login(ctx context.Context, token string, user *User) error {
	err := c.serial(ctx, "login", func(ctx context.Context) error {
		return c.session.Login(ctx, token, user)
	})
	if err != nil {
		return err
	}
	if _, err := c.dispatcher.Activate(ctx); err != nil {
		c.log.Warn().Err(err).Msg("notifications unavailable after login")
	}
	return nil
}

// Logout ends the session and deactivates the dispatcher. The session is
// Anonymous afterwards even when an error is returned; a persistence error
// means the durable copies may survive.
func (c *Client) Logout(ctx context.Context) error {
	return c.serial(ctx, "logout", c.session.Logout)
}

// UpdateUser replaces the stored profile of the signed-in user.
func (c *Client) UpdateUser(ctx context.Context, user *User) error {
	return c.serial(ctx, "update_user", func(ctx context.Context) error {
		return c.session.SetUser(ctx, user)
	})
}

// serial runs fn on the session queue and waits for it. Once accepted, fn
// runs to completion: durable writes are not cancellable from here. An
// accepted job always reports back, including when fn panics.
func (c *Client) serial(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.closed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	result := make(chan error, 1)
	job := shardqueue.JobFunc(func(jobCtx context.Context) error {
		var err error
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Str("op", op).Interface("panic", r).Msg("session operation panicked")
				err = fmt.Errorf("%s: panic: %v", op, r)
			}
			result <- err
		}()
		err = fn(jobCtx)
		return nil
	})
	if err := c.exec.Submit(context.WithoutCancel(ctx), sessionKey, job); err != nil {
		err = submitError(err)
		observe(op, err)
		return err
	}
	err := <-result
	observe(op, err)
	return err
}

// Session returns the current session without blocking.
func (c *Client) Session() Session { return c.session.Current() }

// Subscribe registers a session observer and returns its removal func.
func (c *Client) Subscribe(obs Observer) func() { return c.session.Subscribe(obs) }

// Cache returns the normalized entity cache.
func (c *Client) Cache() *Cache { return c.cache }

// Engine returns the cache consistency engine.
func (c *Client) Engine() *Engine { return c.engine }

// Dispatcher returns the notification dispatcher.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// Flush blocks until every notification queued so far has been routed.
func (c *Client) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return submitError(c.exec.Barrier(ctx, notify.QueueKey))
}

func (c *Client) closed() bool { return atomic.LoadUint32(&c.closedOnce) == 1 }

// Close deactivates notifications, drains the queue and closes the store if
// Open created it. Safe to call multiple times.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closedOnce, 0, 1) {
		return nil
	}
	if c.unobserve != nil {
		c.unobserve()
	}
	if c.dispatcher != nil {
		_ = c.dispatcher.Close()
	}
	if c.exec != nil {
		c.exec.Stop()
	}

	var errs []error
	if closer, ok := c.provider.(interface{ Close() error }); ok && c.ownsProvider {
		errs = append(errs, closer.Close())
	}
	if c.ownsStore {
		errs = append(errs, c.store.Close())
	}
	return stderrors.Join(errs...)
}
