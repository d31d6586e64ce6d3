package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/shardqueue"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/types"
)

// QueueKey is the executor key every envelope is processed under.
const QueueKey = "notifications"

var (
	// ErrNotAuthenticated is returned by Activate without an authenticated session.
	ErrNotAuthenticated = stderrors.New("notify: session is not authenticated")
	// ErrPermissionDenied is returned by Activate when the user refused notifications.
	ErrPermissionDenied = stderrors.New("notify: notification permission denied")
	// ErrActivationCanceled is returned by Activate when Deactivate ran meanwhile.
	ErrActivationCanceled = stderrors.New("notify: deactivated during activation")
)

// State of the dispatcher.
type State int

const (
	StateInactive State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}

// SessionSource reports the current session.
type SessionSource interface {
	Current() types.Session
}

// Source tells where an envelope came from.
type Source string

const (
	SourceInitial    Source = "initial"
	SourceForeground Source = "foreground"
	SourceOpened     Source = "opened"
)

// Dispatcher subscribes to a Provider while the session is authenticated and
// routes every envelope it receives, one at a time in arrival order.
type Dispatcher struct {
	provider  Provider
	session   SessionSource
	engine    Invalidator
	registrar TokenRegistrar

	exec     *shardqueue.ShardExecutor
	ownsExec bool

	onIntent func(Intent)
	onAlert  func(Envelope)

	tokenInitial time.Duration
	tokenElapsed time.Duration

	log zerolog.Logger

	activating sync.Mutex

	mu             sync.Mutex
	state          State
	unsubscribe    []func()
	deviceToken    string
	initialDrained bool

	// gen changes on every Deactivate; queued work from an older generation
	// is dropped.
	gen atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l.With().Str("component", "notify").Logger() }
}

// WithIntentHandler receives the navigation intent of every routed envelope.
func WithIntentHandler(fn func(Intent)) Option {
	return func(d *Dispatcher) { d.onIntent = fn }
}

// WithAlertHandler receives envelopes that arrived in the foreground.
func WithAlertHandler(fn func(Envelope)) Option {
	return func(d *Dispatcher) { d.onAlert = fn }
}

// WithRegistrar registers the device token with the backend on activation.
func WithRegistrar(r TokenRegistrar) Option {
	return func(d *Dispatcher) { d.registrar = r }
}

// WithExecutor shares an executor instead of creating a private one. The
// caller keeps ownership.
func WithExecutor(ex *shardqueue.ShardExecutor) Option {
	return func(d *Dispatcher) { d.exec = ex }
}

// WithTokenBackoff bounds retries of the provider token fetch.
func WithTokenBackoff(initial, maxElapsed time.Duration) Option {
	return func(d *Dispatcher) { d.tokenInitial, d.tokenElapsed = initial, maxElapsed }
}

// New returns an inactive dispatcher.
func New(provider Provider, session SessionSource, engine Invalidator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider:     provider,
		session:      session,
		engine:       engine,
		tokenInitial: 200 * time.Millisecond,
		tokenElapsed: 30 * time.Second,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.exec == nil {
		d.exec = shardqueue.NewShardExecutor(shardqueue.Config{Shards: 1, Logger: d.log})
		d.ownsExec = true
	}
	return d
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// DeviceToken returns the provider token obtained by the last activation.
func (d *Dispatcher) DeviceToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceToken
}

// Subscription is the handle returned by Activate.
type Subscription struct {
	d    *Dispatcher
	gen  uint64
	once sync.Once
}

// Close deactivates the dispatcher if this subscription is still the live
// one. It is idempotent.
func (s *Subscription) Close() error {
	s.once.Do(func() { s.d.deactivate(s.gen) })
	return nil
}

// Activate moves the dispatcher to Active: it checks the session, asks for
// permission, fetches the device token, registers it, queues the launch
// envelope once per dispatcher and subscribes to the provider. Calling it
// while already active returns a handle to the live subscription.
func (d *Dispatcher) Activate(ctx context.Context) (*Subscription, error) {
	d.activating.Lock()
	defer d.activating.Unlock()

	gen := d.gen.Load()
	if d.State() == StateActive {
		return &Subscription{d: d, gen: gen}, nil
	}

	sub, err := d.activate(ctx, gen)
	if err != nil {
		activationsTotal.WithLabelValues(activationResult(err)).Inc()
		d.log.Warn().Err(err).Msg("notification dispatcher not activated")
		return nil, err
	}
	activationsTotal.WithLabelValues("ok").Inc()
	return sub, nil
}

func (d *Dispatcher) activate(ctx context.Context, gen uint64) (*Subscription, error) {
	sess := d.session.Current()
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	perm, err := d.provider.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("request permission: %w", err)
	}
	if perm == PermissionDenied {
		return nil, ErrPermissionDenied
	}

	token, err := d.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch device token: %w", err)
	}

	if d.registrar != nil {
		if err := d.registrar.Register(ctx, sess.Token, token); err != nil {
			return nil, fmt.Errorf("register device token: %w", err)
		}
	}

	d.mu.Lock()
	drain := !d.initialDrained
	d.mu.Unlock()

	var initial *Envelope
	if drain {
		initial, err = d.provider.InitialNotification(ctx)
		if err != nil {
			d.log.Warn().Err(err).Msg("initial notification unavailable")
			initial = nil
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen.Load() != gen {
		return nil, ErrActivationCanceled
	}
	if !d.session.Current().Authenticated() {
		return nil, ErrNotAuthenticated
	}

	if drain {
		d.initialDrained = true
		if initial != nil {
			d.enqueue(*initial, SourceInitial, gen)
		}
	}
	d.unsubscribe = append(d.unsubscribe,
		d.provider.OnMessage(func(env Envelope) { d.enqueue(env, SourceForeground, gen) }),
		d.provider.OnNotificationOpenedApp(func(env Envelope) { d.enqueue(env, SourceOpened, gen) }),
	)
	d.deviceToken = token
	d.state = StateActive
	dispatcherActive.Set(1)
	d.log.Info().Bool("initial", initial != nil).Msg("notification dispatcher active")
	return &Subscription{d: d, gen: gen}, nil
}

func (d *Dispatcher) fetchToken(ctx context.Context) (string, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.tokenInitial
	exp.MaxElapsedTime = d.tokenElapsed

	return backoff.RetryWithData(func() (string, error) {
		token, err := d.provider.Token(ctx)
		if err != nil {
			if errors.IsIrrecoverable(err) {
				return "", backoff.Permanent(err)
			}
			d.log.Debug().Err(err).Msg("device token fetch failed, retrying")
			return "", err
		}
		if token == "" {
			return "", fmt.Errorf("provider returned an empty token")
		}
		return token, nil
	}, backoff.WithContext(exp, ctx))
}

// Deactivate unsubscribes from the provider and drops queued envelopes that
// have not been processed yet. It is a no-op when inactive.
func (d *Dispatcher) Deactivate() {
	d.deactivate(d.gen.Load())
}

func (d *Dispatcher) deactivate(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.gen.CompareAndSwap(gen, gen+1) {
		return
	}
	for _, unsub := range d.unsubscribe {
		unsub()
	}
	d.unsubscribe = nil
	if d.state == StateActive {
		d.log.Info().Msg("notification dispatcher inactive")
	}
	d.state = StateInactive
	dispatcherActive.Set(0)
}

// Flush waits until every envelope queued so far has been processed.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.exec.Barrier(ctx, QueueKey)
}

// Close deactivates the dispatcher and stops its private executor.
func (d *Dispatcher) Close() error {
	d.Deactivate()
	if d.ownsExec {
		d.exec.Stop()
	}
	return nil
}

func (d *Dispatcher) enqueue(env Envelope, src Source, gen uint64) {
	env, err := Classify(env)
	if err != nil {
		d.log.Warn().Err(err).Str("envelope_id", env.ID).Msg("routing envelope as unknown")
	}
	job := shardqueue.JobFunc(func(context.Context) error {
		d.process(env, src, gen)
		return nil
	})
	if err := d.exec.Submit(context.Background(), QueueKey, job); err != nil {
		envelopesDroppedTotal.WithLabelValues("queue").Inc()
		d.log.Warn().Err(err).Str("envelope_id", env.ID).Msg("envelope dropped")
	}
}

func (d *Dispatcher) process(env Envelope, src Source, gen uint64) {
	if d.gen.Load() != gen {
		envelopesDroppedTotal.WithLabelValues("inactive").Inc()
		return
	}
	if !d.session.Current().Authenticated() {
		envelopesDroppedTotal.WithLabelValues("anonymous").Inc()
		d.log.Debug().Str("envelope_id", env.ID).Msg("session ended, envelope dropped")
		return
	}

	plan := Route(env)
	plan.Apply(d.engine)
	envelopesTotal.WithLabelValues(string(env.Type), string(src)).Inc()
	d.log.Debug().
		Str("envelope_id", env.ID).
		Str("type", string(env.Type)).
		Str("source", string(src)).
		Str("intent", string(plan.Intent.Kind)).
		Msg("envelope routed")

	if src == SourceForeground && d.onAlert != nil {
		d.onAlert(env)
	}
	if d.onIntent != nil {
		d.onIntent(plan.Intent)
	}
}

func activationResult(err error) string {
	switch {
	case stderrors.Is(err, ErrNotAuthenticated):
		return "anonymous"
	case stderrors.Is(err, ErrPermissionDenied):
		return "denied"
	case stderrors.Is(err, ErrActivationCanceled):
		return "canceled"
	default:
		return "error"
	}
}
