// Package session owns the process-wide authentication state: the current
// user and credential token, their durable copies, and the observers that
// re-render when either changes.
//
// A Manager is constructed once by the process root and passed to every
// consumer. Callers must serialize Login and Logout themselves; a Logout
// racing an in-flight Login is resolved by whichever settles last.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/kvstore"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/types"
)

// Durable keys. Changing them logs every installed client out.
const (
	TokenKey = "@hamhibokka/token"
	UserKey  = "@hamhibokka/user"
)

// Observer receives a copy of the session after every transition.
type Observer func(types.Session)

type observerEntry struct {
	id uuid.UUID
	fn Observer
}

// Manager is the Session Manager.
type Manager struct {
	store kvstore.Store
	log   zerolog.Logger

	mu    sync.RWMutex
	state types.Session

	obsMu     sync.Mutex
	observers []observerEntry

	restoring singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for degraded-store warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "session").Logger() }
}

// New returns a Manager in the Unknown state backed by store.
func New(store kvstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		log:   zerolog.Nop(),
		state: types.Session{Status: types.StatusUnknown},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns a copy of the in-memory session. It never blocks on I/O.
func (m *Manager) Current() types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Subscribe registers obs and returns a function that removes it.
// Observers run synchronously, in registration order, on the goroutine that
// caused the transition. They may call Current but must not call Login,
// Logout or Restore. A panicking observer is logged and does not stop the
// others.
func (m *Manager) Subscribe(obs Observer) (unsubscribe func()) {
	id := uuid.New()
	m.obsMu.Lock()
	m.observers = append(m.observers, observerEntry{id: id, fn: obs})
	m.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obsMu.Lock()
			defer m.obsMu.Unlock()
			for i, e := range m.observers {
				if e.id == id {
					m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Restore reads the durable token and user and settles the session to
// Authenticated or Anonymous. It never fails: any read or decode problem
// degrades to Anonymous and is logged. Concurrent calls share one read.
func (m *Manager) Restore(ctx context.Context) types.Session {
	v, _, _ := m.restoring.Do("restore", func() (interface{}, error) {
		m.transition(types.Session{Status: types.StatusRestoring})

		token, user, err := m.readDurable(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("session restore failed; continuing anonymously")
			return m.transition(types.Session{Status: types.StatusAnonymous}), nil
		}
		if token == "" || user == nil {
			m.log.Debug().Bool("has_token", token != "").Bool("has_user", user != nil).
				Msg("no complete stored session")
			return m.transition(types.Session{Status: types.StatusAnonymous}), nil
		}
		return m.transition(types.Session{Token: token, User: user, Status: types.StatusAuthenticated}), nil
	})
	return v.(types.Session)
}

// readDurable performs the scoped read of token and user. The store read
// handle is released by View on every path out of the callback.
func (m *Manager) readDurable(ctx context.Context) (string, *types.User, error) {
	var (
		token string
		user  *types.User
	)
	err := m.store.View(ctx, func(r kvstore.Reader) error {
		t, ok, err := r.Get(TokenKey)
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		if ok {
			token = t
		}
		raw, ok, err := r.Get(UserKey)
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		if ok {
			u, err := decodeUser(raw)
			if err != nil {
				return err
			}
			user = u
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	if token != "" && types.ValidateToken(token) != nil {
		return "", nil, fmt.Errorf("stored token is blank")
	}
	return token, user, nil
}

func decodeUser(raw string) (*types.User, error) {
	var u types.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode stored user: %w", err)
	}
	if err := types.ValidateUser(&u); err != nil {
		return nil, fmt.Errorf("stored user invalid: %w", err)
	}
	return &u, nil
}

// Login persists token and user, then flips the session to Authenticated.
// It is all-or-nothing: on any failure the in-memory session is untouched
// and a validation or persistence error is returned.
func (m *Manager) Login(ctx context.Context, token string, user *types.User) error {
	if err := types.ValidateToken(token); err != nil {
		return errors.Validation("session.login", err)
	}
	if err := types.ValidateUser(user); err != nil {
		return errors.Validation("session.login", err)
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return errors.Validation("session.login", err)
	}

	// The previous token is needed to undo a half-written login. If it cannot
	// be read, nothing is written rather than risk removing it.
	prevToken, hadPrev, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		return errors.Persistence("session.login", fmt.Errorf("read token: %w", err))
	}

	if err := m.store.Set(ctx, TokenKey, token); err != nil {
		return errors.Persistence("session.login", fmt.Errorf("write token: %w", err))
	}
	if err := m.store.Set(ctx, UserKey, string(payload)); err != nil {
		m.rollbackToken(ctx, prevToken, hadPrev)
		return errors.Persistence("session.login", fmt.Errorf("write user: %w", err))
	}

	u := *user
	m.transition(types.Session{Token: token, User: &u, Status: types.StatusAuthenticated})
	return nil
}

// rollbackToken puts the durable token back the way it was before a failed
// login. Best effort: a store that just failed may fail again.
func (m *Manager) rollbackToken(ctx context.Context, prev string, restore bool) {
	var err error
	if restore {
		err = m.store.Set(ctx, TokenKey, prev)
	} else {
		err = m.store.Remove(ctx, TokenKey)
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("could not roll back durable token after failed login")
	}
}

// Logout ends the session. The in-memory session always becomes Anonymous;
// if the durable copies could not be removed a non-fatal persistence error
// is returned so the caller can surface a warning.
func (m *Manager) Logout(ctx context.Context) error {
	storeErr := m.store.MultiRemove(ctx, TokenKey, UserKey)
	m.transition(types.Session{Status: types.StatusAnonymous})
	if storeErr != nil {
		m.log.Warn().Err(storeErr).Msg("logout could not clear durable session")
		return errors.Persistence("session.logout", storeErr)
	}
	return nil
}

// Token reads the durable token. Read errors degrade to absent.
func (m *Manager) Token(ctx context.Context) (string, bool) {
	t, ok, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		m.log.Warn().Err(err).Msg("read token failed")
		return "", false
	}
	return t, ok && t != ""
}

// User reads the durable user. Read and decode errors degrade to absent.
func (m *Manager) User(ctx context.Context) (*types.User, bool) {
	raw, ok, err := m.store.Get(ctx, UserKey)
	if err != nil {
		m.log.Warn().Err(err).Msg("read user failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	u, err := decodeUser(raw)
	if err != nil {
		m.log.Warn().Err(err).Msg("stored user unreadable")
		return nil, false
	}
	return u, true
}

// SetToken overwrites the durable token, and the in-memory token when the
// session is Authenticated. Used after a server-side token refresh.
func (m *Manager) SetToken(ctx context.Context, token string) error {
	if err := types.ValidateToken(token); err != nil {
		return errors.Validation("session.set_token", err)
	}
	if err := m.store.Set(ctx, TokenKey, token); err != nil {
		return errors.Persistence("session.set_token", err)
	}
	if cur := m.Current(); cur.Status == types.StatusAuthenticated {
		cur.Token = token
		m.transition(cur)
	}
	return nil
}

// SetUser overwrites the durable user record, and the in-memory user when
// the session is Authenticated.
func (m *Manager) SetUser(ctx context.Context, user *types.User) error {
	if err := types.ValidateUser(user); err != nil {
		return errors.Validation("session.set_user", err)
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return errors.Validation("session.set_user", err)
	}
	if err := m.store.Set(ctx, UserKey, string(payload)); err != nil {
		return errors.Persistence("session.set_user", err)
	}
	if cur := m.Current(); cur.Status == types.StatusAuthenticated {
		u := *user
		cur.User = &u
		m.transition(cur)
	}
	return nil
}

// transition swaps the in-memory state in one step and then notifies
// observers synchronously.
func (m *Manager) transition(next types.Session) types.Session {
	m.mu.Lock()
	prev := m.state.Status
	m.state = next.Clone()
	m.mu.Unlock()

	transitionsTotal.WithLabelValues(next.Status.String()).Inc()
	m.log.Debug().Str("from", prev.String()).Str("to", next.Status.String()).Msg("session transition")

	m.obsMu.Lock()
	obs := make([]Observer, len(m.observers))
	for i, e := range m.observers {
		obs[i] = e.fn
	}
	m.obsMu.Unlock()

	for _, fn := range obs {
		m.notify(fn, next.Clone())
	}
	return next.Clone()
}

// notify runs one observer. A panicking observer is logged and skipped so
// the transition and the remaining observers still complete.
func (m *Manager) notify(fn Observer, s types.Session) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("status", s.Status.String()).
				Msg("session observer panicked")
		}
	}()
	fn(s)
}
