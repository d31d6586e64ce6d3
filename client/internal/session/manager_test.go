package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	clienterrors "github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/kvstore"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/types"
)

// faultyStore wraps a Memory store and fails selected operations.
type faultyStore struct {
	*kvstore.Memory
	failSetKey   string // Set on this key fails
	failGetKey   string // Get on this key fails
	failRemove   bool
	failView     bool
	views        int32
	viewReleases int32
}

var errIO = errors.New("disk unavailable")

func newFaulty() *faultyStore { return &faultyStore{Memory: kvstore.NewMemory()} }

func (f *faultyStore) Set(ctx context.Context, key, value string) error {
	if f.failSetKey != "" && key == f.failSetKey {
		return errIO
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGetKey != "" && key == f.failGetKey {
		return "", false, errIO
	}
	return f.Memory.Get(ctx, key)
}

func (f *faultyStore) MultiRemove(ctx context.Context, keys ...string) error {
	if f.failRemove {
		return errIO
	}
	return f.Memory.MultiRemove(ctx, keys...)
}

func (f *faultyStore) View(ctx context.Context, fn func(kvstore.Reader) error) error {
	atomic.AddInt32(&f.views, 1)
	defer atomic.AddInt32(&f.viewReleases, 1)
	if f.failView {
		return errIO
	}
	return f.Memory.View(ctx, fn)
}

func seed(t *testing.T, s kvstore.Store, token string, user any) {
	t.Helper()
	ctx := context.Background()
	if token != "" {
		if err := s.Set(ctx, TokenKey, token); err != nil {
			t.Fatalf("seed token: %v", err)
		}
	}
	switch u := user.(type) {
	case nil:
	case string:
		if err := s.Set(ctx, UserKey, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	default:
		b, _ := json.Marshal(u)
		if err := s.Set(ctx, UserKey, string(b)); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
}

func TestNew_StartsUnknown(t *testing.T) {
	t.Parallel()
	m := New(kvstore.NewMemory())
	if got := m.Current(); got.Status != types.StatusUnknown || got.Token != "" || got.User != nil {
		t.Fatalf("unexpected initial session: %+v", got)
	}
}

func TestRestore_Authenticated(t *testing.T) {
	t.Parallel()
	store := newFaulty()
	seed(t, store, "t1", map[string]string{"id": "u1", "nickname": "Ann"})
	m := New(store)

	var seen []types.Status
	m.Subscribe(func(s types.Session) { seen = append(seen, s.Status) })

	m.Restore(context.Background())
	got := m.Current()
	if got.Status != types.StatusAuthenticated {
		t.Fatalf("expected authenticated, got %v", got.Status)
	}
	if got.User == nil || got.User.Nickname != "Ann" || got.Token != "t1" {
		t.Fatalf("unexpected restored session: %+v", got)
	}
	if len(seen) != 2 || seen[0] != types.StatusRestoring || seen[1] != types.StatusAuthenticated {
		t.Fatalf("unexpected transitions: %v", seen)
	}
	if store.views != store.viewReleases {
		t.Fatalf("store read handle leaked: views=%d releases=%d", store.views, store.viewReleases)
	}
}

func TestRestore_DegradesToAnonymous(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		token string
		user  any
		fail  bool
	}{
		{"empty store", "", nil, false},
		{"token without user", "t1", nil, false},
		{"user without token", "", map[string]string{"id": "u1"}, false},
		{"corrupt user", "t1", "{not json", false},
		{"user missing id", "t1", map[string]string{"nickname": "Ann"}, false},
		{"store read fails", "t1", map[string]string{"id": "u1"}, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			store := newFaulty()
			seed(t, store, tc.token, tc.user)
			store.failView = tc.fail
			m := New(store)

			s := m.Restore(context.Background())
			if s.Status != types.StatusAnonymous || s.Token != "" || s.User != nil {
				t.Fatalf("expected anonymous, got %+v", s)
			}
			if store.views != store.viewReleases {
				t.Fatalf("store read handle leaked")
			}
		})
	}
}

func TestLogin_ThenCurrent(t *testing.T) {
	t.Parallel()
	users := []*types.User{
		{ID: "u1", Nickname: "Ann"},
		{ID: "u2", UserID: "bob", Email: "bob@example.com", Nickname: "Bob"},
	}
	for i, u := range users {
		store := kvstore.NewMemory()
		m := New(store)
		token := []string{"t1", "opaque.token.value"}[i]
		if err := m.Login(context.Background(), token, u); err != nil {
			t.Fatalf("login: %v", err)
		}
		got := m.Current()
		if got.Status != types.StatusAuthenticated || got.Token != token || *got.User != *u {
			t.Fatalf("unexpected session after login: %+v", got)
		}

		// durable copies survive a fresh manager
		restored := New(store).Restore(context.Background())
		if !restored.Authenticated() || restored.User.ID != u.ID {
			t.Fatalf("login not persisted: %+v", restored)
		}
	}
}

func TestLogin_Validation(t *testing.T) {
	t.Parallel()
	m := New(kvstore.NewMemory())
	if err := m.Login(context.Background(), "", &types.User{ID: "u1"}); !clienterrors.IsValidation(err) {
		t.Fatalf("expected validation error for empty token, got %v", err)
	}
	if err := m.Login(context.Background(), "t1", &types.User{}); !clienterrors.IsValidation(err) {
		t.Fatalf("expected validation error for malformed user, got %v", err)
	}
	if m.Current().Status != types.StatusUnknown {
		t.Fatalf("failed login must not transition")
	}
}

func TestLogin_PersistenceFailureIsAllOrNothing(t *testing.T) {
	t.Parallel()
	for _, failKey := range []string{TokenKey, UserKey} {
		store := newFaulty()
		m := New(store)
		m.Restore(context.Background())

		var notified int32
		m.Subscribe(func(types.Session) { atomic.AddInt32(&notified, 1) })

		store.failSetKey = failKey
		err := m.Login(context.Background(), "t1", &types.User{ID: "u1"})
		if !clienterrors.IsPersistence(err) {
			t.Fatalf("fail %s: expected persistence error, got %v", failKey, err)
		}
		if got := m.Current(); got.Status != types.StatusAnonymous || got.Token != "" {
			t.Fatalf("fail %s: in-memory state changed: %+v", failKey, got)
		}
		if notified != 0 {
			t.Fatalf("fail %s: observers notified on failed login", failKey)
		}
		if _, ok, _ := store.Get(context.Background(), TokenKey); ok {
			t.Fatalf("fail %s: durable token left behind", failKey)
		}
	}
}

func TestLogin_RollbackKeepsPreviousToken(t *testing.T) {
	t.Parallel()
	store := newFaulty()
	m := New(store)
	if err := m.Login(context.Background(), "old", &types.User{ID: "u1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	store.failSetKey = UserKey
	if err := m.Login(context.Background(), "new", &types.User{ID: "u2"}); err == nil {
		t.Fatalf("expected failure")
	}
	if v, _, _ := store.Get(context.Background(), TokenKey); v != "old" {
		t.Fatalf("previous token not restored, got %q", v)
	}
	if got := m.Current(); got.Token != "old" || got.User.ID != "u1" {
		t.Fatalf("in-memory session changed: %+v", got)
	}
}

func TestLogin_UnreadablePreviousTokenIsLeftAlone(t *testing.T) {
	t.Parallel()
	store := newFaulty()
	seed(t, store, "old", &types.User{ID: "u1"})
	m := New(store)

	store.failGetKey = TokenKey
	store.failSetKey = UserKey
	err := m.Login(context.Background(), "new", &types.User{ID: "u2"})
	if !clienterrors.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}

	store.failGetKey = ""
	if v, ok, _ := store.Get(context.Background(), TokenKey); !ok || v != "old" {
		t.Fatalf("stored token changed: %q present=%v", v, ok)
	}
	if got := m.Current(); got.Status == types.StatusAuthenticated {
		t.Fatalf("session authenticated after failed login: %+v", got)
	}
}

func TestLogin_PanickingObserverDoesNotBreakTransition(t *testing.T) {
	t.Parallel()
	m := New(kvstore.NewMemory())
	m.Subscribe(func(s types.Session) {
		if s.Status == types.StatusAuthenticated {
			panic("render failed")
		}
	})
	var seen int32
	m.Subscribe(func(types.Session) { atomic.AddInt32(&seen, 1) })

	if err := m.Login(context.Background(), "t1", &types.User{ID: "u1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := m.Current(); got.Status != types.StatusAuthenticated {
		t.Fatalf("expected authenticated, got %+v", got)
	}
	if atomic.LoadInt32(&seen) != 1 {
		t.Fatalf("later observer not notified")
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()
	for _, failRemove := range []bool{false, true} {
		store := newFaulty()
		m := New(store)
		if err := m.Login(context.Background(), "t1", &types.User{ID: "u1"}); err != nil {
			t.Fatalf("login: %v", err)
		}
		store.failRemove = failRemove

		err := m.Logout(context.Background())
		if failRemove && !clienterrors.IsPersistence(err) {
			t.Fatalf("expected non-fatal persistence warning, got %v", err)
		}
		if !failRemove && err != nil {
			t.Fatalf("logout: %v", err)
		}
		got := m.Current()
		if got.Status != types.StatusAnonymous || got.Token != "" || got.User != nil {
			t.Fatalf("failRemove=%v: expected anonymous, got %+v", failRemove, got)
		}
	}
}

func TestSubscribe_NotifiesBeforeReturnAndUnsubscribes(t *testing.T) {
	t.Parallel()
	m := New(kvstore.NewMemory())
	var order []string
	unsubA := m.Subscribe(func(s types.Session) { order = append(order, "a:"+s.Status.String()) })
	m.Subscribe(func(s types.Session) {
		// Current already reflects the transition being announced.
		if m.Current().Status != s.Status {
			t.Errorf("observer saw stale Current")
		}
		order = append(order, "b:"+s.Status.String())
	})

	if err := m.Login(context.Background(), "t1", &types.User{ID: "u1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	unsubA()
	unsubA()
	_ = m.Logout(context.Background())

	want := []string{"a:authenticated", "b:authenticated", "b:anonymous"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestRestore_ConcurrentCallsShareOneRead(t *testing.T) {
	t.Parallel()
	store := newFaulty()
	seed(t, store, "t1", map[string]string{"id": "u1"})
	m := New(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s := m.Restore(context.Background()); !s.Authenticated() {
				t.Errorf("expected authenticated, got %v", s.Status)
			}
		}()
	}
	wg.Wait()
	if v := atomic.LoadInt32(&store.views); v < 1 || v > 8 {
		t.Fatalf("unexpected view count %d", v)
	}
}

func TestTokenAndUserReadPathsSwallowErrors(t *testing.T) {
	t.Parallel()
	store := kvstore.NewMemory()
	m := New(store)
	seed(t, store, "", "{corrupt")
	if _, ok := m.User(context.Background()); ok {
		t.Fatalf("corrupt user must read as absent")
	}
	_ = store.Close()
	if _, ok := m.Token(context.Background()); ok {
		t.Fatalf("closed store must read as absent")
	}
}

func TestSetTokenAndSetUser(t *testing.T) {
	t.Parallel()
	store := newFaulty()
	m := New(store)
	ctx := context.Background()

	if err := m.SetToken(ctx, "t0"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if m.Current().Token != "" {
		t.Fatalf("SetToken must not authenticate an anonymous session")
	}
	if tok, ok := m.Token(ctx); !ok || tok != "t0" {
		t.Fatalf("durable token not written: %q", tok)
	}

	if err := m.Login(ctx, "t1", &types.User{ID: "u1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.SetToken(ctx, "t2"); err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if err := m.SetUser(ctx, &types.User{ID: "u1", Nickname: "Ann"}); err != nil {
		t.Fatalf("set user: %v", err)
	}
	got := m.Current()
	if got.Token != "t2" || got.User.Nickname != "Ann" || !got.Authenticated() {
		t.Fatalf("unexpected session: %+v", got)
	}

	store.failSetKey = UserKey
	if err := m.SetUser(ctx, &types.User{ID: "u1"}); !clienterrors.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if err := m.SetToken(ctx, " "); !clienterrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
