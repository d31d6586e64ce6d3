package notify

import (
	"context"
	"sync"
)

// MemoryProvider is an in-process Provider. The CLI replays fixture files
// through it and tests drive it directly.
type MemoryProvider struct {
	mu          sync.Mutex
	permission  Permission
	token       string
	tokenErr    error
	tokenFails  int
	tokenCalls  int
	initial     *Envelope
	permissions int

	foreground handlerSet
	opened     handlerSet
}

// NewMemoryProvider returns a provider that grants permission and hands out
// token.
func NewMemoryProvider(token string) *MemoryProvider {
	return &MemoryProvider{permission: PermissionGranted, token: token}
}

// SetPermission sets the answer to future permission prompts.
func (p *MemoryProvider) SetPermission(perm Permission) {
	p.mu.Lock()
	p.permission = perm
	p.mu.Unlock()
}

// FailToken makes the next n Token calls return err.
func (p *MemoryProvider) FailToken(n int, err error) {
	p.mu.Lock()
	p.tokenFails, p.tokenErr = n, err
	p.mu.Unlock()
}

// SetInitial sets the envelope reported as having launched the app.
func (p *MemoryProvider) SetInitial(env *Envelope) {
	p.mu.Lock()
	p.initial = env
	p.mu.Unlock()
}

// TokenCalls reports how many times Token was called.
func (p *MemoryProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// PermissionRequests reports how many times RequestPermission was called.
func (p *MemoryProvider) PermissionRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissions
}

// RequestPermission implements Provider.
func (p *MemoryProvider) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDenied, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permissions++
	return p.permission, nil
}

// Token implements Provider.
func (p *MemoryProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenCalls++
	if p.tokenFails > 0 {
		p.tokenFails--
		return "", p.tokenErr
	}
	return p.token, nil
}

// OnMessage implements Provider.
func (p *MemoryProvider) OnMessage(h Handler) func() { return p.foreground.add(h) }

// OnNotificationOpenedApp implements Provider.
func (p *MemoryProvider) OnNotificationOpenedApp(h Handler) func() { return p.opened.add(h) }

// InitialNotification implements Provider. The same envelope is reported on
// every call, as platform SDKs do; draining it once is the caller's job.
func (p *MemoryProvider) InitialNotification(ctx context.Context) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initial == nil {
		return nil, nil
	}
	env := *p.initial
	return &env, nil
}

// Deliver hands env to foreground handlers and reports how many received it.
func (p *MemoryProvider) Deliver(env Envelope) int { return p.foreground.emit(env) }

// Open hands env to opened-app handlers and reports how many received it.
func (p *MemoryProvider) Open(env Envelope) int { return p.opened.emit(env) }
