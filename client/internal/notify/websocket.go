package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
)

// Gateway frame kinds.
const (
	frameRegister   = "register"
	frameRegistered = "registered"
	frameMessage    = "message"
	frameOpened     = "opened"
)

// frame is the JSON message exchanged with the push gateway. The client sends
// one register frame; the gateway answers with registered (carrying the
// device token and the launch envelope, if any) and then streams message and
// opened frames.
type frame struct {
	Kind     string          `json:"kind"`
	Platform string          `json:"platform,omitempty"`
	Token    string          `json:"token,omitempty"`
	Envelope json.RawMessage `json:"envelope,omitempty"`
	Initial  json.RawMessage `json:"initial,omitempty"`
}

// WebSocketConfig configures a WebSocketProvider.
type WebSocketConfig struct {
	URL              string
	Platform         string
	HandshakeTimeout time.Duration
	// ReconnectInitial and ReconnectMax bound the backoff between redials
	// after the connection drops.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Logger           zerolog.Logger
}

// WebSocketProvider is a Provider backed by a push gateway reached over a
// websocket. The connection is opened lazily by Token or InitialNotification.
// When it drops, the provider redials in the background with exponential
// backoff until it reconnects, the gateway rejects it, or Close is called.
// Registered handlers keep receiving frames from the new connection.
type WebSocketProvider struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
	log    zerolog.Logger

	// lifetime is canceled by Close and bounds dials and redial loops.
	lifetime context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	token   string
	initial *Envelope
	closed  bool

	wg         sync.WaitGroup
	foreground handlerSet
	opened     handlerSet
}

// NewWebSocketProvider returns an unconnected provider.
func NewWebSocketProvider(cfg WebSocketConfig) *WebSocketProvider {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &WebSocketProvider{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:      cfg.Logger.With().Str("component", "notify.websocket").Logger(),
		lifetime: lifetime,
		cancel:   cancel,
	}
}

// RequestPermission implements Provider. A socket delivers in-app only, so
// there is no prompt to show.
func (p *WebSocketProvider) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDenied, err
	}
	return PermissionGranted, nil
}

// Token implements Provider.
func (p *WebSocketProvider) Token(ctx context.Context) (string, error) {
	if err := p.connect(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, nil
}

// InitialNotification implements Provider.
func (p *WebSocketProvider) InitialNotification(ctx context.Context) (*Envelope, error) {
	if err := p.connect(ctx); err != nil {
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

// OnMessage implements Provider.
func (p *WebSocketProvider) OnMessage(h Handler) func() { return p.foreground.add(h) }

// OnNotificationOpenedApp implements Provider.
func (p *WebSocketProvider) OnNotificationOpenedApp(h Handler) func() { return p.opened.add(h) }

// Close drops the connection, stops any redial and waits for the read loop
// to exit.
func (p *WebSocketProvider) Close() error {
	p.cancel()
	p.mu.Lock()
	p.closed = true
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = conn.Close()
	}
	p.wg.Wait()
	return err
}

func (p *WebSocketProvider) connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.NewNetworkError("notify.websocket.connect", fmt.Errorf("provider closed"))
	}
	if p.conn != nil {
		return nil
	}

	dialCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-p.lifetime.Done():
			stop()
		case <-dialCtx.Done():
		}
	}()

	conn, resp, err := p.dialer.DialContext(dialCtx, p.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return errors.ClassifyHTTPError("notify.websocket.dial", resp.StatusCode, "", err)
		}
		return errors.NewNetworkError("notify.websocket.dial", err)
	}

	deadline := time.Now().Add(p.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteJSON(frame{Kind: frameRegister, Platform: p.cfg.Platform}); err != nil {
		_ = conn.Close()
		return errors.NewNetworkError("notify.websocket.register", err)
	}
	var reply frame
	if err := conn.ReadJSON(&reply); err != nil {
		_ = conn.Close()
		return errors.NewNetworkError("notify.websocket.register", err)
	}
	if reply.Kind != frameRegistered || reply.Token == "" {
		_ = conn.Close()
		return errors.NewNetworkError("notify.websocket.register",
			fmt.Errorf("unexpected %q frame during registration", reply.Kind))
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	if p.token != "" && p.token != reply.Token {
		p.log.Warn().Msg("push gateway issued a new device token on reconnect")
	}
	p.conn = conn
	p.token = reply.Token
	p.initial = nil
	if len(reply.Initial) > 0 && string(reply.Initial) != "null" {
		env, err := ParseEnvelope(reply.Initial)
		if err != nil {
			p.log.Debug().Err(err).Msg("initial envelope unclassified")
		}
		p.initial = &env
	}

	p.wg.Add(1)
	go p.readLoop(conn)
	p.log.Info().Str("url", p.cfg.URL).Msg("push gateway connected")
	return nil
}

func (p *WebSocketProvider) readLoop(conn *websocket.Conn) {
	defer p.wg.Done()
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			p.mu.Lock()
			if p.conn == conn {
				p.conn = nil
			}
			closed := p.closed
			if !closed {
				p.wg.Add(1)
			}
			p.mu.Unlock()
			_ = conn.Close()
			if !closed {
				p.log.Warn().Err(err).Msg("push gateway connection lost")
				go p.reconnect()
			}
			return
		}

		var set *handlerSet
		switch f.Kind {
		case frameMessage:
			set = &p.foreground
		case frameOpened:
			set = &p.opened
		default:
			p.log.Debug().Str("kind", f.Kind).Msg("ignoring gateway frame")
			continue
		}
		env, err := ParseEnvelope(f.Envelope)
		if err != nil {
			p.log.Debug().Err(err).Str("envelope_id", env.ID).Msg("envelope unclassified")
		}
		set.emit(env)
	}
}

// reconnect redials until a connection is up again. It gives up when the
// provider is closed or the gateway answers with an irrecoverable status;
// the next Token or InitialNotification call then dials afresh.
func (p *WebSocketProvider) reconnect() {
	defer p.wg.Done()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.ReconnectInitial
	exp.MaxInterval = p.cfg.ReconnectMax
	exp.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := p.connect(p.lifetime)
		if err == nil {
			return nil
		}
		if p.isClosed() || errors.IsIrrecoverable(err) {
			return backoff.Permanent(err)
		}
		p.log.Debug().Err(err).Int("attempt", attempt).Msg("push gateway redial failed")
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(exp, p.lifetime)); err != nil {
		if !p.isClosed() {
			p.log.Error().Err(err).Int("attempts", attempt).Msg("push gateway reconnect abandoned")
		}
		return
	}
	p.log.Info().Int("attempts", attempt).Msg("push gateway reconnected")
}

func (p *WebSocketProvider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
