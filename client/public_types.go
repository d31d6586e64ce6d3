package client

import (
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/cache"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/config"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/consistency"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/kvstore"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/notify"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/session"
	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/types"
)

// Public type aliases so consumers import only the client package.
type (
	// Session state
	User          = types.User
	Session       = types.Session
	Status        = types.Status
	Observer      = session.Observer
	Store         = kvstore.Store
	Config        = config.Config
	CacheKey      = cache.Key
	CacheEvent    = cache.Event
	QueryTag      = cache.Tag
	QueryID       = cache.QueryID
	Cache         = cache.Cache
	Engine        = consistency.Engine
	Dispatcher    = notify.Dispatcher
	Subscription  = notify.Subscription
	DispatchState = notify.State

	// Notifications
	Provider         = notify.Provider
	Envelope         = notify.Envelope
	EnvelopeType     = notify.Type
	Intent           = notify.Intent
	IntentKind       = notify.IntentKind
	Permission       = notify.Permission
	MemoryProvider   = notify.MemoryProvider
	WebSocketConfig  = notify.WebSocketConfig
	WebSocketGateway = notify.WebSocketProvider
)

// Re-exported constants.
const (
	StatusUnknown       = types.StatusUnknown
	StatusRestoring     = types.StatusRestoring
	StatusAuthenticated = types.StatusAuthenticated
	StatusAnonymous     = types.StatusAnonymous

	TagMyGoals        = consistency.TagMyGoals
	TagFollowingGoals = consistency.TagFollowingGoals
	TypeGoal          = consistency.TypeGoal
	TypeUser          = consistency.TypeUser

	EnvelopeStickerReceived = notify.TypeStickerReceived
	EnvelopeFollowRequest   = notify.TypeFollowRequest
	EnvelopeGoalInvitation  = notify.TypeGoalInvitation
	EnvelopeUnknown         = notify.TypeUnknown

	IntentOpenGoalDetail     = notify.IntentOpenGoalDetail
	IntentOpenFollowRequests = notify.IntentOpenFollowRequests
	IntentOpenGoalInvitation = notify.IntentOpenGoalInvitation
	IntentOpenHome           = notify.IntentOpenHome

	PermissionGranted     = notify.PermissionGranted
	PermissionDenied      = notify.PermissionDenied
	PermissionProvisional = notify.PermissionProvisional

	StateInactive = notify.StateInactive
	StateActive   = notify.StateActive
)

// Identify returns the cache key of an entity.
func Identify(typename, id string) CacheKey { return cache.Identify(typename, id) }

// NewMemoryStore returns a volatile Store.
func NewMemoryStore() Store { return kvstore.NewMemory() }

// NewMemoryProvider returns an in-process push provider that hands out token.
func NewMemoryProvider(token string) *MemoryProvider { return notify.NewMemoryProvider(token) }

// NewWebSocketGateway returns a push provider backed by a websocket gateway.
func NewWebSocketGateway(cfg WebSocketConfig) *WebSocketGateway {
	return notify.NewWebSocketProvider(cfg)
}

// ParseEnvelope decodes and classifies a JSON envelope.
func ParseEnvelope(raw []byte) (Envelope, error) { return notify.ParseEnvelope(raw) }

// LoadConfig reads HAMHIBOKKA_* environment variables.
func LoadConfig() (*Config, error) { return config.New() }
