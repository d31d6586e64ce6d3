package notify

import "context"

// Permission is the user's answer to the notification permission prompt.
type Permission int

const (
	PermissionDenied Permission = iota
	PermissionGranted
	PermissionProvisional
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionProvisional:
		return "provisional"
	default:
		return "denied"
	}
}

// Handler receives an envelope from a provider.
type Handler func(Envelope)

// Provider is a push-messaging backend. OnMessage handlers receive envelopes
// that arrive while the app is in the foreground; OnNotificationOpenedApp
// handlers receive envelopes whose notification was tapped while the app was
// backgrounded. Both return a function that removes the handler.
type Provider interface {
	RequestPermission(ctx context.Context) (Permission, error)
	Token(ctx context.Context) (string, error)
	OnMessage(h Handler) (unsubscribe func())
	OnNotificationOpenedApp(h Handler) (unsubscribe func())
	// InitialNotification returns the envelope that launched the app from a
	// terminated state, or nil.
	InitialNotification(ctx context.Context) (*Envelope, error)
}
