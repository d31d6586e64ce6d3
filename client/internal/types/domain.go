package types

import "fmt"

// ------------------------------
// Core Domain Entities
// ------------------------------

// User is the signed-in account. It is immutable once fetched; ID is the
// identity key, UserID the public handle.
type User struct {
	ID           string `json:"id" yaml:"id" validate:"required"`
	UserID       string `json:"userId,omitempty" yaml:"userId,omitempty"`
	Email        string `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Nickname     string `json:"nickname,omitempty" yaml:"nickname,omitempty"`
	ProfileImage string `json:"profileImage,omitempty" yaml:"profileImage,omitempty" validate:"omitempty,url"`
}

// Status is the lifecycle position of the process session.
type Status int

const (
	StatusUnknown Status = iota
	StatusRestoring
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusRestoring:
		return "restoring"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status by name so JSON and logs stay readable.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Session is a point-in-time copy of the authentication state.
// Status is Authenticated iff Token is non-empty and User is non-nil.
type Session struct {
	Token  string `json:"token,omitempty"`
	User   *User  `json:"currentUser,omitempty"`
	Status Status `json:"status"`
}

// Authenticated reports whether the session can issue authenticated calls.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.User != nil
}

// Clone returns a copy that shares nothing with s.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}
