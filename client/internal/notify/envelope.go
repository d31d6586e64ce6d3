// Package notify receives push-notification envelopes, routes each one to
// cache invalidations plus a navigation intent, and owns the Inactive/Active
// subscription lifecycle that follows the session.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/errors"
)

// Type is the event type carried by an envelope.
type Type string

// Envelope types understood by Route. Anything else classifies as TypeUnknown.
const (
	TypeStickerReceived Type = "sticker_received"
	TypeFollowRequest   Type = "follow_request"
	TypeGoalInvitation  Type = "goal_invitation"
	TypeUnknown         Type = "unknown"
)

// Known data keys.
const (
	DataGoalID = "goalId"
	DataUserID = "userId"
)

// Envelope is one inbound notification. It is consumed once and never
// persisted.
type Envelope struct {
	ID    string         `json:"id,omitempty"    yaml:"id,omitempty"`
	Type  Type           `json:"type"            yaml:"type"`
	Title string         `json:"title,omitempty" yaml:"title,omitempty"`
	Body  string         `json:"body,omitempty"  yaml:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"  yaml:"data,omitempty"`
}

// DataString returns the data value for key when it is a non-empty string.
// Providers deliver data values as strings; numbers are formatted.
func (e Envelope) DataString(key string) string {
	switch v := e.Data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64, int, int64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Classify normalizes env.Type. An unrecognised or missing type yields a copy
// typed TypeUnknown together with a classification error; the envelope is
// still routable.
func Classify(env Envelope) (Envelope, error) {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	t := Type(strings.ToLower(strings.TrimSpace(string(env.Type))))
	switch t {
	case TypeStickerReceived, TypeFollowRequest, TypeGoalInvitation:
		env.Type = t
		return env, nil
	}
	orig := env.Type
	env.Type = TypeUnknown
	return env, errors.Classification("notify.classify", fmt.Errorf("unrecognised envelope type %q", orig))
}

// ParseEnvelope decodes a JSON envelope and classifies it. Undecodable input
// becomes an empty TypeUnknown envelope with a classification error.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{ID: uuid.NewString(), Type: TypeUnknown},
			errors.Classification("notify.parse", fmt.Errorf("decode envelope: %w", err))
	}
	return Classify(env)
}
