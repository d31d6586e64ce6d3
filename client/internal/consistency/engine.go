// Package consistency translates domain events ("a sticker was awarded",
// "a goal was deleted") into cache primitives. Every operation is local and
// total: nothing here touches the network or returns an error.
//
// Sticker counts are patched optimistically and never reconciled against a
// later authoritative read; drift lasts until the next MyGoals or
// FollowingGoals refetch.
package consistency

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/2xteam/hamhibokka-frontend-sub001/client/internal/cache"
)

// Entity typenames and query tags known to the engine.
const (
	TypeGoal = "Goal"
	TypeUser = "User"

	TagMyGoals        cache.Tag = "MyGoals"
	TagFollowingGoals cache.Tag = "FollowingGoals"

	fieldParticipants = "participants"
	fieldUser         = "user"
	fieldID           = "id"
	fieldStickerCount = "stickerCount"
)

// Engine is the cache consistency engine.
type Engine struct {
	cache *cache.Cache
	log   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "consistency").Logger() }
}

// New returns an engine operating on c.
func New(c *cache.Cache, opts ...Option) *Engine {
	e := &Engine{cache: c, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InvalidateGoal evicts the goal when goalID is non-empty, then invalidates
// both goal list tags regardless. Participant lists and summaries derived
// from a goal cannot be patched incrementally with confidence.
func (e *Engine) InvalidateGoal(goalID string) {
	if goalID != "" {
		e.cache.Evict(cache.Identify(TypeGoal, goalID))
	}
	e.cache.InvalidateTag(TagMyGoals)
	e.cache.InvalidateTag(TagFollowingGoals)
	e.log.Debug().Str("goal_id", goalID).Msg("goal invalidated")
}

// InvalidateUser evicts the user when userID is non-empty.
func (e *Engine) InvalidateUser(userID string) {
	if userID == "" {
		return
	}
	e.cache.Evict(cache.Identify(TypeUser, userID))
	e.log.Debug().Str("user_id", userID).Msg("user invalidated")
}

// AwardSticker is ApplyStickerIncrement with a delta of one.
func (e *Engine) AwardSticker(goalID, userID string) {
	e.ApplyStickerIncrement(goalID, userID, 1)
}

// ApplyStickerIncrement adds delta to one participant's stickerCount in the
// cached goal. It is a no-op when the goal's participants are not cached,
// userID is not among them, or the count is not a whole number. Only the
// matching participant changes and its count keeps its numeric type. The
// list is read, patched and written back as one fragment under the cache
// lock, so concurrent patches and evictions are never lost or undone.
func (e *Engine) ApplyStickerIncrement(goalID, userID string, delta int) {
	if goalID == "" || userID == "" {
		return
	}
	key := cache.Identify(TypeGoal, goalID)
	var reason string
	patched := e.cache.UpdateFragment(key, fieldParticipants, func(v any) (any, bool) {
		out, why := patchParticipants(v, userID, delta)
		reason = why
		return out, why == ""
	})
	if !patched {
		if reason == reasonShape || reason == reasonCount {
			e.log.Warn().Str("goal_id", goalID).Str("user_id", userID).Str("reason", reason).
				Msg("sticker count not patched")
		}
		return
	}
	e.log.Debug().Str("goal_id", goalID).Str("user_id", userID).Int("delta", delta).
		Msg("sticker count patched")
}

const (
	reasonShape  = "participants field has unexpected shape"
	reasonAbsent = "participant not cached"
	reasonCount  = "stickerCount is not a whole number"
)

// patchParticipants returns a copy of the participants list with the
// matching participant's count moved by delta, keeping the container type.
// A non-empty reason means nothing should be written.
func patchParticipants(v any, userID string, delta int) (any, string) {
	list, ok := asList(v)
	if !ok {
		return nil, reasonShape
	}

	idx := -1
	for i, p := range list {
		if participantUserID(p) == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, reasonAbsent
	}

	participant := list[idx].(map[string]any)
	count, ok := addCount(participant[fieldStickerCount], delta)
	if !ok {
		return nil, reasonCount
	}
	patched := make(map[string]any, len(participant))
	for k, val := range participant {
		patched[k] = val
	}
	patched[fieldStickerCount] = count
	list[idx] = patched

	if _, typed := v.([]map[string]any); typed {
		maps := make([]map[string]any, len(list))
		for i, p := range list {
			maps[i] = p.(map[string]any)
		}
		return maps, ""
	}
	return list, ""
}

// asList normalizes the participants value to []any. The cache hands out a
// private copy, so the elements can be replaced in place.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

// participantUserID extracts user.id from a participant whose user is either
// a normalized reference or an embedded object.
func participantUserID(p any) string {
	m, ok := p.(map[string]any)
	if !ok {
		return ""
	}
	switch u := m[fieldUser].(type) {
	case cache.Key:
		return u.ID
	case map[string]any:
		id, _ := u[fieldID].(string)
		return id
	default:
		return ""
	}
}

// addCount adds delta to a numeric field that may have been decoded from
// JSON, keeping its type. Non-numeric and fractional values are rejected.
func addCount(v any, delta int) (any, bool) {
	switch n := v.(type) {
	case int:
		return n + delta, true
	case int32:
		return n + int32(delta), true
	case int64:
		return n + int64(delta), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return n + float64(delta), true
		}
	}
	return nil, false
}
