package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	goal1 = Identify("Goal", "g1")
	user1 = Identify("User", "u1")
	user2 = Identify("User", "u2")
)

func TestIdentify_Deterministic(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Identify("Goal", "g1"), Identify("Goal", "g1"))
	assert.NotEqual(t, Identify("Goal", "g1"), Identify("User", "g1"))
	assert.Equal(t, "Goal:g1", goal1.String())
	assert.True(t, Key{}.IsZero())
}

func TestWriteFragment_MergesNamedFieldsOnly(t *testing.T) {
	t.Parallel()
	c := New()
	c.WriteFragment(goal1, map[string]any{"title": "Run", "stickerGoal": 10})
	c.WriteFragment(goal1, map[string]any{"title": "Run daily"})

	got, ok := c.ReadFragment(goal1)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"title": "Run daily", "stickerGoal": 10}, got)

	c.Replace(goal1, map[string]any{"title": "Walk"})
	got, ok = c.ReadFragment(goal1)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"title": "Walk"}, got, "replace drops unnamed fields")
}

func TestReadFragment(t *testing.T) {
	t.Parallel()
	c := New()
	_, ok := c.ReadFragment(goal1, "title")
	assert.False(t, ok, "unknown entity")

	c.WriteFragment(goal1, map[string]any{"title": "Run", "mode": "personal"})
	got, ok := c.ReadFragment(goal1, "title")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"title": "Run"}, got)

	_, ok = c.ReadFragment(goal1, "title", "participants")
	assert.False(t, ok, "incomplete fragment reads as absent")
}

func TestValuesAreCopied(t *testing.T) {
	t.Parallel()
	c := New()
	parts := []any{map[string]any{"user": user1, "stickerCount": 1}}
	c.WriteFragment(goal1, map[string]any{"participants": parts})

	// mutate caller's copy after write
	parts[0].(map[string]any)["stickerCount"] = 99

	got, _ := c.ReadFragment(goal1, "participants")
	list := got["participants"].([]any)
	assert.Equal(t, 1, list[0].(map[string]any)["stickerCount"])

	// mutate the read copy
	list[0].(map[string]any)["stickerCount"] = 42
	again, _ := c.ReadFragment(goal1, "participants")
	assert.Equal(t, 1, again["participants"].([]any)[0].(map[string]any)["stickerCount"])
}

func TestNormalization_SharedAcrossQueries(t *testing.T) {
	t.Parallel()
	c := New()
	c.WriteFragment(goal1, map[string]any{"title": "Run"})
	mine := c.RecordQuery("MyGoals", []Tag{"MyGoals"}, goal1)
	following := c.RecordQuery("FollowingGoals", []Tag{"FollowingGoals"}, goal1)

	c.WriteFragment(goal1, map[string]any{"title": "Run daily"})

	a, ok := c.ReadQuery(mine)
	require.True(t, ok)
	b, ok := c.ReadQuery(following)
	require.True(t, ok)
	assert.Equal(t, "Run daily", a.Entities[goal1]["title"])
	assert.Equal(t, a.Entities[goal1], b.Entities[goal1])
	assert.False(t, a.Stale)
}

func TestEvict_SurfacesMissingAndStalesDependents(t *testing.T) {
	t.Parallel()
	c := New()
	c.WriteFragment(user1, map[string]any{"id": "u1", "nickname": "Ann"})
	c.WriteFragment(goal1, map[string]any{
		"participants": []any{map[string]any{"user": user1, "stickerCount": 0}},
	})
	other := Identify("Goal", "g2")
	c.WriteFragment(other, map[string]any{"title": "Unrelated"})

	dependent := c.RecordQuery("MyGoals", []Tag{"MyGoals"}, goal1)
	unrelated := c.RecordQuery("Other", nil, other)

	var events []Event
	c.Watch(func(e Event) { events = append(events, e) })

	require.True(t, c.Evict(user1))
	assert.False(t, c.Evict(user1), "second evict is a no-op")

	res, ok := c.ReadQuery(dependent)
	require.True(t, ok)
	assert.True(t, res.Stale)
	assert.Equal(t, []Key{user1}, res.Missing)

	// the reference slot itself is kept, not silently dropped
	frag, ok := c.ReadFragment(goal1, "participants")
	require.True(t, ok)
	assert.Equal(t, user1, frag["participants"].([]any)[0].(map[string]any)["user"])

	assert.False(t, c.IsStale(unrelated))
	require.Len(t, events, 1)
	assert.Equal(t, EventEvicted, events[0].Kind)
	assert.Equal(t, []QueryID{dependent}, events[0].Queries)
}

func TestInvalidateTag(t *testing.T) {
	t.Parallel()
	c := New()
	c.WriteFragment(goal1, map[string]any{"title": "Run"})
	mine := c.RecordQuery("MyGoals", []Tag{"MyGoals"}, goal1)
	following := c.RecordQuery("FollowingGoals", []Tag{"FollowingGoals"}, goal1)

	assert.Equal(t, 1, c.InvalidateTag("MyGoals"))
	assert.True(t, c.IsStale(mine))
	assert.False(t, c.IsStale(following))
	assert.True(t, c.Has(goal1), "invalidation does not evict")
	assert.Equal(t, []QueryID{mine}, c.Stale())

	require.True(t, c.MarkFresh(mine, goal1))
	assert.False(t, c.IsStale(mine))
	assert.False(t, c.MarkFresh(QueryID(999)))
	assert.Equal(t, 0, c.InvalidateTag("Nobody"))
}

func TestForgetAndGC(t *testing.T) {
	t.Parallel()
	c := New()
	c.WriteFragment(goal1, map[string]any{"owner": user1})
	c.WriteFragment(user1, map[string]any{"id": "u1"})
	c.WriteFragment(user2, map[string]any{"id": "u2"})
	q := c.RecordQuery("MyGoals", []Tag{"MyGoals"}, goal1)

	assert.Equal(t, 1, c.GC(), "only u2 is unreachable")
	assert.True(t, c.Has(user1))
	assert.False(t, c.Has(user2))

	c.Forget(q)
	assert.True(t, c.IsStale(q), "forgotten queries read as stale")
	_, ok := c.ReadQuery(q)
	assert.False(t, ok)
	assert.Equal(t, 2, c.GC())
	assert.Equal(t, 0, c.Len())
}

func TestWatch_Unsubscribe(t *testing.T) {
	t.Parallel()
	c := New()
	var n int
	unsub := c.Watch(func(Event) { n++ })
	c.WriteFragment(goal1, map[string]any{"a": 1})
	unsub()
	unsub()
	c.WriteFragment(goal1, map[string]any{"a": 2})
	assert.Equal(t, 1, n)
}

func TestWriteEvent_ListsSortedFields(t *testing.T) {
	t.Parallel()
	c := New()
	var got Event
	c.Watch(func(e Event) { got = e })
	c.WriteFragment(goal1, map[string]any{"b": 1, "a": 2})
	assert.Equal(t, EventWritten, got.Kind)
	assert.Equal(t, []string{"a", "b"}, got.Fields)
	assert.Equal(t, "written", got.Kind.String())
}

func TestUpdateFragment(t *testing.T) {
	t.Parallel()
	c := New()
	var events []Event
	c.Watch(func(e Event) { events = append(events, e) })

	inc := func(v any) (any, bool) {
		n, ok := v.(int)
		return n + 1, ok
	}
	assert.False(t, c.UpdateFragment(goal1, "count", inc), "unknown entity")

	c.WriteFragment(goal1, map[string]any{"title": "Run", "count": 1})
	assert.False(t, c.UpdateFragment(goal1, "missing", inc), "unknown field")
	assert.False(t, c.UpdateFragment(goal1, "title", inc), "fn declined")

	require.True(t, c.UpdateFragment(goal1, "count", inc))
	got, ok := c.ReadFragment(goal1)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"title": "Run", "count": 2}, got)

	require.Len(t, events, 2)
	assert.Equal(t, []string{"count"}, events[1].Fields)
}

func TestUpdateFragment_DoesNotRecreateEvictedEntity(t *testing.T) {
	t.Parallel()
	c := New()
	c.WriteFragment(goal1, map[string]any{"count": 1})
	c.Evict(goal1)

	assert.False(t, c.UpdateFragment(goal1, "count", func(v any) (any, bool) { return 5, true }))
	assert.False(t, c.Has(goal1))
}
