// Package cache implements the normalized entity cache: entities stored once
// under a (typename, id) key, query results holding references to them, and
// tag-based invalidation of those results.
//
// Field values may be scalars, Key references, embedded objects
// (map[string]any) or lists of either. Values are deep-copied on the way in
// and out, so callers never alias stored state.
package cache

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Key identifies a cached entity. It doubles as the reference value stored
// in other entities' fields.
type Key struct {
	Typename string
	ID       string
}

// Identify returns the composite key for (typename, id).
func Identify(typename, id string) Key { return Key{Typename: typename, ID: id} }

func (k Key) String() string { return k.Typename + ":" + k.ID }

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k.Typename == "" && k.ID == "" }

// Tag is a logical label grouping query results for bulk invalidation.
type Tag string

// QueryID identifies a recorded query result.
type QueryID uint64

// EventKind classifies cache change notifications.
type EventKind int

const (
	EventWritten EventKind = iota
	EventEvicted
	EventInvalidated
)

func (k EventKind) String() string {
	switch k {
	case EventWritten:
		return "written"
	case EventEvicted:
		return "evicted"
	case EventInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event describes one change, delivered to watchers after it is applied.
type Event struct {
	Kind    EventKind
	Key     Key       // written or evicted entity
	Fields  []string  // written field names, sorted
	Tag     Tag       // invalidated tag
	Queries []QueryID // queries that became stale because of this change
}

type query struct {
	name  string
	tags  []Tag
	roots []Key
	stale bool
}

// QueryResult is the resolved view of a recorded query.
type QueryResult struct {
	ID    QueryID
	Name  string
	Tags  []Tag
	Roots []Key
	// Entities holds a copy of every entity reachable from Roots.
	Entities map[Key]map[string]any
	// Missing lists references that point at entities not in the cache.
	Missing []Key
	// Stale is set once the result has been invalidated or lost an entity;
	// the owner must refetch before trusting it.
	Stale bool
}

type watcher struct {
	id uuid.UUID
	fn func(Event)
}

// Cache is the normalized entity store. All mutations are serialized by one
// mutex and applied in call order.
type Cache struct {
	mu       sync.Mutex
	entities map[Key]map[string]any
	queries  map[QueryID]*query
	nextID   QueryID

	watchMu  sync.Mutex
	watchers []watcher

	log zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.log = l.With().Str("component", "cache").Logger() }
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entities: make(map[Key]map[string]any),
		queries:  make(map[QueryID]*query),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadFragment returns the named fields of the entity at key. It reports
// false when the entity is unknown or any named field has never been
// written. With no field names the whole entity is returned.
func (c *Cache) ReadFragment(key Key, fields ...string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entities[key]
	if !ok {
		return nil, false
	}
	if len(fields) == 0 {
		return cloneFields(ent), true
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := ent[f]
		if !ok {
			return nil, false
		}
		out[f] = cloneValue(v)
	}
	return out, true
}

// WriteFragment merges fields into the entity at key, creating it if needed.
// Fields not named are left untouched.
func (c *Cache) WriteFragment(key Key, fields map[string]any) {
	c.write(key, fields, false)
}

// Replace overwrites the entity at key with exactly fields.
func (c *Cache) Replace(key Key, fields map[string]any) {
	c.write(key, fields, true)
}

func (c *Cache) write(key Key, fields map[string]any, replace bool) {
	c.mu.Lock()
	ent, ok := c.entities[key]
	if !ok || replace {
		ent = make(map[string]any, len(fields))
		c.entities[key] = ent
	}
	names := make([]string, 0, len(fields))
	for f, v := range fields {
		ent[f] = cloneValue(v)
		names = append(names, f)
	}
	c.mu.Unlock()

	sort.Strings(names)
	fragmentWritesTotal.WithLabelValues(key.Typename).Inc()
	c.emit(Event{Kind: EventWritten, Key: key, Fields: names})
}

// UpdateFragment rewrites one field of an existing entity while holding the
// cache lock, so no other write or eviction can land between the read and
// the write. fn receives a private copy of the current value and returns the
// replacement and whether to store it. fn must not call back into the cache.
// Nothing is written when the entity or field is absent or fn declines; the
// result reports whether a write happened.
func (c *Cache) UpdateFragment(key Key, field string, fn func(any) (any, bool)) bool {
	c.mu.Lock()
	ent, ok := c.entities[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	cur, ok := ent[field]
	if !ok {
		c.mu.Unlock()
		return false
	}
	next, write := fn(cloneValue(cur))
	if !write {
		c.mu.Unlock()
		return false
	}
	ent[field] = cloneValue(next)
	c.mu.Unlock()

	fragmentWritesTotal.WithLabelValues(key.Typename).Inc()
	c.emit(Event{Kind: EventWritten, Key: key, Fields: []string{field}})
	return true
}

// Evict removes the entity at key. Every recorded query that could reach it
// is marked stale so its owner re-resolves; references to it elsewhere are
// kept and surface as missing. It reports whether the entity existed.
func (c *Cache) Evict(key Key) bool {
	c.mu.Lock()
	_, existed := c.entities[key]
	var affected []QueryID
	if existed {
		for id, q := range c.queries {
			if _, ok := c.reachableLocked(q.roots)[key]; ok {
				q.stale = true
				affected = append(affected, id)
			}
		}
		delete(c.entities, key)
	}
	c.mu.Unlock()

	if !existed {
		return false
	}
	sortIDs(affected)
	evictionsTotal.WithLabelValues(key.Typename).Inc()
	c.log.Debug().Str("key", key.String()).Int("stale_queries", len(affected)).Msg("entity evicted")
	c.emit(Event{Kind: EventEvicted, Key: key, Queries: affected})
	return true
}

// InvalidateTag marks every recorded query carrying tag as stale and returns
// how many there were.
func (c *Cache) InvalidateTag(tag Tag) int {
	c.mu.Lock()
	var affected []QueryID
	for id, q := range c.queries {
		for _, t := range q.tags {
			if t == tag {
				q.stale = true
				affected = append(affected, id)
				break
			}
		}
	}
	c.mu.Unlock()

	sortIDs(affected)
	tagInvalidationsTotal.WithLabelValues(string(tag)).Inc()
	c.log.Debug().Str("tag", string(tag)).Int("queries", len(affected)).Msg("tag invalidated")
	c.emit(Event{Kind: EventInvalidated, Tag: tag, Queries: affected})
	return len(affected)
}

// Has reports whether an entity is cached at key.
func (c *Cache) Has(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entities[key]
	return ok
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entities)
}

// Watch registers fn for every subsequent change and returns a function that
// removes it. fn runs synchronously on the mutating goroutine after the
// change is applied.
func (c *Cache) Watch(fn func(Event)) (unsubscribe func()) {
	id := uuid.New()
	c.watchMu.Lock()
	c.watchers = append(c.watchers, watcher{id: id, fn: fn})
	c.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.watchMu.Lock()
			defer c.watchMu.Unlock()
			for i, w := range c.watchers {
				if w.id == id {
					c.watchers = append(c.watchers[:i:i], c.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Cache) emit(ev Event) {
	c.watchMu.Lock()
	ws := make([]func(Event), len(c.watchers))
	for i, w := range c.watchers {
		ws[i] = w.fn
	}
	c.watchMu.Unlock()
	for _, fn := range ws {
		fn(ev)
	}
}

func sortIDs(ids []QueryID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
