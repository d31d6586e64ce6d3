package cache

import "sort"

// RecordQuery registers a fresh query result selecting roots, labelled with
// tags. The layer that executes queries writes the entities first, then
// records which of them the result points at.
func (c *Cache) RecordQuery(name string, tags []Tag, roots ...Key) QueryID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.queries[id] = &query{
		name:  name,
		tags:  append([]Tag(nil), tags...),
		roots: append([]Key(nil), roots...),
	}
	return id
}

// MarkFresh records a refetched result for id, replacing its roots and
// clearing the stale flag. It reports false for an unknown id.
func (c *Cache) MarkFresh(id QueryID, roots ...Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[id]
	if !ok {
		return false
	}
	q.roots = append([]Key(nil), roots...)
	q.stale = false
	return true
}

// Forget drops a recorded query.
func (c *Cache) Forget(id QueryID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queries, id)
}

// IsStale reports whether the query must be refetched. Unknown ids are stale.
func (c *Cache) IsStale(id QueryID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[id]
	return !ok || q.stale
}

// Stale lists the ids of every stale query in ascending order.
func (c *Cache) Stale() []QueryID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []QueryID
	for id, q := range c.queries {
		if q.stale {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// ReadQuery resolves a recorded query against the current entities. A
// result with missing references is reported stale.
func (c *Cache) ReadQuery(id QueryID) (QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[id]
	if !ok {
		return QueryResult{}, false
	}

	res := QueryResult{
		ID:       id,
		Name:     q.name,
		Tags:     append([]Tag(nil), q.tags...),
		Roots:    append([]Key(nil), q.roots...),
		Entities: make(map[Key]map[string]any),
		Stale:    q.stale,
	}
	missing := make(map[Key]struct{})
	c.walkLocked(q.roots, func(k Key, ent map[string]any) {
		if ent == nil {
			missing[k] = struct{}{}
			return
		}
		res.Entities[k] = cloneFields(ent)
	})
	for k := range missing {
		res.Missing = append(res.Missing, k)
	}
	sort.Slice(res.Missing, func(i, j int) bool { return res.Missing[i].String() < res.Missing[j].String() })
	if len(res.Missing) > 0 {
		res.Stale = true
	}
	return res, true
}

// GC removes every entity unreachable from a recorded query and returns how
// many were dropped.
func (c *Cache) GC() int {
	c.mu.Lock()
	var roots []Key
	for _, q := range c.queries {
		roots = append(roots, q.roots...)
	}
	live := c.reachableLocked(roots)
	var dropped []Key
	for k := range c.entities {
		if _, ok := live[k]; !ok {
			dropped = append(dropped, k)
			delete(c.entities, k)
		}
	}
	c.mu.Unlock()

	for _, k := range dropped {
		c.emit(Event{Kind: EventEvicted, Key: k})
	}
	if len(dropped) > 0 {
		c.log.Debug().Int("dropped", len(dropped)).Msg("cache gc")
	}
	return len(dropped)
}

// reachableLocked returns every key reachable from roots, present or not.
func (c *Cache) reachableLocked(roots []Key) map[Key]struct{} {
	seen := make(map[Key]struct{})
	c.walkLocked(roots, func(k Key, _ map[string]any) { seen[k] = struct{}{} })
	return seen
}

// walkLocked visits each key reachable from roots once. ent is nil for keys
// with no cached entity; their outgoing references cannot be followed.
func (c *Cache) walkLocked(roots []Key, visit func(k Key, ent map[string]any)) {
	seen := make(map[Key]struct{})
	stack := append([]Key(nil), roots...)
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ent := c.entities[k]
		visit(k, ent)
		for _, v := range ent {
			stack = collectRefs(v, stack)
		}
	}
}
