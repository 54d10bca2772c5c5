// Package cache provides the in-memory ordered entity collection that mirrors
// the remote store for one view.
package cache

import "sync"

// Keyed is an entity identified by a comparable key.
type Keyed[K comparable] interface {
	Key() K
}

// Cache is an ordered collection of entities with unique keys. Order is
// append order unless the caller rearranges it; nothing is sorted implicitly.
type Cache[K comparable, E Keyed[K]] struct {
	mu    sync.RWMutex
	items []E
	index map[K]int
}

// New returns a cache holding items in the given order. Later duplicates
// replace earlier ones in place.
func New[K comparable, E Keyed[K]](items ...E) *Cache[K, E] {
	c := &Cache[K, E]{}
	c.Reset(items)
	return c
}

// Get returns the entity with the given id.
func (c *Cache[K, E]) Get(id K) (E, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		var zero E
		return zero, false
	}
	return c.items[i], true
}

// IndexOf returns the position of id, or -1.
func (c *Cache[K, E]) IndexOf(id K) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Upsert replaces the entity with the same key in place, or appends it.
func (c *Cache[K, E]) Upsert(e E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[e.Key()]; ok {
		c.items[i] = e
		return
	}
	c.index[e.Key()] = len(c.items)
	c.items = append(c.items, e)
}

// Update replaces the entity with the given id by fn's result under the
// write lock. fn must keep the key. found is false when id is absent; an
// error from fn leaves the entity untouched.
func (c *Cache[K, E]) Update(id K, fn func(E) (E, error)) (next E, found bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return next, false, nil
	}
	next, err = fn(c.items[i])
	if err != nil {
		var zero E
		return zero, true, err
	}
	c.items[i] = next
	return next, true, nil
}

// Replace swaps the entity keyed oldID for e at the same position. When oldID
// is absent e is upserted. If e's key already exists elsewhere, that copy is
// dropped so keys stay unique.
func (c *Cache[K, E]) Replace(oldID K, e E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[oldID]
	if !ok {
		if j, exists := c.index[e.Key()]; exists {
			c.items[j] = e
			return
		}
		c.index[e.Key()] = len(c.items)
		c.items = append(c.items, e)
		return
	}
	if j, exists := c.index[e.Key()]; exists && j != i {
		c.items = append(c.items[:j], c.items[j+1:]...)
		if j < i {
			i--
		}
	}
	c.items[i] = e
	c.reindex()
}

// InsertAt places e at position i (clamped to the list bounds), removing any
// existing entity with the same key first.
func (c *Cache[K, E]) InsertAt(i int, e E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.index[e.Key()]; ok {
		c.items = append(c.items[:j], c.items[j+1:]...)
	}
	if i < 0 {
		i = 0
	}
	if i > len(c.items) {
		i = len(c.items)
	}
	c.items = append(c.items, e)
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = e
	c.reindex()
}

// Remove deletes the entity with the given id and returns it with its former
// position.
func (c *Cache[K, E]) Remove(id K) (E, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		var zero E
		return zero, -1, false
	}
	e := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reindex()
	return e, i, true
}

// RemoveFunc deletes every entity matching fn and returns them.
func (c *Cache[K, E]) RemoveFunc(fn func(E) bool) []E {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []E
	kept := c.items[:0]
	for _, e := range c.items {
		if fn(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	c.items = kept
	c.reindex()
	return removed
}

// List returns a copy of the entities in order.
func (c *Cache[K, E]) List() []E {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]E, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of entities.
func (c *Cache[K, E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Reset replaces the whole content, e.g. after a fetch.
func (c *Cache[K, E]) Reset(items []E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]E, 0, len(items))
	c.index = make(map[K]int, len(items))
	for _, e := range items {
		if i, ok := c.index[e.Key()]; ok {
			c.items[i] = e
			continue
		}
		c.index[e.Key()] = len(c.items)
		c.items = append(c.items, e)
	}
}

// Rearrange rewrites the whole list through fn under the write lock. fn
// receives a copy and must return a list with unique keys.
func (c *Cache[K, E]) Rearrange(fn func([]E) []E) []E {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := make([]E, len(c.items))
	copy(cur, c.items)
	c.items = fn(cur)
	c.reindex()
	out := make([]E, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cache[K, E]) reindex() {
	c.index = make(map[K]int, len(c.items))
	for i, e := range c.items {
		c.index[e.Key()] = i
	}
}
