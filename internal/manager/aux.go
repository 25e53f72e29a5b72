package manager

import (
	"io"
	"reflect"
	"sync"

	"github.com/emirpasic/gods/v2/maps/linkedhashmap"
)

// AuxCache holds auxiliary models (noise parameterisations, VAEs, control
// models) that several model instances can share. It is owned by the
// Manager and handed to backends on load. The least recently used entry is
// dropped when the cache is full; values implementing io.Closer are closed
// when dropped.
type AuxCache struct {
	mu  sync.Mutex
	max int
	// entries iterate from least to most recently used.
	entries *linkedhashmap.Map[string, any]
}

// NewAuxCache returns a cache holding at most max entries.
func NewAuxCache(max int) *AuxCache {
	if max < 1 {
		max = 1
	}
	return &AuxCache{max: max, entries: linkedhashmap.New[string, any]()}
}

func (c *AuxCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	c.touchLocked(key, v)
	return v, true
}

func (c *AuxCache) Put(key string, v any) {
	c.mu.Lock()
	var dropped []any
	if old, ok := c.entries.Get(key); ok {
		if !sameValue(old, v) {
			dropped = append(dropped, old)
		}
		c.touchLocked(key, v)
	} else {
		c.entries.Put(key, v)
		for c.entries.Size() > c.max {
			dropped = append(dropped, c.removeLocked(c.entries.Keys()[0]))
		}
	}
	c.mu.Unlock()
	closeAll(dropped)
}

// GetOrLoad returns the cached value for key, calling load on a miss. Load
// runs without the lock held, so concurrent misses may both load; the later
// Put wins and the earlier value is closed.
func (c *AuxCache) GetOrLoad(key string, load func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	c.Put(key, v)
	return v, nil
}

func (c *AuxCache) Remove(key string) {
	c.mu.Lock()
	_, ok := c.entries.Get(key)
	var v any
	if ok {
		v = c.removeLocked(key)
	}
	c.mu.Unlock()
	if ok {
		closeAll([]any{v})
	}
}

func (c *AuxCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Size()
}

// Purge drops every entry.
func (c *AuxCache) Purge() {
	c.mu.Lock()
	dropped := c.entries.Values()
	c.entries.Clear()
	c.mu.Unlock()
	closeAll(dropped)
}

// touchLocked moves key to the most recently used end.
func (c *AuxCache) touchLocked(key string, v any) {
	c.entries.Remove(key)
	c.entries.Put(key, v)
}

func (c *AuxCache) removeLocked(key string) any {
	v, _ := c.entries.Get(key)
	c.entries.Remove(key)
	return v
}

func sameValue(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta != nil && ta.Comparable() && a == b
}

func closeAll(vs []any) {
	for _, v := range vs {
		if cl, ok := v.(io.Closer); ok {
			_ = cl.Close()
		}
	}
}
