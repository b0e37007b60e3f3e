// Package viewcache keeps lazily loaded view data per entity with an explicit
// fetch lifecycle: unfetched, loading, loaded or failed.
//
// Concurrent loads of the same key share one fetch. The fetch runs on a
// context detached from the caller, so a caller that goes away does not
// abort or corrupt the shared result. Failures stay recorded until Retry.
package viewcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/tsarena/pkg/metrics"
)

// State is the lifecycle phase of an entry.
type State int

// Entry states.
const (
	Unfetched State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unfetched"
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Default limits.
const (
	DefaultSize = 512
	DefaultTTL  = 5 * time.Minute
)

// FetchFunc loads the value of one key.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	key      string
	state    State
	value    V
	err      error
	loadedAt time.Time
	elem     *list.Element
}

// Cache holds entries of type V keyed by entity id.
type Cache[V any] struct {
	mu      sync.Mutex
	name    string
	size    int
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*entry[V]
	order   *list.List
	group   singleflight.Group
}

// New creates a cache. name labels its metrics.
func New[V any](name string, opts ...Option) *Cache[V] {
	s := settings{size: DefaultSize, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return &Cache[V]{
		name:    name,
		size:    s.size,
		ttl:     s.ttl,
		now:     s.now,
		entries: make(map[string]*entry[V]),
		order:   list.New(),
	}
}

// State reports the phase of key.
func (c *Cache[V]) State(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.state
	}
	return Unfetched
}

// Len returns the number of entries held.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Retry forgets a failed entry so that the next Load fetches again.
// It reports whether key was in the failed state.
func (c *Cache[V]) Retry(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.state != Failed {
		return false
	}
	c.removeLocked(e)
	return true
}

// Load returns the value of key, fetching it at most once across concurrent callers.
// A failed entry returns its recorded error wrapped in ErrFetchFailed until Retry.
// If ctx ends first, Load returns ctx.Err() and the fetch continues for other callers.
func (c *Cache[V]) Load(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	var zero V

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		switch e.state {
		case Loaded:
			if c.ttl == 0 || c.now().Sub(e.loadedAt) < c.ttl {
				v := e.value
				c.mu.Unlock()
				metrics.RecordViewCacheEvent(c.name, "hit")
				return v, nil
			}
			metrics.RecordViewCacheEvent(c.name, "stale")
			e.state = Loading
		case Failed:
			err := e.err
			c.mu.Unlock()
			metrics.RecordViewCacheEvent(c.name, "failed")
			return zero, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		case Loading, Unfetched:
			e.state = Loading
		}
	} else {
		e = &entry[V]{key: key, state: Loading}
		e.elem = c.order.PushBack(e)
		c.entries[key] = e
		c.evictLocked()
		metrics.RecordViewCacheEvent(c.name, "miss")
	}
	c.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fetch(fetchCtx)
		c.store(key, v, err)
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Shared {
			metrics.RecordViewCacheEvent(c.name, "shared")
		}
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Val.(V)
		return v, nil
	}
}

func (c *Cache[V]) store(key string, v V, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		// Evicted or retried while loading.
		e = &entry[V]{key: key}
		e.elem = c.order.PushBack(e)
		c.entries[key] = e
	}
	if err != nil {
		var empty V
		e.state, e.value, e.err = Failed, empty, err
	} else {
		e.state, e.value, e.err = Loaded, v, nil
		e.loadedAt = c.now()
	}
	c.order.MoveToBack(e.elem)
	c.evictLocked()
	metrics.UpdateViewCacheEntries(c.name, len(c.entries))
}

// evictLocked drops the oldest settled entries beyond the size bound.
func (c *Cache[V]) evictLocked() {
	for el := c.order.Front(); el != nil && len(c.entries) > c.size; {
		next := el.Next()
		e := el.Value.(*entry[V])
		if e.state != Loading {
			c.removeLocked(e)
			metrics.RecordViewCacheEvent(c.name, "evict")
		}
		el = next
	}
}

func (c *Cache[V]) removeLocked(e *entry[V]) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}
