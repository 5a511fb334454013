// Package event implements the callback container (spec.md C9): a typed,
// id-addressable function registry used to wire every application-visible
// event in the core (read, write, connect, close, accept, cluster, ...).
//
// Grounded on original_source/include/sys/callback.hpp: addressable by
// string name or by an opaque 64-bit id, with an observer notified on every
// SET/DEL/RUN transition — used by the teacher to auto-start machinery on
// first subscription.
package event

import (
	"hash/fnv"
	"sync"
)

// Action is the kind of transition an Observer is notified about.
type Action uint8

const (
	ActionNone Action = iota
	ActionSet
	ActionDel
	ActionRun
)

// Observer is called for every SET/DEL/RUN transition on the container.
type Observer func(id uint64, name string, a Action)

// ID hashes a name into the opaque 64-bit id space used by Set/Get/Erase when
// callers prefer not to carry the string around. Short names (<=8 bytes) are
// packed verbatim, matching the source's raw-bytes fast path; longer names
// fall back to FNV-1a, cheap and dependency-free like the teacher's own
// cityhash use for an opaque, not cryptographic, identifier.
func ID(name string) uint64 {
	if len(name) <= 8 {
		var id uint64
		for i := 0; i < len(name); i++ {
			id |= uint64(name[i]) << (8 * uint(i))
		}
		return id
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// Container is a thread-safe name/id -> function registry. Re-entrant from
// within a callback: Call never holds the lock while invoking the stored
// function.
type Container struct {
	mu  sync.RWMutex
	fn  map[uint64]interface{}
	nm  map[uint64]string
	obs Observer
}

// New returns an empty Container.
func New() *Container {
	return &Container{
		fn: make(map[uint64]interface{}),
		nm: make(map[uint64]string),
	}
}

// OnObserve installs the single optional observer closure, fired for every
// subsequent SET/DEL/RUN. Passing nil removes the observer.
func (c *Container) OnObserve(o Observer) {
	c.mu.Lock()
	c.obs = o
	c.mu.Unlock()
}

// Set stores fn under name, overwriting any previous binding.
func (c *Container) Set(name string, fn interface{}) {
	id := ID(name)
	c.mu.Lock()
	c.fn[id] = fn
	c.nm[id] = name
	obs := c.obs
	c.mu.Unlock()

	if obs != nil {
		obs(id, name, ActionSet)
	}
}

// Get returns the function bound to name, or (nil, false).
func (c *Container) Get(name string) (interface{}, bool) {
	id := ID(name)
	c.mu.RLock()
	fn, ok := c.fn[id]
	c.mu.RUnlock()
	return fn, ok
}

// GetByID returns the function bound to a raw 64-bit id.
func (c *Container) GetByID(id uint64) (interface{}, bool) {
	c.mu.RLock()
	fn, ok := c.fn[id]
	c.mu.RUnlock()
	return fn, ok
}

// Erase removes the binding for name, returning whether one existed.
func (c *Container) Erase(name string) bool {
	id := ID(name)
	c.mu.Lock()
	_, ok := c.fn[id]
	delete(c.fn, id)
	delete(c.nm, id)
	obs := c.obs
	c.mu.Unlock()

	if ok && obs != nil {
		obs(id, name, ActionDel)
	}
	return ok
}

// Swap atomically replaces the binding for name and returns the previous one.
func (c *Container) Swap(name string, fn interface{}) (prev interface{}, existed bool) {
	id := ID(name)
	c.mu.Lock()
	prev, existed = c.fn[id]
	c.fn[id] = fn
	c.nm[id] = name
	obs := c.obs
	c.mu.Unlock()

	if obs != nil {
		obs(id, name, ActionSet)
	}
	return prev, existed
}

// notifyRun fires the observer for a RUN transition without holding the lock.
func (c *Container) notifyRun(name string) {
	c.mu.RLock()
	obs := c.obs
	id := ID(name)
	c.mu.RUnlock()
	if obs != nil {
		obs(id, name, ActionRun)
	}
}

// Len returns the number of bound callbacks.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fn)
}
