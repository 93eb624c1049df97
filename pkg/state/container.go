package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Container holds the current value of a process-wide state. Set replaces the
// value atomically and then notifies subscribers in subscription order.
// Publishes are serialized, so the last notification a subscriber sees always
// carries the current value. Subscribers must not call Set or Subscribe.
type Container[T any] struct {
	publish     sync.Mutex
	mu          sync.RWMutex
	value       T
	meta        Meta
	subscribers []subscription[T]
	nextID      int
}

type subscription[T any] struct {
	id int
	fn func(T, Meta)
}

// NewContainer creates a container holding initial.
func NewContainer[T any](initial T) *Container[T] {
	return &Container[T]{
		value: initial,
		meta:  containerMeta(initial, ""),
	}
}

// Get returns the current value.
func (c *Container[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Snapshot returns the current value and its metadata.
func (c *Container[T]) Snapshot() (T, Meta) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, cloneMeta(c.meta)
}

// Set replaces the current value. format records how the value arrived and may
// be empty.
func (c *Container[T]) Set(value T, format string) Meta {
	meta := containerMeta(value, format)

	c.publish.Lock()
	defer c.publish.Unlock()

	c.mu.Lock()
	c.value = value
	c.meta = meta
	subscribers := append([]subscription[T](nil), c.subscribers...)
	c.mu.Unlock()

	for _, sub := range subscribers {
		sub.fn(value, cloneMeta(meta))
	}
	return cloneMeta(meta)
}

// Subscribe calls fn with the current value right away and again after every
// Set. The returned function cancels the subscription.
func (c *Container[T]) Subscribe(fn func(T, Meta)) func() {
	if fn == nil {
		return func() {}
	}

	c.publish.Lock()
	defer c.publish.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers = append(c.subscribers, subscription[T]{id: id, fn: fn})
	value, meta := c.value, cloneMeta(c.meta)
	c.mu.Unlock()

	fn(value, meta)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, sub := range c.subscribers {
				if sub.id == id {
					c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers reports how many subscriptions are active.
func (c *Container[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

func containerMeta[T any](value T, format string) Meta {
	etag, _ := ETag(value)
	return Meta{
		SnapshotID: uuid.NewString(),
		ETag:       etag,
		Format:     format,
		UpdatedAt:  time.Now().UTC(),
	}
}
