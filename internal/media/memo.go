// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package media

import "sync"

// Resolved is the outcome of resolving one source URL.
type Resolved struct {
	AttachmentID int64
	URL          string
}

type memoEntry struct {
	key   string
	value Resolved
	prev  *memoEntry
	next  *memoEntry
}

// memoCache is a bounded LRU of resolved URLs. It is owned by one Handler
// and reset at the start of every run.
type memoCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memoEntry
	head     *memoEntry
	tail     *memoEntry

	hits   int64
	misses int64
}

func newMemoCache(capacity int) *memoCache {
	if capacity <= 0 {
		capacity = 10000
	}
	c := &memoCache{capacity: capacity}
	c.init()
	return c
}

func (c *memoCache) init() {
	c.items = make(map[string]*memoEntry)
	c.head = &memoEntry{}
	c.tail = &memoEntry{}
	c.head.next = c.tail
	c.tail.prev = c.head
}

func (c *memoCache) get(key string) (Resolved, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.moveToFront(e)
		c.hits++
		return e.value, true
	}
	c.misses++
	return Resolved{}, false
}

func (c *memoCache) add(key string, v Resolved) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = v
		c.moveToFront(e)
		return
	}
	e := &memoEntry{key: key, value: v}
	c.addToFront(e)
	c.items[key] = e
	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

func (c *memoCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	c.hits, c.misses = 0, 0
}

func (c *memoCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *memoCache) stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *memoCache) addToFront(e *memoEntry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *memoCache) unlink(e *memoEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *memoCache) moveToFront(e *memoEntry) {
	c.unlink(e)
	c.addToFront(e)
}

func (c *memoCache) evictOldest() {
	if oldest := c.tail.prev; oldest != c.head {
		c.unlink(oldest)
		delete(c.items, oldest.key)
	}
}
