// Package tilecache implements the process-wide store for decoded
// tiles: a cost-weighted LRU map whose entries may veto their own
// eviction while a background decode or the renderer still needs them.
package tilecache

import (
	"container/list"

	"github.com/skyatlas/hipscache/internal/observability"
)

// Key identifies a tile across all surveys sharing the cache.
type Key struct {
	SurveyHash uint32
	Order      int32
	Pix        int32
}

// EvictDecision is returned by a DeleteFunc during an eviction sweep.
type EvictDecision int

const (
	// Drop allows the entry to be removed.
	Drop EvictDecision = iota
	// Keep vetoes the eviction; the sweep moves to the next candidate.
	Keep
)

// DeleteFunc is consulted before an entry is evicted and is responsible
// for releasing the value's resources when it returns Drop.
type DeleteFunc func(value any) EvictDecision

type entry struct {
	key   Key
	value any
	cost  int64
	del   DeleteFunc
}

// Cache is a bounded associative store with LRU eviction order. It is
// not safe for concurrent use; the render goroutine owns it.
//
// The total cost may exceed the budget when every resident entry
// vetoes. That is accepted: under pathological frame demand the
// working set simply does not fit, and evicting it anyway would be
// worse.
type Cache struct {
	budget int64
	cost   int64
	ll     *list.List
	items  map[Key]*list.Element
}

// New creates a cache bounded by budget bytes.
func New(budget int64) *Cache {
	return &Cache{
		budget: budget,
		ll:     list.New(),
		items:  make(map[Key]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache) Get(key Key) (any, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Add inserts value under key. If an entry already exists its delete
// hook is consulted: a veto keeps the resident entry and discards the
// insert, otherwise the old value is dropped and replaced. Either way
// the key-uniqueness invariant holds. After insertion the cache evicts
// LRU entries until it fits the budget or every remaining entry vetoes.
func (c *Cache) Add(key Key, value any, cost int64, del DeleteFunc) {
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		if e.del != nil && e.del(e.value) == Keep {
			return
		}
		c.cost -= e.cost
		c.ll.Remove(el)
		delete(c.items, e.key)
	}
	el := c.ll.PushFront(&entry{key: key, value: value, cost: cost, del: del})
	c.items[key] = el
	c.cost += cost
	c.evict()
}

// SetCost adjusts the cost of an existing entry, used when a decode
// completes and the true payload size is known.
func (c *Cache) SetCost(key Key, cost int64) {
	el, ok := c.items[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	c.cost += cost - e.cost
	e.cost = cost
	c.evict()
}

// Cost returns the current total cost.
func (c *Cache) Cost() int64 { return c.cost }

// Len returns the number of resident entries.
func (c *Cache) Len() int { return c.ll.Len() }

func (c *Cache) evict() {
	el := c.ll.Back()
	for c.cost > c.budget && el != nil {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.del != nil && e.del(e.value) == Keep {
			observability.IncEvictionVeto()
			el = prev
			continue
		}
		c.cost -= e.cost
		c.ll.Remove(el)
		delete(c.items, e.key)
		observability.IncEviction()
		el = prev
	}
	observability.SetCacheCost(c.cost)
}
