package node

import (
	"container/list"
	"fmt"
)

// IdempotencyChecker implements two-tier deduplication: an in-memory
// LRU in front of the persisted event log.
type IdempotencyChecker struct {
	lru       *idempotencyLRU
	dbChecker DBIdempotencyChecker
}

// DBIdempotencyChecker is the interface for the event-log dedup lookup.
type DBIdempotencyChecker interface {
	IsDuplicate(partyKey, identifier string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       newIdempotencyLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks whether an event has been processed, LRU first,
// then the event log. A DB error is treated as not-duplicate so a
// database hiccup cannot block event processing; the event log's
// ON CONFLICT insert still keeps the log itself consistent.
func (ic *IdempotencyChecker) IsDuplicate(partyKey, identifier string) bool {
	compositeKey := fmt.Sprintf("%s:%s", partyKey, identifier)

	if ic.lru.Contains(compositeKey) {
		return true
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(partyKey, identifier)
		if err != nil {
			return false
		}
		if isDup {
			ic.lru.Add(compositeKey)
			return true
		}
	}

	return false
}

// MarkProcessed adds a key to the LRU after successful processing.
func (ic *IdempotencyChecker) MarkProcessed(partyKey, identifier string) {
	ic.lru.Add(fmt.Sprintf("%s:%s", partyKey, identifier))
}

// Size returns the current LRU occupancy.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Size()
}

// --- LRU implementation ---

// idempotencyLRU is an LRU cache for idempotency keys. Not
// thread-safe; only accessed from the single-owner party loop.
type idempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func newIdempotencyLRU(capacity int) *idempotencyLRU {
	return &idempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists and promotes it to the front.
func (lru *idempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key, or promotes it if present.
func (lru *idempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *idempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

func (lru *idempotencyLRU) Size() int {
	return lru.lruList.Len()
}

func (lru *idempotencyLRU) Evictions() int64 {
	return lru.evictions
}
