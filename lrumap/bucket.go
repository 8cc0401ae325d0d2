package lrumap

import "sync"

// bucket is one hash chain with its own lock. Lookups share the lock,
// link/unlink take it exclusively.
type bucket[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	head *elem[K, V]
}

// -------------------- internals (mu held) --------------------

// find returns the linked element for k, or nil.
func (b *bucket[K, V]) find(k K, hash uint32) *elem[K, V] {
	for e := b.head; e != nil; e = e.next {
		if e.node.Hash() == hash && e.key == k {
			return e
		}
	}
	return nil
}

// link inserts e at the head of the chain in O(1).
func (b *bucket[K, V]) link(e *elem[K, V]) {
	e.prev = nil
	e.next = b.head
	if b.head != nil {
		b.head.prev = e
	}
	b.head = e
	e.linked = true
}

// unlink removes e from the chain in O(1).
func (b *bucket[K, V]) unlink(e *elem[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		b.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	e.prev, e.next = nil, nil
	e.linked = false
}

// appendTo copies the chain's entries.
func (b *bucket[K, V]) appendTo(keys []K, vals []V) ([]K, []V) {
	for e := b.head; e != nil; e = e.next {
		keys = append(keys, e.key)
		vals = append(vals, e.val)
	}
	return keys, vals
}
