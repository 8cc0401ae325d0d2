package lrulist

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/lrulist/internal/util"
)

// localList is the per-CPU staging area in front of the global list.
// It is owned by one CPU for allocation, but any CPU may lock it to steal.
type localList struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	free    Node // sentinel of LocalFree
	pending Node // sentinel of LocalPending

	// nextSteal is the first victim of the next steal round. Only a hint;
	// a stale value just starts the round elsewhere.
	nextSteal atomic.Int32

	// keep neighbouring CPUs' locks off this cache line
	_ util.CacheLinePad
}

func (loc *localList) init(cpu int) {
	initHead(&loc.free)
	initHead(&loc.pending)
	loc.nextSteal.Store(int32(cpu))
}

// popFree detaches the head of the free list, or returns nil.
func (loc *localList) popFree() *Node {
	n := listFirst(&loc.free)
	if n != nil {
		listDel(n)
	}
	return n
}

// addPending stamps n for its new owner and queues it as pending.
func (loc *localList) addPending(n *Node, cpu int, hash uint32) {
	n.hash = hash
	n.cpu.Store(int32(cpu))
	n.setType(LocalPending)
	n.clearRef()
	listAdd(n, &loc.pending)
}

// popPending steals the oldest pending node whose entry the owner lets go.
// The first pass skips referenced nodes, the second one ignores the bit.
// The returned node is on no list.
func (lru *LRU) popPending(loc *localList) *Node {
	pending := &loc.pending
	for _, force := range [...]bool{false, true} {
		for n := pending.prev; n != pending; n = n.prev {
			if (force || !n.Referenced()) && lru.del(n) {
				listDel(n)
				n.setType(LocalFree)
				lru.metrics.Evict(EvictSteal)
				return n
			}
		}
	}
	return nil
}
