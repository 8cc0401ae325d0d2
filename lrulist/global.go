package lrulist

import "sync"

// lruList is the Active/Inactive/Free triple. One instance is the common
// global list; in per-CPU mode every CPU owns one.
type lruList struct {
	mu     sync.Mutex
	lists  [nrListTypes]Node // sentinels, indexed by NodeType
	counts [nrCountedTypes]int

	// nextInactiveRotation is where the next inactive rotation resumes.
	// It may point at the Inactive sentinel.
	nextInactiveRotation *Node
}

func (l *lruList) init() {
	for i := range l.lists {
		initHead(&l.lists[i])
	}
	l.counts = [nrCountedTypes]int{}
	l.nextInactiveRotation = &l.lists[Inactive]
}

func (l *lruList) head(t NodeType) *Node { return &l.lists[t] }

func (l *lruList) countInc(t NodeType) {
	if t < nrCountedTypes {
		l.counts[t]++
	}
}

func (l *lruList) countDec(t NodeType) {
	if t < nrCountedTypes {
		l.counts[t]--
	}
}

func (l *lruList) inactiveLow() bool {
	return l.counts[Inactive] < l.counts[Active]
}

// -------------------- node moves (l.mu held) --------------------

// moveToFree takes a global node off its list and puts it on free, which is
// either this list's Free sentinel or a local free list.
func (lru *LRU) moveToFree(l *lruList, n, free *Node, tgt NodeType) {
	t := n.Type()
	if t.isLocal() {
		lru.violation(BadMove, n)
		return
	}
	if n == l.nextInactiveRotation {
		l.nextInactiveRotation = n.prev
	}
	l.countDec(t)
	n.setType(tgt)
	listMove(n, free)
}

// moveIn brings a node from a local list into the global one.
func (lru *LRU) moveIn(l *lruList, n *Node, tgt NodeType) {
	if !n.Type().isLocal() || tgt.isLocal() {
		lru.violation(BadMove, n)
		return
	}
	l.countInc(tgt)
	n.setType(tgt)
	n.clearRef()
	listMove(n, l.head(tgt))
}

// move moves a node between or within Active, Inactive and Free.
func (lru *LRU) move(l *lruList, n *Node, tgt NodeType) {
	t := n.Type()
	if t.isLocal() || tgt.isLocal() {
		lru.violation(BadMove, n)
		return
	}
	if t != tgt {
		l.countDec(t)
		l.countInc(tgt)
		n.setType(tgt)
	}
	n.clearRef()
	if n == l.nextInactiveRotation {
		l.nextInactiveRotation = n.prev
	}
	listMove(n, l.head(tgt))
}

// -------------------- aging --------------------

// rotateActive walks Active from the tail. Referenced nodes go back to the
// head of Active with the bit cleared, the others to the head of Inactive.
// It stops after scanLimit nodes or once the first node has been seen.
func (lru *LRU) rotateActive(l *lruList) {
	active := l.head(Active)
	first := active.next
	i := 0
	for n := active.prev; n != active; {
		prev := n.prev
		if n.Referenced() {
			lru.move(l, n, Active)
		} else {
			lru.move(l, n, Inactive)
		}
		i++
		if i == lru.scanLimit || n == first {
			break
		}
		n = prev
	}
}

// rotateInactive resumes at nextInactiveRotation and walks towards the head,
// wrapping around once. Referenced nodes are promoted to Active; the rest
// stay where they are for the next shrink.
func (lru *LRU) rotateInactive(l *lruList) {
	inactive := l.head(Inactive)
	if listEmpty(inactive) {
		return
	}

	last := l.nextInactiveRotation.next
	if last == inactive {
		last = last.next
	}

	cur := l.nextInactiveRotation
	next := inactive
	for i := 0; i < lru.scanLimit; {
		if cur == inactive {
			cur = cur.prev
			continue
		}

		next = cur.prev
		if cur.Referenced() {
			lru.move(l, cur, Active)
		}
		if cur == last {
			break
		}
		cur = next
		i++
	}

	l.nextInactiveRotation = next
}

// rotate refills Inactive from Active when it runs low, then always ages
// Inactive.
func (lru *LRU) rotate(l *lruList) {
	if l.inactiveLow() {
		lru.rotateActive(l)
	}
	lru.rotateInactive(l)
}

// -------------------- eviction --------------------

// shrinkInactive walks Inactive from the tail and moves unreferenced nodes
// the owner agrees to drop onto free. Referenced nodes get promoted.
func (lru *LRU) shrinkInactive(l *lruList, target int, free *Node, tgt NodeType) int {
	inactive := l.head(Inactive)
	shrunk, i := 0, 0
	for n := inactive.prev; n != inactive; {
		prev := n.prev
		if n.Referenced() {
			lru.move(l, n, Active)
		} else if lru.del(n) {
			lru.moveToFree(l, n, free, tgt)
			lru.metrics.Evict(EvictShrink)
			if shrunk++; shrunk == target {
				break
			}
		}
		if i++; i == lru.scanLimit {
			break
		}
		n = prev
	}
	return shrunk
}

// shrink evicts up to target nodes onto free. When the inactive pass frees
// nothing it drops the oldest removable node regardless of its ref bit,
// preferring Inactive over Active.
func (lru *LRU) shrink(l *lruList, target int, free *Node, tgt NodeType) int {
	if n := lru.shrinkInactive(l, target, free, tgt); n > 0 {
		return n
	}

	force := l.head(Inactive)
	if listEmpty(force) {
		force = l.head(Active)
	}
	for n := force.prev; n != force; n = n.prev {
		if lru.del(n) {
			lru.moveToFree(l, n, free, tgt)
			lru.metrics.Evict(EvictForce)
			return 1
		}
	}
	return 0
}

// -------------------- local <-> global --------------------

// flushLocal hands loc's pending nodes over to l, oldest first.
// Both locks are held.
func (lru *LRU) flushLocal(l *lruList, loc *localList) {
	pending := &loc.pending
	for n := pending.prev; n != pending; {
		prev := n.prev
		if n.Referenced() {
			lru.moveIn(l, n, Active)
		} else {
			lru.moveIn(l, n, Inactive)
		}
		n = prev
	}
}

// popFreeToLocal refills loc's free list from the global list: flush, age,
// take what is already free, then shrink for the remainder. loc.mu is held.
func (lru *LRU) popFreeToLocal(loc *localList) {
	l := &lru.global
	l.mu.Lock()
	defer l.mu.Unlock()

	lru.flushLocal(l, loc)
	lru.rotate(l)

	free := l.head(Free)
	nfree := 0
	for n := free.next; n != free && nfree < lru.freeTarget; {
		next := n.next
		lru.moveToFree(l, n, &loc.free, LocalFree)
		nfree++
		n = next
	}

	if nfree < lru.freeTarget {
		lru.shrink(l, lru.freeTarget-nfree, &loc.free, LocalFree)
	}
}

// pushFree returns an Active/Inactive node to l's Free list.
func (lru *LRU) pushFree(l *lruList, n *Node) {
	if n.Type().isLocal() {
		lru.violation(BadMove, n)
		return
	}
	l.mu.Lock()
	lru.move(l, n, Free)
	l.mu.Unlock()
}
