package lrulist

// ListCounts is a snapshot of how many nodes sit on each list of one
// lruList or localList.
type ListCounts struct {
	Active       int
	Inactive     int
	Free         int
	LocalFree    int
	LocalPending int
}

// Total sums all lists.
func (c ListCounts) Total() int {
	return c.Active + c.Inactive + c.Free + c.LocalFree + c.LocalPending
}

// Counts is a consistent snapshot of the whole LRU.
type Counts struct {
	// Global is the common list. Empty in per-CPU mode.
	Global ListCounts
	// CPU holds the local lists in common mode and the per-CPU lists in
	// per-CPU mode, indexed by cpu.
	CPU []ListCounts
}

// Total sums every list; it always equals Len().
func (c Counts) Total() int {
	t := c.Global.Total()
	for _, cc := range c.CPU {
		t += cc.Total()
	}
	return t
}

// Counts takes every lock, in CPU order and the global one last, and walks
// all lists. It is O(Len()) and meant for tests and diagnostics.
func (lru *LRU) Counts() Counts {
	if lru.perCPU {
		return lru.percpuCounts()
	}

	for i := range lru.locals {
		lru.locals[i].mu.Lock()
	}
	lru.global.mu.Lock()

	c := Counts{CPU: make([]ListCounts, len(lru.locals))}
	c.Global = lru.global.snapshot()
	for i := range lru.locals {
		loc := &lru.locals[i]
		c.CPU[i] = ListCounts{
			LocalFree:    listLen(&loc.free),
			LocalPending: listLen(&loc.pending),
		}
	}

	lru.global.mu.Unlock()
	for i := len(lru.locals) - 1; i >= 0; i-- {
		lru.locals[i].mu.Unlock()
	}
	return c
}

func (lru *LRU) percpuCounts() Counts {
	c := Counts{CPU: make([]ListCounts, len(lru.percpu))}
	for i := range lru.percpu {
		l := &lru.percpu[i]
		l.mu.Lock()
		c.CPU[i] = l.snapshot()
		l.mu.Unlock()
	}
	return c
}

// snapshot walks the lists; l.mu is held.
func (l *lruList) snapshot() ListCounts {
	c := ListCounts{
		Active:   listLen(l.head(Active)),
		Inactive: listLen(l.head(Inactive)),
		Free:     listLen(l.head(Free)),
	}
	assert(c.Active == l.counts[Active], "lrulist: active count drift")
	assert(c.Inactive == l.counts[Inactive], "lrulist: inactive count drift")
	return c
}
