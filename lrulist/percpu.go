package lrulist

// Per-CPU mode: every CPU owns a complete Active/Inactive/Free list and
// never looks at another CPU's. A CPU whose list is exhausted fails its
// allocation even if other CPUs have room.

func (lru *LRU) percpuPopulate() {
	per := len(lru.nodes) / lru.cpus
	cpu := 0
	for i := range lru.nodes {
		// the remainder goes to the last CPU
		if i > 0 && i%per == 0 && cpu < lru.cpus-1 {
			cpu++
		}
		n := &lru.nodes[i]
		n.cpu.Store(int32(cpu))
		n.setType(Free)
		n.clearRef()
		listAdd(n, lru.percpu[cpu].head(Free))
	}
	lru.log.Debug("lrulist: populated per-cpu", "nodes", len(lru.nodes), "cpus", lru.cpus)
}

func (lru *LRU) percpuPopFree(cpu int, hash uint32) *Node {
	l := &lru.percpu[cpu]
	l.mu.Lock()
	defer l.mu.Unlock()

	lru.rotate(l)

	free := l.head(Free)
	src := SourceLocal
	if listEmpty(free) {
		lru.shrink(l, lru.freeTarget, free, Free)
		src = SourceRefill
	}

	n := listFirst(free)
	if n == nil {
		lru.metrics.Acquire(SourceNone)
		return nil
	}
	n.hash = hash
	n.clearRef()
	lru.move(l, n, Inactive)
	lru.metrics.Acquire(src)
	return n
}

func (lru *LRU) percpuPushFree(n *Node) {
	l := &lru.percpu[n.CPU()]
	l.mu.Lock()
	defer l.mu.Unlock()
	if n.Type() == Free {
		lru.violation(DoubleFree, n)
		return
	}
	lru.move(l, n, Free)
}
