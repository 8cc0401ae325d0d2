package lrulist

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/IvanBrykalov/lrulist/internal/util"
)

// LRU is an approximate, per-CPU sharded least-recently-used list of a fixed
// number of nodes. It hands out free nodes with PopFree and takes them back
// with PushFree; when nothing is free it asks the owner, through the Delete
// callback, to give up old entries.
//
// All methods except Populate and Destroy are safe for concurrent use.
// No method blocks other than on the internal mutexes, and every walk is
// bounded by the scan limit.
type LRU struct {
	global lruList      // common mode
	locals []localList  // common mode, one per CPU
	percpu []lruList    // per-CPU mode, one per CPU
	nodes  []Node

	del        DeleteFunc
	cpus       int
	perCPU     bool
	scanLimit  int
	freeTarget int

	metrics Metrics
	log     *slog.Logger
	warned  [BadMove + 1]atomic.Bool
}

// New constructs an LRU with the provided Options.
// Nodes are added separately with Populate.
func New(opt Options) (*LRU, error) {
	if opt.Delete == nil {
		return nil, ErrNoDelete
	}
	if opt.CPUs <= 0 {
		opt.CPUs = util.PossibleCPUs()
	}
	if opt.ScanLimit <= 0 {
		opt.ScanLimit = LocalScanLimit
		if opt.PerCPU {
			opt.ScanLimit = PerCPUScanLimit
		}
	}
	if opt.FreeTarget <= 0 {
		opt.FreeTarget = LocalFreeTarget
		if opt.PerCPU {
			opt.FreeTarget = PerCPUFreeTarget
		}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}

	lru := &LRU{
		del:        opt.Delete,
		cpus:       opt.CPUs,
		perCPU:     opt.PerCPU,
		scanLimit:  opt.ScanLimit,
		freeTarget: opt.FreeTarget,
		metrics:    opt.Metrics,
		log:        opt.Logger,
	}
	if opt.PerCPU {
		lru.percpu = make([]lruList, opt.CPUs)
		for i := range lru.percpu {
			lru.percpu[i].init()
		}
	} else {
		lru.locals = make([]localList, opt.CPUs)
		for i := range lru.locals {
			lru.locals[i].init(i)
		}
		lru.global.init()
	}
	return lru, nil
}

// Destroy releases the per-CPU lists. The LRU must not be used afterwards.
func (lru *LRU) Destroy() {
	lru.locals = nil
	lru.percpu = nil
}

// Populate creates n nodes, all free. It must be called exactly once,
// before the LRU is shared.
func (lru *LRU) Populate(n int) error {
	if lru.nodes != nil {
		return ErrPopulated
	}
	want := 1
	if lru.perCPU {
		want = lru.cpus
	}
	if n < want {
		return sizeError(n, want)
	}
	if uint64(n) > math.MaxUint32 {
		return sizeError(n, want)
	}

	lru.nodes = make([]Node, n)
	for i := range lru.nodes {
		lru.nodes[i].id = uint32(i)
	}
	if lru.perCPU {
		lru.percpuPopulate()
		return nil
	}

	free := lru.global.head(Free)
	for i := range lru.nodes {
		node := &lru.nodes[i]
		node.setType(Free)
		node.clearRef()
		listAdd(node, free)
	}
	lru.log.Debug("lrulist: populated", "nodes", n, "cpus", lru.cpus)
	return nil
}

// PopFree acquires a node for a new entry with the given hash on behalf of
// cpu, which must be in [0, CPUs()). The node comes back pending on cpu's
// local list. A nil result means every node is in use and none could be
// reclaimed: the cache is full.
func (lru *LRU) PopFree(cpu int, hash uint32) *Node {
	if lru.perCPU {
		return lru.percpuPopFree(cpu, hash)
	}

	loc := &lru.locals[cpu]
	loc.mu.Lock()
	src := SourceLocal
	n := loc.popFree()
	if n == nil {
		lru.popFreeToLocal(loc)
		n = loc.popFree()
		src = SourceRefill
	}
	if n != nil {
		loc.addPending(n, cpu, hash)
	}
	loc.mu.Unlock()

	if n != nil {
		lru.metrics.Acquire(src)
		return n
	}

	// Nothing local and nothing global: steal from the local lists,
	// round-robin from where the last round stopped.
	first := int(loc.nextSteal.Load())
	steal := first
	for {
		victim := &lru.locals[steal]
		victim.mu.Lock()
		n = victim.popFree()
		if n == nil {
			n = lru.popPending(victim)
		}
		victim.mu.Unlock()

		steal = util.NextCPU(steal, lru.cpus)
		if n != nil || steal == first {
			break
		}
	}
	loc.nextSteal.Store(int32(steal))

	if n == nil {
		lru.metrics.Acquire(SourceNone)
		return nil
	}

	loc.mu.Lock()
	loc.addPending(n, cpu, hash)
	loc.mu.Unlock()
	lru.metrics.Acquire(SourceSteal)
	return n
}

// PushFree gives n back once its entry is gone. Pushing a node that is
// already free is reported as a violation and ignored.
func (lru *LRU) PushFree(n *Node) {
	if lru.perCPU {
		lru.percpuPushFree(n)
		return
	}

	t := n.Type()
	if t.isFree() {
		lru.violation(DoubleFree, n)
		return
	}

	if t == LocalPending {
		cpu := n.CPU()
		loc := &lru.locals[cpu]
		loc.mu.Lock()
		if n.Type() == LocalPending && n.CPU() == cpu {
			n.setType(LocalFree)
			n.clearRef()
			listMove(n, &loc.free)
			loc.mu.Unlock()
			return
		}
		// Lost a race: the node was flushed to the global list meanwhile.
		loc.mu.Unlock()
	}

	lru.pushFree(&lru.global, n)
}

// Node returns the node with the given id.
func (lru *LRU) Node(id uint32) *Node { return &lru.nodes[id] }

// Len returns the number of populated nodes.
func (lru *LRU) Len() int { return len(lru.nodes) }

// CPUs returns the number of per-CPU lists.
func (lru *LRU) CPUs() int { return lru.cpus }

// PerCPU reports whether the LRU runs in per-CPU mode.
func (lru *LRU) PerCPU() bool { return lru.perCPU }

func (lru *LRU) violation(v Violation, n *Node) {
	lru.metrics.Violation(v)
	if lru.warned[v].CompareAndSwap(false, true) {
		lru.log.Warn("lrulist: invariant violation",
			"kind", v.String(), "node", n.ID(), "type", n.Type().String())
	}
	assert(false, "lrulist: "+v.String())
}
