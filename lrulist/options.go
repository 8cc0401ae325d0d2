package lrulist

import "log/slog"

const (
	// LocalFreeTarget is how many free nodes a local list pulls from the
	// global list in one go.
	LocalFreeTarget = 128
	// LocalScanLimit bounds every rotation/shrink walk of the common LRU.
	LocalScanLimit = LocalFreeTarget

	// PerCPUFreeTarget is how many nodes a per-CPU list shrinks at once.
	PerCPUFreeTarget = 4
	// PerCPUScanLimit bounds every walk in per-CPU mode.
	PerCPUScanLimit = PerCPUFreeTarget
)

// Source tells where PopFree found a node.
type Source int

const (
	// SourceLocal is the caller's own local free list.
	SourceLocal Source = iota
	// SourceRefill means the free list had to be refilled first, from the
	// global list or by shrinking the per-CPU list in per-CPU mode.
	SourceRefill
	// SourceSteal means the node was taken from some CPU's local lists.
	SourceSteal
	// SourceNone means nothing was free or removable anywhere.
	SourceNone
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRefill:
		return "refill"
	case SourceSteal:
		return "steal"
	default:
		return "none"
	}
}

// EvictReason explains why a node was taken away from its owner.
type EvictReason int

const (
	// EvictShrink is an unreferenced inactive node removed by shrink.
	EvictShrink EvictReason = iota
	// EvictForce means shrink found nothing and ignored the ref bit.
	EvictForce
	// EvictSteal is a pending node taken from a local list.
	EvictSteal
)

func (r EvictReason) String() string {
	switch r {
	case EvictForce:
		return "force"
	case EvictSteal:
		return "steal"
	default:
		return "shrink"
	}
}

// Violation is a detected programming error. The offending operation is
// skipped instead of corrupting the lists.
type Violation int

const (
	// DoubleFree is PushFree on a node that is already free.
	DoubleFree Violation = iota
	// BadMove is a node asked to move from or to the wrong kind of list.
	BadMove
)

func (v Violation) String() string {
	if v == DoubleFree {
		return "double_free"
	}
	return "bad_move"
}

// Metrics exposes LRU-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks may be called with internal locks held; keep them cheap.
type Metrics interface {
	Acquire(src Source)
	Evict(reason EvictReason)
	Violation(v Violation)
}

// DeleteFunc asks the owner of n to drop the entry n belongs to. It returns
// true when the entry was removed and n may be reused.
//
// It is called with LRU locks held: it must not call back into the LRU and
// must not block.
type DeleteFunc func(n *Node) bool

// Options configures an LRU. Zero values are safe; defaults are applied
// in New():
//   - CPUs <= 0       => runtime.NumCPU()
//   - ScanLimit <= 0  => LocalScanLimit (PerCPUScanLimit in per-CPU mode)
//   - FreeTarget <= 0 => LocalFreeTarget (PerCPUFreeTarget in per-CPU mode)
//   - nil Metrics     => NoopMetrics
//   - nil Logger      => discard
type Options struct {
	// CPUs is the number of per-CPU lists. Valid cpu arguments are [0, CPUs).
	CPUs int

	// PerCPU gives every CPU its own full LRU list instead of one common
	// list fronted by per-CPU local lists. There is no stealing in this mode.
	PerCPU bool

	// Delete is the owner's removal callback. Required.
	Delete DeleteFunc

	// ScanLimit bounds how many nodes one rotation or shrink walk examines.
	ScanLimit int

	// FreeTarget is the refill batch size.
	FreeTarget int

	Metrics Metrics
	Logger  *slog.Logger
}
