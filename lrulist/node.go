package lrulist

import "sync/atomic"

// NodeType tells which list currently owns a node.
type NodeType uint32

const (
	// Active nodes survived at least one aging pass with their ref bit set.
	Active NodeType = iota
	// Inactive nodes are the eviction candidates of the global list.
	Inactive
	// Free nodes sit in the global free list.
	Free
	// LocalFree nodes sit in a per-CPU free list, ready to be handed out.
	LocalFree
	// LocalPending nodes were handed out by PopFree and wait for the next
	// flush into the global list.
	LocalPending
)

const (
	nrListTypes    = 3 // Active, Inactive, Free
	nrCountedTypes = 2 // Active, Inactive
)

// String returns a short lowercase name, also used as a metrics label.
func (t NodeType) String() string {
	switch t {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Free:
		return "free"
	case LocalFree:
		return "local_free"
	case LocalPending:
		return "local_pending"
	default:
		return "unknown"
	}
}

func (t NodeType) isLocal() bool { return t >= LocalFree }

func (t NodeType) isFree() bool { return t == Free || t == LocalFree }

// Node is one cacheable slot. Nodes live in an arena owned by the LRU and
// move between lists; they are never allocated or freed individually.
//
// Links are guarded by the lock of the list the node is on. typ, cpu and
// ref are atomics because they are read without that lock.
type Node struct {
	next, prev *Node

	typ  atomic.Uint32 // NodeType
	cpu  atomic.Int32
	ref  atomic.Bool
	hash uint32
	id   uint32
}

// ID returns the index of the node in the arena. Element i of the owner's
// backing storage corresponds to node i.
func (n *Node) ID() uint32 { return n.id }

// Hash returns the hash stamped on the node by the last PopFree.
func (n *Node) Hash() uint32 { return n.hash }

// Type returns the list the node is currently on.
func (n *Node) Type() NodeType { return NodeType(n.typ.Load()) }

// CPU returns the per-CPU list that most recently owned the node.
func (n *Node) CPU() int { return int(n.cpu.Load()) }

// SetRef marks the node as referenced. It is called on every cache hit and
// never takes a lock: a concurrent rotation may clear the bit right after it
// was set, which costs at most one extra eviction or reprieve.
func (n *Node) SetRef() {
	if !n.ref.Load() {
		n.ref.Store(true)
	}
}

// Referenced reports the current ref bit.
func (n *Node) Referenced() bool { return n.ref.Load() }

func (n *Node) setType(t NodeType) { n.typ.Store(uint32(t)) }

func (n *Node) clearRef() { n.ref.Store(false) }
