// Package lrulist implements an approximate least-recently-used list for a
// fixed pool of cache slots, sharded per CPU to keep lock contention low.
//
// Design
//
//   - Nodes: the LRU owns an arena of Populate(n) nodes. Node i stands for
//     slot i of the owner's storage; nodes are never allocated afterwards.
//
//   - Global list: Active, Inactive and Free sublists behind one mutex.
//     New entries enter Inactive; a set ref bit promotes them to Active
//     during aging. Eviction happens from the tail of Inactive.
//
//   - Local lists: every CPU has a free list and a pending list behind its
//     own mutex. PopFree serves from the local free list and only touches
//     the global list to refill it in batches of LocalFreeTarget nodes.
//     Nodes handed out stay pending locally until the next refill flushes
//     them into the global list.
//
//   - Stealing: when the caller's local list and the global list are both
//     exhausted, PopFree takes a node from another CPU's local lists,
//     round-robin.
//
//   - Reference bit: (*Node).SetRef is lock-free and is the only thing the
//     hit path does. Aging clears it.
//
//   - Eviction: the owner supplies Options.Delete. The LRU calls it with its
//     locks held to ask whether a node's entry can be dropped; only nodes it
//     agrees on are reused.
//
//   - Per-CPU mode: with Options.PerCPU every CPU runs a private
//     Active/Inactive/Free list with small batches and no stealing.
//
// Lock order is local list, then global list, then whatever Delete takes.
// No code path holds two local locks, except Counts, which takes them in
// CPU order.
//
// Usage
//
//	lru, err := lrulist.New(lrulist.Options{
//	    CPUs:   4,
//	    Delete: func(n *lrulist.Node) bool { return table.remove(n.ID()) },
//	})
//	if err != nil { ... }
//	if err := lru.Populate(1024); err != nil { ... }
//
//	n := lru.PopFree(cpu, hash) // nil: full
//	... fill slot n.ID() ...
//	n.SetRef()                  // on every hit
//	lru.PushFree(n)             // after the owner dropped the entry itself
//
// Build with -tags lrulist_debug to turn detected misuse (double free, bad
// list moves) and count drift into panics.
package lrulist
