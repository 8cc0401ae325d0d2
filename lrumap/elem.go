package lrumap

import "github.com/IvanBrykalov/lrulist/lrulist"

// elem is one preallocated entry slot. Slot i belongs to LRU node i for
// the lifetime of the map.
type elem[K comparable, V any] struct {
	// key and val are written by the Update that acquired node, before the
	// element is linked, and are only read while it is linked.
	key K
	val V

	node *lrulist.Node

	// Bucket chain links, guarded by the lock of the bucket for node.Hash().
	prev   *elem[K, V]
	next   *elem[K, V]
	linked bool
}
