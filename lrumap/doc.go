// Package lrumap provides a generic, bounded, concurrent hash map with
// approximate LRU eviction on top of package lrulist.
//
// Design
//
//   - Storage: Cap() entry slots are preallocated; slot i is bound to LRU
//     node i. An Update takes a free slot from the LRU, fills it, and links
//     it into a hash bucket. Buckets are chains behind their own RWMutex;
//     the bucket count is the next power of two >= Cap().
//
//   - Recency: Lookup only sets the slot's reference bit, with no lock
//     beyond the bucket's read lock. Aging and eviction happen inside the
//     LRU whenever an Update needs a slot.
//
//   - Eviction: the LRU asks the map to drop a slot's entry through a
//     callback. The callback locates the bucket by the hash stashed on the
//     node and unlinks the entry only if it is still linked.
//
//   - CPUs: Update takes the caller's cpu id; callers that stick to one id
//     per goroutine keep allocation off the shared lock.
//
//   - Metrics: Options.Metrics receives LRU acquire/evict/violation signals
//     as well as Hit/Miss/Size. By default NoopMetrics is used; see
//     metrics/prom for a Prometheus adapter.
//
// Basic usage
//
//	m, err := lrumap.New[uint64, []byte](lrumap.Options[uint64, []byte]{Capacity: 4096})
//	if err != nil { ... }
//	_ = m.Update(cpu, 42, []byte("v"), lrumap.Any)
//	if v, ok := m.Lookup(42); ok {
//	    _ = v
//	}
//	_ = m.Delete(42)
//
// Update flags: NoExist only inserts, Exist only replaces, Any does either.
package lrumap
