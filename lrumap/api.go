package lrumap

import "iter"

// UpdateFlag selects the insert/replace semantics of Map.Update.
type UpdateFlag uint64

const (
	// Any creates a new entry or replaces an existing one.
	Any UpdateFlag = iota
	// NoExist only creates; it fails with ErrKeyExist if k is present.
	NoExist
	// Exist only replaces; it fails with ErrKeyNotExist if k is absent.
	Exist
)

// Map is a bounded hash map that evicts approximately least-recently-used
// entries when it runs out of room.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every Update acquires a fresh slot from the LRU and every successful
// Lookup marks its slot referenced; eviction prefers slots that have not
// been referenced since they last aged.
type Map[K comparable, V any] interface {
	// Update stores k→v on behalf of cpu, which must be in [0, CPUs()).
	// A replaced entry counts as recently used.
	// Returns ErrFull when no slot could be acquired or reclaimed.
	Update(cpu int, k K, v V, flags UpdateFlag) error

	// Lookup returns the value for k and marks the entry referenced.
	Lookup(k K) (V, bool)

	// Peek is Lookup without the reference.
	Peek(k K) (V, bool)

	// Delete removes k. It returns ErrKeyNotExist if k is absent.
	Delete(k K) error

	// LookupAndDelete removes k and returns the value it had.
	LookupAndDelete(k K) (V, error)

	// Len returns the number of entries.
	Len() int

	// Cap returns the number of slots, which may exceed Options.Capacity
	// after rounding in per-CPU mode.
	Cap() int

	// CPUs returns the number of valid cpu arguments.
	CPUs() int

	// All iterates over a snapshot of every entry, bucket by bucket.
	// The map may be modified during iteration.
	All() iter.Seq2[K, V]

	// Keys is All without the values.
	Keys() iter.Seq[K]

	// Stats returns the map's counters.
	Stats() Stats

	// Close marks the map closed: updates fail with ErrClosed and lookups
	// miss. It always returns nil.
	Close() error
}

// Stats is a point-in-time copy of a map's counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}
