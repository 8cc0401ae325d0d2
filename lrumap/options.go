package lrumap

import (
	"log/slog"

	"github.com/IvanBrykalov/lrulist/lrulist"
)

// Metrics exposes map-level observability hooks on top of the LRU ones.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	lrulist.Metrics
	Hit()
	Miss()
	Size(entries int)
}

// Options configures the map. Zero values are safe; defaults are applied
// in New():
//   - CPUs <= 0     => runtime.NumCPU()
//   - nil Hasher    => xxhash for strings, byte arrays, integers and Stringers
//   - nil Metrics   => NoopMetrics
//   - nil Logger    => discard
type Options[K comparable, V any] struct {
	// Capacity is the maximum number of entries. Required.
	// In per-CPU mode it is rounded up to a multiple of CPUs.
	Capacity int

	// CPUs is the number of per-CPU lists behind the map.
	CPUs int

	// PerCPU gives every CPU a private LRU; see lrulist.Options.PerCPU.
	// A CPU then only ever evicts entries it inserted itself.
	PerCPU bool

	// Hasher maps keys to 64-bit hashes. It must be consistent with ==.
	Hasher func(K) uint64

	// OnEvict is called when the LRU reclaims an entry to make room. It is
	// not called for Delete or for entries replaced by Update.
	// It runs under the map's internal locks: keep it light and do not call
	// back into the map.
	OnEvict func(k K, v V)

	Metrics Metrics
	Logger  *slog.Logger
}
