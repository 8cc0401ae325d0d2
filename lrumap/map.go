package lrumap

import (
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/IvanBrykalov/lrulist/internal/util"
	"github.com/IvanBrykalov/lrulist/lrulist"
)

// lruMap is a fixed-size hash map whose slots are handed out by an
// lrulist.LRU. All methods are safe for concurrent use.
type lruMap[K comparable, V any] struct {
	buckets []bucket[K, V] // power of two
	elems   []elem[K, V]   // slot i <-> lru.Node(i)
	lru     *lrulist.LRU
	hasher  func(K) uint64
	closed  atomic.Bool

	onEvict func(k K, v V)
	metrics Metrics
	log     *slog.Logger

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	count  util.PaddedAtomicInt64
	hits   util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64
	evicts util.PaddedAtomicUint64
}

// New constructs a map with the provided Options.
// Defaults:
//   - CPUs <= 0   -> runtime.NumCPU()
//   - nil Hasher  -> util.Hash64 (xxhash)
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> discard
func New[K comparable, V any](opt Options[K, V]) (Map[K, V], error) {
	if opt.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if opt.CPUs <= 0 {
		opt.CPUs = util.PossibleCPUs()
	}
	if opt.Hasher == nil {
		opt.Hasher = util.Hash64[K]
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}

	size := opt.Capacity
	if opt.PerCPU {
		// every CPU gets the same share
		size = (size + opt.CPUs - 1) / opt.CPUs * opt.CPUs
	}

	m := &lruMap[K, V]{
		buckets: make([]bucket[K, V], util.NextPow2(uint64(size))),
		elems:   make([]elem[K, V], size),
		hasher:  opt.Hasher,
		onEvict: opt.OnEvict,
		metrics: opt.Metrics,
		log:     opt.Logger,
	}

	lru, err := lrulist.New(lrulist.Options{
		CPUs:    opt.CPUs,
		PerCPU:  opt.PerCPU,
		Delete:  m.evict,
		Metrics: opt.Metrics,
		Logger:  opt.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := lru.Populate(size); err != nil {
		return nil, err
	}
	for i := range m.elems {
		m.elems[i].node = lru.Node(uint32(i))
	}
	m.lru = lru

	m.log.Debug("lrumap: created",
		"capacity", size, "buckets", len(m.buckets), "cpus", opt.CPUs, "percpu", opt.PerCPU)
	return m, nil
}

// ---- Map[K,V] implementation ----

// Update acquires a slot before taking the bucket lock, so eviction done by
// the LRU never runs under it. On any failure the slot goes straight back.
func (m *lruMap[K, V]) Update(cpu int, k K, v V, flags UpdateFlag) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if flags > Exist {
		return ErrInvalidFlags
	}
	if cpu < 0 || cpu >= m.lru.CPUs() {
		return ErrInvalidCPU
	}

	h := m.hash(k)
	n := m.lru.PopFree(cpu, h)
	if n == nil {
		return ErrFull
	}
	e := &m.elems[n.ID()]
	e.key = k
	e.val = v

	b := m.bucketFor(h)
	b.mu.Lock()
	old := b.find(k, h)
	switch {
	case old != nil && flags == NoExist:
		b.mu.Unlock()
		m.lru.PushFree(n)
		return ErrKeyExist
	case old == nil && flags == Exist:
		b.mu.Unlock()
		m.lru.PushFree(n)
		return ErrKeyNotExist
	}

	// new first, so that concurrent lookups never miss k
	b.link(e)
	if old != nil {
		n.SetRef()
		b.unlink(old)
	}
	b.mu.Unlock()

	if old != nil {
		m.lru.PushFree(old.node)
	} else {
		m.metrics.Size(int(m.count.Add(1)))
	}
	return nil
}

// Lookup returns the value for k and marks its slot referenced.
func (m *lruMap[K, V]) Lookup(k K) (V, bool) {
	return m.lookup(k, true)
}

// Peek returns the value for k without touching the LRU.
func (m *lruMap[K, V]) Peek(k K) (V, bool) {
	return m.lookup(k, false)
}

func (m *lruMap[K, V]) lookup(k K, ref bool) (V, bool) {
	var zero V
	if m.closed.Load() {
		return zero, false
	}

	h := m.hash(k)
	b := m.bucketFor(h)
	b.mu.RLock()
	e := b.find(k, h)
	if e == nil {
		b.mu.RUnlock()
		m.misses.Add(1)
		m.metrics.Miss()
		return zero, false
	}
	if ref {
		e.node.SetRef()
	}
	v := e.val
	b.mu.RUnlock()

	m.hits.Add(1)
	m.metrics.Hit()
	return v, true
}

// Delete removes k and returns its slot to the LRU.
func (m *lruMap[K, V]) Delete(k K) error {
	_, err := m.LookupAndDelete(k)
	return err
}

// LookupAndDelete removes k and returns the value it had.
func (m *lruMap[K, V]) LookupAndDelete(k K) (V, error) {
	var zero V
	if m.closed.Load() {
		return zero, ErrClosed
	}

	h := m.hash(k)
	b := m.bucketFor(h)
	b.mu.Lock()
	e := b.find(k, h)
	if e == nil {
		b.mu.Unlock()
		return zero, ErrKeyNotExist
	}
	v := e.val
	b.unlink(e)
	b.mu.Unlock()

	m.lru.PushFree(e.node)
	m.metrics.Size(int(m.count.Add(-1)))
	return v, nil
}

// Len returns the number of entries.
func (m *lruMap[K, V]) Len() int { return int(m.count.Load()) }

// Cap returns the number of slots.
func (m *lruMap[K, V]) Cap() int { return len(m.elems) }

// CPUs returns the number of valid cpu arguments to Update.
func (m *lruMap[K, V]) CPUs() int { return m.lru.CPUs() }

// All yields a per-bucket snapshot; no lock is held while yield runs.
func (m *lruMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		var keys []K
		var vals []V
		for i := range m.buckets {
			b := &m.buckets[i]
			b.mu.RLock()
			keys, vals = b.appendTo(keys[:0], vals[:0])
			b.mu.RUnlock()
			for j := range keys {
				if !yield(keys[j], vals[j]) {
					return
				}
			}
		}
	}
}

// Keys yields the keys of All.
func (m *lruMap[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Stats returns the map's counters.
func (m *lruMap[K, V]) Stats() Stats {
	return Stats{
		Entries:   m.Len(),
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evicts.Load(),
	}
}

// Close marks the map closed. Slots are reclaimed with the map itself.
func (m *lruMap[K, V]) Close() error {
	m.closed.Store(true)
	return nil
}

// ---- helpers ----

func (m *lruMap[K, V]) hash(k K) uint32 { return util.Fold32(m.hasher(k)) }

// bucketFor picks a bucket by masking the hash; len(m.buckets) is a power
// of two.
func (m *lruMap[K, V]) bucketFor(hash uint32) *bucket[K, V] {
	return &m.buckets[util.BucketIndex(hash, len(m.buckets))]
}

// evict is the LRU's Delete callback. It runs with LRU locks held and
// must not read e.key before checking that e is linked: the slot may just
// have been handed to an Update that is still filling it in.
func (m *lruMap[K, V]) evict(n *lrulist.Node) bool {
	e := &m.elems[n.ID()]
	b := m.bucketFor(n.Hash())
	b.mu.Lock()
	defer b.mu.Unlock()

	if !e.linked {
		return false
	}
	b.unlink(e)
	m.evicts.Add(1)
	m.metrics.Size(int(m.count.Add(-1)))
	if m.onEvict != nil {
		m.onEvict(e.key, e.val)
	}
	return true
}
