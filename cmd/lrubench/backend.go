package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/IvanBrykalov/lrulist/lrumap"
)

// backend is the surface the mix workload drives. cpu is ignored by the
// baselines, which have no notion of it.
type backend interface {
	Set(cpu int, k, v uint64)
	Get(k uint64) (uint64, bool)
	Len() int
}

type mapBackend struct{ lrumap.Map[uint64, uint64] }

func (b mapBackend) Set(cpu int, k, v uint64)      { _ = b.Update(cpu, k, v, lrumap.Any) }
func (b mapBackend) Get(k uint64) (uint64, bool) { return b.Lookup(k) }

type lruBackend struct{ *lru.Cache[uint64, uint64] }

func (b lruBackend) Set(_ int, k, v uint64) { b.Add(k, v) }

type arcBackend struct{ *arc.ARCCache[uint64, uint64] }

func (b arcBackend) Set(_ int, k, v uint64) { b.Add(k, v) }

// fastBackend sizes by bytes, not entries; fastcache rounds small budgets
// up to its 32MB minimum, so Len may exceed the requested capacity.
type fastBackend struct{ *fastcache.Cache }

func (b fastBackend) Set(_ int, k, v uint64) {
	var kb, vb [8]byte
	binary.LittleEndian.PutUint64(kb[:], k)
	binary.LittleEndian.PutUint64(vb[:], v)
	b.Cache.Set(kb[:], vb[:])
}

func (b fastBackend) Get(k uint64) (uint64, bool) {
	var kb [8]byte
	binary.LittleEndian.PutUint64(kb[:], k)
	v, ok := b.HasGet(nil, kb[:])
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v), true
}

func (b fastBackend) Len() int {
	var s fastcache.Stats
	b.UpdateStats(&s)
	return int(s.EntriesCount)
}

// fastEntryBytes approximates fastcache's per-entry footprint for 8-byte
// keys and values (4-byte header).
const fastEntryBytes = 20

func newMap(mc mapConfig, capacity int, metrics lrumap.Metrics, log *slog.Logger) (lrumap.Map[uint64, uint64], error) {
	if mc.Capacity > 0 {
		capacity = mc.Capacity
	}
	return lrumap.New(lrumap.Options[uint64, uint64]{
		Capacity: capacity,
		CPUs:     mc.CPUs,
		PerCPU:   mc.PerCPU,
		Metrics:  metrics,
		Logger:   log,
	})
}

func newBackend(name string, mc mapConfig, capacity int, metrics lrumap.Metrics, log *slog.Logger) (backend, error) {
	if mc.Capacity > 0 {
		capacity = mc.Capacity
	}
	switch name {
	case "lrumap":
		m, err := newMap(mc, capacity, metrics, log)
		if err != nil {
			return nil, err
		}
		return mapBackend{m}, nil
	case "golang-lru":
		c, err := lru.New[uint64, uint64](capacity)
		if err != nil {
			return nil, err
		}
		return lruBackend{c}, nil
	case "arc":
		c, err := arc.NewARC[uint64, uint64](capacity)
		if err != nil {
			return nil, err
		}
		return arcBackend{c}, nil
	case "fastcache":
		return fastBackend{fastcache.New(capacity * fastEntryBytes)}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use lrumap, golang-lru, arc or fastcache)", name)
	}
}
