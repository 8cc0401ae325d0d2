package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/lrulist/internal/util"
	"github.com/IvanBrykalov/lrulist/lrumap"
)

const value = 1234

// lossResult counts keys missing at the end of the loss workload, by age.
type lossResult struct {
	Old, Active, New                   int // keys per class
	OldLosses, ActiveLosses, NewLosses int
}

// runLoss inserts Keys keys into a Size-entry map one at a time, and after
// every insert looks up the hot range HotStart..min(key, Size). The cold
// keys below HotStart and the surplus above Size should be what goes.
func runLoss(ctx context.Context, cfg lossConfig, mc mapConfig, metrics lrumap.Metrics, log *slog.Logger) (lossResult, error) {
	var res lossResult
	m, err := newMap(mc, cfg.Size, metrics, log)
	if err != nil {
		return res, err
	}
	defer m.Close()

	size := uint64(m.Cap())
	for key := uint64(1); key <= uint64(cfg.Keys); key++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := m.Update(0, key, value, lrumap.NoExist); err != nil {
			return res, fmt.Errorf("insert %d: %w", key, err)
		}
		for k := uint64(cfg.HotStart); k <= min(key, size); k++ {
			m.Lookup(k)
		}
	}

	for key := uint64(1); key <= uint64(cfg.Keys); key++ {
		_, ok := m.Peek(key)
		switch {
		case key < uint64(cfg.HotStart):
			res.Old++
			if !ok {
				res.OldLosses++
			}
		case key <= size:
			res.Active++
			if !ok {
				res.ActiveLosses++
			}
		default:
			res.New++
			if !ok {
				res.NewLosses++
			}
		}
	}
	return res, nil
}

// runFill inserts exactly as many keys as the map holds and reports how
// many are gone afterwards. Losses come from refills that run short of
// free nodes and shrink.
func runFill(ctx context.Context, keys int, mc mapConfig, metrics lrumap.Metrics, log *slog.Logger) (int, error) {
	m, err := newMap(mc, keys, metrics, log)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	for key := uint64(1); key <= uint64(m.Cap()); key++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := m.Update(0, key, value, lrumap.NoExist); err != nil {
			return 0, fmt.Errorf("insert %d: %w", key, err)
		}
	}
	losses := 0
	for key := uint64(1); key <= uint64(m.Cap()); key++ {
		if _, ok := m.Peek(key); !ok {
			losses++
		}
	}
	return losses, nil
}

// runParallel gives every task its own CPU and a stable set of keys it
// keeps looking up while inserting fresh keys 10% of the time. The map has
// 20% more room than all stable sets together; the result is the number of
// stable keys each task lost.
func runParallel(ctx context.Context, cfg parallelConfig, mc mapConfig, metrics lrumap.Metrics, log *slog.Logger) ([]int, error) {
	if mc.CPUs <= 0 {
		mc.CPUs = util.PossibleCPUs()
	}
	tasks := cfg.Tasks
	if tasks <= 0 {
		tasks = mc.CPUs
	}
	m, err := newMap(mc, parallelCapacity(tasks, cfg.StableElems), metrics, log)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	losses := make([]int, tasks)
	g, ctx := errgroup.WithContext(ctx)
	for task := range tasks {
		g.Go(func() error {
			cpu := task % m.CPUs()
			r := rand.New(rand.NewSource(cfg.Seed + int64(task)))
			stable := uint64(cfg.StableElems)
			base := uint64(task)*uint64(cfg.Repeats)*2 + 1
			next := base

			for range stable {
				if err := m.Update(cpu, next, value, lrumap.NoExist); err != nil {
					return fmt.Errorf("task %d: insert %d: %w", task, next, err)
				}
				next++
			}
			for i := range cfg.Repeats {
				if i&1023 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				rn := uint64(r.Int())
				if rn%10 != 0 {
					m.Lookup(rn%stable + base)
					continue
				}
				if err := m.Update(cpu, next, value, lrumap.NoExist); err != nil && !errors.Is(err, lrumap.ErrFull) {
					return err
				}
				next++
			}

			for k := base; k < base+stable; k++ {
				if _, ok := m.Peek(k); !ok {
					losses[task]++
				}
			}
			log.Debug("parallel task done", "task", task, "cpu", cpu, "losses", losses[task])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return losses, nil
}

// parallelCapacity is the map size for tasks stable sets plus 20%.
func parallelCapacity(tasks, stable int) int {
	return tasks * (stable + stable/5)
}

// mixResult summarizes a mix run.
type mixResult struct {
	Elapsed            time.Duration
	Ops, Reads, Writes uint64
	Hits, Misses       uint64
	Len                int
}

// HitRate is hits per read, in percent.
func (r mixResult) HitRate() float64 {
	if r.Reads == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Reads) * 100
}

// runMix drives a Zipf-distributed read/write mix against b from cfg.Workers
// goroutines until cfg.Duration passes or ctx is cancelled.
func runMix(ctx context.Context, cfg mixConfig, b backend, cpus int) mixResult {
	workers := max(cfg.Workers, 1)
	keysMax := uint64(max(cfg.Keys, 2) - 1)

	var reads, writes, hits, misses, total atomic.Uint64
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Duration))
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			cpu := w % max(cpus, 1)
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(cfg.Seed + int64(w)*9973))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, keysMax)

			for i := 0; ; i++ {
				if i&255 == 0 && ctx.Err() != nil {
					return nil
				}
				total.Add(1)
				k := zipf.Uint64()
				if int(r.Int31n(100)) < cfg.Reads {
					reads.Add(1)
					if _, ok := b.Get(k); ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
				} else {
					writes.Add(1)
					b.Set(cpu, k, uint64(i))
				}
			}
		})
	}
	_ = g.Wait()

	return mixResult{
		Elapsed: time.Since(start),
		Ops:     total.Load(),
		Reads:   reads.Load(),
		Writes:  writes.Load(),
		Hits:    hits.Load(),
		Misses:  misses.Load(),
		Len:     b.Len(),
	}
}
