package lrumap

import (
	"errors"
	"math/rand"
	"runtime"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// A mixed workload of concurrent Update/Lookup/Delete on random keys.
// Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	for _, perCPU := range []bool{false, true} {
		t.Run("percpu="+strconv.FormatBool(perCPU), func(t *testing.T) {
			raceMix(t, perCPU)
		})
	}
}

func raceMix(t *testing.T, perCPU bool) {
	const cpus = 4
	m, err := New(Options[string, []byte]{
		Capacity: 2_048,
		CPUs:     cpus,
		PerCPU:   perCPU,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 20_000
	deadline := time.Now().Add(time.Second)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			cpu := w % cpus
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% Delete
					if err := m.Delete(k); err != nil && !errors.Is(err, ErrKeyNotExist) {
						return err
					}
				case 5, 6, 7, 8, 9, 10, 11, 12, 13, 14: // ~10% Update
					err := m.Update(cpu, k, []byte("x"), Any)
					if err != nil && !errors.Is(err, ErrFull) {
						return err
					}
				case 15: // ~1% full scan
					for range m.All() {
					}
				default: // Lookup
					m.Lookup(k)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	n := 0
	seen := make(map[string]bool)
	for k := range m.Keys() {
		if seen[k] {
			t.Fatalf("key %q linked twice", k)
		}
		seen[k] = true
		n++
	}
	if n != m.Len() {
		t.Fatalf("Len()=%d but %d entries are linked", m.Len(), n)
	}
	if n > m.Cap() {
		t.Fatalf("%d entries exceed capacity %d", n, m.Cap())
	}
}

// Concurrent writers hammer a single key; exactly one entry survives.
func TestRace_SameKey(t *testing.T) {
	const cpus = 4
	m, err := New(Options[int, int]{Capacity: 64, CPUs: cpus})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })

	var g errgroup.Group
	for w := range 16 {
		g.Go(func() error {
			for i := range 1_000 {
				if err := m.Update(w%cpus, 1, w*1_000+i, Any); err != nil && !errors.Is(err, ErrFull) {
					return err
				}
				m.Lookup(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 {
		t.Fatalf("want 1 entry, got %d", m.Len())
	}
	if _, ok := m.Peek(1); !ok {
		t.Fatal("key 1 lost")
	}
}
