package lrulist

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	acquire   [SourceNone + 1]atomic.Int64
	evict     [EvictSteal + 1]atomic.Int64
	violation [BadMove + 1]atomic.Int64
}

func (m *countingMetrics) Acquire(s Source)      { m.acquire[s].Add(1) }
func (m *countingMetrics) Evict(r EvictReason)   { m.evict[r].Add(1) }
func (m *countingMetrics) Violation(v Violation) { m.violation[v].Add(1) }

func never(*Node) bool  { return false }
func always(*Node) bool { return true }

func newTestLRU(t *testing.T, opt Options, n int) *LRU {
	t.Helper()
	lru, err := New(opt)
	require.NoError(t, err)
	require.NoError(t, lru.Populate(n))
	t.Cleanup(lru.Destroy)
	return lru
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Options{CPUs: 2})
	require.ErrorIs(t, err, ErrNoDelete)

	lru, err := New(Options{Delete: never})
	require.NoError(t, err)
	require.GreaterOrEqual(t, lru.CPUs(), 1)
	require.Equal(t, LocalScanLimit, lru.scanLimit)
	require.Equal(t, LocalFreeTarget, lru.freeTarget)

	lru, err = New(Options{CPUs: 3, PerCPU: true, Delete: never})
	require.NoError(t, err)
	require.True(t, lru.PerCPU())
	require.Equal(t, PerCPUScanLimit, lru.scanLimit)
	require.Equal(t, PerCPUFreeTarget, lru.freeTarget)
}

func TestPopulate_Errors(t *testing.T) {
	t.Parallel()

	lru, err := New(Options{CPUs: 4, Delete: never})
	require.NoError(t, err)
	require.ErrorIs(t, lru.Populate(0), ErrInvalidSize)
	require.NoError(t, lru.Populate(8))
	require.ErrorIs(t, lru.Populate(8), ErrPopulated)
	require.Equal(t, 8, lru.Len())

	pc, err := New(Options{CPUs: 4, PerCPU: true, Delete: never})
	require.NoError(t, err)
	err = pc.Populate(3)
	require.True(t, errors.Is(err, ErrInvalidSize), "got %v", err)

	// Node ids are 32 bits. On 32-bit platforms the conversion wraps to 0,
	// which is rejected too.
	tooMany := uint64(math.MaxUint32) + 1
	big, err := New(Options{CPUs: 1, Delete: never})
	require.NoError(t, err)
	require.ErrorIs(t, big.Populate(int(tooMany)), ErrInvalidSize)
	require.Zero(t, big.Len())
}

func TestPopulate_AllFree(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 2, Delete: never}, 16)
	c := lru.Counts()
	require.Equal(t, 16, c.Global.Free)
	require.Equal(t, 16, c.Total())
	for i := range uint32(16) {
		n := lru.Node(i)
		require.Equal(t, i, n.ID())
		require.Equal(t, Free, n.Type())
		require.False(t, n.Referenced())
	}
}

// With nothing removable every node is handed out exactly once and the
// next request fails instead of reusing a node.
func TestPopFree_Exhaustion(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	lru := newTestLRU(t, Options{CPUs: 2, Delete: never, Metrics: m}, 256)

	seen := make(map[uint32]bool)
	for i := range 256 {
		n := lru.PopFree(i%2, uint32(i))
		require.NotNil(t, n, "pop %d", i)
		require.False(t, seen[n.ID()], "node %d handed out twice", n.ID())
		seen[n.ID()] = true
		require.Equal(t, LocalPending, n.Type())
		require.Equal(t, i%2, n.CPU())
		require.Equal(t, uint32(i), n.Hash())
	}
	require.Nil(t, lru.PopFree(0, 1000))
	require.Nil(t, lru.PopFree(1, 1001))

	require.Equal(t, 256, lru.Counts().Total())
	require.EqualValues(t, 2, m.acquire[SourceNone].Load())
	require.Zero(t, m.evict[EvictShrink].Load()+m.evict[EvictForce].Load())
}

// Pop two, give one back: the pool yields one extra node before it runs dry.
func TestPopFree_RecyclesPushed(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 1, Delete: never}, 4)

	x := lru.PopFree(0, 1)
	y := lru.PopFree(0, 2)
	require.NotNil(t, x)
	require.NotNil(t, y)
	require.NotSame(t, x, y)

	lru.PushFree(x)
	require.Equal(t, LocalFree, x.Type())

	got := 0
	for lru.PopFree(0, 3) != nil {
		got++
	}
	require.Equal(t, 3, got)
	require.Equal(t, 4, lru.Counts().Total())
}

func TestPushFree_DoubleFreeIsNoop(t *testing.T) {
	if debugging {
		t.Skip("violations panic in debug builds")
	}
	t.Parallel()

	m := &countingMetrics{}
	lru := newTestLRU(t, Options{CPUs: 1, Delete: never, Metrics: m}, 4)

	x := lru.PopFree(0, 1)
	require.NotNil(t, x)
	lru.PushFree(x)
	before := lru.Counts()
	lru.PushFree(x)

	require.Equal(t, before, lru.Counts())
	require.EqualValues(t, 1, m.violation[DoubleFree].Load())

	// all four are still usable exactly once
	got := 0
	for lru.PopFree(0, 2) != nil {
		got++
	}
	require.Equal(t, 4, got)
}

func TestPushFree_GlobalNode(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 1, Delete: never, FreeTarget: 2}, 4)

	a := lru.PopFree(0, 1)
	b := lru.PopFree(0, 2)
	// the next refill flushes a and b into the global list
	c := lru.PopFree(0, 3)
	require.NotNil(t, c)
	require.Equal(t, Inactive, a.Type())
	require.Equal(t, Inactive, b.Type())

	lru.PushFree(a)
	require.Equal(t, Free, a.Type())
	cnt := lru.Counts()
	require.Equal(t, 1, cnt.Global.Free)
	require.Equal(t, 1, cnt.Global.Inactive)
	require.Equal(t, 4, cnt.Total())
}

// Pending nodes are classified by their ref bit when they are flushed.
func TestFlush_ClassifiesByRef(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 1, Delete: never, FreeTarget: 2}, 4)

	a := lru.PopFree(0, 1)
	b := lru.PopFree(0, 2)
	a.SetRef()
	lru.PopFree(0, 3) // refill, flushes a and b

	require.Equal(t, Active, a.Type())
	require.False(t, a.Referenced(), "move-in clears the ref bit")
	require.Equal(t, Inactive, b.Type())
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 2, Delete: never}, 8)
	lru.PopFree(1, 1)
	before := lru.Counts()

	loc := &lru.locals[0]
	loc.mu.Lock()
	lru.global.mu.Lock()
	lru.flushLocal(&lru.global, loc)
	lru.global.mu.Unlock()
	loc.mu.Unlock()

	require.Equal(t, before, lru.Counts())
}

// A node that is referenced before every aging pass never drops to Inactive.
func TestRotate_RefKeepsActive(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 1, Delete: never}, 4)

	nodes := make([]*Node, 4)
	for i := range nodes {
		nodes[i] = lru.PopFree(0, uint32(i))
		nodes[i].SetRef()
	}
	l := &lru.global
	loc := &lru.locals[0]
	loc.mu.Lock()
	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		loc.mu.Unlock()
	}()

	lru.flushLocal(l, loc)
	for _, n := range nodes {
		require.Equal(t, Active, n.Type())
	}

	hot := nodes[1]
	for range 10 {
		hot.SetRef()
		lru.rotate(l)
		require.Equal(t, Active, hot.Type())
	}
	for _, n := range nodes {
		if n != hot {
			require.Equal(t, Inactive, n.Type())
		}
	}
	require.Equal(t, 1, l.counts[Active])
	require.Equal(t, 3, l.counts[Inactive])
}

// Inactive rotation examines at most ScanLimit nodes per pass and resumes
// where the previous pass stopped.
func TestRotateInactive_ResumesAtCursor(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 1, Delete: never, ScanLimit: 2}, 6)

	nodes := make([]*Node, 6)
	for i := range nodes {
		nodes[i] = lru.PopFree(0, uint32(i))
	}
	l := &lru.global
	loc := &lru.locals[0]
	loc.mu.Lock()
	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		loc.mu.Unlock()
	}()

	lru.flushLocal(l, loc)
	require.Equal(t, 6, l.counts[Inactive])
	for _, n := range nodes {
		n.SetRef()
	}

	for pass := 1; pass <= 3; pass++ {
		lru.rotateInactive(l)
		require.Equal(t, 2*pass, l.counts[Active], "pass %d", pass)
		// oldest first
		for i, n := range nodes {
			if i < 2*pass {
				require.Equal(t, Active, n.Type(), "pass %d node %d", pass, i)
			} else {
				require.Equal(t, Inactive, n.Type(), "pass %d node %d", pass, i)
			}
		}
	}
	require.Same(t, l.head(Inactive), l.nextInactiveRotation)
}

func TestShrink_EvictsUnreferencedFirst(t *testing.T) {
	t.Parallel()

	var victims []uint32
	lru := newTestLRU(t, Options{
		CPUs:       1,
		FreeTarget: 2,
		Delete: func(n *Node) bool {
			victims = append(victims, n.ID())
			return true
		},
	}, 4)

	nodes := make([]*Node, 4)
	for i := range nodes {
		nodes[i] = lru.PopFree(0, uint32(i))
		require.NotNil(t, nodes[i])
	}
	nodes[0].SetRef()

	// Flush makes 0 Active and 1..3 Inactive, then 1 and 2 are shrunk.
	n := lru.PopFree(0, 10)
	require.NotNil(t, n)
	require.Equal(t, []uint32{nodes[1].ID(), nodes[2].ID()}, victims)
	require.Equal(t, Active, nodes[0].Type())
	require.Equal(t, Inactive, nodes[3].Type())
}

// When the inactive pass frees nothing, shrink takes the oldest node the
// owner lets go of, whatever its position.
func TestShrink_ForceWhenInactivePassFails(t *testing.T) {
	t.Parallel()

	var target *Node
	m := &countingMetrics{}
	lru := newTestLRU(t, Options{
		CPUs:       1,
		FreeTarget: 2,
		ScanLimit:  1,
		Delete:     func(n *Node) bool { return n == target },
		Metrics:    m,
	}, 2)

	a := lru.PopFree(0, 1)
	b := lru.PopFree(0, 2)
	target = b

	// a is the inactive tail and is refused, the one-node scan stops there
	n := lru.PopFree(0, 3)
	require.Same(t, b, n)
	require.Zero(t, m.evict[EvictShrink].Load())
	require.EqualValues(t, 1, m.evict[EvictForce].Load())
	require.Equal(t, Inactive, a.Type())
}

// A CPU with empty lists takes a free node from another CPU's local list.
func TestSteal_FromLocalFree(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	lru := newTestLRU(t, Options{CPUs: 2, Delete: never, Metrics: m}, 4)

	require.NotNil(t, lru.PopFree(1, 1)) // cpu 1 takes the whole pool
	n := lru.PopFree(0, 2)
	require.NotNil(t, n)
	require.EqualValues(t, 1, m.acquire[SourceSteal].Load())

	// the stolen node is pending on the requester
	require.Equal(t, 0, n.CPU())
	require.Equal(t, LocalPending, n.Type())
	c := lru.Counts()
	require.Equal(t, 1, c.CPU[0].LocalPending)
	require.Equal(t, 2, c.CPU[1].LocalFree)

	// and goes back to the list it is pending on
	lru.PushFree(n)
	c = lru.Counts()
	require.Equal(t, 1, c.CPU[0].LocalFree)
	require.Equal(t, 0, c.CPU[0].LocalPending)
	require.Equal(t, 2, c.CPU[1].LocalFree)
	require.Equal(t, 4, c.Total())
}

func TestSteal_PendingSkipsReferenced(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	lru := newTestLRU(t, Options{CPUs: 2, Delete: always, Metrics: m}, 2)

	old := lru.PopFree(1, 1)
	young := lru.PopFree(1, 2)
	old.SetRef()

	n := lru.PopFree(0, 3)
	require.Same(t, young, n)
	require.Equal(t, 0, n.CPU())
	require.Equal(t, uint32(3), n.Hash())
	require.False(t, n.Referenced())
	require.EqualValues(t, 1, m.evict[EvictSteal].Load())
}

func TestSteal_PendingForcedWhenAllReferenced(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 2, Delete: always}, 2)

	old := lru.PopFree(1, 1)
	young := lru.PopFree(1, 2)
	old.SetRef()
	young.SetRef()

	require.Same(t, old, lru.PopFree(0, 3))
}

func TestSteal_RoundRobin(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 3, Delete: never}, 3)

	// spread the three nodes one per CPU
	for cpu := range 3 {
		n := lru.PopFree(cpu, uint32(cpu))
		require.NotNil(t, n)
		lru.PushFree(n)
	}
	c := lru.Counts()
	require.Zero(t, c.Global.Total())

	for cpu := range 3 {
		require.Equal(t, 1, c.CPU[cpu].LocalFree, "cpu %d", cpu)
	}

	// drain everything from cpu 0; it must reach every other CPU
	got := 0
	for lru.PopFree(0, 9) != nil {
		got++
	}
	require.Equal(t, 3, got)
}

func TestPerCPU_PrivateLists(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 2, PerCPU: true, Delete: never}, 8)
	c := lru.Counts()
	require.Equal(t, 4, c.CPU[0].Free)
	require.Equal(t, 4, c.CPU[1].Free)

	var mine []*Node
	for i := range 4 {
		n := lru.PopFree(0, uint32(i))
		require.NotNil(t, n)
		require.Equal(t, 0, n.CPU())
		require.Equal(t, Inactive, n.Type())
		mine = append(mine, n)
	}
	// no stealing in per-CPU mode
	require.Nil(t, lru.PopFree(0, 99))
	require.NotNil(t, lru.PopFree(1, 100))

	lru.PushFree(mine[0])
	require.Equal(t, Free, mine[0].Type())
	require.Same(t, mine[0], lru.PopFree(0, 101))
	require.Equal(t, 8, lru.Counts().Total())
}

func TestPerCPU_ShrinksWhenFull(t *testing.T) {
	t.Parallel()

	m := &countingMetrics{}
	lru := newTestLRU(t, Options{CPUs: 1, PerCPU: true, Delete: always, Metrics: m}, 4)

	for i := range 16 {
		require.NotNil(t, lru.PopFree(0, uint32(i)), "pop %d", i)
	}
	require.Positive(t, m.evict[EvictShrink].Load())
	require.Equal(t, 4, lru.Counts().Total())
}

func TestPerCPU_RemainderOnLastCPU(t *testing.T) {
	t.Parallel()

	lru := newTestLRU(t, Options{CPUs: 3, PerCPU: true, Delete: never}, 11)
	c := lru.Counts()
	require.Equal(t, 3, c.CPU[0].Free)
	require.Equal(t, 3, c.CPU[1].Free)
	require.Equal(t, 5, c.CPU[2].Free)
}

func TestPerCPU_DoubleFreeIsNoop(t *testing.T) {
	if debugging {
		t.Skip("violations panic in debug builds")
	}
	t.Parallel()

	m := &countingMetrics{}
	lru := newTestLRU(t, Options{CPUs: 1, PerCPU: true, Delete: never, Metrics: m}, 2)
	n := lru.PopFree(0, 1)
	lru.PushFree(n)
	lru.PushFree(n)
	require.EqualValues(t, 1, m.violation[DoubleFree].Load())
	require.Equal(t, 2, lru.Counts().CPU[0].Free)
}

func TestNodeType_String(t *testing.T) {
	t.Parallel()

	want := map[NodeType]string{
		Active:       "active",
		Inactive:     "inactive",
		Free:         "free",
		LocalFree:    "local_free",
		LocalPending: "local_pending",
		NodeType(42): "unknown",
	}
	for typ, s := range want {
		if typ.String() != s {
			t.Fatalf("%d: want %q, got %q", typ, s, typ.String())
		}
	}
}
