package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{
		0:          1,
		1:          1,
		2:          2,
		3:          4,
		1000:       1024,
		1024:       1024,
		1<<63 - 1:  1 << 63,
		1<<63 + 1:  1 << 63,
		^uint64(0): 1 << 63,
	}
	for in, want := range cases {
		require.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
	require.False(t, IsPowerOfTwo(0))
	require.True(t, IsPowerOfTwo(1))
	require.False(t, IsPowerOfTwo(6))
}

func TestNextCPU(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, NextCPU(0, 4))
	require.Equal(t, 0, NextCPU(3, 4))
	require.Equal(t, 0, NextCPU(0, 1))
}

func TestBucketIndex(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, BucketIndex(12345, 0))
	require.Equal(t, 0, BucketIndex(12345, 1))
	require.Equal(t, 0x39, BucketIndex(0xf39, 64))
	require.Equal(t, 1, BucketIndex(10, 3))
}

type name string

func (n name) String() string { return string(n) }

func TestHash64(t *testing.T) {
	t.Parallel()

	require.Equal(t, Hash64("abc"), Hash64("abc"))
	require.NotEqual(t, Hash64("abc"), Hash64("abd"))

	// Integer widths hash the same value identically.
	require.Equal(t, Hash64(uint64(7)), Hash64(uint32(7)))
	require.Equal(t, Hash64(int64(7)), Hash64(7))
	require.Equal(t, Hash64(uint64(0xff)), Hash64(uint8(0xff)))

	require.Equal(t, Hash64("bob"), Hash64(name("bob")))

	require.Panics(t, func() { Hash64(struct{ a, b int }{1, 2}) })
}

func TestFold32(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint32(0), Fold32(0))
	require.Equal(t, uint32(3), Fold32(1<<32|2))
}
