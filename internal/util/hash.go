// Package util contains internal helpers (hashing, CPU ids, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash64 hashes common key types using 64-bit xxhash.
// Supported: string, [16|32|64]byte, all int/uint widths, uintptr, fmt.Stringer.
// For other key types, either convert the key to string or supply a custom hasher upstream.
// Unsupported types panic.
func Hash64[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return xxhash.Sum64String(v)
	case [16]byte:
		return xxhash.Sum64(v[:])
	case [32]byte:
		return xxhash.Sum64(v[:])
	case [64]byte:
		return xxhash.Sum64(v[:])

	// Integer-like keys: hash little-endian bytes of the value.
	case uint8:
		return hashUint64(uint64(v))
	case uint16:
		return hashUint64(uint64(v))
	case uint32:
		return hashUint64(uint64(v))
	case uint64:
		return hashUint64(v)
	case uint:
		return hashUint64(uint64(v))
	case uintptr:
		return hashUint64(uint64(v))
	case int8:
		return hashUint64(uint64(uint8(v)))
	case int16:
		return hashUint64(uint64(uint16(v)))
	case int32:
		return hashUint64(uint64(uint32(v)))
	case int64:
		return hashUint64(uint64(v))
	case int:
		return hashUint64(uint64(v))

	// Fallback for pseudo-keys via String() (avoid if you can).
	case fmt.Stringer:
		return xxhash.Sum64String(v.String())
	default:
		panic(fmt.Sprintf("util.Hash64: unsupported key type %T; convert key to string or provide a custom hasher", k))
	}
}

// Fold32 folds a 64-bit hash into the 32-bit hash stashed in LRU nodes.
func Fold32(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}

func hashUint64(u uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return xxhash.Sum64(b[:])
}
