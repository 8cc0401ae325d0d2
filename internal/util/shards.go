package util

import "runtime"

// PossibleCPUs returns the number of logical CPUs the process may run on.
// It is the default number of per-CPU lists; never less than one.
func PossibleCPUs() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// NextCPU returns the CPU following cpu in round-robin order over [0, n).
func NextCPU(cpu, n int) int {
	cpu++
	if cpu >= n {
		cpu = 0
	}
	return cpu
}

// BucketIndex maps a 32-bit hash to a bucket index.
// Assumes bucket count is a power of two for the fast mask path,
// but remains correct for arbitrary counts (uses modulo).
func BucketIndex(hash uint32, buckets int) int {
	if buckets <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(buckets)) {
		return int(hash & uint32(buckets-1))
	}
	return int(hash % uint32(buckets))
}
