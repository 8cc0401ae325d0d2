package lrulist

import "fmt"

type constError string

func (errStr constError) Error() string { return string(errStr) }

const (
	// ErrNoDelete is returned from [New] when Options.Delete is nil.
	ErrNoDelete = constError("lrulist: no Delete callback")
	// ErrPopulated is returned when [LRU.Populate] is called twice.
	ErrPopulated = constError("lrulist: already populated")
	// ErrInvalidSize is returned from [LRU.Populate] for unusable node counts.
	ErrInvalidSize = constError("lrulist: invalid number of nodes")
)

func sizeError(n, want int) error {
	return fmt.Errorf("%w: need at least %d but %d were requested",
		ErrInvalidSize, want, n)
}
