package lrumap

type constError string

func (errStr constError) Error() string { return string(errStr) }

const (
	// ErrInvalidCapacity is returned from [New] for a non-positive capacity.
	ErrInvalidCapacity = constError("lrumap: capacity must be > 0")
	// ErrInvalidFlags is returned from Update for an unknown UpdateFlag.
	ErrInvalidFlags = constError("lrumap: invalid update flags")
	// ErrInvalidCPU is returned from Update for a cpu outside [0, CPUs()).
	ErrInvalidCPU = constError("lrumap: cpu out of range")
	// ErrFull is returned from Update when every slot is in use and none
	// could be reclaimed.
	ErrFull = constError("lrumap: map is full")
	// ErrKeyExist is returned from Update with NoExist for a present key.
	ErrKeyExist = constError("lrumap: key already exists")
	// ErrKeyNotExist is returned for a missing key.
	ErrKeyNotExist = constError("lrumap: key does not exist")
	// ErrClosed is returned from Update after Close.
	ErrClosed = constError("lrumap: map is closed")
)
