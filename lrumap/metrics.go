package lrumap

import "github.com/IvanBrykalov/lrulist/lrulist"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{ lrulist.NoopMetrics }

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Size(int) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
