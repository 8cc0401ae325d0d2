package lrulist

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Acquire(Source)      {}
func (NoopMetrics) Evict(EvictReason)   {}
func (NoopMetrics) Violation(Violation) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
