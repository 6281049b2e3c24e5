// Package recovery provides pluggable recovery strategies consulted by
// guarded execution after a fault. A strategy inspects the fault and the
// attempt number and either proposes a replacement state to retry with or
// declines by returning nil.
package recovery

// Strategy is the capability interface for failure recovery policies.
type Strategy interface {
	// CanHandle reports whether this strategy applies to the fault.
	CanHandle(err error) bool

	// Apply returns a non-empty replacement state to retry with. A nil or
	// empty map is a decline. attempt is zero-based. Implementations may
	// block (e.g. a backoff sleep) before returning; that latency is
	// attributed to the caller.
	Apply(state map[string]any, err error, attempt int) map[string]any
}
