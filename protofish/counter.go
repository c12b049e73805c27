package protofish

import (
	"math"
	"sync"
)

// ContextCounter allocates ContextIds for one endpoint under the parity
// rule (§4.4): client-initiated ids are even, server-initiated ids are
// odd. A server counter starts at 1, a client counter at 0, so the first
// id each side allocates is 1 / 0 respectively (§8 boundary behaviours).
type ContextCounter struct {
	mu       sync.Mutex
	current  ContextId
	wrapTo   ContextId
	isServer bool
}

// NewContextCounter creates a counter for the given side of a connection.
func NewContextCounter(isServer bool) *ContextCounter {
	c := &ContextCounter{isServer: isServer}
	if isServer {
		c.current = 1
		c.wrapTo = 1
	} else {
		c.current = 0
		c.wrapTo = 2
	}
	return c
}

// Next returns the next ContextId for this endpoint.
//
// Per spec.md §4.4: ordinarily this is a post-increment by two (the
// pre-increment value is returned, then the live counter advances by 2,
// preserving parity). When the counter is within 2 of u64::MAX
// (original_source/protofish/src/core/common/counter.rs:18's
// `u64::MAX - counter <= 2`), the live counter is instead reset to 1
// (server) / 2 (client) and that value is returned directly, so the
// *following* call resumes the normal post-increment sequence from there.
// This reuses an id that may still be in flight — a known collision risk
// the spec leaves as an open question (spec.md §9) rather than mandating
// overflow be an error.
func (c *ContextCounter) Next() ContextId {
	c.mu.Lock()
	defer c.mu.Unlock()
	if math.MaxUint64-c.current <= 2 {
		c.current = c.wrapTo
		return c.current
	}
	v := c.current
	c.current += 2
	return v
}
