package arpcache

import "time"

// Defaults for a cache with no options applied.
const (
	DefaultAliveTimeout     = 120 * time.Second
	DefaultDeadTimeout      = 100 * time.Second
	DefaultWaitReplyTimeout = 1 * time.Second
	DefaultMaxRetries       = 3
	DefaultPendingQueueSize = 3
)

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithAliveTimeout sets how long a fresh resolution stays current before it
// needs refreshing.
func WithAliveTimeout(d time.Duration) Option {
	return func(c *Cache) { c.aliveTimeout = d }
}

// WithDeadTimeout sets how long a failed entry is held before a new
// resolution attempt is worthwhile.
func WithDeadTimeout(d time.Duration) Option {
	return func(c *Cache) { c.deadTimeout = d }
}

// WithWaitReplyTimeout sets both the per-attempt reply window and the sweep
// cadence of the shared retry timer.
func WithWaitReplyTimeout(d time.Duration) Option {
	return func(c *Cache) { c.waitReplyTimeout = d }
}

// WithMaxRetries sets how many times a resolution request is retransmitted
// before the entry is failed and its queue drained.
func WithMaxRetries(n uint32) Option {
	return func(c *Cache) { c.maxRetries = n }
}

// WithPendingQueueSize caps how many packets may queue behind one
// outstanding resolution.
func WithPendingQueueSize(n int) Option {
	return func(c *Cache) { c.pendingQueueSize = n }
}

// WithRequestFunc sets the callback used to emit resolution requests.
func WithRequestFunc(fn RequestFunc) Option {
	return func(c *Cache) { c.request = fn }
}

// WithDropFunc sets the sink for packets drained after retry exhaustion.
func WithDropFunc(fn DropFunc) Option {
	return func(c *Cache) { c.drop = fn }
}
