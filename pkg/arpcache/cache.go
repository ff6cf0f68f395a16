package arpcache

import (
	"bytes"
	"net"
	"net/netip"
	"time"

	"github.com/projectdiscovery/arpcache/pkg/sim"
	"github.com/projectdiscovery/gologger"
)

// Scheduler is the narrow contract the cache needs from the event engine:
// delayed callbacks, cancellation, pending checks and the current virtual
// time. *sim.Simulator satisfies it.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) sim.EventID
	Cancel(id sim.EventID)
	IsPending(id sim.EventID) bool
	Now() time.Duration
}

// Interface is the capability the cache needs from the network interface it
// serves: a name and an index for diagnostics. One cache exists per
// interface.
type Interface interface {
	Name() string
	Index() int
}

// RequestFunc is invoked whenever a resolution attempt (initial or retry)
// is due for target. The cache makes no assumption about delivery success;
// a reply, if any, arrives later as a MarkFresh call on the entry.
type RequestFunc func(c *Cache, target netip.Addr)

// DropFunc is invoked once per queued packet drained after retry
// exhaustion, with the packet's header still attached.
type DropFunc func(pp PendingPacket)

// Cache resolves network-layer addresses to link-layer addresses and owns
// the lifecycle of every resolution: timeouts, bounded per-destination
// packet queues, and a retry sweep driven by a single shared timer instead
// of one timer per entry.
//
// The cache is single-threaded by design: all mutation happens inside
// scheduler callbacks dispatched in virtual-time order, so no locking is
// needed or provided.
type Cache struct {
	iface Interface
	sched Scheduler

	aliveTimeout     time.Duration
	deadTimeout      time.Duration
	waitReplyTimeout time.Duration
	maxRetries       uint32
	pendingQueueSize int

	request RequestFunc
	drop    DropFunc

	entries    map[netip.Addr]*Entry
	sweepTimer sim.EventID
	nextID     uint64
	dropped    uint64
}

// New creates a cache for one network interface driven by the given
// scheduler. Timeouts, retry and queue limits start at the package
// defaults (120s alive, 100s dead, 1s wait-reply, 3 retries, queue of 3)
// and can be tuned with options.
func New(iface Interface, sched Scheduler, opts ...Option) *Cache {
	if iface == nil {
		panic("arpcache: nil interface")
	}
	if sched == nil {
		panic("arpcache: nil scheduler")
	}
	c := &Cache{
		iface:            iface,
		sched:            sched,
		aliveTimeout:     DefaultAliveTimeout,
		deadTimeout:      DefaultDeadTimeout,
		waitReplyTimeout: DefaultWaitReplyTimeout,
		maxRetries:       DefaultMaxRetries,
		pendingQueueSize: DefaultPendingQueueSize,
		entries:          make(map[netip.Addr]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interface returns the interface this cache serves.
func (c *Cache) Interface() Interface {
	return c.iface
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Dropped returns the total number of packets handed to the drop sink.
func (c *Cache) Dropped() uint64 {
	return c.dropped
}

func (c *Cache) AliveTimeout() time.Duration     { return c.aliveTimeout }
func (c *Cache) DeadTimeout() time.Duration      { return c.deadTimeout }
func (c *Cache) WaitReplyTimeout() time.Duration { return c.waitReplyTimeout }

func (c *Cache) SetAliveTimeout(d time.Duration)     { c.aliveTimeout = d }
func (c *Cache) SetDeadTimeout(d time.Duration)      { c.deadTimeout = d }
func (c *Cache) SetWaitReplyTimeout(d time.Duration) { c.waitReplyTimeout = d }

// SetRequestFunc sets the callback used to emit resolution requests.
func (c *Cache) SetRequestFunc(fn RequestFunc) {
	c.request = fn
}

// SetDropFunc sets the sink for packets drained after retry exhaustion.
func (c *Cache) SetDropFunc(fn DropFunc) {
	c.drop = fn
}

// Lookup returns the entry for addr, nil if none exists.
func (c *Cache) Lookup(addr netip.Addr) *Entry {
	return c.entries[addr]
}

// LookupInverse returns every entry whose resolved link address equals
// lladdr. It scans the whole table and is meant for reverse and proxy
// lookups, not the hot path.
func (c *Cache) LookupInverse(lladdr net.HardwareAddr) []*Entry {
	var matches []*Entry
	for _, e := range c.entries {
		if bytes.Equal(e.lladdr, lladdr) {
			matches = append(matches, e)
		}
	}
	return matches
}

// Add creates a Fresh entry for addr with no link address yet. Adding an
// address that already has an entry is a programmer error.
func (c *Cache) Add(addr netip.Addr) *Entry {
	if _, ok := c.entries[addr]; ok {
		violation("Add", "duplicate entry for %s", addr)
	}
	c.nextID++
	e := &Entry{
		cache:    c,
		id:       c.nextID,
		addr:     addr,
		state:    Fresh,
		lastSeen: c.sched.Now(),
	}
	c.entries[addr] = e
	return e
}

// AddPermanent creates and pins a static entry in one step.
func (c *Cache) AddPermanent(addr netip.Addr, lladdr net.HardwareAddr) *Entry {
	e := c.Add(addr)
	e.SetLinkAddr(lladdr)
	e.MarkPermanent()
	return e
}

// AddAutoGenerated creates and pins a bulk-removable static entry in one
// step.
func (c *Cache) AddAutoGenerated(addr netip.Addr, lladdr net.HardwareAddr) *Entry {
	e := c.Add(addr)
	e.SetLinkAddr(lladdr)
	e.MarkAutoGenerated()
	return e
}

// Remove erases the entry from the table and discards its pending queue
// without notifying the drop sink: removal is an administrative delete, not
// a resolution failure. Entries are matched by their opaque ID, never by
// pointer identity; removing an entry the cache no longer owns logs a
// warning and does nothing.
func (c *Cache) Remove(e *Entry) {
	if e == nil {
		gologger.Warning().Msgf("remove of nil entry ignored")
		return
	}
	owned, ok := c.entries[e.addr]
	if !ok || owned.id != e.id {
		gologger.Warning().Msgf("entry %s not found in cache for %s", e.addr, c.iface.Name())
		return
	}
	delete(c.entries, e.addr)
	e.clearPending()
}

// Flush removes every entry and cancels the sweep timer unconditionally.
func (c *Cache) Flush() {
	for addr, e := range c.entries {
		e.clearPending()
		delete(c.entries, addr)
	}
	c.sched.Cancel(c.sweepTimer)
}

// RemoveAutoGeneratedEntries removes only auto-generated entries, leaving
// all other entries untouched.
func (c *Cache) RemoveAutoGeneratedEntries() {
	for addr, e := range c.entries {
		if e.IsAutoGenerated() {
			e.clearPending()
			delete(c.entries, addr)
		}
	}
}

// startWaitReplyTimer arms the shared sweep timer unless it is already
// pending. Entries entering the awaiting-reply state call this; the timer
// disarms itself once no entry needs another retry.
func (c *Cache) startWaitReplyTimer() {
	if c.sched.IsPending(c.sweepTimer) {
		return
	}
	gologger.Debug().Msgf("starting wait reply timer at %s for %s", c.sched.Now(), c.waitReplyTimeout)
	c.sweepTimer = c.sched.Schedule(c.waitReplyTimeout, c.handleWaitReplyTimeout)
}

// handleWaitReplyTimeout is the sweep: every awaiting-reply entry either
// gets another resolution request or, with retries exhausted, fails and has
// its queue drained through the drop sink in FIFO order. All awaiting
// entries share this one timer, so they retry on the same fixed cadence
// regardless of when each entered the state.
func (c *Cache) handleWaitReplyTimeout() {
	restart := false
	for _, e := range c.entries {
		if !e.IsAwaitingReply() {
			continue
		}
		if e.retries < c.maxRetries {
			gologger.Debug().Msgf("wait reply for %s expired -- retransmitting request (retries=%d)", e.addr, e.retries)
			if c.request != nil {
				c.request(c, e.addr)
			}
			restart = true
			e.retries++
			e.updateSeen()
			continue
		}
		gologger.Debug().Msgf("wait reply for %s expired -- dropping since max retries exceeded (retries=%d)", e.addr, e.retries)
		e.MarkFailed()
		for {
			pp, ok := e.DequeueOldest()
			if !ok {
				break
			}
			c.dropped++
			if c.drop != nil {
				c.drop(pp)
			}
		}
	}
	if restart {
		gologger.Debug().Msgf("restarting wait reply timer at %s", c.sched.Now())
		c.sweepTimer = c.sched.Schedule(c.waitReplyTimeout, c.handleWaitReplyTimeout)
	}
}
