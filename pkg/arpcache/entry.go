package arpcache

import (
	"fmt"
	"math"
	"net"
	"net/netip"
	"time"
)

// State is the resolution state of a cache entry.
type State uint8

const (
	// Fresh means the entry holds a current resolution. A newly added entry
	// also starts Fresh with no link address yet; callers transition it via
	// BeginAwaitingReply before relying on it.
	Fresh State = iota
	// AwaitingReply means a resolution request is outstanding and packets
	// queue behind it.
	AwaitingReply
	// Failed means resolution was abandoned after exhausting retries.
	Failed
	// Permanent marks a user-configured static entry that never expires.
	Permanent
	// AutoGenerated marks a statically inserted entry tagged for bulk
	// removal, distinct from user-configured permanent entries.
	AutoGenerated
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "FRESH"
	case AwaitingReply:
		return "AWAITING_REPLY"
	case Failed:
		return "FAILED"
	case Permanent:
		return "PERMANENT"
	case AutoGenerated:
		return "AUTO_GENERATED"
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// InfiniteTimeout is returned by Entry.Timeout for states that never expire.
const InfiniteTimeout = time.Duration(math.MaxInt64)

// Entry is the per-destination resolution state machine. Entries are created
// and destroyed only by their owning Cache; all mutation goes through the
// methods below, and calls that violate a precondition panic with a
// *PreconditionError.
type Entry struct {
	cache    *Cache
	id       uint64
	addr     netip.Addr
	lladdr   net.HardwareAddr
	state    State
	retries  uint32
	lastSeen time.Duration
	pending  []PendingPacket
}

// Addr returns the network-layer address this entry resolves.
func (e *Entry) Addr() netip.Addr {
	return e.addr
}

// LinkAddr returns the resolved link-layer address, nil if not yet resolved.
func (e *Entry) LinkAddr() net.HardwareAddr {
	return e.lladdr
}

// SetLinkAddr sets the link-layer address without changing state.
func (e *Entry) SetLinkAddr(lladdr net.HardwareAddr) {
	e.lladdr = lladdr
}

// State returns the current resolution state.
func (e *Entry) State() State {
	return e.state
}

func (e *Entry) IsFresh() bool         { return e.state == Fresh }
func (e *Entry) IsAwaitingReply() bool { return e.state == AwaitingReply }
func (e *Entry) IsFailed() bool        { return e.state == Failed }
func (e *Entry) IsPermanent() bool     { return e.state == Permanent }
func (e *Entry) IsAutoGenerated() bool { return e.state == AutoGenerated }

// Retries returns the number of resolution retries issued so far. It is
// meaningful only while the entry is awaiting a reply.
func (e *Entry) Retries() uint32 {
	return e.retries
}

// LastSeen returns the virtual time of the last state-entry event.
func (e *Entry) LastSeen() time.Duration {
	return e.lastSeen
}

// PendingLen returns the number of queued packets.
func (e *Entry) PendingLen() int {
	return len(e.pending)
}

// MarkFresh records a successful resolution. The entry must be awaiting a
// reply.
func (e *Entry) MarkFresh(lladdr net.HardwareAddr) {
	if e.state != AwaitingReply {
		violation("MarkFresh", "entry %s is %s, not %s", e.addr, e.state, AwaitingReply)
	}
	e.lladdr = lladdr
	e.state = Fresh
	e.retries = 0
	e.updateSeen()
}

// MarkFailed abandons resolution. Valid from Fresh, AwaitingReply or Failed.
func (e *Entry) MarkFailed() {
	if e.state != Fresh && e.state != AwaitingReply && e.state != Failed {
		violation("MarkFailed", "entry %s is %s", e.addr, e.state)
	}
	e.state = Failed
	e.retries = 0
	e.updateSeen()
}

// MarkPermanent pins the entry as a static resolution that never expires.
// The link address must already be set.
func (e *Entry) MarkPermanent() {
	if len(e.lladdr) == 0 {
		violation("MarkPermanent", "entry %s has no link address", e.addr)
	}
	e.state = Permanent
	e.retries = 0
	e.updateSeen()
}

// MarkAutoGenerated pins the entry as a bulk-removable static resolution.
// The link address must already be set.
func (e *Entry) MarkAutoGenerated() {
	if len(e.lladdr) == 0 {
		violation("MarkAutoGenerated", "entry %s has no link address", e.addr)
	}
	e.state = AutoGenerated
	e.retries = 0
	e.updateSeen()
}

// BeginAwaitingReply moves the entry into the awaiting-reply state, queues
// the first waiting packet and arms the cache's shared sweep timer. The
// entry must be Fresh or Failed with an empty queue.
func (e *Entry) BeginAwaitingReply(pp PendingPacket) {
	if e.state != Fresh && e.state != Failed {
		violation("BeginAwaitingReply", "entry %s is %s", e.addr, e.state)
	}
	if len(e.pending) != 0 {
		violation("BeginAwaitingReply", "entry %s has %d packets queued", e.addr, len(e.pending))
	}
	if pp.Packet == nil {
		violation("BeginAwaitingReply", "nil packet for %s", e.addr)
	}
	e.state = AwaitingReply
	e.pending = append(e.pending, pp)
	e.updateSeen()
	e.cache.startWaitReplyTimer()
}

// EnqueueWhileAwaiting queues another packet behind the outstanding
// resolution. It reports false, leaving the queue unchanged, when the queue
// is at capacity; the caller decides what to do with the packet then.
func (e *Entry) EnqueueWhileAwaiting(pp PendingPacket) bool {
	if e.state != AwaitingReply {
		violation("EnqueueWhileAwaiting", "entry %s is %s, not %s", e.addr, e.state, AwaitingReply)
	}
	if len(e.pending) >= e.cache.pendingQueueSize {
		return false
	}
	e.pending = append(e.pending, pp)
	return true
}

// DequeueOldest removes and returns the oldest queued packet. ok is false
// when the queue is empty.
func (e *Entry) DequeueOldest() (pp PendingPacket, ok bool) {
	if len(e.pending) == 0 {
		return PendingPacket{}, false
	}
	pp = e.pending[0]
	e.pending[0] = PendingPacket{}
	e.pending = e.pending[1:]
	return pp, true
}

// Timeout returns how long the entry stays valid in its current state.
func (e *Entry) Timeout() time.Duration {
	switch e.state {
	case AwaitingReply:
		return e.cache.waitReplyTimeout
	case Failed:
		return e.cache.deadTimeout
	case Fresh:
		return e.cache.aliveTimeout
	case Permanent, AutoGenerated:
		return InfiniteTimeout
	}
	return 0
}

// IsExpired reports whether the entry has outlived its state's timeout.
func (e *Entry) IsExpired() bool {
	return e.cache.sched.Now()-e.lastSeen > e.Timeout()
}

func (e *Entry) clearPending() {
	e.pending = nil
}

func (e *Entry) updateSeen() {
	e.lastSeen = e.cache.sched.Now()
}

// String renders the entry for diagnostics.
func (e *Entry) String() string {
	timeout := "infinite"
	if t := e.Timeout(); t != InfiniteTimeout {
		timeout = t.String()
	}
	return fmt.Sprintf("%s lladdr %s state %s last seen %s timeout %s",
		e.addr, e.lladdr, e.state, e.lastSeen, timeout)
}
