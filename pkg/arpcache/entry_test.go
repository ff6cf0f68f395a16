package arpcache

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/projectdiscovery/arpcache/pkg/sim"
)

type testIface struct {
	name  string
	index int
}

func (i testIface) Name() string { return i.name }
func (i testIface) Index() int   { return i.index }

func testMAC(last byte) net.HardwareAddr {
	return net.HardwareAddr{0xaa, 0xbb, 0xcc, 0x00, 0x00, last}
}

func testPending(dst netip.Addr, payload string) PendingPacket {
	return PendingPacket{
		Packet: NewPacket([]byte(payload)),
		Header: PacketHeader{
			Source:      netip.MustParseAddr("10.0.0.1"),
			Destination: dst,
			Protocol:    17,
		},
	}
}

// mustViolate runs fn and fails the test unless it panics with a
// *PreconditionError.
func mustViolate(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("%s: expected precondition violation, got none", op)
		}
		if _, ok := r.(*PreconditionError); !ok {
			t.Fatalf("%s: panic value %v (%T), want *PreconditionError", op, r, r)
		}
	}()
	fn()
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *sim.Simulator) {
	t.Helper()
	s := sim.New()
	return New(testIface{name: "eth0", index: 2}, s, opts...), s
}

func TestEntryTimeoutPerState(t *testing.T) {
	c, _ := newTestCache(t,
		WithAliveTimeout(30*time.Second),
		WithDeadTimeout(10*time.Second),
		WithWaitReplyTimeout(250*time.Millisecond),
	)
	addr := netip.MustParseAddr("10.0.0.2")

	tests := []struct {
		name  string
		setup func() *Entry
		want  time.Duration
	}{
		{
			name:  "fresh",
			setup: func() *Entry { return c.Add(addr) },
			want:  30 * time.Second,
		},
		{
			name: "awaiting reply",
			setup: func() *Entry {
				e := c.Lookup(addr)
				e.BeginAwaitingReply(testPending(addr, "p"))
				return e
			},
			want: 250 * time.Millisecond,
		},
		{
			name: "failed",
			setup: func() *Entry {
				e := c.Lookup(addr)
				e.MarkFailed()
				return e
			},
			want: 10 * time.Second,
		},
		{
			name: "permanent",
			setup: func() *Entry {
				return c.AddPermanent(netip.MustParseAddr("10.0.0.3"), testMAC(3))
			},
			want: InfiniteTimeout,
		},
		{
			name: "auto generated",
			setup: func() *Entry {
				return c.AddAutoGenerated(netip.MustParseAddr("10.0.0.4"), testMAC(4))
			},
			want: InfiniteTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.setup()
			if got := e.Timeout(); got != tt.want {
				t.Errorf("Timeout() in %s = %s, want %s", e.State(), got, tt.want)
			}
		})
	}
}

func TestEntryStateTransitions(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")

	t.Run("resolve cycle", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		if !e.IsFresh() {
			t.Fatalf("new entry state = %s, want %s", e.State(), Fresh)
		}
		if e.LinkAddr() != nil {
			t.Fatalf("new entry has link address %s", e.LinkAddr())
		}

		e.BeginAwaitingReply(testPending(addr, "p"))
		if !e.IsAwaitingReply() {
			t.Fatalf("state = %s, want %s", e.State(), AwaitingReply)
		}
		if e.PendingLen() != 1 {
			t.Fatalf("pending = %d, want 1", e.PendingLen())
		}

		e.MarkFresh(testMAC(2))
		if !e.IsFresh() || e.Retries() != 0 {
			t.Fatalf("after MarkFresh: state=%s retries=%d", e.State(), e.Retries())
		}
		if e.LinkAddr().String() != testMAC(2).String() {
			t.Fatalf("link addr = %s, want %s", e.LinkAddr(), testMAC(2))
		}
	})

	t.Run("failed entry can retry", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		e.MarkFailed()
		if !e.IsFailed() {
			t.Fatalf("state = %s, want %s", e.State(), Failed)
		}
		// Queue must have been left empty by the failure path, so a new
		// resolution round can start.
		e.BeginAwaitingReply(testPending(addr, "retry"))
		if !e.IsAwaitingReply() {
			t.Fatalf("state = %s, want %s", e.State(), AwaitingReply)
		}
	})

	t.Run("mark failed is idempotent", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		e.MarkFailed()
		e.MarkFailed()
		if !e.IsFailed() {
			t.Fatalf("state = %s, want %s", e.State(), Failed)
		}
	})
}

func TestEntryPreconditionViolations(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")

	t.Run("MarkFresh on fresh entry", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		mustViolate(t, "MarkFresh", func() { e.MarkFresh(testMAC(2)) })
	})

	t.Run("MarkPermanent without link address", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		mustViolate(t, "MarkPermanent", func() { e.MarkPermanent() })
	})

	t.Run("MarkAutoGenerated without link address", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		mustViolate(t, "MarkAutoGenerated", func() { e.MarkAutoGenerated() })
	})

	t.Run("MarkFailed on permanent entry", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.AddPermanent(addr, testMAC(2))
		mustViolate(t, "MarkFailed", func() { e.MarkFailed() })
	})

	t.Run("BeginAwaitingReply while awaiting", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		e.BeginAwaitingReply(testPending(addr, "p"))
		mustViolate(t, "BeginAwaitingReply", func() { e.BeginAwaitingReply(testPending(addr, "q")) })
	})

	t.Run("BeginAwaitingReply with nil packet", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		mustViolate(t, "BeginAwaitingReply", func() { e.BeginAwaitingReply(PendingPacket{}) })
	})

	t.Run("EnqueueWhileAwaiting on fresh entry", func(t *testing.T) {
		c, _ := newTestCache(t)
		e := c.Add(addr)
		mustViolate(t, "EnqueueWhileAwaiting", func() { e.EnqueueWhileAwaiting(testPending(addr, "p")) })
	})
}

func TestEnqueueCapacity(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")
	c, _ := newTestCache(t, WithPendingQueueSize(3))
	e := c.Add(addr)
	e.BeginAwaitingReply(testPending(addr, "first"))

	// Drain the first packet so the whole capacity is exercised from an
	// empty queue while still awaiting a reply.
	if _, ok := e.DequeueOldest(); !ok {
		t.Fatal("expected the initial packet to be queued")
	}

	for i := 1; i <= 3; i++ {
		if !e.EnqueueWhileAwaiting(testPending(addr, "p")) {
			t.Fatalf("enqueue %d rejected below capacity", i)
		}
		if e.PendingLen() != i {
			t.Fatalf("pending = %d, want %d", e.PendingLen(), i)
		}
	}

	if e.EnqueueWhileAwaiting(testPending(addr, "overflow")) {
		t.Fatal("enqueue beyond capacity succeeded")
	}
	if e.PendingLen() != 3 {
		t.Fatalf("pending = %d after rejected enqueue, want 3", e.PendingLen())
	}
}

func TestDequeueOldestOrder(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")
	c, _ := newTestCache(t)
	e := c.Add(addr)

	first := testPending(addr, "first")
	second := testPending(addr, "second")
	e.BeginAwaitingReply(first)
	if !e.EnqueueWhileAwaiting(second) {
		t.Fatal("enqueue rejected below capacity")
	}

	got, ok := e.DequeueOldest()
	if !ok || got.Packet.TraceID != first.Packet.TraceID {
		t.Fatalf("first dequeue = %v ok=%v, want the oldest packet", got, ok)
	}
	got, ok = e.DequeueOldest()
	if !ok || got.Packet.TraceID != second.Packet.TraceID {
		t.Fatalf("second dequeue = %v ok=%v, want the second packet", got, ok)
	}
	if _, ok := e.DequeueOldest(); ok {
		t.Fatal("dequeue on empty queue reported ok")
	}
}

func TestEntryIsExpired(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")
	c, s := newTestCache(t, WithAliveTimeout(2*time.Second))
	e := c.Add(addr)

	s.RunUntil(2 * time.Second)
	if e.IsExpired() {
		t.Error("entry expired exactly at its timeout; expiry must be strict")
	}

	s.RunUntil(2*time.Second + time.Millisecond)
	if !e.IsExpired() {
		t.Error("entry not expired past its alive timeout")
	}

	perm := c.AddPermanent(netip.MustParseAddr("10.0.0.3"), testMAC(3))
	s.RunUntil(time.Hour)
	if perm.IsExpired() {
		t.Error("permanent entry expired")
	}
}

func TestEntryString(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.2")
	c, _ := newTestCache(t)
	e := c.AddPermanent(addr, testMAC(2))

	got := e.String()
	want := "10.0.0.2 lladdr aa:bb:cc:00:00:02 state PERMANENT last seen 0s timeout infinite"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
