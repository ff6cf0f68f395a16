package arpcache

import (
	"net/netip"

	"github.com/rs/xid"
)

// Packet is an opaque network payload waiting on address resolution. The
// cache never inspects the payload; the trace ID exists so a packet can be
// followed through queueing and drop reporting.
type Packet struct {
	TraceID xid.ID
	Payload []byte
}

// NewPacket wraps a payload with a fresh trace ID.
func NewPacket(payload []byte) *Packet {
	return &Packet{TraceID: xid.New(), Payload: payload}
}

// PacketHeader carries the network-layer header that was stripped from a
// queued payload. Wire encoding is out of scope; only the fields needed for
// routing decisions and drop diagnostics are kept.
type PacketHeader struct {
	Source      netip.Addr
	Destination netip.Addr
	Protocol    uint8
}

// PendingPacket couples a queued payload with its network header so the
// header stays attached through queueing, delivery and drop reporting.
type PendingPacket struct {
	Packet *Packet
	Header PacketHeader
}
