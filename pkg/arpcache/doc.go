// Package arpcache resolves network-layer addresses to link-layer addresses
// and manages the lifecycle of those resolutions under timeout, retry and
// queuing constraints.
//
// Each destination address gets one Entry, a small state machine:
//   - Fresh: a current resolution (or a just-created entry with none yet)
//   - AwaitingReply: a request is outstanding; packets queue behind it
//   - Failed: retries were exhausted
//   - Permanent / AutoGenerated: static entries that never expire
//
// Retries are driven by one shared sweep timer for the whole table rather
// than a timer per entry: the timer is armed lazily when the first entry
// starts awaiting a reply, each firing rescans all awaiting entries, and it
// disarms itself once none need another retry. Entries that exhaust their
// retries are failed and their queued packets drained, in enqueue order,
// through the configured drop sink with headers reattached.
//
// The cache is single-threaded: it is meant to be driven entirely from
// callbacks dispatched by a Scheduler (see pkg/sim) in virtual-time order.
// Calls that violate the state machine panic with a *PreconditionError;
// recoverable conditions (full queue, lookup miss) are ordinary return
// values.
//
// Example:
//
//	s := sim.New()
//	cache := arpcache.New(iface, s,
//		arpcache.WithMaxRetries(3),
//		arpcache.WithRequestFunc(sendRequest),
//		arpcache.WithDropFunc(reportDrop),
//	)
//
//	e := cache.Add(dst)
//	e.BeginAwaitingReply(arpcache.PendingPacket{Packet: pkt, Header: hdr})
//	s.Run()
package arpcache
