package runner

import (
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/projectdiscovery/arpcache/pkg/arpcache"
	"github.com/projectdiscovery/arpcache/pkg/sim"
	"github.com/projectdiscovery/gcache"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/utils/batcher"
	errorutil "github.com/projectdiscovery/utils/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// simIface is the narrow interface capability handed to the cache.
type simIface struct {
	name  string
	index int
}

func (i simIface) Name() string { return i.name }
func (i simIface) Index() int   { return i.index }

// Runner replays a resolution scenario through the cache and reports the
// outcome.
type Runner struct {
	options *Options

	sim       *sim.Simulator
	cache     *arpcache.Cache
	neighbors map[netip.Addr]net.HardwareAddr
	targets   map[netip.Addr]struct{}

	// resolved records destination -> link address as replies arrive.
	resolved gcache.Cache[string, string]

	delivered  int
	requests   int
	localDrops int
}

// NewRunner creates a runner from parsed options.
func NewRunner(options *Options) (*Runner, error) {
	if options.TargetCount <= 0 && options.Scenario == "" {
		return nil, errorutil.New("count must be positive")
	}
	return &Runner{
		options:   options,
		neighbors: make(map[netip.Addr]net.HardwareAddr),
		targets:   make(map[netip.Addr]struct{}),
		resolved: gcache.New[string, string](1024).
			LRU().
			Expiration(time.Hour).
			Build(),
	}, nil
}

// Run executes the scenario and prints the resulting neighbor table.
func (r *Runner) Run() error {
	if r.options.ListInterfaces {
		return r.listInterfaces()
	}

	scenario, err := r.loadScenario()
	if err != nil {
		return err
	}

	r.sim = sim.New()
	r.cache = arpcache.New(
		simIface{name: r.options.Iface, index: 1},
		r.sim,
		arpcache.WithAliveTimeout(time.Duration(r.options.AliveTimeoutSec)*time.Second),
		arpcache.WithDeadTimeout(time.Duration(r.options.DeadTimeoutSec)*time.Second),
		arpcache.WithWaitReplyTimeout(time.Duration(r.options.WaitReplyTimeoutMs)*time.Millisecond),
		arpcache.WithMaxRetries(uint32(r.options.MaxRetries)),
		arpcache.WithPendingQueueSize(r.options.QueueSize),
	)

	// Batch drop reports the way scan logs are batched: the sink stays
	// cheap inside the sweep and the log output arrives grouped.
	dropBatcher := batcher.New(
		batcher.WithMaxCapacity[arpcache.PendingPacket](128),
		batcher.WithFlushInterval[arpcache.PendingPacket](time.Second),
		batcher.WithFlushCallback[arpcache.PendingPacket](func(items []arpcache.PendingPacket) {
			for _, pp := range items {
				gologger.Warning().Msgf("dropped packet %s for %s after retry exhaustion", pp.Packet.TraceID, pp.Header.Destination)
			}
		}),
	)
	go dropBatcher.Run()

	r.cache.SetRequestFunc(r.sendRequest)
	r.cache.SetDropFunc(func(pp arpcache.PendingPacket) {
		dropBatcher.Append(pp)
	})

	for _, n := range scenario.Neighbors {
		switch {
		case n.Permanent:
			r.cache.AddPermanent(n.Addr, n.MAC)
		case n.AutoGenerated:
			r.cache.AddAutoGenerated(n.Addr, n.MAC)
		default:
			r.neighbors[n.Addr] = n.MAC
		}
	}

	for _, send := range scenario.Sends {
		send := send
		r.targets[send.To] = struct{}{}
		r.sim.Schedule(send.At, func() { r.dispatch(send) })
	}

	gologger.Info().Msgf("replaying %d sends to %d destinations on %s", len(scenario.Sends), len(r.targets), r.options.Iface)
	r.sim.Run()

	dropBatcher.Stop()
	dropBatcher.WaitDone()

	if err := r.cache.WriteTable(os.Stdout); err != nil {
		return errorutil.NewWithErr(err).Msgf("could not write neighbor table")
	}
	r.printSummary()
	return nil
}

// Close releases runner resources.
func (r *Runner) Close() {
	if r.resolved != nil {
		r.resolved.Purge()
	}
}

func (r *Runner) loadScenario() (*Scenario, error) {
	if r.options.Scenario != "" {
		gologger.Info().Msgf("loading scenario from %s", r.options.Scenario)
		return LoadScenario(r.options.Scenario)
	}
	gologger.Info().Msgf("synthesizing scenario from %s (%d destinations)", r.options.CIDR, r.options.TargetCount)
	return SynthesizeScenario(r.options.CIDR, r.options.TargetCount)
}

// dispatch hands one packet to the cache, playing the role of the network
// layer above it.
func (r *Runner) dispatch(send Send) {
	e := r.cache.Lookup(send.To)
	if e == nil {
		e = r.cache.Add(send.To)
	}

	pp := arpcache.PendingPacket{
		Packet: arpcache.NewPacket([]byte(send.Payload)),
		Header: arpcache.PacketHeader{
			Source:      netip.MustParseAddr("0.0.0.0"),
			Destination: send.To,
			Protocol:    17,
		},
	}

	switch {
	case e.IsPermanent() || e.IsAutoGenerated():
		r.deliver(pp, e.LinkAddr())
	case e.IsFresh() && e.LinkAddr() != nil && !e.IsExpired():
		r.deliver(pp, e.LinkAddr())
	case e.IsAwaitingReply():
		if !e.EnqueueWhileAwaiting(pp) {
			r.localDrops++
			gologger.Verbose().Msgf("pending queue full for %s, dropping packet %s", send.To, pp.Packet.TraceID)
		}
	case e.IsFailed() && !e.IsExpired():
		// Recently failed destination: do not start another round yet.
		r.localDrops++
		gologger.Verbose().Msgf("destination %s is failed, dropping packet %s", send.To, pp.Packet.TraceID)
	default:
		// Fresh with no (or expired) resolution, or a failed entry past its
		// dead timeout: start a resolution round.
		r.sendRequest(r.cache, send.To)
		e.BeginAwaitingReply(pp)
	}
}

// sendRequest emulates putting a resolution request on the wire. Known
// neighbors answer after the configured latency; unknown destinations stay
// silent and exhaust the cache's retries.
func (r *Runner) sendRequest(c *arpcache.Cache, target netip.Addr) {
	r.requests++
	mac, ok := r.neighbors[target]
	if !ok {
		gologger.Verbose().Msgf("request for %s: no such neighbor", target)
		return
	}
	latency := time.Duration(r.options.ReplyLatencyMs) * time.Millisecond
	r.sim.Schedule(latency, func() { r.handleReply(c, target, mac) })
}

// handleReply delivers a resolution reply: the entry goes fresh and every
// packet queued behind it is sent out.
func (r *Runner) handleReply(c *arpcache.Cache, target netip.Addr, mac net.HardwareAddr) {
	e := c.Lookup(target)
	if e == nil || !e.IsAwaitingReply() {
		// Late duplicate reply, or the entry was removed meanwhile.
		return
	}
	e.MarkFresh(mac)
	_ = r.resolved.Set(target.String(), mac.String())
	gologger.Verbose().Msgf("resolved %s to %s at %s", target, mac, r.sim.Now())
	for {
		pp, ok := e.DequeueOldest()
		if !ok {
			break
		}
		r.deliver(pp, mac)
	}
}

func (r *Runner) deliver(pp arpcache.PendingPacket, mac net.HardwareAddr) {
	r.delivered++
	gologger.Verbose().Msgf("delivered packet %s to %s via %s", pp.Packet.TraceID, pp.Header.Destination, mac)
}

func (r *Runner) printSummary() {
	failed := 0
	for target := range r.targets {
		if e := r.cache.Lookup(target); e != nil && e.IsFailed() {
			failed++
		}
	}
	gologger.Info().Msgf("resolved: %s failed: %s requests: %s delivered: %s dropped: %s (local: %d)",
		au.Green(r.resolved.Len(true)),
		au.Red(failed),
		au.Cyan(r.requests),
		au.Green(r.delivered),
		au.Red(r.cache.Dropped()),
		r.localDrops,
	)
}

// listInterfaces prints the host's network interfaces so a real interface's
// name and link address can be mirrored into a scenario.
func (r *Runner) listInterfaces() error {
	stats, err := psnet.Interfaces()
	if err != nil {
		return errorutil.NewWithErr(err).Msgf("could not list host interfaces")
	}
	for _, st := range stats {
		mac := st.HardwareAddr
		if mac == "" {
			mac = "-"
		}
		gologger.Silent().Msgf("%-16s index=%-3d lladdr=%s", st.Name, st.Index, mac)
	}
	return nil
}
