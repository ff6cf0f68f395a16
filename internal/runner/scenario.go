package runner

import (
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/projectdiscovery/mapcidr"
	errorutil "github.com/projectdiscovery/utils/errors"
	fileutil "github.com/projectdiscovery/utils/file"
	"github.com/tidwall/gjson"
)

// Neighbor is a destination present on the simulated segment. Neighbors
// answer resolution requests; destinations without a neighbor exhaust their
// retries. Permanent and auto-generated neighbors are seeded straight into
// the cache as static entries instead of being resolved.
type Neighbor struct {
	Addr          netip.Addr
	MAC           net.HardwareAddr
	Permanent     bool
	AutoGenerated bool
}

// Send is one packet handed to the cache for a destination at a virtual
// time offset.
type Send struct {
	To      netip.Addr
	At      time.Duration
	Payload string
}

// Scenario describes a replay: which neighbors answer and which packets are
// sent when.
type Scenario struct {
	Neighbors []Neighbor
	Sends     []Send
}

// LoadScenario reads a scenario from a JSON file of the form
//
//	{
//	  "neighbors": [{"ip": "10.0.0.2", "mac": "aa:bb:cc:00:00:02", "permanent": false, "auto_generated": false}],
//	  "sends": [{"to": "10.0.0.2", "at_ms": 100, "payload": "probe"}]
//	}
func LoadScenario(path string) (*Scenario, error) {
	if !fileutil.FileExists(path) {
		return nil, errorutil.New("scenario file %s does not exist", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("could not read scenario %s", path)
	}
	if !gjson.ValidBytes(data) {
		return nil, errorutil.New("scenario file %s is not valid JSON", path)
	}

	scenario := &Scenario{}
	for _, item := range gjson.GetBytes(data, "neighbors").Array() {
		addr, err := netip.ParseAddr(item.Get("ip").String())
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("invalid neighbor ip %q", item.Get("ip").String())
		}
		mac, err := net.ParseMAC(item.Get("mac").String())
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("invalid neighbor mac %q", item.Get("mac").String())
		}
		scenario.Neighbors = append(scenario.Neighbors, Neighbor{
			Addr:          addr,
			MAC:           mac,
			Permanent:     item.Get("permanent").Bool(),
			AutoGenerated: item.Get("auto_generated").Bool(),
		})
	}
	for _, item := range gjson.GetBytes(data, "sends").Array() {
		to, err := netip.ParseAddr(item.Get("to").String())
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("invalid send target %q", item.Get("to").String())
		}
		payload := item.Get("payload").String()
		if payload == "" {
			payload = "probe"
		}
		scenario.Sends = append(scenario.Sends, Send{
			To:      to,
			At:      time.Duration(item.Get("at_ms").Int()) * time.Millisecond,
			Payload: payload,
		})
	}
	return scenario, nil
}

// SynthesizeScenario builds a scenario from a CIDR: the first count usable
// addresses become destinations, every other one gets a neighbor that will
// answer, and each destination receives two packets in quick succession so
// queueing behind an outstanding resolution is exercised.
func SynthesizeScenario(cidr string, count int) (*Scenario, error) {
	ips, err := mapcidr.IPAddresses(cidr)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("could not expand cidr %s", cidr)
	}
	// Drop network and broadcast addresses.
	if len(ips) > 2 {
		ips = ips[1 : len(ips)-1]
	}
	if count > len(ips) {
		count = len(ips)
	}

	scenario := &Scenario{}
	for i := 0; i < count; i++ {
		addr, err := netip.ParseAddr(ips[i])
		if err != nil {
			continue
		}
		if i%2 == 0 {
			scenario.Neighbors = append(scenario.Neighbors, Neighbor{
				Addr: addr,
				MAC:  deriveMAC(addr),
			})
		}
		at := time.Duration(i) * 10 * time.Millisecond
		scenario.Sends = append(scenario.Sends,
			Send{To: addr, At: at, Payload: "probe"},
			Send{To: addr, At: at + 5*time.Millisecond, Payload: "probe"},
		)
	}
	return scenario, nil
}

// deriveMAC fabricates a deterministic locally administered MAC for a
// synthesized neighbor.
func deriveMAC(addr netip.Addr) net.HardwareAddr {
	ip4 := addr.As4()
	return net.HardwareAddr{0x02, 0x50, ip4[0], ip4[1], ip4[2], ip4[3]}
}
