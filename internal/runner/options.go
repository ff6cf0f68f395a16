package runner

import (
	"strconv"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/arpcache/pkg/arpcache"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	envutil "github.com/projectdiscovery/utils/env"
)

var au = aurora.New(aurora.WithColors(true))

// Options contains the configuration options for a cache replay run.
type Options struct {
	Scenario    string
	CIDR        string
	TargetCount int
	Iface       string

	AliveTimeoutSec    int
	DeadTimeoutSec     int
	WaitReplyTimeoutMs int
	MaxRetries         int
	QueueSize          int
	ReplyLatencyMs     int

	Verbose        bool
	Silent         bool
	NoColor        bool
	Version        bool
	ListInterfaces bool
}

// envIntOrDefault reads a positive integer from the environment, falling
// back to def when unset or invalid.
func envIntOrDefault(name string, def int) int {
	envVal := envutil.GetEnvOrDefault(name, "")
	if envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`arpcache replays an address-resolution scenario through a simulated ARP cache and prints the resulting neighbor table`)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringVarP(&options.Scenario, "scenario", "s", "", "scenario file in JSON format (neighbors and sends)"),
		flagSet.StringVar(&options.CIDR, "cidr", "192.168.1.0/24", "cidr to synthesize destinations from when no scenario is given"),
		flagSet.IntVarP(&options.TargetCount, "count", "c", 16, "number of destinations to resolve from the cidr"),
		flagSet.StringVarP(&options.Iface, "interface", "i", "sim0", "name of the simulated interface"),
	)

	flagSet.CreateGroup("cache", "Cache",
		flagSet.IntVarP(&options.AliveTimeoutSec, "alive-timeout", "at", envIntOrDefault("ARPCACHE_ALIVE_TIMEOUT", 120), "seconds a fresh resolution stays current"),
		flagSet.IntVarP(&options.DeadTimeoutSec, "dead-timeout", "dt", envIntOrDefault("ARPCACHE_DEAD_TIMEOUT", 100), "seconds a failed entry is held"),
		flagSet.IntVarP(&options.WaitReplyTimeoutMs, "wait-reply-timeout", "wt", envIntOrDefault("ARPCACHE_WAIT_REPLY_TIMEOUT", 1000), "reply window and retry sweep cadence in milliseconds"),
		flagSet.IntVarP(&options.MaxRetries, "max-retries", "mr", envIntOrDefault("ARPCACHE_MAX_RETRIES", arpcache.DefaultMaxRetries), "request retransmissions before an entry is failed"),
		flagSet.IntVarP(&options.QueueSize, "queue-size", "qs", envIntOrDefault("ARPCACHE_QUEUE_SIZE", arpcache.DefaultPendingQueueSize), "packets queued per outstanding resolution"),
		flagSet.IntVarP(&options.ReplyLatencyMs, "reply-latency", "rl", 50, "simulated reply latency in milliseconds"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVarP(&options.ListInterfaces, "list-interfaces", "li", false, "list host network interfaces then exit"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results in output"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	// configure aurora for logging
	au = aurora.New(aurora.WithColors(true))

	options.configureOutput()

	showBanner()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	// If the user desires verbose output, show verbose output
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}
