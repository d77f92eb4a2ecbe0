package topology

import (
	"fmt"
	"regexp"
	"time"

	"github.com/icxcommander/icxcommander/internal/identity"
	"github.com/icxcommander/icxcommander/internal/inventory"
	"go.uber.org/zap"
)

// Runner is the slice of the terminal channel discovery needs
type Runner interface {
	Run(command string, timeout time.Duration) (string, error)
}

// Hop is one resolved (port, mac, ip) triple from an L2 trace
type Hop struct {
	Port string
	MAC  string
	IP   string
}

// trace-l2 show rows: hop number, ingress port, MAC, optional IP
var traceRowRE = regexp.MustCompile(`(?m)^\s*\d+\s+(\d+/\d+/\d+)\s+([0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4})(?:\s+(\d+\.\d+\.\d+\.\d+))?`)

// ParseTrace extracts hop triples from "trace-l2 show" output
func ParseTrace(output string) []Hop {
	var hops []Hop
	for _, m := range traceRowRE.FindAllStringSubmatch(output, -1) {
		hops = append(hops, Hop{
			Port: m[1],
			MAC:  identity.NormalizeMAC(m[2]),
			IP:   m[3],
		})
	}
	return hops
}

// Options tunes the trace-l2 polling loop
type Options struct {
	TraceAttempts  int
	TraceDelay     time.Duration
	CommandTimeout time.Duration
}

// Discoverer reads a device's adjacency and resolves the management
// addresses LLDP does not report.
type Discoverer struct {
	opts   Options
	logger *zap.Logger
}

// NewDiscoverer creates a topology discoverer
func NewDiscoverer(opts Options, logger *zap.Logger) *Discoverer {
	if opts.TraceAttempts <= 0 {
		opts.TraceAttempts = 3
	}
	if opts.TraceDelay <= 0 {
		opts.TraceDelay = 2 * time.Second
	}
	return &Discoverer{opts: opts, logger: logger}
}

// DiscoverNeighbors parses the device's LLDP table and, when switch
// neighbors are missing management addresses, runs an L2 trace over the
// default untagged VLAN to resolve them. A factory-default peer only
// becomes reachable through this merge.
func (d *Discoverer) DiscoverNeighbors(runner Runner, deviceIP string) ([]inventory.Neighbor, error) {
	out, err := runner.Run("show lldp neighbors detail", d.opts.CommandTimeout)
	if err != nil {
		return nil, fmt.Errorf("reading LLDP table on %s: %w", deviceIP, err)
	}

	neighbors := ParseNeighbors(out)

	needsTrace := false
	for _, n := range neighbors {
		if n.Type == inventory.NeighborSwitch && !n.HasManagementAddress() {
			needsTrace = true
			break
		}
	}
	if !needsTrace {
		return neighbors, nil
	}

	hops, err := d.traceL2(runner)
	if err != nil {
		// Trace failure is soft: LLDP data alone is still useful.
		d.logger.Warn("L2 trace failed, unresolved neighbors remain",
			zap.String("device", deviceIP),
			zap.Error(err))
		return neighbors, nil
	}

	byMAC := make(map[string]string, len(hops))
	for _, hop := range hops {
		if hop.IP != "" && hop.IP != "0.0.0.0" {
			byMAC[hop.MAC] = hop.IP
		}
	}

	for i := range neighbors {
		n := &neighbors[i]
		if n.HasManagementAddress() {
			continue
		}
		if ip, ok := byMAC[n.ChassisID]; ok {
			n.ManagementAddress = ip
			d.logger.Info("Neighbor address resolved via L2 trace",
				zap.String("device", deviceIP),
				zap.String("neighbor_mac", n.ChassisID),
				zap.String("neighbor_ip", ip))
		}
	}

	return neighbors, nil
}

// traceL2 kicks off a trace on VLAN 1, the default untagged VLAN on a
// factory-default device, and polls for results with backoff.
func (d *Discoverer) traceL2(runner Runner) ([]Hop, error) {
	if _, err := runner.Run("trace-l2 vlan 1", d.opts.CommandTimeout); err != nil {
		return nil, fmt.Errorf("starting trace: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.opts.TraceAttempts; attempt++ {
		time.Sleep(d.opts.TraceDelay * time.Duration(attempt))

		out, err := runner.Run("trace-l2 show", d.opts.CommandTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		if hops := ParseTrace(out); len(hops) > 0 {
			return hops, nil
		}
		lastErr = fmt.Errorf("trace produced no hops after attempt %d", attempt)
	}
	return nil, lastErr
}
