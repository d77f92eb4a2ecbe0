// Package topology turns LLDP neighbor tables and L2 trace output into the
// adjacency view the orchestrator walks.
package topology

import (
	"regexp"
	"strings"

	"github.com/icxcommander/icxcommander/internal/identity"
	"github.com/icxcommander/icxcommander/internal/inventory"
)

// section markers in "show lldp neighbors detail" output
var (
	localPortRE = regexp.MustCompile(`^Local port:\s*(\S+)`)
	chassisRE   = regexp.MustCompile(`Chassis ID \((?:MAC address|network address)\):\s*([0-9a-fA-F.:\-]+)`)
	portIDRE    = regexp.MustCompile(`Port ID \([^)]*\):\s*(\S+)`)
	sysNameRE   = regexp.MustCompile(`System name\s*:\s*"?([^"\r\n]*)"?`)
	sysDescRE   = regexp.MustCompile(`System description\s*:\s*"?([^"\r\n]*)"?`)
	mgmtAddrRE  = regexp.MustCompile(`Management address \(IPv4\):\s*([0-9.]+)`)
)

// ParseNeighbors parses "show lldp neighbors detail" output. Each "Local
// port:" line opens a section; the remaining markers fill the neighbor in
// until the next section starts.
func ParseNeighbors(output string) []inventory.Neighbor {
	var neighbors []inventory.Neighbor
	var current *inventory.Neighbor

	flush := func() {
		if current != nil && current.LocalPort != "" {
			current.Type = Classify(current.SystemName, current.SystemDescription)
			if current.Type == inventory.NeighborAP {
				current.APModel = ParseAPModel(current.SystemDescription)
			}
			neighbors = append(neighbors, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := localPortRE.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = &inventory.Neighbor{LocalPort: m[1]}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case chassisRE.MatchString(line):
			current.ChassisID = identity.NormalizeMAC(chassisRE.FindStringSubmatch(line)[1])
		case portIDRE.MatchString(line):
			current.PortID = portIDRE.FindStringSubmatch(line)[1]
		case sysNameRE.MatchString(line) && current.SystemName == "":
			current.SystemName = strings.TrimSpace(sysNameRE.FindStringSubmatch(line)[1])
		case sysDescRE.MatchString(line) && current.SystemDescription == "":
			current.SystemDescription = strings.TrimSpace(sysDescRE.FindStringSubmatch(line)[1])
		case mgmtAddrRE.MatchString(line):
			current.ManagementAddress = mgmtAddrRE.FindStringSubmatch(line)[1]
		}
	}
	flush()

	return neighbors
}

// Classify derives the neighbor type from its advertised name and
// description. ICX anywhere means another switch; Ruckus AP naming means an
// access point; anything else stays unknown and is left alone.
func Classify(systemName, systemDescription string) inventory.NeighborType {
	name := strings.ToUpper(systemName)
	desc := strings.ToUpper(systemDescription)

	if strings.Contains(name, "ICX") || strings.Contains(desc, "ICX") {
		return inventory.NeighborSwitch
	}
	if strings.Contains(desc, "ACCESS POINT") || strings.Contains(desc, "WIRELESS AP") {
		return inventory.NeighborAP
	}
	// Ruckus APs default their system name to "RuckusAP" or the AP model.
	if strings.Contains(name, "RUCKUSAP") || strings.HasPrefix(name, "AP") {
		return inventory.NeighborAP
	}
	if apModelRE.MatchString(systemDescription) {
		return inventory.NeighborAP
	}
	return inventory.NeighborUnknown
}

var apModelRE = regexp.MustCompile(`\bRuckus\s+([A-Z][0-9]{3}[A-Za-z]*)\b`)

// ParseAPModel extracts the AP model from a system description such as
// "Ruckus R350 Multimedia Hotzone Wireless AP": the token after "Ruckus".
func ParseAPModel(systemDescription string) string {
	if m := apModelRE.FindStringSubmatch(systemDescription); m != nil {
		return m[1]
	}
	fields := strings.Fields(systemDescription)
	for i, f := range fields {
		if strings.EqualFold(f, "Ruckus") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
