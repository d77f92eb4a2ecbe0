package inventory

import (
	"time"

	"github.com/icxcommander/icxcommander/internal/identity"
)

// State is a switch's position in the provisioning lifecycle
type State string

const (
	StateDiscovered            State = "discovered"
	StateBaseConfigApplied     State = "base_config_applied"
	StateManagementConfigured  State = "management_configured"
	StatePortsConfigured       State = "ports_configured"
	StateFullyConfigured       State = "fully_configured"
	StateError                 State = "error"
)

// stateRank orders the happy path for monotonicity checks
var stateRank = map[State]int{
	StateDiscovered:           0,
	StateBaseConfigApplied:    1,
	StateManagementConfigured: 2,
	StatePortsConfigured:      3,
	StateFullyConfigured:      4,
}

// CanTransition reports whether moving from -> to is legal: forward along
// the happy path, or to the error state from anywhere.
func CanTransition(from, to State) bool {
	if to == StateError {
		return true
	}
	fromRank, ok := stateRank[from]
	if !ok {
		return false
	}
	toRank, ok := stateRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

// NeighborType classifies an LLDP peer
type NeighborType string

const (
	NeighborSwitch  NeighborType = "switch"
	NeighborAP      NeighborType = "ap"
	NeighborUnknown NeighborType = "unknown"
)

// Neighbor is one LLDP adjacency as seen from a local port
type Neighbor struct {
	LocalPort         string       `json:"local_port"`
	ChassisID         string       `json:"chassis_id"` // peer MAC
	PortID            string       `json:"port_id"`
	SystemName        string       `json:"system_name"`
	SystemDescription string       `json:"system_description"`
	Type              NeighborType `json:"type"`
	ManagementAddress string       `json:"management_address"` // may be empty or 0.0.0.0 until traced
	APModel           string       `json:"ap_model,omitempty"`
}

// HasManagementAddress reports whether the neighbor advertised a usable
// address; unconfigured peers frequently report 0.0.0.0.
func (n Neighbor) HasManagementAddress() bool {
	return n.ManagementAddress != "" && n.ManagementAddress != "0.0.0.0"
}

// Port tracks what a local port faces and whether it has been configured
type Port struct {
	Type       NeighborType `json:"type"`
	PeerIP     string       `json:"peer_ip,omitempty"`
	Configured bool         `json:"configured"`
}

// Switch is the full record for one managed switch. MAC is the primary key
// and never changes; IP may be rewritten as management addressing lands.
type Switch struct {
	identity.Identity

	Username          string `json:"username"`
	Password          string `json:"-"`
	PreferredPassword string `json:"-"`

	State             State               `json:"state"`
	Neighbors         map[string]Neighbor `json:"neighbors"` // local port -> neighbor
	Ports             map[string]Port     `json:"ports"`
	IsSeed            bool                `json:"is_seed"`
	SSHActive         bool                `json:"ssh_active"`
	Configuring       bool                `json:"configuring"`
	BaseConfigApplied bool                `json:"base_config_applied"`
	ManagementIP      string              `json:"management_ip,omitempty"`
	LastError         string              `json:"last_error,omitempty"`
	LastSeen          time.Time           `json:"last_seen"`
}

// AP is a wireless access point hanging off a switch port. APs are
// single-shot configured, not driven through the switch state machine.
type AP struct {
	MAC        string    `json:"mac"`
	IP         string    `json:"ip"`
	Model      string    `json:"model"`
	Hostname   string    `json:"hostname"`
	Status     string    `json:"status"`
	SwitchIP   string    `json:"switch_ip"`
	SwitchPort string    `json:"switch_port"`
	Configured bool      `json:"configured"`
	LastSeen   time.Time `json:"last_seen"`
}

// Snapshot is the externally consumed view of the fleet
type Snapshot struct {
	Switches map[string]Switch `json:"switches"`
	APs      map[string]AP     `json:"aps"`
}

// Status is the externally consumed summary of provisioning progress
type Status struct {
	Running             bool `json:"running"`
	SwitchesDiscovered  int  `json:"switches_discovered"`
	SwitchesConfigured  int  `json:"switches_configured"`
	APsDiscovered       int  `json:"aps_discovered"`
	Errors              int  `json:"errors"`
}
