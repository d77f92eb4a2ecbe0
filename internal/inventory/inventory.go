// Package inventory is the fleet registry: every known switch and AP, keyed
// by MAC with a secondary IP index. It is the only shared mutable state in
// the system; all mutation goes through its methods.
package inventory

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Inventory is a concurrency-safe device registry
type Inventory struct {
	mu       sync.RWMutex
	switches map[string]*Switch // mac -> record
	aps      map[string]*AP     // mac -> record
	byIP     map[string]string  // ip -> mac
	logger   *zap.Logger
}

// New creates an empty inventory
func New(logger *zap.Logger) *Inventory {
	return &Inventory{
		switches: make(map[string]*Switch),
		aps:      make(map[string]*AP),
		byIP:     make(map[string]string),
		logger:   logger,
	}
}

// RegisterSwitch adds a switch under its MAC. The MAC is acquired once and
// never changes; re-registering an existing MAC is an error, callers update
// through UpdateSwitch instead.
func (inv *Inventory) RegisterSwitch(sw Switch) error {
	if sw.MAC == "" {
		return fmt.Errorf("switch %s has no MAC", sw.IP)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if _, exists := inv.switches[sw.MAC]; exists {
		return fmt.Errorf("switch %s already registered", sw.MAC)
	}
	if sw.Neighbors == nil {
		sw.Neighbors = make(map[string]Neighbor)
	}
	if sw.Ports == nil {
		sw.Ports = make(map[string]Port)
	}
	sw.LastSeen = time.Now()

	rec := cloneSwitch(&sw)
	inv.switches[sw.MAC] = rec
	if sw.IP != "" {
		inv.byIP[sw.IP] = sw.MAC
	}

	inv.logger.Info("Switch registered",
		zap.String("mac", sw.MAC),
		zap.String("ip", sw.IP),
		zap.String("model", sw.Model),
		zap.Bool("seed", sw.IsSeed))
	return nil
}

// GetSwitch returns a copy of the record for mac
func (inv *Inventory) GetSwitch(mac string) (Switch, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	rec, ok := inv.switches[mac]
	if !ok {
		return Switch{}, false
	}
	return *cloneSwitch(rec), true
}

// GetSwitchByIP resolves the IP index and returns a copy of the record
func (inv *Inventory) GetSwitchByIP(ip string) (Switch, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	mac, ok := inv.byIP[ip]
	if !ok {
		return Switch{}, false
	}
	rec, ok := inv.switches[mac]
	if !ok {
		return Switch{}, false
	}
	return *cloneSwitch(rec), true
}

// HasSwitch reports whether mac is registered
func (inv *Inventory) HasSwitch(mac string) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	_, ok := inv.switches[mac]
	return ok
}

// UpdateSwitch applies fn to the record under the lock. IP changes made by
// fn are reindexed so GetSwitchByIP observes reassignment immediately.
func (inv *Inventory) UpdateSwitch(mac string, fn func(*Switch)) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	rec, ok := inv.switches[mac]
	if !ok {
		return fmt.Errorf("switch %s not in inventory", mac)
	}
	oldIP := rec.IP
	fn(rec)
	rec.LastSeen = time.Now()
	if rec.IP != oldIP {
		if oldIP != "" {
			delete(inv.byIP, oldIP)
		}
		if rec.IP != "" {
			inv.byIP[rec.IP] = mac
		}
		inv.logger.Info("Switch readdressed",
			zap.String("mac", mac),
			zap.String("old_ip", oldIP),
			zap.String("new_ip", rec.IP))
	}
	return nil
}

// SetState transitions a switch, enforcing monotonicity: state never
// regresses except to the error state.
func (inv *Inventory) SetState(mac string, to State) error {
	var from State
	err := inv.UpdateSwitch(mac, func(sw *Switch) {
		from = sw.State
		if CanTransition(sw.State, to) {
			sw.State = to
			if to != StateError {
				sw.LastError = ""
			}
		}
	})
	if err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s for %s", from, to, mac)
	}
	if from != to {
		inv.logger.Info("Switch state changed",
			zap.String("mac", mac),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	return nil
}

// MergeNeighbors folds a fresh discovery pass into the record. Existing
// port entries keep their configured flag so already-done ports are not
// re-touched; resolved management addresses overwrite missing ones.
func (inv *Inventory) MergeNeighbors(mac string, neighbors []Neighbor) error {
	return inv.UpdateSwitch(mac, func(sw *Switch) {
		for _, n := range neighbors {
			existing, seen := sw.Neighbors[n.LocalPort]
			if seen && !n.HasManagementAddress() && existing.HasManagementAddress() {
				// Keep the already-resolved address over a fresh 0.0.0.0.
				n.ManagementAddress = existing.ManagementAddress
			}
			sw.Neighbors[n.LocalPort] = n

			port := sw.Ports[n.LocalPort]
			port.Type = n.Type
			if n.HasManagementAddress() {
				port.PeerIP = n.ManagementAddress
			}
			sw.Ports[n.LocalPort] = port
		}
	})
}

// MarkPortConfigured flags a local port as done
func (inv *Inventory) MarkPortConfigured(mac, portName string) error {
	return inv.UpdateSwitch(mac, func(sw *Switch) {
		port := sw.Ports[portName]
		port.Configured = true
		sw.Ports[portName] = port
	})
}

// MarkSSHActive annotates a record's ssh_active flag by IP. Channels call
// this without knowing the MAC key; unknown IPs are ignored because the
// first connect happens before registration.
func (inv *Inventory) MarkSSHActive(ip string, active bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	mac, ok := inv.byIP[ip]
	if !ok {
		return
	}
	if rec, ok := inv.switches[mac]; ok {
		rec.SSHActive = active
	}
}

// RegisterAP adds or refreshes an AP record under its MAC
func (inv *Inventory) RegisterAP(ap AP) error {
	if ap.MAC == "" {
		return fmt.Errorf("AP on %s port %s has no MAC", ap.SwitchIP, ap.SwitchPort)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	ap.LastSeen = time.Now()
	if existing, ok := inv.aps[ap.MAC]; ok {
		existing.IP = ap.IP
		existing.SwitchIP = ap.SwitchIP
		existing.SwitchPort = ap.SwitchPort
		existing.LastSeen = ap.LastSeen
		if ap.Model != "" {
			existing.Model = ap.Model
		}
		if ap.Hostname != "" {
			existing.Hostname = ap.Hostname
		}
		if ap.Configured {
			existing.Configured = true
		}
		return nil
	}

	copied := ap
	inv.aps[ap.MAC] = &copied
	inv.logger.Info("AP registered",
		zap.String("mac", ap.MAC),
		zap.String("model", ap.Model),
		zap.String("switch", ap.SwitchIP),
		zap.String("port", ap.SwitchPort))
	return nil
}

// Switches returns copies of all switch records
func (inv *Inventory) Switches() []Switch {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]Switch, 0, len(inv.switches))
	for _, rec := range inv.switches {
		out = append(out, *cloneSwitch(rec))
	}
	return out
}

// APs returns copies of all AP records
func (inv *Inventory) APs() []AP {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]AP, 0, len(inv.aps))
	for _, rec := range inv.aps {
		out = append(out, *rec)
	}
	return out
}

// TakeSnapshot builds the externally consumed fleet view
func (inv *Inventory) TakeSnapshot() Snapshot {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	snap := Snapshot{
		Switches: make(map[string]Switch, len(inv.switches)),
		APs:      make(map[string]AP, len(inv.aps)),
	}
	for mac, rec := range inv.switches {
		snap.Switches[mac] = *cloneSwitch(rec)
	}
	for mac, rec := range inv.aps {
		snap.APs[mac] = *rec
	}
	return snap
}

// Summarize builds the status summary for the given running flag
func (inv *Inventory) Summarize(running bool) Status {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	st := Status{Running: running, APsDiscovered: len(inv.aps)}
	for _, rec := range inv.switches {
		st.SwitchesDiscovered++
		switch rec.State {
		case StateFullyConfigured:
			st.SwitchesConfigured++
		case StateError:
			st.Errors++
		}
	}
	return st
}

// cloneSwitch deep-copies a record so callers never share map state with
// the store.
func cloneSwitch(sw *Switch) *Switch {
	out := *sw
	out.Neighbors = make(map[string]Neighbor, len(sw.Neighbors))
	for k, v := range sw.Neighbors {
		out.Neighbors[k] = v
	}
	out.Ports = make(map[string]Port, len(sw.Ports))
	for k, v := range sw.Ports {
		out.Ports[k] = v
	}
	return &out
}
