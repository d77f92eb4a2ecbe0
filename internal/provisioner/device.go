package provisioner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/icxcommander/icxcommander/internal/config"
	"github.com/icxcommander/icxcommander/internal/identity"
	"github.com/icxcommander/icxcommander/internal/inventory"
	"github.com/icxcommander/icxcommander/internal/terminal"
)

// Event types written to the provisioning history
const (
	EventSwitchDiscovered = "switch_discovered"
	EventBaseConfig       = "base_config_applied"
	EventManagement       = "management_configured"
	EventPortConfigured   = "port_configured"
	EventAPRegistered     = "ap_registered"
	EventFullyConfigured  = "fully_configured"
	EventError            = "provisioning_error"
)

func (p *Provisioner) channelOpts() terminal.Options {
	return terminal.Options{
		ConnectTimeout: p.cfg.SSH.ConnectTimeout,
		CommandTimeout: p.cfg.SSH.CommandTimeout,
		ReadTimeout:    p.cfg.SSH.ReadTimeout,
		PromptProbes:   p.cfg.SSH.PromptProbes,
		NewPassword:    p.cfg.Seed.PreferredPassword,
		OnActivity:     p.inv.MarkSSHActive,
	}
}

// dial connects to a device, cycling through candidate credentials. The
// stored credential (if any) is tried first, then the configured list.
// Rejections are logged at debug only; a single warning fires once the
// whole list is exhausted. A transport failure stops the cycle early
// since retrying other passwords against a dead host is pointless.
func (p *Provisioner) dial(ip string, stored *config.Credential) (*terminal.Channel, config.Credential, error) {
	candidates := make([]config.Credential, 0, len(p.cfg.Seed.Credentials)+1)
	if stored != nil && stored.Username != "" {
		candidates = append(candidates, *stored)
	}
	for _, cred := range p.cfg.Seed.Credentials {
		if stored != nil && cred == *stored {
			continue
		}
		candidates = append(candidates, cred)
	}

	var lastErr error
	for _, cred := range candidates {
		ch := terminal.NewChannel(p.transport, ip, cred.Username, cred.Password, p.channelOpts(), p.logger)
		err := ch.Connect()
		if err == nil {
			p.metrics.RecordSSHConnect("success")
			p.metrics.RecordCredentialAttempt("accepted")
			p.metrics.SSHSessionOpened()
			return ch, cred, nil
		}
		lastErr = err

		if errors.Is(err, terminal.ErrAuth) {
			p.metrics.RecordCredentialAttempt("rejected")
			p.logger.Debug("Credential rejected",
				zap.String("ip", ip),
				zap.String("username", cred.Username))
			continue
		}

		p.metrics.RecordSSHConnect("unreachable")
		return nil, config.Credential{}, err
	}

	p.metrics.RecordSSHConnect("auth_failed")
	p.logger.Warn("All credentials rejected",
		zap.String("ip", ip),
		zap.Int("attempts", len(candidates)))
	return nil, config.Credential{}, fmt.Errorf("credentials exhausted for %s: %w", ip, lastErr)
}

// probeAndRegister connects to an unknown device, extracts its identity,
// and registers it in the discovered state. Returns the device MAC.
func (p *Provisioner) probeAndRegister(cycleID, ip string, isSeed bool, log *zap.Logger) (string, error) {
	ch, cred, err := p.dial(ip, nil)
	if err != nil {
		return "", err
	}
	defer ch.Close()
	defer p.metrics.SSHSessionClosed()

	version, err := ch.Run("show version", p.cfg.SSH.CommandTimeout)
	if err != nil {
		return "", fmt.Errorf("show version on %s: %w", ip, err)
	}
	chassis, _ := ch.Run("show chassis", p.cfg.SSH.CommandTimeout)

	id := p.ident.Parse(ip, version, chassis)
	if id.MAC == "" {
		return "", fmt.Errorf("no MAC address in version output from %s", ip)
	}

	// A readdressed device may still answer on its old address for a
	// while; the chassis MAC identifies it either way.
	if p.inv.HasSwitch(id.MAC) {
		log.Debug("Device already registered, probed on a stale address",
			zap.String("ip", ip),
			zap.String("mac", id.MAC))
		return id.MAC, nil
	}

	password := cred.Password
	if ch.PasswordChanged() {
		password = p.cfg.Seed.PreferredPassword
		log.Info("Device adopted preferred password on first login",
			zap.String("ip", ip),
			zap.String("mac", id.MAC))
	}

	sw := inventory.Switch{
		Identity:          id,
		Username:          cred.Username,
		Password:          password,
		PreferredPassword: p.cfg.Seed.PreferredPassword,
		State:             inventory.StateDiscovered,
		IsSeed:            isSeed,
		LastSeen:          time.Now(),
	}
	if err := p.inv.RegisterSwitch(sw); err != nil {
		return "", fmt.Errorf("register switch %s: %w", id.MAC, err)
	}

	p.events.RecordEvent(cycleID, id.MAC, ip, EventSwitchDiscovered,
		fmt.Sprintf("%s serial=%s firmware=%s", id.Model, id.Serial, id.Firmware), true)
	log.Info("Switch discovered",
		zap.String("ip", ip),
		zap.String("mac", id.MAC),
		zap.String("model", id.Model),
		zap.Bool("seed", isSeed))
	return id.MAC, nil
}

// processSwitch is the per-device work of one poll cycle: refresh the
// neighbor table, register anything new hanging off this switch, and move
// the switch itself one lifecycle step forward.
func (p *Provisioner) processSwitch(cycleID string, sw inventory.Switch, log *zap.Logger) {
	stored := config.Credential{Username: sw.Username, Password: sw.Password}
	ch, cred, err := p.dial(sw.IP, &stored)
	if err != nil {
		// Connect failures are expected mid-provisioning (the device may
		// be rebooting onto its management address); retry next cycle.
		log.Debug("Switch unreachable this cycle",
			zap.String("ip", sw.IP),
			zap.String("mac", sw.MAC),
			zap.Error(err))
		return
	}
	defer ch.Close()
	defer p.metrics.SSHSessionClosed()

	if ch.PasswordChanged() {
		cred.Password = p.cfg.Seed.PreferredPassword
	}
	now := time.Now()
	_ = p.inv.UpdateSwitch(sw.MAC, func(s *inventory.Switch) {
		s.Username = cred.Username
		s.Password = cred.Password
		s.LastSeen = now
	})

	neighbors, err := p.disc.DiscoverNeighbors(ch, sw.IP)
	if err != nil {
		log.Warn("Neighbor discovery failed",
			zap.String("ip", sw.IP),
			zap.Error(err))
	} else if err := p.inv.MergeNeighbors(sw.MAC, neighbors); err != nil {
		log.Warn("Neighbor merge failed", zap.String("mac", sw.MAC), zap.Error(err))
	}

	// Re-read after the merge so new adjacencies are visible below
	sw, ok := p.inv.GetSwitch(sw.MAC)
	if !ok {
		return
	}

	p.handleAPNeighbors(cycleID, ch, sw, log)
	p.handleSwitchNeighbors(cycleID, ch, sw, log)
	p.advance(cycleID, ch, sw.MAC, log)
}

// handleAPNeighbors configures AP-facing ports and registers the APs.
// AP configuration is single-shot: once the port carries the management
// and wireless VLANs the AP provisions itself over the air.
func (p *Provisioner) handleAPNeighbors(cycleID string, ch *terminal.Channel, sw inventory.Switch, log *zap.Logger) {
	for port, n := range sw.Neighbors {
		if n.Type != inventory.NeighborAP {
			continue
		}

		configured := sw.Ports[port].Configured
		if !configured {
			start := time.Now()
			err := p.ops.ConfigureAPPort(ch, port, p.cfg.Seed.ManagementVLAN, p.cfg.Seed.WirelessVLANs)
			if err != nil {
				p.metrics.RecordConfigOperation("ap_port", "error", time.Since(start))
				p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventPortConfigured,
					fmt.Sprintf("ap port %s: %v", port, err), false)
				log.Warn("AP port configuration failed",
					zap.String("switch", sw.IP),
					zap.String("port", port),
					zap.Error(err))
				continue
			}
			p.metrics.RecordConfigOperation("ap_port", "success", time.Since(start))
			_ = p.inv.MarkPortConfigured(sw.MAC, port)
			p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventPortConfigured,
				fmt.Sprintf("ap port %s", port), true)
			configured = true
		}

		mac := identity.NormalizeMAC(n.ChassisID)
		if mac == "" {
			continue
		}
		ap := inventory.AP{
			MAC:        mac,
			IP:         n.ManagementAddress,
			Model:      n.APModel,
			Hostname:   n.SystemName,
			Status:     "discovered",
			SwitchIP:   sw.IP,
			SwitchPort: port,
			Configured: configured,
			LastSeen:   time.Now(),
		}
		if err := p.inv.RegisterAP(ap); err != nil {
			log.Warn("AP registration failed", zap.String("mac", mac), zap.Error(err))
			continue
		}
		p.events.RecordEvent(cycleID, mac, ap.IP, EventAPRegistered,
			fmt.Sprintf("%s on %s port %s", ap.Model, sw.IP, port), true)
	}
}

// handleSwitchNeighbors probes downstream switches that are not yet in
// inventory. A neighbor without a usable management address stays pending;
// the discoverer resolves it by MAC trace on a later cycle. When a probe
// succeeds the facing port on this switch is opened up as a full trunk.
func (p *Provisioner) handleSwitchNeighbors(cycleID string, ch *terminal.Channel, sw inventory.Switch, log *zap.Logger) {
	for port, n := range sw.Neighbors {
		if n.Type != inventory.NeighborSwitch || !n.HasManagementAddress() {
			continue
		}
		if _, known := p.inv.GetSwitchByIP(n.ManagementAddress); known {
			continue
		}
		if mac := identity.NormalizeMAC(n.ChassisID); mac != "" && p.inv.HasSwitch(mac) {
			continue
		}

		if _, err := p.probeAndRegister(cycleID, n.ManagementAddress, false, log); err != nil {
			log.Debug("Downstream switch not yet reachable",
				zap.String("ip", n.ManagementAddress),
				zap.String("via", sw.IP),
				zap.String("port", port),
				zap.Error(err))
			continue
		}

		if !sw.Ports[port].Configured {
			start := time.Now()
			if err := p.ops.ConfigureTrunkPort(ch, port, p.allVLANs()); err != nil {
				p.metrics.RecordConfigOperation("trunk_port", "error", time.Since(start))
				log.Warn("Trunk port configuration failed",
					zap.String("switch", sw.IP),
					zap.String("port", port),
					zap.Error(err))
				continue
			}
			p.metrics.RecordConfigOperation("trunk_port", "success", time.Since(start))
			_ = p.inv.MarkPortConfigured(sw.MAC, port)
			p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventPortConfigured,
				fmt.Sprintf("trunk port %s toward %s", port, n.ManagementAddress), true)
		}
	}
}

// advance moves a switch exactly one lifecycle step per cycle. Spreading
// the steps across cycles keeps each SSH session short and gives devices
// time to settle between configuration writes.
func (p *Provisioner) advance(cycleID string, ch *terminal.Channel, mac string, log *zap.Logger) {
	sw, ok := p.inv.GetSwitch(mac)
	if !ok {
		return
	}

	switch sw.State {
	case inventory.StateDiscovered:
		p.stepBaseConfig(cycleID, ch, sw, log)
	case inventory.StateBaseConfigApplied:
		p.stepManagement(cycleID, ch, sw, log)
	case inventory.StateManagementConfigured, inventory.StatePortsConfigured:
		p.stepPorts(cycleID, ch, sw, log)
	case inventory.StateFullyConfigured, inventory.StateError:
		// Nothing to advance. Error states stay put until an operator
		// intervenes; fully configured switches are only re-polled for
		// neighbor discovery.
	}
}

func (p *Provisioner) stepBaseConfig(cycleID string, ch *terminal.Channel, sw inventory.Switch, log *zap.Logger) {
	start := time.Now()

	if p.baseConfig != "" {
		applied, failed, err := p.ops.ApplyBaseConfig(ch, p.baseConfig)
		if err != nil {
			p.fail(cycleID, sw, "base_config", err, start, log)
			return
		}
		log.Info("Base configuration applied",
			zap.String("ip", sw.IP),
			zap.String("mac", sw.MAC),
			zap.Int("applied", applied),
			zap.Int("failed", failed))
	}

	// Name the device while it is still on its discovery address; a
	// rejected hostname is cosmetic and never blocks bring-up.
	name := switchHostname(sw)
	if err := p.ops.SetHostname(ch, name); err != nil {
		log.Warn("Hostname not applied",
			zap.String("mac", sw.MAC),
			zap.String("hostname", name),
			zap.Error(err))
	} else {
		_ = p.inv.UpdateSwitch(sw.MAC, func(s *inventory.Switch) { s.Hostname = name })
	}

	_ = p.inv.UpdateSwitch(sw.MAC, func(s *inventory.Switch) { s.BaseConfigApplied = true })
	if err := p.inv.SetState(sw.MAC, inventory.StateBaseConfigApplied); err != nil {
		log.Warn("State transition rejected", zap.String("mac", sw.MAC), zap.Error(err))
		return
	}
	p.metrics.RecordConfigOperation("base_config", "success", time.Since(start))
	p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventBaseConfig, "", true)
}

func (p *Provisioner) stepManagement(cycleID string, ch *terminal.Channel, sw inventory.Switch, log *zap.Logger) {
	start := time.Now()

	mgmtIP := sw.ManagementIP
	if mgmtIP == "" {
		mgmtIP = p.pool.Allocate(sw.IP)
		_ = p.inv.UpdateSwitch(sw.MAC, func(s *inventory.Switch) { s.ManagementIP = mgmtIP })
	}

	err := p.ops.ConfigureManagement(ch, p.cfg.Seed.ManagementVLAN, mgmtIP, p.pool.PrefixLen(), p.pool.Gateway())
	if err != nil {
		p.fail(cycleID, sw, "management", err, start, log)
		return
	}

	// The device now answers on its management address; future sessions
	// dial that instead of the discovery-time address.
	_ = p.inv.UpdateSwitch(sw.MAC, func(s *inventory.Switch) { s.IP = mgmtIP })
	if err := p.inv.SetState(sw.MAC, inventory.StateManagementConfigured); err != nil {
		log.Warn("State transition rejected", zap.String("mac", sw.MAC), zap.Error(err))
		return
	}
	p.metrics.RecordConfigOperation("management", "success", time.Since(start))
	p.events.RecordEvent(cycleID, sw.MAC, mgmtIP, EventManagement,
		fmt.Sprintf("vlan %d ip %s/%d gw %s", p.cfg.Seed.ManagementVLAN, mgmtIP, p.pool.PrefixLen(), p.pool.Gateway()), true)
	log.Info("Management interface configured",
		zap.String("mac", sw.MAC),
		zap.String("management_ip", mgmtIP))
}

// stepPorts trunks any switch-facing port that has not been opened up yet,
// then settles the final state: fully configured once every port with a
// known neighbor is done. A rejected trunk command leaves the state alone;
// the port is retried on the next cycle.
func (p *Provisioner) stepPorts(cycleID string, ch *terminal.Channel, sw inventory.Switch, log *zap.Logger) {
	for port, n := range sw.Neighbors {
		if n.Type != inventory.NeighborSwitch || sw.Ports[port].Configured {
			continue
		}
		start := time.Now()
		if err := p.ops.ConfigureTrunkPort(ch, port, p.allVLANs()); err != nil {
			p.metrics.RecordConfigOperation("trunk_port", "error", time.Since(start))
			p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventPortConfigured,
				fmt.Sprintf("trunk port %s: %v", port, err), false)
			log.Warn("Trunk port configuration failed, retrying next cycle",
				zap.String("mac", sw.MAC),
				zap.String("port", port),
				zap.Error(err))
			return
		}
		p.metrics.RecordConfigOperation("trunk_port", "success", time.Since(start))
		_ = p.inv.MarkPortConfigured(sw.MAC, port)
		p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventPortConfigured,
			fmt.Sprintf("trunk port %s", port), true)
	}

	sw, ok := p.inv.GetSwitch(sw.MAC)
	if !ok {
		return
	}

	pending := 0
	for port := range sw.Neighbors {
		if !sw.Ports[port].Configured {
			pending++
		}
	}

	target := inventory.StateFullyConfigured
	if pending > 0 {
		if sw.State == inventory.StatePortsConfigured {
			return // already parked here, wait for the stragglers
		}
		target = inventory.StatePortsConfigured
	}
	if err := p.inv.SetState(sw.MAC, target); err != nil {
		log.Warn("State transition rejected", zap.String("mac", sw.MAC), zap.Error(err))
		return
	}
	if target == inventory.StateFullyConfigured {
		p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventFullyConfigured, "", true)
		log.Info("Switch fully configured",
			zap.String("mac", sw.MAC),
			zap.String("ip", sw.IP),
			zap.String("model", sw.Model))
	}
}

// fail parks a switch in the error state after an unrecoverable
// configuration failure. Only the base-config and management steps land
// here; connectivity problems and port rejections retry next cycle.
func (p *Provisioner) fail(cycleID string, sw inventory.Switch, operation string, err error, start time.Time, log *zap.Logger) {
	p.metrics.RecordConfigOperation(operation, "error", time.Since(start))
	_ = p.inv.UpdateSwitch(sw.MAC, func(s *inventory.Switch) {
		s.LastError = fmt.Sprintf("%s: %v", operation, err)
	})
	_ = p.inv.SetState(sw.MAC, inventory.StateError)
	p.events.RecordEvent(cycleID, sw.MAC, sw.IP, EventError,
		fmt.Sprintf("%s: %v", operation, err), false)
	log.Error("Provisioning failed",
		zap.String("mac", sw.MAC),
		zap.String("ip", sw.IP),
		zap.String("operation", operation),
		zap.Error(err))
}

// switchHostname derives a stable device name from the model family and
// the low bytes of the chassis MAC, e.g. icx7150-4a00.
func switchHostname(sw inventory.Switch) string {
	model := sw.Model
	if i := strings.IndexByte(model, '-'); i > 0 {
		model = model[:i]
	}
	if model == "" {
		model = "icx"
	}
	suffix := strings.ReplaceAll(strings.ToLower(sw.MAC), ".", "")
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return strings.ToLower(model) + "-" + suffix
}

func (p *Provisioner) allVLANs() []int {
	vlans := make([]int, 0, len(p.cfg.Seed.WirelessVLANs)+1)
	vlans = append(vlans, p.cfg.Seed.ManagementVLAN)
	vlans = append(vlans, p.cfg.Seed.WirelessVLANs...)
	return vlans
}
