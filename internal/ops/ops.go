// Package ops holds the idempotent CLI sequences that take an ICX switch
// from factory defaults to a configured member of the fleet. Every
// operation wraps its commands in config-mode enter/exit; success saves
// with "write memory", failure exits unsaved.
package ops

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Channel is the slice of the terminal channel the operations need
type Channel interface {
	Run(command string, timeout time.Duration) (string, error)
	EnterConfigMode() error
	ExitConfigMode(save bool) error
}

// Operations executes configuration sequences over a channel
type Operations struct {
	timeout time.Duration
	logger  *zap.Logger
}

// New creates the operation set
func New(commandTimeout time.Duration, logger *zap.Logger) *Operations {
	if commandTimeout <= 0 {
		commandTimeout = 30 * time.Second
	}
	return &Operations{timeout: commandTimeout, logger: logger}
}

// ApplyBaseConfig pushes the operator's base configuration line by line.
// Unlike every other operation this is best-effort: one unsupported line
// must not block the VLAN and spanning-tree setup behind it, so failures
// are logged and skipped. The caller gates re-application with a
// per-device flag; the lines themselves are not assumed idempotent.
func (o *Operations) ApplyBaseConfig(ch Channel, configText string) (applied, failed int, err error) {
	if err := ch.EnterConfigMode(); err != nil {
		return 0, 0, err
	}

	for _, line := range strings.Split(configText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "#") {
			continue
		}
		if _, runErr := ch.Run(line, o.timeout); runErr != nil {
			failed++
			o.logger.Warn("Base config line rejected",
				zap.String("line", line),
				zap.Error(runErr))
			continue
		}
		applied++
	}

	if err := ch.ExitConfigMode(true); err != nil {
		return applied, failed, err
	}
	return applied, failed, nil
}

// ConfigureManagement brings up the management VE interface with the
// allocated address and installs the default route.
func (o *Operations) ConfigureManagement(ch Channel, vlan int, ip string, prefixLen int, gateway string) error {
	cmds := []string{
		fmt.Sprintf("interface ve %d", vlan),
		fmt.Sprintf("ip address %s/%d", ip, prefixLen),
		"exit",
		fmt.Sprintf("ip route 0.0.0.0/0 %s", gateway),
	}
	return o.runSequence(ch, cmds)
}

// ConfigureTrunkPort tags the port into every VLAN in vlans, making it an
// inter-switch trunk.
func (o *Operations) ConfigureTrunkPort(ch Channel, port string, vlans []int) error {
	var cmds []string
	for _, vlan := range vlans {
		cmds = append(cmds,
			fmt.Sprintf("vlan %d", vlan),
			fmt.Sprintf("tagged ethernet %s", port),
			"exit",
		)
	}
	return o.runSequence(ch, cmds)
}

// ConfigureAPPort tags the port into the management VLAN and all wireless
// VLANs, the shape an access point uplink needs.
func (o *Operations) ConfigureAPPort(ch Channel, port string, managementVLAN int, wirelessVLANs []int) error {
	vlans := append([]int{managementVLAN}, wirelessVLANs...)
	return o.ConfigureTrunkPort(ch, port, vlans)
}

// SetHostname renames the device
func (o *Operations) SetHostname(ch Channel, hostname string) error {
	return o.runSequence(ch, []string{fmt.Sprintf("hostname %s", hostname)})
}

// SetPortVLAN moves a port into a VLAN, tagged or untagged
func (o *Operations) SetPortVLAN(ch Channel, port string, vlan int, tagged bool) error {
	mode := "untagged"
	if tagged {
		mode = "tagged"
	}
	cmds := []string{
		fmt.Sprintf("vlan %d", vlan),
		fmt.Sprintf("%s ethernet %s", mode, port),
		"exit",
	}
	return o.runSequence(ch, cmds)
}

// SetPortState administratively enables or disables a port
func (o *Operations) SetPortState(ch Channel, port string, enabled bool) error {
	state := "disable"
	if enabled {
		state = "enable"
	}
	cmds := []string{
		fmt.Sprintf("interface ethernet %s", port),
		state,
		"exit",
	}
	return o.runSequence(ch, cmds)
}

// SetPortPoE switches inline power on a port
func (o *Operations) SetPortPoE(ch Channel, port string, on bool) error {
	power := "no inline power"
	if on {
		power = "inline power"
	}
	cmds := []string{
		fmt.Sprintf("interface ethernet %s", port),
		power,
		"exit",
	}
	return o.runSequence(ch, cmds)
}

// runSequence is the all-or-nothing wrapper: enter config mode, run every
// command, exit unsaved on the first failure, save on success.
func (o *Operations) runSequence(ch Channel, cmds []string) error {
	if err := ch.EnterConfigMode(); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if _, err := ch.Run(cmd, o.timeout); err != nil {
			if exitErr := ch.ExitConfigMode(false); exitErr != nil {
				o.logger.Warn("Exiting config mode after failure",
					zap.String("command", cmd),
					zap.Error(exitErr))
			}
			return fmt.Errorf("config command %q: %w", cmd, err)
		}
	}
	return ch.ExitConfigMode(true)
}
