package terminal

import (
	"errors"
	"fmt"
)

// Sentinel errors for connect-time failure classification. Callers use
// errors.Is to decide between credential cycling and skipping the device.
var (
	// ErrAuth indicates the device rejected the supplied credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrUnreachable indicates the device could not be reached at all.
	ErrUnreachable = errors.New("device unreachable")

	// ErrTimeout indicates the device went silent past the allowed probes.
	ErrTimeout = errors.New("terminal read timed out")
)

// CommandError reports a CLI line the device accepted over the wire but
// rejected at parse time. The channel itself stays usable.
type CommandError struct {
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q rejected by device: %s", e.Command, firstLine(e.Output))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
