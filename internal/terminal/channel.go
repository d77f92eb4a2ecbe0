package terminal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ActivityFunc is notified when a channel opens or closes a device session.
// The inventory uses it to keep the per-device ssh_active flag current.
type ActivityFunc func(ip string, active bool)

// Options tunes channel timing and the first-login sub-protocol
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ReadTimeout    time.Duration
	PromptProbes   int    // newline probes before declaring a silent shell dead
	NewPassword    string // adopted when the device forces a first-login change
	OnActivity     ActivityFunc
}

// initial shell states after authentication
type initialState int

const (
	statePrompt initialState = iota
	statePasswordChange
	stateSilent
)

var (
	newPasswordRE = regexp.MustCompile(`(?i)enter the new password|enter new password`)
	reconfirmRE   = regexp.MustCompile(`(?i)reconfirm password|re-enter the new password`)
	changedRE     = regexp.MustCompile(`(?i)password modified|password changed`)
	enableAskRE   = regexp.MustCompile(`(?i)password:\s*$`)

	// CLI parse rejections the device reports inline with normal output
	cmdErrorRE = regexp.MustCompile(`(?i)invalid input|^error:|\nerror:|incomplete command|ambiguous input`)
)

// Channel wraps one interactive shell on a device. It is not safe for
// concurrent use; the orchestrator holds a channel for exactly one
// connect -> operate -> disconnect unit of work.
type Channel struct {
	ip        string
	username  string
	password  string
	transport Transport
	opts      Options
	logger    *zap.Logger

	sess            Session
	prompt          string
	passwordChanged bool
}

// NewChannel creates a channel for one device. Connect must be called
// before any command runs.
func NewChannel(transport Transport, ip, username, password string, opts Options, logger *zap.Logger) *Channel {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.PromptProbes <= 0 {
		opts.PromptProbes = 3
	}
	return &Channel{
		ip:        ip,
		username:  username,
		password:  password,
		transport: transport,
		opts:      opts,
		logger:    logger.With(zap.String("device", ip)),
	}
}

// Connect opens the shell and drives it to a known privileged prompt,
// handling the forced first-login password change when the device demands
// one. Pagination is disabled before Connect returns so "--More--"
// continuations never interleave with command parsing.
func (c *Channel) Connect() error {
	sess, err := c.transport.Dial(c.ip, c.username, c.password, c.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	c.sess = sess
	if c.opts.OnActivity != nil {
		c.opts.OnActivity(c.ip, true)
	}

	state, banner, err := c.classifyShell()
	if err != nil {
		c.Close()
		return fmt.Errorf("classifying shell on %s: %w", c.ip, err)
	}

	switch state {
	case statePrompt:
		c.prompt = lastNonEmptyLine(banner)
	case statePasswordChange:
		if err := c.completePasswordChange(); err != nil {
			c.Close()
			return fmt.Errorf("first-login password change on %s: %w", c.ip, err)
		}
	case stateSilent:
		if err := c.probeForPrompt(); err != nil {
			c.Close()
			return fmt.Errorf("no prompt from %s: %w", c.ip, err)
		}
	}

	if err := c.escalate(); err != nil {
		c.Close()
		return fmt.Errorf("enable on %s: %w", c.ip, err)
	}

	if err := c.disablePagination(); err != nil {
		c.Close()
		return fmt.Errorf("disabling pagination on %s: %w", c.ip, err)
	}

	c.logger.Debug("Channel connected", zap.String("prompt", c.prompt))
	return nil
}

// Close tears the session down and clears the activity flag
func (c *Channel) Close() {
	if c.sess == nil {
		return
	}
	c.sess.Close()
	c.sess = nil
	if c.opts.OnActivity != nil {
		c.opts.OnActivity(c.ip, false)
	}
}

// PasswordChanged reports whether Connect executed the first-login change,
// meaning the preferred password is now the live one.
func (c *Channel) PasswordChanged() bool {
	return c.passwordChanged
}

// Run executes one command and returns its output with the echoed command
// and trailing prompt stripped. Device-side CLI rejections come back as a
// *CommandError even though the channel itself succeeded.
func (c *Channel) Run(command string, timeout time.Duration) (string, error) {
	if c.sess == nil {
		return "", fmt.Errorf("%w: channel not connected", ErrUnreachable)
	}
	if timeout <= 0 {
		timeout = c.opts.CommandTimeout
	}

	if err := c.sess.Send([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("sending %q to %s: %w", command, c.ip, err)
	}

	raw, err := c.readUntilPrompt(timeout)
	if err != nil {
		// Bounded newline probes before giving up on a silent device.
		for i := 0; i < c.opts.PromptProbes; i++ {
			if sendErr := c.sess.Send([]byte("\n")); sendErr != nil {
				break
			}
			extra, probeErr := c.readUntilPrompt(c.opts.ReadTimeout)
			raw += extra
			if probeErr == nil {
				err = nil
				break
			}
		}
		if err != nil {
			return "", fmt.Errorf("%w: %q on %s", ErrTimeout, command, c.ip)
		}
	}

	out := cleanOutput(raw, command)
	if cmdErrorRE.MatchString(out) {
		return out, &CommandError{Command: command, Output: out}
	}
	return out, nil
}

// EnterConfigMode puts the shell into global configuration mode
func (c *Channel) EnterConfigMode() error {
	if _, err := c.Run("configure terminal", c.opts.CommandTimeout); err != nil {
		return fmt.Errorf("entering config mode on %s: %w", c.ip, err)
	}
	return nil
}

// ExitConfigMode leaves configuration mode, committing the running config
// to startup with "write memory" when save is set.
func (c *Channel) ExitConfigMode(save bool) error {
	if _, err := c.Run("end", c.opts.CommandTimeout); err != nil {
		return fmt.Errorf("exiting config mode on %s: %w", c.ip, err)
	}
	if save {
		if _, err := c.Run("write memory", c.opts.CommandTimeout); err != nil {
			return fmt.Errorf("saving config on %s: %w", c.ip, err)
		}
	}
	return nil
}

// classifyShell decides what the device presented right after login:
// a usable prompt, the forced password-change dialogue, or silence.
func (c *Channel) classifyShell() (initialState, string, error) {
	deadline := time.Now().Add(c.opts.ConnectTimeout)
	var b strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := c.sess.Recv(c.opts.ReadTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				s := b.String()
				if newPasswordRE.MatchString(s) {
					return statePasswordChange, s, nil
				}
				if endsWithPrompt(s) {
					return statePrompt, s, nil
				}
				return stateSilent, s, nil
			}
			return stateSilent, b.String(), err
		}
		b.Write(chunk)
		s := b.String()
		if newPasswordRE.MatchString(s) {
			return statePasswordChange, s, nil
		}
		if endsWithPrompt(s) {
			return statePrompt, s, nil
		}
	}
	return stateSilent, b.String(), nil
}

// completePasswordChange drives the first-login dialogue:
// new password -> reconfirm -> success marker -> re-derive prompt.
func (c *Channel) completePasswordChange() error {
	if c.opts.NewPassword == "" {
		return fmt.Errorf("device demands a password change but no new password is configured")
	}

	if err := c.sess.Send([]byte(c.opts.NewPassword + "\n")); err != nil {
		return err
	}
	if _, err := c.readUntilMatch(reconfirmRE, c.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("waiting for reconfirm prompt: %w", err)
	}
	if err := c.sess.Send([]byte(c.opts.NewPassword + "\n")); err != nil {
		return err
	}
	if _, err := c.readUntilMatch(changedRE, c.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("waiting for change confirmation: %w", err)
	}

	c.passwordChanged = true
	c.logger.Info("First-login password change completed")

	return c.probeForPrompt()
}

// escalate moves a user-level prompt (">") into privileged mode. The device
// may or may not challenge for an enable password.
func (c *Channel) escalate() error {
	if !strings.HasSuffix(strings.TrimSpace(c.prompt), ">") {
		return nil
	}
	if err := c.sess.Send([]byte("enable\n")); err != nil {
		return err
	}

	deadline := time.Now().Add(c.opts.ConnectTimeout)
	var b strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := c.sess.Recv(c.opts.ReadTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return err
		}
		b.Write(chunk)
		s := b.String()
		if strings.HasSuffix(strings.TrimSpace(lastNonEmptyLine(s)), "#") {
			c.prompt = lastNonEmptyLine(s)
			return nil
		}
		if enableAskRE.MatchString(s) {
			pw := c.opts.NewPassword
			if pw == "" {
				pw = c.password
			}
			if err := c.sess.Send([]byte(pw + "\n")); err != nil {
				return err
			}
			b.Reset()
		}
	}
	return fmt.Errorf("%w: no privileged prompt", ErrTimeout)
}

// probeForPrompt nudges a silent shell with newlines until one answers
func (c *Channel) probeForPrompt() error {
	for i := 0; i < c.opts.PromptProbes; i++ {
		if err := c.sess.Send([]byte("\n")); err != nil {
			return err
		}
		out, err := c.readUntilPrompt(c.opts.ReadTimeout * 2)
		if err == nil {
			c.prompt = lastNonEmptyLine(out)
			return nil
		}
	}
	return ErrTimeout
}

func (c *Channel) disablePagination() error {
	_, err := c.Run("skip-page-display", c.opts.CommandTimeout)
	if err != nil {
		// Older firmware spells it differently; a rejection is harmless as
		// long as some variant sticks.
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			_, err = c.Run("terminal length 0", c.opts.CommandTimeout)
			if err != nil && errors.As(err, &cmdErr) {
				return nil
			}
		}
	}
	return err
}

// readUntilPrompt accumulates output until the buffer ends in a CLI prompt
func (c *Channel) readUntilPrompt(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var b strings.Builder
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return b.String(), ErrTimeout
		}
		step := c.opts.ReadTimeout
		if step > remaining {
			step = remaining
		}
		chunk, err := c.sess.Recv(step)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				if endsWithPrompt(b.String()) {
					return b.String(), nil
				}
				continue
			}
			return b.String(), err
		}
		b.Write(chunk)
		if endsWithPrompt(b.String()) {
			return b.String(), nil
		}
	}
}

func (c *Channel) readUntilMatch(re *regexp.Regexp, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var b strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := c.sess.Recv(c.opts.ReadTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				if re.MatchString(b.String()) {
					return b.String(), nil
				}
				continue
			}
			return b.String(), err
		}
		b.Write(chunk)
		if re.MatchString(b.String()) {
			return b.String(), nil
		}
	}
	return b.String(), ErrTimeout
}

// endsWithPrompt reports whether the last non-empty line looks like an ICX
// CLI prompt, in either user (">") or privileged/config ("#") mode.
func endsWithPrompt(s string) bool {
	line := strings.TrimSpace(lastNonEmptyLine(s))
	if line == "" || len(line) > 80 {
		return false
	}
	if strings.Contains(line, "--More--") {
		return false
	}
	return strings.HasSuffix(line, ">") || strings.HasSuffix(line, "#")
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], " \r\t"); line != "" {
			return line
		}
	}
	return ""
}

// cleanOutput strips the echoed command from the head and the prompt from
// the tail of raw shell output.
func cleanOutput(raw, command string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	start := 0
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		start = 1
	}

	end := len(lines)
	for end > start {
		line := strings.TrimSpace(lines[end-1])
		if line == "" || endsWithPrompt(line) {
			end--
			continue
		}
		break
	}

	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}
