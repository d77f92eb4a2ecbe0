package terminal

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSession is a scripted shell: Recv drains queued chunks, Send hands
// the line to the script which queues the device's response.
type fakeSession struct {
	mu     sync.Mutex
	out    [][]byte
	onSend func(s *fakeSession, line string)
	sent   []string
	closed bool
}

func (s *fakeSession) push(text string) {
	s.out = append(s.out, []byte(text))
}

func (s *fakeSession) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := strings.TrimSuffix(string(data), "\n")
	s.sent = append(s.sent, line)
	if s.onSend != nil {
		s.onSend(s, line)
	}
	return nil
}

func (s *fakeSession) Recv(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.out) == 0 {
		time.Sleep(timeout)
		return nil, ErrTimeout
	}
	chunk := s.out[0]
	s.out = s.out[1:]
	return chunk, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) sentCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeTransport struct {
	sess *fakeSession
	err  error
}

func (t *fakeTransport) Dial(ip, username, password string, _ time.Duration) (Session, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.sess, nil
}

func testOptions() Options {
	return Options{
		ConnectTimeout: 500 * time.Millisecond,
		CommandTimeout: 200 * time.Millisecond,
		ReadTimeout:    2 * time.Millisecond,
		PromptProbes:   2,
		NewPassword:    "NewSecret1",
	}
}

// echoDevice responds to every command with its echo and the prompt,
// overridable per command.
func echoDevice(prompt string, replies map[string]string) func(*fakeSession, string) {
	return func(s *fakeSession, line string) {
		if line == "" {
			s.push(prompt)
			return
		}
		if reply, ok := replies[line]; ok {
			s.push(line + "\n" + reply + "\n" + prompt)
			return
		}
		s.push(line + "\n" + prompt)
	}
}

func TestConnectWithPrivilegedPrompt(t *testing.T) {
	sess := &fakeSession{onSend: echoDevice("ICX7150-48P Router#", nil)}
	sess.push("ICX7150-48P Router#")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	assert.False(t, ch.PasswordChanged())
	sent := sess.sentCommands()
	assert.NotContains(t, sent, "enable", "privileged prompt needs no escalation")
	assert.Contains(t, sent, "skip-page-display")
}

func TestConnectEscalatesUserPrompt(t *testing.T) {
	prompt := "ICX7150>"
	sess := &fakeSession{}
	sess.onSend = func(s *fakeSession, line string) {
		switch line {
		case "enable":
			s.push("Password: ")
		case "NewSecret1", "sp-admin":
			s.push("ICX7150#")
		case "":
			s.push("ICX7150#")
		default:
			s.push(line + "\nICX7150#")
		}
	}
	sess.push(prompt)

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	sent := sess.sentCommands()
	assert.Contains(t, sent, "enable")
}

func TestConnectFirstLoginPasswordChange(t *testing.T) {
	sess := &fakeSession{}
	sess.onSend = func(s *fakeSession, line string) {
		switch line {
		case "NewSecret1":
			if len(s.sent) == 1 {
				s.push("Please reconfirm password: ")
			} else {
				s.push("Password modified.\n")
			}
		case "":
			s.push("ICX7150-C12P Router#")
		default:
			s.push(line + "\nICX7150-C12P Router#")
		}
	}
	sess.push("Your password has expired.\nEnter the new password : ")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.7", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	assert.True(t, ch.PasswordChanged())
	sent := sess.sentCommands()
	// New password sent twice: once for entry, once for confirmation
	count := 0
	for _, s := range sent {
		if s == "NewSecret1" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestConnectPasswordChangeWithoutNewPassword(t *testing.T) {
	sess := &fakeSession{}
	sess.push("Enter the new password : ")

	opts := testOptions()
	opts.NewPassword = ""
	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.7", "super", "sp-admin", opts, zap.NewNop())

	err := ch.Connect()
	require.Error(t, err)
	assert.True(t, sess.closed, "failed connect must tear the session down")
}

func TestConnectAuthErrorPassesThrough(t *testing.T) {
	ch := NewChannel(&fakeTransport{err: ErrAuth}, "10.0.0.5", "super", "wrong", testOptions(), zap.NewNop())
	err := ch.Connect()
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRunCleansEchoAndPrompt(t *testing.T) {
	sess := &fakeSession{onSend: echoDevice("SW#", map[string]string{
		"show version": "SW: Version 09.0.10d\nHW: Stackable ICX7150-48P",
	})}
	sess.push("SW#")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	out, err := ch.Run("show version", 0)
	require.NoError(t, err)
	assert.Equal(t, "SW: Version 09.0.10d\nHW: Stackable ICX7150-48P", out)
	assert.NotContains(t, out, "SW#")
}

func TestRunClassifiesCLIRejection(t *testing.T) {
	sess := &fakeSession{onSend: echoDevice("SW#", map[string]string{
		"bogus command": "Invalid input -> bogus command\nType ? for a list",
	})}
	sess.push("SW#")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	out, err := ch.Run("bogus command", 0)
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "bogus command", cmdErr.Command)
	assert.Contains(t, out, "Invalid input")
}

func TestRunTimesOutOnSilentDevice(t *testing.T) {
	silent := func(s *fakeSession, line string) {} // never answers
	sess := &fakeSession{onSend: echoDevice("SW#", nil)}
	sess.push("SW#")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	sess.mu.Lock()
	sess.onSend = silent
	sess.mu.Unlock()

	_, err := ch.Run("show version", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPaginationFallback(t *testing.T) {
	sess := &fakeSession{onSend: echoDevice("SW#", map[string]string{
		"skip-page-display": "Invalid input -> skip-page-display",
	})}
	sess.push("SW#")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	sent := sess.sentCommands()
	assert.Contains(t, sent, "skip-page-display")
	assert.Contains(t, sent, "terminal length 0")
}

func TestExitConfigModeSaves(t *testing.T) {
	sess := &fakeSession{onSend: echoDevice("SW(config)#", nil)}
	sess.push("SW(config)#")

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", testOptions(), zap.NewNop())
	require.NoError(t, ch.Connect())

	require.NoError(t, ch.EnterConfigMode())
	require.NoError(t, ch.ExitConfigMode(true))

	sent := sess.sentCommands()
	assert.Contains(t, sent, "configure terminal")
	assert.Contains(t, sent, "end")
	assert.Contains(t, sent, "write memory")
}

func TestActivityCallbackLifecycle(t *testing.T) {
	sess := &fakeSession{onSend: echoDevice("SW#", nil)}
	sess.push("SW#")

	var mu sync.Mutex
	var events []bool
	opts := testOptions()
	opts.OnActivity = func(ip string, active bool) {
		mu.Lock()
		events = append(events, active)
		mu.Unlock()
	}

	ch := NewChannel(&fakeTransport{sess: sess}, "10.0.0.5", "super", "sp-admin", opts, zap.NewNop())
	require.NoError(t, ch.Connect())
	ch.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, events)
}

func TestEndsWithPrompt(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ICX7150-48P Router#", true},
		{"some output\nICX7150>", true},
		{"SW(config-vlan-10)#", true},
		{"loading output\n--More--, next page: Space#", false},
		{"no prompt here", false},
		{"", false},
		{strings.Repeat("x", 100) + "#", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, endsWithPrompt(tt.in), "input %q", tt.in)
	}
}

func TestCleanOutput(t *testing.T) {
	raw := "show version\r\nSW: Version 09.0.10d\r\nHW: ICX7150\r\nSW#"
	assert.Equal(t, "SW: Version 09.0.10d\nHW: ICX7150", cleanOutput(raw, "show version"))

	// Output without the echo still loses its trailing prompt
	raw = "line one\nline two\nSW#"
	assert.Equal(t, "line one\nline two", cleanOutput(raw, "something else"))
}
