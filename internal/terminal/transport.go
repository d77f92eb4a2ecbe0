package terminal

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is one raw interactive shell: bytes in, bytes out, no structure.
// The Channel layers prompt handling on top of it.
type Session interface {
	Send(data []byte) error
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

// Transport opens interactive sessions. The direct SSH implementation below
// is the production path; a relayed or proxied session satisfies the same
// interface, as does the scripted fake used in tests.
type Transport interface {
	Dial(ip, username, password string, timeout time.Duration) (Session, error)
}

// SSHTransport opens pty-backed shells over direct SSH connections.
type SSHTransport struct{}

// NewSSHTransport creates the direct SSH transport
func NewSSHTransport() *SSHTransport {
	return &SSHTransport{}
}

// Dial connects and requests an interactive pty shell. Plain exec semantics
// are not enough here: the device CLI keeps config-mode state between
// commands, so the shell must stay open for the unit of work.
func (t *SSHTransport) Dial(ip, username, password string, timeout time.Duration) (Session, error) {
	config := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:22", ip), config)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %s@%s", ErrAuth, username, ip)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, ip, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: session: %v", ErrUnreachable, ip, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 80, 200, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %s: pty: %v", ErrUnreachable, ip, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %s: stdin: %v", ErrUnreachable, ip, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %s: stdout: %v", ErrUnreachable, ip, err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %s: shell: %v", ErrUnreachable, ip, err)
	}

	s := &sshSession{
		client:  client,
		session: session,
		stdin:   stdin,
		readCh:  make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	go s.pump(stdout)

	return s, nil
}

// sshSession adapts an ssh.Session shell to the Session interface
type sshSession struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	readCh  chan []byte
	done    chan struct{}
}

func (s *sshSession) pump(r io.Reader) {
	defer close(s.readCh)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.readCh <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *sshSession) Send(data []byte) error {
	_, err := s.stdin.Write(data)
	return err
}

func (s *sshSession) Recv(timeout time.Duration) ([]byte, error) {
	select {
	case chunk, ok := <-s.readCh:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

func (s *sshSession) Close() error {
	close(s.done)
	s.session.Close()
	return s.client.Close()
}
