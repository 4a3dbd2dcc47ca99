package execssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/miaoagent/internal/sshkeys"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

var preferredKeyExchanges = []string{
	"curve25519-sha256",
	"curve25519-sha256@libssh.org",
	"ecdh-sha2-nistp256",
	"ecdh-sha2-nistp384",
	"ecdh-sha2-nistp521",
	"diffie-hellman-group14-sha256",
}

// Session wraps one connected SSH client used to run commands on a remote
// host during a backup run. Host keys are not verified: backup operations
// accept any server key by design (SPEC_FULL.md §4.6).
type Session struct {
	client *ssh.Client
}

// Connect dials host:port and authenticates using auth, falling back to
// the default key search (~/.ssh/id_ed25519, id_rsa, id_ecdsa in that order)
// when auth is a password variant with an empty secret.
func Connect(ctx context.Context, host string, port uint16, username string, auth tunnelmodel.Auth, connectTimeoutMs uint64) (*Session, error) {
	authMethods, err := buildAuthMethods(auth)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Config:          ssh.Config{KeyExchanges: preferredKeyExchanges},
		Timeout:         time.Duration(connectTimeoutMs) * time.Millisecond,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(connectTimeoutMs)*time.Millisecond)
	defer cancel()

	type result struct {
		client *ssh.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, dialErr := ssh.Dial("tcp", addr, clientCfg)
		done <- result{c, dialErr}
	}()

	select {
	case <-dialCtx.Done():
		return nil, fmt.Errorf("connect to %s timed out", addr)
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("ssh connect: %w", r.err)
		}
		return &Session{client: r.client}, nil
	}
}

func buildAuthMethods(auth tunnelmodel.Auth) ([]ssh.AuthMethod, error) {
	switch auth.Kind {
	case tunnelmodel.AuthPassword:
		if auth.Secret != "" {
			return []ssh.AuthMethod{ssh.Password(auth.Secret)}, nil
		}
		signer, err := sshkeys.TryDefaultKeySigners()
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case tunnelmodel.AuthPrivateKeyPath:
		signer, err := sshkeys.LoadSigner(auth.Path, auth.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("unknown auth kind %q", auth.Kind)
	}
}

// ExecError carries the command, exit code, and captured stderr for a
// non-zero or failed remote execution.
type ExecError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec %q: exit %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Exec runs cmd in a new session channel and drains its stdout/stderr.
func (s *Session) Exec(cmd string) (int, []byte, []byte, error) {
	return s.ExecWithStdin(cmd, nil)
}

// ExecWithStdin runs cmd in a new session channel, streaming stdin (if
// non-nil) into the remote process before waiting for completion.
func (s *Session) ExecWithStdin(cmd string, stdin io.Reader) (int, []byte, []byte, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return -1, nil, nil, fmt.Errorf("open channel: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if stdin != nil {
		stdinPipe, err := sess.StdinPipe()
		if err != nil {
			return -1, nil, nil, fmt.Errorf("open stdin pipe: %w", err)
		}
		if err := sess.Start(cmd); err != nil {
			return -1, nil, nil, fmt.Errorf("start %q: %w", cmd, err)
		}
		if _, err := io.Copy(stdinPipe, stdin); err != nil {
			stdinPipe.Close()
			return -1, nil, nil, fmt.Errorf("write stdin: %w", err)
		}
		stdinPipe.Close()

		exitCode := 0
		if err := sess.Wait(); err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return -1, stdout.Bytes(), stderr.Bytes(), fmt.Errorf("wait %q: %w", cmd, err)
			}
		}
		return exitCode, stdout.Bytes(), stderr.Bytes(), nil
	}

	exitCode := 0
	if err := sess.Run(cmd); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		} else {
			return -1, stdout.Bytes(), stderr.Bytes(), fmt.Errorf("run %q: %w", cmd, err)
		}
	}
	return exitCode, stdout.Bytes(), stderr.Bytes(), nil
}

// DownloadFile returns the remote file's content, or an empty slice if it
// does not exist.
func (s *Session) DownloadFile(path string) ([]byte, error) {
	cmd := fmt.Sprintf("cat %s 2>/dev/null || true", ShellEscape(path))
	_, stdout, _, err := s.Exec(cmd)
	return stdout, err
}

// UploadFile writes content to path on the remote host.
func (s *Session) UploadFile(path string, content []byte) error {
	cmd := fmt.Sprintf("cat > %s", ShellEscape(path))
	exitCode, _, stderr, err := s.ExecWithStdin(cmd, bytes.NewReader(content))
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return &ExecError{Command: cmd, ExitCode: exitCode, Stderr: string(stderr)}
	}
	return nil
}

// Disconnect best-effort closes the underlying SSH client.
func (s *Session) Disconnect() {
	if s.client != nil {
		s.client.Close()
	}
}

// ShellEscape wraps s in single quotes, replacing every embedded single
// quote with '\''.
func ShellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
