package tunnelssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// Session wraps one connected, forwarding SSH client for a single tunnel.
type Session struct {
	cfg      tunnelmodel.TunnelConfig
	client   *ssh.Client
	listener net.Listener
}

// connect performs the TCP dial plus SSH handshake and authentication,
// bounded by cfg.ConnectTimeoutMs. Host-key verification happens inline via
// the HostKeyCallback installed in buildClientConfig.
func connect(ctx context.Context, cfg tunnelmodel.TunnelConfig) (*ssh.Client, error) {
	clientCfg, err := buildClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.SSHHost, fmt.Sprintf("%d", cfg.SSHPort))
	timeout := time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		client *ssh.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		client, dialErr := ssh.Dial("tcp", addr, clientCfg)
		done <- result{client, dialErr}
	}()

	select {
	case <-dialCtx.Done():
		return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeSSHConnectTimeout, fmt.Sprintf("connect to %s timed out", addr))
	case r := <-done:
		if r.err != nil {
			var tErr *tunnelmodel.TunnelError
			if errors.As(r.err, &tErr) {
				return nil, tErr
			}
			if _, ok := r.err.(*ssh.AuthenticationError); ok {
				return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeAuthFailed, r.err.Error())
			}
			return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeSSHConnectFailed, r.err.Error())
		}
		return r.client, nil
	}
}

// requestForward issues the tcpip-forward global request for
// (cfg.RemoteBindAddr, cfg.RemotePort) via (*ssh.Client).Listen, bounded by
// cfg.ConnectTimeoutMs.
func requestForward(ctx context.Context, client *ssh.Client, cfg tunnelmodel.TunnelConfig) (net.Listener, error) {
	addr := net.JoinHostPort(cfg.RemoteBindAddr, fmt.Sprintf("%d", cfg.RemotePort))
	timeout := time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond

	type result struct {
		listener net.Listener
		err      error
	}
	done := make(chan result, 1)
	go func() {
		l, err := client.Listen("tcp", addr)
		done <- result{l, err}
	}()

	select {
	case <-time.After(timeout):
		return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeTCPIPForwardTimeout, fmt.Sprintf("tcpip-forward for %s timed out", addr))
	case r := <-done:
		if r.err != nil {
			if isRequestDenied(r.err) {
				return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeRemotePortConflict, r.err.Error())
			}
			return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeTCPIPForwardFailed, r.err.Error())
		}
		return r.listener, nil
	}
}

// isRequestDenied reports whether err indicates the server refused the
// tcpip-forward request (e.g. the remote port is already bound).
func isRequestDenied(err error) bool {
	// golang.org/x/crypto/ssh surfaces a denied global request as a plain
	// error without a dedicated type; match on the message it produces.
	const marker = "ssh: tcpip-forward request denied by peer"
	return err != nil && len(err.Error()) >= len(marker) && err.Error()[:len(marker)] == marker
}

// Connect establishes the SSH session and requests the remote forward,
// returning a Session ready for AcceptLoop/Keepalive. The caller owns
// shutdown via Close.
func Connect(ctx context.Context, cfg tunnelmodel.TunnelConfig) (*Session, error) {
	client, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	listener, err := requestForward(ctx, client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Session{cfg: cfg, client: client, listener: listener}, nil
}

// Close sends cancel-tcpip-forward (implicitly, by closing the listener) and
// disconnects the underlying SSH client.
func (s *Session) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
}
