// Package tunnelssh implements the SSH session tunnel variant (SPEC_FULL.md
// §4.2, component C2): outbound connect, authenticate, host-key check,
// request remote tcpip-forward, keepalive, and bridge forwarded-tcpip
// channels to a local TCP endpoint.
//
// In Go, golang.org/x/crypto/ssh's (*ssh.Client).Listen transparently
// performs the tcpip-forward global request and returns a net.Listener whose
// Accept yields one net.Conn per forwarded-tcpip channel, so this package has
// no hand-rolled channel-type dispatch.
package tunnelssh

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/miaoagent/internal/sshkeys"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// preferredKeyExchanges pins curve25519 first and keeps extension-info
// signaling available to the server, matching SPEC_FULL.md §6. This is
// pinned explicitly rather than left to library defaults so an
// x/crypto/ssh upgrade cannot silently reorder it.
var preferredKeyExchanges = []string{
	"curve25519-sha256",
	"curve25519-sha256@libssh.org",
	"ecdh-sha2-nistp256",
	"ecdh-sha2-nistp384",
	"ecdh-sha2-nistp521",
	"diffie-hellman-group14-sha256",
}

// buildClientConfig translates a TunnelConfig's auth and host-key policy
// into an *ssh.ClientConfig. The caller supplies the timeout separately via
// context, since ssh.ClientConfig's own Timeout only bounds the TCP dial.
func buildClientConfig(cfg tunnelmodel.TunnelConfig) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch cfg.Auth.Kind {
	case tunnelmodel.AuthPassword:
		authMethods = append(authMethods, ssh.Password(cfg.Auth.Secret))
	case tunnelmodel.AuthPrivateKeyPath:
		signer, err := sshkeys.LoadSigner(cfg.Auth.Path, cfg.Auth.Passphrase)
		if err != nil {
			return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeAuthFailed, fmt.Sprintf("load private key: %v", err))
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	default:
		return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeConfigInvalid, fmt.Sprintf("unknown auth kind %q", cfg.Auth.Kind))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.StrictHostKeyChecking {
		if cfg.HostKeyFingerprint == "" {
			return nil, tunnelmodel.NewTunnelError(tunnelmodel.CodeHostkeyMissing, "strict host key checking enabled with no fingerprint configured")
		}
		hostKeyCallback = sshkeys.StrictHostKeyCallback(cfg.HostKeyFingerprint)
	} else {
		hostKeyCallback = sshkeys.InsecureHostKeyCallback()
	}

	username := cfg.Username
	if username == "" {
		username = "root"
	}

	return &ssh.ClientConfig{
		User:            username,
		Auth:            authMethods,
		HostKeyCallback: wrapHostKeyCallback(hostKeyCallback),
		Config: ssh.Config{
			KeyExchanges: preferredKeyExchanges,
		},
		Timeout: time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
	}, nil
}

// wrapHostKeyCallback translates a *sshkeys.FingerprintMismatchError from the
// underlying callback into a *tunnelmodel.TunnelError so callers see the
// stable HOSTKEY_MISMATCH code rather than the sshkeys-specific type.
func wrapHostKeyCallback(cb ssh.HostKeyCallback) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := cb(hostname, remote, key); err != nil {
			return tunnelmodel.NewTunnelError(tunnelmodel.CodeHostkeyMismatch, err.Error())
		}
		return nil
	}
}
