package sshkeys

import (
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
)

// FingerprintMismatchError is returned when a host key's fingerprint does not
// match the expected value. This may indicate key tampering or a MITM attack.
type FingerprintMismatchError struct {
	Expected string
	Actual   string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("SSH host key fingerprint mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// GetPublicKeyFingerprint calculates the SHA256 fingerprint of an SSH public
// key (the ssh.PublicKey form, as passed to a HostKeyCallback), formatted
// "SHA256:<base64-no-pad>".
func GetPublicKeyFingerprint(key ssh.PublicKey) string {
	return ssh.FingerprintSHA256(key)
}

// GetAuthorizedKeyFingerprint parses publicKey in SSH authorized_keys format
// (e.g. "ssh-ed25519 AAAA...") and returns its SHA256 fingerprint.
func GetAuthorizedKeyFingerprint(publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", fmt.Errorf("get fingerprint: public key is empty")
	}
	parsed, _, _, _, err := ssh.ParseAuthorizedKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("get fingerprint: parse public key: %w", err)
	}
	return ssh.FingerprintSHA256(parsed), nil
}

// InsecureHostKeyCallback returns an ssh.HostKeyCallback that accepts any
// server host key without verification. Used when a tunnel's
// StrictHostKeyChecking is false.
func InsecureHostKeyCallback() ssh.HostKeyCallback {
	return ssh.InsecureIgnoreHostKey()
}

// StrictHostKeyCallback returns an ssh.HostKeyCallback that compares the
// server's host key fingerprint against expectedFingerprint and rejects the
// connection with a *FingerprintMismatchError on any mismatch.
// expectedFingerprint must be non-empty; the HOSTKEY_MISSING case (empty
// fingerprint under strict checking) is enforced by TunnelConfig validation
// before this callback is ever constructed.
func StrictHostKeyCallback(expectedFingerprint string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		actual := ssh.FingerprintSHA256(key)
		if actual != expectedFingerprint {
			return &FingerprintMismatchError{Expected: expectedFingerprint, Actual: actual}
		}
		return nil
	}
}
