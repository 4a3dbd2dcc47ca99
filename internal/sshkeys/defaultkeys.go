package sshkeys

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// DefaultKeyPaths returns the default private-key search order used when a
// backup target's password auth has an empty secret:
// ~/.ssh/id_ed25519, ~/.ssh/id_rsa, ~/.ssh/id_ecdsa, in that order.
func DefaultKeyPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("default key paths: resolve home directory: %w", err)
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}, nil
}

// LoadSigner reads and parses the private key at path, returning an
// ssh.Signer. passphrase is used if the key is encrypted; pass "" for none.
func LoadSigner(path string, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", path, err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return signer, nil
}

// TryDefaultKeySigners attempts to load a signer from each of
// [DefaultKeyPaths] in order, skipping paths that do not exist or fail to
// parse. It returns the first signer that loads successfully, or an error
// naming every attempt if none did.
func TryDefaultKeySigners() (ssh.Signer, error) {
	paths, err := DefaultKeyPaths()
	if err != nil {
		return nil, err
	}

	var attempts []string
	for _, p := range paths {
		if _, statErr := os.Stat(p); statErr != nil {
			continue
		}
		signer, loadErr := LoadSigner(p, "")
		if loadErr != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", p, loadErr))
			continue
		}
		return signer, nil
	}

	if len(attempts) == 0 {
		return nil, fmt.Errorf("default key auth failed: no default key files found")
	}
	return nil, fmt.Errorf("default key auth failed: %v", attempts)
}
