// Package sshkeys provides SSH key material and host-key verification helpers
// shared by the tunnel and backup SSH clients.
//
// [GenerateKeyPair] and [SaveKeyPair] create and persist ED25519 key pairs;
// tests use them to stand up in-process SSH servers with a throwaway host
// key. [DefaultKeyPaths] and [TryDefaultKeySigners] implement the default
// private-key search the backup session falls back to when password auth
// has an empty secret; [LoadSigner] loads one key file. [GetPublicKeyFingerprint] and
// [GetAuthorizedKeyFingerprint] compute SHA256 host-key fingerprints;
// [StrictHostKeyCallback] and [InsecureHostKeyCallback] build the two
// ssh.HostKeyCallback variants the tunnel session chooses between based on
// its strict-host-key-checking policy.
package sshkeys
