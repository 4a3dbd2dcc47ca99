// Package execssh implements the exec SSH session variant used by the
// backup pipeline (SPEC_FULL.md §4.6, component C6): same connect/auth
// policy as tunnelssh but without strict host-key enforcement, exposing
// command execution, stdin streaming, and small file upload/download over
// one persistent golang.org/x/crypto/ssh client.
package execssh
