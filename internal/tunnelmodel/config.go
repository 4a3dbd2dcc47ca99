// Package tunnelmodel defines the data shapes shared by the tunnel session
// (tunnelssh), supervisor/reconciler (tunnelmgr), and full-tunnel set
// controller (fulltunnel) packages: TunnelConfig, its runtime status, and the
// error taxonomy the supervisor's state machine drives off of.
package tunnelmodel

import "fmt"

// AuthKind distinguishes the two TunnelConfig auth variants.
type AuthKind string

const (
	AuthPassword       AuthKind = "password"
	AuthPrivateKeyPath AuthKind = "private_key_path"
)

// Auth is a tagged union over the supported SSH authentication methods.
// Exactly one of Secret (for AuthPassword) or Path/Passphrase (for
// AuthPrivateKeyPath) is meaningful, selected by Kind.
type Auth struct {
	Kind       AuthKind `json:"kind"`
	Secret     string   `json:"secret,omitempty"`
	Path       string   `json:"path,omitempty"`
	Passphrase string   `json:"passphrase,omitempty"`
}

// ManagedByKind distinguishes user-authored tunnels from ones synthesized by
// a full-tunnel set.
type ManagedByKind string

const (
	ManagedByNone       ManagedByKind = "none"
	ManagedByFullTunnel ManagedByKind = "full_tunnel"
)

// ManagedBy records the provenance of a TunnelConfig.
type ManagedBy struct {
	Kind        ManagedByKind `json:"kind"`
	SetID       string        `json:"set_id,omitempty"`
	ManagedPort uint16        `json:"managed_port,omitempty"`
}

// Backoff holds the base and ceiling for the supervisor's bounded exponential
// reconnect delay (see computeBackoff in tunnelmgr).
type Backoff struct {
	BaseMs uint64 `json:"base_ms"`
	MaxMs  uint64 `json:"max_ms"`
}

// DefaultBackoff matches the backoff the full-tunnel controller stamps onto
// synthesized tunnels (§4.5).
func DefaultBackoff() Backoff {
	return Backoff{BaseMs: 500, MaxMs: 30_000}
}

// TunnelConfig is the immutable configuration for one tunnel supervisor
// incarnation. Two configs are "byte-identical" for ApplyConfig's diff
// purposes iff they are deep-equal (Go struct equality over all fields, since
// TunnelConfig contains no pointers or maps).
type TunnelConfig struct {
	ID string `json:"id"`

	LocalAddr      string `json:"local_addr"`
	LocalPort      uint16 `json:"local_port"`
	RemoteBindAddr string `json:"remote_bind_addr"`
	RemotePort     uint16 `json:"remote_port"`
	SSHHost        string `json:"ssh_host"`
	SSHPort        uint16 `json:"ssh_port"`
	Username       string `json:"username"`

	Auth Auth `json:"auth"`

	Enabled               bool      `json:"enabled"`
	StrictHostKeyChecking bool      `json:"strict_host_key_checking"`
	HostKeyFingerprint    string    `json:"host_key_fingerprint"`
	AllowPublicBind       bool      `json:"allow_public_bind"`
	ConnectTimeoutMs      uint64    `json:"connect_timeout_ms"`
	KeepaliveIntervalMs   uint64    `json:"keepalive_interval_ms"`
	ReconnectBackoff      Backoff   `json:"reconnect_backoff"`
	ManagedBy             ManagedBy `json:"managed_by"`
}

// Validate checks the invariants from SPEC_FULL.md §3: a non-zero remote
// port, AllowPublicBind set whenever RemoteBindAddr is "0.0.0.0", and a
// non-empty HostKeyFingerprint whenever StrictHostKeyChecking is set.
func (c TunnelConfig) Validate() error {
	if c.RemotePort == 0 {
		return &TunnelError{Code: CodeConfigInvalid, Message: "remote_port must be non-zero"}
	}
	if c.RemoteBindAddr == "0.0.0.0" && !c.AllowPublicBind {
		return &TunnelError{Code: CodePublicBindNotAllowed, Message: "remote_bind_addr 0.0.0.0 requires allow_public_bind"}
	}
	if c.StrictHostKeyChecking && c.HostKeyFingerprint == "" {
		return &TunnelError{Code: CodeHostkeyMissing, Message: "strict_host_key_checking requires host_key_fingerprint"}
	}
	return nil
}

// Equal reports whether two configs are byte-identical for ApplyConfig's
// diff purposes.
func (c TunnelConfig) Equal(other TunnelConfig) bool {
	return c == other
}

// State is a tunnel supervisor's lifecycle state.
type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateForwarding State = "forwarding"
	StateError      State = "error"
)

// LastError records the most recent tunnel-level failure.
type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	AtMs    int64  `json:"at_ms"`
}

// RuntimeStatus is the mutable status cell a supervisor owns and external
// readers observe via cloned snapshots.
type RuntimeStatus struct {
	State       State      `json:"state"`
	ActiveConns uint32     `json:"active_conns"`
	BytesIn     uint64     `json:"bytes_in"`
	BytesOut    uint64     `json:"bytes_out"`
	LastOkAtMs  int64      `json:"last_ok_at_ms,omitempty"`
	LastError   *LastError `json:"last_error,omitempty"`
}

// Clone returns a deep copy suitable for handing to external readers.
func (s RuntimeStatus) Clone() RuntimeStatus {
	cp := s
	if s.LastError != nil {
		le := *s.LastError
		cp.LastError = &le
	}
	return cp
}

func (c TunnelConfig) String() string {
	return fmt.Sprintf("TunnelConfig{id=%s local=%s:%d remote=%s:%d ssh=%s:%d}",
		c.ID, c.LocalAddr, c.LocalPort, c.RemoteBindAddr, c.RemotePort, c.SSHHost, c.SSHPort)
}
