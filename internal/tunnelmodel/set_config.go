package tunnelmodel

// TcpTunnelSetConfig is the declarative configuration for one full-tunnel
// autodiscovery set (§4.5): a scan loop that watches the host's listening
// ports and synthesizes/retires TunnelConfigs to match.
type TcpTunnelSetConfig struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`

	ScanIntervalMs       uint64 `json:"scan_interval_ms"`
	DebounceMs           uint64 `json:"debounce_ms"`
	IncludePortsEnabled  bool   `json:"include_ports_enabled"`
	IncludePorts         map[uint16]struct{} `json:"include_ports"`
	ExcludePorts         map[uint16]struct{} `json:"exclude_ports"`
	StartBatchSize       int    `json:"start_batch_size"`
	StartBatchIntervalMs uint64 `json:"start_batch_interval_ms"`

	// SSH template fields, copied onto each synthesized TunnelConfig.
	SSHHost               string `json:"ssh_host"`
	SSHPort               uint16 `json:"ssh_port"`
	Username              string `json:"username"`
	Auth                  Auth   `json:"auth"`
	RemoteBindAddr        string `json:"remote_bind_addr"`
	StrictHostKeyChecking bool   `json:"strict_host_key_checking"`
	HostKeyFingerprint    string `json:"host_key_fingerprint"`
	ConnectTimeoutMs      uint64 `json:"connect_timeout_ms"`
}

// Clamp applies the bounds from SPEC_FULL.md §3 in place: ScanIntervalMs to
// [500, 60000], DebounceMs to [0, 300000], StartBatchSize to [1, 128], and
// StartBatchIntervalMs to at most 60000.
func (c *TcpTunnelSetConfig) Clamp() {
	c.ScanIntervalMs = clampU64(c.ScanIntervalMs, 500, 60_000)
	c.DebounceMs = clampU64(c.DebounceMs, 0, 300_000)
	if c.StartBatchSize < 1 {
		c.StartBatchSize = 1
	}
	if c.StartBatchSize > 128 {
		c.StartBatchSize = 128
	}
	if c.StartBatchIntervalMs > 60_000 {
		c.StartBatchIntervalMs = 60_000
	}
}

func clampU64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SynthesizeTunnel builds the TunnelConfig the admit step inserts for a
// newly-observed port, per §4.5 step 6.
func (c TcpTunnelSetConfig) SynthesizeTunnel(id string, port uint16) TunnelConfig {
	return TunnelConfig{
		ID:                    id,
		LocalAddr:             "127.0.0.1",
		LocalPort:             port,
		RemoteBindAddr:        c.RemoteBindAddr,
		RemotePort:            port,
		SSHHost:               c.SSHHost,
		SSHPort:               c.SSHPort,
		Username:              c.Username,
		Auth:                  c.Auth,
		Enabled:               true,
		StrictHostKeyChecking: c.StrictHostKeyChecking,
		HostKeyFingerprint:    c.HostKeyFingerprint,
		AllowPublicBind:       c.RemoteBindAddr == "0.0.0.0",
		ConnectTimeoutMs:      c.ConnectTimeoutMs,
		KeepaliveIntervalMs:   10_000,
		ReconnectBackoff:      DefaultBackoff(),
		ManagedBy:             ManagedBy{Kind: ManagedByFullTunnel, SetID: c.ID, ManagedPort: port},
	}
}
