package tunnelmodel

import "testing"

func TestTcpTunnelSetConfigClamp(t *testing.T) {
	c := TcpTunnelSetConfig{
		ScanIntervalMs:       10,
		DebounceMs:           1_000_000,
		StartBatchSize:       0,
		StartBatchIntervalMs: 120_000,
	}
	c.Clamp()

	if c.ScanIntervalMs != 500 {
		t.Errorf("ScanIntervalMs = %d, want 500", c.ScanIntervalMs)
	}
	if c.DebounceMs != 300_000 {
		t.Errorf("DebounceMs = %d, want 300000", c.DebounceMs)
	}
	if c.StartBatchSize != 1 {
		t.Errorf("StartBatchSize = %d, want 1", c.StartBatchSize)
	}
	if c.StartBatchIntervalMs != 60_000 {
		t.Errorf("StartBatchIntervalMs = %d, want 60000", c.StartBatchIntervalMs)
	}

	c2 := TcpTunnelSetConfig{ScanIntervalMs: 999_999, StartBatchSize: 999}
	c2.Clamp()
	if c2.ScanIntervalMs != 60_000 {
		t.Errorf("ScanIntervalMs = %d, want clamped to 60000", c2.ScanIntervalMs)
	}
	if c2.StartBatchSize != 128 {
		t.Errorf("StartBatchSize = %d, want clamped to 128", c2.StartBatchSize)
	}
}

func TestSynthesizeTunnel(t *testing.T) {
	set := TcpTunnelSetConfig{
		ID:               "set-1",
		SSHHost:          "host.example",
		SSHPort:          22,
		Username:         "ops",
		Auth:             Auth{Kind: AuthPassword, Secret: "s3cret"},
		RemoteBindAddr:   "0.0.0.0",
		ConnectTimeoutMs: 5000,
	}

	tc := set.SynthesizeTunnel("generated-id", 8443)

	if tc.ID != "generated-id" {
		t.Errorf("ID = %q, want generated-id", tc.ID)
	}
	if tc.LocalPort != 8443 || tc.RemotePort != 8443 {
		t.Errorf("expected LocalPort/RemotePort 8443, got %d/%d", tc.LocalPort, tc.RemotePort)
	}
	if tc.LocalAddr != "127.0.0.1" {
		t.Errorf("LocalAddr = %q, want 127.0.0.1", tc.LocalAddr)
	}
	if !tc.AllowPublicBind {
		t.Error("AllowPublicBind should be true when RemoteBindAddr is 0.0.0.0")
	}
	if !tc.Enabled {
		t.Error("synthesized tunnel should be Enabled")
	}
	if tc.ManagedBy.Kind != ManagedByFullTunnel || tc.ManagedBy.SetID != "set-1" || tc.ManagedBy.ManagedPort != 8443 {
		t.Errorf("unexpected ManagedBy: %+v", tc.ManagedBy)
	}
	if tc.SSHHost != set.SSHHost || tc.Username != set.Username || tc.Auth != set.Auth {
		t.Error("synthesized tunnel should copy SSH template fields from the set")
	}
	if tc.KeepaliveIntervalMs != 10_000 {
		t.Errorf("KeepaliveIntervalMs = %d, want 10000", tc.KeepaliveIntervalMs)
	}
}
