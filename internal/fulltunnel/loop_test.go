package fulltunnel

import (
	"testing"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmgr"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestAdmitNewSynthesizesAndPersists(t *testing.T) {
	mgr := tunnelmgr.NewManager(nil)
	set := tunnelmodel.TcpTunnelSetConfig{
		ID:               "set-1",
		SSHHost:          "host.example",
		SSHPort:          22,
		Username:         "ops",
		RemoteBindAddr:   "127.0.0.1",
		ConnectTimeoutMs: 2000,
		StartBatchSize:   10,
	}

	loop := newSetLoop("set-1", mgr, func() (tunnelmodel.TcpTunnelSetConfig, bool) { return set, true })

	portsNow := map[uint16]struct{}{8080: {}, 9090: {}}
	loop.admitNew(set, portsNow, map[uint16]string{})

	waitFor(t, func() bool { return len(mgr.Snapshot()) == 2 })

	var sawPorts []uint16
	for _, cfg := range mgr.Snapshot() {
		if cfg.ManagedBy.Kind != tunnelmodel.ManagedByFullTunnel || cfg.ManagedBy.SetID != "set-1" {
			t.Errorf("unexpected ManagedBy on synthesized tunnel: %+v", cfg.ManagedBy)
		}
		sawPorts = append(sawPorts, cfg.ManagedBy.ManagedPort)
	}
	if len(sawPorts) != 2 {
		t.Fatalf("expected 2 synthesized tunnels, got %d", len(sawPorts))
	}
}

func TestAdmitNewSkipsAlreadyManagedPort(t *testing.T) {
	mgr := tunnelmgr.NewManager(nil)
	set := tunnelmodel.TcpTunnelSetConfig{ID: "set-1", StartBatchSize: 10}
	loop := newSetLoop("set-1", mgr, func() (tunnelmodel.TcpTunnelSetConfig, bool) { return set, true })

	portsNow := map[uint16]struct{}{8080: {}}
	managed := map[uint16]string{8080: "existing-id"}

	loop.admitNew(set, portsNow, managed)

	time.Sleep(50 * time.Millisecond)
	if len(mgr.Snapshot()) != 0 {
		t.Errorf("expected no new tunnel for an already-managed port, got %d", len(mgr.Snapshot()))
	}
}

func TestRetireMissingDebounces(t *testing.T) {
	mgr := tunnelmgr.NewManager(nil)
	set := tunnelmodel.TcpTunnelSetConfig{ID: "set-1", DebounceMs: 10_000}
	loop := newSetLoop("set-1", mgr, func() (tunnelmodel.TcpTunnelSetConfig, bool) { return set, true })

	cfg := set.SynthesizeTunnel("tunnel-a", 8080)
	cfg.Enabled = false
	if err := mgr.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitFor(t, func() bool { return len(mgr.Snapshot()) == 1 })

	managed := map[uint16]string{8080: "tunnel-a"}
	portsNow := map[uint16]struct{}{} // port no longer observed

	loop.retireMissing(set, portsNow, managed)
	if len(mgr.Snapshot()) != 1 {
		t.Error("first missing observation should not retire immediately (debounce)")
	}

	loop.mu.Lock()
	loop.firstMissing[8080] = time.Now().Add(-1 * time.Hour)
	loop.mu.Unlock()

	loop.retireMissing(set, portsNow, managed)
	waitFor(t, func() bool { return len(mgr.Snapshot()) == 0 })
}
