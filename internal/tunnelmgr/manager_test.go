package tunnelmgr

import (
	"testing"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// disabledConfig builds a valid, disabled TunnelConfig so its supervisor
// idles in Stopped immediately instead of attempting a real network dial.
func disabledConfig(id string) tunnelmodel.TunnelConfig {
	return tunnelmodel.TunnelConfig{
		ID:               id,
		LocalAddr:        "127.0.0.1",
		LocalPort:        8080,
		RemoteBindAddr:   "127.0.0.1",
		RemotePort:       9090,
		SSHHost:          "example.invalid",
		SSHPort:          22,
		Username:         "deploy",
		Auth:             tunnelmodel.Auth{Kind: tunnelmodel.AuthPassword, Secret: "x"},
		Enabled:          false,
		ConnectTimeoutMs: 1000,
		ReconnectBackoff: tunnelmodel.DefaultBackoff(),
	}
}

func waitForState(t *testing.T, m *Manager, id string, want tunnelmodel.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, ok := m.GetStatus(id)
		if ok && st.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tunnel %s never reached state %s", id, want)
}

func TestApplyConfigSpawnsAndPersists(t *testing.T) {
	var persisted []tunnelmodel.TunnelConfig
	m := NewManager(func(cfgs []tunnelmodel.TunnelConfig) { persisted = cfgs })

	cfg := disabledConfig("t1")
	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitForState(t, m, "t1", tunnelmodel.StateStopped)

	if len(persisted) != 1 || persisted[0].ID != "t1" {
		t.Errorf("expected persist callback with [t1], got %+v", persisted)
	}

	got, ok := m.GetConfig("t1")
	if !ok || got.ID != "t1" {
		t.Errorf("GetConfig(t1) = %+v, %v", got, ok)
	}
}

func TestApplyConfigRemovesStopped(t *testing.T) {
	m := NewManager(nil)

	cfg := disabledConfig("t1")
	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitForState(t, m, "t1", tunnelmodel.StateStopped)

	if err := m.ApplyConfig(nil); err != nil {
		t.Fatalf("ApplyConfig(nil): %v", err)
	}

	if _, ok := m.GetStatus("t1"); ok {
		t.Error("expected t1 to be removed after ApplyConfig(nil)")
	}
}

func TestApplyConfigNoopOnIdenticalConfig(t *testing.T) {
	m := NewManager(nil)
	cfg := disabledConfig("t1")

	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitForState(t, m, "t1", tunnelmodel.StateStopped)

	m.mu.Lock()
	firstSup := m.byID["t1"]
	m.mu.Unlock()

	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("second ApplyConfig: %v", err)
	}

	m.mu.Lock()
	secondSup := m.byID["t1"]
	m.mu.Unlock()

	if firstSup != secondSup {
		t.Error("identical config should not replace the supervisor")
	}
}

func TestApplyConfigRejectsInvalidConfig(t *testing.T) {
	m := NewManager(nil)
	cfg := disabledConfig("bad")
	cfg.RemotePort = 0

	err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg})
	if err == nil {
		t.Fatal("expected validation error for RemotePort=0")
	}
	if _, ok := m.GetStatus("bad"); ok {
		t.Error("invalid config should not have spawned a supervisor")
	}
}

func TestStopRejectsUnknownID(t *testing.T) {
	m := NewManager(nil)
	cfg := disabledConfig("t1")
	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitForState(t, m, "t1", tunnelmodel.StateStopped)

	if err := m.Stop("missing"); err == nil {
		t.Error("Stop on unknown id should error")
	}

	got, _ := m.GetConfig("t1")
	if got.Enabled {
		t.Fatal("fixture config should start disabled")
	}
}

func TestMutateConfigsAppliesUnderLock(t *testing.T) {
	m := NewManager(nil)
	cfg := disabledConfig("t1")
	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitForState(t, m, "t1", tunnelmodel.StateStopped)

	err := m.MutateConfigs(func(current []tunnelmodel.TunnelConfig) []tunnelmodel.TunnelConfig {
		return append(current, disabledConfig("t2"))
	})
	if err != nil {
		t.Fatalf("MutateConfigs: %v", err)
	}
	waitForState(t, m, "t2", tunnelmodel.StateStopped)

	if len(m.Snapshot()) != 2 {
		t.Errorf("expected 2 configs after MutateConfigs, got %d", len(m.Snapshot()))
	}
}

func TestShutdownStopsSupervisorsWithoutPersisting(t *testing.T) {
	persistCalls := 0
	m := NewManager(func([]tunnelmodel.TunnelConfig) { persistCalls++ })

	cfg := disabledConfig("t1")
	if err := m.ApplyConfig([]tunnelmodel.TunnelConfig{cfg}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	waitForState(t, m, "t1", tunnelmodel.StateStopped)

	callsBeforeShutdown := persistCalls
	m.Shutdown()

	if persistCalls != callsBeforeShutdown {
		t.Error("Shutdown must not invoke the persist callback")
	}
	if _, ok := m.GetConfig("t1"); !ok {
		t.Error("Shutdown must not remove persisted config, only stop the supervisor")
	}
}
