package tunnelmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
	"github.com/gluk-w/miaoagent/internal/tunnelssh"
)

// Manager is the Tunnel Manager / reconciler (C4). It exclusively owns the
// id→supervisor mapping; each supervisor exclusively owns its own session
// and status cell.
type Manager struct {
	mu      sync.Mutex
	byID    map[string]*supervisor
	cfgs    map[string]tunnelmodel.TunnelConfig
	persist func([]tunnelmodel.TunnelConfig)
}

// NewManager constructs an empty Manager. persist, if non-nil, is called
// with the full desired set after every successful ApplyConfig so the
// caller can write it back to the durable store without the manager
// importing the database package directly.
func NewManager(persist func([]tunnelmodel.TunnelConfig)) *Manager {
	return &Manager{
		byID:    make(map[string]*supervisor),
		cfgs:    make(map[string]tunnelmodel.TunnelConfig),
		persist: persist,
	}
}

// ApplyConfig reconciles the running supervisors to match desired, per
// SPEC_FULL.md §4.4: supervisors for ids no longer present are stopped and
// awaited first; for each desired config, an absent id spawns a new
// supervisor (started stopped if the config is disabled), and a present id
// whose config changed is stopped, awaited, and replaced. Unchanged ids are
// left running untouched.
func (m *Manager) ApplyConfig(desired []tunnelmodel.TunnelConfig) error {
	for _, cfg := range desired {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	desiredByID := make(map[string]tunnelmodel.TunnelConfig, len(desired))
	for _, cfg := range desired {
		desiredByID[cfg.ID] = cfg
	}

	m.mu.Lock()
	var toStop []*supervisor
	for id, sup := range m.byID {
		if _, ok := desiredByID[id]; !ok {
			toStop = append(toStop, sup)
			delete(m.byID, id)
			delete(m.cfgs, id)
		}
	}
	m.mu.Unlock()

	for _, sup := range toStop {
		sup.requestStop()
	}

	for _, cfg := range desired {
		m.mu.Lock()
		existing, ok := m.byID[cfg.ID]
		var prevCfg tunnelmodel.TunnelConfig
		if ok {
			prevCfg = m.cfgs[cfg.ID]
		}
		m.mu.Unlock()

		if ok && prevCfg.Equal(cfg) {
			continue
		}
		if ok {
			existing.requestStop()
		}

		sup := newSupervisor(cfg)
		m.mu.Lock()
		m.byID[cfg.ID] = sup
		m.cfgs[cfg.ID] = cfg
		m.mu.Unlock()

		go sup.run()
	}

	if m.persist != nil {
		m.persist(desired)
	}
	return nil
}

// Shutdown stops every running supervisor without mutating the persisted
// configuration, so a process restart resumes the same desired set. Callers
// that genuinely want to discard the tunnel set should use ApplyConfig(nil)
// instead.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sups := make([]*supervisor, 0, len(m.byID))
	for _, sup := range m.byID {
		sups = append(sups, sup)
	}
	m.mu.Unlock()

	for _, sup := range sups {
		sup.requestStop()
	}
}

// Start re-enables and (re)starts tunnel id using its current stored config.
func (m *Manager) Start(id string) error {
	m.mu.Lock()
	cfg, ok := m.cfgs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tunnel %s: not found", id)
	}
	cfg.Enabled = true
	return m.ApplyConfig(m.replaceOne(cfg))
}

// Stop disables and stops tunnel id without removing it from the set.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	cfg, ok := m.cfgs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tunnel %s: not found", id)
	}
	cfg.Enabled = false
	return m.ApplyConfig(m.replaceOne(cfg))
}

// Restart stops and respawns tunnel id's supervisor, even if its config is
// unchanged (bypassing the byte-identical-config no-op path).
func (m *Manager) Restart(id string) error {
	m.mu.Lock()
	sup, ok := m.byID[id]
	cfg := m.cfgs[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tunnel %s: not found", id)
	}
	sup.requestStop()

	newSup := newSupervisor(cfg)
	m.mu.Lock()
	m.byID[id] = newSup
	m.mu.Unlock()
	go newSup.run()
	return nil
}

// replaceOne returns the full desired set with id's config replaced by cfg,
// used by Start/Stop to go through the normal ApplyConfig diff path.
func (m *Manager) replaceOne(cfg tunnelmodel.TunnelConfig) []tunnelmodel.TunnelConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tunnelmodel.TunnelConfig, 0, len(m.cfgs))
	for id, existing := range m.cfgs {
		if id == cfg.ID {
			out = append(out, cfg)
		} else {
			out = append(out, existing)
		}
	}
	return out
}

// Snapshot returns the current desired TunnelConfig set.
func (m *Manager) Snapshot() []tunnelmodel.TunnelConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tunnelmodel.TunnelConfig, 0, len(m.cfgs))
	for _, cfg := range m.cfgs {
		out = append(out, cfg)
	}
	return out
}

// MutateConfigs runs fn over the current desired set under the config lock
// and applies its result, matching SPEC_FULL.md §4.5's "atomically (under
// the config lock)" admit/retire requirement. fn must not block on network
// I/O or acquire any other lock.
func (m *Manager) MutateConfigs(fn func([]tunnelmodel.TunnelConfig) []tunnelmodel.TunnelConfig) error {
	m.mu.Lock()
	current := make([]tunnelmodel.TunnelConfig, 0, len(m.cfgs))
	for _, cfg := range m.cfgs {
		current = append(current, cfg)
	}
	next := fn(current)
	m.mu.Unlock()

	return m.ApplyConfig(next)
}

// GetConfig returns the current desired config for id and whether it exists.
func (m *Manager) GetConfig(id string) (tunnelmodel.TunnelConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.cfgs[id]
	return cfg, ok
}

// GetStatus returns a cloned status snapshot for id and whether it exists.
func (m *Manager) GetStatus(id string) (tunnelmodel.RuntimeStatus, bool) {
	m.mu.Lock()
	sup, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		return tunnelmodel.RuntimeStatus{}, false
	}
	return sup.snapshot(), true
}

// List returns every tracked tunnel's (config, status) pair.
func (m *Manager) List() []struct {
	Config tunnelmodel.TunnelConfig
	Status tunnelmodel.RuntimeStatus
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]struct {
		Config tunnelmodel.TunnelConfig
		Status tunnelmodel.RuntimeStatus
	}, 0, len(m.cfgs))
	for id, cfg := range m.cfgs {
		sup := m.byID[id]
		out = append(out, struct {
			Config tunnelmodel.TunnelConfig
			Status tunnelmodel.RuntimeStatus
		}{Config: cfg, Status: sup.snapshot()})
	}
	return out
}

// Test validates cfg and attempts a connect+forward+immediate-close cycle
// without registering a supervisor, returning any failure as a
// *tunnelmodel.TunnelError.
func (m *Manager) Test(cfg tunnelmodel.TunnelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectTimeoutMs)*time.Millisecond)
	defer cancel()

	sess, err := tunnelssh.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	sess.Close()
	return nil
}

// DumpYAML renders cfg as YAML (SPEC_FULL.md §11). Nothing in this module
// calls it: the status surface serves JSON only, and startup reads configs
// from the database, not from a YAML file.
func DumpYAML(cfg tunnelmodel.TunnelConfig) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
