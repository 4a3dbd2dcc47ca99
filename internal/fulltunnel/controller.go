package fulltunnel

import (
	"sync"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmgr"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// Controller owns one setLoop per enabled TcpTunnelSetConfig id.
type Controller struct {
	mgr *tunnelmgr.Manager

	mu    sync.Mutex
	sets  map[string]tunnelmodel.TcpTunnelSetConfig
	loops map[string]*setLoop
}

// NewController constructs a Controller driving tunnels through mgr.
func NewController(mgr *tunnelmgr.Manager) *Controller {
	return &Controller{
		mgr:   mgr,
		sets:  make(map[string]tunnelmodel.TcpTunnelSetConfig),
		loops: make(map[string]*setLoop),
	}
}

// SyncFromConfig is the reconciler analogue of tunnelmgr.Manager.ApplyConfig
// for sets (§4.5): it starts loops for newly-enabled ids, stops loops for
// removed or disabled ids, and leaves running loops untouched so template
// edits apply on the loop's next tick rather than forcing a restart.
func (c *Controller) SyncFromConfig(sets []tunnelmodel.TcpTunnelSetConfig) {
	c.mu.Lock()
	next := make(map[string]tunnelmodel.TcpTunnelSetConfig, len(sets))
	for _, s := range sets {
		next[s.ID] = s
	}

	var toStop []*setLoop
	for id, loop := range c.loops {
		s, stillPresent := next[id]
		if !stillPresent || !s.Enabled {
			toStop = append(toStop, loop)
			delete(c.loops, id)
		}
	}
	c.sets = next
	c.mu.Unlock()

	for _, loop := range toStop {
		loop.requestStop()
	}

	for id, s := range next {
		if !s.Enabled {
			continue
		}
		c.mu.Lock()
		_, running := c.loops[id]
		c.mu.Unlock()
		if running {
			continue
		}

		loop := newSetLoop(id, c.mgr, c.lookupSet(id))
		c.mu.Lock()
		c.loops[id] = loop
		c.mu.Unlock()
		go loop.run()
	}
}

// lookupSet returns a closure the setLoop re-invokes every tick to pick up
// template edits without restarting.
func (c *Controller) lookupSet(id string) func() (tunnelmodel.TcpTunnelSetConfig, bool) {
	return func() (tunnelmodel.TcpTunnelSetConfig, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		s, ok := c.sets[id]
		return s, ok
	}
}

// SetStatus is the read-only view the status HTTP surface exposes for one
// autodiscovery set.
type SetStatus struct {
	LastScanAt time.Time
	LastError  *tunnelmodel.LastError
	Running    bool
}

// GetStatus returns the current scan status for set id.
func (c *Controller) GetStatus(id string) (SetStatus, bool) {
	c.mu.Lock()
	loop, ok := c.loops[id]
	c.mu.Unlock()
	if !ok {
		return SetStatus{}, false
	}
	lastScanAt, lastErr := loop.status()
	return SetStatus{LastScanAt: lastScanAt, LastError: lastErr, Running: true}, true
}
