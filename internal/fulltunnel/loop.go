package fulltunnel

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/miaoagent/internal/portscan"
	"github.com/gluk-w/miaoagent/internal/tunnelmgr"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// setLoop drives one TcpTunnelSetConfig's scan→retire→admit cycle.
type setLoop struct {
	id      string
	mgr     *tunnelmgr.Manager
	getSet  func() (tunnelmodel.TcpTunnelSetConfig, bool)

	mu          sync.Mutex
	lastScanAt  time.Time
	lastError   *tunnelmodel.LastError
	firstMissing map[uint16]time.Time

	stop    chan struct{}
	stopped chan struct{}
}

func newSetLoop(id string, mgr *tunnelmgr.Manager, getSet func() (tunnelmodel.TcpTunnelSetConfig, bool)) *setLoop {
	return &setLoop{
		id:           id,
		mgr:          mgr,
		getSet:       getSet,
		firstMissing: make(map[uint16]time.Time),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

func (l *setLoop) requestStop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	<-l.stopped
}

// run implements SPEC_FULL.md §4.5's per-tick sequence, re-reading the set's
// template from getSet on every tick so template edits apply without a
// rolling restart.
func (l *setLoop) run() {
	defer close(l.stopped)

	for {
		set, ok := l.getSet()
		if !ok || !set.Enabled {
			return
		}
		set.Clamp()

		l.mu.Lock()
		l.lastScanAt = time.Now()
		l.lastError = nil
		l.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		scanResult, err := portscan.Scan(ctx)
		cancel()

		if err != nil {
			l.mu.Lock()
			l.lastError = &tunnelmodel.LastError{Code: "SCAN_FAILED", Message: err.Error(), AtMs: time.Now().UnixMilli()}
			l.mu.Unlock()
			if l.sleepOrStop(time.Duration(set.ScanIntervalMs) * time.Millisecond) {
				return
			}
			continue
		}

		portsNow := make(map[uint16]struct{})
		for p := range scanResult {
			if _, excluded := set.ExcludePorts[p]; excluded {
				continue
			}
			if set.IncludePortsEnabled {
				if _, included := set.IncludePorts[p]; !included {
					continue
				}
			}
			portsNow[p] = struct{}{}
		}

		managed := l.managedPorts()

		l.retireMissing(set, portsNow, managed)
		l.admitNew(set, portsNow, managed)

		if l.sleepOrStop(time.Duration(set.ScanIntervalMs) * time.Millisecond) {
			return
		}
	}
}

// managedPorts returns {managedPort: tunnelID} for tunnels owned by this set,
// read from the manager's current desired set.
func (l *setLoop) managedPorts() map[uint16]string {
	out := make(map[uint16]string)
	for _, cfg := range l.mgr.Snapshot() {
		if cfg.ManagedBy.Kind == tunnelmodel.ManagedByFullTunnel && cfg.ManagedBy.SetID == l.id {
			out[cfg.ManagedBy.ManagedPort] = cfg.ID
		}
	}
	return out
}

// retireMissing implements §4.5 step 5: debounced removal of tunnels whose
// managed port is no longer observed.
func (l *setLoop) retireMissing(set tunnelmodel.TcpTunnelSetConfig, portsNow map[uint16]struct{}, managed map[uint16]string) {
	now := time.Now()
	var toRetire []uint16

	l.mu.Lock()
	for p := range managed {
		if _, present := portsNow[p]; present {
			delete(l.firstMissing, p)
			continue
		}
		first, tracked := l.firstMissing[p]
		if !tracked {
			l.firstMissing[p] = now
			continue
		}
		if set.DebounceMs == 0 || now.Sub(first) >= time.Duration(set.DebounceMs)*time.Millisecond {
			toRetire = append(toRetire, p)
		}
	}
	for p := range l.firstMissing {
		if _, stillManaged := managed[p]; !stillManaged {
			delete(l.firstMissing, p)
		}
	}
	l.mu.Unlock()

	if len(toRetire) == 0 {
		return
	}

	retireIDs := make(map[string]struct{}, len(toRetire))
	for _, p := range toRetire {
		retireIDs[managed[p]] = struct{}{}
	}

	l.mgr.MutateConfigs(func(current []tunnelmodel.TunnelConfig) []tunnelmodel.TunnelConfig {
		out := current[:0:0]
		for _, cfg := range current {
			if _, drop := retireIDs[cfg.ID]; drop {
				continue
			}
			out = append(out, cfg)
		}
		return out
	})

	l.mu.Lock()
	for _, p := range toRetire {
		delete(l.firstMissing, p)
	}
	l.mu.Unlock()
}

// admitNew implements §4.5 step 6: sorted, batched admission of newly
// observed ports with a re-check under the config lock to avoid duplicate
// inserts racing a concurrent ApplyConfig from elsewhere.
func (l *setLoop) admitNew(set tunnelmodel.TcpTunnelSetConfig, portsNow map[uint16]struct{}, managed map[uint16]string) {
	var toAdd []uint16
	for p := range portsNow {
		if _, already := managed[p]; !already {
			toAdd = append(toAdd, p)
		}
	}
	sort.Slice(toAdd, func(i, j int) bool { return toAdd[i] < toAdd[j] })

	batchSize := set.StartBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(toAdd); start += batchSize {
		select {
		case <-l.stop:
			return
		default:
		}

		end := start + batchSize
		if end > len(toAdd) {
			end = len(toAdd)
		}
		chunk := toAdd[start:end]

		l.mgr.MutateConfigs(func(current []tunnelmodel.TunnelConfig) []tunnelmodel.TunnelConfig {
			existing := make(map[uint16]struct{})
			for _, cfg := range current {
				if cfg.ManagedBy.Kind == tunnelmodel.ManagedByFullTunnel && cfg.ManagedBy.SetID == l.id {
					existing[cfg.ManagedBy.ManagedPort] = struct{}{}
				}
			}
			out := current
			for _, p := range chunk {
				if _, dup := existing[p]; dup {
					continue
				}
				out = append(out, set.SynthesizeTunnel(uuid.NewString(), p))
			}
			return out
		})

		if end < len(toAdd) {
			if l.sleepOrStop(time.Duration(set.StartBatchIntervalMs) * time.Millisecond) {
				return
			}
		}
	}
}

// sleepOrStop sleeps d, returning true early if stop fires meanwhile.
func (l *setLoop) sleepOrStop(d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	select {
	case <-l.stop:
		return true
	case <-time.After(d):
		return false
	}
}

func (l *setLoop) status() (time.Time, *tunnelmodel.LastError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastScanAt, l.lastError
}
