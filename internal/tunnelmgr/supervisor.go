package tunnelmgr

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
	"github.com/gluk-w/miaoagent/internal/tunnelssh"
)

// supervisor drives one TunnelConfig through tunnelssh.Run, restarting on
// retryable failure with bounded exponential backoff and otherwise holding
// Stopped/Error until the manager stops or replaces it.
type supervisor struct {
	mu     sync.RWMutex
	cfg    tunnelmodel.TunnelConfig
	status tunnelmodel.RuntimeStatus

	// reachedForwarding is set by OnForwarding and consumed by run() to
	// reset the backoff attempt counter on success, per SPEC_FULL.md
	// §4.3 ("Success (reaching Forwarding) resets attempt to 0").
	reachedForwarding bool

	stop    chan struct{}
	stopped chan struct{}
}

func newSupervisor(cfg tunnelmodel.TunnelConfig) *supervisor {
	return &supervisor{
		cfg:     cfg,
		status:  tunnelmodel.RuntimeStatus{State: tunnelmodel.StateStopped},
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// computeBackoff implements the bounded exponential delay from SPEC_FULL.md
// §4.3: delay = clamp(base_ms << min(attempt, 16), 200, max_ms), using a
// saturating shift so it can never overflow uint64.
func computeBackoff(b tunnelmodel.Backoff, attempt int) time.Duration {
	shift := attempt
	if shift > 16 {
		shift = 16
	}
	delay := b.BaseMs << uint(shift)
	if b.BaseMs > math.MaxUint64>>uint(shift) {
		delay = math.MaxUint64
	}
	if delay < 200 {
		delay = 200
	}
	if delay > b.MaxMs {
		delay = b.MaxMs
	}
	return time.Duration(delay) * time.Millisecond
}

// run is the supervisor goroutine body. It loops connect→forward→serve,
// backing off between retryable failures, until stop is closed. If cfg is
// disabled or the last failure was non-retryable, it idles in Stopped/Error
// and only re-evaluates on the next ApplyConfig-driven restart (the manager
// replaces, rather than wakes, a suspended supervisor).
func (s *supervisor) run() {
	defer close(s.stopped)

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	if !cfg.Enabled {
		s.setState(tunnelmodel.StateStopped)
		<-s.stop
		return
	}

	attempt := 0
	for {
		select {
		case <-s.stop:
			s.setState(tunnelmodel.StateStopped)
			return
		default:
		}

		s.setState(tunnelmodel.StateConnecting)

		ctx, cancel := context.WithCancel(context.Background())
		err := tunnelssh.Run(ctx, cfg, s.stop, s)
		cancel()

		select {
		case <-s.stop:
			s.setState(tunnelmodel.StateStopped)
			return
		default:
		}

		if err == nil {
			s.setState(tunnelmodel.StateStopped)
			return
		}

		tErr, ok := err.(*tunnelmodel.TunnelError)
		if !ok {
			tErr = tunnelmodel.NewTunnelError("SSH_CONNECT_FAILED", err.Error())
		}
		s.recordError(tErr)

		if s.consumeReachedForwarding() {
			attempt = 0
		}

		if !tErr.Retryable {
			select {
			case <-s.stop:
				s.setState(tunnelmodel.StateStopped)
				return
			}
		}

		delay := computeBackoff(cfg.ReconnectBackoff, attempt)
		attempt++

		select {
		case <-s.stop:
			s.setState(tunnelmodel.StateStopped)
			return
		case <-time.After(delay):
		}
	}
}

func (s *supervisor) requestStop() {
	s.mu.Lock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()
	<-s.stopped
}

func (s *supervisor) snapshot() tunnelmodel.RuntimeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Clone()
}

func (s *supervisor) setState(state tunnelmodel.State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *supervisor) recordError(err *tunnelmodel.TunnelError) {
	s.mu.Lock()
	s.status.State = tunnelmodel.StateError
	s.status.LastError = &tunnelmodel.LastError{
		Code:    err.Code,
		Message: err.Message,
		AtMs:    time.Now().UnixMilli(),
	}
	s.mu.Unlock()
}

// OnForwarding implements tunnelssh.StatusReporter. Reaching Forwarding
// clears LastError and stamps LastOkAtMs per SPEC_FULL.md §4.3.
func (s *supervisor) OnForwarding() {
	s.mu.Lock()
	s.status.State = tunnelmodel.StateForwarding
	s.status.LastError = nil
	s.status.LastOkAtMs = time.Now().UnixMilli()
	s.reachedForwarding = true
	s.mu.Unlock()
}

// consumeReachedForwarding reports whether OnForwarding fired since the last
// call, clearing the flag in the same step so each success resets attempt
// exactly once.
func (s *supervisor) consumeReachedForwarding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.reachedForwarding
	s.reachedForwarding = false
	return v
}

// ConnOpened implements tunnelssh.ConnReporter.
func (s *supervisor) ConnOpened() {
	s.mu.Lock()
	s.status.ActiveConns++
	s.mu.Unlock()
}

// ConnClosed implements tunnelssh.ConnReporter.
func (s *supervisor) ConnClosed(bytesIn, bytesOut uint64) {
	s.mu.Lock()
	if s.status.ActiveConns > 0 {
		s.status.ActiveConns--
	}
	s.status.BytesIn += bytesIn
	s.status.BytesOut += bytesOut
	s.mu.Unlock()
}

// ConnFailed implements tunnelssh.ConnReporter. A forwarded-channel failure
// is local to one connection: it updates LastError but never changes State.
func (s *supervisor) ConnFailed(err *tunnelmodel.TunnelError) {
	s.mu.Lock()
	s.status.LastError = &tunnelmodel.LastError{
		Code:    err.Code,
		Message: err.Message,
		AtMs:    time.Now().UnixMilli(),
	}
	s.mu.Unlock()
}
