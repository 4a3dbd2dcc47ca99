package tunnelssh

import (
	"context"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// StatusReporter is the seam between one connection attempt's lifecycle and
// the supervisor's status cell. Run calls OnForwarding once the remote
// forward is granted and ConnReporter methods for each forwarded connection;
// the supervisor (tunnelmgr package) implements both.
type StatusReporter interface {
	ConnReporter
	OnForwarding()
}

// Run drives one full connection attempt: connect, authenticate, request the
// remote forward, report Forwarding, then run the keepalive loop and accept
// loop concurrently until stop is closed or a session-level error occurs.
// On a clean stop it performs the orderly shutdown sequence and returns nil;
// on failure it returns the *tunnelmodel.TunnelError describing what failed.
func Run(ctx context.Context, cfg tunnelmodel.TunnelConfig, stop <-chan struct{}, reporter StatusReporter) error {
	sess, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	reporter.OnForwarding()

	go sess.AcceptLoop(reporter)

	interval := time.Duration(cfg.KeepaliveIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, _, err := sess.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				return tunnelmodel.NewTunnelError(tunnelmodel.CodeSSHDisconnected, err.Error())
			}
		}
	}
}
