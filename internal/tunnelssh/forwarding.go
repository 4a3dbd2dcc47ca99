package tunnelssh

import (
	"io"
	"log"
	"net"
	"strconv"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// ConnReporter receives per-connection accounting from the forwarded-channel
// bridge. Implemented by the supervisor so this package has no back-reference
// to it (SPEC_FULL.md §9, "Cyclic references").
type ConnReporter interface {
	ConnOpened()
	ConnClosed(bytesIn, bytesOut uint64)
	ConnFailed(err *tunnelmodel.TunnelError)
}

// AcceptLoop accepts forwarded-tcpip connections until the listener is
// closed (by Session.Close) or ctx is cancelled, detaching each accepted
// connection to bridgeConnection so a slow or stalled copy can never block
// the accept loop, keepalive, or shutdown signaling (SPEC_FULL.md §4.2).
func (s *Session) AcceptLoop(reporter ConnReporter) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go bridgeConnection(conn, s.cfg.LocalAddr, s.cfg.LocalPort, reporter)
	}
}

// bridgeConnection dials the local endpoint and bidirectionally copies bytes
// between it and the forwarded-tcpip channel, reporting connection count and
// byte totals through reporter. A local-dial failure is recorded as
// LOCAL_CONNECT_FAILED without affecting the tunnel's overall state.
func bridgeConnection(remote net.Conn, localAddr string, localPort uint16, reporter ConnReporter) {
	reporter.ConnOpened()

	local, err := net.Dial("tcp", net.JoinHostPort(localAddr, strconv.Itoa(int(localPort))))
	if err != nil {
		remote.Close()
		reporter.ConnFailed(tunnelmodel.NewTunnelError(tunnelmodel.CodeLocalConnectFailed, err.Error()))
		reporter.ConnClosed(0, 0)
		return
	}

	var bytesIn, bytesOut uint64
	done := make(chan struct{}, 2)

	go func() {
		n, _ := io.Copy(local, remote)
		bytesIn = uint64(n)
		if tcp, ok := local.(*net.TCPConn); ok {
			tcp.CloseWrite()
		}
		done <- struct{}{}
	}()
	go func() {
		n, _ := io.Copy(remote, local)
		bytesOut = uint64(n)
		if cw, ok := remote.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		done <- struct{}{}
	}()

	<-done
	<-done
	local.Close()
	remote.Close()

	log.Printf("[tunnelssh] forwarded connection closed: in=%d out=%d", bytesIn, bytesOut)
	reporter.ConnClosed(bytesIn, bytesOut)
}
