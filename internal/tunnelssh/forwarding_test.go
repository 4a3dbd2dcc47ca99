package tunnelssh

import (
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

type fakeConnReporter struct {
	mu                  sync.Mutex
	opened              int
	closedIn, closedOut uint64
	failed              *tunnelmodel.TunnelError
}

func (f *fakeConnReporter) ConnOpened() {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
}

func (f *fakeConnReporter) ConnClosed(bytesIn, bytesOut uint64) {
	f.mu.Lock()
	f.closedIn, f.closedOut = bytesIn, bytesOut
	f.mu.Unlock()
}

func (f *fakeConnReporter) ConnFailed(err *tunnelmodel.TunnelError) {
	f.mu.Lock()
	f.failed = err
	f.mu.Unlock()
}

// fakeRemoteConn wraps one end of a net.Pipe and records whether CloseWrite
// was called on it, standing in for the forwarded-tcpip channel's net.Conn
// (which half-closes the same way via its embedded ssh.Channel).
type fakeRemoteConn struct {
	net.Conn
	closeWriteCalled chan struct{}
}

func (f *fakeRemoteConn) CloseWrite() error {
	select {
	case <-f.closeWriteCalled:
	default:
		close(f.closeWriteCalled)
	}
	return nil
}

func TestBridgeConnectionHalfClosesRemoteWriteSide(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	remoteSide, peerSide := net.Pipe()
	remote := &fakeRemoteConn{Conn: remoteSide, closeWriteCalled: make(chan struct{})}

	reporter := &fakeConnReporter{}

	go bridgeConnection(remote, host, uint16(port), reporter)

	// Simulate the external client sending a request, then closing its
	// side the way a real client signals "done sending".
	peerSide.Write([]byte("hello"))
	peerSide.Close()

	select {
	case <-remote.closeWriteCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected bridgeConnection to half-close the remote side's write half once the local service's response finished")
	}

	<-serverDone
}
