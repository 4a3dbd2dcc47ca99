package portscan

import "testing"

func TestExtractPort(t *testing.T) {
	tests := []struct {
		addr     string
		wantPort uint16
		wantOK   bool
	}{
		{"127.0.0.1:8080", 8080, true},
		{"0.0.0.0:22", 22, true},
		{"[::1]:9090", 9090, true},
		{"[::]:443", 443, true},
		{"*:5432", 5432, true},
		{"no-colon-here", 0, false},
		{"127.0.0.1:", 0, false},
		{"127.0.0.1:notaport", 0, false},
		{"127.0.0.1:999999", 0, false},
	}

	for _, tt := range tests {
		port, ok := ExtractPort(tt.addr)
		if ok != tt.wantOK {
			t.Errorf("ExtractPort(%q) ok = %v, want %v", tt.addr, ok, tt.wantOK)
			continue
		}
		if ok && port != tt.wantPort {
			t.Errorf("ExtractPort(%q) = %d, want %d", tt.addr, port, tt.wantPort)
		}
	}
}

func TestParseSS(t *testing.T) {
	out := `Netid  State   Recv-Q  Send-Q  Local Address:Port   Peer Address:Port
tcp    LISTEN  0       128     127.0.0.1:22         0.0.0.0:*
tcp    LISTEN  0       128     [::]:8080            [::]:*
tcp    ESTAB   0       0       127.0.0.1:54321      127.0.0.1:22
udp    UNCONN  0       0       0.0.0.0:68           0.0.0.0:*
`
	ports := parseSS(out)

	if len(ports) != 2 {
		t.Fatalf("expected 2 listening tcp ports, got %d: %v", len(ports), ports)
	}
	if _, ok := ports[22]; !ok {
		t.Error("expected port 22 in result")
	}
	if _, ok := ports[8080]; !ok {
		t.Error("expected port 8080 in result")
	}
}

func TestParseNetstat(t *testing.T) {
	out := `Active Internet connections (servers and established)
Proto Recv-Q Send-Q Local Address           Foreign Address         State       PID/Program name
tcp        0      0 127.0.0.1:22            0.0.0.0:*               LISTEN      1234/sshd
tcp        0      0 127.0.0.1:54321         127.0.0.1:22            ESTABLISHED 5678/ssh
tcp6       0      0 :::9090                 :::*                    LISTEN      999/myapp
`
	ports := parseNetstat(out)

	if _, ok := ports[22]; !ok {
		t.Error("expected port 22 in result")
	}
	if _, ok := ports[54321]; ok {
		t.Error("ESTABLISHED connections should not be included")
	}
	if len(ports) != 1 {
		// tcp6 line has proto "tcp6" which doesn't match the "tcp" check,
		// matching the original's proto-exact-match behavior.
		t.Errorf("expected only the tcp LISTEN entry, got %v", ports)
	}
}

func TestParseSSSkipsShortLines(t *testing.T) {
	ports := parseSS("tcp LISTEN\n")
	if len(ports) != 0 {
		t.Errorf("expected no ports from a too-short line, got %v", ports)
	}
}
