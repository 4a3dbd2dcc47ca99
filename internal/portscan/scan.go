package portscan

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Scan enumerates TCP sockets in LISTEN state by running `ss -plunt` and,
// if that fails to spawn or exits non-zero, falling back to
// `netstat -anltp`. If both fail, it returns an error describing the last
// failure.
func Scan(ctx context.Context) (map[uint16]struct{}, error) {
	if ports, err := scanSS(ctx); err == nil {
		return ports, nil
	}

	ports, err := scanNetstat(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan ports: ss and netstat both failed: %w", err)
	}
	return ports, nil
}

func scanSS(ctx context.Context) (map[uint16]struct{}, error) {
	out, err := runCommand(ctx, "ss", "-plunt")
	if err != nil {
		return nil, err
	}
	return parseSS(out), nil
}

func scanNetstat(ctx context.Context) (map[uint16]struct{}, error) {
	out, err := runCommand(ctx, "netstat", "-anltp")
	if err != nil {
		return nil, err
	}
	return parseNetstat(out), nil
}

// parseSS parses `ss -plunt` output. Columns: Netid State Recv-Q Send-Q
// Local-Address:Port Peer-Address:Port .... proto/state sit at columns 0/1,
// the local address at column 4; lines with fewer than 5 columns are
// skipped silently.
func parseSS(text string) map[uint16]struct{} {
	ports := make(map[uint16]struct{})
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Netid") {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 5 {
			continue
		}
		if cols[0] != "tcp" || cols[1] != "LISTEN" {
			continue
		}
		if port, ok := ExtractPort(cols[4]); ok {
			ports[port] = struct{}{}
		}
	}
	return ports
}

// parseNetstat parses `netstat -anltp` output. Columns: Proto Recv-Q Send-Q
// Local Address Foreign Address State PID/Program; proto is column 0, local
// address column 3, state column 5; lines with fewer than 6 columns are
// skipped silently.
func parseNetstat(text string) map[uint16]struct{} {
	ports := make(map[uint16]struct{})
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Proto") || strings.HasPrefix(line, "Active") {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 6 {
			continue
		}
		if cols[0] != "tcp" || cols[5] != "LISTEN" {
			continue
		}
		if port, ok := ExtractPort(cols[3]); ok {
			ports[port] = struct{}{}
		}
	}
	return ports
}

// ExtractPort pulls the port number out of a "host:port" or "[::1]:port"
// local-address column, stripping IPv6 brackets first and splitting on the
// final colon so a bare IPv6 host with no brackets still resolves.
func ExtractPort(addr string) (uint16, bool) {
	addr = strings.TrimSpace(addr)
	addr = strings.NewReplacer("[", "", "]", "").Replace(addr)

	idx := strings.LastIndex(addr, ":")
	if idx < 0 || idx == len(addr)-1 {
		return 0, false
	}
	portStr := addr[idx+1:]

	n, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
