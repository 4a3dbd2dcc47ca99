// Package portscan enumerates TCP listen sockets on the host (SPEC_FULL.md
// §4.1, component C1) by shelling out to ss and falling back to netstat,
// the same two tools and column layout the full-tunnel set controller's
// predecessor used.
package portscan
