// Package fulltunnel implements the full-tunnel set controller
// (SPEC_FULL.md §4.5, component C5): one scan loop per TcpTunnelSetConfig
// that watches the host's listening ports via portscan and synthesizes or
// retires TunnelConfigs through a tunnelmgr.Manager to match, with debounced
// retirement and batched admission.
package fulltunnel
