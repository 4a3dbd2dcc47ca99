// Package tunnelmgr implements the per-tunnel supervisor state machine
// (SPEC_FULL.md §4.3, component C3) and the reconciler that maps a
// declarative TunnelConfig set onto running supervisors (§4.4, component
// C4). A supervisor owns exactly one tunnelssh session at a time and drives
// it through Stopped/Connecting/Forwarding/Error with bounded exponential
// backoff; the manager owns the id→supervisor map and serializes
// reconciliation so at most one supervisor exists per id at any moment.
package tunnelmgr
