// Package backup implements the streaming backup pipeline (SPEC_FULL.md
// §4.7-4.8, components C7 and C8): walk a local directory tree, archive it
// into an in-memory GNU tar stream, compress it with zstd, push it over an
// execssh.Session to a remote host, and maintain an incremental JSON
// manifest with orphan pruning.
package backup
