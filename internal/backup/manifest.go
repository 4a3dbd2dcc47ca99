package backup

import (
	"encoding/json"
	"time"
)

// ManifestFileName is the well-known remote manifest path component.
const ManifestFileName = ".miao-backup-manifest.json"

const manifestVersion = 1

// ManifestEntry records one regular file's size and mtime as of the backup
// that produced the manifest.
type ManifestEntry struct {
	Size    uint64 `json:"size"`
	MtimeMs int64  `json:"mtime_ms"`
}

// Manifest is the incremental-backup bookkeeping document stored alongside
// the remote backup tree.
type Manifest struct {
	Version      int                      `json:"version"`
	CreatedAtMs  int64                    `json:"created_at_ms"`
	LocalPath    string                   `json:"local_path"`
	RemotePath   string                   `json:"remote_path"`
	Entries      map[string]ManifestEntry `json:"entries"`
}

// NewManifestFromEntries builds a manifest from the full scanned set,
// dropping directories (only regular files and symlinks are tracked for
// incremental comparison and orphan pruning).
func NewManifestFromEntries(localPath, remotePath string, entries []FileEntry) Manifest {
	m := Manifest{
		Version:     manifestVersion,
		CreatedAtMs: time.Now().UnixMilli(),
		LocalPath:   localPath,
		RemotePath:  remotePath,
		Entries:     make(map[string]ManifestEntry, len(entries)),
	}
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		m.Entries[e.RelPath] = ManifestEntry{Size: e.Size, MtimeMs: e.MtimeMs}
	}
	return m
}

// MarshalIndent renders the manifest as indented JSON for readability on the
// remote host.
func (m Manifest) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest decodes a manifest from its JSON representation.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	err := json.Unmarshal(data, &m)
	return m, err
}
