package backup

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gluk-w/miaoagent/internal/logutil"
)

// FileEntry describes one filesystem entry discovered by Scan.
type FileEntry struct {
	RelPath   string
	AbsPath   string
	Size      uint64
	MtimeMs   int64
	IsDir     bool
	IsSymlink bool
}

// Scanner walks a directory tree and reports entries surviving the
// exclude/include pattern filters, optionally dropping unchanged regular
// files against a prior manifest (SPEC_FULL.md §4.7).
type Scanner struct {
	ExcludePatterns []string
	IncludePatterns []string
	FollowSymlinks  bool
}

// Scan walks root and returns matching entries sorted by RelPath. Walk
// errors are logged and skipped; they do not fail the scan. manifest, if
// non-nil, enables incremental mode: a non-directory entry whose (size,
// mtimeMs) is unchanged from the manifest is dropped.
func (s Scanner) Scan(root string, manifest *Manifest) ([]FileEntry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot = filepath.Clean(absRoot)

	var entries []FileEntry

	walkFn := func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			log.Printf("[backup] walk error at %s: %v", logutil.SanitizeForLog(path), walkErr)
			return nil
		}
		if path == absRoot {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if matchesAny(relPath, s.ExcludePatterns) {
			return nil
		}
		if len(s.IncludePatterns) > 0 && !matchesAny(relPath, s.IncludePatterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Printf("[backup] stat error at %s: %v", logutil.SanitizeForLog(path), err)
			return nil
		}

		isSymlink := info.Mode()&os.ModeSymlink != 0
		isDir := info.IsDir()
		if isSymlink && s.FollowSymlinks {
			if followed, err := os.Stat(path); err == nil {
				isDir = followed.IsDir()
			}
		}

		entry := FileEntry{
			RelPath:   relPath,
			AbsPath:   path,
			Size:      uint64(info.Size()),
			MtimeMs:   info.ModTime().UnixMilli(),
			IsDir:     isDir,
			IsSymlink: isSymlink && !s.FollowSymlinks,
		}

		if manifest != nil && !entry.IsDir {
			if prev, ok := manifest.Entries[entry.RelPath]; ok {
				if prev.Size == entry.Size && prev.MtimeMs == entry.MtimeMs {
					return nil
				}
			}
		}

		entries = append(entries, entry)
		return nil
	}

	if err := filepath.WalkDir(absRoot, walkFn); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

// matchesAny reports whether path matches any non-empty pattern, using
// exact equality, "pattern/" prefix match, single-wildcard glob
// (prefix*suffix), or the literal "**" matching everything.
func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if matchesPattern(path, pattern) {
			return true
		}
	}
	return false
}

func matchesPattern(path, pattern string) bool {
	if pattern == "**" {
		return true
	}
	if strings.Contains(pattern, "*") {
		parts := strings.SplitN(pattern, "*", 2)
		if len(parts) == 2 && strings.Count(pattern, "*") == 1 {
			prefix, suffix := parts[0], parts[1]
			return strings.HasPrefix(path, prefix) && strings.HasSuffix(path, suffix)
		}
	}
	return path == pattern || strings.HasPrefix(path, pattern+"/")
}
