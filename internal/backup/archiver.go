package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// msToTime truncates a millisecond timestamp to whole seconds, matching the
// tar mtime field's one-second resolution (entry.MtimeMs/1000 in spirit).
func msToTime(ms int64) time.Time {
	return time.Unix(ms/1000, 0)
}

// ErrCancelled is returned by Archive when stop fires mid-stream.
var ErrCancelled = errors.New("backup: cancelled")

// Archive writes entries as a GNU tar stream to w, preserving directory,
// symlink, and regular-file types per SPEC_FULL.md §4.7. stop is checked
// before each entry so a slow local disk never blocks shutdown.
func Archive(entries []FileEntry, preservePermissions bool, w io.Writer, stop <-chan struct{}) error {
	tw := tar.NewWriter(w)

	for _, entry := range entries {
		select {
		case <-stop:
			return ErrCancelled
		default:
		}

		var err error
		switch {
		case entry.IsDir:
			err = appendDir(tw, entry)
		case entry.IsSymlink:
			err = appendSymlink(tw, entry)
		default:
			err = appendFile(tw, entry, preservePermissions)
		}
		if err != nil {
			return err
		}
	}

	return tw.Close()
}

func appendDir(tw *tar.Writer, entry FileEntry) error {
	name := entry.RelPath
	if len(name) == 0 || name[len(name)-1] != '/' {
		name += "/"
	}
	hdr := &tar.Header{
		Name:     name,
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		Size:     0,
		ModTime:  msToTime(entry.MtimeMs),
	}
	return tw.WriteHeader(hdr)
}

func appendSymlink(tw *tar.Writer, entry FileEntry) error {
	target, err := os.Readlink(entry.AbsPath)
	if err != nil {
		return fmt.Errorf("read symlink %s: %w", entry.AbsPath, err)
	}
	hdr := &tar.Header{
		Name:     entry.RelPath,
		Typeflag: tar.TypeSymlink,
		Linkname: target,
		Mode:     0o777,
		Size:     0,
		ModTime:  msToTime(entry.MtimeMs),
	}
	return tw.WriteHeader(hdr)
}

func appendFile(tw *tar.Writer, entry FileEntry, preservePermissions bool) error {
	f, err := os.Open(entry.AbsPath)
	if err != nil {
		return fmt.Errorf("open file %s: %w", entry.AbsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file %s: %w", entry.AbsPath, err)
	}

	mode := int64(0o644)
	if preservePermissions {
		mode = int64(info.Mode().Perm())
	}

	hdr := &tar.Header{
		Name:     entry.RelPath,
		Typeflag: tar.TypeReg,
		Mode:     mode,
		Size:     info.Size(),
		ModTime:  msToTime(entry.MtimeMs),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", entry.RelPath, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("append file %s: %w", entry.RelPath, err)
	}
	return nil
}
