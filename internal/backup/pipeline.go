package backup

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gluk-w/miaoagent/internal/database"
	"github.com/gluk-w/miaoagent/internal/execssh"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// Options mirrors the per-run tunables from SPEC_FULL.md §4.7-4.8.
type Options struct {
	Exclude             []string
	Include             []string
	FollowSymlinks      bool
	PreservePermissions bool
	CompressionLevel    int
	CompressionThreads  int
	Incremental         bool
	Delete              bool
}

// SSHTarget identifies the remote host a Pipeline backs up to.
type SSHTarget struct {
	Host             string
	Port             uint16
	Username         string
	Auth             tunnelmodel.Auth
	ConnectTimeoutMs uint64
}

// Pipeline drives one backup target's connect→scan→archive→compress→
// transfer→manifest→prune sequence.
type Pipeline struct {
	SSH        SSHTarget
	RemotePath string
	Options    Options

	// Pool, if set, is used to acquire and keep the SSH session alive
	// across runs against the same target instead of dialing and
	// disconnecting fresh every call (§12 Supplemented Features). A nil
	// Pool preserves the single connect-exec-disconnect behavior.
	Pool *execssh.Pool
}

// Run executes the 8-step sequence from SPEC_FULL.md §4.8 against
// localPath, checking stop at each natural boundary. A zero-entry scan is a
// no-op: the pipeline connects, finds nothing to do, and disconnects
// without writing a manifest.
func (p Pipeline) Run(ctx context.Context, localPath string, stop <-chan struct{}) error {
	remotePath := p.RemotePath
	if remotePath == "" {
		remotePath = "/"
	}

	var sess *execssh.Session
	var err error
	if p.Pool != nil {
		sess, err = p.Pool.Get(ctx, p.SSH.Host, p.SSH.Port, p.SSH.Username, p.SSH.Auth, p.SSH.ConnectTimeoutMs)
	} else {
		sess, err = execssh.Connect(ctx, p.SSH.Host, p.SSH.Port, p.SSH.Username, p.SSH.Auth, p.SSH.ConnectTimeoutMs)
	}
	if err != nil {
		p.recordRun(localPath, remotePath, time.Now(), false, err.Error())
		return fmt.Errorf("connect: %w", err)
	}
	if p.Pool == nil {
		defer sess.Disconnect()
	}

	startedAt := time.Now()

	if err := ensureRemoteTools(sess); err != nil {
		p.recordRun(localPath, remotePath, startedAt, false, err.Error())
		return err
	}

	var manifest *Manifest
	if p.Options.Incremental {
		if m, err := loadRemoteManifest(sess, remotePath); err == nil {
			manifest = &m
		}
	}

	scanner := Scanner{ExcludePatterns: p.Options.Exclude, IncludePatterns: p.Options.Include, FollowSymlinks: p.Options.FollowSymlinks}
	entries, err := scanner.Scan(localPath, manifest)
	if err != nil {
		p.recordRun(localPath, remotePath, startedAt, false, err.Error())
		return fmt.Errorf("scan: %w", err)
	}

	if len(entries) == 0 {
		p.recordRun(localPath, remotePath, startedAt, true, "")
		return nil
	}

	select {
	case <-stop:
		return ErrCancelled
	default:
	}

	var tarBuf bytes.Buffer
	if err := Archive(entries, p.Options.PreservePermissions, &tarBuf, stop); err != nil {
		p.recordRun(localPath, remotePath, startedAt, false, err.Error())
		return err
	}

	select {
	case <-stop:
		return ErrCancelled
	default:
	}

	var compressedBuf bytes.Buffer
	if _, err := Compress(&tarBuf, &compressedBuf, p.Options.CompressionLevel, p.Options.CompressionThreads); err != nil {
		p.recordRun(localPath, remotePath, startedAt, false, err.Error())
		return err
	}

	select {
	case <-stop:
		return ErrCancelled
	default:
	}

	if err := transferAndExtract(sess, remotePath, compressedBuf.Bytes(), p.Options.PreservePermissions); err != nil {
		p.recordRun(localPath, remotePath, startedAt, false, err.Error())
		return err
	}

	newManifest := NewManifestFromEntries(localPath, remotePath, entries)
	if err := saveRemoteManifest(sess, remotePath, newManifest); err != nil {
		p.recordRun(localPath, remotePath, startedAt, false, err.Error())
		return err
	}

	if p.Options.Delete {
		if err := deleteRemoteOrphans(sess, remotePath, newManifest); err != nil {
			p.recordRun(localPath, remotePath, startedAt, false, err.Error())
			return err
		}
	}

	p.recordRun(localPath, remotePath, startedAt, true, "")
	return nil
}

// ensureRemoteTools checks for zstd and tar on the remote, attempting an
// auto-install of zstd via apt-get, yum, or apk in that order
// (SPEC_FULL.md §4.8 step 1).
func ensureRemoteTools(sess *execssh.Session) error {
	if exitCode, _, _, err := sess.Exec("command -v zstd"); err != nil || exitCode != 0 {
		installCmd := "(command -v apt-get >/dev/null && apt-get update && apt-get install -y zstd) || " +
			"(command -v yum >/dev/null && yum install -y zstd) || " +
			"(command -v apk >/dev/null && apk add zstd) || exit 1"
		if exitCode, _, _, err := sess.Exec(installCmd); err != nil || exitCode != 0 {
			return fmt.Errorf("zstd not found and auto-install failed")
		}
	}

	if exitCode, _, _, err := sess.Exec("command -v tar"); err != nil || exitCode != 0 {
		return fmt.Errorf("tar not found on remote")
	}
	return nil
}

func transferAndExtract(sess *execssh.Session, remotePath string, data []byte, preservePermissions bool) error {
	preserveFlag := ""
	if preservePermissions {
		preserveFlag = "p"
	}
	cmd := fmt.Sprintf("mkdir -p %s && cd %s && zstd -d | tar -x%s",
		execssh.ShellEscape(remotePath), execssh.ShellEscape(remotePath), preserveFlag)

	exitCode, _, stderr, err := sess.ExecWithStdin(cmd, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("transfer and extract: %w", err)
	}
	if exitCode != 0 {
		return &execssh.ExecError{Command: cmd, ExitCode: exitCode, Stderr: string(stderr)}
	}
	return nil
}

func loadRemoteManifest(sess *execssh.Session, remotePath string) (Manifest, error) {
	manifestPath := remotePath + "/" + ManifestFileName
	data, err := sess.DownloadFile(manifestPath)
	if err != nil {
		return Manifest{}, err
	}
	if len(data) == 0 {
		return Manifest{}, fmt.Errorf("manifest not found")
	}
	return ParseManifest(data)
}

func saveRemoteManifest(sess *execssh.Session, remotePath string, manifest Manifest) error {
	blob, err := manifest.MarshalIndent()
	if err != nil {
		return fmt.Errorf("serialize manifest: %w", err)
	}
	manifestPath := remotePath + "/" + ManifestFileName
	return sess.UploadFile(manifestPath, blob)
}

// deleteRemoteOrphans lists the remote tree and removes any file not
// present in manifest, chunked 100 paths per rm -f invocation
// (SPEC_FULL.md §4.8 step 7).
func deleteRemoteOrphans(sess *execssh.Session, remotePath string, manifest Manifest) error {
	cmd := fmt.Sprintf("cd %s && find . -type f 2>/dev/null || true", execssh.ShellEscape(remotePath))
	_, stdout, _, err := sess.Exec(cmd)
	if err != nil {
		return err
	}

	var orphans []string
	for _, line := range strings.Split(string(stdout), "\n") {
		f := strings.TrimPrefix(line, "./")
		if f == "" || f == ManifestFileName {
			continue
		}
		if _, tracked := manifest.Entries[f]; tracked {
			continue
		}
		orphans = append(orphans, f)
	}

	for start := 0; start < len(orphans); start += 100 {
		end := start + 100
		if end > len(orphans) {
			end = len(orphans)
		}
		chunk := orphans[start:end]

		quoted := make([]string, len(chunk))
		for i, f := range chunk {
			quoted[i] = execssh.ShellEscape(f)
		}
		rmCmd := fmt.Sprintf("cd %s && rm -f %s", execssh.ShellEscape(remotePath), strings.Join(quoted, " "))
		sess.Exec(rmCmd)
	}
	return nil
}

// recordRun writes a BackupRunRow summarizing this invocation for the
// status surface's last-run view.
func (p Pipeline) recordRun(localPath, remotePath string, startedAt time.Time, success bool, errMsg string) {
	if database.DB == nil {
		return
	}
	database.DB.Create(&database.BackupRunRow{
		LocalPath:    localPath,
		RemotePath:   remotePath,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
		Success:      success,
		ErrorMessage: errMsg,
	})
}
