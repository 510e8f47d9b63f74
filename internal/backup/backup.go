// Package backup produces timestamped zip archives of the world
// directory and prunes the oldest ones beyond the retention count.
package backup

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/loykin/gamekeeper/internal/metrics"
	"github.com/loykin/gamekeeper/internal/paths"
)

const (
	archivePrefix = "world_backup_"
	archiveSuffix = ".zip"
	stampLayout   = "2006-01-02_15-04-05"
)

type Archiver struct {
	layout paths.Layout
	log    *slog.Logger
	now    func() time.Time
}

func New(layout paths.Layout, log *slog.Logger) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{layout: layout, log: log, now: time.Now}
}

// Snapshot archives the world directory and prunes old archives down to
// maxKeep. It returns the created archive path. A missing world
// directory is not an error; callers skip the step.
func (a *Archiver) Snapshot(maxKeep int) (string, error) {
	world := a.layout.WorldDir()
	if _, err := os.Stat(world); err != nil {
		return "", fmt.Errorf("world directory %s: %w", world, err)
	}
	backups := a.layout.BackupDir()
	if err := os.MkdirAll(backups, 0o750); err != nil {
		return "", err
	}

	name := archivePrefix + a.now().Format(stampLayout) + archiveSuffix
	target := filepath.Join(backups, name)
	if err := zipDir(world, target); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("archive world: %w", err)
	}
	a.log.Info("world backup created", "archive", name)
	metrics.IncBackup()

	a.prune(maxKeep)
	return target, nil
}

// prune removes the oldest archives beyond keep. Archive names embed the
// timestamp, so lexical order is chronological order.
func (a *Archiver) prune(keep int) {
	if keep <= 0 {
		keep = 1
	}
	entries, err := os.ReadDir(a.layout.BackupDir())
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, archivePrefix) && strings.HasSuffix(n, archiveSuffix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, old := range names[:max(0, len(names)-keep)] {
		if err := os.Remove(filepath.Join(a.layout.BackupDir(), old)); err == nil {
			a.log.Info("pruned old backup", "archive", old)
		}
	}
}

func zipDir(src, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		r, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		_, err = io.Copy(w, r)
		return err
	})
	if err != nil {
		_ = zw.Close()
		_ = f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
