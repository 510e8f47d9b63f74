// Package updater decides whether a newer server build exists and drives
// the download/apply step through the external downloader tool.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/gamekeeper/internal/config"
	"github.com/loykin/gamekeeper/internal/metrics"
	"github.com/loykin/gamekeeper/internal/paths"
	"github.com/loykin/gamekeeper/internal/runner"
)

// Outcome reports what CheckAndApply did.
type Outcome struct {
	Applied    bool
	NewVersion string // empty when the remote version was unobtainable
}

// ArtifactLocator finds the directory inside the staging tree that holds
// the freshly downloaded server jar. Packaging layout varies between
// releases, so the search is pluggable.
type ArtifactLocator func(stagingDir string) (string, error)

// DefaultLocator checks the staging root, then the Server/ subdirectory.
func DefaultLocator(stagingDir string) (string, error) {
	for _, root := range []string{stagingDir, filepath.Join(stagingDir, "Server")} {
		if fileExists(filepath.Join(root, paths.ServerJarName)) {
			return root, nil
		}
	}
	return "", fmt.Errorf("server jar not found under %s", stagingDir)
}

type Coordinator struct {
	layout paths.Layout
	run    *runner.Runner
	store  *config.Store
	client *http.Client
	log    *slog.Logger
	zipURL string
	locate ArtifactLocator
}

func New(layout paths.Layout, run *runner.Runner, store *config.Store, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		layout: layout,
		run:    run,
		store:  store,
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    log,
		zipURL: DefaultZipURL,
		locate: DefaultLocator,
	}
}

// SetZipURL overrides the tool download URL.
func (c *Coordinator) SetZipURL(url string) { c.zipURL = url }

// SetLocator overrides the staging-layout search strategy.
func (c *Coordinator) SetLocator(l ArtifactLocator) { c.locate = l }

// RemoteVersion queries the tool's print-version mode. An empty string
// means the version could not be determined.
func (c *Coordinator) RemoteVersion(ctx context.Context, toolCmd []string) string {
	out, code, err := c.run.Output(ctx, toolCmd[0], append(append([]string(nil), toolCmd[1:]...), "-print-version"), c.layout.Dir)
	if err != nil || code != 0 {
		return ""
	}
	return out
}

// CheckAndApply resolves the update tool, compares the remote version to
// the recorded one and applies the update when needed. An unobtainable
// remote version proceeds with the update rather than staying stale; an
// exactly equal version skips entirely. Returned errors are advisory:
// the lifecycle continues with whatever server binary is present.
func (c *Coordinator) CheckAndApply(ctx context.Context) (Outcome, error) {
	toolCmd, err := c.ensureTool(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve update tool: %w", err)
	}

	recorded := c.store.Snapshot().LastServerVersion
	remote := c.RemoteVersion(ctx, toolCmd)
	switch {
	case remote == "":
		c.log.Warn("remote version unobtainable, proceeding with update")
	case remote == recorded:
		c.log.Info("server is up to date", "version", recorded)
		return Outcome{}, nil
	case CompareVersions(remote, recorded) > 0:
		c.log.Info("new server version available", "recorded", recorded, "remote", remote)
	default:
		c.log.Info("remote version differs from record, applying", "recorded", recorded, "remote", remote)
	}

	if err := c.apply(ctx, toolCmd); err != nil {
		return Outcome{}, err
	}
	if remote != "" {
		if err := c.store.SetVersion(remote); err != nil {
			c.log.Warn("failed to record applied version", "error", err)
		} else {
			c.log.Info("recorded applied version", "version", remote)
		}
	}
	metrics.IncUpdateApplied()
	return Outcome{Applied: true, NewVersion: remote}, nil
}

// apply runs the tool's default fetch mode in a staging directory and
// copies the produced files into the working directory. The fast-start
// cache of the previous binary is removed first; any binary change
// invalidates it.
func (c *Coordinator) apply(ctx context.Context, toolCmd []string) error {
	staging := c.layout.StagingDir()
	_ = os.RemoveAll(staging)
	if err := os.MkdirAll(staging, 0o750); err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			c.log.Warn("failed to clean staging directory", "dir", staging, "error", err)
		}
	}()

	c.log.Info("downloading update", "staging", staging)
	code, err := c.run.Run(ctx, toolCmd[0], toolCmd[1:], staging, func(line string) {
		c.log.Info("[updater] " + line)
	})
	if err != nil {
		return fmt.Errorf("run update tool: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("update tool exited with code %d", code)
	}

	root, err := c.locate(staging)
	if err != nil {
		return err
	}

	if err := os.Remove(c.layout.AOTCache()); err == nil {
		c.log.Info("removed stale fast-start cache", "file", paths.AOTCacheName)
	}

	for _, item := range []string{paths.ServerJarName, paths.AOTCacheName, paths.AssetsName, paths.LicensesName} {
		src := filepath.Join(root, item)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dest := filepath.Join(c.layout.Dir, item)
		if err := copyTree(src, dest); err != nil {
			c.log.Warn("failed to install updated file", "item", item, "error", err)
			continue
		}
		c.log.Info("installed updated file", "item", item)
	}
	return nil
}

func copyTree(src, dest string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		return os.CopyFS(dest, os.DirFS(src))
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, fi.Mode().Perm())
}
