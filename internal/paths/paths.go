// Package paths names the files a managed server directory is expected
// to contain. Components receive a Layout instead of reaching for
// process-wide constants so tests can point them at a temp directory.
package paths

import "path/filepath"

const (
	ServerJarName = "HytaleServer.jar"
	AOTCacheName  = "HytaleServer.aot"
	AssetsName    = "Assets.zip"
	LicensesName  = "Licenses"

	WorldSubdir  = "universe/worlds"
	BackupSubdir = "universe/backups"

	LogFileName   = "gamekeeper.log"
	HistoryDBName = "gamekeeper_history.db"
	StagingName   = "updater_staging"
)

// Layout anchors the well-known names to one working directory.
type Layout struct {
	Dir string
}

func (l Layout) ServerJar() string  { return filepath.Join(l.Dir, ServerJarName) }
func (l Layout) AOTCache() string   { return filepath.Join(l.Dir, AOTCacheName) }
func (l Layout) Assets() string     { return filepath.Join(l.Dir, AssetsName) }
func (l Layout) WorldDir() string   { return filepath.Join(l.Dir, WorldSubdir) }
func (l Layout) BackupDir() string  { return filepath.Join(l.Dir, BackupSubdir) }
func (l Layout) LogFile() string    { return filepath.Join(l.Dir, LogFileName) }
func (l Layout) HistoryDB() string  { return filepath.Join(l.Dir, HistoryDBName) }
func (l Layout) StagingDir() string { return filepath.Join(l.Dir, StagingName) }
