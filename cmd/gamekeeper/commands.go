package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/gamekeeper"
	"github.com/loykin/gamekeeper/internal/config"
	"github.com/loykin/gamekeeper/internal/history/sqlite"
	"github.com/loykin/gamekeeper/internal/logger"
	"github.com/loykin/gamekeeper/internal/metrics"
	"github.com/loykin/gamekeeper/internal/paths"
)

type command struct{}

// env bundles what every subcommand needs: the resolved directory layout
// and the opened settings store.
type env struct {
	layout paths.Layout
	store  *config.Store
	log    *slog.Logger
}

func openEnv(g GlobalFlags, color bool) (env, error) {
	dir := g.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return env{}, fmt.Errorf("resolve directory %s: %w", dir, err)
	}
	layout := paths.Layout{Dir: abs}

	cfgPath := g.ConfigPath
	if cfgPath == "" {
		cfgPath = filepath.Join(abs, config.DefaultFile)
	}
	store, err := gamekeeper.OpenConfig(cfgPath)
	if err != nil {
		return env{}, err
	}
	return env{
		layout: layout,
		store:  store,
		log:    logger.New(os.Stderr, slog.LevelInfo, color),
	}, nil
}

// Run is the console mode: full lifecycle plus an interactive prompt on
// stdin. It blocks until the operator exits or a signal arrives.
func (c *command) Run(f RunFlags) error {
	e, err := openEnv(f.Global, !f.NoColor)
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		e.log.Warn("metrics registration failed", "error", err)
	}

	settings := e.store.Snapshot()

	// one rotation target shared by the manager log and the console log
	rot := logger.Config{Path: e.layout.LogFile()}.Writer()
	filelog := logger.FileLogFrom(rot)
	defer func() { _ = filelog.Close() }()
	if rot != nil {
		e.log = logger.New(io.MultiWriter(os.Stderr, logger.StripWriter(rot)), slog.LevelInfo, !f.NoColor)
	}

	sink, err := sqlite.New(e.layout.HistoryDB())
	if err != nil {
		e.log.Warn("history database unavailable", "error", err)
		sink = nil
	}

	con := newConsole(os.Stdout)
	keeper := gamekeeper.New(gamekeeper.Options{
		Layout:   e.layout,
		Store:    e.store,
		Log:      e.log,
		FileLog:  filelog,
		Console:  con.childLine,
		Prompt:   con,
		Status:   con,
		Notifier: gamekeeper.NewWebhook(settings.DiscordWebhook),
		History:  sinkOrNil(sink),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.store.Watch(ctx, func(gamekeeper.Settings) {
		e.log.Info("configuration reloaded", "file", e.store.Path())
	}); err != nil {
		e.log.Warn("config watch unavailable", "error", err)
	}

	if f.AutoStart || settings.AutoStart {
		keeper.Start()
	} else {
		fmt.Println(`Type "start" to launch the server, "exit" to quit.`)
	}

	con.loop(keeper, os.Stdin)
	keeper.Shutdown()
	return nil
}

// Update performs one update check outside of a server launch.
func (c *command) Update(g GlobalFlags) error {
	e, err := openEnv(g, true)
	if err != nil {
		return err
	}
	keeper := gamekeeper.New(gamekeeper.Options{Layout: e.layout, Store: e.store, Log: e.log})
	defer keeper.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	out, err := keeper.Updater().CheckAndApply(ctx)
	if err != nil {
		return err
	}
	if out.Applied {
		fmt.Printf("update applied, version %s\n", orUnknown(out.NewVersion))
	} else {
		fmt.Println("already up to date")
	}
	return nil
}

// Backup archives the world directory immediately.
func (c *command) Backup(f BackupFlags) error {
	e, err := openEnv(f.Global, true)
	if err != nil {
		return err
	}
	keep := f.MaxKeep
	if keep <= 0 {
		keep = e.store.Snapshot().MaxBackups
	}
	keeper := gamekeeper.New(gamekeeper.Options{Layout: e.layout, Store: e.store, Log: e.log})
	defer keeper.Shutdown()

	path, err := keeper.Archiver().Snapshot(keep)
	if err != nil {
		return err
	}
	fmt.Printf("backup written: %s\n", path)
	return nil
}

// History prints the most recent lifecycle events.
func (c *command) History(f HistoryFlags) error {
	e, err := openEnv(f.Global, true)
	if err != nil {
		return err
	}
	sink, err := sqlite.New(e.layout.HistoryDB())
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := sink.Recent(ctx, f.Limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Println(formatEvent(ev))
	}
	return nil
}

// Version prints the last server version recorded by the updater.
func (c *command) Version(g GlobalFlags) error {
	e, err := openEnv(g, true)
	if err != nil {
		return err
	}
	fmt.Printf("recorded server version: %s\n", e.store.Snapshot().LastServerVersion)
	return nil
}

func formatEvent(ev gamekeeper.Event) string {
	line := fmt.Sprintf("%s  %-18s  session=%s", ev.OccurredAt.Local().Format("2006-01-02 15:04:05"), ev.Type, shortSession(ev.Session))
	if ev.PID > 0 {
		line += fmt.Sprintf("  pid=%d", ev.PID)
	}
	if ev.ExitCode != 0 {
		line += fmt.Sprintf("  exit=%d", ev.ExitCode)
	}
	if ev.Detail != "" {
		line += "  " + ev.Detail
	}
	return line
}

func shortSession(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func sinkOrNil(s *sqlite.Sink) gamekeeper.HistorySink {
	if s == nil {
		return nil
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func buildRoot(c *command) *cobra.Command {
	var global GlobalFlags

	root := &cobra.Command{
		Use:           "gamekeeper",
		Short:         "Manage a Hytale server: updates, backups, launch and supervision",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&global.Dir, "dir", ".", "server working directory")
	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "settings file (default <dir>/"+config.DefaultFile+")")

	runFlags := RunFlags{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the interactive console and supervise the server",
		RunE: func(_ *cobra.Command, _ []string) error {
			runFlags.Global = global
			return c.Run(runFlags)
		},
	}
	runCmd.Flags().BoolVar(&runFlags.AutoStart, "start", false, "launch the server immediately")
	runCmd.Flags().BoolVar(&runFlags.NoColor, "no-color", false, "disable colored log output")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and apply a server update",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Update(global)
		},
	}

	backupFlags := BackupFlags{}
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the world directory now",
		RunE: func(_ *cobra.Command, _ []string) error {
			backupFlags.Global = global
			return c.Backup(backupFlags)
		},
	}
	backupCmd.Flags().IntVar(&backupFlags.MaxKeep, "keep", 0, "archives to retain (default from config)")

	historyFlags := HistoryFlags{}
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lifecycle events",
		RunE: func(_ *cobra.Command, _ []string) error {
			historyFlags.Global = global
			return c.History(historyFlags)
		},
	}
	historyCmd.Flags().IntVar(&historyFlags.Limit, "limit", 20, "events to show")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the recorded server version",
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.Version(global)
		},
	}

	root.AddCommand(runCmd, updateCmd, backupCmd, historyCmd, versionCmd)
	return root
}
