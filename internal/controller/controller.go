// Package controller sequences the server lifecycle: prerequisite
// checks, update, backup, launch, monitoring, and the restart policies.
// It depends only on narrow capability interfaces, never on a concrete
// UI.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/gamekeeper/internal/backup"
	"github.com/loykin/gamekeeper/internal/config"
	"github.com/loykin/gamekeeper/internal/detector"
	"github.com/loykin/gamekeeper/internal/history"
	"github.com/loykin/gamekeeper/internal/logger"
	"github.com/loykin/gamekeeper/internal/metrics"
	"github.com/loykin/gamekeeper/internal/notify"
	"github.com/loykin/gamekeeper/internal/paths"
	"github.com/loykin/gamekeeper/internal/runner"
	"github.com/loykin/gamekeeper/internal/supervise"
	"github.com/loykin/gamekeeper/internal/updater"
)

// ErrPrerequisiteUnmet reports a wrong runtime version or a missing
// required asset bundle. The sequence aborts; operator intervention is
// needed before the next attempt.
var ErrPrerequisiteUnmet = errors.New("prerequisite unmet")

// PromptProvider asks the operator for a file path, e.g. when the asset
// bundle is missing. ok is false when the operator declined.
type PromptProvider interface {
	RequestPath(prompt string) (path string, ok bool)
}

// StatusSink receives externally-observable status on every state
// transition and monitor tick. Updates are last-write-wins; ticks may be
// coalesced under load.
type StatusSink interface {
	OnStatus(state State, pid int, uptime time.Duration)
}

const (
	monitorInterval = time.Second
	defaultBackoff  = 10 * time.Second
	defaultGrace    = 10 * time.Second
)

// Options wires the controller's collaborators. Store, Layout are
// required; everything else has a working default or is optional.
type Options struct {
	Layout   paths.Layout
	Store    *config.Store
	Log      *slog.Logger
	FileLog  *logger.FileLog       // persistent log, nil disables
	Console  func(supervise.Entry) // live console lines, nil discards
	Prompt   PromptProvider        // nil: missing assets are fatal
	Status   StatusSink            // nil discards
	Notifier notify.Notifier       // nil disables
	History  history.Sink          // nil disables

	RestartBackoff time.Duration // delay before crash auto-restart
	StopGrace      time.Duration // scheduled restart stop-to-start gap
	Interpreter    string        // server interpreter, default "java"
}

type Controller struct {
	layout   paths.Layout
	store    *config.Store
	log      *slog.Logger
	filelog  *logger.FileLog
	console  func(supervise.Entry)
	prompt   PromptProvider
	status   StatusSink
	notifier notify.Notifier
	hist     history.Sink

	sup      *supervise.Supervisor
	run      *runner.Runner
	upd      *updater.Coordinator
	archiver *backup.Archiver

	backoff     time.Duration
	stopGrace   time.Duration
	interpreter string

	// overridable steps, swapped in tests
	checkJava         func(ctx context.Context) (bool, string, error)
	checkAssets       func() (string, error)
	terminateExisting func()
	update            func(ctx context.Context) error
	snapshotWorld     func(maxKeep int) error

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	session      string
	restartTimer *time.Timer // scheduled-restart handle; arming replaces

	stopRequested atomic.Bool
	seqActive     atomic.Bool
}

func New(opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		layout:      opts.Layout,
		store:       opts.Store,
		log:         log,
		filelog:     opts.FileLog,
		console:     opts.Console,
		prompt:      opts.Prompt,
		status:      opts.Status,
		notifier:    opts.Notifier,
		hist:        opts.History,
		sup:         supervise.New(opts.Layout, log),
		run:         runner.New(log),
		backoff:     opts.RestartBackoff,
		stopGrace:   opts.StopGrace,
		interpreter: opts.Interpreter,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	if c.stopGrace <= 0 {
		c.stopGrace = defaultGrace
	}
	c.upd = updater.New(opts.Layout, c.run, opts.Store, log)
	c.archiver = backup.New(opts.Layout, log)

	c.checkJava = c.run.CheckJava
	c.checkAssets = c.defaultCheckAssets
	c.terminateExisting = c.defaultTerminateExisting
	c.update = func(ctx context.Context) error {
		_, err := c.upd.CheckAndApply(ctx)
		return err
	}
	c.snapshotWorld = func(maxKeep int) error {
		_, err := c.archiver.Snapshot(maxKeep)
		return err
	}
	return c
}

// Updater exposes the update coordinator for CLI subcommands.
func (c *Controller) Updater() *updater.Coordinator { return c.upd }

// Archiver exposes the backup archiver for CLI subcommands.
func (c *Controller) Archiver() *backup.Archiver { return c.archiver }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start kicks off the startup sequence in the background. A sequence
// already in flight, or a running server, makes this a no-op.
func (c *Controller) Start() {
	go c.runSequence()
}

// Stop requests a graceful shutdown: it sets the stop-requested flag
// (suppressing auto-restart), cancels any scheduled restart and sends
// the server its stop command.
func (c *Controller) Stop() {
	c.stopRequested.Store(true)
	c.cancelScheduledRestart()
	if c.sup.Running() {
		c.setState(StateStopping)
		c.log.Info("stopping server")
		c.sup.RequestStop()
	}
}

// SendCommand forwards a console command verbatim to the running server.
func (c *Controller) SendCommand(text string) {
	c.log.Info("> " + text)
	c.sup.SendCommand(text)
}

// Shutdown stops everything: scheduled timers, the child, the history
// sink. Intended for process exit.
func (c *Controller) Shutdown() {
	c.Stop()
	if c.sup.Running() {
		select {
		case <-c.sup.WaitDone():
		case <-time.After(c.stopGrace):
			c.sup.Kill()
		}
	}
	c.cancel()
	if c.hist != nil {
		_ = c.hist.Close()
	}
}

// runSequence is the full startup path. Strictly sequential: no step
// begins before the prior one returned.
func (c *Controller) runSequence() {
	if !c.seqActive.CompareAndSwap(false, true) {
		return
	}
	defer c.seqActive.Store(false)
	if c.sup.Running() {
		return
	}
	c.stopRequested.Store(false)

	c.setState(StateCheckingPrerequisites)
	ok, raw, err := c.checkJava(c.ctx)
	if err != nil || !ok {
		c.log.Error("java prerequisite unmet", "required", runner.RequiredJavaMajor, "output", raw, "error", err)
		c.setState(StateStopped)
		return
	}
	assetsPath, err := c.checkAssets()
	if err != nil {
		c.log.Error("asset bundle unavailable", "error", err)
		c.setState(StateStopped)
		return
	}
	c.terminateExisting()

	cfg := c.store.Snapshot()

	c.setState(StateUpdatingServer)
	if cfg.CheckUpdates {
		if err := c.update(c.ctx); err != nil {
			// non-fatal: launch whatever binary is already present
			c.log.Warn("update step failed, continuing with existing binary", "error", err)
		}
	}

	c.setState(StateBackingUp)
	if cfg.EnableBackups {
		if _, err := os.Stat(c.layout.WorldDir()); err != nil {
			c.log.Info("backup skipped, world directory not found", "dir", c.layout.WorldDir())
		} else if err := c.snapshotWorld(cfg.MaxBackups); err != nil {
			c.log.Warn("backup failed", "error", err)
		}
	}

	c.setState(StateLaunching)
	c.mu.Lock()
	c.session = uuid.NewString()
	session := c.session
	c.mu.Unlock()

	c.log.Info("starting server", "memory", cfg.ServerMemory)
	err = c.sup.Launch(supervise.LaunchSpec{
		Interpreter: c.interpreter,
		Memory:      cfg.ServerMemory,
		AssetsPath:  assetsPath,
	})
	if err != nil {
		c.log.Error("failed to start server", "error", err)
		c.setState(StateStopped)
		return
	}
	metrics.IncLaunch()
	metrics.SetRunning(true)
	c.notify("🟢 Server starting...")
	c.record(history.Event{Session: session, Type: history.EventLaunch, PID: c.sup.PID()})

	stdout, stderr, err := c.sup.Streams()
	var relay *supervise.Relay
	if err == nil {
		relay = supervise.StartRelay(stdout, stderr, c.consoleSink)
	}

	c.setState(StateRunning)
	if cfg.EnableSchedule {
		c.armScheduledRestart(cfg.RestartInterval)
	}
	go c.monitor(relay, session)
}

// monitor polls the child once a second, publishing status until exit.
func (c *Controller) monitor(relay *supervise.Relay, session string) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	done := c.sup.WaitDone()
	for {
		select {
		case <-done:
			c.handleExit(relay, session)
			return
		case <-ticker.C:
			if _, exited := c.sup.Poll(); exited {
				c.handleExit(relay, session)
				return
			}
			up := c.sup.Uptime()
			metrics.SetUptime(up.Seconds())
			// refresh pid/uptime without rewinding a Stopping state
			c.pushStatus(c.State(), c.sup.PID(), up)
		}
	}
}

func (c *Controller) handleExit(relay *supervise.Relay, session string) {
	if relay != nil {
		relay.Wait()
	}
	code, _ := c.sup.Poll()
	pid := c.sup.PID()
	_ = c.sup.Clear()

	metrics.SetRunning(false)
	metrics.SetUptime(0)
	c.log.Info("server exited", "code", code)
	c.notify(fmt.Sprintf("🔴 Server stopped (code %d)", code))

	stopReq := c.stopRequested.Load()
	if code == 0 {
		metrics.IncCleanStop()
		c.record(history.Event{Session: session, Type: history.EventStop, PID: pid, ExitCode: code})
	} else {
		c.record(history.Event{Session: session, Type: history.EventCrash, PID: pid, ExitCode: code})
	}
	c.setState(StateStopped)

	if code != 0 && !stopReq && c.store.Snapshot().EnableAutoRestart {
		metrics.IncCrash()
		c.log.Warn("crash detected, restarting", "backoff", c.backoff)
		c.notify(fmt.Sprintf("⚠️ Crash detected. Restarting in %s...", c.backoff))
		c.record(history.Event{Session: session, Type: history.EventAutoRestart, ExitCode: code})
		time.Sleep(c.backoff)
		if !c.stopRequested.Load() {
			metrics.IncAutoRestart()
			c.runSequence()
		}
	}
}

// armScheduledRestart arms the periodic-restart timer. Arming replaces
// and cancels any prior handle; an explicit stop cancels it.
func (c *Controller) armScheduledRestart(hours float64) {
	d := time.Duration(hours * float64(time.Hour))
	if d <= 0 {
		return
	}
	c.mu.Lock()
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.restartTimer = time.AfterFunc(d, c.scheduledRestart)
	c.mu.Unlock()
	c.log.Info("scheduled restart armed", "in", d)
}

func (c *Controller) cancelScheduledRestart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

func (c *Controller) scheduledRestart() {
	c.log.Info("executing scheduled restart")
	c.notify("⏰ Executing scheduled restart...")
	metrics.IncScheduledRestart()
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	c.record(history.Event{Session: session, Type: history.EventScheduledRestart})

	c.Stop()
	if !c.awaitStopped(c.stopGrace) {
		c.sup.Kill()
		c.awaitStopped(c.stopGrace)
	}
	c.runSequence()
}

// awaitStopped polls until the exited child has been fully observed and
// released, so a relaunch does not race the monitor's cleanup.
func (c *Controller) awaitStopped(limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if c.State() == StateStopped && !c.sup.Running() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

// defaultCheckAssets locates the asset bundle, asking the operator for a
// path when it is missing from the working directory.
func (c *Controller) defaultCheckAssets() (string, error) {
	target := c.layout.Assets()
	if fileExists(target) {
		return target, nil
	}
	if c.prompt != nil {
		userPath, ok := c.prompt.RequestPath(fmt.Sprintf("Please enter the full path to %s: ", paths.AssetsName))
		if ok && fileExists(userPath) && filepath.Base(userPath) == paths.AssetsName {
			if err := copyFile(userPath, target); err != nil {
				return "", fmt.Errorf("%w: copy assets: %v", ErrPrerequisiteUnmet, err)
			}
			c.log.Info("copied asset bundle into server directory", "from", userPath)
			return target, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found", ErrPrerequisiteUnmet, paths.AssetsName)
}

// defaultTerminateExisting stops any server instance already running on
// the host to avoid port and world-file contention.
func (c *Controller) defaultTerminateExisting() {
	for _, inst := range detector.FindByCmdline(paths.ServerJarName) {
		c.log.Warn("found running server instance, stopping it", "pid", inst.PID)
		inst.Terminate(5 * time.Second)
	}
}

// consoleSink fans a relayed child line out to the persistent log and
// the live console callback.
func (c *Controller) consoleSink(e supervise.Entry) {
	if c.store.Snapshot().EnableLogging {
		c.filelog.Append(e.Time, e.Source, e.Line)
	}
	if c.console != nil {
		c.console(e)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.pushStatus(s, c.sup.PID(), c.sup.Uptime())
}

func (c *Controller) pushStatus(s State, pid int, uptime time.Duration) {
	if c.status != nil {
		c.status.OnStatus(s, pid, uptime)
	}
}

func (c *Controller) notify(message string) {
	if c.notifier == nil {
		return
	}
	if !c.store.Snapshot().EnableDiscord {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, 15*time.Second)
	defer cancel()
	c.notifier.Notify(ctx, message)
}

func (c *Controller) record(e history.Event) {
	if c.hist == nil {
		return
	}
	e.OccurredAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.hist.Send(ctx, e); err != nil {
		c.log.Warn("history sink write failed", "error", err)
	}
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
