package gamekeeper

import (
	"github.com/loykin/gamekeeper/internal/backup"
	"github.com/loykin/gamekeeper/internal/config"
	"github.com/loykin/gamekeeper/internal/controller"
	"github.com/loykin/gamekeeper/internal/history"
	"github.com/loykin/gamekeeper/internal/logger"
	"github.com/loykin/gamekeeper/internal/notify"
	"github.com/loykin/gamekeeper/internal/paths"
	"github.com/loykin/gamekeeper/internal/supervise"
	"github.com/loykin/gamekeeper/internal/updater"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Settings = config.Settings

type State = controller.State

const (
	StateIdle                  = controller.StateIdle
	StateCheckingPrerequisites = controller.StateCheckingPrerequisites
	StateUpdatingServer        = controller.StateUpdatingServer
	StateBackingUp             = controller.StateBackingUp
	StateLaunching             = controller.StateLaunching
	StateRunning               = controller.StateRunning
	StateStopping              = controller.StateStopping
	StateStopped               = controller.StateStopped
)

type ConsoleEntry = supervise.Entry

type Event = history.Event

type HistorySink = history.Sink

type PromptProvider = controller.PromptProvider

type StatusSink = controller.StatusSink

type Options = controller.Options

type Layout = paths.Layout

type UpdateOutcome = updater.Outcome

// Keeper is a thin facade over internal/controller.Controller.
// It provides a stable public API for embedding.

type Keeper struct{ inner *controller.Controller }

func New(opts Options) *Keeper { return &Keeper{inner: controller.New(opts)} }

func (k *Keeper) Start()                  { k.inner.Start() }
func (k *Keeper) Stop()                   { k.inner.Stop() }
func (k *Keeper) Shutdown()               { k.inner.Shutdown() }
func (k *Keeper) SendCommand(text string) { k.inner.SendCommand(text) }
func (k *Keeper) State() State            { return k.inner.State() }

func (k *Keeper) Updater() *updater.Coordinator { return k.inner.Updater() }
func (k *Keeper) Archiver() *backup.Archiver    { return k.inner.Archiver() }

// OpenConfig loads (or initializes) the settings file at path.
func OpenConfig(path string) (*config.Store, error) { return config.Open(path) }

// NewFileLog opens the persistent console log with rotation.
func NewFileLog(c logger.Config) *logger.FileLog { return logger.NewFileLog(c) }

// NewWebhook builds a Discord notifier; an empty url disables it.
func NewWebhook(url string) notify.Notifier { return notify.NewWebhook(url, nil) }
