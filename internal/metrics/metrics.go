package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "launches_total",
		Help:      "Number of successful server launches.",
	})
	cleanStops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "clean_stops_total",
		Help:      "Number of exits with code zero.",
	})
	crashes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "crashes_total",
		Help:      "Number of nonzero exits without an operator stop request.",
	})
	autoRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "auto_restarts_total",
		Help:      "Number of crash-triggered restart cycles.",
	})
	scheduledRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "scheduled_restarts_total",
		Help:      "Number of timer-driven restart cycles.",
	})
	updatesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "updater",
		Name:      "updates_applied_total",
		Help:      "Number of server binary updates applied.",
	})
	backups = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gamekeeper",
		Subsystem: "backup",
		Name:      "archives_total",
		Help:      "Number of world backup archives produced.",
	})
	running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "running",
		Help:      "1 while the supervised server process is alive.",
	})
	uptimeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamekeeper",
		Subsystem: "server",
		Name:      "uptime_seconds",
		Help:      "Uptime of the current server run, updated by the monitor tick.",
	})
)

// Register registers all collectors with r. Safe to call multiple times;
// calls after the first successful registration are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		launches, cleanStops, crashes, autoRestarts, scheduledRestarts,
		updatesApplied, backups, running, uptimeSeconds,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

func IncLaunch()            { launches.Inc() }
func IncCleanStop()         { cleanStops.Inc() }
func IncCrash()             { crashes.Inc() }
func IncAutoRestart()       { autoRestarts.Inc() }
func IncScheduledRestart()  { scheduledRestarts.Inc() }
func IncUpdateApplied()     { updatesApplied.Inc() }
func IncBackup()            { backups.Inc() }
func SetRunning(up bool)    { running.Set(b2f(up)) }
func SetUptime(sec float64) { uptimeSeconds.Set(sec) }

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
