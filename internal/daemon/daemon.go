// Package daemon runs the sync pipeline on a recurring schedule and exposes
// an HTTP surface for health, metrics and last-run status.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/cachesync/internal/config"
	"git.home.luguber.info/inful/cachesync/internal/history"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
	"git.home.luguber.info/inful/cachesync/internal/metrics"
	"git.home.luguber.info/inful/cachesync/internal/notify"
	"git.home.luguber.info/inful/cachesync/internal/runner"
)

// Daemon owns the scheduler, the HTTP server and the config watcher.
type Daemon struct {
	configPath string

	mu  sync.RWMutex
	cfg *config.Config
	run *runner.Runner

	scheduler  *Scheduler
	httpServer *HTTPServer
	watcher    *ConfigWatcher

	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
	hist     *history.Store
	notifier *notify.Notifier

	lastResult atomic.Pointer[runner.Result]
}

// NewDaemon wires a daemon from the loaded configuration. configPath is
// watched for changes; pass "" to disable hot reload.
func NewDaemon(cfg *config.Config, configPath string) (*Daemon, error) {
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	hist, err := history.NewStore(cfg.Daemon.HistoryDB)
	if err != nil {
		return nil, err
	}

	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		_ = hist.Close()
		return nil, err
	}

	scheduler, err := NewScheduler()
	if err != nil {
		_ = hist.Close()
		notifier.Close()
		return nil, err
	}

	d := &Daemon{
		configPath: configPath,
		cfg:        cfg,
		scheduler:  scheduler,
		registry:   registry,
		recorder:   recorder,
		hist:       hist,
		notifier:   notifier,
	}
	d.run = d.newRunner(cfg)
	d.httpServer = newHTTPServer(cfg.Daemon.Listen, registry, d.lastResult.Load)
	return d, nil
}

func (d *Daemon) newRunner(cfg *config.Config) *runner.Runner {
	return runner.New(cfg,
		runner.WithRecorder(d.recorder),
		runner.WithHistory(d.hist),
		runner.WithNotifier(d.notifier),
	)
}

// Start schedules the recurring trigger and serves HTTP until ctx is done.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.schedule(); err != nil {
		return err
	}
	d.scheduler.Start(ctx)
	d.httpServer.Start()

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d.reloadConfig)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		d.watcher = watcher
	}

	<-ctx.Done()
	return nil
}

// TriggerRun executes one pipeline run immediately.
func (d *Daemon) TriggerRun(ctx context.Context, trigger runner.Trigger) *runner.Result {
	d.mu.RLock()
	run := d.run
	d.mu.RUnlock()

	res := run.Run(ctx, trigger)
	d.lastResult.Store(res)
	return res
}

func (d *Daemon) schedule() error {
	d.mu.RLock()
	cfg := d.cfg
	d.mu.RUnlock()

	if !cfg.Schedule.Enabled {
		slog.Info("Recurring schedule disabled")
		return nil
	}
	_, err := d.scheduler.ScheduleCron("weekly-sync", cfg.Schedule.Cron, func() {
		d.TriggerRun(context.Background(), runner.TriggerSchedule)
	})
	return err
}

// reloadConfig re-reads the config file and reschedules. A broken config
// keeps the previous one active.
func (d *Daemon) reloadConfig() {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		slog.Error("Config reload failed, keeping previous configuration", logfields.Error(err))
		return
	}

	d.mu.Lock()
	d.cfg = cfg
	d.run = d.newRunner(cfg)
	d.mu.Unlock()

	if err := d.scheduler.Clear(); err != nil {
		slog.Error("Failed to clear schedule on reload", logfields.Error(err))
		return
	}
	if err := d.schedule(); err != nil {
		slog.Error("Failed to reschedule on reload", logfields.Error(err))
	}
	// Listen address changes require a restart; the HTTP server is not rebound.
}

// Stop shuts everything down gracefully.
func (d *Daemon) Stop(ctx context.Context) error {
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			slog.Warn("Failed to stop config watcher", logfields.Error(err))
		}
	}
	if err := d.scheduler.Stop(ctx); err != nil {
		slog.Warn("Failed to stop scheduler", logfields.Error(err))
	}
	if err := d.httpServer.Stop(ctx); err != nil {
		slog.Warn("Failed to stop HTTP server", logfields.Error(err))
	}
	d.notifier.Close()
	if err := d.hist.Close(); err != nil {
		slog.Warn("Failed to close history store", logfields.Error(err))
	}
	slog.Info("Daemon stopped")
	return nil
}
