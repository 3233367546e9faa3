package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cachesync/internal/config"
	"git.home.luguber.info/inful/cachesync/internal/daemon"
	"git.home.luguber.info/inful/cachesync/internal/history"
	"git.home.luguber.info/inful/cachesync/internal/runner"
	"git.home.luguber.info/inful/cachesync/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version information and quit"`

	Run struct{} `cmd:"" help:"Run the cache sync pipeline once"`

	Daemon struct{} `cmd:"" help:"Run the scheduler daemon with the recurring weekly sync"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		Limit int `short:"n" help:"Number of runs to show" default:"20"`
	} `cmd:"" help:"Show recent sync runs"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version.String()})

	// Set up logging
	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "run":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runOnce(cfg); err != nil {
			slog.Error("Run failed", "error", err)
			os.Exit(1)
		}
	case "daemon":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runDaemon(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Configuration file created", "path", CLI.Config)
	case "history":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := showHistory(cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	}
}

// runOnce executes a single manual pipeline run. Only a fatal outcome makes
// the process exit non-zero; a failed push does not.
func runOnce(cfg *config.Config) error {
	r := runner.New(cfg)
	res := r.Run(context.Background(), runner.TriggerManual)
	if res.Fatal() {
		return fmt.Errorf("run %s failed at stage %s: %w", res.RunID, res.FatalStage, res.Err)
	}
	return nil
}

func runDaemon(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.NewDaemon(cfg, CLI.Config)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	slog.Info("Daemon started, waiting for shutdown signal...")

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping daemon...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return d.Stop(stopCtx)
}

func showHistory(cfg *config.Config, limit int) error {
	store, err := history.NewStore(cfg.Daemon.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  %-8s  %-18s  %s",
			rec.StartedAt.Format(time.RFC3339), rec.Trigger, rec.Outcome, rec.RunID)
		if len(rec.CommitHash) >= 8 {
			line += "  " + rec.CommitHash[:8]
		}
		if rec.Warning != "" {
			line += "  warning: " + rec.Warning
		}
		if rec.Error != "" {
			line += "  error: " + rec.Error
		}
		fmt.Println(line)
	}
	return nil
}
