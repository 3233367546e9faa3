// Package provision runs the environment-provisioning and pre-build
// collaborator commands. Every step is opaque and must exit zero.
package provision

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/cachesync/internal/config"
	syncerrors "git.home.luguber.info/inful/cachesync/internal/errors"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
)

// Runner executes provisioning steps sequentially.
type Runner struct {
	steps []config.Step
}

// NewRunner creates a runner for the configured steps.
func NewRunner(steps []config.Step) *Runner {
	return &Runner{steps: steps}
}

// Run executes every step in order. The first non-zero exit aborts the run.
func (r *Runner) Run(ctx context.Context) error {
	for _, step := range r.steps {
		if err := r.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step config.Step) error {
	name := step.Name
	if name == "" {
		name = step.Command
	}

	slog.Info("Running provisioning step",
		slog.String("step", name),
		logfields.Command(step.Command))

	start := time.Now()
	cmd := exec.CommandContext(ctx, step.Command, step.Args...)
	if step.Dir != "" {
		cmd.Dir = step.Dir
	}

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		slog.Debug("Provisioning step output",
			slog.String("step", name),
			slog.String("output", strings.TrimSpace(string(out))))
	}
	if err != nil {
		return syncerrors.WrapFatal(err, syncerrors.CategoryProvision, "provisioning step failed").
			WithStage("provision").
			WithContext("step", name)
	}

	slog.Info("Provisioning step completed",
		slog.String("step", name),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
