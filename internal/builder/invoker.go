// Package builder launches the target application's cache-build mode and
// waits for its completion within a fixed budget.
package builder

import (
	"context"
	"log/slog"
	"os/exec"

	"git.home.luguber.info/inful/cachesync/internal/config"
	syncerrors "git.home.luguber.info/inful/cachesync/internal/errors"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
)

// Handle exposes the running cache-build process to the waiter.
type Handle interface {
	// Done yields the process exit error (nil on clean exit) exactly once.
	Done() <-chan error
	// PID returns the child process ID, or 0 when unknown.
	PID() int
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan error
}

func (h *processHandle) Done() <-chan error { return h.done }

func (h *processHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Invoker starts the target application in cache-build mode.
type Invoker struct {
	command string
	args    []string
	dir     string
}

// NewInvoker creates an invoker from the builder configuration.
func NewInvoker(cfg config.BuilderConfig) *Invoker {
	return &Invoker{command: cfg.Command, args: cfg.Args, dir: cfg.Dir}
}

// Start launches the cache builder detached from the orchestrator's control
// flow and returns immediately. The child writes cache artifacts on its own
// schedule; no output value is awaited. A failure to launch is fatal.
//
// The child is deliberately not bound to ctx: once started, a run proceeds
// to completion and the process may outlive the wait budget.
func (i *Invoker) Start(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryRuntime, "run canceled before builder start")
	}

	cmd := exec.Command(i.command, i.args...)
	if i.dir != "" {
		cmd.Dir = i.dir
	}

	if err := cmd.Start(); err != nil {
		return nil, syncerrors.WrapFatal(err, syncerrors.CategoryBuilder, "failed to launch cache builder").
			WithStage("builder").
			WithContext("command", i.command)
	}

	h := &processHandle{cmd: cmd, done: make(chan error, 1)}
	go func() { h.done <- cmd.Wait() }()

	slog.Info("Cache builder launched",
		logfields.Command(i.command),
		slog.Int("pid", h.PID()))
	return h, nil
}
