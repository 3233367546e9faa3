package builder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/cachesync/internal/config"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
	"git.home.luguber.info/inful/cachesync/internal/retry"
)

// WaitOutcome describes how the wait for cache completion ended.
type WaitOutcome string

const (
	// WaitBuilderExited means the child process terminated within the budget.
	WaitBuilderExited WaitOutcome = "builder_exited"
	// WaitSentinelSeen means the completion marker appeared within the budget.
	WaitSentinelSeen WaitOutcome = "sentinel_seen"
	// WaitBudgetExhausted means the budget elapsed with no completion signal.
	// The run still proceeds; the cache may be partial.
	WaitBudgetExhausted WaitOutcome = "budget_exhausted"
)

// Waiter waits for the cache builder to finish. It prefers real completion
// signals (process exit, sentinel file) over the fixed budget, which remains
// the upper bound: the wait never exceeds it and never exits early on
// anything other than exit, sentinel, or cancellation.
type Waiter struct {
	budget   time.Duration
	sentinel string // absolute path of the completion marker; empty disables polling
	policy   retry.Policy
}

// NewWaiter builds a waiter from the builder configuration.
func NewWaiter(cfg config.BuilderConfig) *Waiter {
	sentinel := ""
	if cfg.Sentinel != "" {
		sentinel = filepath.Join(cfg.CacheDir, cfg.Sentinel)
	}
	return &Waiter{
		budget:   cfg.WaitBudget.Std(),
		sentinel: sentinel,
		policy: retry.NewPolicy(
			retry.BackoffMode(cfg.Poll.Mode),
			cfg.Poll.Initial.Std(),
			cfg.Poll.Max.Std(),
			0,
		),
	}
}

// Wait blocks until the builder exits, the sentinel appears, or the budget
// elapses. Budget exhaustion is not an error: the caller records a warning
// and continues, matching the pipeline's tolerance for a missing completion
// signal. Only context cancellation produces an error.
func (w *Waiter) Wait(ctx context.Context, h Handle) (WaitOutcome, error) {
	budget := time.NewTimer(w.budget)
	defer budget.Stop()

	slog.Info("Waiting for cache build to complete",
		slog.Duration("budget", w.budget),
		logfields.Path(w.sentinel))

	attempt := 1
	for {
		var poll *time.Timer
		var pollC <-chan time.Time
		if w.sentinel != "" {
			if _, err := os.Stat(w.sentinel); err == nil {
				slog.Info("Cache completion sentinel found", logfields.Path(w.sentinel))
				return WaitSentinelSeen, nil
			}
			poll = time.NewTimer(w.policy.Delay(attempt))
			pollC = poll.C
		}

		select {
		case err := <-h.Done():
			stopTimer(poll)
			if err != nil {
				// The builder's internal failures are tolerated: the
				// synchronizer reads whatever artifacts exist on disk.
				slog.Warn("Cache builder exited with error", logfields.Error(err))
			} else {
				slog.Info("Cache builder exited")
			}
			return WaitBuilderExited, nil
		case <-budget.C:
			stopTimer(poll)
			slog.Warn("Wait budget exhausted before cache build completed",
				slog.Duration("budget", w.budget))
			return WaitBudgetExhausted, nil
		case <-pollC:
			attempt++
		case <-ctx.Done():
			stopTimer(poll)
			return "", ctx.Err()
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
