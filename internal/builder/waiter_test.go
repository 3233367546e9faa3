package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cachesync/internal/config"
)

// fakeHandle is a Handle whose exit is controlled by the test.
type fakeHandle struct {
	done chan error
}

func newFakeHandle() *fakeHandle { return &fakeHandle{done: make(chan error, 1)} }

func (f *fakeHandle) Done() <-chan error { return f.done }
func (f *fakeHandle) PID() int           { return 12345 }

func TestWaitReturnsOnProcessExit(t *testing.T) {
	h := newFakeHandle()
	w := NewWaiter(config.BuilderConfig{WaitBudget: config.Duration(5 * time.Second)})

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.done <- nil
	}()

	outcome, err := w.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, WaitBuilderExited, outcome)
}

func TestWaitToleratesBuilderExitError(t *testing.T) {
	h := newFakeHandle()
	h.done <- os.ErrProcessDone

	w := NewWaiter(config.BuilderConfig{WaitBudget: config.Duration(time.Second)})
	outcome, err := w.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, WaitBuilderExited, outcome)
}

func TestWaitSeesSentinel(t *testing.T) {
	cacheDir := t.TempDir()
	h := newFakeHandle() // never exits: a long-lived daemon

	w := NewWaiter(config.BuilderConfig{
		CacheDir:   cacheDir,
		Sentinel:   "cache_complete",
		WaitBudget: config.Duration(5 * time.Second),
		Poll: config.PollConfig{
			Mode:    "fixed",
			Initial: config.Duration(10 * time.Millisecond),
			Max:     config.Duration(10 * time.Millisecond),
		},
	})

	go func() {
		time.Sleep(40 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "cache_complete"), nil, 0o644))
	}()

	outcome, err := w.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, WaitSentinelSeen, outcome)
}

func TestWaitBudgetExhaustedIsNotAnError(t *testing.T) {
	h := newFakeHandle() // never exits

	w := NewWaiter(config.BuilderConfig{WaitBudget: config.Duration(50 * time.Millisecond)})

	started := time.Now()
	outcome, err := w.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, WaitBudgetExhausted, outcome)
	// The budget elapses independent of the process state.
	require.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
}

func TestWaitCanceledContext(t *testing.T) {
	h := newFakeHandle()
	w := NewWaiter(config.BuilderConfig{WaitBudget: config.Duration(5 * time.Second)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := w.Wait(ctx, h)
	require.ErrorIs(t, err, context.Canceled)
}
