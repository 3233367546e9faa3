// Package runner sequences one pipeline run: provision, launch the cache
// builder, wait, synchronize API files, publish.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/cachesync/internal/builder"
	"git.home.luguber.info/inful/cachesync/internal/config"
	syncerrors "git.home.luguber.info/inful/cachesync/internal/errors"
	"git.home.luguber.info/inful/cachesync/internal/history"
	"git.home.luguber.info/inful/cachesync/internal/logfields"
	"git.home.luguber.info/inful/cachesync/internal/metrics"
	"git.home.luguber.info/inful/cachesync/internal/provision"
	"git.home.luguber.info/inful/cachesync/internal/publisher"
	"git.home.luguber.info/inful/cachesync/internal/syncer"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// OutcomeKind is the structured run result, so outcomes are testable without
// string matching on logs.
type OutcomeKind string

const (
	OutcomePublished       OutcomeKind = "published"
	OutcomeSkippedNoChange OutcomeKind = "skipped_no_change"
	OutcomePushFailed      OutcomeKind = "push_failed"
	OutcomeFatal           OutcomeKind = "fatal"
)

// Pipeline stage names used in logs and metrics.
const (
	StageProvision = "provision"
	StageBuilder   = "builder"
	StageWait      = "wait"
	StageSync      = "sync"
	StagePublish   = "publish"
)

// Result is the structured outcome of one run.
type Result struct {
	RunID      string      `json:"run_id"`
	Trigger    Trigger     `json:"trigger"`
	Outcome    OutcomeKind `json:"outcome"`
	FatalStage string      `json:"fatal_stage,omitempty"`
	CommitHash string      `json:"commit_hash,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	ErrText    string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`

	Err error `json:"-"`
}

// Fatal reports whether the run failed outright.
func (r *Result) Fatal() bool { return r.Outcome == OutcomeFatal }

// Collaborator interfaces, sized to what the runner needs.
type (
	Provisioner interface {
		Run(ctx context.Context) error
	}
	CacheBuilder interface {
		Start(ctx context.Context) (builder.Handle, error)
	}
	CompletionWaiter interface {
		Wait(ctx context.Context, h builder.Handle) (builder.WaitOutcome, error)
	}
	Synchronizer interface {
		Sync(ctx context.Context) ([]string, error)
	}
	RepoPublisher interface {
		Publish(ctx context.Context) (*publisher.Result, error)
	}
	HistorySink interface {
		Append(ctx context.Context, rec history.Record) error
	}
	OutcomeNotifier interface {
		Publish(payload any) error
	}
)

// Runner executes the pipeline sequentially. The only concurrency is the
// detached cache-builder child process running during the wait stage.
type Runner struct {
	provision Provisioner
	builder   CacheBuilder
	waiter    CompletionWaiter
	syncer    Synchronizer
	publisher RepoPublisher

	recorder metrics.Recorder
	history  HistorySink
	notifier OutcomeNotifier
}

// Option customizes a Runner (used by the daemon and by tests).
type Option func(*Runner)

func WithProvisioner(p Provisioner) Option     { return func(r *Runner) { r.provision = p } }
func WithBuilder(b CacheBuilder) Option        { return func(r *Runner) { r.builder = b } }
func WithWaiter(w CompletionWaiter) Option     { return func(r *Runner) { r.waiter = w } }
func WithSynchronizer(s Synchronizer) Option   { return func(r *Runner) { r.syncer = s } }
func WithPublisher(p RepoPublisher) Option     { return func(r *Runner) { r.publisher = p } }
func WithRecorder(rec metrics.Recorder) Option { return func(r *Runner) { r.recorder = rec } }
func WithHistory(h HistorySink) Option         { return func(r *Runner) { r.history = h } }
func WithNotifier(n OutcomeNotifier) Option    { return func(r *Runner) { r.notifier = n } }

// New builds a runner with the default collaborators derived from cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		provision: provision.NewRunner(cfg.Provision),
		builder:   builder.NewInvoker(cfg.Builder),
		waiter:    builder.NewWaiter(cfg.Builder),
		syncer:    syncer.New(cfg),
		publisher: publisher.New(cfg.Repo),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one pipeline run to completion or fatal failure. It never
// returns an error: the Result carries the outcome, and only fatal outcomes
// represent a failed run.
func (r *Runner) Run(ctx context.Context, trigger Trigger) *Result {
	res := &Result{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	log := slog.With(logfields.RunID(res.RunID), logfields.Trigger(string(trigger)))
	log.Info("Starting cache sync run")

	defer r.finalize(ctx, res, log)

	if err := r.runStage(ctx, StageProvision, log, func(ctx context.Context) error {
		return r.provision.Run(ctx)
	}); err != nil {
		return r.fatal(res, StageProvision, err)
	}

	var handle builder.Handle
	if err := r.runStage(ctx, StageBuilder, log, func(ctx context.Context) error {
		h, err := r.builder.Start(ctx)
		handle = h
		return err
	}); err != nil {
		return r.fatal(res, StageBuilder, err)
	}

	var waitOutcome builder.WaitOutcome
	if err := r.runStage(ctx, StageWait, log, func(ctx context.Context) error {
		o, err := r.waiter.Wait(ctx, handle)
		waitOutcome = o
		return err
	}); err != nil {
		return r.fatal(res, StageWait, err)
	}
	if waitOutcome == builder.WaitBudgetExhausted {
		// Tolerated: the synchronizer reads whatever artifacts exist.
		res.Warnings = append(res.Warnings, "wait budget exhausted before cache build completed")
		r.recorder.IncStageResult(StageWait, metrics.ResultWarning)
	}

	if err := r.runStage(ctx, StageSync, log, func(ctx context.Context) error {
		updated, err := r.syncer.Sync(ctx)
		if err == nil {
			log.Info("Cache API synchronized", slog.Int("updated_files", len(updated)))
		}
		return err
	}); err != nil {
		return r.fatal(res, StageSync, err)
	}

	var pub *publisher.Result
	if err := r.runStage(ctx, StagePublish, log, func(ctx context.Context) error {
		p, err := r.publisher.Publish(ctx)
		pub = p
		return err
	}); err != nil {
		return r.fatal(res, StagePublish, err)
	}

	res.CommitHash = pub.CommitHash
	switch pub.Status {
	case publisher.StatusPublished:
		res.Outcome = OutcomePublished
		r.recorder.IncPushResult(true)
	case publisher.StatusSkippedNoChange:
		res.Outcome = OutcomeSkippedNoChange
	case publisher.StatusPushFailed:
		res.Outcome = OutcomePushFailed
		res.Warnings = append(res.Warnings, fmt.Sprintf("push failed: %v", pub.PushErr))
		r.recorder.IncPushResult(false)
	}
	return res
}

// runStage times and records a single stage.
func (r *Runner) runStage(ctx context.Context, name string, log *slog.Logger, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	r.recorder.ObserveStageDuration(name, d)

	if err != nil {
		r.recorder.IncStageResult(name, metrics.ResultFatal)
		log.Error("Stage failed",
			logfields.Stage(name),
			logfields.DurationMS(float64(d.Milliseconds())),
			logfields.Error(err))
		return err
	}
	r.recorder.IncStageResult(name, metrics.ResultSuccess)
	log.Debug("Stage completed",
		logfields.Stage(name),
		logfields.DurationMS(float64(d.Milliseconds())))
	return nil
}

func (r *Runner) fatal(res *Result, stage string, err error) *Result {
	res.Outcome = OutcomeFatal
	res.FatalStage = stage
	if s := syncerrors.GetStage(err); s != "" {
		res.FatalStage = s
	}
	res.Err = err
	res.ErrText = err.Error()
	return res
}

// finalize records the run wherever outcomes are observed: metrics, history,
// notifications, and the log.
func (r *Runner) finalize(ctx context.Context, res *Result, log *slog.Logger) {
	res.FinishedAt = time.Now()
	d := res.FinishedAt.Sub(res.StartedAt)
	r.recorder.ObserveRunDuration(d)
	r.recorder.IncRunOutcome(string(res.Outcome))

	if r.history != nil {
		rec := history.Record{
			RunID:      res.RunID,
			Trigger:    string(res.Trigger),
			Outcome:    string(res.Outcome),
			CommitHash: res.CommitHash,
			Error:      res.ErrText,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		if len(res.Warnings) > 0 {
			rec.Warning = res.Warnings[0]
		}
		if err := r.history.Append(ctx, rec); err != nil {
			log.Warn("Failed to record run history", logfields.Error(err))
		}
	}

	if r.notifier != nil {
		if err := r.notifier.Publish(res); err != nil {
			log.Warn("Failed to publish run outcome", logfields.Error(err))
		}
	}

	attrs := []any{
		logfields.Outcome(string(res.Outcome)),
		logfields.DurationMS(float64(d.Milliseconds())),
	}
	if res.Fatal() {
		attrs = append(attrs, logfields.Stage(res.FatalStage), logfields.Error(res.Err))
		log.Error("Cache sync run failed", attrs...)
		return
	}
	log.Info("Cache sync run completed", attrs...)
}
