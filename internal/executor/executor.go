// Package executor runs planned commands, skipping those whose output is
// fresh and whose command text has not changed since the last build.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/dispatch"
	"github.com/starford/mapforge/internal/fingerprint"
	"github.com/starford/mapforge/internal/freshness"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/storage"
)

// Executor decides, dispatches and records planned commands one at a time.
type Executor struct {
	store    fingerprint.Store
	fs       storage.Provider
	oracle   *freshness.Oracle
	registry *dispatch.Registry
	runner   Runner
	logger   *slog.Logger

	// StepTimeout bounds each command when positive.
	StepTimeout time.Duration
	// OnEvent, when set, is called for every status change.
	OnEvent func(models.StepEvent)
}

// New creates an Executor. Commands matching a capability in registry run
// in-process; everything else goes to runner.
func New(store fingerprint.Store, fs storage.Provider, registry *dispatch.Registry, runner Runner, logger *slog.Logger) *Executor {
	if registry == nil {
		registry = dispatch.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		fs:       fs,
		oracle:   freshness.New(fs),
		registry: registry,
		runner:   runner,
		logger:   logger,
	}
}

// Decide applies the rebuild rule without running anything: forced
// commands run; otherwise a command is skipped only when its fingerprint is
// unchanged and its output is not outdated.
func (e *Executor) Decide(ctx context.Context, cmd models.PlannedCommand) (models.Decision, error) {
	if cmd.Force {
		return models.Decision{Run: true, Reason: models.ReasonForced}, nil
	}
	unchanged, err := e.store.Unchanged(ctx, cmd.Output, cmd.Command)
	if err != nil {
		return models.Decision{}, fmt.Errorf("fingerprint %s: %w", cmd.Output, err)
	}
	outdated, err := e.oracle.IsOutdated(cmd.Output, cmd.Inputs)
	if err != nil {
		return models.Decision{}, err
	}
	switch {
	case unchanged && !outdated:
		return models.Decision{Run: false, Reason: models.ReasonUpToDate}, nil
	case !unchanged:
		return models.Decision{Run: true, Reason: models.ReasonCommandChanged}, nil
	default:
		return models.Decision{Run: true, Reason: models.ReasonOutdated}, nil
	}
}

// Run processes a single planned command.
func (e *Executor) Run(ctx context.Context, cmd models.PlannedCommand) (models.StepResult, error) {
	return e.step(ctx, "", cmd)
}

// RunPlan processes the plan in order and stops at the first error. The
// results cover every command attempted, including the failing one.
func (e *Executor) RunPlan(ctx context.Context, plan models.Plan) ([]models.StepResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	results := make([]models.StepResult, 0, len(plan.Commands))
	for _, cmd := range plan.Commands {
		res, err := e.step(ctx, plan.Overlay, cmd)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("overlay %s: %w", plan.Overlay, err)
		}
	}
	return results, nil
}

func (e *Executor) step(ctx context.Context, overlay string, cmd models.PlannedCommand) (models.StepResult, error) {
	res := models.StepResult{Command: cmd.Command, Output: cmd.Output}
	log := e.logger.With(slog.String("output", cmd.Output))
	if overlay != "" {
		log = log.With(slog.String("overlay", overlay))
	}

	fail := func(err error) (models.StepResult, error) {
		res.Status = models.StepFailed
		res.Error = err.Error()
		log.Error("command failed", slog.String("command", cmd.Command), slog.String("error", err.Error()))
		e.emit(overlay, res)
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	d, err := e.Decide(ctx, cmd)
	if err != nil {
		return fail(err)
	}
	res.Reason = d.Reason
	if !d.Run {
		res.Status = models.StepSkipped
		log.Info("skipping up-to-date", slog.String("command", cmd.Command))
		e.emit(overlay, res)
		return res, nil
	}
	if err := e.checkInputs(cmd); err != nil {
		return fail(err)
	}

	log.Info("running", slog.String("command", cmd.Command), slog.String("reason", d.Reason))
	res.Status = models.StepRunning
	e.emit(overlay, res)

	start := time.Now()
	internal, err := e.execute(ctx, cmd)
	res.Internal = internal
	res.Duration = time.Since(start)
	if err != nil {
		return fail(err)
	}
	if err := e.store.Record(ctx, cmd.Output, cmd.Command); err != nil {
		return fail(fmt.Errorf("record fingerprint for %s: %w", cmd.Output, err))
	}

	res.Status = models.StepSucceeded
	log.Info("command successful", slog.Duration("duration", res.Duration))
	e.emit(overlay, res)
	return res, nil
}

// checkInputs rejects a command whose inputs are not on disk. A forced
// command can get past the oracle without its inputs being looked at.
func (e *Executor) checkInputs(cmd models.PlannedCommand) error {
	for _, in := range cmd.Inputs {
		ok, err := e.fs.Exists(in)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.MissingInputf("%s: input %s does not exist", cmd.Output, in)
		}
	}
	return nil
}

// execute dispatches the command and reports whether it ran in-process.
func (e *Executor) execute(ctx context.Context, cmd models.PlannedCommand) (bool, error) {
	stepCtx := ctx
	if e.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		defer cancel()
	}
	stepErr := func(err error, code int, stderr string) error {
		return &apperr.StepError{Command: cmd.Command, Output: cmd.Output, ExitCode: code, Stderr: stderr, Err: err}
	}

	call, ok, err := e.registry.Match(cmd.Command)
	if err != nil {
		return true, stepErr(err, 0, "")
	}
	if ok {
		if err := call.Invoke(stepCtx); err != nil {
			return true, stepErr(e.timeoutErr(ctx, stepCtx, err), 0, "")
		}
		return true, nil
	}

	if e.runner == nil {
		return false, errors.New("no subprocess runner configured")
	}
	r, err := e.runner.Run(stepCtx, cmd.Command)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, stepErr(e.timeoutErr(ctx, stepCtx, err), r.ExitCode, r.Stderr)
	}
	if r.ExitCode != 0 {
		return false, stepErr(nil, r.ExitCode, r.Stderr)
	}
	return false, nil
}

func (e *Executor) timeoutErr(parent, stepCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", e.StepTimeout, context.DeadlineExceeded)
	}
	return err
}

func (e *Executor) emit(overlay string, res models.StepResult) {
	if e.OnEvent == nil {
		return
	}
	e.OnEvent(models.StepEvent{
		Overlay: overlay,
		Command: res.Command,
		Output:  res.Output,
		Status:  res.Status,
		Reason:  res.Reason,
		Error:   res.Error,
		Time:    time.Now().UTC(),
	})
}
