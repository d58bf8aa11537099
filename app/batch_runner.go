// Package app wires the engine components into caller-facing services.
package app

import (
	"context"
	"math"
	"runtime"

	"golmm/domain/core"
	"golmm/domain/model"
	"golmm/internal"
	"golmm/internal/lmm"
	"golmm/internal/prepare"

	"golang.org/x/sync/errgroup"
)

// Coefficient names the summary table reports, per the study's model:
// response ~ intervention * time_years + region + covariates
const (
	interventionTerm = "intervention"
	timeTerm         = "time_years"
	interactionTerm  = "intervention:time_years"
)

// BatchRunner fits one specification template across a list of outcome
// variables. Fits are pure functions of their inputs and run on a worker
// pool; the source frame is shared read-only, so no locking is involved.
type BatchRunner struct {
	logger  *internal.Logger
	workers int
	opts    model.Options
}

// NewBatchRunner creates a runner; workers <= 0 means one per core
func NewBatchRunner(logger *internal.Logger, workers int, opts model.Options) *BatchRunner {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &BatchRunner{logger: logger, workers: workers, opts: opts}
}

// Run fits the template against every outcome and assembles the summary.
// A failed fit becomes an error entry and the batch continues; the result
// always has exactly one entry per outcome.
func (r *BatchRunner) Run(ctx context.Context, frame *prepare.Frame, template model.Spec, outcomes []string) *model.BatchSummary {
	entries := make([]model.BatchEntry, len(outcomes))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for i, outcome := range outcomes {
		i, outcome := i, outcome
		group.Go(func() error {
			select {
			case <-ctx.Done():
				entries[i] = model.BatchEntry{Outcome: outcome, Error: ctx.Err().Error()}
				return nil
			default:
			}
			entries[i] = r.fitOne(frame, template, outcome)
			return nil
		})
	}
	// Workers never return errors; failures are captured per entry
	_ = group.Wait()

	summary := &model.BatchSummary{
		BatchID:   core.NewBatchID(),
		CreatedAt: core.Now(),
		Criterion: template.Criterion,
		Entries:   entries,
	}
	for _, entry := range entries {
		summary.Rows = append(summary.Rows, summaryRow(entry))
		if entry.Failed() {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	r.logger.Info("batch %s complete: %d succeeded, %d failed",
		summary.BatchID, summary.Succeeded, summary.Failed)
	return summary
}

func (r *BatchRunner) fitOne(frame *prepare.Frame, template model.Spec, outcome string) model.BatchEntry {
	spec := template.WithResponse(outcome)
	data, err := prepare.Build(frame, spec)
	if err != nil {
		r.logger.Warn("outcome %s: preparation failed: %v", outcome, err)
		return model.BatchEntry{Outcome: outcome, Error: err.Error()}
	}
	result, err := lmm.Fit(data, spec, r.opts)
	if err != nil {
		r.logger.Warn("outcome %s: fit failed: %v", outcome, err)
		return model.BatchEntry{Outcome: outcome, Error: err.Error()}
	}
	r.logger.Debug("outcome %s: loglik=%.3f converged=%v", outcome, result.LogLik, result.Converged)
	return model.BatchEntry{Outcome: outcome, Result: result}
}

// summaryRow extracts the comparative row for one outcome; coefficients the
// model does not contain are reported as NaN, never zero
func summaryRow(entry model.BatchEntry) model.SummaryRow {
	nan := model.Stat(math.NaN())
	row := model.SummaryRow{
		Outcome:            entry.Outcome,
		Intercept:          nan,
		InterventionEffect: nan,
		InterventionP:      nan,
		TimeEffect:         nan,
		TimeP:              nan,
		InteractionEffect:  nan,
		InteractionP:       nan,
		R2Marginal:         nan,
		R2Conditional:      nan,
	}
	if entry.Failed() {
		row.Error = entry.Error
		return row
	}
	result := entry.Result
	row.Converged = result.Converged
	row.R2Marginal = model.Stat(result.R2Marginal)
	row.R2Conditional = model.Stat(result.R2Conditional)
	if c, ok := result.Coefficient(prepare.InterceptName); ok {
		row.Intercept = model.Stat(c.Estimate)
	}
	if c, ok := result.Coefficient(interventionTerm); ok {
		row.InterventionEffect = model.Stat(c.Estimate)
		row.InterventionP = model.Stat(c.PValue)
	}
	if c, ok := result.Coefficient(timeTerm); ok {
		row.TimeEffect = model.Stat(c.Estimate)
		row.TimeP = model.Stat(c.PValue)
	}
	if c, ok := result.Coefficient(interactionTerm); ok {
		row.InteractionEffect = model.Stat(c.Estimate)
		row.InteractionP = model.Stat(c.PValue)
	}
	return row
}
