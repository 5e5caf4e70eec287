package engine

import (
	"context"
	"fmt"
	"time"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Config tunes the engine's review policy
type Config struct {
	ReviewDeviationPct float64
}

// Engine owns the batch state machine and the sequential item loop. One
// Run call consumes targets until the batch completes, fails, pauses, or
// hits the review threshold. Per-item generation failures are recorded and
// tolerated; only control-plane failures (the batch record itself cannot
// be persisted) abort a run.
type Engine struct {
	batches   BatchStore
	versions  VersionStore
	clinics   ClinicStore
	generator Generator
	hub       *Hub
	registry  *Registry
	cfg       Config
}

func New(batches BatchStore, versions VersionStore, clinics ClinicStore, generator Generator, hub *Hub, registry *Registry, cfg Config) *Engine {
	return &Engine{
		batches:   batches,
		versions:  versions,
		clinics:   clinics,
		generator: generator,
		hub:       hub,
		registry:  registry,
		cfg:       cfg,
	}
}

// Hub exposes the progress event hub for stream subscribers
func (e *Engine) Hub() *Hub {
	return e.hub
}

// Registry exposes the active-run registry for pause requests
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Run executes one start/resume invocation for a batch. It returns an
// error only for an invalid starting state or an infrastructure failure;
// pause, review and completion are normal returns. Progress events are
// published to the hub throughout, ending with a terminal event.
func (e *Engine) Run(ctx context.Context, batchID primitive.ObjectID) error {
	batch, err := e.batches.GetBatchByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("loading batch %s: %w", batchID.Hex(), err)
	}

	if !batch.Status.Resumable() {
		return fmt.Errorf("batch %s cannot be executed from status %q: %w", batchID.Hex(), batch.Status, model.ErrInvalidState)
	}

	run, err := e.registry.begin(batchID.Hex())
	if err != nil {
		return err
	}
	defer e.registry.end(batchID.Hex())

	now := time.Now()
	batch.Status = model.BatchProcessing
	if batch.StartedAt == nil {
		batch.StartedAt = &now
	}
	batch.PausedAt = nil
	if err := e.batches.UpdateBatchLifecycle(ctx, batch); err != nil {
		return fmt.Errorf("marking batch processing: %w", err)
	}

	log.Info().
		Str("batchId", batch.ID.Hex()).
		Int("processed", batch.ProcessedCount).
		Int("total", batch.TotalClinics).
		Msg("Batch run started")

	e.hub.Publish(batch.ID.Hex(), Event{
		Message: "Optimization run started",
		Current: batch.ProcessedCount,
		Total:   batch.TotalClinics,
	})

	processor := NewItemProcessor(e.clinics, e.versions, e.generator, e.cfg.ReviewDeviationPct)
	costs := &CostAccumulator{}

	for batch.ProcessedCount < len(batch.TargetIDs) {
		// Cooperative pause: checked between items only, so an in-flight
		// item is always fully recorded before the run stops.
		if run.PauseRequested() || ctx.Err() != nil {
			return e.pause(ctx, batch)
		}

		targetID := batch.TargetIDs[batch.ProcessedCount]

		outcome, err := processor.Process(ctx, batch, targetID)
		if err != nil {
			return e.fail(ctx, batch, err)
		}

		e.merge(batch, targetID, outcome)
		costs.Add(outcome.InputTokens, outcome.OutputTokens, outcome.Cost)

		if err := e.batches.UpdateBatchProgress(ctx, batch); err != nil {
			return e.fail(ctx, batch, fmt.Errorf("persisting batch progress: %w", err))
		}

		e.hub.Publish(batch.ID.Hex(), itemEvent(batch, outcome))

		if e.reviewDue(batch) {
			return e.awaitReview(ctx, batch)
		}
	}

	return e.complete(ctx, batch, costs)
}

// merge folds one item outcome into the batch counters, maintaining
// processedCount == successCount + errorCount + skippedCount.
func (e *Engine) merge(batch *model.OptimizationBatch, targetID primitive.ObjectID, outcome ItemOutcome) {
	batch.ProcessedCount++
	switch outcome.Status {
	case ItemSuccess:
		batch.SuccessCount++
		batch.PendingReviewCount++
	case ItemSkipped:
		batch.SkippedCount++
	case ItemError:
		batch.ErrorCount++
		batch.Errors = append(batch.Errors, model.BatchError{
			TargetID:  targetID,
			Message:   outcome.Message,
			Timestamp: time.Now(),
		})
	}
	batch.TotalInputTokens += outcome.InputTokens
	batch.TotalOutputTokens += outcome.OutputTokens
	batch.EstimatedCost += outcome.Cost
}

func (e *Engine) reviewDue(batch *model.OptimizationBatch) bool {
	freq := batch.Options.ReviewFrequency
	if freq <= 0 {
		return false
	}
	return batch.ProcessedCount%freq == 0 && batch.ProcessedCount < batch.TotalClinics
}

func (e *Engine) pause(ctx context.Context, batch *model.OptimizationBatch) error {
	now := time.Now()
	batch.Status = model.BatchPaused
	batch.PausedAt = &now
	if err := e.batches.UpdateBatchLifecycle(ctx, batch); err != nil {
		return e.fail(ctx, batch, fmt.Errorf("persisting paused status: %w", err))
	}

	log.Info().
		Str("batchId", batch.ID.Hex()).
		Int("processed", batch.ProcessedCount).
		Msg("Batch paused")

	e.hub.Publish(batch.ID.Hex(), Event{
		Message: fmt.Sprintf("Paused after %d of %d clinics", batch.ProcessedCount, batch.TotalClinics),
		Current: batch.ProcessedCount,
		Total:   batch.TotalClinics,
		Status:  model.BatchPaused,
	})
	return nil
}

func (e *Engine) awaitReview(ctx context.Context, batch *model.OptimizationBatch) error {
	now := time.Now()
	batch.Status = model.BatchAwaitingReview
	batch.PausedAt = &now
	if err := e.batches.UpdateBatchLifecycle(ctx, batch); err != nil {
		return e.fail(ctx, batch, fmt.Errorf("persisting awaiting_review status: %w", err))
	}

	log.Info().
		Str("batchId", batch.ID.Hex()).
		Int("processed", batch.ProcessedCount).
		Int("pendingReview", batch.PendingReviewCount).
		Msg("Batch paused for mandatory review")

	e.hub.Publish(batch.ID.Hex(), Event{
		Message: fmt.Sprintf("Review checkpoint: %d of %d clinics processed, approval required to continue", batch.ProcessedCount, batch.TotalClinics),
		Current: batch.ProcessedCount,
		Total:   batch.TotalClinics,
		Status:  model.BatchAwaitingReview,
	})
	return nil
}

func (e *Engine) complete(ctx context.Context, batch *model.OptimizationBatch, costs *CostAccumulator) error {
	now := time.Now()
	batch.Status = model.BatchCompleted
	batch.CompletedAt = &now
	if err := e.batches.UpdateBatchLifecycle(ctx, batch); err != nil {
		return e.fail(ctx, batch, fmt.Errorf("persisting completed status: %w", err))
	}

	log.Info().
		Str("batchId", batch.ID.Hex()).
		Int("success", batch.SuccessCount).
		Int("errors", batch.ErrorCount).
		Int("skipped", batch.SkippedCount).
		Float64("runCost", costs.EstimatedCost).
		Msg("Batch completed")

	e.hub.Publish(batch.ID.Hex(), Event{
		Message: fmt.Sprintf("Completed: %d succeeded, %d failed, %d skipped ($%.4f this run)",
			batch.SuccessCount, batch.ErrorCount, batch.SkippedCount, costs.EstimatedCost),
		Current: batch.ProcessedCount,
		Total:   batch.TotalClinics,
		Status:  model.BatchCompleted,
	})
	return nil
}

// fail marks the batch failed after an infrastructure error, preserving
// all counters accumulated so far. The original error is returned so the
// consumer can log it.
func (e *Engine) fail(ctx context.Context, batch *model.OptimizationBatch, cause error) error {
	batch.Status = model.BatchFailed
	if err := e.batches.UpdateBatchLifecycle(ctx, batch); err != nil {
		log.Error().
			Err(err).
			Str("batchId", batch.ID.Hex()).
			Msg("Failed to persist failed status")
	}

	log.Error().
		Err(cause).
		Str("batchId", batch.ID.Hex()).
		Int("processed", batch.ProcessedCount).
		Msg("Batch failed")

	e.hub.Publish(batch.ID.Hex(), Event{
		Message: "Batch failed",
		Error:   cause.Error(),
		Current: batch.ProcessedCount,
		Total:   batch.TotalClinics,
		Status:  model.BatchFailed,
	})
	return cause
}

func itemEvent(batch *model.OptimizationBatch, outcome ItemOutcome) Event {
	ev := Event{
		Current:     batch.ProcessedCount,
		Total:       batch.TotalClinics,
		ClinicTitle: outcome.ClinicTitle,
	}
	switch outcome.Status {
	case ItemSuccess:
		ev.Message = fmt.Sprintf("Optimized %q", outcome.ClinicTitle)
		ev.WordCountBefore = outcome.WordCountBefore
		ev.WordCountAfter = outcome.WordCountAfter
	case ItemSkipped:
		ev.Message = fmt.Sprintf("Skipped %q: %s", outcome.ClinicTitle, outcome.Message)
	case ItemError:
		ev.Message = fmt.Sprintf("Failed %q", outcome.ClinicTitle)
		ev.Error = outcome.Message
	}
	return ev
}
