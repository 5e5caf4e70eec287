package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"refinery/internal/model"
	"refinery/pkg/genai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestEngine(store *fakeStore, gen Generator) *Engine {
	return New(store, store, store, gen, NewHub(), NewRegistry(), Config{ReviewDeviationPct: 0.25})
}

// seedBatch creates a pending batch over n fresh clinics and stores both
func seedBatch(store *fakeStore, n int, opts model.BatchOptions) *model.OptimizationBatch {
	targetIDs := make([]primitive.ObjectID, 0, n)
	for i := 0; i < n; i++ {
		clinic := &model.Clinic{
			ID:          primitive.NewObjectID(),
			Title:       fmt.Sprintf("Clinic %d", i),
			City:        "Berlin",
			Specialty:   "dermatology",
			Description: fmt.Sprintf("Original description for clinic %d with several words", i),
		}
		store.putClinic(clinic)
		targetIDs = append(targetIDs, clinic.ID)
	}

	batch := &model.OptimizationBatch{
		ID:           primitive.NewObjectID(),
		Status:       model.BatchPending,
		Options:      opts,
		TargetIDs:    targetIDs,
		TotalClinics: n,
		Errors:       []model.BatchError{},
	}
	store.putBatch(batch)
	return batch
}

func assertCounterInvariant(t *testing.T, b *model.OptimizationBatch) {
	t.Helper()
	assert.Equal(t, b.ProcessedCount, b.SuccessCount+b.ErrorCount+b.SkippedCount,
		"processedCount must equal successCount + errorCount + skippedCount")
}

func TestRunCompletesWithPartialFailures(t *testing.T) {
	store := newFakeStore()
	gen := &fakeGenerator{
		rewrite: func(call int, req genai.RewriteRequest) (*genai.RewriteResult, error) {
			// Items 3 and 7 fail at generation time
			if call == 3 || call == 7 {
				return nil, errors.New("upstream timeout")
			}
			return okRewrite(req), nil
		},
	}
	batch := seedBatch(store, 10, model.BatchOptions{TargetWordCount: 300})
	eng := newTestEngine(store, gen)

	err := eng.Run(context.Background(), batch.ID)
	require.NoError(t, err)

	got, err := store.GetBatchByID(context.Background(), batch.ID)
	require.NoError(t, err)

	assert.Equal(t, model.BatchCompleted, got.Status)
	assert.Equal(t, 10, got.ProcessedCount)
	assert.Equal(t, 8, got.SuccessCount)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, 0, got.SkippedCount)
	assertCounterInvariant(t, got)

	require.Len(t, got.Errors, 2)
	assert.Equal(t, "upstream timeout", got.Errors[0].Message)

	// Failed items consumed no tokens
	assert.Equal(t, 8*100, got.TotalInputTokens)
	assert.Equal(t, 8*80, got.TotalOutputTokens)
	assert.InDelta(t, 8*0.002, got.EstimatedCost, 1e-9)
	assert.NotNil(t, got.CompletedAt)
}

func TestRunPausesAtReviewCheckpoint(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 12, model.BatchOptions{TargetWordCount: 300, ReviewFrequency: 5})
	eng := newTestEngine(store, &fakeGenerator{})

	require.NoError(t, eng.Run(context.Background(), batch.ID))
	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchAwaitingReview, got.Status)
	assert.Equal(t, 5, got.ProcessedCount)
	assert.Equal(t, 5, got.PendingReviewCount)
	assertCounterInvariant(t, got)

	// Resume twice: second checkpoint at 10, then completion at 12
	require.NoError(t, eng.Run(context.Background(), batch.ID))
	got, _ = store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchAwaitingReview, got.Status)
	assert.Equal(t, 10, got.ProcessedCount)

	require.NoError(t, eng.Run(context.Background(), batch.ID))
	got, _ = store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchCompleted, got.Status)
	assert.Equal(t, 12, got.ProcessedCount)
	assertCounterInvariant(t, got)
}

func TestRunNoCheckpointOnFinalItem(t *testing.T) {
	// 10 targets with frequency 5: checkpoint at 5 but not at 10, where the
	// batch is exhausted and completes instead.
	store := newFakeStore()
	batch := seedBatch(store, 10, model.BatchOptions{TargetWordCount: 300, ReviewFrequency: 5})
	eng := newTestEngine(store, &fakeGenerator{})

	require.NoError(t, eng.Run(context.Background(), batch.ID))
	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchAwaitingReview, got.Status)

	require.NoError(t, eng.Run(context.Background(), batch.ID))
	got, _ = store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchCompleted, got.Status)
	assert.Equal(t, 10, got.ProcessedCount)
}

func TestRunPauseNeverLosesInFlightItem(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 6, model.BatchOptions{TargetWordCount: 300})
	registry := NewRegistry()

	// Request the pause from inside the second generation call: the item
	// must still be fully recorded before the run stops.
	gen := &fakeGenerator{
		rewrite: func(call int, req genai.RewriteRequest) (*genai.RewriteResult, error) {
			if call == 2 {
				require.NoError(t, registry.RequestPause(batch.ID.Hex()))
			}
			return okRewrite(req), nil
		},
	}
	eng := New(store, store, store, gen, NewHub(), registry, Config{ReviewDeviationPct: 0.25})

	require.NoError(t, eng.Run(context.Background(), batch.ID))

	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchPaused, got.Status)
	assert.Equal(t, 2, got.ProcessedCount, "the in-flight item must be recorded before pausing")
	assert.Equal(t, 2, got.SuccessCount)
	assert.NotNil(t, got.PausedAt)
	assertCounterInvariant(t, got)

	// Resume consumes the remaining targets from the cursor
	require.NoError(t, eng.Run(context.Background(), batch.ID))
	got, _ = store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchCompleted, got.Status)
	assert.Equal(t, 6, got.ProcessedCount)
	assert.Equal(t, 6, got.SuccessCount)

	versions, _ := store.ListVersionsByBatch(context.Background(), batch.ID, "", 0, 0)
	assert.Len(t, versions, 6, "no target processed twice across pause and resume")
}

func TestRunSkipsIneligibleClinics(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 4, model.BatchOptions{TargetWordCount: 300})

	// First clinic has nothing to rewrite, second is already optimized
	empty, _ := store.GetClinic(context.Background(), batch.TargetIDs[0])
	empty.Description = "   "
	store.putClinic(empty)

	done, _ := store.GetClinic(context.Background(), batch.TargetIDs[1])
	stamp := done.CreatedAt
	done.OptimizedAt = &stamp
	store.putClinic(done)

	eng := newTestEngine(store, &fakeGenerator{})
	require.NoError(t, eng.Run(context.Background(), batch.ID))

	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchCompleted, got.Status)
	assert.Equal(t, 2, got.SkippedCount)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 0, got.ErrorCount)
	assertCounterInvariant(t, got)
}

func TestRunDeletedTargetRecordedAsError(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 3, model.BatchOptions{TargetWordCount: 300})

	// Simulate a clinic deleted between snapshot and execution
	store.mu.Lock()
	delete(store.clinics, batch.TargetIDs[1])
	store.mu.Unlock()

	eng := newTestEngine(store, &fakeGenerator{})
	require.NoError(t, eng.Run(context.Background(), batch.ID))

	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchCompleted, got.Status)
	assert.Equal(t, 1, got.ErrorCount)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "clinic no longer exists", got.Errors[0].Message)
	assertCounterInvariant(t, got)
}

func TestRunFailsOnInfrastructureError(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 5, model.BatchOptions{TargetWordCount: 300})
	store.progressErr = errors.New("connection reset")

	eng := newTestEngine(store, &fakeGenerator{})
	err := eng.Run(context.Background(), batch.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, model.BatchFailed, got.Status)
}

func TestRunRejectsNonResumableStates(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, &fakeGenerator{})

	for _, status := range []model.BatchStatus{model.BatchProcessing, model.BatchCompleted, model.BatchFailed} {
		batch := seedBatch(store, 2, model.BatchOptions{TargetWordCount: 300})
		batch.Status = status
		store.putBatch(batch)

		err := eng.Run(context.Background(), batch.ID)
		assert.ErrorIs(t, err, model.ErrInvalidState, "status %s must not be executable", status)
	}
}

func TestRunRejectsSecondConcurrentRun(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 2, model.BatchOptions{TargetWordCount: 300})
	eng := newTestEngine(store, &fakeGenerator{})

	_, err := eng.Registry().begin(batch.ID.Hex())
	require.NoError(t, err)
	defer eng.Registry().end(batch.ID.Hex())

	err = eng.Run(context.Background(), batch.ID)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestRunStreamsOrderedEventsWithTerminal(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 3, model.BatchOptions{TargetWordCount: 300})
	eng := newTestEngine(store, &fakeGenerator{})

	events, cancel := eng.Hub().Subscribe(batch.ID.Hex())
	defer cancel()

	require.NoError(t, eng.Run(context.Background(), batch.ID))

	var collected []Event
	for ev := range events {
		collected = append(collected, ev)
	}

	require.NotEmpty(t, collected)
	assert.Equal(t, "Optimization run started", collected[0].Message)

	last := 0
	for _, ev := range collected {
		assert.GreaterOrEqual(t, ev.Current, last, "progress must be monotonic")
		last = ev.Current
	}

	terminal := collected[len(collected)-1]
	assert.True(t, terminal.Terminal())
	assert.Equal(t, model.BatchCompleted, terminal.Status)
	assert.Equal(t, 3, terminal.Current)
}

func TestRunMissingBatch(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, &fakeGenerator{})

	err := eng.Run(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, model.ErrNotFound)
}
