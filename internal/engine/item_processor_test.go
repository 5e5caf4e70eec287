package engine

import (
	"context"
	"testing"

	"refinery/internal/model"
	"refinery/pkg/genai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWritesPendingVersionWithSnapshot(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{TargetWordCount: 300})
	proc := NewItemProcessor(store, store, &fakeGenerator{}, 0.25)

	outcome, err := proc.Process(context.Background(), batch, batch.TargetIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ItemSuccess, outcome.Status)

	version, err := store.GetVersionByID(context.Background(), outcome.VersionID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionPending, version.Status)
	assert.Equal(t, batch.ID, version.BatchID)
	assert.Equal(t, batch.TargetIDs[0], version.TargetID)

	clinic, _ := store.GetClinic(context.Background(), batch.TargetIDs[0])
	assert.Equal(t, clinic.Description, version.OriginalContentSnapshot,
		"snapshot must capture the pre-generation content")
	assert.NotEqual(t, clinic.Description, version.GeneratedContent)

	// Generation never touches the live record
	assert.Nil(t, clinic.OptimizedAt)
}

func TestProcessFlagsInvalidOutputForReview(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{TargetWordCount: 300})
	gen := &fakeGenerator{
		rewrite: func(call int, req genai.RewriteRequest) (*genai.RewriteResult, error) {
			result := okRewrite(req)
			result.Valid = false
			return result, nil
		},
	}
	proc := NewItemProcessor(store, store, gen, 0.25)

	outcome, err := proc.Process(context.Background(), batch, batch.TargetIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ItemSuccess, outcome.Status, "flagged output still counts as success")

	version, _ := store.GetVersionByID(context.Background(), outcome.VersionID)
	assert.True(t, version.RequiresManualReview)
	assert.False(t, version.ValidationPassed)
}

func TestProcessFlagsWordCountDeviation(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 2, model.BatchOptions{TargetWordCount: 300})
	gen := &fakeGenerator{
		rewrite: func(call int, req genai.RewriteRequest) (*genai.RewriteResult, error) {
			result := okRewrite(req)
			if call == 1 {
				result.WordCount = 420 // 40% over target
			} else {
				result.WordCount = 330 // 10% over target
			}
			return result, nil
		},
	}
	proc := NewItemProcessor(store, store, gen, 0.25)

	outlier, err := proc.Process(context.Background(), batch, batch.TargetIDs[0])
	require.NoError(t, err)
	version, _ := store.GetVersionByID(context.Background(), outlier.VersionID)
	assert.True(t, version.RequiresManualReview)

	within, err := proc.Process(context.Background(), batch, batch.TargetIDs[1])
	require.NoError(t, err)
	version, _ = store.GetVersionByID(context.Background(), within.VersionID)
	assert.False(t, version.RequiresManualReview)
}

func TestProcessEmptyGenerationIsItemError(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{TargetWordCount: 300})
	gen := &fakeGenerator{
		rewrite: func(call int, req genai.RewriteRequest) (*genai.RewriteResult, error) {
			return &genai.RewriteResult{Text: "   ", Valid: true}, nil
		},
	}
	proc := NewItemProcessor(store, store, gen, 0.25)

	outcome, err := proc.Process(context.Background(), batch, batch.TargetIDs[0])
	require.NoError(t, err)
	assert.Equal(t, ItemError, outcome.Status)
	assert.Equal(t, "generation returned empty content", outcome.Message)

	versions, _ := store.ListVersionsByBatch(context.Background(), batch.ID, "", 0, 0)
	assert.Empty(t, versions, "no version is recorded for failed generation")
}
