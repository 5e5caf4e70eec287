package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"refinery/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedAppliedBatch(store *fakeStore, n int) (*model.OptimizationBatch, []*model.ContentVersion) {
	batch := seedBatch(store, 0, model.BatchOptions{})

	versions := make([]*model.ContentVersion, 0, n)
	for i := 0; i < n; i++ {
		clinic := &model.Clinic{
			ID:          primitive.NewObjectID(),
			Title:       fmt.Sprintf("Applied Clinic %d", i),
			Description: fmt.Sprintf("rewritten text %d", i),
		}
		now := clinic.CreatedAt
		clinic.OptimizedAt = &now
		store.putClinic(clinic)

		version := &model.ContentVersion{
			ID:                      primitive.NewObjectID(),
			BatchID:                 batch.ID,
			TargetID:                clinic.ID,
			Status:                  model.VersionApplied,
			GeneratedContent:        clinic.Description,
			OriginalContentSnapshot: fmt.Sprintf("original text %d", i),
		}
		store.InsertVersion(context.Background(), version)
		versions = append(versions, version)
	}
	return batch, versions
}

func TestRollbackRestoresSnapshots(t *testing.T) {
	store := newFakeStore()
	batch, versions := seedAppliedBatch(store, 3)
	op := NewRollbackOperator(store, store)

	rolledBack, failures, err := op.RollbackBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rolledBack)
	assert.Empty(t, failures)

	for i, version := range versions {
		got, _ := store.GetVersionByID(context.Background(), version.ID)
		assert.Equal(t, model.VersionRolledBack, got.Status)

		clinic, _ := store.GetClinic(context.Background(), version.TargetID)
		assert.Equal(t, fmt.Sprintf("original text %d", i), clinic.Description)
		assert.Nil(t, clinic.OptimizedAt, "rollback must clear the optimization stamp")
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	store := newFakeStore()
	batch, _ := seedAppliedBatch(store, 2)
	op := NewRollbackOperator(store, store)

	rolledBack, _, err := op.RollbackBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rolledBack)

	// A second invocation finds nothing applied and does nothing
	rolledBack, failures, err := op.RollbackBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rolledBack)
	assert.Empty(t, failures)
}

func TestRollbackToleratesPartialFailure(t *testing.T) {
	store := newFakeStore()
	batch, versions := seedAppliedBatch(store, 3)
	op := NewRollbackOperator(store, store)

	store.clinicWriteErrs[versions[1].TargetID] = errors.New("write timeout")

	rolledBack, failures, err := op.RollbackBatch(context.Background(), batch.ID)
	require.NoError(t, err, "partial failure must not abort the rollback")
	assert.Equal(t, 2, rolledBack)
	require.Len(t, failures, 1)
	assert.Equal(t, versions[1].ID, failures[0].VersionID)
	assert.Equal(t, versions[1].TargetID, failures[0].TargetID)

	// The failed version stays applied so a retry can pick it up
	got, _ := store.GetVersionByID(context.Background(), versions[1].ID)
	assert.Equal(t, model.VersionApplied, got.Status)
}

func TestRollbackIgnoresUnappliedVersions(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	op := NewRollbackOperator(store, store)

	pending, clinic := seedVersion(store, batch.ID, model.VersionPending)

	rolledBack, failures, err := op.RollbackBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rolledBack)
	assert.Empty(t, failures)

	got, _ := store.GetVersionByID(context.Background(), pending.ID)
	assert.Equal(t, model.VersionPending, got.Status)

	live, _ := store.GetClinic(context.Background(), clinic.ID)
	assert.Equal(t, "the original text", live.Description)
}
