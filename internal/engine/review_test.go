package engine

import (
	"context"
	"errors"
	"testing"

	"refinery/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedVersion(store *fakeStore, batchID primitive.ObjectID, status model.VersionStatus) (*model.ContentVersion, *model.Clinic) {
	clinic := &model.Clinic{
		ID:          primitive.NewObjectID(),
		Title:       "Seed Clinic",
		Description: "the original text",
	}
	store.putClinic(clinic)

	version := &model.ContentVersion{
		ID:                      primitive.NewObjectID(),
		BatchID:                 batchID,
		TargetID:                clinic.ID,
		Status:                  status,
		GeneratedContent:        "the rewritten text",
		OriginalContentSnapshot: clinic.Description,
	}
	store.InsertVersion(context.Background(), version)
	return version, clinic
}

func TestReviewApproveAndReject(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	gate := NewReviewGate(store, store, store)

	toApprove, _ := seedVersion(store, batch.ID, model.VersionPending)
	got, err := gate.Approve(context.Background(), toApprove.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionApproved, got.Status)

	toReject, _ := seedVersion(store, batch.ID, model.VersionPending)
	got, err = gate.Reject(context.Background(), toReject.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionRejected, got.Status)
}

func TestReviewTransitionsAreForwardOnly(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	gate := NewReviewGate(store, store, store)

	version, _ := seedVersion(store, batch.ID, model.VersionPending)
	_, err := gate.Approve(context.Background(), version.ID)
	require.NoError(t, err)

	// A decided version cannot be decided again
	_, err = gate.Approve(context.Background(), version.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	_, err = gate.Reject(context.Background(), version.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	// Apply cannot skip the review decision
	pending, _ := seedVersion(store, batch.ID, model.VersionPending)
	_, err = gate.Apply(context.Background(), pending.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	// A rejected version cannot be applied
	rejected, _ := seedVersion(store, batch.ID, model.VersionRejected)
	_, err = gate.Apply(context.Background(), rejected.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestReviewUpdatesBatchCounters(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	stored, _ := store.GetBatchByID(context.Background(), batch.ID)
	stored.PendingReviewCount = 2
	store.putBatch(stored)

	gate := NewReviewGate(store, store, store)

	approve, _ := seedVersion(store, batch.ID, model.VersionPending)
	reject, _ := seedVersion(store, batch.ID, model.VersionPending)

	_, err := gate.Approve(context.Background(), approve.ID)
	require.NoError(t, err)
	_, err = gate.Reject(context.Background(), reject.ID)
	require.NoError(t, err)

	got, _ := store.GetBatchByID(context.Background(), batch.ID)
	assert.Equal(t, 0, got.PendingReviewCount)
	assert.Equal(t, 1, got.ApprovedCount)
	assert.Equal(t, 1, got.RejectedCount)
}

func TestApplyWritesLiveContent(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	gate := NewReviewGate(store, store, store)

	version, clinic := seedVersion(store, batch.ID, model.VersionApproved)

	got, err := gate.Apply(context.Background(), version.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VersionApplied, got.Status)

	live, _ := store.GetClinic(context.Background(), clinic.ID)
	assert.Equal(t, "the rewritten text", live.Description)
	assert.NotNil(t, live.OptimizedAt)
}

func TestApplyCompensatesOnClinicWriteFailure(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	gate := NewReviewGate(store, store, store)

	version, clinic := seedVersion(store, batch.ID, model.VersionApproved)
	store.clinicWriteErrs[clinic.ID] = errors.New("write timeout")

	_, err := gate.Apply(context.Background(), version.ID)
	require.Error(t, err)

	// The version must not be stranded in applied while the live record
	// still holds the old content.
	got, _ := store.GetVersionByID(context.Background(), version.ID)
	assert.Equal(t, model.VersionApproved, got.Status)

	live, _ := store.GetClinic(context.Background(), clinic.ID)
	assert.Equal(t, "the original text", live.Description)
}

func TestConcurrentApplySameTargetOneWins(t *testing.T) {
	store := newFakeStore()
	batch := seedBatch(store, 1, model.BatchOptions{})
	gate := NewReviewGate(store, store, store)

	first, clinic := seedVersion(store, batch.ID, model.VersionApproved)

	// Second approved version for the same target within the same batch
	second := &model.ContentVersion{
		ID:                      primitive.NewObjectID(),
		BatchID:                 batch.ID,
		TargetID:                clinic.ID,
		Status:                  model.VersionApproved,
		GeneratedContent:        "a competing rewrite",
		OriginalContentSnapshot: clinic.Description,
	}
	store.InsertVersion(context.Background(), second)

	_, err := gate.Apply(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = gate.Apply(context.Background(), second.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	// The loser's content never reached the live record
	live, _ := store.GetClinic(context.Background(), clinic.ID)
	assert.Equal(t, "the rewritten text", live.Description)
}
