package engine

import (
	"context"
	"fmt"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewGate moves pending versions through human review and applies
// approved content to live clinic records. All transitions are guarded:
// an illegal transition returns ErrInvalidState, and a concurrent apply
// racing for the same target returns ErrConflict to exactly one caller.
type ReviewGate struct {
	batches  BatchStore
	versions VersionStore
	clinics  ClinicStore
}

func NewReviewGate(batches BatchStore, versions VersionStore, clinics ClinicStore) *ReviewGate {
	return &ReviewGate{
		batches:  batches,
		versions: versions,
		clinics:  clinics,
	}
}

// Approve transitions a pending version to approved
func (g *ReviewGate) Approve(ctx context.Context, versionID primitive.ObjectID) (*model.ContentVersion, error) {
	return g.moderate(ctx, versionID, model.VersionApproved)
}

// Reject transitions a pending version to rejected
func (g *ReviewGate) Reject(ctx context.Context, versionID primitive.ObjectID) (*model.ContentVersion, error) {
	return g.moderate(ctx, versionID, model.VersionRejected)
}

func (g *ReviewGate) moderate(ctx context.Context, versionID primitive.ObjectID, to model.VersionStatus) (*model.ContentVersion, error) {
	version, err := g.versions.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if err := g.versions.TransitionVersion(ctx, versionID, model.VersionPending, to); err != nil {
		return nil, err
	}
	version.Status = to

	approved, rejected := 0, 0
	if to == model.VersionApproved {
		approved = 1
	} else {
		rejected = 1
	}
	// Counter drift here is cosmetic; the version document is the source
	// of truth and GET recomputes counts by aggregation.
	if err := g.batches.IncrementReviewCounts(ctx, version.BatchID, -1, approved, rejected); err != nil {
		log.Warn().
			Err(err).
			Str("batchId", version.BatchID.Hex()).
			Str("versionId", versionID.Hex()).
			Msg("Failed to update batch review counters")
	}

	log.Info().
		Str("versionId", versionID.Hex()).
		Str("batchId", version.BatchID.Hex()).
		Str("status", string(to)).
		Msg("Version reviewed")

	return version, nil
}

// Apply writes an approved version's generated content into the live
// clinic record and transitions the version to applied.
//
// The version transition happens first: the store's guarded update plus
// the unique applied index settle the race, so two callers applying
// versions for the same target see exactly one success and one
// ErrConflict. The pre-apply value was snapshotted at generation time and
// is never re-captured here.
func (g *ReviewGate) Apply(ctx context.Context, versionID primitive.ObjectID) (*model.ContentVersion, error) {
	version, err := g.versions.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if err := g.versions.TransitionVersion(ctx, versionID, model.VersionApproved, model.VersionApplied); err != nil {
		return nil, err
	}

	if err := g.clinics.SetClinicDescription(ctx, version.TargetID, version.GeneratedContent, true); err != nil {
		// Compensate so the version is not stranded in applied while the
		// live record still holds the old content.
		if revErr := g.versions.TransitionVersion(ctx, versionID, model.VersionApplied, model.VersionApproved); revErr != nil {
			log.Error().
				Err(revErr).
				Str("versionId", versionID.Hex()).
				Msg("Failed to revert version status after apply failure")
		}
		return nil, fmt.Errorf("writing content to clinic %s: %w", version.TargetID.Hex(), err)
	}

	version.Status = model.VersionApplied

	log.Info().
		Str("versionId", versionID.Hex()).
		Str("batchId", version.BatchID.Hex()).
		Str("clinicId", version.TargetID.Hex()).
		Msg("Version applied to live content")

	return version, nil
}
