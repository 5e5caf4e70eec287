package engine

import (
	"context"
	"fmt"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RollbackFailure records one version that could not be rolled back
type RollbackFailure struct {
	VersionID primitive.ObjectID `json:"versionId"`
	TargetID  primitive.ObjectID `json:"targetId"`
	Message   string             `json:"message"`
}

// RollbackOperator reverses a batch: every applied version's target is
// restored from its original content snapshot. Idempotent: a second
// invocation finds no applied versions and rolls back zero.
type RollbackOperator struct {
	versions VersionStore
	clinics  ClinicStore
}

func NewRollbackOperator(versions VersionStore, clinics ClinicStore) *RollbackOperator {
	return &RollbackOperator{versions: versions, clinics: clinics}
}

// RollbackBatch restores original content for all applied versions in the
// batch. Partial-failure tolerant: a failed restoration is collected and
// the remaining versions are still processed. Returns the count rolled
// back and the failures, if any.
func (o *RollbackOperator) RollbackBatch(ctx context.Context, batchID primitive.ObjectID) (int, []RollbackFailure, error) {
	applied, err := o.versions.ListVersionsByBatch(ctx, batchID, model.VersionApplied, 0, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("listing applied versions for batch %s: %w", batchID.Hex(), err)
	}

	rolledBack := 0
	var failures []RollbackFailure

	for _, version := range applied {
		if err := o.rollbackVersion(ctx, &version); err != nil {
			log.Error().
				Err(err).
				Str("batchId", batchID.Hex()).
				Str("versionId", version.ID.Hex()).
				Msg("Failed to roll back version")
			failures = append(failures, RollbackFailure{
				VersionID: version.ID,
				TargetID:  version.TargetID,
				Message:   err.Error(),
			})
			continue
		}
		rolledBack++
	}

	log.Info().
		Str("batchId", batchID.Hex()).
		Int("rolledBack", rolledBack).
		Int("failures", len(failures)).
		Msg("Batch rollback finished")

	return rolledBack, failures, nil
}

func (o *RollbackOperator) rollbackVersion(ctx context.Context, version *model.ContentVersion) error {
	// The snapshot captured at generation time is the sole source of
	// truth; no diffing against the current live value.
	if err := o.clinics.SetClinicDescription(ctx, version.TargetID, version.OriginalContentSnapshot, false); err != nil {
		return fmt.Errorf("restoring clinic content: %w", err)
	}
	if err := o.versions.TransitionVersion(ctx, version.ID, model.VersionApplied, model.VersionRolledBack); err != nil {
		return fmt.Errorf("marking version rolled back: %w", err)
	}
	return nil
}
