package engine

import (
	"context"

	"refinery/internal/model"
	"refinery/pkg/genai"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchStore is the slice of persistence the engine needs for batch
// records. Implemented by the mongo database; faked in tests.
type BatchStore interface {
	GetBatchByID(ctx context.Context, id primitive.ObjectID) (*model.OptimizationBatch, error)

	// UpdateBatchLifecycle persists status and lifecycle timestamps
	UpdateBatchLifecycle(ctx context.Context, batch *model.OptimizationBatch) error

	// UpdateBatchProgress persists counters, token totals and the error list
	UpdateBatchProgress(ctx context.Context, batch *model.OptimizationBatch) error

	// IncrementReviewCounts adjusts the pending/approved/rejected counters
	IncrementReviewCounts(ctx context.Context, id primitive.ObjectID, pending, approved, rejected int) error
}

// VersionStore persists immutable content version snapshots
type VersionStore interface {
	InsertVersion(ctx context.Context, version *model.ContentVersion) error
	GetVersionByID(ctx context.Context, id primitive.ObjectID) (*model.ContentVersion, error)

	// TransitionVersion atomically moves a version from one status to
	// another. Returns ErrInvalidState when the version is not in the
	// expected status, ErrConflict when the transition would give the
	// target a second applied version within the batch.
	TransitionVersion(ctx context.Context, id primitive.ObjectID, from, to model.VersionStatus) error

	// ListVersionsByBatch returns versions of a batch, optionally filtered
	// by status (empty = all). A limit of 0 means no limit.
	ListVersionsByBatch(ctx context.Context, batchID primitive.ObjectID, status model.VersionStatus, limit, offset int) ([]model.ContentVersion, error)
}

// ClinicStore reads targets and writes their live content
type ClinicStore interface {
	GetClinic(ctx context.Context, id primitive.ObjectID) (*model.Clinic, error)

	// SetClinicDescription replaces the live description. When optimized is
	// true the clinic is stamped as optimized; false clears the stamp
	// (rollback path).
	SetClinicDescription(ctx context.Context, id primitive.ObjectID, description string, optimized bool) error
}

// Generator is the external generation collaborator
type Generator interface {
	Rewrite(ctx context.Context, req genai.RewriteRequest) (*genai.RewriteResult, error)
}
