package controller

import (
	"context"
	"fmt"

	"refinery/internal/cache"
	"refinery/internal/database"
	"refinery/internal/engine"
	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewController handles version review operations
type ReviewController interface {
	// ListVersions lists a batch's versions, optionally filtered by status
	ListVersions(ctx context.Context, batchID string, status model.VersionStatus, limit, offset int) ([]model.ContentVersion, error)

	// GetVersion retrieves one version
	GetVersion(ctx context.Context, versionID string) (*model.ContentVersion, error)

	// Approve marks a pending version as approved
	Approve(ctx context.Context, versionID string) (*model.ContentVersion, error)

	// Reject marks a pending version as rejected
	Reject(ctx context.Context, versionID string) (*model.ContentVersion, error)

	// Apply writes an approved version to the live clinic record
	Apply(ctx context.Context, versionID string) (*model.ContentVersion, error)
}

type reviewController struct {
	db    database.Database
	cache cache.Cache
	gate  *engine.ReviewGate
}

func NewReview(db database.Database, c cache.Cache) ReviewController {
	return &reviewController{
		db:    db,
		cache: c,
		gate:  engine.NewReviewGate(db, db, db),
	}
}

func (c *reviewController) ListVersions(ctx context.Context, batchID string, status model.VersionStatus, limit, offset int) ([]model.ContentVersion, error) {
	id, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return nil, fmt.Errorf("invalid batch ID format: %w", model.ErrNotFound)
	}

	if _, err := c.db.GetBatchByID(ctx, id); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return c.db.ListVersionsByBatch(ctx, id, status, limit, offset)
}

func (c *reviewController) GetVersion(ctx context.Context, versionID string) (*model.ContentVersion, error) {
	id, err := primitive.ObjectIDFromHex(versionID)
	if err != nil {
		return nil, fmt.Errorf("invalid version ID format: %w", model.ErrNotFound)
	}
	return c.db.GetVersionByID(ctx, id)
}

func (c *reviewController) Approve(ctx context.Context, versionID string) (*model.ContentVersion, error) {
	return c.review(ctx, versionID, c.gate.Approve)
}

func (c *reviewController) Reject(ctx context.Context, versionID string) (*model.ContentVersion, error) {
	return c.review(ctx, versionID, c.gate.Reject)
}

func (c *reviewController) Apply(ctx context.Context, versionID string) (*model.ContentVersion, error) {
	return c.review(ctx, versionID, c.gate.Apply)
}

func (c *reviewController) review(ctx context.Context, versionID string,
	op func(context.Context, primitive.ObjectID) (*model.ContentVersion, error)) (*model.ContentVersion, error) {
	id, err := primitive.ObjectIDFromHex(versionID)
	if err != nil {
		return nil, fmt.Errorf("invalid version ID format: %w", model.ErrNotFound)
	}

	version, err := op(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Delete(ctx, batchCacheKey(version.BatchID.Hex())); err != nil {
		log.Warn().Err(err).Str("batchId", version.BatchID.Hex()).Msg("Failed to invalidate batch cache")
	}

	return version, nil
}
