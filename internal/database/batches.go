package database

import (
	"context"
	"errors"
	"time"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BatchDatabase defines batch-related database operations
type BatchDatabase interface {
	// Create a new batch
	CreateBatch(ctx context.Context, batch *model.OptimizationBatch) error

	// Get a batch by ID
	GetBatchByID(ctx context.Context, id primitive.ObjectID) (*model.OptimizationBatch, error)

	// List batches, optionally filtered by status
	ListBatches(ctx context.Context, status model.BatchStatus, limit, offset int) ([]*model.OptimizationBatch, error)

	// Persist status and lifecycle timestamps
	UpdateBatchLifecycle(ctx context.Context, batch *model.OptimizationBatch) error

	// Persist counters, token totals and the error list
	UpdateBatchProgress(ctx context.Context, batch *model.OptimizationBatch) error

	// Adjust the review counters
	IncrementReviewCounts(ctx context.Context, id primitive.ObjectID, pending, approved, rejected int) error

	// Delete a batch (cancel path)
	DeleteBatch(ctx context.Context, id primitive.ObjectID) error
}

// CreateBatch creates a new optimization batch in the database
func (m *mongoDB) CreateBatch(ctx context.Context, batch *model.OptimizationBatch) error {
	if batch.ID.IsZero() {
		batch.ID = primitive.NewObjectID()
	}

	now := time.Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	if batch.Errors == nil {
		batch.Errors = []model.BatchError{}
	}

	if _, err := m.batchesCol.InsertOne(ctx, batch); err != nil {
		log.Error().Err(err).Str("batchID", batch.ID.Hex()).Msg("Failed to create batch")
		return err
	}

	log.Debug().
		Str("batchID", batch.ID.Hex()).
		Int("totalClinics", batch.TotalClinics).
		Msg("Created new batch")
	return nil
}

// GetBatchByID retrieves a batch by its ID
func (m *mongoDB) GetBatchByID(ctx context.Context, id primitive.ObjectID) (*model.OptimizationBatch, error) {
	var batch model.OptimizationBatch
	err := m.batchesCol.FindOne(ctx, bson.M{"_id": id}).Decode(&batch)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		log.Error().Err(err).Str("batchID", id.Hex()).Msg("Failed to get batch")
		return nil, err
	}

	return &batch, nil
}

// ListBatches retrieves batches sorted by creation date, newest first
func (m *mongoDB) ListBatches(ctx context.Context, status model.BatchStatus, limit, offset int) ([]*model.OptimizationBatch, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := m.batchesCol.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to list batches")
		return nil, err
	}
	defer cursor.Close(ctx)

	var batches []*model.OptimizationBatch
	if err := cursor.All(ctx, &batches); err != nil {
		log.Error().Err(err).Msg("Failed to decode batches")
		return nil, err
	}

	return batches, nil
}

// UpdateBatchLifecycle persists a batch's status and lifecycle timestamps
func (m *mongoDB) UpdateBatchLifecycle(ctx context.Context, batch *model.OptimizationBatch) error {
	batch.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"status":       batch.Status,
			"started_at":   batch.StartedAt,
			"paused_at":    batch.PausedAt,
			"completed_at": batch.CompletedAt,
			"updated_at":   batch.UpdatedAt,
		},
	}

	result, err := m.batchesCol.UpdateOne(ctx, bson.M{"_id": batch.ID}, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batch.ID.Hex()).Str("status", string(batch.Status)).Msg("Failed to update batch lifecycle")
		return err
	}
	if result.MatchedCount == 0 {
		return model.ErrNotFound
	}

	log.Debug().Str("batchID", batch.ID.Hex()).Str("status", string(batch.Status)).Msg("Updated batch lifecycle")
	return nil
}

// UpdateBatchProgress persists a batch's counters after one item
func (m *mongoDB) UpdateBatchProgress(ctx context.Context, batch *model.OptimizationBatch) error {
	batch.UpdatedAt = time.Now()

	update := bson.M{
		"$set": bson.M{
			"processed_count":      batch.ProcessedCount,
			"success_count":        batch.SuccessCount,
			"error_count":          batch.ErrorCount,
			"skipped_count":        batch.SkippedCount,
			"pending_review_count": batch.PendingReviewCount,
			"total_input_tokens":   batch.TotalInputTokens,
			"total_output_tokens":  batch.TotalOutputTokens,
			"estimated_cost":       batch.EstimatedCost,
			"errors":               batch.Errors,
			"updated_at":           batch.UpdatedAt,
		},
	}

	result, err := m.batchesCol.UpdateOne(ctx, bson.M{"_id": batch.ID}, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batch.ID.Hex()).Int("processed", batch.ProcessedCount).Msg("Failed to update batch progress")
		return err
	}
	if result.MatchedCount == 0 {
		return model.ErrNotFound
	}

	log.Debug().Str("batchID", batch.ID.Hex()).Int("processed", batch.ProcessedCount).Msg("Updated batch progress")
	return nil
}

// IncrementReviewCounts adjusts pending/approved/rejected counters by the
// given deltas
func (m *mongoDB) IncrementReviewCounts(ctx context.Context, id primitive.ObjectID, pending, approved, rejected int) error {
	update := bson.M{
		"$inc": bson.M{
			"pending_review_count": pending,
			"approved_count":       approved,
			"rejected_count":       rejected,
		},
		"$set": bson.M{
			"updated_at": time.Now(),
		},
	}

	result, err := m.batchesCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", id.Hex()).Msg("Failed to update review counters")
		return err
	}
	if result.MatchedCount == 0 {
		return model.ErrNotFound
	}

	return nil
}

// DeleteBatch removes a batch document
func (m *mongoDB) DeleteBatch(ctx context.Context, id primitive.ObjectID) error {
	result, err := m.batchesCol.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("batchID", id.Hex()).Msg("Failed to delete batch")
		return err
	}
	if result.DeletedCount == 0 {
		return model.ErrNotFound
	}

	log.Debug().Str("batchID", id.Hex()).Msg("Deleted batch")
	return nil
}
