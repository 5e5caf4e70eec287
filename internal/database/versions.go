package database

import (
	"context"
	"errors"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VersionDatabase defines content version database operations
type VersionDatabase interface {
	// Insert a new version snapshot
	InsertVersion(ctx context.Context, version *model.ContentVersion) error

	// Get a version by ID
	GetVersionByID(ctx context.Context, id primitive.ObjectID) (*model.ContentVersion, error)

	// Atomically move a version between lifecycle states
	TransitionVersion(ctx context.Context, id primitive.ObjectID, from, to model.VersionStatus) error

	// List versions of a batch, optionally filtered by status
	ListVersionsByBatch(ctx context.Context, batchID primitive.ObjectID, status model.VersionStatus, limit, offset int) ([]model.ContentVersion, error)

	// Aggregate version counts per status for a batch
	CountVersionsByStatus(ctx context.Context, batchID primitive.ObjectID) (model.VersionStatusCounts, error)

	// Delete versions of a batch in a given status (cancel path)
	DeleteVersionsByBatch(ctx context.Context, batchID primitive.ObjectID, status model.VersionStatus) (int64, error)
}

// InsertVersion stores a new content version snapshot
func (m *mongoDB) InsertVersion(ctx context.Context, version *model.ContentVersion) error {
	if version.ID.IsZero() {
		version.ID = primitive.NewObjectID()
	}

	if _, err := m.versionsCol.InsertOne(ctx, version); err != nil {
		log.Error().Err(err).Str("batchID", version.BatchID.Hex()).Str("targetID", version.TargetID.Hex()).Msg("Failed to insert version")
		return err
	}

	log.Debug().
		Str("versionID", version.ID.Hex()).
		Str("batchID", version.BatchID.Hex()).
		Bool("requiresReview", version.RequiresManualReview).
		Msg("Inserted content version")
	return nil
}

// GetVersionByID retrieves a version by its ID
func (m *mongoDB) GetVersionByID(ctx context.Context, id primitive.ObjectID) (*model.ContentVersion, error) {
	var version model.ContentVersion
	err := m.versionsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&version)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		log.Error().Err(err).Str("versionID", id.Hex()).Msg("Failed to get version")
		return nil, err
	}

	return &version, nil
}

// TransitionVersion moves a version from one status to another with a
// guarded update: the filter requires the current status, so an illegal
// transition matches nothing and returns ErrInvalidState. A transition to
// applied that would give the target a second applied version in the same
// batch trips the partial unique index and returns ErrConflict.
func (m *mongoDB) TransitionVersion(ctx context.Context, id primitive.ObjectID, from, to model.VersionStatus) error {
	result, err := m.versionsCol.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			log.Warn().
				Str("versionID", id.Hex()).
				Str("to", string(to)).
				Msg("Version transition lost apply race")
			return model.ErrConflict
		}
		log.Error().Err(err).Str("versionID", id.Hex()).Str("from", string(from)).Str("to", string(to)).Msg("Failed to transition version")
		return err
	}
	if result.MatchedCount == 0 {
		return model.ErrInvalidState
	}

	log.Debug().
		Str("versionID", id.Hex()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Transitioned version")
	return nil
}

// ListVersionsByBatch retrieves versions of a batch, newest first. A
// status of "" lists all; a limit of 0 means no limit.
func (m *mongoDB) ListVersionsByBatch(ctx context.Context, batchID primitive.ObjectID, status model.VersionStatus, limit, offset int) ([]model.ContentVersion, error) {
	filter := bson.M{"batch_id": batchID}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.versionsCol.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID.Hex()).Msg("Failed to list versions")
		return nil, err
	}
	defer cursor.Close(ctx)

	var versions []model.ContentVersion
	if err := cursor.All(ctx, &versions); err != nil {
		log.Error().Err(err).Msg("Failed to decode versions")
		return nil, err
	}

	return versions, nil
}

// CountVersionsByStatus aggregates per-status version counts for a batch
func (m *mongoDB) CountVersionsByStatus(ctx context.Context, batchID primitive.ObjectID) (model.VersionStatusCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"batch_id": batchID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := m.versionsCol.Aggregate(ctx, pipeline)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID.Hex()).Msg("Failed to aggregate version counts")
		return model.VersionStatusCounts{}, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status model.VersionStatus `bson:"_id"`
		Count  int                 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		log.Error().Err(err).Msg("Failed to decode version counts")
		return model.VersionStatusCounts{}, err
	}

	var counts model.VersionStatusCounts
	for _, row := range rows {
		switch row.Status {
		case model.VersionPending:
			counts.Pending = row.Count
		case model.VersionApproved:
			counts.Approved = row.Count
		case model.VersionRejected:
			counts.Rejected = row.Count
		case model.VersionApplied:
			counts.Applied = row.Count
		case model.VersionRolledBack:
			counts.RolledBack = row.Count
		}
	}

	return counts, nil
}

// DeleteVersionsByBatch removes a batch's versions in the given status.
// A status of "" removes all of the batch's versions.
func (m *mongoDB) DeleteVersionsByBatch(ctx context.Context, batchID primitive.ObjectID, status model.VersionStatus) (int64, error) {
	filter := bson.M{"batch_id": batchID}
	if status != "" {
		filter["status"] = status
	}

	result, err := m.versionsCol.DeleteMany(ctx, filter)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID.Hex()).Msg("Failed to delete versions")
		return 0, err
	}

	log.Debug().Str("batchID", batchID.Hex()).Int64("deleted", result.DeletedCount).Msg("Deleted batch versions")
	return result.DeletedCount, nil
}
