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

// ClinicDatabase defines clinic-related database operations
type ClinicDatabase interface {
	// Get a clinic by ID
	GetClinic(ctx context.Context, id primitive.ObjectID) (*model.Clinic, error)

	// List clinics matching the filter
	ListClinics(ctx context.Context, filter model.ClinicFilter, limit, offset int) ([]model.Clinic, error)

	// Resolve the ordered id set a batch will operate on
	ListEligibleClinicIDs(ctx context.Context, filter model.ClinicFilter, limit int) ([]primitive.ObjectID, error)

	// Overwrite a clinic's description, marking or clearing the
	// optimization timestamp
	SetClinicDescription(ctx context.Context, id primitive.ObjectID, description string, optimized bool) error
}

// GetClinic retrieves a clinic by its ID
func (m *mongoDB) GetClinic(ctx context.Context, id primitive.ObjectID) (*model.Clinic, error) {
	var clinic model.Clinic
	err := m.clinicsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&clinic)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		log.Error().Err(err).Str("clinicID", id.Hex()).Msg("Failed to get clinic")
		return nil, err
	}

	return &clinic, nil
}

func clinicFilterQuery(filter model.ClinicFilter) bson.M {
	query := bson.M{}
	if filter.City != "" {
		query["city"] = filter.City
	}
	if filter.Specialty != "" {
		query["specialty"] = filter.Specialty
	}
	if !filter.IncludeOptimized {
		query["optimized_at"] = bson.M{"$exists": false}
	}
	return query
}

// ListClinics retrieves clinics matching the filter, oldest first
func (m *mongoDB) ListClinics(ctx context.Context, filter model.ClinicFilter, limit, offset int) ([]model.Clinic, error) {
	opts := options.Find().
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.clinicsCol.Find(ctx, clinicFilterQuery(filter), opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list clinics")
		return nil, err
	}
	defer cursor.Close(ctx)

	var clinics []model.Clinic
	if err := cursor.All(ctx, &clinics); err != nil {
		log.Error().Err(err).Msg("Failed to decode clinics")
		return nil, err
	}

	return clinics, nil
}

// ListEligibleClinicIDs resolves the ids of clinics matching the filter,
// oldest first, capped at limit. The stable sort keeps the target set
// deterministic for the batch snapshot.
func (m *mongoDB) ListEligibleClinicIDs(ctx context.Context, filter model.ClinicFilter, limit int) ([]primitive.ObjectID, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": 1}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.clinicsCol.Find(ctx, clinicFilterQuery(filter), opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve eligible clinics")
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		log.Error().Err(err).Msg("Failed to decode eligible clinic ids")
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	return ids, nil
}

// SetClinicDescription overwrites a clinic's description. With optimized
// true the optimization timestamp is set; with false it is cleared, which
// makes the clinic eligible for future batches again.
func (m *mongoDB) SetClinicDescription(ctx context.Context, id primitive.ObjectID, description string, optimized bool) error {
	now := time.Now()

	update := bson.M{
		"$set": bson.M{
			"description": description,
			"updated_at":  now,
		},
	}
	if optimized {
		update["$set"].(bson.M)["optimized_at"] = now
	} else {
		update["$unset"] = bson.M{"optimized_at": ""}
	}

	result, err := m.clinicsCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("clinicID", id.Hex()).Msg("Failed to update clinic description")
		return err
	}
	if result.MatchedCount == 0 {
		return model.ErrNotFound
	}

	log.Debug().Str("clinicID", id.Hex()).Bool("optimized", optimized).Msg("Updated clinic description")
	return nil
}
