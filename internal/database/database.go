package database

import (
	"context"
	"time"

	"refinery/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	ClinicDatabase
	BatchDatabase
	VersionDatabase
	TokenDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	clinicsCol  *mongo.Collection
	batchesCol  *mongo.Collection
	versionsCol *mongo.Collection
	tokensCol   *mongo.Collection
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(config.MongoDB.DB)

	tokensCol := db.Collection("api_tokens")
	tokenIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	batchesCol := db.Collection("optimization_batches")
	batchIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
	}

	versionsCol := db.Collection("content_versions")
	versionIndexModels := []mongo.IndexModel{
		{
			// Per-batch listings filtered by status
			Keys:    bson.D{{Key: "batch_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "target_id", Value: 1}},
			Options: options.Index(),
		},
		{
			// At most one applied version per target per batch. Concurrent
			// apply calls racing on the same target settle here: the loser
			// gets a duplicate key error, surfaced as a conflict.
			Keys: bson.D{{Key: "batch_id", Value: 1}, {Key: "target_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "applied"}),
		},
	}

	clinicsCol := db.Collection("clinics")
	clinicIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "city", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "specialty", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "optimized_at", Value: 1}},
			Options: options.Index(),
		},
	}

	if _, err := tokensCol.Indexes().CreateMany(context.Background(), tokenIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "api_tokens").Msg("Error creating indexes")
	}
	if _, err := batchesCol.Indexes().CreateMany(context.Background(), batchIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "optimization_batches").Msg("Error creating indexes")
	}
	if _, err := versionsCol.Indexes().CreateMany(context.Background(), versionIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "content_versions").Msg("Error creating indexes")
	}
	if _, err := clinicsCol.Indexes().CreateMany(context.Background(), clinicIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "clinics").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:      client,
		db:          db,
		clinicsCol:  clinicsCol,
		batchesCol:  batchesCol,
		versionsCol: versionsCol,
		tokensCol:   tokensCol,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}
