package database

import (
	"context"
	"time"

	"aidimport/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	BatchDatabase
	ActivityDatabase
	ImportLogDatabase
	TokenDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	activitiesCol *mongo.Collection
	batchesCol    *mongo.Collection
	importLogsCol *mongo.Collection
	tokensCol     *mongo.Collection
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
	// Create unique indexes on the tokens collection
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	activitiesCol := db.Collection("activities")
	// The IATI identifier is the idempotency key for every import path
	activityIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "iati_identifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "reporting_org", Value: 1}},
			Options: options.Index(),
		},
	}

	batchesCol := db.Collection("batches")
	batchIndexModels := []mongo.IndexModel{
		{
			// Index for status-based queries
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Item lookups by external identifier during chunk processing
			Keys:    bson.D{{Key: "items.external_id", Value: 1}},
			Options: options.Index(),
		},
		{
			// Index for sorting by creation date
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
		{
			// TTL index to retire terminal batches after six months
			Keys:    bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 30 * 6),
		},
	}

	importLogsCol := db.Collection("import_logs")
	importLogIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "imported_at", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err = tokensCol.Indexes().CreateMany(context.Background(), indexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "api_tokens").Msg("Error creating indexes")
	}

	_, err = activitiesCol.Indexes().CreateMany(context.Background(), activityIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "activities").Msg("Error creating indexes")
	}

	_, err = batchesCol.Indexes().CreateMany(context.Background(), batchIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "batches").Msg("Error creating indexes")
	}

	_, err = importLogsCol.Indexes().CreateMany(context.Background(), importLogIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "import_logs").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:        client,
		db:            db,
		activitiesCol: activitiesCol,
		batchesCol:    batchesCol,
		importLogsCol: importLogsCol,
		tokensCol:     tokensCol,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)

	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}
