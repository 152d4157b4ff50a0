package database

import (
	"context"
	"time"

	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ImportLogDatabase records the audit trail of finished import runs
type ImportLogDatabase interface {
	CreateImportLog(ctx context.Context, entry *model.ImportLog) error
	ListImportLogs(ctx context.Context, limit, offset int) ([]*model.ImportLog, error)
}

func (m *mongoDB) CreateImportLog(ctx context.Context, entry *model.ImportLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.ImportedAt.IsZero() {
		entry.ImportedAt = time.Now()
	}

	_, err := m.importLogsCol.InsertOne(ctx, entry)
	if err != nil {
		log.Error().Err(err).Str("batchID", entry.BatchID).Msg("Failed to create import log")
		return err
	}

	log.Debug().Str("batchID", entry.BatchID).Str("source", entry.Source).Msg("Created import log")
	return nil
}

func (m *mongoDB) ListImportLogs(ctx context.Context, limit, offset int) ([]*model.ImportLog, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"imported_at": -1})

	cursor, err := m.importLogsCol.Find(ctx, bson.M{}, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list import logs")
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []*model.ImportLog
	if err := cursor.All(ctx, &logs); err != nil {
		log.Error().Err(err).Msg("Failed to decode import logs")
		return nil, err
	}

	return logs, nil
}
