package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BatchDatabase is the durable batch store. It is the only component
// allowed to mutate BatchJob/BatchItem state; everything the batch
// service and controller see is a snapshot read back from here.
type BatchDatabase interface {
	// Create a batch with its full item set in one write
	CreateBatch(ctx context.Context, batch *model.BatchJob) error

	// Get a batch snapshot by ID, items included
	GetBatchByID(ctx context.Context, id string) (*model.BatchJob, error)

	// List batches newest first
	ListBatches(ctx context.Context, limit, offset int) ([]*model.BatchJob, error)

	// Move an item from queued to processing. Returns false without error
	// when the item is not claimable (already terminal or in flight).
	ClaimItem(ctx context.Context, batchID, externalID string) (bool, error)

	// Move an item back from processing to queued after an interrupted claim
	ReleaseItem(ctx context.Context, batchID, externalID string) error

	// Record an item's terminal outcome and bump exactly one action counter
	CompleteItem(ctx context.Context, batchID, externalID string, action model.ItemAction, status model.ItemStatus, details model.ImportDetails) error

	// Terminal batch transitions
	MarkBatchCompleted(ctx context.Context, batchID string) error
	MarkBatchFailed(ctx context.Context, batchID, errorMsg string) error

	// Return a failed batch to running so its queued items can be driven
	// again. Only matches while the batch is failed.
	ReopenBatch(ctx context.Context, batchID string) error
}

// ErrBatchNotFound is returned when a batch ID resolves to nothing
var ErrBatchNotFound = errors.New("batch not found")

// CreateBatch inserts a new batch document with all items embedded
func (m *mongoDB) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	if batch.ID.IsZero() {
		batch.ID = primitive.NewObjectID()
	}

	now := time.Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	batch.Status = model.BatchRunning

	if batch.Items == nil {
		batch.Items = []model.BatchItem{}
	}
	if batch.ErrorList == nil {
		batch.ErrorList = []string{}
	}

	_, err := m.batchesCol.InsertOne(ctx, batch)
	if err != nil {
		log.Error().Err(err).Str("batchID", batch.ID.Hex()).Msg("Failed to create batch")
		return err
	}

	log.Debug().Str("batchID", batch.ID.Hex()).Int("totalActivities", batch.TotalActivities).Msg("Created new batch")
	return nil
}

// GetBatchByID retrieves a batch by its ID
func (m *mongoDB) GetBatchByID(ctx context.Context, id string) (*model.BatchJob, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var batch model.BatchJob
	err = m.batchesCol.FindOne(ctx, bson.M{"_id": objectID}).Decode(&batch)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBatchNotFound
		}
		log.Error().Err(err).Str("batchID", id).Msg("Failed to get batch")
		return nil, err
	}

	return &batch, nil
}

// ListBatches retrieves batches sorted by creation date descending
func (m *mongoDB) ListBatches(ctx context.Context, limit, offset int) ([]*model.BatchJob, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := m.batchesCol.Find(ctx, bson.M{}, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list batches")
		return nil, err
	}
	defer cursor.Close(ctx)

	var batches []*model.BatchJob
	if err := cursor.All(ctx, &batches); err != nil {
		log.Error().Err(err).Msg("Failed to decode batches")
		return nil, err
	}

	return batches, nil
}

// ClaimItem flips one queued item to processing. The filter only matches
// while the item is still queued, which is what makes a retried chunk a
// no-op for items another call already took to a terminal state.
func (m *mongoDB) ClaimItem(ctx context.Context, batchID, externalID string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return false, err
	}

	filter := bson.M{
		"_id": objectID,
		"items": bson.M{
			"$elemMatch": bson.M{
				"external_id": externalID,
				"status":      model.ItemQueued,
			},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"items.$.status": model.ItemProcessing,
			"updated_at":     time.Now(),
		},
	}

	result, err := m.batchesCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Str("externalID", externalID).Msg("Failed to claim item")
		return false, err
	}

	return result.ModifiedCount == 1, nil
}

// ReleaseItem reverts an in-flight item to queued so a retried chunk can
// pick it up again
func (m *mongoDB) ReleaseItem(ctx context.Context, batchID, externalID string) error {
	objectID, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id": objectID,
		"items": bson.M{
			"$elemMatch": bson.M{
				"external_id": externalID,
				"status":      model.ItemProcessing,
			},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"items.$.status": model.ItemQueued,
			"updated_at":     time.Now(),
		},
	}

	_, err = m.batchesCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Str("externalID", externalID).Msg("Failed to release item")
		return err
	}

	log.Debug().Str("batchID", batchID).Str("externalID", externalID).Msg("Released item back to queued")
	return nil
}

// CompleteItem writes an item's terminal state and increments the matching
// aggregate counter in the same update, so the counter can never drift from
// the item states it summarizes.
func (m *mongoDB) CompleteItem(ctx context.Context, batchID, externalID string, action model.ItemAction, status model.ItemStatus, details model.ImportDetails) error {
	objectID, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return err
	}

	counter, err := counterField(action)
	if err != nil {
		return err
	}

	now := time.Now()
	filter := bson.M{
		"_id": objectID,
		"items": bson.M{
			"$elemMatch": bson.M{
				"external_id": externalID,
				"status":      model.ItemProcessing,
			},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"items.$.status":         status,
			"items.$.action":         action,
			"items.$.import_details": details,
			"items.$.completed_at":   now,
			"updated_at":             now,
		},
		"$inc": bson.M{counter: 1},
	}

	result, err := m.batchesCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Str("externalID", externalID).Msg("Failed to complete item")
		return err
	}

	if result.ModifiedCount == 0 {
		return fmt.Errorf("item %s not in processing state", externalID)
	}

	log.Debug().
		Str("batchID", batchID).
		Str("externalID", externalID).
		Str("action", string(action)).
		Str("status", string(status)).
		Msg("Completed item")
	return nil
}

// MarkBatchCompleted records the terminal completed state once every item
// has been accounted for
func (m *mongoDB) MarkBatchCompleted(ctx context.Context, batchID string) error {
	return m.markBatchTerminal(ctx, batchID, model.BatchCompleted, "")
}

// MarkBatchFailed records the terminal failed state after the controller
// aborts a run
func (m *mongoDB) MarkBatchFailed(ctx context.Context, batchID, errorMsg string) error {
	return m.markBatchTerminal(ctx, batchID, model.BatchFailed, errorMsg)
}

func (m *mongoDB) markBatchTerminal(ctx context.Context, batchID string, status model.BatchStatus, errorMsg string) error {
	objectID, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return err
	}

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":       status,
			"completed_at": now,
			"updated_at":   now,
		},
	}
	if errorMsg != "" {
		update["$push"] = bson.M{"error_list": errorMsg}
	}

	// Terminal transitions happen exactly once
	filter := bson.M{"_id": objectID, "status": model.BatchRunning}

	result, err := m.batchesCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Str("status", string(status)).Msg("Failed to update batch status")
		return err
	}

	if result.MatchedCount == 0 {
		log.Debug().Str("batchID", batchID).Str("status", string(status)).Msg("Batch already terminal, leaving as is")
		return nil
	}

	log.Debug().Str("batchID", batchID).Str("status", string(status)).Msg("Updated batch status")
	return nil
}

// ReopenBatch flips a failed batch back to running. The status filter
// makes concurrent reopens and reopens of completed batches no-ops that
// surface as an error.
func (m *mongoDB) ReopenBatch(ctx context.Context, batchID string) error {
	objectID, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": objectID, "status": model.BatchFailed}
	update := bson.M{
		"$set":   bson.M{"status": model.BatchRunning, "updated_at": time.Now()},
		"$unset": bson.M{"completed_at": ""},
	}

	result, err := m.batchesCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Msg("Failed to reopen batch")
		return err
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("batch %s is not in failed state", batchID)
	}

	log.Info().Str("batchID", batchID).Msg("Reopened failed batch")
	return nil
}

func counterField(action model.ItemAction) (string, error) {
	switch action {
	case model.ActionCreate:
		return "counters.created_count", nil
	case model.ActionUpdate:
		return "counters.updated_count", nil
	case model.ActionSkip:
		return "counters.skipped_count", nil
	case model.ActionFail:
		return "counters.failed_count", nil
	}
	return "", fmt.Errorf("action %q has no counter", action)
}
