package batch

import (
	"context"
	"errors"
	"fmt"

	"aidimport/internal/database"
	"aidimport/internal/importer"
	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
)

// Service owns the batch store. It creates batches, processes record
// chunks through the import worker, and answers status queries. All item
// state transitions flow through here; callers only ever see snapshots.
type Service interface {
	// CreateBatch reserves bookkeeping rows for the selection and returns
	// the new batch. No record-level import work happens here.
	CreateBatch(ctx context.Context, input CreateBatchInput) (*model.BatchJob, error)

	// ProcessChunk imports one chunk of records belonging to an existing
	// batch. Safe to retry: items already terminal are left untouched and
	// the worker is not re-invoked for them.
	ProcessChunk(ctx context.Context, batchID string, records []model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta) (ChunkResult, error)

	// GetStatus returns a read-only snapshot reflecting every previously
	// completed ProcessChunk call
	GetStatus(ctx context.Context, batchID string) (*model.BatchJob, error)

	// AbortBatch marks the batch failed. Called by the controller after
	// exhausting chunk retries; this is the only path to a failed batch.
	AbortBatch(ctx context.Context, batchID, reason string) error

	// ReopenBatch returns an aborted batch to running so its still-queued
	// items can be run again. Completed batches stay closed.
	ReopenBatch(ctx context.Context, batchID string) (*model.BatchJob, error)

	// ListBatches returns recent batches for audit/history views
	ListBatches(ctx context.Context, limit, offset int) ([]*model.BatchJob, error)
}

// CreateBatchInput carries the candidate records, the selected subset of
// identifiers, and the import configuration for one batch
type CreateBatchInput struct {
	Candidates []model.ActivityRecord
	Selected   []string
	Rules      model.ImportRules
	Meta       model.BatchMeta
	TokenID    string
}

// ChunkResult reports whether the batch became fully terminal during the
// call, letting the controller stop without an extra poll
type ChunkResult struct {
	BatchComplete bool `json:"batch_complete"`
}

// ErrEmptySelection is returned when a batch is created with no records selected
var ErrEmptySelection = errors.New("selection is empty")

// ErrBatchNotReopenable is returned when a reopen targets a batch that is
// not failed or has no queued items left to run
var ErrBatchNotReopenable = errors.New("batch cannot be reopened")

type service struct {
	db     database.BatchDatabase
	worker importer.Worker
}

// NewService creates the batch service
func NewService(db database.BatchDatabase, worker importer.Worker) Service {
	return &service{db: db, worker: worker}
}

// CreateBatch validates and deduplicates the selection, then persists one
// batch with a queued item per selected record
func (s *service) CreateBatch(ctx context.Context, input CreateBatchInput) (*model.BatchJob, error) {
	selected := DedupeSelection(input.Selected)
	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}

	byID := make(map[string]*model.ActivityRecord, len(input.Candidates))
	for i := range input.Candidates {
		byID[input.Candidates[i].IATIIdentifier] = &input.Candidates[i]
	}

	items := make([]model.BatchItem, 0, len(selected))
	for _, id := range selected {
		record, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("selected identifier %q not in candidate list", id)
		}
		items = append(items, model.BatchItem{
			ExternalID: id,
			Title:      record.Title,
			Action:     model.ActionPending,
			Status:     model.ItemQueued,
		})
	}

	batch := &model.BatchJob{
		TotalActivities: len(items),
		Status:          model.BatchRunning,
		Items:           items,
		Rules:           input.Rules,
		Meta:            input.Meta,
		TokenID:         input.TokenID,
	}

	if err := s.db.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	log.Info().
		Str("batchID", batch.ID.Hex()).
		Int("totalActivities", batch.TotalActivities).
		Str("source", input.Meta.Source).
		Msg("Batch created")

	return batch, nil
}

// ProcessChunk dispatches each record in the chunk through the import
// worker. A worker error for one record terminates that item as failed and
// the call goes on; only store/transport trouble fails the call itself.
func (s *service) ProcessChunk(ctx context.Context, batchID string, records []model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta) (ChunkResult, error) {
	batch, err := s.db.GetBatchByID(ctx, batchID)
	if err != nil {
		return ChunkResult{}, err
	}

	// A record the batch does not track is a caller bug; reject the call
	// before touching any item
	for i := range records {
		if batch.Item(records[i].IATIIdentifier) == nil {
			return ChunkResult{}, fmt.Errorf("record %q does not belong to batch %s", records[i].IATIIdentifier, batchID)
		}
	}

	for i := range records {
		record := records[i]
		externalID := record.IATIIdentifier

		if err := ctx.Err(); err != nil {
			return ChunkResult{}, err
		}

		item := batch.Item(externalID)
		if item.Status.Terminal() {
			// Idempotent retry: already accounted for, worker not re-invoked
			log.Debug().Str("batchID", batchID).Str("externalID", externalID).Msg("Item already terminal, skipping")
			continue
		}

		claimed, err := s.db.ClaimItem(ctx, batchID, externalID)
		if err != nil {
			return ChunkResult{}, fmt.Errorf("claim item %s: %w", externalID, err)
		}
		if !claimed {
			// Another call owns it or it went terminal since our snapshot
			continue
		}

		if err := s.processItem(ctx, batchID, record, rules, meta); err != nil {
			return ChunkResult{}, err
		}
	}

	// Fresh read so the result reflects work done by this call
	fresh, err := s.db.GetBatchByID(ctx, batchID)
	if err != nil {
		return ChunkResult{}, err
	}

	complete := fresh.AllTerminal()
	if complete && fresh.Status == model.BatchRunning {
		if err := s.db.MarkBatchCompleted(ctx, batchID); err != nil {
			return ChunkResult{}, err
		}
		log.Info().
			Str("batchID", batchID).
			Int("created", fresh.Counters.Created).
			Int("updated", fresh.Counters.Updated).
			Int("skipped", fresh.Counters.Skipped).
			Int("failed", fresh.Counters.Failed).
			Msg("Batch completed")
	}

	return ChunkResult{BatchComplete: complete}, nil
}

// processItem runs the worker for one claimed item and records its
// terminal state. The claim is released if the call dies under us so a
// retried chunk can pick the item up again.
func (s *service) processItem(ctx context.Context, batchID string, record model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta) error {
	externalID := record.IATIIdentifier

	outcome, workerErr := s.worker.Import(ctx, record, rules, meta)

	if ctxErr := ctx.Err(); ctxErr != nil {
		// The call itself is failing, not the record. Revert the claim so
		// the item does not get stuck in processing.
		if relErr := s.db.ReleaseItem(context.WithoutCancel(ctx), batchID, externalID); relErr != nil {
			log.Error().Err(relErr).Str("batchID", batchID).Str("externalID", externalID).Msg("Failed to release item after interrupted chunk")
		}
		return ctxErr
	}

	details := model.ImportDetails{
		Expected: outcome.Expected,
		Imported: outcome.Imported,
	}

	var status model.ItemStatus
	action := outcome.Action
	switch {
	case workerErr != nil:
		action = model.ActionFail
		status = model.ItemFailed
		details.Error = workerErr.Error()
		log.Warn().Err(workerErr).Str("batchID", batchID).Str("externalID", externalID).Msg("Record import failed")
	case action == model.ActionSkip:
		status = model.ItemSkipped
	default:
		status = model.ItemCompleted
	}

	if err := s.db.CompleteItem(ctx, batchID, externalID, action, status, details); err != nil {
		// Store write failed; put the item back so the counters never see it
		if relErr := s.db.ReleaseItem(context.WithoutCancel(ctx), batchID, externalID); relErr != nil {
			log.Error().Err(relErr).Str("batchID", batchID).Str("externalID", externalID).Msg("Failed to release item after store error")
		}
		return fmt.Errorf("complete item %s: %w", externalID, err)
	}

	return nil
}

// GetStatus returns the current batch snapshot, items included
func (s *service) GetStatus(ctx context.Context, batchID string) (*model.BatchJob, error) {
	return s.db.GetBatchByID(ctx, batchID)
}

// AbortBatch records a controller-initiated failure
func (s *service) AbortBatch(ctx context.Context, batchID, reason string) error {
	log.Warn().Str("batchID", batchID).Str("reason", reason).Msg("Aborting batch")
	return s.db.MarkBatchFailed(ctx, batchID, reason)
}

// ReopenBatch validates the target and flips it back to running. Only a
// failed batch with work left qualifies; reopening anything else would
// let an all-terminal batch masquerade as running.
func (s *service) ReopenBatch(ctx context.Context, batchID string) (*model.BatchJob, error) {
	batch, err := s.db.GetBatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.Status != model.BatchFailed {
		return nil, fmt.Errorf("batch %s is %s: %w", batchID, batch.Status, ErrBatchNotReopenable)
	}
	if len(batch.QueuedIdentifiers()) == 0 {
		return nil, fmt.Errorf("batch %s has no queued items: %w", batchID, ErrBatchNotReopenable)
	}

	if err := s.db.ReopenBatch(ctx, batchID); err != nil {
		return nil, err
	}

	log.Info().
		Str("batchID", batchID).
		Int("queuedItems", len(batch.QueuedIdentifiers())).
		Msg("Batch reopened")

	return s.db.GetBatchByID(ctx, batchID)
}

// ListBatches returns recent batches newest first
func (s *service) ListBatches(ctx context.Context, limit, offset int) ([]*model.BatchJob, error) {
	return s.db.ListBatches(ctx, limit, offset)
}
