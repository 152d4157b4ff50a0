package controller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"aidimport/internal/batch"
	"aidimport/internal/config"
	"aidimport/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Observer consumes progress from an import run. Implementations are
// purely passive; the run never waits on them.
type Observer interface {
	// BatchCreated fires once, right after the initial status read, so a
	// consumer has the full item list and total before any work happens
	BatchCreated(job *model.BatchJob)

	// Progress fires with a fresh snapshot after every chunk
	Progress(job *model.BatchJob)

	// Finished fires exactly once with the final verdict
	Finished(result RunResult)
}

// NopObserver discards all callbacks
type NopObserver struct{}

func (NopObserver) BatchCreated(*model.BatchJob) {}
func (NopObserver) Progress(*model.BatchJob)     {}
func (NopObserver) Finished(RunResult)           {}

// RunResult is the final report of one import run
type RunResult struct {
	RunID           string          `json:"run_id"`
	BatchID         string          `json:"batch_id"`
	Success         bool            `json:"success"`
	Job             *model.BatchJob `json:"job,omitempty"`
	ChunksTotal     int             `json:"chunks_total"`
	ChunksSucceeded int             `json:"chunks_succeeded"`
	FailedChunk     int             `json:"failed_chunk,omitempty"` // 1-based, 0 when no chunk failed
	Message         string          `json:"message,omitempty"`
}

// ImportRun is the orchestrator for one batch import. It splits the
// selection into fixed-size chunks, submits them sequentially, retries a
// failed chunk once after a fixed delay, polls status after each chunk,
// and reports the final outcome to the observer.
//
// A run is single-use: construct one per batch and discard it. Chunks are
// never submitted concurrently; that is the backpressure mechanism that
// bounds load on the import worker.
type ImportRun struct {
	svc batch.Service
	obs Observer
	cfg config.BatchConfig

	runID  string
	used   atomic.Bool
	cursor int

	// injectable for tests
	sleep func(time.Duration)
}

// NewRun creates a single-use import run
func NewRun(svc batch.Service, obs Observer, cfg config.BatchConfig) *ImportRun {
	if obs == nil {
		obs = NopObserver{}
	}
	return &ImportRun{
		svc:   svc,
		obs:   obs,
		cfg:   cfg,
		runID: uuid.NewString(),
		sleep: time.Sleep,
	}
}

// RunID returns the run's single-use token
func (r *ImportRun) RunID() string {
	return r.runID
}

// Run creates a fresh batch for the selection and drives it to a terminal
// state. The returned error covers setup failures only; once chunks start
// flowing, the outcome is carried in RunResult.
func (r *ImportRun) Run(ctx context.Context, input batch.CreateBatchInput) (RunResult, error) {
	if !r.used.CompareAndSwap(false, true) {
		return RunResult{}, fmt.Errorf("run %s already used", r.runID)
	}

	input.Selected = batch.DedupeSelection(input.Selected)

	job, err := r.svc.CreateBatch(ctx, input)
	if err != nil {
		return RunResult{}, err
	}
	batchID := job.ID.Hex()

	// Initial read so the observer sees an accurate total and item list
	// before the first chunk lands
	snapshot, err := r.svc.GetStatus(ctx, batchID)
	if err != nil {
		return RunResult{}, fmt.Errorf("initial status read for batch %s: %w", batchID, err)
	}
	r.obs.BatchCreated(snapshot)

	records := orderSelection(input.Candidates, input.Selected)

	log.Info().
		Str("runID", r.runID).
		Str("batchID", batchID).
		Int("selected", len(records)).
		Int("chunkSize", r.cfg.ChunkSize).
		Msg("Starting import run")

	return r.drive(ctx, batchID, records, input.Rules, input.Meta), nil
}

// Resume picks up a stalled batch: items still queued are re-chunked from
// the supplied records and driven to a terminal state. Rules and meta come
// from the batch itself.
func (r *ImportRun) Resume(ctx context.Context, batchID string, records []model.ActivityRecord) (RunResult, error) {
	if !r.used.CompareAndSwap(false, true) {
		return RunResult{}, fmt.Errorf("run %s already used", r.runID)
	}

	job, err := r.svc.GetStatus(ctx, batchID)
	if err != nil {
		return RunResult{}, err
	}
	r.obs.BatchCreated(job)

	queued := job.QueuedIdentifiers()
	if len(queued) == 0 {
		// Nothing left to drive; report the batch as it stands
		result := r.finalize(ctx, batchID, RunResult{
			RunID:   r.runID,
			BatchID: batchID,
		})
		return result, nil
	}

	remaining := orderSelection(records, queued)
	if len(remaining) != len(queued) {
		return RunResult{}, fmt.Errorf("resume of batch %s: %d queued items but %d records supplied", batchID, len(queued), len(remaining))
	}

	log.Info().
		Str("runID", r.runID).
		Str("batchID", batchID).
		Int("remaining", len(remaining)).
		Msg("Resuming import run")

	return r.drive(ctx, batchID, remaining, job.Rules, job.Meta), nil
}

// drive is the sequential chunk loop shared by Run and Resume
func (r *ImportRun) drive(ctx context.Context, batchID string, records []model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta) RunResult {
	chunks := batch.SplitIntoChunks(records, r.cfg.ChunkSize)

	result := RunResult{
		RunID:       r.runID,
		BatchID:     batchID,
		ChunksTotal: len(chunks),
	}

	for i, chunk := range chunks {
		r.cursor = i

		chunkResult, err := r.submitWithRetry(ctx, batchID, chunk, rules, meta, i)
		if err != nil {
			// Retries exhausted: stop submitting, record the abort, and
			// report how far we got so the caller can judge a re-run
			msg := fmt.Sprintf("chunk %d of %d failed after %d retries (%d chunks succeeded): %v",
				i+1, len(chunks), r.cfg.ChunkRetries, i, err)
			if abortErr := r.svc.AbortBatch(ctx, batchID, msg); abortErr != nil {
				log.Error().Err(abortErr).Str("batchID", batchID).Msg("Failed to record batch abort")
			}

			result.FailedChunk = i + 1
			result.ChunksSucceeded = i
			result.Message = msg
			return r.finalize(ctx, batchID, result)
		}

		result.ChunksSucceeded = i + 1

		// Refresh the cached view even when the chunk already reported
		// completion; the observer gets authoritative counts
		snapshot, err := r.svc.GetStatus(ctx, batchID)
		if err != nil {
			log.Warn().Err(err).Str("batchID", batchID).Int("chunk", i+1).Msg("Status poll failed after chunk")
		} else {
			r.obs.Progress(snapshot)
			if snapshot.AllTerminal() {
				// Remaining chunks would be redundant no-ops
				log.Info().Str("batchID", batchID).Int("chunk", i+1).Msg("All items terminal, stopping early")
				break
			}
		}

		if chunkResult.BatchComplete {
			break
		}
	}

	return r.finalize(ctx, batchID, result)
}

// submitWithRetry submits one chunk, retrying the configured number of
// times after a fixed delay. Only call-level failures reach here; a
// per-record import failure is already absorbed inside the service.
func (r *ImportRun) submitWithRetry(ctx context.Context, batchID string, chunk []model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta, index int) (batch.ChunkResult, error) {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.ChunkRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Str("batchID", batchID).
				Int("chunk", index+1).
				Int("attempt", attempt+1).
				Dur("delay", r.cfg.RetryDelay()).
				Msg("Retrying chunk")
			r.sleep(r.cfg.RetryDelay())
		}

		chunkResult, err := r.svc.ProcessChunk(ctx, batchID, chunk, rules, meta)
		if err == nil {
			return chunkResult, nil
		}
		lastErr = err

		log.Error().Err(err).
			Str("batchID", batchID).
			Int("chunk", index+1).
			Int("attempt", attempt+1).
			Msg("Chunk submission failed")
	}

	return batch.ChunkResult{}, lastErr
}

// finalize takes the authoritative closing snapshot, derives the verdict,
// and notifies the observer
func (r *ImportRun) finalize(ctx context.Context, batchID string, result RunResult) RunResult {
	job, err := r.svc.GetStatus(ctx, batchID)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Msg("Final status read failed")
		if result.Message == "" {
			result.Message = fmt.Sprintf("final status read failed: %v", err)
		}
		r.obs.Finished(result)
		return result
	}

	result.Job = job
	result.Success = job.Status == model.BatchCompleted && !job.HasFailedItems()

	log.Info().
		Str("runID", r.runID).
		Str("batchID", batchID).
		Bool("success", result.Success).
		Int("created", job.Counters.Created).
		Int("updated", job.Counters.Updated).
		Int("skipped", job.Counters.Skipped).
		Int("failed", job.Counters.Failed).
		Msg("Import run finished")

	r.obs.Finished(result)
	return result
}

// orderSelection maps the selected identifiers onto their records,
// preserving selection order. Identifiers with no matching record are
// dropped; the service rejects them anyway.
func orderSelection(records []model.ActivityRecord, selected []string) []model.ActivityRecord {
	byID := make(map[string]*model.ActivityRecord, len(records))
	for i := range records {
		byID[records[i].IATIIdentifier] = &records[i]
	}

	ordered := make([]model.ActivityRecord, 0, len(selected))
	for _, id := range selected {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, *rec)
		}
	}
	return ordered
}
