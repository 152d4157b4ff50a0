package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"aidimport/internal/batch"
	"aidimport/internal/config"
	"aidimport/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeService scripts the batch service for the orchestration loop:
// submissions can be made to fail by invocation number, and item state
// moves the way the real store would so status polls stay truthful.
type fakeService struct {
	job *model.BatchJob

	chunkCalls [][]string   // identifiers submitted, one slice per ProcessChunk call
	failOn     map[int]bool // 1-based ProcessChunk invocation numbers that fail
	calls      int

	completeAllOnFirstCall bool // simulates a second driver finishing the rest
	abortReasons           []string
}

func newFakeService() *fakeService {
	return &fakeService{failOn: make(map[int]bool)}
}

func (f *fakeService) CreateBatch(_ context.Context, input batch.CreateBatchInput) (*model.BatchJob, error) {
	if len(input.Selected) == 0 {
		return nil, batch.ErrEmptySelection
	}

	items := make([]model.BatchItem, 0, len(input.Selected))
	for _, id := range input.Selected {
		items = append(items, model.BatchItem{ExternalID: id, Action: model.ActionPending, Status: model.ItemQueued})
	}
	f.job = &model.BatchJob{
		ID:              primitive.NewObjectID(),
		TotalActivities: len(items),
		Status:          model.BatchRunning,
		Items:           items,
		Rules:           input.Rules,
		Meta:            input.Meta,
	}
	return f.snapshot(), nil
}

func (f *fakeService) ProcessChunk(_ context.Context, _ string, records []model.ActivityRecord, _ model.ImportRules, _ model.BatchMeta) (batch.ChunkResult, error) {
	f.calls++

	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].IATIIdentifier)
	}
	f.chunkCalls = append(f.chunkCalls, ids)

	if f.failOn[f.calls] {
		return batch.ChunkResult{}, errors.New("datastore timeout")
	}

	for _, id := range ids {
		f.completeItem(id)
	}
	if f.completeAllOnFirstCall {
		for i := range f.job.Items {
			f.completeItem(f.job.Items[i].ExternalID)
		}
	}

	complete := f.job.AllTerminal()
	if complete && f.job.Status == model.BatchRunning {
		f.job.Status = model.BatchCompleted
	}
	return batch.ChunkResult{BatchComplete: complete}, nil
}

func (f *fakeService) completeItem(externalID string) {
	item := f.job.Item(externalID)
	if item == nil || item.Status.Terminal() {
		return
	}
	item.Action = model.ActionCreate
	item.Status = model.ItemCompleted
	f.job.Counters.Created++
}

func (f *fakeService) GetStatus(_ context.Context, batchID string) (*model.BatchJob, error) {
	if f.job == nil || f.job.ID.Hex() != batchID {
		return nil, fmt.Errorf("batch not found")
	}
	return f.snapshot(), nil
}

func (f *fakeService) AbortBatch(_ context.Context, _ string, reason string) error {
	f.abortReasons = append(f.abortReasons, reason)
	if f.job.Status == model.BatchRunning {
		f.job.Status = model.BatchFailed
		f.job.ErrorList = append(f.job.ErrorList, reason)
	}
	return nil
}

func (f *fakeService) ReopenBatch(_ context.Context, batchID string) (*model.BatchJob, error) {
	if f.job == nil || f.job.ID.Hex() != batchID {
		return nil, fmt.Errorf("batch not found")
	}
	if f.job.Status != model.BatchFailed || len(f.job.QueuedIdentifiers()) == 0 {
		return nil, batch.ErrBatchNotReopenable
	}
	f.job.Status = model.BatchRunning
	return f.snapshot(), nil
}

func (f *fakeService) ListBatches(_ context.Context, _, _ int) ([]*model.BatchJob, error) {
	return []*model.BatchJob{f.snapshot()}, nil
}

func (f *fakeService) snapshot() *model.BatchJob {
	dup := *f.job
	dup.Items = append([]model.BatchItem(nil), f.job.Items...)
	dup.ErrorList = append([]string(nil), f.job.ErrorList...)
	return &dup
}

// recordingObserver captures the callback sequence
type recordingObserver struct {
	created  int
	progress int
	finished []RunResult
}

func (o *recordingObserver) BatchCreated(*model.BatchJob) { o.created++ }
func (o *recordingObserver) Progress(*model.BatchJob)     { o.progress++ }
func (o *recordingObserver) Finished(r RunResult)         { o.finished = append(o.finished, r) }

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{ChunkSize: 10, ChunkRetries: 1, RetryDelaySeconds: 2}
}

func makeRecords(n int) []model.ActivityRecord {
	out := make([]model.ActivityRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.ActivityRecord{
			IATIIdentifier: fmt.Sprintf("XM-%03d", i),
			Title:          fmt.Sprintf("Activity %d", i),
		})
	}
	return out
}

func makeInput(records []model.ActivityRecord) batch.CreateBatchInput {
	selected := make([]string, 0, len(records))
	for i := range records {
		selected = append(selected, records[i].IATIIdentifier)
	}
	return batch.CreateBatchInput{Candidates: records, Selected: selected}
}

func newTestRun(svc batch.Service, obs Observer) *ImportRun {
	run := NewRun(svc, obs, testBatchConfig())
	run.sleep = func(time.Duration) {}
	return run
}

func TestRunProcessesChunksInOrder(t *testing.T) {
	svc := newFakeService()
	obs := &recordingObserver{}
	run := newTestRun(svc, obs)

	result, err := run.Run(context.Background(), makeInput(makeRecords(25)))
	require.NoError(t, err)

	require.Len(t, svc.chunkCalls, 3)
	assert.Len(t, svc.chunkCalls[0], 10)
	assert.Len(t, svc.chunkCalls[1], 10)
	assert.Len(t, svc.chunkCalls[2], 5)
	assert.Equal(t, "XM-000", svc.chunkCalls[0][0])
	assert.Equal(t, "XM-010", svc.chunkCalls[1][0])
	assert.Equal(t, "XM-024", svc.chunkCalls[2][4])

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ChunksTotal)
	assert.Equal(t, 3, result.ChunksSucceeded)
	assert.Zero(t, result.FailedChunk)
	assert.Equal(t, 25, result.Job.Counters.Created)

	assert.Equal(t, 1, obs.created)
	assert.GreaterOrEqual(t, obs.progress, 1)
	require.Len(t, obs.finished, 1)
	assert.True(t, obs.finished[0].Success)
}

func TestRunRetriesFailedChunkOnce(t *testing.T) {
	svc := newFakeService()
	svc.failOn[2] = true // chunk 2, first attempt

	var slept []time.Duration
	run := NewRun(svc, nil, testBatchConfig())
	run.sleep = func(d time.Duration) { slept = append(slept, d) }

	result, err := run.Run(context.Background(), makeInput(makeRecords(25)))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ChunksSucceeded)
	// One retry, after the configured delay
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
	assert.Equal(t, 4, svc.calls)
	assert.Empty(t, svc.abortReasons)
}

func TestRunAbortsWhenRetryExhausted(t *testing.T) {
	svc := newFakeService()
	svc.failOn[2] = true // chunk 2, first attempt
	svc.failOn[3] = true // chunk 2, retry

	obs := &recordingObserver{}
	run := newTestRun(svc, obs)

	result, err := run.Run(context.Background(), makeInput(makeRecords(25)))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.FailedChunk)
	assert.Equal(t, 1, result.ChunksSucceeded)
	assert.Equal(t, 3, result.ChunksTotal)
	assert.Contains(t, result.Message, "chunk 2 of 3")

	// No chunk submitted past the aborted one
	assert.Equal(t, 3, svc.calls)
	require.Len(t, svc.abortReasons, 1)
	assert.Equal(t, model.BatchFailed, result.Job.Status)

	require.Len(t, obs.finished, 1)
	assert.False(t, obs.finished[0].Success)
}

func TestRunStopsEarlyWhenAllItemsTerminal(t *testing.T) {
	svc := newFakeService()
	svc.completeAllOnFirstCall = true
	run := newTestRun(svc, nil)

	result, err := run.Run(context.Background(), makeInput(makeRecords(25)))
	require.NoError(t, err)

	// Remaining chunks are skipped once the poll shows nothing left
	assert.Equal(t, 1, svc.calls)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ChunksTotal)
	assert.Equal(t, 1, result.ChunksSucceeded)
}

func TestRunIsSingleUse(t *testing.T) {
	svc := newFakeService()
	run := newTestRun(svc, nil)

	_, err := run.Run(context.Background(), makeInput(makeRecords(5)))
	require.NoError(t, err)

	_, err = run.Run(context.Background(), makeInput(makeRecords(5)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used")
}

func TestRunEmptySelection(t *testing.T) {
	run := newTestRun(newFakeService(), nil)

	_, err := run.Run(context.Background(), batch.CreateBatchInput{})
	assert.ErrorIs(t, err, batch.ErrEmptySelection)
}

func TestResumeDrivesOnlyQueuedItems(t *testing.T) {
	svc := newFakeService()
	records := makeRecords(25)

	// First run dies after chunk 1 (retry also fails)
	svc.failOn[2] = true
	svc.failOn[3] = true
	first := newTestRun(svc, nil)
	result, err := first.Run(context.Background(), makeInput(records))
	require.NoError(t, err)
	require.False(t, result.Success)

	// Reopen the aborted batch the way an operator would before a re-run
	_, err = svc.ReopenBatch(context.Background(), svc.job.ID.Hex())
	require.NoError(t, err)
	svc.chunkCalls = nil

	second := newTestRun(svc, nil)
	resumed, err := second.Resume(context.Background(), svc.job.ID.Hex(), records)
	require.NoError(t, err)

	assert.True(t, resumed.Success)
	assert.Equal(t, 2, resumed.ChunksTotal) // 15 queued items at chunk size 10

	// Only the still-queued identifiers were resubmitted
	for _, chunk := range svc.chunkCalls {
		for _, id := range chunk {
			assert.GreaterOrEqual(t, id, "XM-010")
		}
	}
	assert.Equal(t, 25, resumed.Job.Counters.Created)
}

func TestResumeWithMissingRecords(t *testing.T) {
	svc := newFakeService()
	records := makeRecords(10)

	_, err := svc.CreateBatch(context.Background(), makeInput(records))
	require.NoError(t, err)

	run := newTestRun(svc, nil)
	_, err = run.Resume(context.Background(), svc.job.ID.Hex(), records[:4])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "10 queued items but 4 records supplied")
}

func TestResumeOnTerminalBatch(t *testing.T) {
	svc := newFakeService()
	records := makeRecords(5)

	first := newTestRun(svc, nil)
	result, err := first.Run(context.Background(), makeInput(records))
	require.NoError(t, err)
	require.True(t, result.Success)

	second := newTestRun(svc, nil)
	resumed, err := second.Resume(context.Background(), svc.job.ID.Hex(), nil)
	require.NoError(t, err)

	// Nothing to drive; the verdict reflects the batch as it stands
	assert.True(t, resumed.Success)
	assert.Zero(t, resumed.ChunksTotal)
}
