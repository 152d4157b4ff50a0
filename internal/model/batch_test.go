package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStatusTerminal(t *testing.T) {
	assert.False(t, ItemQueued.Terminal())
	assert.False(t, ItemProcessing.Terminal())
	assert.True(t, ItemCompleted.Terminal())
	assert.True(t, ItemFailed.Terminal())
	assert.True(t, ItemSkipped.Terminal())
}

func TestImportCountsTotal(t *testing.T) {
	counts := ImportCounts{
		Transactions:       3,
		Budgets:            2,
		Sectors:            1,
		Locations:          1,
		Contacts:           1,
		Documents:          2,
		PolicyMarkers:      1,
		HumanitarianScopes: 1,
		Tags:               2,
	}
	assert.Equal(t, 14, counts.Total())
	assert.Equal(t, 0, ImportCounts{}.Total())
}

func TestImportDetailsPartial(t *testing.T) {
	details := ImportDetails{
		Expected: ImportCounts{Transactions: 5},
		Imported: ImportCounts{Transactions: 3},
	}
	assert.True(t, details.Partial())

	details.Imported = details.Expected
	assert.False(t, details.Partial())
}

func TestBatchCountersTerminal(t *testing.T) {
	counters := BatchCounters{Created: 2, Updated: 1, Skipped: 3, Failed: 1}
	assert.Equal(t, 7, counters.Terminal())
}

func TestBatchJobAllTerminal(t *testing.T) {
	job := &BatchJob{
		TotalActivities: 3,
		Counters:        BatchCounters{Created: 1, Skipped: 1},
	}
	assert.False(t, job.AllTerminal())

	job.Counters.Failed = 1
	assert.True(t, job.AllTerminal())
	assert.True(t, job.HasFailedItems())
}

func TestBatchJobItem(t *testing.T) {
	job := &BatchJob{
		Items: []BatchItem{
			{ExternalID: "XM-DAC-1"},
			{ExternalID: "XM-DAC-2"},
		},
	}

	item := job.Item("XM-DAC-2")
	assert.NotNil(t, item)
	assert.Equal(t, "XM-DAC-2", item.ExternalID)
	assert.Nil(t, job.Item("XM-DAC-3"))
}

func TestQueuedIdentifiers(t *testing.T) {
	job := &BatchJob{
		Items: []BatchItem{
			{ExternalID: "a", Status: ItemCompleted},
			{ExternalID: "b", Status: ItemQueued},
			{ExternalID: "c", Status: ItemProcessing},
			{ExternalID: "d", Status: ItemQueued},
		},
	}

	assert.Equal(t, []string{"b", "d"}, job.QueuedIdentifiers())
}
