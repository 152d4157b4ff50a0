package importer

import (
	"context"
	"testing"
	"time"

	"aidimport/internal/database"
	"aidimport/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeActivityDB is an in-memory activity store keyed by IATI identifier
type fakeActivityDB struct {
	activities map[string]*model.Activity
	inserts    int
	replaces   int
}

func newFakeActivityDB() *fakeActivityDB {
	return &fakeActivityDB{activities: make(map[string]*model.Activity)}
}

func (f *fakeActivityDB) GetActivityByIdentifier(_ context.Context, id string) (*model.Activity, error) {
	activity, ok := f.activities[id]
	if !ok {
		return nil, database.ErrActivityNotFound
	}
	dup := *activity
	return &dup, nil
}

func (f *fakeActivityDB) InsertActivity(_ context.Context, activity *model.Activity) error {
	f.inserts++
	f.activities[activity.IATIIdentifier] = activity
	return nil
}

func (f *fakeActivityDB) ReplaceActivity(_ context.Context, activity *model.Activity) error {
	f.replaces++
	f.activities[activity.IATIIdentifier] = activity
	return nil
}

func (f *fakeActivityDB) CountActivitiesByOrg(_ context.Context, orgRef string) (int64, error) {
	var n int64
	for _, a := range f.activities {
		if a.ReportingOrg == orgRef {
			n++
		}
	}
	return n, nil
}

func validRecord() model.ActivityRecord {
	return model.ActivityRecord{
		IATIIdentifier: "XM-DAC-41114-OUTPUT-1",
		Title:          "Rural water supply",
		ReportingOrg:   "XM-DAC-41114",
		Transactions: []model.Transaction{
			{Type: "3", Date: "2024-03-01", Value: 15000, Currency: "USD"},
			{Type: "4", Date: "2024-06-01", Value: 5000, Currency: "USD"},
		},
		Sectors: []model.Sector{{Code: "14030", Percentage: 100}},
	}
}

func TestImportCreatesNewActivity(t *testing.T) {
	db := newFakeActivityDB()
	w := New(db)

	outcome, err := w.Import(context.Background(), validRecord(), model.ImportRules{}, model.BatchMeta{Source: "datastore"})
	require.NoError(t, err)

	assert.Equal(t, model.ActionCreate, outcome.Action)
	assert.Equal(t, 2, outcome.Expected.Transactions)
	assert.Equal(t, 2, outcome.Imported.Transactions)
	assert.Equal(t, 1, outcome.Imported.Sectors)
	assert.Equal(t, 1, db.inserts)

	stored := db.activities["XM-DAC-41114-OUTPUT-1"]
	require.NotNil(t, stored)
	assert.Equal(t, "datastore", stored.Source)
	assert.NotEmpty(t, stored.ContentHash)
}

func TestImportUpdatesExistingActivity(t *testing.T) {
	db := newFakeActivityDB()
	w := New(db)

	record := validRecord()
	_, err := w.Import(context.Background(), record, model.ImportRules{OnExisting: model.OnExistingUpdate}, model.BatchMeta{})
	require.NoError(t, err)
	firstImportedAt := db.activities[record.IATIIdentifier].ImportedAt

	record.Title = "Rural water supply phase II"
	outcome, err := w.Import(context.Background(), record, model.ImportRules{OnExisting: model.OnExistingUpdate}, model.BatchMeta{})
	require.NoError(t, err)

	assert.Equal(t, model.ActionUpdate, outcome.Action)
	assert.Equal(t, 1, db.replaces)
	assert.Equal(t, "Rural water supply phase II", db.activities[record.IATIIdentifier].Title)
	// The original import timestamp survives updates
	assert.True(t, db.activities[record.IATIIdentifier].ImportedAt.Equal(firstImportedAt))
	assert.True(t, db.activities[record.IATIIdentifier].UpdatedAt.After(time.Time{}))
}

func TestImportSkipsExistingWhenRuleSaysSkip(t *testing.T) {
	db := newFakeActivityDB()
	w := New(db)

	record := validRecord()
	_, err := w.Import(context.Background(), record, model.ImportRules{}, model.BatchMeta{})
	require.NoError(t, err)

	record.Title = "A different title"
	outcome, err := w.Import(context.Background(), record, model.ImportRules{OnExisting: model.OnExistingSkip}, model.BatchMeta{})
	require.NoError(t, err)

	assert.Equal(t, model.ActionSkip, outcome.Action)
	assert.Zero(t, outcome.Imported.Total())
	assert.Zero(t, db.replaces)
}

func TestImportSkipsUnchangedContent(t *testing.T) {
	db := newFakeActivityDB()
	w := New(db)

	rules := model.ImportRules{OnExisting: model.OnExistingUpdate, SkipUnchanged: true}

	_, err := w.Import(context.Background(), validRecord(), rules, model.BatchMeta{})
	require.NoError(t, err)

	outcome, err := w.Import(context.Background(), validRecord(), rules, model.BatchMeta{})
	require.NoError(t, err)
	assert.Equal(t, model.ActionSkip, outcome.Action)
	assert.Zero(t, db.replaces)

	// Any content change defeats the hash match
	changed := validRecord()
	changed.Transactions[0].Value = 16000
	outcome, err = w.Import(context.Background(), changed, rules, model.BatchMeta{})
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdate, outcome.Action)
	assert.Equal(t, 1, db.replaces)
}

func TestImportDropsInvalidSubRecords(t *testing.T) {
	db := newFakeActivityDB()
	w := New(db)

	record := validRecord()
	record.Transactions = append(record.Transactions, model.Transaction{Type: "3"}) // no date, no value
	record.Sectors = append(record.Sectors, model.Sector{Name: "uncoded"})          // no code
	record.Documents = []model.Document{{Title: "annex"}}                           // no URL

	outcome, err := w.Import(context.Background(), record, model.ImportRules{}, model.BatchMeta{})
	require.NoError(t, err)

	// Partial success: the record lands, the bad sub-records do not
	assert.Equal(t, model.ActionCreate, outcome.Action)
	assert.Equal(t, 3, outcome.Expected.Transactions)
	assert.Equal(t, 2, outcome.Imported.Transactions)
	assert.Equal(t, 2, outcome.Expected.Sectors)
	assert.Equal(t, 1, outcome.Imported.Sectors)
	assert.Equal(t, 1, outcome.Expected.Documents)
	assert.Equal(t, 0, outcome.Imported.Documents)

	details := model.ImportDetails{Expected: outcome.Expected, Imported: outcome.Imported}
	assert.True(t, details.Partial())

	stored := db.activities[record.IATIIdentifier]
	assert.Len(t, stored.Transactions, 2)
	assert.Len(t, stored.Sectors, 1)
	assert.Empty(t, stored.Documents)
}

func TestImportRejectsRecordWithoutIdentifier(t *testing.T) {
	w := New(newFakeActivityDB())

	record := validRecord()
	record.IATIIdentifier = ""

	outcome, err := w.Import(context.Background(), record, model.ImportRules{}, model.BatchMeta{})
	require.Error(t, err)
	assert.Equal(t, model.ActionFail, outcome.Action)
	assert.Equal(t, 2, outcome.Expected.Transactions)
}

func TestImportRejectsRecordWithoutTitle(t *testing.T) {
	db := newFakeActivityDB()
	w := New(db)

	record := validRecord()
	record.Title = ""

	_, err := w.Import(context.Background(), record, model.ImportRules{}, model.BatchMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no title")
	assert.Zero(t, db.inserts)
}
