package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aidimport/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDatastore scripts the datastore side of the search endpoint
type fakeDatastore struct {
	records []model.ActivityRecord
	err     error

	gotOrgRef string
	gotRows   int
}

func (f *fakeDatastore) FetchActivitiesByIdentifiers(_ context.Context, _ []string) ([]model.ActivityRecord, error) {
	return f.records, f.err
}

func (f *fakeDatastore) FetchOrganisationActivities(_ context.Context, orgRef string, rows int) ([]model.ActivityRecord, error) {
	f.gotOrgRef = orgRef
	f.gotRows = rows
	return f.records, f.err
}

func (f *fakeDatastore) Close() {}

// fakeActivityStore answers the local-holdings count behind the search
type fakeActivityStore struct {
	count int64
	err   error
}

func (f *fakeActivityStore) GetActivityByIdentifier(context.Context, string) (*model.Activity, error) {
	return nil, nil
}

func (f *fakeActivityStore) InsertActivity(context.Context, *model.Activity) error { return nil }

func (f *fakeActivityStore) ReplaceActivity(context.Context, *model.Activity) error { return nil }

func (f *fakeActivityStore) CountActivitiesByOrg(context.Context, string) (int64, error) {
	return f.count, f.err
}

func searchRequest(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)

	s.SearchActivitiesHandler(c)
	return w
}

func TestSearchActivitiesReportsImportedCount(t *testing.T) {
	datastore := &fakeDatastore{records: []model.ActivityRecord{
		{IATIIdentifier: "XM-1", Title: "Water project"},
		{IATIIdentifier: "XM-2", Title: "Health project"},
	}}
	s := &Server{
		datastore:  datastore,
		activities: &fakeActivityStore{count: 1},
	}

	w := searchRequest(t, s, "/api/activities/search?orgRef=XM-DAC-41114")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "XM-DAC-41114", datastore.gotOrgRef)

	var body struct {
		Count           int                    `json:"count"`
		AlreadyImported int64                  `json:"alreadyImported"`
		Activities      []model.ActivityRecord `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, int64(1), body.AlreadyImported)
	assert.Len(t, body.Activities, 2)
}

func TestSearchActivitiesRequiresOrgRef(t *testing.T) {
	s := &Server{
		datastore:  &fakeDatastore{},
		activities: &fakeActivityStore{},
	}

	w := searchRequest(t, s, "/api/activities/search")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchActivitiesCountFailure(t *testing.T) {
	s := &Server{
		datastore:  &fakeDatastore{records: []model.ActivityRecord{{IATIIdentifier: "XM-1"}}},
		activities: &fakeActivityStore{err: errors.New("connection reset")},
	}

	w := searchRequest(t, s, "/api/activities/search?orgRef=XM-DAC-41114")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
