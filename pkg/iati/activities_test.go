package iati

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"aidimport/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDocZipsParallelArrays(t *testing.T) {
	doc := solrDoc{
		IATIIdentifier:       "XM-DAC-41114-PROJECT-1",
		TitleNarrative:       []string{"Water access programme"},
		DescriptionNarrative: []string{"Improving rural water access"},
		ActivityStatusCode:   "2",
		ReportingOrgRef:      "XM-DAC-41114",
		DefaultCurrency:      "USD",

		TransactionType:     []string{"3", "4"},
		TransactionDate:     []string{"2024-01-15", "2024-06-15"},
		TransactionValue:    []float64{10000, 2500},
		TransactionCurrency: []string{"USD", "USD"},

		BudgetPeriodStart: []string{"2024-01-01"},
		BudgetPeriodEnd:   []string{"2024-12-31"},
		BudgetValue:       []float64{50000},

		SectorCode:       []string{"14030", "14050"},
		SectorNarrative:  []string{"Basic drinking water supply"},
		SectorPercentage: []float64{60, 40},
	}

	record := mapDoc(&doc)

	assert.Equal(t, "XM-DAC-41114-PROJECT-1", record.IATIIdentifier)
	assert.Equal(t, "Water access programme", record.Title)
	assert.Equal(t, "Improving rural water access", record.Description)
	assert.Equal(t, "XM-DAC-41114", record.ReportingOrg)

	require.Len(t, record.Transactions, 2)
	assert.Equal(t, "3", record.Transactions[0].Type)
	assert.Equal(t, "2024-01-15", record.Transactions[0].Date)
	assert.Equal(t, float64(10000), record.Transactions[0].Value)
	assert.Equal(t, float64(2500), record.Transactions[1].Value)

	require.Len(t, record.Budgets, 1)
	assert.Equal(t, "2024-01-01", record.Budgets[0].PeriodStart)
	assert.Equal(t, float64(50000), record.Budgets[0].Value)

	// Shorter parallel columns fall back to zero values instead of
	// dropping the sub-record
	require.Len(t, record.Sectors, 2)
	assert.Equal(t, "Basic drinking water supply", record.Sectors[0].Name)
	assert.Empty(t, record.Sectors[1].Name)
	assert.Equal(t, float64(40), record.Sectors[1].Percentage)
}

func TestMapDocEmptyDoc(t *testing.T) {
	record := mapDoc(&solrDoc{IATIIdentifier: "XM-1"})

	assert.Equal(t, "XM-1", record.IATIIdentifier)
	assert.Empty(t, record.Title)
	assert.Empty(t, record.Transactions)
	assert.Zero(t, record.DeclaredCounts().Total())
}

func TestFetchActivitiesByIdentifiers(t *testing.T) {
	var gotQuery, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		w.Write([]byte(`{"response": {"numFound": 1, "docs": [
			{"iati_identifier": "XM-1", "title_narrative": ["Programme"], "transaction_value": [100], "transaction_transaction_type_code": ["3"]}
		]}}`))
	}))
	defer server.Close()

	c := New(config.IATIConfig{DatastoreURL: server.URL, APIKey: "secret"}, nil)
	defer c.Close()

	records, err := c.FetchActivitiesByIdentifiers(context.Background(), []string{"XM-1", "XM-2"})
	require.NoError(t, err)

	assert.Equal(t, `iati_identifier:("XM-1" OR "XM-2")`, gotQuery)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, records, 1)
	assert.Equal(t, "XM-1", records[0].IATIIdentifier)
	assert.Equal(t, "Programme", records[0].Title)
	require.Len(t, records[0].Transactions, 1)
	assert.Equal(t, float64(100), records[0].Transactions[0].Value)
}

func TestFetchActivitiesByIdentifiersEmptySet(t *testing.T) {
	c := New(config.IATIConfig{DatastoreURL: "http://unused"}, nil)
	defer c.Close()

	records, err := c.FetchActivitiesByIdentifiers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchOrganisationActivities(t *testing.T) {
	var gotQuery, gotRows string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotRows = r.URL.Query().Get("rows")
		w.Write([]byte(`{"response": {"numFound": 0, "docs": []}}`))
	}))
	defer server.Close()

	c := New(config.IATIConfig{DatastoreURL: server.URL}, nil)
	defer c.Close()

	records, err := c.FetchOrganisationActivities(context.Background(), "XM-DAC-41114", 0)
	require.NoError(t, err)

	assert.Equal(t, `reporting_org_ref:"XM-DAC-41114"`, gotQuery)
	assert.Equal(t, "100", gotRows) // datastore default page size
	assert.Empty(t, records)
}

func TestFetchSurfacesDatastoreErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(config.IATIConfig{DatastoreURL: server.URL}, nil)
	defer c.Close()

	_, err := c.FetchActivitiesByIdentifiers(context.Background(), []string{"XM-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
