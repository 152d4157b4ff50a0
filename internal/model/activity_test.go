package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeclaredCounts(t *testing.T) {
	record := ActivityRecord{
		IATIIdentifier: "XM-DAC-41114-PROJECT-1",
		Title:          "Water access programme",
		Transactions:   []Transaction{{Date: "2024-01-01", Value: 1000}, {Date: "2024-02-01", Value: 500}},
		Budgets:        []Budget{{PeriodStart: "2024-01-01", PeriodEnd: "2024-12-31", Value: 2000}},
		Sectors:        []Sector{{Code: "14030"}},
		Tags:           []Tag{{Code: "sdg-6"}},
	}

	counts := record.DeclaredCounts()
	assert.Equal(t, 2, counts.Transactions)
	assert.Equal(t, 1, counts.Budgets)
	assert.Equal(t, 1, counts.Sectors)
	assert.Equal(t, 1, counts.Tags)
	assert.Equal(t, 0, counts.Locations)
	assert.Equal(t, 5, counts.Total())
}

func TestContentHash(t *testing.T) {
	a := ActivityRecord{IATIIdentifier: "XM-1", Title: "Programme"}
	b := ActivityRecord{IATIIdentifier: "XM-1", Title: "Programme"}

	assert.NotEmpty(t, a.ContentHash())
	assert.Equal(t, a.ContentHash(), b.ContentHash())

	b.Title = "Programme (revised)"
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}
