package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ActivityRecord is an externally-sourced IATI activity as handed to the
// import worker. The IATI identifier is the idempotency key for the whole
// import pipeline.
type ActivityRecord struct {
	IATIIdentifier  string `bson:"iati_identifier" json:"iati_identifier"`
	Title           string `bson:"title" json:"title"`
	Description     string `bson:"description,omitempty" json:"description,omitempty"`
	ActivityStatus  string `bson:"activity_status,omitempty" json:"activity_status,omitempty"`
	ReportingOrg    string `bson:"reporting_org,omitempty" json:"reporting_org,omitempty"`
	DefaultCurrency string `bson:"default_currency,omitempty" json:"default_currency,omitempty"`

	Transactions       []Transaction       `bson:"transactions,omitempty" json:"transactions,omitempty"`
	Budgets            []Budget            `bson:"budgets,omitempty" json:"budgets,omitempty"`
	Sectors            []Sector            `bson:"sectors,omitempty" json:"sectors,omitempty"`
	Locations          []Location          `bson:"locations,omitempty" json:"locations,omitempty"`
	Contacts           []Contact           `bson:"contacts,omitempty" json:"contacts,omitempty"`
	Documents          []Document          `bson:"documents,omitempty" json:"documents,omitempty"`
	PolicyMarkers      []PolicyMarker      `bson:"policy_markers,omitempty" json:"policy_markers,omitempty"`
	HumanitarianScopes []HumanitarianScope `bson:"humanitarian_scopes,omitempty" json:"humanitarian_scopes,omitempty"`
	Tags               []Tag               `bson:"tags,omitempty" json:"tags,omitempty"`
}

type Transaction struct {
	Type     string  `bson:"type" json:"type"` // IATI transaction type code
	Date     string  `bson:"date" json:"date"`
	Value    float64 `bson:"value" json:"value"`
	Currency string  `bson:"currency,omitempty" json:"currency,omitempty"`
	Provider string  `bson:"provider,omitempty" json:"provider,omitempty"`
	Receiver string  `bson:"receiver,omitempty" json:"receiver,omitempty"`
}

type Budget struct {
	PeriodStart string  `bson:"period_start" json:"period_start"`
	PeriodEnd   string  `bson:"period_end" json:"period_end"`
	Value       float64 `bson:"value" json:"value"`
	Currency    string  `bson:"currency,omitempty" json:"currency,omitempty"`
}

type Sector struct {
	Code       string  `bson:"code" json:"code"`
	Name       string  `bson:"name,omitempty" json:"name,omitempty"`
	Percentage float64 `bson:"percentage,omitempty" json:"percentage,omitempty"`
}

type Location struct {
	Ref  string `bson:"ref,omitempty" json:"ref,omitempty"`
	Name string `bson:"name" json:"name"`
	Code string `bson:"code,omitempty" json:"code,omitempty"` // country/region code
}

type Contact struct {
	Type         string `bson:"type,omitempty" json:"type,omitempty"`
	Organisation string `bson:"organisation,omitempty" json:"organisation,omitempty"`
	Email        string `bson:"email,omitempty" json:"email,omitempty"`
}

type Document struct {
	URL      string `bson:"url" json:"url"`
	Title    string `bson:"title,omitempty" json:"title,omitempty"`
	Category string `bson:"category,omitempty" json:"category,omitempty"`
}

type PolicyMarker struct {
	Code         string `bson:"code" json:"code"`
	Significance string `bson:"significance,omitempty" json:"significance,omitempty"`
}

type HumanitarianScope struct {
	Type string `bson:"type" json:"type"`
	Code string `bson:"code" json:"code"`
}

type Tag struct {
	Vocabulary string `bson:"vocabulary,omitempty" json:"vocabulary,omitempty"`
	Code       string `bson:"code" json:"code"`
}

// DeclaredCounts returns the sub-record quantities the source record carries
func (r *ActivityRecord) DeclaredCounts() ImportCounts {
	return ImportCounts{
		Transactions:       len(r.Transactions),
		Budgets:            len(r.Budgets),
		Sectors:            len(r.Sectors),
		Locations:          len(r.Locations),
		Contacts:           len(r.Contacts),
		Documents:          len(r.Documents),
		PolicyMarkers:      len(r.PolicyMarkers),
		HumanitarianScopes: len(r.HumanitarianScopes),
		Tags:               len(r.Tags),
	}
}

// ContentHash produces a stable digest of the record used to detect
// unchanged re-imports
func (r *ActivityRecord) ContentHash() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Activity is the persisted form of an imported activity in the domain store
type Activity struct {
	ActivityRecord `bson:",inline"`

	ContentHash string    `bson:"content_hash" json:"-"`
	Source      string    `bson:"source" json:"source"`
	ImportedAt  time.Time `bson:"imported_at" json:"imported_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}
