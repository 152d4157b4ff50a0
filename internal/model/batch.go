package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchStatus represents the overall state of an import batch
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// ItemStatus represents the lifecycle state of a single batch item
type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemSkipped
}

// ItemAction classifies what the import worker did with a record
type ItemAction string

const (
	ActionPending ItemAction = "pending"
	ActionCreate  ItemAction = "create"
	ActionUpdate  ItemAction = "update"
	ActionSkip    ItemAction = "skip"
	ActionFail    ItemAction = "fail"
)

// ImportCounts tracks sub-record quantities for one activity
type ImportCounts struct {
	Transactions       int `bson:"transactions" json:"transactions"`
	Budgets            int `bson:"budgets" json:"budgets"`
	Sectors            int `bson:"sectors" json:"sectors"`
	Locations          int `bson:"locations" json:"locations"`
	Contacts           int `bson:"contacts" json:"contacts"`
	Documents          int `bson:"documents" json:"documents"`
	PolicyMarkers      int `bson:"policy_markers" json:"policy_markers"`
	HumanitarianScopes int `bson:"humanitarian_scopes" json:"humanitarian_scopes"`
	Tags               int `bson:"tags" json:"tags"`
}

// Total sums the counts across all sub-record kinds
func (c ImportCounts) Total() int {
	return c.Transactions + c.Budgets + c.Sectors + c.Locations + c.Contacts +
		c.Documents + c.PolicyMarkers + c.HumanitarianScopes + c.Tags
}

// ImportDetails holds what the source record declared against what the
// worker actually persisted. The two may diverge on a completed item.
type ImportDetails struct {
	Expected ImportCounts `bson:"expected" json:"expected"`
	Imported ImportCounts `bson:"imported" json:"imported"`
	Error    string       `bson:"error,omitempty" json:"error,omitempty"`
}

// Partial reports whether some declared sub-records were not persisted
func (d ImportDetails) Partial() bool {
	return d.Imported.Total() < d.Expected.Total()
}

// BatchItem is the per-record tracking unit within a batch, keyed by the
// record's IATI identifier
type BatchItem struct {
	ExternalID  string        `bson:"external_id" json:"external_id"`
	Title       string        `bson:"title" json:"title"`
	Action      ItemAction    `bson:"action" json:"action"`
	Status      ItemStatus    `bson:"status" json:"status"`
	Details     ImportDetails `bson:"import_details" json:"import_details"`
	CompletedAt *time.Time    `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// BatchCounters are the aggregate per-action counters, each incremented
// exactly once when an item reaches a terminal status
type BatchCounters struct {
	Created int `bson:"created_count" json:"created_count"`
	Updated int `bson:"updated_count" json:"updated_count"`
	Skipped int `bson:"skipped_count" json:"skipped_count"`
	Failed  int `bson:"failed_count" json:"failed_count"`
}

// Terminal is the number of items the counters have accounted for
func (c BatchCounters) Terminal() int {
	return c.Created + c.Updated + c.Skipped + c.Failed
}

// BatchJob represents one run of importing a fixed set of selected activities
type BatchJob struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TotalActivities int                `bson:"total_activities" json:"total_activities"`
	Status          BatchStatus        `bson:"status" json:"status"`
	Counters        BatchCounters      `bson:"counters" json:"counters"`
	Items           []BatchItem        `bson:"items" json:"items"`
	Rules           ImportRules        `bson:"rules" json:"rules"`
	Meta            BatchMeta          `bson:"meta" json:"meta"`
	ErrorList       []string           `bson:"error_list,omitempty" json:"error_list,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
	CompletedAt     *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	TokenID         string             `bson:"token_id" json:"token_id"`
}

// AllTerminal reports whether every item has reached a terminal status
func (b *BatchJob) AllTerminal() bool {
	return b.Counters.Terminal() == b.TotalActivities
}

// HasFailedItems reports whether any item ended in status failed
func (b *BatchJob) HasFailedItems() bool {
	return b.Counters.Failed > 0
}

// Item returns the item tracked under the given external identifier
func (b *BatchJob) Item(externalID string) *BatchItem {
	for i := range b.Items {
		if b.Items[i].ExternalID == externalID {
			return &b.Items[i]
		}
	}
	return nil
}

// QueuedIdentifiers lists the external identifiers of items not yet
// dispatched, in batch order. Used when resuming a stalled batch.
func (b *BatchJob) QueuedIdentifiers() []string {
	var ids []string
	for i := range b.Items {
		if b.Items[i].Status == ItemQueued {
			ids = append(ids, b.Items[i].ExternalID)
		}
	}
	return ids
}

// ImportRules configures how the worker resolves records that already exist
type ImportRules struct {
	OnExisting    string `bson:"on_existing" json:"on_existing"` // [update, skip]
	SkipUnchanged bool   `bson:"skip_unchanged" json:"skip_unchanged"`
}

const (
	OnExistingUpdate = "update"
	OnExistingSkip   = "skip"
)

// BatchMeta carries source labelling for audit purposes, not load-bearing
type BatchMeta struct {
	Source      string `bson:"source" json:"source"`
	OrgRef      string `bson:"org_ref" json:"org_ref"`
	RequestedBy string `bson:"requested_by,omitempty" json:"requested_by,omitempty"`
}

// ImportLog is the audit record written after every finished import run
type ImportLog struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EntityType   string             `bson:"entity_type" json:"entity_type"`
	BatchID      string             `bson:"batch_id" json:"batch_id"`
	Source       string             `bson:"source" json:"source"`
	TotalRecords int                `bson:"total_records" json:"total_records"`
	Counters     BatchCounters      `bson:"counters" json:"counters"`
	Errors       []string           `bson:"errors,omitempty" json:"errors,omitempty"`
	ReportURL    string             `bson:"report_url,omitempty" json:"report_url,omitempty"`
	TokenID      string             `bson:"token_id" json:"token_id"`
	ImportedAt   time.Time          `bson:"imported_at" json:"imported_at"`
}
