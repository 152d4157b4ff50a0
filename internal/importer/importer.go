package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aidimport/internal/database"
	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
)

// Outcome is what the worker reports back for one record: the action it
// took plus the declared versus actually-persisted sub-record counts.
// Imported may be lower than Expected on a successful import; that is a
// partial success, not an error.
type Outcome struct {
	Action   model.ItemAction
	Expected model.ImportCounts
	Imported model.ImportCounts
}

// Worker performs the actual create-or-update of a single activity record
// against the domain store. An error return is a per-record failure only.
type Worker interface {
	Import(ctx context.Context, record model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta) (Outcome, error)
}

type worker struct {
	db database.ActivityDatabase
}

// New creates an import worker backed by the activity store
func New(db database.ActivityDatabase) Worker {
	return &worker{db: db}
}

// Import persists one activity record. Invalid sub-records are dropped
// rather than failing the whole record, so a mostly-valid activity still
// lands with an observable expected/imported gap.
func (w *worker) Import(ctx context.Context, record model.ActivityRecord, rules model.ImportRules, meta model.BatchMeta) (Outcome, error) {
	expected := record.DeclaredCounts()

	if record.IATIIdentifier == "" {
		return Outcome{Action: model.ActionFail, Expected: expected}, errors.New("record has no IATI identifier")
	}
	if record.Title == "" {
		return Outcome{Action: model.ActionFail, Expected: expected}, fmt.Errorf("record %s has no title", record.IATIIdentifier)
	}

	clean := sanitize(record)
	imported := clean.DeclaredCounts()

	existing, err := w.db.GetActivityByIdentifier(ctx, record.IATIIdentifier)
	if err != nil && !errors.Is(err, database.ErrActivityNotFound) {
		return Outcome{Action: model.ActionFail, Expected: expected}, fmt.Errorf("lookup %s: %w", record.IATIIdentifier, err)
	}

	now := time.Now()

	if existing == nil {
		activity := &model.Activity{
			ActivityRecord: clean,
			ContentHash:    record.ContentHash(),
			Source:         meta.Source,
			ImportedAt:     now,
			UpdatedAt:      now,
		}
		if err := w.db.InsertActivity(ctx, activity); err != nil {
			return Outcome{Action: model.ActionFail, Expected: expected}, fmt.Errorf("insert %s: %w", record.IATIIdentifier, err)
		}

		log.Debug().
			Str("iatiIdentifier", record.IATIIdentifier).
			Int("expected", expected.Total()).
			Int("imported", imported.Total()).
			Msg("Created activity")
		return Outcome{Action: model.ActionCreate, Expected: expected, Imported: imported}, nil
	}

	// Existing record: import rules decide between update and skip
	if rules.OnExisting == model.OnExistingSkip {
		log.Debug().Str("iatiIdentifier", record.IATIIdentifier).Msg("Skipped existing activity")
		return Outcome{Action: model.ActionSkip, Expected: expected}, nil
	}

	if rules.SkipUnchanged && existing.ContentHash == record.ContentHash() {
		log.Debug().Str("iatiIdentifier", record.IATIIdentifier).Msg("Skipped unchanged activity")
		return Outcome{Action: model.ActionSkip, Expected: expected}, nil
	}

	activity := &model.Activity{
		ActivityRecord: clean,
		ContentHash:    record.ContentHash(),
		Source:         meta.Source,
		ImportedAt:     existing.ImportedAt,
		UpdatedAt:      now,
	}
	if err := w.db.ReplaceActivity(ctx, activity); err != nil {
		return Outcome{Action: model.ActionFail, Expected: expected}, fmt.Errorf("replace %s: %w", record.IATIIdentifier, err)
	}

	log.Debug().
		Str("iatiIdentifier", record.IATIIdentifier).
		Int("expected", expected.Total()).
		Int("imported", imported.Total()).
		Msg("Updated activity")
	return Outcome{Action: model.ActionUpdate, Expected: expected, Imported: imported}, nil
}

// sanitize drops sub-records that fail field-level validation and keeps
// the rest of the activity intact
func sanitize(record model.ActivityRecord) model.ActivityRecord {
	clean := record

	clean.Transactions = nil
	for _, t := range record.Transactions {
		if t.Date != "" && t.Value != 0 {
			clean.Transactions = append(clean.Transactions, t)
		}
	}

	clean.Budgets = nil
	for _, b := range record.Budgets {
		if b.PeriodStart != "" && b.PeriodEnd != "" && b.Value != 0 {
			clean.Budgets = append(clean.Budgets, b)
		}
	}

	clean.Sectors = nil
	for _, s := range record.Sectors {
		if s.Code != "" {
			clean.Sectors = append(clean.Sectors, s)
		}
	}

	clean.Locations = nil
	for _, l := range record.Locations {
		if l.Name != "" {
			clean.Locations = append(clean.Locations, l)
		}
	}

	clean.Contacts = nil
	for _, c := range record.Contacts {
		if c.Email != "" || c.Organisation != "" {
			clean.Contacts = append(clean.Contacts, c)
		}
	}

	clean.Documents = nil
	for _, d := range record.Documents {
		if d.URL != "" {
			clean.Documents = append(clean.Documents, d)
		}
	}

	clean.PolicyMarkers = nil
	for _, p := range record.PolicyMarkers {
		if p.Code != "" {
			clean.PolicyMarkers = append(clean.PolicyMarkers, p)
		}
	}

	clean.HumanitarianScopes = nil
	for _, h := range record.HumanitarianScopes {
		if h.Type != "" && h.Code != "" {
			clean.HumanitarianScopes = append(clean.HumanitarianScopes, h)
		}
	}

	clean.Tags = nil
	for _, t := range record.Tags {
		if t.Code != "" {
			clean.Tags = append(clean.Tags, t)
		}
	}

	return clean
}
