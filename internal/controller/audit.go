package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"aidimport/internal/database"
	"aidimport/internal/model"
	"aidimport/internal/storage"

	"github.com/rs/zerolog/log"
)

// AuditController writes the audit trail of finished import runs: an
// import log entry in the database plus an archived JSON report of the
// final batch snapshot
type AuditController interface {
	RecordRun(ctx context.Context, result RunResult) (*model.ImportLog, error)
	ListImportLogs(ctx context.Context, limit, offset int) ([]*model.ImportLog, error)
}

type auditController struct {
	db    database.ImportLogDatabase
	files storage.FileService
}

// NewAudit creates an audit controller. files may be nil when no archive
// bucket is configured; logs are still written.
func NewAudit(db database.ImportLogDatabase, files storage.FileService) AuditController {
	return &auditController{db: db, files: files}
}

// maxLoggedErrors bounds the per-run error list kept in the import log
const maxLoggedErrors = 100

func (a *auditController) RecordRun(ctx context.Context, result RunResult) (*model.ImportLog, error) {
	job := result.Job
	if job == nil {
		return nil, fmt.Errorf("run %s finished without a batch snapshot", result.RunID)
	}

	entry := &model.ImportLog{
		EntityType:   "activities",
		BatchID:      result.BatchID,
		Source:       job.Meta.Source,
		TotalRecords: job.TotalActivities,
		Counters:     job.Counters,
		TokenID:      job.TokenID,
	}

	for i := range job.Items {
		if job.Items[i].Status == model.ItemFailed && job.Items[i].Details.Error != "" {
			entry.Errors = append(entry.Errors, fmt.Sprintf("%s: %s", job.Items[i].ExternalID, job.Items[i].Details.Error))
			if len(entry.Errors) == maxLoggedErrors {
				break
			}
		}
	}
	if result.Message != "" {
		entry.Errors = append(entry.Errors, result.Message)
	}

	if a.files != nil {
		url, err := a.archiveReport(ctx, result)
		if err != nil {
			// The log entry still lands without the archive link
			log.Warn().Err(err).Str("batchID", result.BatchID).Msg("Report archive failed")
		} else {
			entry.ReportURL = url
		}
	}

	if err := a.db.CreateImportLog(ctx, entry); err != nil {
		return nil, err
	}

	log.Info().
		Str("batchID", result.BatchID).
		Str("source", entry.Source).
		Int("totalRecords", entry.TotalRecords).
		Bool("success", result.Success).
		Msg("Recorded import run")

	return entry, nil
}

func (a *auditController) archiveReport(ctx context.Context, result RunResult) (string, error) {
	report, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := fmt.Sprintf("reports/batch-%s.json", result.BatchID)
	return a.files.ArchiveReport(ctx, key, bytes.NewReader(report))
}

func (a *auditController) ListImportLogs(ctx context.Context, limit, offset int) ([]*model.ImportLog, error) {
	return a.db.ListImportLogs(ctx, limit, offset)
}
