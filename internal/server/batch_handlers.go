package server

import (
	"errors"
	"net/http"
	"time"

	"aidimport/internal/batch"
	"aidimport/internal/database"
	"aidimport/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// BatchRequest represents the request for creating an import batch. The
// caller submits the full candidate set it fetched plus the identifiers
// of the activities it actually wants imported.
type BatchRequest struct {
	Candidates []model.ActivityRecord `json:"candidates" binding:"required"`
	Selected   []string               `json:"selected" binding:"required"`
	Rules      model.ImportRules      `json:"rules"`
	Meta       model.BatchMeta        `json:"meta"`
}

// ChunkRequest carries one chunk of records for an existing batch
type ChunkRequest struct {
	Records []model.ActivityRecord `json:"records" binding:"required"`
}

// AbortRequest carries the reason a batch is being abandoned
type AbortRequest struct {
	Reason string `json:"reason"`
}

// BatchResponse represents the response for batch operations
type BatchResponse struct {
	ID              string              `json:"id"`
	Status          string              `json:"status"`
	TotalActivities int                 `json:"totalActivities"`
	Counters        model.BatchCounters `json:"counters"`
	Items           []model.BatchItem   `json:"items,omitempty"`
	Rules           model.ImportRules   `json:"rules"`
	Meta            model.BatchMeta     `json:"meta"`
	ErrorList       []string            `json:"errorList,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
	CompletedAt     string              `json:"completedAt,omitempty"`
}

// CreateBatchHandler creates a new import batch
func (s *Server) CreateBatchHandler(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Get token ID from context (set by auth middleware)
	tokenID := getTokenID(c)
	if tokenID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token ID not found"})
		return
	}

	job, err := s.svc.CreateBatch(c.Request.Context(), batch.CreateBatchInput{
		Candidates: req.Candidates,
		Selected:   req.Selected,
		Rules:      req.Rules,
		Meta:       req.Meta,
		TokenID:    tokenID,
	})
	if err != nil {
		if errors.Is(err, batch.ErrEmptySelection) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create batch: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, convertBatchToResponse(job, true))
}

// ProcessChunkHandler imports one chunk of records for an existing batch.
// The batch's stored rules and meta apply; the caller only sends records.
func (s *Server) ProcessChunkHandler(c *gin.Context) {
	batchID := c.Param("id")

	var req ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.svc.GetStatus(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, database.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batch: " + err.Error()})
		return
	}

	result, err := s.svc.ProcessChunk(c.Request.Context(), batchID, req.Records, job.Rules, job.Meta)
	if err != nil {
		log.Error().Err(err).Str("batchID", batchID).Msg("Chunk processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process chunk: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBatchHandler returns a specific batch by ID, items included
func (s *Server) GetBatchHandler(c *gin.Context) {
	batchID := c.Param("id")

	job, err := s.svc.GetStatus(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, database.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get batch: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, convertBatchToResponse(job, true))
}

// ListBatchesHandler returns recent batches with pagination, without items
func (s *Server) ListBatchesHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	jobs, err := s.svc.ListBatches(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list batches: " + err.Error()})
		return
	}

	var response []BatchResponse
	for _, job := range jobs {
		response = append(response, convertBatchToResponse(job, false))
	}

	c.JSON(http.StatusOK, response)
}

// AbortBatchHandler marks a running batch as failed
func (s *Server) AbortBatchHandler(c *gin.Context) {
	batchID := c.Param("id")

	var req AbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.svc.AbortBatch(c.Request.Context(), batchID, req.Reason); err != nil {
		if errors.Is(err, database.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to abort batch: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Batch aborted"})
}

// ReopenBatchHandler returns an aborted batch to running. The caller
// follows up with a run request to actually drive the queued items.
func (s *Server) ReopenBatchHandler(c *gin.Context) {
	batchID := c.Param("id")

	job, err := s.svc.ReopenBatch(c.Request.Context(), batchID)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrBatchNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		case errors.Is(err, batch.ErrBatchNotReopenable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reopen batch: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, convertBatchToResponse(job, true))
}

// RunBatchHandler enqueues a server-side run for the batch's queued items
func (s *Server) RunBatchHandler(c *gin.Context) {
	batchID := c.Param("id")

	job, err := s.svc.GetStatus(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, database.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load batch: " + err.Error()})
		return
	}

	if job.Status != model.BatchRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch is already " + string(job.Status)})
		return
	}

	if err := s.runner.EnqueueRun(batchID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue run: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Batch run enqueued", "queuedItems": len(job.QueuedIdentifiers())})
}

// ListImportLogsHandler returns the audit trail of finished import runs
func (s *Server) ListImportLogsHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	logs, err := s.ac.ListImportLogs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list import logs: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, logs)
}

// convertBatchToResponse converts a batch model to a response format
func convertBatchToResponse(job *model.BatchJob, includeItems bool) BatchResponse {
	response := BatchResponse{
		ID:              job.ID.Hex(),
		Status:          string(job.Status),
		TotalActivities: job.TotalActivities,
		Counters:        job.Counters,
		Rules:           job.Rules,
		Meta:            job.Meta,
		ErrorList:       job.ErrorList,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}

	if job.CompletedAt != nil {
		response.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}

	if includeItems {
		response.Items = job.Items
	}

	return response
}
