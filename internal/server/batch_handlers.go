package server

import (
	"encoding/json"
	"net/http"

	"refinery/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// BatchRequest represents the request for creating a batch
type BatchRequest struct {
	Options model.BatchOptions `json:"options"`
	Filter  model.ClinicFilter `json:"filter"`
}

// createBatchHandler creates a new optimization batch
func (s *Server) createBatchHandler(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	tokenID := getTokenID(c)
	if tokenID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token ID not found"})
		return
	}

	batch, err := s.bc.CreateBatch(c.Request.Context(), req.Options, req.Filter, tokenID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, batch)
}

// listBatchesHandler lists batches, optionally filtered by status
func (s *Server) listBatchesHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	status := model.BatchStatus(c.Query("status"))
	if status != "" && !isValidBatchStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch status"})
		return
	}

	batches, err := s.bc.ListBatches(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

// getBatchHandler returns one batch with its version counts and recent
// versions
func (s *Server) getBatchHandler(c *gin.Context) {
	detail, err := s.bc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// executeBatchHandler enqueues a batch run and streams its progress as
// newline-delimited JSON. The stream is an observation window only: closing
// it (client disconnect) never stops the run, which continues on the
// consumer until it pauses, completes, or fails.
func (s *Server) executeBatchHandler(c *gin.Context) {
	batchID := c.Param("id")

	events, cancel, err := s.bc.ExecuteBatch(c.Request.Context(), batchID, getTokenID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	enc := json.NewEncoder(c.Writer)

	for {
		select {
		case <-c.Request.Context().Done():
			log.Debug().Str("batchId", batchID).Msg("Stream client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				// Feed closed by a terminal event already delivered
				return
			}
			if err := enc.Encode(ev); err != nil {
				log.Debug().Err(err).Str("batchId", batchID).Msg("Stream write failed")
				return
			}
			if canFlush {
				flusher.Flush()
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

// pauseBatchHandler requests a cooperative pause of an active run
func (s *Server) pauseBatchHandler(c *gin.Context) {
	if err := s.bc.PauseBatch(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Pause requested, run will stop after the current clinic"})
}

// cancelBatchHandler discards a batch that is not actively processing
func (s *Server) cancelBatchHandler(c *gin.Context) {
	if err := s.bc.CancelBatch(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Batch cancelled"})
}

// rollbackBatchHandler restores original content for all applied versions
func (s *Server) rollbackBatchHandler(c *gin.Context) {
	rolledBack, failures, err := s.bc.RollbackBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if len(failures) > 0 {
		// Partial rollback: report what failed instead of hiding it
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"rolledBack": rolledBack, "failures": failures})
}

// exportBatchHandler uploads a JSON result report to object storage
func (s *Server) exportBatchHandler(c *gin.Context) {
	url, err := s.bc.ExportBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reportUrl": url})
}

// isValidBatchStatus checks if a batch status is valid
func isValidBatchStatus(status model.BatchStatus) bool {
	validStatuses := []model.BatchStatus{
		model.BatchPending,
		model.BatchProcessing,
		model.BatchPaused,
		model.BatchAwaitingReview,
		model.BatchCompleted,
		model.BatchFailed,
	}

	for _, s := range validStatuses {
		if status == s {
			return true
		}
	}
	return false
}
