package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchStatus represents the current state of an optimization batch
type BatchStatus string

const (
	BatchPending        BatchStatus = "pending"
	BatchProcessing     BatchStatus = "processing"
	BatchPaused         BatchStatus = "paused"
	BatchAwaitingReview BatchStatus = "awaiting_review"
	BatchCompleted      BatchStatus = "completed"
	BatchFailed         BatchStatus = "failed"
)

// Terminal reports whether a batch can never be resumed from this status.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Resumable reports whether execute may be requested in this status.
func (s BatchStatus) Resumable() bool {
	return s == BatchPending || s == BatchPaused || s == BatchAwaitingReview
}

// BatchOptions is the immutable configuration of a batch, fixed at creation
type BatchOptions struct {
	BatchSize       int    `bson:"batch_size" json:"batchSize"`
	ReviewFrequency int    `bson:"review_frequency" json:"reviewFrequency"`
	TargetWordCount int    `bson:"target_word_count" json:"targetWordCount"`
	Model           string `bson:"model" json:"model"`
}

// ClinicFilter selects the clinics eligible for a batch
type ClinicFilter struct {
	City             string `bson:"city,omitempty" json:"city,omitempty"`
	Specialty        string `bson:"specialty,omitempty" json:"specialty,omitempty"`
	IncludeOptimized bool   `bson:"include_optimized" json:"includeOptimized"`
}

// BatchError records one per-item failure with enough context to retry manually
type BatchError struct {
	TargetID  primitive.ObjectID `bson:"target_id" json:"targetId"`
	Message   string             `bson:"message" json:"message"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// OptimizationBatch represents one configured run of the content
// optimization job over a bounded set of clinics.
//
// TargetIDs is snapshotted at creation (capped at BatchSize) so the run
// loop can use ProcessedCount as a deterministic cursor across resumes.
// The counter invariant ProcessedCount == SuccessCount + ErrorCount +
// SkippedCount holds at every persisted state.
type OptimizationBatch struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Status  BatchStatus        `bson:"status" json:"status"`
	Options BatchOptions       `bson:"options" json:"options"`
	Filter  ClinicFilter       `bson:"filter" json:"filter"`

	TargetIDs    []primitive.ObjectID `bson:"target_ids" json:"-"`
	TotalClinics int                  `bson:"total_clinics" json:"totalClinics"`

	ProcessedCount     int `bson:"processed_count" json:"processedCount"`
	SuccessCount       int `bson:"success_count" json:"successCount"`
	ErrorCount         int `bson:"error_count" json:"errorCount"`
	SkippedCount       int `bson:"skipped_count" json:"skippedCount"`
	PendingReviewCount int `bson:"pending_review_count" json:"pendingReviewCount"`
	ApprovedCount      int `bson:"approved_count" json:"approvedCount"`
	RejectedCount      int `bson:"rejected_count" json:"rejectedCount"`

	TotalInputTokens  int     `bson:"total_input_tokens" json:"totalInputTokens"`
	TotalOutputTokens int     `bson:"total_output_tokens" json:"totalOutputTokens"`
	EstimatedCost     float64 `bson:"estimated_cost" json:"estimatedCost"`

	Errors []BatchError `bson:"errors" json:"errors"`

	TokenID     string     `bson:"user_id" json:"userId"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	PausedAt    *time.Time `bson:"paused_at,omitempty" json:"pausedAt,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// RemainingTargets returns the ids not yet consumed by the run loop.
func (b *OptimizationBatch) RemainingTargets() []primitive.ObjectID {
	if b.ProcessedCount >= len(b.TargetIDs) {
		return nil
	}
	return b.TargetIDs[b.ProcessedCount:]
}
