package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VersionStatus represents the lifecycle state of a generated content version
type VersionStatus string

const (
	VersionPending    VersionStatus = "pending"
	VersionApproved   VersionStatus = "approved"
	VersionRejected   VersionStatus = "rejected"
	VersionApplied    VersionStatus = "applied"
	VersionRolledBack VersionStatus = "rolledBack"
)

// ContentVersion is one generated rewrite attempt for one clinic within one
// batch. Versions only move forward: pending -> approved|rejected,
// approved -> applied, applied -> rolledBack.
//
// OriginalContentSnapshot is captured at generation time and never mutated;
// it is the sole source of truth for rollback.
type ContentVersion struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BatchID  primitive.ObjectID `bson:"batch_id" json:"batchId"`
	TargetID primitive.ObjectID `bson:"target_id" json:"targetId"`

	Status VersionStatus `bson:"status" json:"status"`

	GeneratedContent        string `bson:"generated_content" json:"generatedContent"`
	OriginalContentSnapshot string `bson:"original_content_snapshot" json:"originalContentSnapshot"`

	WordCountBefore int `bson:"word_count_before" json:"wordCountBefore"`
	WordCountAfter  int `bson:"word_count_after" json:"wordCountAfter"`

	InputTokens  int     `bson:"input_tokens" json:"inputTokens"`
	OutputTokens int     `bson:"output_tokens" json:"outputTokens"`
	Cost         float64 `bson:"cost" json:"cost"`

	ValidationPassed     bool `bson:"validation_passed" json:"validationPassed"`
	RequiresManualReview bool `bson:"requires_manual_review" json:"requiresManualReview"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// VersionStatusCounts aggregates version counts per status for one batch
type VersionStatusCounts struct {
	Pending    int `json:"pending"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Applied    int `json:"applied"`
	RolledBack int `json:"rolledBack"`
}
