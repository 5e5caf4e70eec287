package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"refinery/internal/model"
	"refinery/pkg/genai"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ItemStatus is the outcome class of one processed target
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemError   ItemStatus = "error"
	ItemSkipped ItemStatus = "skipped"
)

// ItemOutcome reports what happened to one target. A status of ItemError
// is a recorded, non-fatal generation failure; infrastructure failures are
// returned as errors from Process instead and abort the whole run.
type ItemOutcome struct {
	Status          ItemStatus
	Message         string
	ClinicTitle     string
	WordCountBefore int
	WordCountAfter  int
	InputTokens     int
	OutputTokens    int
	Cost            float64
	VersionID       primitive.ObjectID
}

// ItemProcessor processes one target: invokes generation, validates the
// output, and writes a pending ContentVersion. It never mutates the
// target's live content; that separation is what makes rollback possible.
type ItemProcessor struct {
	clinics   ClinicStore
	versions  VersionStore
	generator Generator

	// reviewDeviationPct flags output whose word count strays from target
	// by more than this fraction
	reviewDeviationPct float64
}

func NewItemProcessor(clinics ClinicStore, versions VersionStore, generator Generator, reviewDeviationPct float64) *ItemProcessor {
	return &ItemProcessor{
		clinics:            clinics,
		versions:           versions,
		generator:          generator,
		reviewDeviationPct: reviewDeviationPct,
	}
}

// Process handles a single target for a batch. The returned error is
// non-nil only for infrastructure failures (store unreachable); per-item
// generation failures come back as an ItemError outcome.
func (p *ItemProcessor) Process(ctx context.Context, batch *model.OptimizationBatch, targetID primitive.ObjectID) (ItemOutcome, error) {
	clinic, err := p.clinics.GetClinic(ctx, targetID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ItemOutcome{
				Status:  ItemError,
				Message: "clinic no longer exists",
			}, nil
		}
		return ItemOutcome{}, fmt.Errorf("loading clinic %s: %w", targetID.Hex(), err)
	}

	if skip, reason := p.shouldSkip(batch, clinic); skip {
		log.Debug().
			Str("batchId", batch.ID.Hex()).
			Str("clinicId", clinic.ID.Hex()).
			Str("reason", reason).
			Msg("Skipping clinic")
		return ItemOutcome{
			Status:      ItemSkipped,
			Message:     reason,
			ClinicTitle: clinic.Title,
		}, nil
	}

	result, err := p.generator.Rewrite(ctx, genai.RewriteRequest{
		Title:           clinic.Title,
		Content:         clinic.Description,
		TargetWordCount: batch.Options.TargetWordCount,
		Model:           batch.Options.Model,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("batchId", batch.ID.Hex()).
			Str("clinicId", clinic.ID.Hex()).
			Msg("Generation failed for clinic")
		return ItemOutcome{
			Status:      ItemError,
			Message:     err.Error(),
			ClinicTitle: clinic.Title,
		}, nil
	}

	if strings.TrimSpace(result.Text) == "" {
		return ItemOutcome{
			Status:      ItemError,
			Message:     "generation returned empty content",
			ClinicTitle: clinic.Title,
		}, nil
	}

	wordCountBefore := CountWords(clinic.Description)
	wordCountAfter := result.WordCount
	if wordCountAfter == 0 {
		wordCountAfter = CountWords(result.Text)
	}

	version := &model.ContentVersion{
		ID:                      primitive.NewObjectID(),
		BatchID:                 batch.ID,
		TargetID:                clinic.ID,
		Status:                  model.VersionPending,
		GeneratedContent:        result.Text,
		OriginalContentSnapshot: clinic.Description,
		WordCountBefore:         wordCountBefore,
		WordCountAfter:          wordCountAfter,
		InputTokens:             result.InputTokens,
		OutputTokens:            result.OutputTokens,
		Cost:                    result.Cost,
		ValidationPassed:        result.Valid,
		RequiresManualReview:    p.requiresReview(batch, result, wordCountAfter),
		CreatedAt:               time.Now(),
	}

	if err := p.versions.InsertVersion(ctx, version); err != nil {
		return ItemOutcome{}, fmt.Errorf("persisting version for clinic %s: %w", clinic.ID.Hex(), err)
	}

	return ItemOutcome{
		Status:          ItemSuccess,
		ClinicTitle:     clinic.Title,
		WordCountBefore: wordCountBefore,
		WordCountAfter:  wordCountAfter,
		InputTokens:     result.InputTokens,
		OutputTokens:    result.OutputTokens,
		Cost:            result.Cost,
		VersionID:       version.ID,
	}, nil
}

func (p *ItemProcessor) shouldSkip(batch *model.OptimizationBatch, clinic *model.Clinic) (bool, string) {
	if strings.TrimSpace(clinic.Description) == "" {
		return true, "no source content to rewrite"
	}
	if clinic.OptimizedAt != nil && !batch.Filter.IncludeOptimized {
		return true, "already optimized"
	}
	return false, ""
}

// requiresReview flags output that failed validation or deviates from the
// target word count beyond policy. Flagged versions still count as
// successes; the flag only routes them to mandatory human review.
func (p *ItemProcessor) requiresReview(batch *model.OptimizationBatch, result *genai.RewriteResult, wordCountAfter int) bool {
	if !result.Valid {
		return true
	}
	target := batch.Options.TargetWordCount
	if target <= 0 || p.reviewDeviationPct <= 0 {
		return false
	}
	deviation := math.Abs(float64(wordCountAfter-target)) / float64(target)
	return deviation > p.reviewDeviationPct
}
