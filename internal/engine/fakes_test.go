package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"refinery/internal/model"
	"refinery/pkg/genai"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore is an in-memory stand-in for the mongo database, implementing
// the engine's store interfaces with the same transition guarantees.
type fakeStore struct {
	mu       sync.Mutex
	batches  map[primitive.ObjectID]*model.OptimizationBatch
	versions map[primitive.ObjectID]*model.ContentVersion
	clinics  map[primitive.ObjectID]*model.Clinic

	progressErr     error
	clinicWriteErrs map[primitive.ObjectID]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:         make(map[primitive.ObjectID]*model.OptimizationBatch),
		versions:        make(map[primitive.ObjectID]*model.ContentVersion),
		clinics:         make(map[primitive.ObjectID]*model.Clinic),
		clinicWriteErrs: make(map[primitive.ObjectID]error),
	}
}

func (s *fakeStore) putBatch(b *model.OptimizationBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.batches[b.ID] = &cp
}

func (s *fakeStore) putClinic(c *model.Clinic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clinics[c.ID] = &cp
}

func (s *fakeStore) GetBatchByID(ctx context.Context, id primitive.ObjectID) (*model.OptimizationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *b
	cp.TargetIDs = append([]primitive.ObjectID(nil), b.TargetIDs...)
	cp.Errors = append([]model.BatchError(nil), b.Errors...)
	return &cp, nil
}

func (s *fakeStore) UpdateBatchLifecycle(ctx context.Context, batch *model.OptimizationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.batches[batch.ID]
	if !ok {
		return model.ErrNotFound
	}
	stored.Status = batch.Status
	stored.StartedAt = batch.StartedAt
	stored.PausedAt = batch.PausedAt
	stored.CompletedAt = batch.CompletedAt
	return nil
}

func (s *fakeStore) UpdateBatchProgress(ctx context.Context, batch *model.OptimizationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progressErr != nil {
		return s.progressErr
	}
	stored, ok := s.batches[batch.ID]
	if !ok {
		return model.ErrNotFound
	}
	stored.ProcessedCount = batch.ProcessedCount
	stored.SuccessCount = batch.SuccessCount
	stored.ErrorCount = batch.ErrorCount
	stored.SkippedCount = batch.SkippedCount
	stored.PendingReviewCount = batch.PendingReviewCount
	stored.TotalInputTokens = batch.TotalInputTokens
	stored.TotalOutputTokens = batch.TotalOutputTokens
	stored.EstimatedCost = batch.EstimatedCost
	stored.Errors = append([]model.BatchError(nil), batch.Errors...)
	return nil
}

func (s *fakeStore) IncrementReviewCounts(ctx context.Context, id primitive.ObjectID, pending, approved, rejected int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.batches[id]
	if !ok {
		return model.ErrNotFound
	}
	stored.PendingReviewCount += pending
	stored.ApprovedCount += approved
	stored.RejectedCount += rejected
	return nil
}

func (s *fakeStore) InsertVersion(ctx context.Context, version *model.ContentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version.ID.IsZero() {
		version.ID = primitive.NewObjectID()
	}
	cp := *version
	s.versions[version.ID] = &cp
	return nil
}

func (s *fakeStore) GetVersionByID(ctx context.Context, id primitive.ObjectID) (*model.ContentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *fakeStore) TransitionVersion(ctx context.Context, id primitive.ObjectID, from, to model.VersionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok || v.Status != from {
		return model.ErrInvalidState
	}
	if to == model.VersionApplied {
		// Mirror the unique applied index: one applied version per target
		// per batch.
		for _, other := range s.versions {
			if other.ID != id && other.BatchID == v.BatchID && other.TargetID == v.TargetID && other.Status == model.VersionApplied {
				return model.ErrConflict
			}
		}
	}
	v.Status = to
	return nil
}

func (s *fakeStore) ListVersionsByBatch(ctx context.Context, batchID primitive.ObjectID, status model.VersionStatus, limit, offset int) ([]model.ContentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ContentVersion
	for _, v := range s.versions {
		if v.BatchID != batchID {
			continue
		}
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *fakeStore) GetClinic(ctx context.Context, id primitive.ObjectID) (*model.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clinics[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) SetClinicDescription(ctx context.Context, id primitive.ObjectID, description string, optimized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clinicWriteErrs[id]; err != nil {
		return err
	}
	c, ok := s.clinics[id]
	if !ok {
		return model.ErrNotFound
	}
	c.Description = description
	if optimized {
		now := time.Now()
		c.OptimizedAt = &now
	} else {
		c.OptimizedAt = nil
	}
	return nil
}

// fakeGenerator returns canned rewrites, with optional per-call hooks
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	rewrite func(call int, req genai.RewriteRequest) (*genai.RewriteResult, error)
}

func (g *fakeGenerator) Rewrite(ctx context.Context, req genai.RewriteRequest) (*genai.RewriteResult, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	fn := g.rewrite
	g.mu.Unlock()

	if fn != nil {
		return fn(call, req)
	}
	return okRewrite(req), nil
}

// okRewrite produces a valid result exactly at the target word count
func okRewrite(req genai.RewriteRequest) *genai.RewriteResult {
	text := ""
	for i := 0; i < req.TargetWordCount; i++ {
		text += fmt.Sprintf("word%d ", i)
	}
	return &genai.RewriteResult{
		Text:         text,
		WordCount:    req.TargetWordCount,
		InputTokens:  100,
		OutputTokens: 80,
		Cost:         0.002,
		Valid:        true,
	}
}
