package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
)

// Run is the handle for one active batch run. Pause is cooperative: the
// loop checks the flag between items and never pre-empts an in-flight
// generation call.
type Run struct {
	batchID string
	pause   int32
	started time.Time
}

// RequestPause raises the pause flag. The loop honors it at the next safe
// point, after the current item has been fully recorded.
func (r *Run) RequestPause() {
	atomic.StoreInt32(&r.pause, 1)
}

// PauseRequested reports whether a pause has been requested
func (r *Run) PauseRequested() bool {
	return atomic.LoadInt32(&r.pause) == 1
}

// Registry tracks the active run per batch. Each batch is processed by at
// most one sequential loop; distinct batches run concurrently as
// independent loops.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Run
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Run)}
}

func (g *Registry) begin(batchID string) (*Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.active[batchID]; exists {
		return nil, fmt.Errorf("batch %s already has an active run: %w", batchID, model.ErrConflict)
	}

	run := &Run{batchID: batchID, started: time.Now()}
	g.active[batchID] = run

	log.Debug().Str("batchId", batchID).Msg("Batch run registered")
	return run, nil
}

func (g *Registry) end(batchID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, batchID)
}

// RequestPause signals the active run for a batch. Returns ErrInvalidState
// when the batch has no active run (it is not processing).
func (g *Registry) RequestPause(batchID string) error {
	g.mu.Lock()
	run, exists := g.active[batchID]
	g.mu.Unlock()

	if !exists {
		return fmt.Errorf("batch %s is not processing: %w", batchID, model.ErrInvalidState)
	}

	run.RequestPause()
	log.Info().Str("batchId", batchID).Msg("Pause requested")
	return nil
}

// IsActive reports whether a batch currently has a run loop
func (g *Registry) IsActive(batchID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, exists := g.active[batchID]
	return exists
}
