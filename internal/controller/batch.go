package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"refinery/internal/aws"
	"refinery/internal/cache"
	"refinery/internal/config"
	"refinery/internal/database"
	"refinery/internal/engine"
	"refinery/internal/model"
	"refinery/internal/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatchDetail is the full read model for one batch: the record itself,
// authoritative per-status version counts, and the most recent versions.
type BatchDetail struct {
	Batch          *model.OptimizationBatch  `json:"batch"`
	VersionCounts  model.VersionStatusCounts `json:"versionCounts"`
	RecentVersions []model.ContentVersion    `json:"recentVersions"`
}

// BatchController handles batch operations
type BatchController interface {
	// CreateBatch resolves the target set and stores a new pending batch
	CreateBatch(ctx context.Context, opts model.BatchOptions, filter model.ClinicFilter, tokenID string) (*model.OptimizationBatch, error)

	// GetBatch returns the batch detail, served from cache when fresh
	GetBatch(ctx context.Context, batchID string) (*BatchDetail, error)

	// ListBatches lists batches, optionally filtered by status
	ListBatches(ctx context.Context, status model.BatchStatus, limit, offset int) ([]*model.OptimizationBatch, error)

	// ExecuteBatch enqueues a start/resume request and returns a live
	// subscription to the batch's progress feed
	ExecuteBatch(ctx context.Context, batchID string, tokenID string) (<-chan engine.Event, func(), error)

	// PauseBatch requests a cooperative pause of the active run
	PauseBatch(ctx context.Context, batchID string) error

	// CancelBatch discards a batch that is not actively processing
	CancelBatch(ctx context.Context, batchID string) error

	// RollbackBatch restores original content for all applied versions
	RollbackBatch(ctx context.Context, batchID string) (int, []engine.RollbackFailure, error)

	// ExportBatch uploads a JSON result report and returns its URL
	ExportBatch(ctx context.Context, batchID string) (string, error)

	// StartConsumer begins consuming execution requests from the queue
	StartConsumer(ctx context.Context) error

	// StopConsumer drains and stops the consumer
	StopConsumer()
}

type batchController struct {
	db           database.Database
	cache        cache.Cache
	rabbitClient rabbitmq.Client
	rabbitConfig config.RabbitMQConfig
	reports      aws.ReportService
	optimizer    config.OptimizerConfig
	batchTTL     time.Duration
	engine       *engine.Engine
	rollback     *engine.RollbackOperator
	consumerTag  string
	shutdown     chan struct{}
	wg           sync.WaitGroup
}

func NewBatch(db database.Database, c cache.Cache, rabbitClient rabbitmq.Client, cfg *config.Config,
	reports aws.ReportService, eng *engine.Engine) BatchController {
	return &batchController{
		db:           db,
		cache:        c,
		rabbitClient: rabbitClient,
		rabbitConfig: cfg.RabbitMQ,
		reports:      reports,
		optimizer:    cfg.Optimizer,
		batchTTL:     time.Duration(cfg.Redis.BatchTTLSeconds) * time.Second,
		engine:       eng,
		rollback:     engine.NewRollbackOperator(db, db),
		shutdown:     make(chan struct{}),
	}
}

func batchCacheKey(batchID string) string {
	return "batch:" + batchID
}

// CreateBatch snapshots the eligible target set under the requested filter
// and stores a new pending batch. The snapshot is capped at the batch size
// so the run has a fixed, deterministic workload.
func (c *batchController) CreateBatch(ctx context.Context, opts model.BatchOptions, filter model.ClinicFilter, tokenID string) (*model.OptimizationBatch, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = c.optimizer.DefaultBatchSize
	}
	if opts.ReviewFrequency <= 0 {
		opts.ReviewFrequency = c.optimizer.DefaultReviewFrequency
	}
	if opts.TargetWordCount <= 0 {
		opts.TargetWordCount = c.optimizer.DefaultTargetWordCount
	}
	if opts.Model == "" {
		opts.Model = c.optimizer.DefaultModel
	}

	targetIDs, err := c.db.ListEligibleClinicIDs(ctx, filter, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("resolving eligible clinics: %w", err)
	}
	if len(targetIDs) == 0 {
		return nil, fmt.Errorf("no clinics match the filter: %w", model.ErrInvalidState)
	}

	batch := &model.OptimizationBatch{
		ID:           primitive.NewObjectID(),
		Status:       model.BatchPending,
		Options:      opts,
		Filter:       filter,
		TargetIDs:    targetIDs,
		TotalClinics: len(targetIDs),
		Errors:       []model.BatchError{},
		TokenID:      tokenID,
	}

	if err := c.db.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	log.Info().
		Str("batchId", batch.ID.Hex()).
		Int("totalClinics", batch.TotalClinics).
		Str("city", filter.City).
		Str("specialty", filter.Specialty).
		Msg("Batch created")

	return batch, nil
}

// GetBatch assembles the batch detail. The assembled response is cached
// briefly; a stale read only lags progress counters by the TTL.
func (c *batchController) GetBatch(ctx context.Context, batchID string) (*BatchDetail, error) {
	id, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return nil, fmt.Errorf("invalid batch ID format: %w", model.ErrNotFound)
	}

	key := batchCacheKey(batchID)
	if cached, err := c.cache.Get(ctx, key); err == nil {
		var detail BatchDetail
		if err := json.Unmarshal(cached, &detail); err == nil {
			return &detail, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable cached batch detail")
	}

	batch, err := c.db.GetBatchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	counts, err := c.db.CountVersionsByStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	recent, err := c.db.ListVersionsByBatch(ctx, id, "", 20, 0)
	if err != nil {
		return nil, err
	}

	detail := &BatchDetail{
		Batch:          batch,
		VersionCounts:  counts,
		RecentVersions: recent,
	}

	if body, err := json.Marshal(detail); err == nil {
		if err := c.cache.Set(ctx, key, body, c.batchTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache batch detail")
		}
	}

	return detail, nil
}

func (c *batchController) ListBatches(ctx context.Context, status model.BatchStatus, limit, offset int) ([]*model.OptimizationBatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return c.db.ListBatches(ctx, status, limit, offset)
}

// ExecuteBatch validates the batch can run, subscribes to its progress
// feed, then enqueues the execution request. Subscribing before publishing
// guarantees the caller misses no events. The returned cancel only detaches
// the subscription; processing continues regardless.
func (c *batchController) ExecuteBatch(ctx context.Context, batchID string, tokenID string) (<-chan engine.Event, func(), error) {
	id, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid batch ID format: %w", model.ErrNotFound)
	}

	batch, err := c.db.GetBatchByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if !batch.Status.Resumable() {
		return nil, nil, fmt.Errorf("batch cannot be executed from status %q: %w", batch.Status, model.ErrInvalidState)
	}
	if c.engine.Registry().IsActive(batchID) {
		return nil, nil, fmt.Errorf("batch already has an active run: %w", model.ErrConflict)
	}

	events, cancel := c.engine.Hub().Subscribe(batchID)

	msg := rabbitmq.ExecuteMessage{
		BatchID:     batchID,
		RequestedBy: tokenID,
		RequestedAt: time.Now(),
	}
	if err := rabbitmq.PublishExecute(c.rabbitClient, c.rabbitConfig.ExchangeName, msg); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to enqueue batch execution: %w", err)
	}

	c.invalidate(ctx, batchID)

	log.Info().
		Str("batchId", batchID).
		Str("requestedBy", tokenID).
		Msg("Batch execution enqueued")

	return events, cancel, nil
}

// PauseBatch raises the pause flag on the active run. The run stops at the
// next item boundary; the in-flight item is always fully recorded first.
func (c *batchController) PauseBatch(ctx context.Context, batchID string) error {
	id, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return fmt.Errorf("invalid batch ID format: %w", model.ErrNotFound)
	}

	if _, err := c.db.GetBatchByID(ctx, id); err != nil {
		return err
	}

	if err := c.engine.Registry().RequestPause(batchID); err != nil {
		return err
	}

	c.invalidate(ctx, batchID)
	return nil
}

// CancelBatch discards a batch and its unreviewed versions. Applied
// versions are kept: cancel never touches live content, rollback does.
func (c *batchController) CancelBatch(ctx context.Context, batchID string) error {
	id, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return fmt.Errorf("invalid batch ID format: %w", model.ErrNotFound)
	}

	batch, err := c.db.GetBatchByID(ctx, id)
	if err != nil {
		return err
	}

	if batch.Status == model.BatchProcessing || c.engine.Registry().IsActive(batchID) {
		return fmt.Errorf("batch is processing, pause it before cancelling: %w", model.ErrInvalidState)
	}

	deleted, err := c.db.DeleteVersionsByBatch(ctx, id, model.VersionPending)
	if err != nil {
		return fmt.Errorf("deleting pending versions: %w", err)
	}

	if err := c.db.DeleteBatch(ctx, id); err != nil {
		return err
	}

	c.invalidate(ctx, batchID)

	log.Info().
		Str("batchId", batchID).
		Int64("pendingVersionsDeleted", deleted).
		Msg("Batch cancelled")

	return nil
}

func (c *batchController) RollbackBatch(ctx context.Context, batchID string) (int, []engine.RollbackFailure, error) {
	id, err := primitive.ObjectIDFromHex(batchID)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid batch ID format: %w", model.ErrNotFound)
	}

	if _, err := c.db.GetBatchByID(ctx, id); err != nil {
		return 0, nil, err
	}

	rolledBack, failures, err := c.rollback.RollbackBatch(ctx, id)
	if err != nil {
		return 0, nil, err
	}

	c.invalidate(ctx, batchID)
	return rolledBack, failures, nil
}

// ExportBatch builds a JSON result report for a batch and uploads it to
// object storage.
func (c *batchController) ExportBatch(ctx context.Context, batchID string) (string, error) {
	detail, err := c.GetBatch(ctx, batchID)
	if err != nil {
		return "", err
	}

	versions, err := c.db.ListVersionsByBatch(ctx, detail.Batch.ID, "", 0, 0)
	if err != nil {
		return "", err
	}

	report := struct {
		GeneratedAt   time.Time                 `json:"generatedAt"`
		Batch         *model.OptimizationBatch  `json:"batch"`
		VersionCounts model.VersionStatusCounts `json:"versionCounts"`
		Versions      []model.ContentVersion    `json:"versions"`
	}{
		GeneratedAt:   time.Now(),
		Batch:         detail.Batch,
		VersionCounts: detail.VersionCounts,
		Versions:      versions,
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	key := fmt.Sprintf("reports/batch-%s-%d.json", batchID, time.Now().Unix())
	url, err := c.reports.UploadReport(ctx, key, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	log.Info().
		Str("batchId", batchID).
		Str("url", url).
		Int("size", len(body)).
		Msg("Batch report exported")

	return url, nil
}

func (c *batchController) invalidate(ctx context.Context, batchID string) {
	if err := c.cache.Delete(ctx, batchCacheKey(batchID)); err != nil {
		log.Warn().Err(err).Str("batchId", batchID).Msg("Failed to invalidate batch cache")
	}
}

// StartConsumer declares the queue topology and begins consuming execution
// requests
func (c *batchController) StartConsumer(ctx context.Context) error {
	if err := rabbitmq.SetupTopology(c.rabbitClient, c.rabbitConfig.ExchangeName, c.rabbitConfig.QueueName); err != nil {
		return fmt.Errorf("failed to set up queue topology: %w", err)
	}

	c.consumerTag = fmt.Sprintf("optimizer-consumer-%s", primitive.NewObjectID().Hex())
	c.startConsumer(ctx, c.rabbitConfig.QueueName, c.consumerTag)

	log.Info().Str("queue", c.rabbitConfig.QueueName).Msg("Batch execution consumer started")
	return nil
}

// StopConsumer stops the consumer and waits for in-flight runs to settle
func (c *batchController) StopConsumer() {
	close(c.shutdown)
	c.wg.Wait()
	log.Info().Msg("Batch execution consumer stopped")
}

func (c *batchController) startConsumer(ctx context.Context, queueName, consumerTag string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		log.Info().
			Str("queue", queueName).
			Str("consumerTag", consumerTag).
			Msg("Starting execution consumer")

		for {
			select {
			case <-ctx.Done():
				log.Info().
					Str("consumerTag", consumerTag).
					Msg("Context cancelled, stopping consumer")
				return
			case <-c.shutdown:
				log.Info().
					Str("consumerTag", consumerTag).
					Msg("Shutdown signal received, stopping consumer")
				return
			default:
				// Continue processing
			}

			deliveries, err := c.rabbitClient.Consume(queueName, consumerTag)
			if err != nil {
				log.Error().
					Err(err).
					Str("queue", queueName).
					Str("consumerTag", consumerTag).
					Msg("Failed to consume from queue")

				time.Sleep(5 * time.Second)
				continue
			}

			for delivery := range deliveries {
				c.processDelivery(ctx, delivery)
			}

			// If we reach here, the channel was closed
			log.Warn().
				Str("queue", queueName).
				Str("consumerTag", consumerTag).
				Msg("Consumer channel closed, reconnecting...")

			time.Sleep(5 * time.Second)
		}
	}()
}

// processDelivery handles one execution request. The run owns the batch for
// its duration; stream subscribers observe it through the hub and their
// disconnect never affects processing here.
func (c *batchController) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	var msg rabbitmq.ExecuteMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Error().Err(err).Msg("Malformed execution message, rejecting")
		delivery.Nack(false, false) // Don't requeue malformed messages
		return
	}

	batchID, err := primitive.ObjectIDFromHex(msg.BatchID)
	if err != nil {
		log.Error().Str("batchId", msg.BatchID).Msg("Invalid batch id in execution message, rejecting")
		delivery.Nack(false, false)
		return
	}

	logger := log.With().Str("batchId", msg.BatchID).Logger()
	logger.Info().Msg("Processing batch execution request")

	if err := c.engine.Run(ctx, batchID); err != nil {
		// Run already persisted the failed status and published the
		// terminal event; nothing to retry from here.
		logger.Error().Err(err).Msg("Batch run ended with error")
	} else {
		logger.Info().Msg("Batch run finished")
	}

	c.invalidate(ctx, msg.BatchID)
	delivery.Ack(false)
}
