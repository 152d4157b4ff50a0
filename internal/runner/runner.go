package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aidimport/internal/batch"
	"aidimport/internal/config"
	"aidimport/internal/controller"
	"aidimport/internal/model"
	"aidimport/internal/rabbitmq"
	"aidimport/pkg/iati"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Runner resumes stalled batches server-side. A run request lands on the
// queue, the runner re-fetches records for the batch's still-queued items
// from the datastore, and a fresh controller drives the remainder. This is
// the deliberate answer to "who restarts an import the client walked away
// from" — the batch store holds all progress, the runner supplies the drive.
type Runner interface {
	// Start begins consuming run requests
	Start(ctx context.Context) error

	// EnqueueRun requests a resume of the given batch
	EnqueueRun(batchID string) error

	// Stop drains the consumer
	Stop()
}

type runner struct {
	svc       batch.Service
	audit     controller.AuditController
	datastore iati.Client
	rabbit    rabbitmq.Client
	rabbitCfg config.RabbitMQConfig
	batchCfg  config.BatchConfig

	consumerTag string
	shutdown    chan struct{}
	wg          sync.WaitGroup
}

// New creates a batch run consumer
func New(svc batch.Service, audit controller.AuditController, datastore iati.Client,
	rabbit rabbitmq.Client, rabbitCfg config.RabbitMQConfig, batchCfg config.BatchConfig) Runner {
	return &runner{
		svc:       svc,
		audit:     audit,
		datastore: datastore,
		rabbit:    rabbit,
		rabbitCfg: rabbitCfg,
		batchCfg:  batchCfg,
		shutdown:  make(chan struct{}),
	}
}

// EnqueueRun publishes a run request for the batch
func (r *runner) EnqueueRun(batchID string) error {
	headers := amqp.Table{
		"batch_id": batchID,
	}

	message := map[string]string{
		"batch_id": batchID,
	}

	err := r.rabbit.PublishJSON(
		r.rabbitCfg.ExchangeName,
		r.rabbitCfg.RunQueueName,
		message,
		headers,
	)
	if err != nil {
		return fmt.Errorf("failed to publish run request: %w", err)
	}

	log.Info().Str("batchID", batchID).Msg("Batch run enqueued")
	return nil
}

// Start declares the topology and begins consuming run requests
func (r *runner) Start(ctx context.Context) error {
	err := r.rabbit.DeclareExchange(r.rabbitCfg.ExchangeName, "direct")
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := r.rabbit.DeclareQueue(r.rabbitCfg.RunQueueName)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", r.rabbitCfg.RunQueueName, err)
	}

	err = r.rabbit.BindQueue(r.rabbitCfg.RunQueueName, r.rabbitCfg.ExchangeName, r.rabbitCfg.RunQueueName)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", r.rabbitCfg.RunQueueName, err)
	}

	r.consumerTag = fmt.Sprintf("batch-runner-%s", uuid.NewString())
	r.startConsumer(ctx, queue.Name, r.consumerTag)

	log.Info().Str("queue", queue.Name).Msg("Batch runner started")
	return nil
}

// Stop stops the consumer and waits for in-flight runs
func (r *runner) Stop() {
	close(r.shutdown)
	r.wg.Wait()
	log.Info().Msg("Batch runner stopped")
}

func (r *runner) startConsumer(ctx context.Context, queueName, consumerTag string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("consumerTag", consumerTag).Msg("Context cancelled, stopping batch runner")
				return
			case <-r.shutdown:
				log.Info().Str("consumerTag", consumerTag).Msg("Shutdown signal received, stopping batch runner")
				return
			default:
			}

			deliveries, err := r.rabbit.Consume(queueName, consumerTag)
			if err != nil {
				log.Error().Err(err).Str("queue", queueName).Msg("Failed to consume from run queue")
				time.Sleep(5 * time.Second)
				continue
			}

			for delivery := range deliveries {
				r.processDelivery(ctx, delivery)
			}

			log.Warn().Str("queue", queueName).Msg("Run consumer channel closed, reconnecting...")
			time.Sleep(5 * time.Second)
		}
	}()
}

// processDelivery resumes one batch
func (r *runner) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	batchID, ok := delivery.Headers["batch_id"].(string)
	if !ok {
		log.Error().Msg("Run message missing batch_id header, rejecting")
		delivery.Nack(false, false) // Don't requeue malformed messages
		return
	}

	logger := log.With().Str("batchID", batchID).Logger()
	logger.Info().Msg("Processing batch run request")

	job, err := r.svc.GetStatus(ctx, batchID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load batch for run")
		delivery.Nack(false, false)
		return
	}

	if job.Status != model.BatchRunning {
		logger.Info().Str("status", string(job.Status)).Msg("Batch already terminal, nothing to run")
		delivery.Ack(false)
		return
	}

	queued := job.QueuedIdentifiers()
	if len(queued) == 0 {
		logger.Info().Msg("No queued items left on batch")
		delivery.Ack(false)
		return
	}

	records, err := r.datastore.FetchActivitiesByIdentifiers(ctx, queued)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch records for resume")
		// Transient datastore trouble; requeue once via the broker
		delivery.Nack(false, !delivery.Redelivered)
		return
	}

	run := controller.NewRun(r.svc, controller.NopObserver{}, r.batchCfg)
	result, err := run.Resume(ctx, batchID, records)
	if err != nil {
		logger.Error().Err(err).Msg("Batch resume failed to start")
		delivery.Nack(false, false)
		return
	}

	if _, err := r.audit.RecordRun(ctx, result); err != nil {
		logger.Error().Err(err).Msg("Failed to record resumed run")
	}

	logger.Info().Bool("success", result.Success).Msg("Batch run processed")
	delivery.Ack(false)
}
