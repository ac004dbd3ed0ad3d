package worker

import (
	"context"
	"time"

	"talentbook/internal/domain"
	"talentbook/internal/metrics"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
)

// OutboxWorker drains the transactional event outbox and delivers each
// committed event to every configured sink. Delivery is at-least-once:
// a sink error schedules the whole event for retry with backoff, and
// events that exhaust their attempts land in failed state for manual
// replay.
type OutboxWorker struct {
	repo         domain.Repository
	sinks        []domain.EventSink
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

func NewOutboxWorker(repo domain.Repository, sinks []domain.EventSink, retry RetryPolicy, pollInterval time.Duration, batchSize int, logger *zerolog.Logger) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = models.DefaultOutboxBatch
	}

	return &OutboxWorker{
		repo:         repo,
		sinks:        sinks,
		retryPolicy:  retry,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start runs the delivery loop until the context is cancelled.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Int("sinks", len(w.sinks)).Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed := w.DrainOnce(ctx)
		if processed == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// DrainOnce processes one batch of due events and returns how many it
// picked up.
func (w *OutboxWorker) DrainOnce(ctx context.Context) int {
	events, err := w.repo.GetPendingEvents(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending events")
		return 0
	}

	for _, event := range events {
		w.deliver(ctx, event)
	}

	if pending, err := w.repo.CountPendingEvents(ctx); err == nil {
		metrics.SetOutboxPending(pending)
	}

	return len(events)
}

func (w *OutboxWorker) deliver(ctx context.Context, event *models.Event) {
	for _, sink := range w.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			metrics.IncEventDelivery(sink.Name(), "error")
			w.retryOrFail(ctx, event, sink.Name(), err)
			return
		}
		metrics.IncEventDelivery(sink.Name(), "ok")
	}

	if err := w.repo.UpdateEventStatus(ctx, event.Seq, models.EventProcessed, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("seq", event.Seq).Msg("mark event processed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, event *models.Event, sinkName string, cause error) {
	attempt := event.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.logger.Error().Err(cause).
			Int64("seq", event.Seq).
			Str("event_type", event.EventType).
			Str("sink", sinkName).
			Msg("event delivery failed permanently")
		if err := w.repo.UpdateEventStatus(ctx, event.Seq, models.EventFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("seq", event.Seq).Msg("mark event failed")
		}
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).
		Int64("seq", event.Seq).
		Str("sink", sinkName).
		Time("next_retry", nextTime).
		Msg("event delivery failed, will retry")
	if err := w.repo.UpdateEventStatus(ctx, event.Seq, models.EventRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("seq", event.Seq).Msg("mark event retry")
	}
}
