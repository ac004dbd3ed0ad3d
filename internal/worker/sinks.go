package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"talentbook/internal/domain"
	"talentbook/internal/events"
	"talentbook/internal/models"
)

// RedisSink publishes every committed event to the fan-out channel.
type RedisSink struct {
	publisher domain.EventPublisher
}

func NewRedisSink(publisher domain.EventPublisher) *RedisSink {
	return &RedisSink{publisher: publisher}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, event *models.Event) error {
	return s.publisher.PublishJSON(ctx, event.EventType, json.RawMessage(event.Payload))
}

// NotifySink forwards events to the operations channel. The notifier
// decides which event types are worth a message.
type NotifySink struct {
	notifier domain.Notifier
}

func NewNotifySink(notifier domain.Notifier) *NotifySink {
	return &NotifySink{notifier: notifier}
}

func (s *NotifySink) Name() string { return "notify" }

func (s *NotifySink) Deliver(ctx context.Context, event *models.Event) error {
	return s.notifier.NotifyEvent(ctx, event)
}

// PayoutSink records approved withdrawals on the finance side. All
// other events pass through untouched.
type PayoutSink struct {
	writer domain.PayoutWriter
}

func NewPayoutSink(writer domain.PayoutWriter) *PayoutSink {
	return &PayoutSink{writer: writer}
}

func (s *PayoutSink) Name() string { return "payout" }

func (s *PayoutSink) Deliver(ctx context.Context, event *models.Event) error {
	if event.EventType != events.EventWithdrawalDone {
		return nil
	}

	var payload events.WithdrawalPayload
	if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
		return fmt.Errorf("decode withdrawal payload: %w", err)
	}
	if payload.Status != models.ResolutionApproved {
		return nil
	}

	return s.writer.AppendPayout(ctx, payload)
}
