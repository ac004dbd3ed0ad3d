package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"talentbook/internal/database"
	"talentbook/internal/domain"
	"talentbook/internal/events"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// enqueueEvent writes one outbox row through a ledger credit.
func enqueueEvent(t *testing.T, db *database.DB, userID string) {
	t.Helper()
	_, err := db.ApplyLedgerEntry(context.Background(), userID, 100, models.TxPurchase, "", "test funding")
	require.NoError(t, err)
}

type recordingSink struct {
	mu        sync.Mutex
	name      string
	delivered []*models.Event
	err       error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestDrainOnceDeliversAndMarksProcessed(t *testing.T) {
	db := newTestRepo(t)
	logger := zerolog.Nop()
	sink := &recordingSink{name: "test"}
	w := NewOutboxWorker(db, []domain.EventSink{sink}, RetryPolicy{}, time.Second, 10, &logger)
	ctx := context.Background()

	enqueueEvent(t, db, "u1")
	enqueueEvent(t, db, "u2")

	processed := w.DrainOnce(ctx)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 2, sink.count())

	count, err := db.CountPendingEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// nothing left on the next pass
	assert.Equal(t, 0, w.DrainOnce(ctx))
}

func TestSinkFailureSchedulesRetry(t *testing.T) {
	db := newTestRepo(t)
	logger := zerolog.Nop()
	sink := &recordingSink{name: "flaky", err: errors.New("downstream unavailable")}
	w := NewOutboxWorker(db, []domain.EventSink{sink}, RetryPolicy{MaxRetries: 3}, time.Second, 10, &logger)
	ctx := context.Background()

	enqueueEvent(t, db, "u1")
	w.DrainOnce(ctx)

	// still pending, but gated behind next_retry_at
	count, err := db.CountPendingEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	due, err := db.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	db := newTestRepo(t)
	logger := zerolog.Nop()
	sink := &recordingSink{name: "broken", err: errors.New("downstream unavailable")}
	w := NewOutboxWorker(db, []domain.EventSink{sink}, RetryPolicy{MaxRetries: 2, InitialDelay: time.Nanosecond}, time.Second, 10, &logger)
	ctx := context.Background()

	enqueueEvent(t, db, "u1")

	// first attempt schedules a retry, second gives up
	w.DrainOnce(ctx)
	time.Sleep(2 * time.Millisecond)
	w.DrainOnce(ctx)

	count, err := db.CountPendingEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	all, err := db.ListEventsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.EventFailed, all[0].Status)
	assert.Equal(t, "downstream unavailable", all[0].LastError)
}

func TestFailedSinkBlocksLaterSinks(t *testing.T) {
	db := newTestRepo(t)
	logger := zerolog.Nop()
	first := &recordingSink{name: "first", err: errors.New("boom")}
	second := &recordingSink{name: "second"}
	w := NewOutboxWorker(db, []domain.EventSink{first, second}, RetryPolicy{MaxRetries: 3}, time.Second, 10, &logger)

	enqueueEvent(t, db, "u1")
	w.DrainOnce(context.Background())

	// the whole event retries; the second sink never saw it
	assert.Equal(t, 0, second.count())
}

func TestStartStopsOnCancel(t *testing.T) {
	db := newTestRepo(t)
	logger := zerolog.Nop()
	sink := &recordingSink{name: "test"}
	w := NewOutboxWorker(db, []domain.EventSink{sink}, RetryPolicy{}, 5*time.Millisecond, 10, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	enqueueEvent(t, db, "u1")
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 10*time.Second, policy.NextDelay(10))
	assert.Equal(t, time.Second, policy.NextDelay(0))
}

func TestPayoutSinkFiltersEvents(t *testing.T) {
	writer := &recordingPayoutWriter{}
	sink := NewPayoutSink(writer)
	ctx := context.Background()

	approved, err := events.New(models.EntityWithdrawal, "w-1", events.EventWithdrawalDone, models.ResolutionApproved,
		events.WithdrawalPayload{RequestID: "w-1", TalentID: "talent", Amount: 1500, Status: models.ResolutionApproved})
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(ctx, approved))
	require.Len(t, writer.payouts, 1)
	assert.Equal(t, int64(1500), writer.payouts[0].Amount)

	rejected, err := events.New(models.EntityWithdrawal, "w-2", events.EventWithdrawalDone, models.ResolutionRejected,
		events.WithdrawalPayload{RequestID: "w-2", Status: models.ResolutionRejected})
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(ctx, rejected))
	assert.Len(t, writer.payouts, 1)

	other, err := events.New(models.EntityBooking, "b-1", events.EventBookingCreated, models.BookingPaymentPending, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(ctx, other))
	assert.Len(t, writer.payouts, 1)
}

type recordingPayoutWriter struct {
	payouts []events.WithdrawalPayload
}

func (w *recordingPayoutWriter) AppendPayout(ctx context.Context, payout events.WithdrawalPayload) error {
	w.payouts = append(w.payouts, payout)
	return nil
}
