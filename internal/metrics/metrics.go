package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentbook",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries by transaction type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentbook",
			Name:      "booking_transitions_total",
			Help:      "Booking state transitions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	lockConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentbook",
			Name:      "lock_conflicts_total",
			Help:      "Optimistic-lock conflicts by operation.",
		},
		[]string{"operation"},
	)

	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "talentbook",
			Name:      "outbox_pending_events",
			Help:      "Events awaiting delivery.",
		},
	)

	eventDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentbook",
			Name:      "event_deliveries_total",
			Help:      "Outbox delivery attempts by sink and outcome.",
		},
		[]string{"sink", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			ledgerEntries,
			bookingTransitions,
			lockConflicts,
			outboxPending,
			eventDeliveries,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncLedgerEntry(txType, outcome string) {
	ledgerEntries.WithLabelValues(txType, outcome).Inc()
}

func IncBookingTransition(action, outcome string) {
	bookingTransitions.WithLabelValues(action, outcome).Inc()
}

func IncLockConflict(operation string) {
	lockConflicts.WithLabelValues(operation).Inc()
}

func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

func IncEventDelivery(sink, outcome string) {
	eventDeliveries.WithLabelValues(sink, outcome).Inc()
}
