package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// Metrics holds all Prometheus metrics. It implements usecase.Recorder.
type Metrics struct {
	// Ledger metrics
	BondsDeposited   prometheus.Counter
	BondsWithdrawn   prometheus.Counter
	ExpensesProposed prometheus.Counter
	ExpensesClosed   *prometheus.CounterVec
	DisputesOpened   prometheus.Counter
	DisputeVotes     prometheus.Counter
	Settlements      *prometheus.CounterVec
	GroupsCreated    prometheus.Counter

	// Use case metrics
	Operations        *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationAmount   *prometheus.HistogramVec

	// API metrics
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	HTTPInFlight   prometheus.Gauge
	RateLimitHits  prometheus.Counter
	AuthFailures   *prometheus.CounterVec
	IdempotentHits prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		BondsDeposited: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_bonds_deposited_total",
			Help: "Total number of bond deposits",
		}),
		BondsWithdrawn: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_bonds_withdrawn_total",
			Help: "Total number of bond withdrawals",
		}),
		ExpensesProposed: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_expenses_proposed_total",
			Help: "Total number of expenses proposed",
		}),
		ExpensesClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_expenses_closed_total",
				Help: "Expenses reaching a terminal status",
			},
			[]string{"status"},
		),
		DisputesOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_disputes_opened_total",
			Help: "Total number of disputes opened",
		}),
		DisputeVotes: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_dispute_votes_total",
			Help: "Total number of dispute votes cast",
		}),
		Settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_settlements_total",
				Help: "Settlements by kind",
			},
			[]string{"kind"},
		),
		GroupsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_groups_created_total",
			Help: "Total number of groups created",
		}),

		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_operations_total",
				Help: "Use case operations by outcome",
			},
			[]string{"operation", "status"},
		),
		OperationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_operation_errors_total",
				Help: "Failed operations by error code",
			},
			[]string{"operation", "code"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bondtab_operation_duration_seconds",
				Help:    "Duration of use case operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		OperationAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bondtab_operation_amount_units",
				Help:    "Amounts moved by operations, in whole units",
				Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"operation"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bondtab_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "bondtab_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
		RateLimitHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		}),
		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),
		IdempotentHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_idempotent_replays_total",
			Help: "Responses served from the idempotency store",
		}),

		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bondtab_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bondtab_event_publish_errors_total",
			Help: "Outbox publish failures",
		}),
	}
}

// ObserveOperation records the outcome of a use case operation.
func (m *Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.Operations.WithLabelValues(operation, "error").Inc()
		m.OperationErrors.WithLabelValues(operation, domain.ErrorCode(err)).Inc()
		return
	}
	m.Operations.WithLabelValues(operation, "ok").Inc()

	switch operation {
	case "create_group":
		m.GroupsCreated.Inc()
	case "deposit_bond":
		m.BondsDeposited.Inc()
	case "withdraw_bond":
		m.BondsWithdrawn.Inc()
	case "propose_expense":
		m.ExpensesProposed.Inc()
	case "finalize_expense":
		m.ExpensesClosed.WithLabelValues(domain.ExpenseStatusFinalized.String()).Inc()
	case "challenge_expense":
		m.DisputesOpened.Inc()
	case "vote_on_dispute":
		m.DisputeVotes.Inc()
	case "resolve_dispute":
		m.ExpensesClosed.WithLabelValues("resolved").Inc()
	case "settle_batch":
		m.Settlements.WithLabelValues("batch").Inc()
	case "settle_from_bond":
		m.Settlements.WithLabelValues("bond").Inc()
	}
}

// ObserveAmount records an amount moved by operation.
func (m *Metrics) ObserveAmount(operation string, amount decimal.Decimal) {
	m.OperationAmount.WithLabelValues(operation).Observe(amount.InexactFloat64())
}

// EventPublished counts a delivered outbox event.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// PublishFailed counts a failed outbox delivery.
func (m *Metrics) PublishFailed() {
	m.PublishErrors.Inc()
}
