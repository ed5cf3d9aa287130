package jobs

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	actions     *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	promotions  *prometheus.CounterVec
	earned      prometheus.Counter
	fined       prometheus.Counter
	txDuration  *prometheus.HistogramVec
	notifyFails prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	auto := promauto.With(reg)
	return &Metrics{
		actions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "actions_total",
			Help:      "Completed engine actions by outcome kind.",
		}, []string{"outcome"}),
		rejections: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "rejections_total",
			Help:      "Rejected engine actions by reason.",
		}, []string{"reason"}),
		promotions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "promotions_total",
			Help:      "Level changes by kind (random, guaranteed, trap).",
		}, []string{"kind"}),
		earned: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "salary_paid_total",
			Help:      "Currency credited as salary.",
		}),
		fined: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "fined_total",
			Help:      "Currency moved between participants by fines, bonus included.",
		}),
		txDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency including store retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		notifyFails: auto.NewCounter(prometheus.CounterOpts{
			Namespace: "payday",
			Subsystem: "jobs",
			Name:      "notify_failures_total",
			Help:      "Outcome notifications that could not be delivered.",
		}),
	}
}

func (m *Metrics) observeOutcome(out Outcome) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(out.Kind)).Inc()
	if out.Earned > 0 {
		m.earned.Add(float64(out.Earned))
	}
	if out.Fine != nil {
		m.fined.Add(float64(out.Fine.Total))
	}
	if out.Promotion.Kind != PromotionNone && out.Promotion.Kind != "" {
		m.promotions.WithLabelValues(string(out.Promotion.Kind)).Inc()
	}
}

func (m *Metrics) observeRejection(err error) {
	if m == nil || err == nil {
		return
	}
	m.rejections.WithLabelValues(rejectionReason(err)).Inc()
}

func (m *Metrics) observeDuration(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFails.Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, ErrNoJob):
		return "no_job"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrBanned):
		return "banned"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrTargetIneligible):
		return "target_ineligible"
	case errors.Is(err, ErrTargetProtected):
		return "target_protected"
	case errors.Is(err, ErrInsufficientVictimFunds):
		return "insufficient_victim_funds"
	case errors.Is(err, ErrAlreadyEmployed):
		return "already_employed"
	case errors.Is(err, ErrUnknownProfession):
		return "unknown_profession"
	case errors.Is(err, ErrDuplicateIdempotency):
		return "duplicate"
	case errors.Is(err, ErrTxConflict):
		return "tx_conflict"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}
