package jobs

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Option func(*Service)

func WithRand(r Rand) Option {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithFinePolicy(p FinePolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithTimeouts bounds each store transaction and each notification batch.
// Non-positive values keep the defaults.
func WithTimeouts(ledger, notify time.Duration) Option {
	return func(s *Service) {
		if ledger > 0 {
			s.ledgerTimeout = ledger
		}
		if notify > 0 {
			s.notifyTimeout = notify
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithStarterBalance(amount int64) Option {
	return func(s *Service) {
		if amount >= 0 {
			s.starterBalance = amount
		}
	}
}
