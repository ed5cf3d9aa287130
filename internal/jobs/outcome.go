package jobs

import (
	"context"
	"time"
)

type OutcomeKind string

const (
	OutcomeEarned     OutcomeKind = "earned"
	OutcomePromoted   OutcomeKind = "promoted"
	OutcomeTrapSprung OutcomeKind = "trap_sprung"
	OutcomeFined      OutcomeKind = "fined"
)

type Outcome struct {
	Kind        OutcomeKind `json:"kind"`
	Actor       string      `json:"actor"`
	Profession  Profession  `json:"profession"`
	Level       int         `json:"level"`
	Title       string      `json:"title"`
	TimesWorked int         `json:"times_worked"`
	Earned      int64       `json:"earned"`
	Promotion   Promotion   `json:"promotion"`
	// TrapLoss is the balance emptied by the trap.
	TrapLoss   int64       `json:"trap_loss,omitempty"`
	Fine       *FineResult `json:"fine,omitempty"`
	Balance    int64       `json:"balance"`
	NextWorkAt time.Time   `json:"next_work_at"`
	At         time.Time   `json:"at"`
}

type FineResult struct {
	Victim         string    `json:"victim"`
	VictimUsername string    `json:"victim_username,omitempty"`
	VictimLevel    int       `json:"victim_level"`
	Fine           int64     `json:"fine"`
	Bonus          int64     `json:"bonus"`
	Total          int64     `json:"total"`
	Clamped        bool      `json:"clamped"`
	VictimBalance  int64     `json:"victim_balance"`
	NextFineAt     time.Time `json:"next_fine_at"`
}

// Event is a post-commit notification addressed to one participant.
type Event struct {
	Kind       OutcomeKind `json:"kind"`
	Recipient  string      `json:"recipient"`
	Actor      string      `json:"actor"`
	Profession Profession  `json:"profession"`
	Level      int         `json:"level"`
	Title      string      `json:"title,omitempty"`
	Amount     int64       `json:"amount"`
	Bonus      int64       `json:"bonus,omitempty"`
	At         time.Time   `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Event) error { return nil }

// Events lists the notifications an outcome produces. A fine notifies the
// victim; level changes notify the actor.
func (o Outcome) Events() []Event {
	base := Event{
		Recipient:  o.Actor,
		Actor:      o.Actor,
		Profession: o.Profession,
		Level:      o.Level,
		Title:      o.Title,
		At:         o.At,
	}
	var out []Event
	if o.Fine != nil {
		ev := base
		ev.Kind = OutcomeFined
		ev.Recipient = o.Fine.Victim
		ev.Amount = o.Fine.Total
		ev.Bonus = o.Fine.Bonus
		out = append(out, ev)
	}
	switch o.Promotion.Kind {
	case PromotionRandom, PromotionGuaranteed:
		ev := base
		ev.Kind = OutcomePromoted
		out = append(out, ev)
	case PromotionTrap:
		ev := base
		ev.Kind = OutcomeTrapSprung
		ev.Amount = o.TrapLoss
		out = append(out, ev)
	}
	if o.Kind == OutcomeEarned {
		ev := base
		ev.Kind = OutcomeEarned
		ev.Amount = o.Earned
		out = append(out, ev)
	}
	return out
}
