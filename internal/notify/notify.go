// Package notify delivers engine events to participants over chat channels.
//
// Participant ids carry their channel as a prefix ("discord:123",
// "wa:4915551234"); each sink ignores recipients it cannot reach, so a
// Fanout can hand every event to every sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"payday/internal/jobs"
)

const (
	DiscordPrefix  = "discord:"
	WhatsAppPrefix = "wa:"
)

func DiscordID(userID string) string { return DiscordPrefix + userID }

func WhatsAppID(phone string) string { return WhatsAppPrefix + phone }

// Fanout sends each event to every sink and joins their errors.
type Fanout []jobs.Notifier

func (f Fanout) Notify(ctx context.Context, ev jobs.Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log records every event; used when no chat channel is configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, ev jobs.Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event",
		"kind", ev.Kind,
		"recipient", ev.Recipient,
		"actor", ev.Actor,
		"amount", ev.Amount,
		"level", ev.Level,
	)
	return nil
}

// Message renders an event as chat text. display turns a participant id
// into something the channel can show, e.g. a mention.
func Message(ev jobs.Event, display func(id string) string) string {
	if display == nil {
		display = func(id string) string { return id }
	}
	switch ev.Kind {
	case jobs.OutcomeFined:
		text := fmt.Sprintf("🚓 You were fined %s coins by %s.", humanize.Comma(ev.Amount), display(ev.Actor))
		if ev.Bonus > 0 {
			text += fmt.Sprintf(" %s of that is a seniority bonus.", humanize.Comma(ev.Bonus))
		}
		return text
	case jobs.OutcomePromoted:
		return fmt.Sprintf("🎉 Promoted to %s (level %d)!", ev.Title, ev.Level)
	case jobs.OutcomeTrapSprung:
		return fmt.Sprintf("💸 You got greedy and lost everything: %s coins gone. Back to %s.", humanize.Comma(ev.Amount), ev.Title)
	case jobs.OutcomeEarned:
		return fmt.Sprintf("💼 You earned %s coins.", humanize.Comma(ev.Amount))
	default:
		return string(ev.Kind)
	}
}

// Direct reports whether an event is worth a direct message. Plain earnings
// are already shown in the reply to the command that produced them.
func Direct(ev jobs.Event) bool {
	return ev.Kind != jobs.OutcomeEarned
}

func cutPrefix(id, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	return rest, ok && rest != ""
}
