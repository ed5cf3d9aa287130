package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"payday/internal/jobs"
	"payday/internal/notify"
)

func formatOutcome(out jobs.Outcome) string {
	var b strings.Builder
	switch {
	case out.Fine != nil:
		f := out.Fine
		fmt.Fprintf(&b, "🚓 Fined %s %s coins", notify.Mention(f.Victim), humanize.Comma(f.Fine))
		if f.Bonus > 0 {
			fmt.Fprintf(&b, " plus a %s coin seniority bonus", humanize.Comma(f.Bonus))
		}
		b.WriteString(".")
		if f.Clamped {
			b.WriteString(" They could not pay in full.")
		}
	case out.Kind == jobs.OutcomeTrapSprung:
		fmt.Fprintf(&b, "💸 Greed got you. You lost %s coins and start over as %s.", humanize.Comma(out.TrapLoss), out.Title)
	default:
		fmt.Fprintf(&b, "💼 Earned %s coins as %s.", humanize.Comma(out.Earned), out.Title)
	}
	if out.Promotion.Promoted() {
		fmt.Fprintf(&b, "\n🎉 Promoted to %s (level %d)!", out.Title, out.Level)
	}
	fmt.Fprintf(&b, "\nBalance: %s. Next shift %s.", humanize.Comma(out.Balance), humanize.RelTime(out.NextWorkAt, out.At, "ago", "from now"))
	return b.String()
}

func formatStatus(v jobs.JobView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s**: %s (level %d/%d)\n", v.Emoji, v.Name, v.Title, v.Record.Level, v.MaxLevel)
	fmt.Fprintf(&b, "Shifts at this level: %d", v.Record.TimesWorked)
	if v.GuaranteedAfter > 0 {
		fmt.Fprintf(&b, " (promotion guaranteed at %d)", v.GuaranteedAfter)
	}
	fmt.Fprintf(&b, "\nSalary: %s to %s coins every %s", humanize.Comma(v.Salary.Min), humanize.Comma(v.Salary.Max), shortDuration(v.Cooldown))
	if v.NextTitle != "" {
		fmt.Fprintf(&b, "\nNext title: %s", v.NextTitle)
	}
	if v.CooldownRemaining > 0 {
		fmt.Fprintf(&b, "\n⏳ Next shift in %s", shortDuration(v.CooldownRemaining))
	} else {
		b.WriteString("\n✅ Ready to work")
	}
	if v.CanFine {
		b.WriteString("\nYou may fine other workers with `!fine @user`.")
	}
	return b.String()
}

func formatProfessions(reg *jobs.Registry) string {
	var b strings.Builder
	b.WriteString("Available professions (use `!take <id>`):")
	for _, d := range reg.Professions() {
		first := d.Levels[0]
		fmt.Fprintf(&b, "\n%s `%s` %s: %s to %s coins", d.Emoji, d.ID, d.Name, humanize.Comma(first.Salary.Min), humanize.Comma(first.Salary.Max))
	}
	return b.String()
}

func formatFineStats(who string, s jobs.FineStats) string {
	return fmt.Sprintf("📋 %s: %s fines, %s coins fined, %s coins in bonuses.",
		who, humanize.Comma(s.Count), humanize.Comma(s.TotalFined), humanize.Comma(s.TotalBonus))
}

func formatError(err error) string {
	if left, ok := jobs.RemainingCooldown(err); ok {
		var cd *jobs.CooldownError
		if errors.As(err, &cd) && cd.Key.Action == jobs.ActionFine {
			return fmt.Sprintf("⏳ You fined them recently. Try again in %s.", shortDuration(left))
		}
		return fmt.Sprintf("⏳ You are tired. Next shift in %s.", shortDuration(left))
	}
	switch {
	case errors.Is(err, jobs.ErrNotRegistered):
		return "You are not registered yet. Use `!register` first."
	case errors.Is(err, jobs.ErrBanned):
		return "🚫 You are banned."
	case errors.Is(err, jobs.ErrNoJob):
		return "You have no job. See `!jobs` and pick one with `!take <id>`."
	case errors.Is(err, jobs.ErrAlreadyEmployed):
		return "You already have a job. Use `!switch <id>` to change (you start again at level 1)."
	case errors.Is(err, jobs.ErrUnknownProfession):
		return "No such profession. See `!jobs`."
	case errors.Is(err, jobs.ErrNotAuthorized):
		return "Only officers can fine people."
	case errors.Is(err, jobs.ErrInvalidTarget):
		return "You cannot fine yourself."
	case errors.Is(err, jobs.ErrTargetIneligible):
		return "That person cannot be fined: they must be registered, employed and not banned."
	case errors.Is(err, jobs.ErrTargetProtected):
		return "🛡️ That person is too poor to be fined."
	case errors.Is(err, jobs.ErrInsufficientVictimFunds):
		return "That person has nothing left to take."
	case errors.Is(err, jobs.ErrDuplicateIdempotency):
		return "Already handled."
	default:
		return "⚠️ Something went wrong. Please try again later."
	}
}

// shortDuration renders 1h30m rather than 1h30m0s.
func shortDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%dm", h, m)
	}
}
