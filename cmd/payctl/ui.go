package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"

	cl "payday/internal/cli"
	"payday/internal/jobs"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	finerStyle  = cellStyle.Foreground(lipgloss.Color("12"))
	trapStyle   = cellStyle.Foreground(lipgloss.Color("9"))
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptPassword reads without echo on a terminal and falls back to a plain
// line read when input is piped.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptConfirm(label string) (bool, error) {
	if !interactive() {
		return true, nil
	}
	text, err := promptOptional(label + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(text) {
	case "y", "yes":
		return true, nil
	}
	printInfo("Cancelled.")
	return false, nil
}

func coins(v int64) string {
	return humanize.Comma(v)
}

func displayName(id, username string) string {
	if username != "" {
		return username
	}
	return id
}

func shortDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func salary(r jobs.Range) string {
	if r.Min == r.Max {
		return coins(r.Min)
	}
	return coins(r.Min) + "-" + coins(r.Max)
}

func renderProfessions(all []cl.Profession) {
	accent.Println("\n== PROFESSIONS ==")
	list := make([]cl.Profession, 0, len(all))
	for _, p := range all {
		if len(p.Levels) > 0 {
			list = append(list, p)
		}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "LEVELS", "START PAY", "TOP PAY", "COOLDOWN").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch {
			case list[row].CanFine:
				return finerStyle
			case list[row].Trap:
				return trapStyle
			}
			return cellStyle
		})
	for _, p := range list {
		first, last := p.Levels[0], p.Levels[len(p.Levels)-1]
		t.Row(p.ID, strings.TrimSpace(p.Emoji+" "+p.Name), strconv.Itoa(len(p.Levels)), salary(first.Salary), salary(last.Salary), shortDuration(time.Duration(first.CooldownSeconds)*time.Second))
	}
	fmt.Println(t.Render())
	printInfo("Take one with `payctl take <id>`. Run `payctl professions <id>` for the full ladder.")
	fmt.Println()
}

func renderLadder(p cl.Profession) {
	accent.Printf("\n== %s %s ==\n", p.Emoji, strings.ToUpper(p.Name))
	if p.Trap {
		printWarn("Fast track: promotion past the top level costs everything you own.")
	}
	if p.CanFine {
		printInfo("This profession can fine other participants with `payctl work --target`.")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LVL", "TITLE", "PAY", "COOLDOWN", "CHANCE", "GUARANTEED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, l := range p.Levels {
		guaranteed := "-"
		if l.GuaranteedAfter > 0 {
			guaranteed = strconv.Itoa(l.GuaranteedAfter)
		}
		t.Row(strconv.Itoa(l.Level), l.Title, salary(l.Salary), shortDuration(time.Duration(l.CooldownSeconds)*time.Second), fmt.Sprintf("%.0f%%", l.PromotionChance*100), guaranteed)
	}
	fmt.Println(t.Render())
	fmt.Println()
}

func renderStatus(st cl.Status) {
	accent.Printf("\n== %s %s ==\n", st.Emoji, strings.ToUpper(st.Name))
	fmt.Printf("Title:        %s (level %d/%d)\n", st.Title, st.Level, st.MaxLevel)
	if st.NextTitle != "" {
		fmt.Printf("Next:         %s\n", st.NextTitle)
	}
	fmt.Printf("Shifts:       %d", st.TimesWorked)
	if st.GuaranteedAfter > 0 {
		fmt.Printf(" (promotion guaranteed at %d)", st.GuaranteedAfter)
	}
	fmt.Println()
	fmt.Printf("Pay:          %s coins\n", salary(st.Salary))
	fmt.Printf("Balance:      %s coins\n", coins(st.Participant.Balance))
	if left := st.Remaining(); left > 0 {
		fmt.Printf("Next shift:   %s\n", warn.Sprint("in "+shortDuration(left)))
	} else {
		fmt.Printf("Next shift:   %s\n", success.Sprint("ready"))
	}
	fmt.Println()
}

func renderOutcome(out jobs.Outcome) {
	switch out.Kind {
	case jobs.OutcomeFined:
		f := out.Fine
		if f == nil {
			break
		}
		accent.Printf("\n== FINE ISSUED ==\n")
		fmt.Printf("Victim:   %s (level %d)\n", displayName(f.Victim, f.VictimUsername), f.VictimLevel)
		fmt.Printf("Fine:     %s coins\n", coins(f.Fine))
		if f.Bonus > 0 {
			fmt.Printf("Bonus:    %s coins\n", coins(f.Bonus))
		}
		if f.Clamped {
			printWarn("The fine was reduced to what the victim could pay.")
		}
		fmt.Printf("Collected:%s coins\n", success.Sprint(" "+coins(f.Total)))
	case jobs.OutcomeTrapSprung:
		danger.Printf("\n== CAUGHT ==\n")
		fmt.Printf("Your fast track career collapsed. Lost %s coins and back to level %d.\n", coins(out.TrapLoss), out.Level)
	default:
		accent.Printf("\n== SHIFT DONE ==\n")
		fmt.Printf("Earned:   %s coins\n", success.Sprint(coins(out.Earned)))
		if out.Promotion.Promoted() {
			success.Printf("Promoted to %s (level %d)!\n", out.Title, out.Level)
		}
	}
	fmt.Printf("Balance:  %s coins\n", coins(out.Balance))
	fmt.Printf("Next:     %s\n", humanize.RelTime(out.NextWorkAt, out.At, "ago", "from now"))
	fmt.Println()
}

func renderFineStats(title string, stats jobs.FineStats, since time.Time) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(title))
	if !since.IsZero() {
		fmt.Printf("Since:    %s\n", humanize.Time(since))
	}
	fmt.Printf("Fines:    %d\n", stats.Count)
	fmt.Printf("Fined:    %s coins\n", coins(stats.TotalFined))
	fmt.Printf("Bonus:    %s coins\n", coins(stats.TotalBonus))
	fmt.Println()
}
