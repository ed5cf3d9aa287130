package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/timer"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newShiftCmd(apiBase *string) *cobra.Command {
	var (
		target string
		rounds int
	)
	cmd := &cobra.Command{
		Use:   "shift",
		Short: "Wait out the cooldown, then work; repeat with --rounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			for i := 0; rounds <= 0 || i < rounds; i++ {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				st, err := client.Status(ctx, sess.AccessToken)
				cancel()
				if err != nil {
					return err
				}
				if left := st.Remaining(); left > 0 {
					finished, err := waitOut(cmd.Context(), left, st.Title)
					if err != nil || !finished {
						return err
					}
				}
				if err := workOnce(cmd.Context(), client, sess, target); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "participant to fine each round (Interpol only)")
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 1, "shifts to work; 0 keeps going until interrupted")
	return cmd
}

// waitOut blocks until d has passed. It reports false when the user quit
// early.
func waitOut(ctx context.Context, d time.Duration, title string) (bool, error) {
	if !interactive() {
		printInfo(fmt.Sprintf("On break for %s.", shortDuration(d)))
		select {
		case <-time.After(d):
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	m := newBreakModel(d, title)
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return false, err
	}
	return final.(breakModel).done, nil
}

var (
	breakLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	breakClock = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	breakHint  = lipgloss.NewStyle().Faint(true)
)

type breakModel struct {
	title   string
	timer   timer.Model
	spinner spinner.Model
	done    bool
}

func newBreakModel(d time.Duration, title string) breakModel {
	return breakModel{
		title:   title,
		timer:   timer.NewWithInterval(d.Round(time.Second)+time.Second, time.Second),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(breakClock)),
	}
}

func (m breakModel) Init() tea.Cmd {
	return tea.Batch(m.timer.Init(), m.spinner.Tick)
}

func (m breakModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case timer.TimeoutMsg:
		m.done = true
		return m, tea.Quit
	case timer.TickMsg, timer.StartStopMsg:
		var cmd tea.Cmd
		m.timer, cmd = m.timer.Update(msg)
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m breakModel) View() string {
	if m.done {
		return breakLabel.Render("Break over, clocking in.") + "\n"
	}
	return fmt.Sprintf("%s %s %s\n%s\n",
		m.spinner.View(),
		breakLabel.Render(m.title+" on break, back in"),
		breakClock.Render(shortDuration(m.timer.Timeout)),
		breakHint.Render("q to stop waiting"),
	)
}
