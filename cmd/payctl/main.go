package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cl "payday/internal/cli"
	"payday/internal/config"
	"payday/internal/syncq"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "payctl",
		Short:        "Payday job economy client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newRegisterCmd(&apiBase),
		newProfessionsCmd(&apiBase),
		newJobCmd(&apiBase),
		newTakeCmd(&apiBase, "take", false),
		newTakeCmd(&apiBase, "switch", true),
		newQuitCmd(&apiBase),
		newWorkCmd(&apiBase),
		newShiftCmd(&apiBase),
		newSyncCmd(&apiBase),
		newFinesCmd(&apiBase),
		newAdminCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func openQueue() (*syncq.Queue, error) {
	dir, err := cl.Dir()
	if err != nil {
		return nil, err
	}
	return syncq.Open(dir)
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `payctl login`.")
				return nil
			}
			if err := saveSession(session.AccessToken, session.RefreshToken, session.User.Email, session.User.ID); err != nil {
				return err
			}
			if _, err := client.Register(ctx, session.AccessToken, username); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved and you are on the payroll.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login and store a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := saveSession(session.AccessToken, session.RefreshToken, session.User.Email, session.User.ID); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

// saveSession keeps a previously stored admin token across logins.
func saveSession(access, refresh, email, userID string) error {
	next := cl.Session{AccessToken: access, RefreshToken: refresh, Email: email, UserID: userID}
	if prev, err := cl.LoadSession(); err == nil {
		next.AdminToken = prev.AdminToken
	}
	return cl.SaveSession(next)
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newRegisterCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "register [username]",
		Short: "Join the economy with the logged in account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			username := ""
			if len(args) > 0 {
				username = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := newClient(apiBase).Register(ctx, sess.AccessToken, username)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Registered as %s with %s coins.", displayName(p.ID, p.Username), coins(p.Balance)))
			return nil
		},
	}
}

func newProfessionsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "professions [id]",
		Aliases: []string{"jobs"},
		Short:   "List professions or show one career ladder",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			list, err := newClient(apiBase).Professions(ctx)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				renderProfessions(list)
				return nil
			}
			id := strings.ToLower(strings.TrimSpace(args[0]))
			for _, p := range list {
				if p.ID == id {
					renderLadder(p)
					return nil
				}
			}
			return fmt.Errorf("unknown profession %q", id)
		},
	}
}

func newJobCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "job",
		Aliases: []string{"status"},
		Short:   "Show your current job and cooldown",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).Status(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderStatus(st)
			return nil
		},
	}
}

func newTakeCmd(apiBase *string, use string, replace bool) *cobra.Command {
	short := "Take a profession at level 1"
	if replace {
		short = "Switch to another profession, losing your current progress"
	}
	return &cobra.Command{
		Use:   use + " [profession]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			profession := ""
			if len(args) > 0 {
				profession = args[0]
			} else if profession, err = promptRequired("Profession"); err != nil {
				return err
			}
			if replace {
				ok, err := promptConfirm("Switching resets your level and work count. Continue?")
				if err != nil || !ok {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rec, err := newClient(apiBase).SelectProfession(ctx, sess.AccessToken, strings.ToLower(strings.TrimSpace(profession)), replace)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("You now work as %s (level %d).", rec.Profession, rec.Level))
			return nil
		},
	}
}

func newQuitCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Resign from your job",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ok, err := promptConfirm("Resigning discards your career progress. Continue?")
			if err != nil || !ok {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).Resign(ctx, sess.AccessToken); err != nil {
				return err
			}
			printSuccess("You resigned. Pick a new profession with `payctl take`.")
			return nil
		},
	}
}

func newWorkCmd(apiBase *string) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Work one shift, or fine a participant with --target",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			return workOnce(cmd.Context(), newClient(apiBase), sess, target)
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "participant to fine (Interpol only)")
	return cmd
}

// workOnce sends one shift. When the API cannot be reached the shift is
// queued under its idempotency key for `payctl sync`.
func workOnce(ctx context.Context, client *cl.Client, sess cl.Session, target string) error {
	idem := uuid.NewString()
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := client.Work(reqCtx, sess.AccessToken, target, idem)
	if err != nil {
		if left, ok := cl.CooldownLeft(err); ok {
			printWarn(fmt.Sprintf("Still on break for %s.", shortDuration(left)))
			return nil
		}
		if cl.Unreachable(err) {
			q, qerr := openQueue()
			if qerr != nil {
				return fmt.Errorf("%w (queue unavailable: %v)", err, qerr)
			}
			if qerr := q.Push(syncq.Shift{Target: target, IdempotencyKey: idem, QueuedAt: time.Now().UTC()}); qerr != nil {
				return fmt.Errorf("%w (queue unavailable: %v)", err, qerr)
			}
			printWarn("API unreachable. Shift queued; run `payctl sync` when back online.")
			return nil
		}
		return err
	}
	renderOutcome(out)
	return nil
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay shifts queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			q, err := openQueue()
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			results, err := q.Replay(ctx, func(ctx context.Context, s syncq.Shift) error {
				out, err := client.Work(ctx, sess.AccessToken, s.Target, s.IdempotencyKey)
				if err == nil {
					renderOutcome(out)
				}
				return err
			}, cl.Unreachable)
			if len(results) == 0 && err == nil {
				printInfo("Sync queue is empty.")
				return nil
			}
			sent, kept := 0, 0
			for _, r := range results {
				switch {
				case r.Err == nil:
					sent++
				case cl.Unreachable(r.Err):
					kept++
				default:
					printError(fmt.Sprintf("Shift %s rejected: %v", r.Shift.IdempotencyKey, r.Err))
				}
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", sent, kept))
			return err
		},
	}
}

func newFinesCmd(apiBase *string) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "fines",
		Short: "Show your fine totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			from := sinceTime(since)
			stats, err := newClient(apiBase).FineStats(ctx, sess.AccessToken, from)
			if err != nil {
				return err
			}
			renderFineStats("Your fines", stats, from)
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only count fines newer than this, e.g. 24h")
	return cmd
}

func sinceTime(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-d)
}
