package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "payday/internal/cli"
)

func newAdminCmd(apiBase *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (require the admin token)",
	}
	admin.AddCommand(
		newAdminTokenCmd(),
		newAdminResetCmd(apiBase),
		newAdminBanCmd(apiBase, "ban", true),
		newAdminBanCmd(apiBase, "unban", false),
		newAdminPurgeCmd(apiBase),
		newAdminStatsCmd(apiBase),
	)
	return admin
}

func adminToken() (string, error) {
	sess, err := cl.LoadSession()
	if err == nil && strings.TrimSpace(sess.AdminToken) != "" {
		return sess.AdminToken, nil
	}
	return promptPassword("Admin token")
}

func newAdminTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Store the admin token with the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			token, err := promptPassword("Admin token")
			if err != nil {
				return err
			}
			sess.AdminToken = token
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Admin token saved.")
			return nil
		},
	}
}

func newAdminResetCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <participant> [work|fine:<victim>]",
		Short: "Clear a cooldown",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminToken()
			if err != nil {
				return err
			}
			action := "work"
			if len(args) > 1 {
				action = args[1]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			cleared, err := newClient(apiBase).ResetCooldown(ctx, token, args[0], action)
			if err != nil {
				return err
			}
			if !cleared {
				printInfo(fmt.Sprintf("No %s cooldown was running for %s.", action, args[0]))
				return nil
			}
			printSuccess(fmt.Sprintf("Cleared %s cooldown for %s.", action, args[0]))
			return nil
		},
	}
}

func newAdminBanCmd(apiBase *string, use string, banned bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <participant>",
		Short: "Change a participant's ban flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminToken()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).SetBanned(ctx, token, args[0], banned); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s %sned.", args[0], use))
			return nil
		},
	}
}

func newAdminPurgeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cooldown rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminToken()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			n, err := newClient(apiBase).PurgeCooldowns(ctx, token)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Purged %d expired cooldowns.", n))
			return nil
		},
	}
}

func newAdminStatsCmd(apiBase *string) *cobra.Command {
	var (
		actor string
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fine totals for all enforcers or one actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminToken()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			from := sinceTime(since)
			stats, err := newClient(apiBase).AdminFineStats(ctx, token, actor, from)
			if err != nil {
				return err
			}
			title := "All fines"
			if actor != "" {
				title = "Fines by " + actor
			}
			renderFineStats(title, stats, from)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "participant id of the fining officer")
	cmd.Flags().DurationVar(&since, "since", 0, "only count fines newer than this, e.g. 168h")
	return cmd
}
