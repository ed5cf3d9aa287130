package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"payday/internal/app"
	"payday/internal/bot"
	"payday/internal/config"
	"payday/internal/notify"
)

func main() {
	root := &cobra.Command{
		Use:           "payday-bot",
		Short:         "Discord front end for the payday job economy",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "pair-whatsapp",
		Short: "Link a WhatsApp account for fine notifications by scanning a QR code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := connectWhatsApp(cmd.Context(), cfg.WhatsAppStoreDSN, cfg.Logger(), true)
			if err != nil {
				return err
			}
			client.Disconnect()
			fmt.Println("WhatsApp device paired.")
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("payday-bot failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateBot()
	}
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	sinks := notify.Fanout{notify.Log{Logger: logger}, notify.NewDiscord(session)}
	if cfg.WhatsAppEnabled {
		client, err := connectWhatsApp(ctx, cfg.WhatsAppStoreDSN, logger, false)
		if err != nil {
			return err
		}
		defer client.Disconnect()
		sinks = append(sinks, notify.NewWhatsApp(client))
	}

	a, err := app.Bootstrap(ctx, cfg, logger, "payday-bot", sinks)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	handler := bot.New(a.Jobs, logger, cfg.DiscordAdminIDs)
	handler.Attach(session)
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	defer session.Close()

	logger.Info("payday bot online", "admins", len(cfg.DiscordAdminIDs), "whatsapp", cfg.WhatsAppEnabled)
	<-ctx.Done()
	logger.Info("payday bot shutting down")
	return nil
}
