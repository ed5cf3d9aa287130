package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// connectWhatsApp opens the device store kept in Postgres and connects. An
// unpaired device is only accepted when pair is set, in which case the QR
// code is printed to the terminal until the phone links.
func connectWhatsApp(ctx context.Context, dsn string, logger *slog.Logger, pair bool) (*whatsmeow.Client, error) {
	if dsn == "" {
		return nil, errors.New("whatsapp_store_dsn is required")
	}
	container, err := sqlstore.New(ctx, "postgres", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp device: %w", err)
	}
	client := whatsmeow.NewClient(device, waLog.Noop)

	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("whatsapp connect: %w", err)
		}
		return client, nil
	}
	if !pair {
		return nil, errors.New("whatsapp device is not paired: run `payday-bot pair-whatsapp`")
	}

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp qr: %w", err)
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("whatsapp connect: %w", err)
	}
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		case "success":
			logger.Info("whatsapp paired")
			return client, nil
		default:
			logger.Info("whatsapp pairing", "event", evt.Event)
		}
	}
	client.Disconnect()
	return nil, errors.New("whatsapp pairing did not complete")
}
