package notify

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"payday/internal/jobs"
)

// MessageSender is the part of *whatsmeow.Client used for notifications.
type MessageSender interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

type WhatsApp struct {
	client MessageSender
}

func NewWhatsApp(client MessageSender) *WhatsApp {
	return &WhatsApp{client: client}
}

func (w *WhatsApp) Notify(ctx context.Context, ev jobs.Event) error {
	phone, ok := cutPrefix(ev.Recipient, WhatsAppPrefix)
	if !ok || !Direct(ev) {
		return nil
	}
	to := types.NewJID(phone, types.DefaultUserServer)
	msg := &waE2E.Message{Conversation: proto.String(Message(ev, nil))}
	if _, err := w.client.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("whatsapp send to %s: %w", phone, err)
	}
	return nil
}
