package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"payday/internal/jobs"
)

type fakeDiscord struct {
	opened []string
	sent   map[string]string
	err    error
}

func (f *fakeDiscord) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.opened = append(f.opened, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeDiscord) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[channelID] = content
	return &discordgo.Message{}, f.err
}

type fakeWhatsApp struct {
	to   []types.JID
	text []string
}

func (f *fakeWhatsApp) SendMessage(_ context.Context, to types.JID, msg *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	f.to = append(f.to, to)
	f.text = append(f.text, msg.GetConversation())
	return whatsmeow.SendResponse{}, nil
}

func fineEvent(recipient string) jobs.Event {
	return jobs.Event{Kind: jobs.OutcomeFined, Recipient: recipient, Actor: DiscordID("42"), Amount: 1500, Bonus: 500}
}

func TestDiscordDirectMessage(t *testing.T) {
	fake := &fakeDiscord{}
	d := NewDiscord(fake)
	if err := d.Notify(context.Background(), fineEvent(DiscordID("7"))); err != nil {
		t.Fatalf("notify: %v", err)
	}
	got := fake.sent["dm-7"]
	if !strings.Contains(got, "1,500") || !strings.Contains(got, "<@42>") || !strings.Contains(got, "500") {
		t.Fatalf("dm=%q", got)
	}

	if err := d.Notify(context.Background(), fineEvent(WhatsAppID("4915550"))); err != nil {
		t.Fatalf("foreign recipient: %v", err)
	}
	earned := jobs.Event{Kind: jobs.OutcomeEarned, Recipient: DiscordID("7"), Amount: 10}
	if err := d.Notify(context.Background(), earned); err != nil {
		t.Fatalf("earned: %v", err)
	}
	if len(fake.opened) != 1 {
		t.Fatalf("opened=%v", fake.opened)
	}
}

func TestWhatsAppMessage(t *testing.T) {
	fake := &fakeWhatsApp{}
	w := NewWhatsApp(fake)
	ev := jobs.Event{Kind: jobs.OutcomeTrapSprung, Recipient: WhatsAppID("4915550"), Amount: 1035, Title: "Beggar"}
	if err := w.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(fake.to) != 1 || fake.to[0].User != "4915550" || fake.to[0].Server != types.DefaultUserServer {
		t.Fatalf("to=%v", fake.to)
	}
	if !strings.Contains(fake.text[0], "1,035") || !strings.Contains(fake.text[0], "Beggar") {
		t.Fatalf("text=%q", fake.text[0])
	}
	if err := w.Notify(context.Background(), fineEvent(DiscordID("1"))); err != nil || len(fake.to) != 1 {
		t.Fatalf("discord recipient went to whatsapp: err=%v to=%v", err, fake.to)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	broken := &fakeDiscord{err: errors.New("dm closed")}
	wa := &fakeWhatsApp{}
	calls := 0
	counter := jobs.NotifierFunc(func(context.Context, jobs.Event) error {
		calls++
		return nil
	})
	err := Fanout{NewDiscord(broken), NewWhatsApp(wa), counter, nil}.Notify(context.Background(), fineEvent(DiscordID("9")))
	if err == nil || !strings.Contains(err.Error(), "dm closed") {
		t.Fatalf("err=%v", err)
	}
	if calls != 1 {
		t.Fatalf("later sinks skipped: calls=%d", calls)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		ev   jobs.Event
		want string
	}{
		{jobs.Event{Kind: jobs.OutcomePromoted, Title: "Sous Chef", Level: 3}, "Promoted to Sous Chef (level 3)"},
		{jobs.Event{Kind: jobs.OutcomeEarned, Amount: 12000}, "earned 12,000 coins"},
		{jobs.Event{Kind: jobs.OutcomeFined, Actor: "p1", Amount: 22}, "fined 22 coins by p1."},
	}
	for _, tc := range tests {
		if got := Message(tc.ev, nil); !strings.Contains(got, tc.want) {
			t.Fatalf("%s: %q does not contain %q", tc.ev.Kind, got, tc.want)
		}
	}
	if strings.Contains(Message(jobs.Event{Kind: jobs.OutcomeFined, Amount: 22}, nil), "bonus") {
		t.Fatalf("bonus mentioned without one")
	}
}
