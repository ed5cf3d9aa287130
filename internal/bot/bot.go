// Package bot turns Discord chat commands into engine operations.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"payday/internal/jobs"
	"payday/internal/notify"
)

const DefaultPrefix = "!"

// Message is an incoming chat message with mentions already resolved to
// participant ids.
type Message struct {
	ID       string
	AuthorID string
	Username string
	Content  string
	Mentions []string
}

type Bot struct {
	svc     *jobs.Service
	log     *slog.Logger
	prefix  string
	admins  map[string]bool
	timeout time.Duration
}

func New(svc *jobs.Service, logger *slog.Logger, adminIDs []string) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[notify.DiscordID(id)] = true
		}
	}
	return &Bot{svc: svc, log: logger, prefix: DefaultPrefix, admins: admins, timeout: 10 * time.Second}
}

// Attach registers the message handler on a Discord session.
func (b *Bot) Attach(s *discordgo.Session) {
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		msg := Message{
			ID:       m.ID,
			AuthorID: notify.DiscordID(m.Author.ID),
			Username: m.Author.Username,
			Content:  m.Content,
		}
		for _, u := range m.Mentions {
			msg.Mentions = append(msg.Mentions, notify.DiscordID(u.ID))
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		reply, ok := b.Handle(ctx, msg)
		if !ok {
			return
		}
		if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference(), discordgo.WithContext(ctx)); err != nil {
			b.log.Warn("reply failed", "channel", m.ChannelID, "err", err)
		}
	})
}

// Handle runs one command and returns the reply. ok is false for messages
// that are not commands.
func (b *Bot) Handle(ctx context.Context, msg Message) (reply string, ok bool) {
	cmd, ok := Parse(b.prefix, msg.Content)
	if !ok {
		return "", false
	}
	switch cmd.Name {
	case "help":
		return helpText, true
	case "register":
		p, err := b.svc.Register(ctx, msg.AuthorID, msg.Username)
		if err != nil {
			return b.replyError(cmd, msg, err), true
		}
		return "👋 Welcome, " + p.Username + "! See `!jobs` to find work.", true
	case "jobs", "professions":
		return formatProfessions(b.svc.Registry()), true
	case "job", "status":
		view, err := b.svc.Status(ctx, msg.AuthorID)
		if err != nil {
			return b.replyError(cmd, msg, err), true
		}
		return formatStatus(view), true
	case "take", "switch":
		profession := cmd.Arg(0)
		if profession == "" {
			return "Usage: `!" + cmd.Name + " <profession>`", true
		}
		rec, err := b.svc.SelectProfession(ctx, msg.AuthorID, jobs.Profession(profession), cmd.Name == "switch")
		if err != nil {
			return b.replyError(cmd, msg, err), true
		}
		title, _ := b.svc.Registry().Title(rec.Profession, rec.Level)
		return "🧾 You now work as " + title + ". Use `!work` to start your first shift.", true
	case "quit":
		if err := b.svc.Resign(ctx, msg.AuthorID); err != nil {
			return b.replyError(cmd, msg, err), true
		}
		return "You quit your job.", true
	case "work", "fine":
		target := b.target(cmd, msg, 0)
		if cmd.Name == "fine" && target == "" {
			return "Usage: `!fine @user`", true
		}
		out, err := b.svc.Work(ctx, jobs.WorkRequest{
			Actor:          msg.AuthorID,
			Target:         target,
			IdempotencyKey: b.requestKey(msg),
		})
		if err != nil {
			return b.replyError(cmd, msg, err), true
		}
		return formatOutcome(out), true
	case "finestats":
		who := msg.AuthorID
		if t := b.target(cmd, msg, 0); t != "" {
			if !b.admins[msg.AuthorID] {
				return "Only admins can see other officers' fines.", true
			}
			who = t
		}
		stats, err := b.svc.FineStats(ctx, who, time.Time{})
		if err != nil {
			return b.replyError(cmd, msg, err), true
		}
		return formatFineStats(notify.Mention(who), stats), true
	case "reset", "ban", "unban":
		if !b.admins[msg.AuthorID] {
			return "🚫 Admins only.", true
		}
		return b.admin(ctx, cmd, msg), true
	default:
		return "Unknown command. Try `!help`.", true
	}
}

func (b *Bot) admin(ctx context.Context, cmd Command, msg Message) string {
	who := b.target(cmd, msg, 0)
	if who == "" || strings.HasPrefix(who, "@") {
		return "Mention the participant: `!" + cmd.Name + " @user`"
	}
	switch cmd.Name {
	case "reset":
		key := jobs.WorkKey(who)
		if victim := b.target(cmd, msg, 1); victim != "" {
			key = jobs.FineKey(who, victim)
		}
		cleared, err := b.svc.ResetCooldown(ctx, key)
		if err != nil {
			return b.replyError(cmd, msg, err)
		}
		if !cleared {
			return "No cooldown to reset."
		}
		return "♻️ Cooldown `" + key.String() + "` reset for " + notify.Mention(who) + "."
	default:
		banned := cmd.Name == "ban"
		if err := b.svc.SetBanned(ctx, who, banned); err != nil {
			return b.replyError(cmd, msg, err)
		}
		if banned {
			return "🔨 " + notify.Mention(who) + " is banned."
		}
		return notify.Mention(who) + " is no longer banned."
	}
}

// target resolves the i-th argument: a mention becomes the mentioned
// participant id, anything else is looked up by username.
func (b *Bot) target(cmd Command, msg Message, i int) string {
	arg := cmd.Arg(i)
	if arg == "" {
		return ""
	}
	if isMention(arg) {
		mentioned := 0
		for j := 0; j < i; j++ {
			if isMention(cmd.Arg(j)) {
				mentioned++
			}
		}
		if mentioned < len(msg.Mentions) {
			return msg.Mentions[mentioned]
		}
		return ""
	}
	return "@" + strings.TrimPrefix(arg, "@")
}

// requestKey derives the idempotency key from the chat message id so a
// redelivered gateway event is not paid twice.
func (b *Bot) requestKey(msg Message) string {
	if msg.ID == "" {
		return uuid.NewString()
	}
	return "discord-msg:" + msg.ID
}

func (b *Bot) replyError(cmd Command, msg Message, err error) string {
	if !jobs.IsUserError(err) {
		b.log.Error("command failed", "command", cmd.Name, "participant", msg.AuthorID, "err", err)
	}
	return formatError(err)
}

const helpText = "**Commands**\n" +
	"`!register` join the economy\n" +
	"`!jobs` list professions\n" +
	"`!take <id>` / `!switch <id>` pick or change profession\n" +
	"`!job` show your job\n" +
	"`!work` do a shift\n" +
	"`!fine @user` fine someone (officers only)\n" +
	"`!finestats` your fine record\n" +
	"`!quit` leave your job"
