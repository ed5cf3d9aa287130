package bot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"payday/internal/jobs"
	"payday/internal/notify"
	"payday/internal/store/sqlite"
)

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := jobs.NewService(store, nil, logger, jobs.WithRand(jobs.NewRand(9)), jobs.WithStarterBalance(500))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return New(svc, logger, []string{"1"})
}

func say(b *Bot, author, username, content string, mentions ...string) string {
	var ids []string
	for _, m := range mentions {
		ids = append(ids, notify.DiscordID(m))
	}
	reply, _ := b.Handle(context.Background(), Message{
		AuthorID: notify.DiscordID(author),
		Username: username,
		Content:  content,
		Mentions: ids,
	})
	return reply
}

func TestBotCommands(t *testing.T) {
	Convey("Given a bot with one admin", t, func() {
		b := newTestBot(t)

		Convey("Plain chatter is ignored", func() {
			_, ok := b.Handle(context.Background(), Message{AuthorID: "discord:5", Content: "hello"})
			So(ok, ShouldBeFalse)
		})

		Convey("Unregistered members are told to register", func() {
			So(say(b, "5", "eve", "!work"), ShouldContainSubstring, "!register")
		})

		Convey("A registered member can take a job and work", func() {
			So(say(b, "5", "eve", "!register"), ShouldContainSubstring, "eve")
			So(say(b, "5", "eve", "!work"), ShouldContainSubstring, "no job")
			So(say(b, "5", "eve", "!take chef"), ShouldContainSubstring, "You now work as")
			So(say(b, "5", "eve", "!take lawyer"), ShouldContainSubstring, "!switch")
			So(say(b, "5", "eve", "!work"), ShouldContainSubstring, "Earned")
			So(say(b, "5", "eve", "!work"), ShouldContainSubstring, "Next shift in")
			So(say(b, "5", "eve", "!job"), ShouldContainSubstring, "level 1/10")
		})

		Convey("An officer fines a mentioned member", func() {
			say(b, "5", "eve", "!register")
			say(b, "5", "eve", "!take chef")
			say(b, "7", "cop", "!register")
			say(b, "7", "cop", "!take interpol")

			So(say(b, "5", "eve", "!fine <@7>", "7"), ShouldContainSubstring, "Only officers")
			So(say(b, "7", "cop", "!fine"), ShouldContainSubstring, "Usage")
			reply := say(b, "7", "cop", "!fine <@5>", "5")
			So(reply, ShouldContainSubstring, "Fined <@5>")
			So(say(b, "7", "cop", "!finestats"), ShouldContainSubstring, "1 fines")

			Convey("Admins can reset and ban, others cannot", func() {
				So(say(b, "5", "eve", "!reset <@7>", "7"), ShouldContainSubstring, "Admins only")
				So(say(b, "1", "boss", "!reset <@7> <@5>", "7", "5"), ShouldContainSubstring, "fine:discord:5")
				So(say(b, "1", "boss", "!reset <@7> <@5>", "7", "5"), ShouldContainSubstring, "No cooldown")
				So(say(b, "1", "boss", "!ban <@5>", "5"), ShouldContainSubstring, "banned")
				So(say(b, "5", "eve", "!work"), ShouldContainSubstring, "banned")
			})
		})

		Convey("A username target is looked up", func() {
			say(b, "5", "eve", "!register")
			say(b, "5", "eve", "!take chef")
			say(b, "7", "cop", "!register")
			say(b, "7", "cop", "!take interpol")
			So(say(b, "7", "cop", "!fine @eve"), ShouldContainSubstring, "Fined <@5>")
			So(say(b, "7", "cop", "!fine @nobody"), ShouldContainSubstring, "cannot be fined")
		})
	})
}

func TestParse(t *testing.T) {
	cmd, ok := Parse("!", "  !Fine   <@12>  ")
	if !ok || cmd.Name != "fine" || cmd.Arg(0) != "<@12>" || cmd.Arg(1) != "" {
		t.Fatalf("cmd=%+v ok=%v", cmd, ok)
	}
	for _, in := range []string{"", "!", "work", "?work"} {
		if _, ok := Parse("!", in); ok {
			t.Fatalf("%q parsed as a command", in)
		}
	}
}

func TestShortDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{40 * time.Minute, "40m"},
		{2 * time.Hour, "2h"},
		{90*time.Minute + 20*time.Second, "1h30m"},
	}
	for _, tc := range cases {
		if got := shortDuration(tc.in); got != tc.want {
			t.Fatalf("shortDuration(%s)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatErrorCoversTaxonomy(t *testing.T) {
	for _, err := range []error{
		jobs.ErrNotRegistered, jobs.ErrBanned, jobs.ErrNoJob, jobs.ErrAlreadyEmployed,
		jobs.ErrUnknownProfession, jobs.ErrNotAuthorized, jobs.ErrInvalidTarget,
		jobs.ErrTargetIneligible, jobs.ErrTargetProtected, jobs.ErrInsufficientVictimFunds,
	} {
		if strings.Contains(formatError(err), "Something went wrong") {
			t.Fatalf("%v has no dedicated reply", err)
		}
	}
}
