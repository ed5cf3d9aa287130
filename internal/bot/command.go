package bot

import (
	"strings"
)

type Command struct {
	Name string
	Args []string
}

// Parse splits a chat message into a command. Messages without the prefix
// are not commands.
func Parse(prefix, content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// isMention reports whether a raw argument is a Discord user mention such
// as <@123> or <@!123>.
func isMention(arg string) bool {
	return strings.HasPrefix(arg, "<@") && strings.HasSuffix(arg, ">")
}
