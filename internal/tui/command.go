package tui

import "strings"

// Command is a parsed ":" command line.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"q":    "quit",
	"h":    "help",
	"c":    "chat",
	"s":    "search",
	"exit": "quit",
}

// ParseCommand parses a command line without the leading ':'. Aliases are
// resolved to the full command name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	name, args, _ := strings.Cut(input, " ")
	name = strings.ToLower(name)
	if full, ok := commandAliases[name]; ok {
		name = full
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}
}
