// Package command parses a line of REPL input into one of the slash commands
// or a chat message.
package command

import (
	"fmt"
	"strings"
	"unicode"
)

// Command is one parsed line of input. The concrete types below are the
// only implementations; callers match them with a type switch.
type Command interface {
	// Name is the slash command name without the slash, or "" for Chat.
	Name() string
}

type (
	// Add tracks one file.
	Add struct{ Path string }
	// AddDir tracks every eligible file under a directory.
	AddDir struct{ Dir string }
	// List shows tracked files and the budget.
	List struct{}
	// Remove untracks one file.
	Remove struct{ Path string }
	// RemoveDir untracks every tracked file under a directory.
	RemoveDir struct{ Dir string }
	// Clear untracks everything.
	Clear struct{}
	// Refresh re-reads every tracked file.
	Refresh struct{}
	// Help lists the commands.
	Help struct{}
	// Quit ends the session.
	Quit struct{}

	CreateLens     struct{ Lens string }
	ListLenses     struct{}
	SwitchLens     struct{ Lens string }
	AddToLens      struct{ Path string }
	RemoveFromLens struct{ Path string }
	// ListLens shows the members of Lens, or of the active lens when empty.
	ListLens struct{ Lens string }

	// Chat is a message for the model.
	Chat struct{ Text string }
	// Unknown is a slash command nobody handles. It is never sent to the
	// model.
	Unknown struct{ Command string }
)

func (Add) Name() string            { return "add" }
func (AddDir) Name() string         { return "add_dir" }
func (List) Name() string           { return "list" }
func (Remove) Name() string         { return "remove" }
func (RemoveDir) Name() string      { return "remove_dir" }
func (Clear) Name() string          { return "clear" }
func (Refresh) Name() string        { return "refresh" }
func (Help) Name() string           { return "help" }
func (Quit) Name() string           { return "quit" }
func (CreateLens) Name() string     { return "create_lens" }
func (ListLenses) Name() string     { return "list_lenses" }
func (SwitchLens) Name() string     { return "switch_lens" }
func (AddToLens) Name() string      { return "add_to_lens" }
func (RemoveFromLens) Name() string { return "remove_from_lens" }
func (ListLens) Name() string       { return "list_lens" }
func (Chat) Name() string           { return "" }
func (u Unknown) Name() string      { return u.Command }

// UsageError reports a known command given the wrong arguments.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

// Spec describes one slash command for parsing and /help.
type Spec struct {
	Name  string
	Arg   string // "" when the command takes no argument
	Usage string
	Help  string
	// Optional marks an argument that may be omitted.
	Optional bool
	build    func(arg string) Command
}

// Specs lists the commands in the order /help shows them.
var Specs = []Spec{
	{Name: "add", Arg: "<file>", Help: "track a file", build: func(a string) Command { return Add{Path: a} }},
	{Name: "add_dir", Arg: "<dir>", Help: "track every file under a directory", build: func(a string) Command { return AddDir{Dir: a} }},
	{Name: "list", Help: "show tracked files and the token budget", build: func(string) Command { return List{} }},
	{Name: "remove", Arg: "<file>", Help: "stop tracking a file", build: func(a string) Command { return Remove{Path: a} }},
	{Name: "remove_dir", Arg: "<dir>", Help: "stop tracking every file under a directory", build: func(a string) Command { return RemoveDir{Dir: a} }},
	{Name: "clear", Help: "stop tracking all files", build: func(string) Command { return Clear{} }},
	{Name: "refresh", Help: "re-read every tracked file from disk", build: func(string) Command { return Refresh{} }},
	{Name: "create_lens", Arg: "<name>", Help: "create a lens and switch to it", build: func(a string) Command { return CreateLens{Lens: a} }},
	{Name: "list_lenses", Help: "show all lenses", build: func(string) Command { return ListLenses{} }},
	{Name: "switch_lens", Arg: "<name|none>", Help: "switch lens, or send every tracked file with none", build: func(a string) Command { return SwitchLens{Lens: a} }},
	{Name: "add_to_lens", Arg: "<file>", Help: "add a tracked file to the active lens", build: func(a string) Command { return AddToLens{Path: a} }},
	{Name: "remove_from_lens", Arg: "<file>", Help: "remove a file from the active lens", build: func(a string) Command { return RemoveFromLens{Path: a} }},
	{Name: "list_lens", Arg: "[name]", Optional: true, Help: "show the files in a lens (default: active)", build: func(a string) Command { return ListLens{Lens: a} }},
	{Name: "help", Help: "show this help", build: func(string) Command { return Help{} }},
	{Name: "quit", Help: "leave the chat", build: func(string) Command { return Quit{} }},
}

var byName = func() map[string]*Spec {
	m := make(map[string]*Spec, len(Specs))
	for i := range Specs {
		s := &Specs[i]
		s.Usage = "/" + s.Name
		if s.Arg != "" {
			s.Usage += " " + s.Arg
		}
		m[s.Name] = s
	}
	return m
}()

// Parse turns a line of input into a Command. Lines that do not start with
// a slash followed by a command-like word are Chat messages, so "/usr/bin is
// what?" still reaches the model. The error is a *UsageError when a known
// command is missing its argument or given one it does not take.
func Parse(line string) (Command, error) {
	text := strings.TrimSpace(line)
	name, rest, ok := splitName(text)
	if !ok {
		return Chat{Text: text}, nil
	}

	spec, known := byName[name]
	if !known {
		return Unknown{Command: name}, nil
	}

	arg := argument(rest)
	switch {
	case spec.Arg == "" && arg != "":
		return nil, &UsageError{Command: name, Usage: spec.Usage}
	case spec.Arg != "" && !spec.Optional && arg == "":
		return nil, &UsageError{Command: name, Usage: spec.Usage}
	}
	return spec.build(arg), nil
}

// splitName returns the command word after the slash and the remainder of
// the line. ok is false when the line is not a command.
func splitName(text string) (name, rest string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	body := text[1:]
	end := strings.IndexFunc(body, unicode.IsSpace)
	if end < 0 {
		end = len(body)
	}
	name = body[:end]
	if name == "" {
		return "", "", false
	}
	for _, r := range name {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", "", false
		}
	}
	return strings.ToLower(name), strings.TrimSpace(body[end:]), true
}

// argument returns the single argument in rest. A fully quoted argument is
// unquoted; otherwise the whole remainder is the argument, so unquoted paths
// with spaces work.
func argument(rest string) string {
	if rest == "" {
		return ""
	}
	if tokens := splitCommandLine(rest); len(tokens) == 1 {
		return tokens[0]
	}
	return rest
}

// splitCommandLine splits a command line into tokens, respecting quotes.
// Supports both single and double quotes for arguments with spaces.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingleQuote, inDoubleQuote, quoted bool

	for i := 0; i < len(input); i++ {
		char := input[i]

		switch {
		case char == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote
			quoted = true

		case char == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote
			quoted = true

		case char == '\\' && i+1 < len(input) && (inDoubleQuote || inSingleQuote):
			next := input[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteByte(next)
				i++
			} else {
				current.WriteByte(char)
			}

		case (char == ' ' || char == '\t') && !inSingleQuote && !inDoubleQuote:
			if current.Len() > 0 || quoted {
				tokens = append(tokens, current.String())
				current.Reset()
				quoted = false
			}

		default:
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 || quoted {
		tokens = append(tokens, current.String())
	}
	return tokens
}
