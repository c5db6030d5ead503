package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/localchat/localchat/internal/command"
	"github.com/localchat/localchat/internal/registry"
)

// lineReader is where the chat loop reads user input from. ReadLine returns
// io.EOF when input ends or the user aborts.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// newLineReader returns a liner-backed reader with history and completion
// when stdin is a terminal, and a plain line scanner otherwise.
func newLineReader(in *os.File, out io.Writer, historyFile string) lineReader {
	if term.IsTerminal(int(in.Fd())) {
		return newTerminalInput(historyFile)
	}
	return newPlainInput(in, out)
}

// terminalInput provides input history and line editing for interactive chat.
type terminalInput struct {
	line        *liner.State
	historyFile string
}

func newTerminalInput(historyFile string) *terminalInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	line.SetWordCompleter(completeLine)

	t := &terminalInput{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return t
}

func (t *terminalInput) ReadLine(prompt string) (string, error) {
	input, err := t.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		t.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (t *terminalInput) Close() error {
	if err := os.MkdirAll(filepath.Dir(t.historyFile), 0o755); err == nil {
		if f, err := os.OpenFile(t.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = t.line.WriteHistory(f)
			f.Close()
		}
	}
	return t.line.Close()
}

// plainInput reads lines from a pipe or file.
type plainInput struct {
	sc  *bufio.Scanner
	out io.Writer
}

func newPlainInput(r io.Reader, out io.Writer) *plainInput {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &plainInput{sc: sc, out: out}
}

func (p *plainInput) ReadLine(prompt string) (string, error) {
	io.WriteString(p.out, prompt)
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.sc.Text(), nil
}

func (p *plainInput) Close() error { return nil }

// pathCommands take a filesystem path argument and get path completion.
var pathCommands = map[string]bool{
	"add":              true,
	"add_dir":          true,
	"remove":           true,
	"remove_dir":       true,
	"add_to_lens":      true,
	"remove_from_lens": true,
}

// completeLine is the liner word completer: slash command names at the
// start of the line, paths after a path-taking command.
func completeLine(line string, pos int) (head string, completions []string, tail string) {
	head, tail = line[:pos], line[pos:]

	if strings.HasPrefix(head, "/") && !strings.ContainsAny(head, " \t") {
		for _, s := range command.Specs {
			if name := "/" + s.Name; strings.HasPrefix(name, head) {
				completions = append(completions, name)
			}
		}
		return "", completions, tail
	}

	name, arg, ok := strings.Cut(head, " ")
	if !ok || !pathCommands[strings.TrimPrefix(name, "/")] {
		return head, nil, tail
	}
	arg = strings.TrimLeft(arg, " ")
	prefix := head[:len(head)-len(arg)]
	return prefix, completePath(arg), tail
}

// completePath lists filesystem entries starting with partial. Directories
// get a trailing separator; dot entries only appear when partial names one.
func completePath(partial string) []string {
	dir, base := filepath.Split(partial)
	readDir := dir
	if readDir == "" {
		readDir = "."
	}
	readDir = registry.ExpandHome(readDir)

	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		c := dir + name
		if e.IsDir() {
			c += string(filepath.Separator)
		}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
