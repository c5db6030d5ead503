package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/localchat/localchat/internal/adapter"
	"github.com/localchat/localchat/internal/command"
	ctxpkg "github.com/localchat/localchat/internal/context"
	"github.com/localchat/localchat/internal/registry"
	"github.com/localchat/localchat/internal/scanner"
	"github.com/localchat/localchat/internal/store"
)

// SessionOptions configures a chat Session.
type SessionOptions struct {
	Registry *registry.Registry
	LLM      adapter.LLMAdapter
	// Store is nil unless --persist is set.
	Store *store.Store

	Root         string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration

	Walk scanner.Options

	Out io.Writer
	// Progress receives the /add_dir spinner. Nil disables it.
	Progress io.Writer
	Color    bool
	Markdown bool
}

// Session is one interactive conversation: the tracked files, the message
// history and the model they are sent to.
type Session struct {
	reg     *registry.Registry
	asm     *ctxpkg.Assembler
	llm     adapter.LLMAdapter
	store   *store.Store
	history []adapter.Message

	root        string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	walk        scanner.Options

	out      *output
	progress io.Writer
}

// NewSession creates a Session from opts.
func NewSession(opts SessionOptions) *Session {
	return &Session{
		reg:         opts.Registry,
		asm:         ctxpkg.NewAssembler(opts.SystemPrompt, opts.Root, opts.Registry.ContextFiles),
		llm:         opts.LLM,
		store:       opts.Store,
		root:        opts.Root,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		walk:        opts.Walk,
		out:         newOutput(opts.Out, opts.Color, opts.Markdown),
		progress:    opts.Progress,
	}
}

// History returns the conversation so far.
func (s *Session) History() []adapter.Message { return s.history }

// Run reads and handles lines until /quit or end of input.
func (s *Session) Run(ctx context.Context, in lineReader) error {
	info := s.llm.Info()
	s.out.printf("localchat: chatting with %s (%s). Type /help for commands.\n", s.modelName(info), info.Provider)

	for {
		line, err := in.ReadLine(s.out.promptText())
		if errors.Is(err, io.EOF) {
			s.out.printf("\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := command.Parse(line)
		if err != nil {
			s.out.fail(err)
			continue
		}
		if quit := s.Handle(ctx, cmd); quit {
			return nil
		}
	}
}

func (s *Session) modelName(info adapter.ModelInfo) string {
	if s.model != "" {
		return s.model
	}
	return info.Name
}

// Handle executes one parsed command and reports whether the session should
// end.
func (s *Session) Handle(ctx context.Context, cmd command.Command) (quit bool) {
	switch c := cmd.(type) {
	case command.Add:
		s.add(c.Path)
	case command.AddDir:
		s.addDir(c.Dir)
	case command.List:
		s.list()
	case command.Remove:
		s.remove(c.Path)
	case command.RemoveDir:
		s.removeDir(c.Dir)
	case command.Clear:
		s.reg.Clear()
		s.out.successf("Stopped tracking all files.")
		s.persist()
	case command.Refresh:
		s.refresh()
	case command.CreateLens:
		s.lensOp(s.reg.CreateLens(c.Lens), "Created lens %s and switched to it.", c.Lens)
	case command.ListLenses:
		s.listLenses()
	case command.SwitchLens:
		s.switchLens(c.Lens)
	case command.AddToLens:
		s.lensOp(s.reg.AddToLens(c.Path), "Added %s to lens %s.", c.Path, s.reg.ActiveLens())
	case command.RemoveFromLens:
		s.lensOp(s.reg.RemoveFromLens(c.Path), "Removed %s from lens %s.", c.Path, s.reg.ActiveLens())
	case command.ListLens:
		s.listLens(c.Lens)
	case command.Help:
		s.help()
	case command.Quit:
		s.out.printf("Goodbye.\n")
		return true
	case command.Unknown:
		s.out.warnf("Unknown command /%s. Type /help for the list of commands.", c.Command)
	case command.Chat:
		s.chat(ctx, c.Text)
	}
	return false
}

func (s *Session) add(path string) {
	res, err := s.reg.Add(path)
	if err != nil {
		s.out.fail(err)
		return
	}
	verb := "Tracking"
	if res.Refreshed {
		verb = "Refreshed"
	}
	s.out.successf("%s %s (%s). %s available.", verb, s.display(res.File.Path),
		tokens(res.File.Tokens), tokens(s.reg.Budget().Available()))
	s.persist()
}

func (s *Session) addDir(dir string) {
	opts := s.walk
	var bar *progressbar.ProgressBar
	if s.progress != nil {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("  Adding files"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionClearOnFinish(),
		)
		opts.OnFile = func(string) { _ = bar.Add(1) }
	}

	res, err := scanner.AddDir(s.reg, dir, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		s.out.fail(err)
		return
	}

	s.out.successf("Tracking %d new file(s) from %s (%d refreshed, %s).", res.Added, dir, res.Refreshed, tokens(res.Delta))
	for _, sk := range res.Skipped {
		s.out.warnf("  skipped %s: %s", s.display(sk.Path), skipReason(sk.Err))
	}
	if res.Stopped != nil {
		s.out.fail(fmt.Errorf("stopped at %s: %w", s.display(res.Stopped.Path), res.Stopped))
	}
	s.out.printf("%s available.\n", tokens(s.reg.Budget().Available()))
	if res.Added > 0 || res.Refreshed > 0 {
		s.persist()
	}
}

func skipReason(err error) string {
	var tl *registry.TooLargeError
	var re *registry.ReadError
	switch {
	case errors.As(err, &tl):
		return fmt.Sprintf("%s is over the per-file limit of %s", tokens(tl.Tokens), tokens(tl.Limit))
	case errors.As(err, &re):
		return re.Err.Error()
	}
	return err.Error()
}

func (s *Session) remove(path string) {
	f, err := s.reg.Remove(path)
	if err != nil {
		s.out.fail(err)
		return
	}
	s.out.successf("Stopped tracking %s (%s freed).", s.display(f.Path), tokens(f.Tokens))
	s.persist()
}

func (s *Session) removeDir(dir string) {
	n, err := scanner.RemoveDir(s.reg, dir, s.walk)
	if err != nil {
		s.out.fail(err)
		if n == 0 {
			return
		}
	}
	s.out.successf("Stopped tracking %d file(s) under %s.", n, dir)
	if n > 0 {
		s.persist()
	}
}

func (s *Session) list() {
	if s.reg.Len() == 0 {
		s.out.printf("No files are being tracked.\n")
	} else {
		title := "Tracked files"
		if l := s.reg.ActiveLens(); l != "" {
			title += " (active lens: " + l + ")"
		}
		s.out.headerf("%s", title)
		for path, n := range s.reg.Entries() {
			s.out.printf("  %s  %s\n", s.display(path), s.out.muted.Render(tokens(n)))
		}
	}
	limits := s.reg.Budget().Limits()
	s.out.printf("Total: %s | Available: %s of %s (%s reserved)\n",
		tokens(s.reg.TotalTokens()), tokens(s.reg.Budget().Available()),
		tokens(limits.MaxContextTokens), tokens(limits.ReservedTokens))
}

func (s *Session) refresh() {
	res := s.reg.Refresh()
	s.out.successf("Refreshed %d file(s) (%s).", res.Refreshed, tokens(res.Delta))
	for _, path := range slices.Sorted(maps.Keys(res.Failed)) {
		s.out.warnf("  kept cached %s: %v", s.display(path), res.Failed[path])
	}
	if res.Stopped != nil {
		s.out.fail(res.Stopped)
	}
	s.persist()
}

func (s *Session) lensOp(err error, format string, args ...any) {
	if err != nil {
		s.out.fail(err)
		return
	}
	s.out.successf(format, args...)
	s.persist()
}

func (s *Session) switchLens(name string) {
	if err := s.reg.SwitchLens(name); err != nil {
		s.out.fail(err)
		return
	}
	if s.reg.ActiveLens() == "" {
		s.out.successf("No lens active; every tracked file is sent.")
	} else {
		s.out.successf("Switched to lens %s.", name)
	}
	s.persist()
}

func (s *Session) listLenses() {
	names := s.reg.Lenses()
	if len(names) == 0 {
		s.out.printf("No lenses. Create one with /create_lens <name>.\n")
		return
	}
	s.out.headerf("Lenses")
	for _, n := range names {
		marker := " "
		if n == s.reg.ActiveLens() {
			marker = "*"
		}
		s.out.printf("%s %s (%d files)\n", marker, n, len(s.reg.LensPaths(n)))
	}
}

func (s *Session) listLens(name string) {
	if name == "" {
		name = s.reg.ActiveLens()
		if name == "" {
			s.out.fail(registry.ErrNoActiveLens)
			return
		}
	}
	files, err := s.reg.LensFiles(name)
	if err != nil {
		s.out.fail(err)
		return
	}
	s.out.headerf("Lens %s", name)
	if len(files) == 0 {
		s.out.printf("  (empty)\n")
		return
	}
	total := 0
	for _, f := range files {
		s.out.printf("  %s  %s\n", s.display(f.Path), s.out.muted.Render(tokens(f.Tokens)))
		total += f.Tokens
	}
	s.out.printf("Lens total: %s\n", tokens(total))
}

func (s *Session) help() {
	s.out.headerf("Commands")
	for _, spec := range command.Specs {
		s.out.printf("  %-30s %s\n", spec.Usage, spec.Help)
	}
	s.out.printf("Anything else is sent to the model together with the tracked files.\n")
}

// chat sends one message. The exchange joins the history only when the
// model answers.
func (s *Session) chat(ctx context.Context, text string) {
	req := s.asm.BuildRequest(s.history, text)
	req.Model = s.model
	req.MaxTokens = s.maxTokens
	req.Temperature = s.temperature

	callCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.llm.Complete(callCtx, req)
	if err != nil {
		slog.Warn("chat: completion failed", "error", err, "elapsed", time.Since(start))
		if errors.Is(err, context.Canceled) {
			s.out.warnf("Request cancelled.")
			return
		}
		s.out.fail(err)
		return
	}
	slog.Info("chat: completion", "messages", len(req.Messages), "tracked_tokens", s.reg.TotalTokens(), "elapsed", time.Since(start))

	s.history = append(s.history,
		adapter.Message{Role: adapter.RoleUser, Content: text},
		adapter.Message{Role: adapter.RoleAssistant, Content: reply},
	)
	s.out.response(reply)
}

func (s *Session) display(path string) string {
	return ctxpkg.DisplayPath(s.root, path)
}

// snapshot captures what --persist saves.
func (s *Session) snapshot() store.State {
	st := store.State{
		Tracked:    s.reg.Paths(),
		ActiveLens: s.reg.ActiveLens(),
	}
	for _, name := range s.reg.Lenses() {
		st.Lenses = append(st.Lenses, store.Lens{Name: name, Paths: s.reg.LensPaths(name)})
	}
	return st
}

// persist saves the session state when --persist is set. A failure is
// reported but does not undo the change.
func (s *Session) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.snapshot()); err != nil {
		slog.Error("persist: save failed", "error", err)
		s.out.warnf("Warning: could not save tracked files: %v", err)
		return
	}
	slog.Debug("persist: saved", "files", s.reg.Len())
}

// Restore re-adds the files saved by a previous --persist run, with fresh
// content and token counts, then restores lenses. Files that can no longer
// be added are reported and dropped.
func (s *Session) Restore() error {
	if s.store == nil {
		return nil
	}
	st, err := s.store.Load()
	if err != nil {
		return err
	}

	restored := 0
	for _, p := range st.Tracked {
		if _, err := s.reg.Add(p); err != nil {
			s.out.warnf("Could not restore %s: %v", s.display(p), err)
			continue
		}
		restored++
	}
	for _, l := range st.Lenses {
		if err := s.reg.DefineLens(l.Name, l.Paths); err != nil {
			s.out.warnf("Could not restore lens %s: %v", l.Name, err)
		}
	}
	if st.ActiveLens != "" {
		if err := s.reg.SwitchLens(st.ActiveLens); err != nil {
			s.out.warnf("Could not restore active lens: %v", err)
		}
	}

	if len(st.Tracked) > 0 {
		s.out.printf("Restored %d tracked file(s) (%s).\n", restored, tokens(s.reg.TotalTokens()))
	}
	slog.Info("persist: restored", "files", restored, "saved", len(st.Tracked), "lenses", len(st.Lenses))
	s.persist()
	return nil
}

// historyFile is where the terminal input keeps its line history.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "localchat_history")
	}
	return filepath.Join(home, ".local", "state", "localchat", "history")
}
