package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/localchat/localchat/internal/adapter"
	"github.com/localchat/localchat/internal/command"
	ctxpkg "github.com/localchat/localchat/internal/context"
	"github.com/localchat/localchat/internal/db"
	"github.com/localchat/localchat/internal/registry"
	"github.com/localchat/localchat/internal/store"
)

type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

// fakeLLM records every request and answers with reply or err.
type fakeLLM struct {
	reply    string
	err      error
	requests []adapter.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req adapter.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeLLM) Info() adapter.ModelInfo {
	return adapter.ModelInfo{Name: "fake-model", Provider: "fake"}
}

type testSession struct {
	*Session
	dir string
	llm *fakeLLM
	out *bytes.Buffer
}

func newTestSession(t *testing.T, max, reserved int, st *store.Store) *testSession {
	t.Helper()
	dir := t.TempDir()
	llm := &fakeLLM{reply: "sure"}
	var out bytes.Buffer
	s := NewSession(SessionOptions{
		Registry: registry.New(wordCounter{}, ctxpkg.Limits{MaxContextTokens: max, ReservedTokens: reserved}),
		LLM:      llm,
		Store:    st,
		Root:     dir,
		Out:      &out,
	})
	return &testSession{Session: s, dir: dir, llm: llm, out: &out}
}

func (ts *testSession) write(t *testing.T, name string, nWords int) string {
	t.Helper()
	p := filepath.Join(ts.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(strings.Repeat("w ", nWords)), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// run feeds script to the session as if typed at the prompt.
func (ts *testSession) run(t *testing.T, script ...string) string {
	t.Helper()
	ts.out.Reset()
	in := newPlainInput(strings.NewReader(strings.Join(script, "\n")+"\n"), ts.out)
	if err := ts.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return ts.out.String()
}

func TestSession_EndToEndBudget(t *testing.T) {
	ts := newTestSession(t, 100, 50, nil)
	a := ts.write(t, "a.txt", 10)
	b := ts.write(t, "b.txt", 20)
	c := ts.write(t, "c.txt", 25)

	out := ts.run(t, "/add "+a, "/add "+b, "/list", "/add "+c, "/list", "/quit")

	if strings.Count(out, "Total: 30 tokens | Available: 20 tokens") != 2 {
		t.Errorf("expected total 30 / available 20 before and after the rejected add:\n%s", out)
	}
	if !strings.Contains(out, "needs 25 tokens but only 20 are available") {
		t.Errorf("budget error not reported:\n%s", out)
	}
	if ts.reg.Tracked(c) {
		t.Error("c.txt should not be tracked")
	}
	if len(ts.llm.requests) != 0 {
		t.Error("slash commands must not reach the model")
	}
}

func TestSession_ListShowsFilesInOrder(t *testing.T) {
	ts := newTestSession(t, 100000, 0, nil)
	ts.write(t, "src/z.go", 1500)
	ts.write(t, "a.md", 2)

	out := ts.run(t, "/add "+filepath.Join(ts.dir, "src", "z.go"), "/add "+filepath.Join(ts.dir, "a.md"), "/list")

	iz := strings.Index(out, "  "+filepath.Join("src", "z.go")+"  1,500 tokens")
	ia := strings.Index(out, "  a.md  2 tokens")
	if iz < 0 || ia < 0 || iz > ia {
		t.Errorf("/list should show files in insertion order with counts:\n%s", out)
	}
}

func TestSession_ChatSendsContextAndHistory(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	a := ts.write(t, "a.txt", 3)

	ts.run(t, "/add "+a, "what is in a?", "and now?")

	if len(ts.llm.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(ts.llm.requests))
	}
	first := ts.llm.requests[0]
	if len(first.Messages) != 2 {
		t.Fatalf("first request messages = %d, want 2", len(first.Messages))
	}
	if !strings.HasPrefix(first.Messages[0].Content, "Tracked file context:\n\nFile: a.txt\n\n") {
		t.Errorf("context block = %q", first.Messages[0].Content)
	}
	if first.Messages[1].Content != "what is in a?" {
		t.Errorf("user message = %q", first.Messages[1].Content)
	}

	second := ts.llm.requests[1]
	var roles []adapter.Role
	for _, m := range second.Messages {
		roles = append(roles, m.Role)
	}
	want := []adapter.Role{adapter.RoleUser, adapter.RoleUser, adapter.RoleAssistant, adapter.RoleUser}
	if !slices.Equal(roles, want) {
		t.Errorf("second request roles = %v, want %v", roles, want)
	}
	if len(ts.History()) != 4 {
		t.Errorf("history length = %d, want 4", len(ts.History()))
	}
}

func TestSession_ChatSeesEditsOnlyAfterRefresh(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	a := ts.write(t, "a.txt", 2)
	ts.Handle(context.Background(), command.Add{Path: a})

	os.WriteFile(a, []byte("edited content here"), 0o644)
	ts.Handle(context.Background(), command.Chat{Text: "q1"})
	if strings.Contains(ts.llm.requests[0].Messages[0].Content, "edited") {
		t.Error("context should use the content cached at add time")
	}

	ts.Handle(context.Background(), command.Refresh{})
	ts.Handle(context.Background(), command.Chat{Text: "q2"})
	if !strings.Contains(ts.llm.requests[1].Messages[0].Content, "edited content here") {
		t.Error("refresh should pick up the edit")
	}
}

func TestSession_APIErrorKeepsHistory(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	ts.llm.err = &adapter.APIError{Provider: "openai", StatusCode: 429, Err: errors.New("rate limited")}

	out := ts.run(t, "hello")

	if !strings.Contains(out, "Error: openai api: status 429: rate limited") {
		t.Errorf("api error not shown:\n%s", out)
	}
	if len(ts.History()) != 0 {
		t.Error("failed turn must not be added to history")
	}

	ts.llm.err = nil
	ts.run(t, "again")
	if n := len(ts.llm.requests[1].Messages); n != 1 {
		t.Errorf("retry should send only the new message, got %d", n)
	}
}

func TestSession_UnknownAndUsage(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	out := ts.run(t, "/frobnicate", "/add", "/remove "+filepath.Join(ts.dir, "nope.txt"))

	if !strings.Contains(out, "Unknown command /frobnicate") {
		t.Errorf("unknown command not reported:\n%s", out)
	}
	if !strings.Contains(out, "usage: /add <file>") {
		t.Errorf("usage not reported:\n%s", out)
	}
	if !strings.Contains(out, "is not being tracked") {
		t.Errorf("remove of untracked path should fail:\n%s", out)
	}
	if len(ts.llm.requests) != 0 {
		t.Error("none of these lines should reach the model")
	}
}

func TestSession_AddDirAndRemoveDir(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	ts.write(t, "proj/a.txt", 1)
	ts.write(t, "proj/sub/b.txt", 2)
	ts.write(t, "proj/.git/config", 50)
	os.WriteFile(filepath.Join(ts.dir, "proj", "img.bin"), []byte{0, 1, 2}, 0o644)
	proj := filepath.Join(ts.dir, "proj")

	out := ts.run(t, "/add_dir "+proj, "/list")
	if ts.reg.Len() != 2 || ts.reg.TotalTokens() != 3 {
		t.Errorf("after add_dir: len=%d total=%d\n%s", ts.reg.Len(), ts.reg.TotalTokens(), out)
	}
	if !strings.Contains(out, "skipped "+filepath.Join("proj", "img.bin")) {
		t.Errorf("binary skip not reported:\n%s", out)
	}

	out = ts.run(t, "/remove_dir "+proj)
	if ts.reg.Len() != 0 || !strings.Contains(out, "Stopped tracking 2 file(s)") {
		t.Errorf("remove_dir: len=%d\n%s", ts.reg.Len(), out)
	}
}

func TestSession_Lenses(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	a := ts.write(t, "a.txt", 1)
	b := ts.write(t, "b.txt", 1)

	out := ts.run(t,
		"/add "+a, "/add "+b,
		"/create_lens api",
		"/add_to_lens "+b,
		"/list_lenses",
		"/list_lens",
		"question",
	)
	if !strings.Contains(out, "* api (1 files)") {
		t.Errorf("/list_lenses output:\n%s", out)
	}
	ctx := ts.llm.requests[0].Messages[0].Content
	if strings.Contains(ctx, "File: a.txt") || !strings.Contains(ctx, "File: b.txt") {
		t.Errorf("active lens should restrict context:\n%s", ctx)
	}

	ts.run(t, "/switch_lens none", "question")
	ctx = ts.llm.requests[1].Messages[0].Content
	if !strings.Contains(ctx, "File: a.txt") || !strings.Contains(ctx, "File: b.txt") {
		t.Errorf("no lens should send every file:\n%s", ctx)
	}

	out = ts.run(t, "/add_to_lens "+a)
	if !strings.Contains(out, "no active lens") {
		t.Errorf("add_to_lens without lens:\n%s", out)
	}
}

func TestSession_HelpListsCommands(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	out := ts.run(t, "/help")
	for _, s := range command.Specs {
		if !strings.Contains(out, s.Usage) {
			t.Errorf("/help missing %s", s.Usage)
		}
	}
}

func TestSession_PersistAndRestore(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	st := store.NewStore(database)

	first := newTestSession(t, 1000, 0, st)
	a := first.write(t, "a.txt", 2)
	b := first.write(t, "b.txt", 3)
	gone := first.write(t, "gone.txt", 4)
	first.run(t, "/add "+b, "/add "+a, "/add "+gone, "/create_lens l", "/add_to_lens "+a)
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	second := newTestSession(t, 1000, 0, st)
	if err := second.Restore(); err != nil {
		t.Fatal(err)
	}
	if got := second.reg.Paths(); !slices.Equal(got, []string{b, a}) {
		t.Errorf("restored paths = %v, want [b a]", got)
	}
	if second.reg.TotalTokens() != 5 {
		t.Errorf("restored total = %d, want 5 (fresh counts)", second.reg.TotalTokens())
	}
	if second.reg.ActiveLens() != "l" || !slices.Equal(second.reg.LensPaths("l"), []string{a}) {
		t.Errorf("lens not restored: active=%q members=%v", second.reg.ActiveLens(), second.reg.LensPaths("l"))
	}
	if !strings.Contains(second.out.String(), "Could not restore") {
		t.Error("missing file should be reported on restore")
	}

	saved, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if slices.Contains(saved.Tracked, gone) {
		t.Error("unrestorable file should be dropped from saved state")
	}
}

func TestSession_NoPersistWithoutStore(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	if err := ts.Restore(); err != nil {
		t.Fatal(err)
	}
	a := ts.write(t, "a.txt", 1)
	ts.run(t, "/add "+a)
	if ts.reg.Len() != 1 {
		t.Error("add should work without persistence")
	}
}

func TestSession_QuitAndEOF(t *testing.T) {
	ts := newTestSession(t, 1000, 0, nil)
	out := ts.run(t, "/quit", "never sent")
	if !strings.Contains(out, "Goodbye.") || len(ts.llm.requests) != 0 {
		t.Errorf("/quit should stop the loop:\n%s", out)
	}

	// End of input without /quit ends the session cleanly.
	ts.run(t, "")
}
