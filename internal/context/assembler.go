package context

import (
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/localchat/localchat/internal/adapter"
)

// contextHeader opens the context block.
const contextHeader = "Tracked file context:\n\n"

// DefaultSystemPrompt is sent when the configuration does not set one.
const DefaultSystemPrompt = `You are a helpful assistant answering questions about the user's local files.
The first message contains the tracked files, each introduced by a "File:" line
and wrapped in a code fence. Refer to files by their path when relevant.`

// Assembler renders tracked files and the conversation into a request.
type Assembler struct {
	systemPrompt string
	root         string
	files        func() iter.Seq[TrackedFile]
}

// NewAssembler creates an Assembler. files is called once per build and
// must yield the files to include, in order. Paths under root are shown
// relative to it.
func NewAssembler(systemPrompt, root string, files func() iter.Seq[TrackedFile]) *Assembler {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Assembler{systemPrompt: systemPrompt, root: root, files: files}
}

// BuildContextBlock renders every file as a "File: <path>" header followed by
// its fenced content. It uses the content cached at add time, the same text
// the token counts were computed over. Returns "" when there are no files.
func (a *Assembler) BuildContextBlock() string {
	var b strings.Builder
	for f := range a.files() {
		if b.Len() == 0 {
			b.WriteString(contextHeader)
		}
		writeFileSection(&b, DisplayPath(a.root, f.Path), f.Content)
	}
	return b.String()
}

// BuildRequest returns the request for a chat turn: the context block as the
// first user message (when there is one), then history, then userMessage.
func (a *Assembler) BuildRequest(history []adapter.Message, userMessage string) adapter.CompletionRequest {
	msgs := make([]adapter.Message, 0, len(history)+2)
	if block := a.BuildContextBlock(); block != "" {
		msgs = append(msgs, adapter.Message{Role: adapter.RoleUser, Content: block})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, adapter.Message{Role: adapter.RoleUser, Content: userMessage})
	return adapter.CompletionRequest{
		SystemPrompt: a.systemPrompt,
		Messages:     msgs,
	}
}

// DisplayPath shows path relative to root when it lies inside root.
func DisplayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func writeFileSection(b *strings.Builder, path, content string) {
	fence := fenceFor(content)
	fmt.Fprintf(b, "File: %s\n\n", path)
	fmt.Fprintf(b, "%s%s\n", fence, FenceLanguage(path))
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "%s\n\n", fence)
}

// fenceFor returns a backtick fence longer than any backtick run in content,
// so a file that itself contains ``` cannot close the block early.
func fenceFor(content string) string {
	longest, run := 0, 0
	for i := 0; i < len(content); i++ {
		if content[i] == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}
