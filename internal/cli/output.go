package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// output writes everything the user sees. Styles are empty when colour is
// off, so plain output is byte-for-byte the message text.
type output struct {
	w        io.Writer
	markdown *glamour.TermRenderer

	prompt  lipgloss.Style
	bot     lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
	header  lipgloss.Style
}

func newOutput(w io.Writer, color, markdown bool) *output {
	o := &output{w: w}
	if color {
		r := lipgloss.NewRenderer(w)
		o.prompt = r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
		o.bot = r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
		o.success = r.NewStyle().Foreground(lipgloss.Color("2"))
		o.warn = r.NewStyle().Foreground(lipgloss.Color("3"))
		o.err = r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
		o.muted = r.NewStyle().Foreground(lipgloss.Color("8"))
		o.header = r.NewStyle().Bold(true).Underline(true)
	}
	if markdown {
		tr, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			o.markdown = tr
		}
	}
	return o
}

func (o *output) promptText() string { return o.prompt.Render("You:") + " " }

func (o *output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *output) successf(format string, args ...any) {
	fmt.Fprintln(o.w, o.success.Render(fmt.Sprintf(format, args...)))
}

func (o *output) warnf(format string, args ...any) {
	fmt.Fprintln(o.w, o.warn.Render(fmt.Sprintf(format, args...)))
}

func (o *output) fail(err error) {
	fmt.Fprintln(o.w, o.err.Render("Error:")+" "+err.Error())
}

func (o *output) headerf(format string, args ...any) {
	fmt.Fprintln(o.w, o.header.Render(fmt.Sprintf(format, args...)))
}

// response prints a model reply, rendered as markdown when enabled.
func (o *output) response(text string) {
	fmt.Fprintln(o.w, o.bot.Render("Bot:"))
	if o.markdown != nil {
		if rendered, err := o.markdown.Render(text); err == nil {
			fmt.Fprint(o.w, rendered)
			return
		}
	}
	fmt.Fprintln(o.w, strings.TrimRight(text, "\n"))
}

// tokens formats a token count with thousands separators.
func tokens(n int) string {
	return humanize.Comma(int64(n)) + " tokens"
}
