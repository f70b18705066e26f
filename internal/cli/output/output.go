// Package output renders command results for terminals, pipes and scripts.
//
// In auto mode a terminal gets styled text and anything else gets markdown,
// which reads well in logs and for agents driving the CLI.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// OutputMode selects how results are written.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Modes lists the accepted --output values.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}
}

// ParseMode validates a mode name. The empty string is auto.
func ParseMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeText, ModeMarkdown, ModeJSON:
		return m, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (expected %s)", s, strings.Join(Modes(), ", "))
	}
}

// Renderer writes command output in one mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
}

type rendererKey struct{}

// WithRenderer stores a renderer in ctx.
func WithRenderer(ctx context.Context, r *Renderer) context.Context {
	return context.WithValue(ctx, rendererKey{}, r)
}

// FromContext returns the renderer stored by WithRenderer, or nil.
func FromContext(ctx context.Context) *Renderer {
	r, _ := ctx.Value(rendererKey{}).(*Renderer)
	return r
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

// EffectiveMode resolves auto to text or markdown.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// Styled reports whether ANSI styling may be written.
func (r *Renderer) Styled() bool {
	return r.isTTY && r.EffectiveMode() == ModeText
}

// Writer returns the result stream.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the diagnostics stream.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Println writes a line to the result stream.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to the result stream.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warnf writes a warning to the diagnostics stream.
func (r *Renderer) Warnf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if r.isTTY {
		msg = text.FgYellow.Sprint(msg)
	}
	_, _ = fmt.Fprintln(r.errOut, msg)
}

// Header writes a section header.
func (r *Renderer) Header(level int, title string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatHeader(level, title))
		r.Println("")
		return
	}
	if r.Styled() {
		if level == 1 {
			title = text.Colors{text.Bold, text.FgCyan}.Sprint(strings.ToUpper(title))
		} else {
			title = text.Bold.Sprint(title)
		}
	}
	r.Println(title)
	if level == 1 {
		r.Println("")
	}
}

// KeyValue writes a labelled value.
func (r *Renderer) KeyValue(key string, value any) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatKeyValue(key, fmt.Sprint(value)))
		return
	}
	label := key + ":"
	if r.Styled() {
		label = text.Faint.Sprint(label)
	}
	r.Printf("  %s %v\n", label, value)
}

// Muted writes a de-emphasized line.
func (r *Renderer) Muted(s string) {
	if r.Styled() {
		s = text.Faint.Sprint(s)
	}
	r.Println(s)
}

// Table writes rows under headers: a box table in text mode and a pipe
// table in markdown mode.
func (r *Renderer) Table(headers []string, rows [][]any) {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	hdr := make(table.Row, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	tw.AppendHeader(hdr)
	for _, row := range rows {
		tw.AppendRow(table.Row(row))
	}
	if r.EffectiveMode() == ModeMarkdown {
		tw.RenderMarkdown()
		r.Println("")
		return
	}
	style := table.StyleLight
	if !r.Styled() {
		style.Format.Header = text.FormatDefault
	}
	tw.SetStyle(style)
	tw.Render()
}

// CodeBlock writes source code, fenced in markdown mode.
func (r *Renderer) CodeBlock(lang, code string) {
	if r.EffectiveMode() == ModeMarkdown {
		r.Println(FormatCodeBlock(lang, code))
		return
	}
	r.Println(strings.TrimRight(code, "\n"))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatHeader returns a markdown header.
func FormatHeader(level int, title string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + title
}

// FormatKeyValue returns a markdown list item with a bold key.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("- **%s:** %s", key, value)
}

// FormatCodeBlock returns a fenced markdown code block.
func FormatCodeBlock(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimRight(code, "\n") + "\n```"
}
