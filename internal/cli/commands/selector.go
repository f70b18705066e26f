package commands

import (
	"fmt"
	"os"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/inspector/internal/cli/output"
	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/internal/selector"
)

// SelectorMatch is one element and the selector derived for it.
type SelectorMatch struct {
	Text     string            `json:"text"`
	Selector selector.Selector `json:"selector"`
}

// NewSelectorCommand creates the selector command.
func NewSelectorCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "selector <file> <css>",
		Short: "Derive stable selectors for elements of an HTML document",
		Long: `Find the elements matching a CSS query and derive, for each, the most
stable selector that locates it: an id, a table cell position, the nearest
stable ancestor, or an absolute position as a last resort.

The derived selectors can be pasted into a template's fields.`,
		Example: `  # Selectors for every total cell
  inspector selector invoice.html 'td.total'

  # JSON output for tooling
  inspector selector invoice.html '#summary span' -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelector(cmd, args[0], args[1], limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of matches to report (0 for all)")
	return cmd
}

func runSelector(cmd *cobra.Command, file, query string, limit int) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	sel, err := cascadia.Compile(query)
	if err != nil {
		return fmt.Errorf("invalid CSS selector %q: %w", query, err)
	}
	data, err := os.ReadFile(file) //nolint:gosec // user-supplied document path
	if err != nil {
		return err
	}
	doc, err := document.ParseHTML(data)
	if err != nil {
		return err
	}

	nodes := sel.MatchAll(doc.Root)
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	matches := make([]SelectorMatch, 0, len(nodes))
	for _, n := range nodes {
		matches = append(matches, SelectorMatch{
			Text:     document.CollapseSpace(document.Text(n)),
			Selector: selector.Generate(n),
		})
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(matches)
	}
	if len(matches) == 0 {
		r.Muted("no elements match " + query)
		return nil
	}
	r.Header(1, "Selectors")
	rows := make([][]any, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []any{
			truncate(m.Text, 40),
			m.Selector.CSS,
			m.Selector.XPath,
			m.Selector.Strategy,
			fmt.Sprintf("%.2f", m.Selector.Confidence),
		})
	}
	r.Table([]string{"Text", "CSS", "XPath", "Strategy", "Confidence"}, rows)
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
