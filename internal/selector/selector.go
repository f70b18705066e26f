// Package selector derives stable CSS and XPath selectors for an element the
// user picked in a document.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Strategy names how a selector was derived.
type Strategy string

// Strategies, most to least stable.
const (
	StrategyID         Strategy = "id"
	StrategyTable      Strategy = "table"
	StrategyContextual Strategy = "contextual"
	StrategyPositional Strategy = "positional"
	StrategyNone       Strategy = "none"
)

// Selector locates one element.
type Selector struct {
	CSS        string   `json:"cssSelector"`
	XPath      string   `json:"xpath"`
	Strategy   Strategy `json:"strategy"`
	Confidence float64  `json:"confidence"`
}

const maxContextLevels = 4

var (
	generatedClass = regexp.MustCompile(`^(css|sc|jsx|emotion|styled|svelte|chakra|mui|makeStyles)-|^_[a-zA-Z0-9]{5,}$`)
	stateClass     = regexp.MustCompile(`^(is|has)-|^(active|selected|hover|focus|focused|open|opened|closed|disabled|enabled|checked|hidden|show|shown|visible|collapsed|expanded|current)$`)
)

// Generate returns a selector for n. It never fails: a nil node yields an
// empty selector and a node outside a document gets confidence 0.
func Generate(n *html.Node) Selector {
	if n == nil || n.Type != html.ElementNode {
		return Selector{Strategy: StrategyNone}
	}

	root := topOf(n)
	attached := root.Type == html.DocumentNode
	xpath := absoluteXPath(n)

	sel := generate(n, root, xpath)
	if !attached {
		sel.Confidence = 0
	}
	return sel
}

func generate(n, root *html.Node, xpath string) Selector {
	if id, ok := attr(n, "id"); ok && id != "" && countIDs(root, id) == 1 {
		return Selector{
			CSS:        idSelector(id),
			XPath:      fmt.Sprintf("//*[@id=%s]", xpathLiteral(id)),
			Strategy:   StrategyID,
			Confidence: 0.95,
		}
	}

	if css, ok := tablePath(n); ok && unique(root, css, n) {
		return Selector{CSS: css, XPath: xpath, Strategy: StrategyTable, Confidence: 0.8}
	}

	if css := contextualPath(n); unique(root, css, n) {
		return Selector{CSS: css, XPath: xpath, Strategy: StrategyContextual, Confidence: 0.7}
	}

	return Selector{CSS: positionalPath(n), XPath: xpath, Strategy: StrategyPositional, Confidence: 0.5}
}

func topOf(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func countIDs(root *html.Node, id string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if v, ok := attr(n, "id"); ok && v == id {
				count++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return count
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

func idSelector(id string) string {
	if plainIdent.MatchString(id) {
		return "#" + id
	}
	return `[id="` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(id) + `"]`
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

// typeIndex returns the one-based position of n among same-tag siblings and
// whether any such sibling exists.
func typeIndex(n *html.Node) (int, bool) {
	idx, total := 0, 0
	if n.Parent == nil {
		return 1, false
	}
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		total++
		if c == n {
			idx = total
		}
	}
	return idx, total > 1
}

func step(n *html.Node, always bool) string {
	idx, siblings := typeIndex(n)
	if siblings || always {
		return fmt.Sprintf("%s:nth-of-type(%d)", n.Data, idx)
	}
	return n.Data
}

func absoluteXPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		idx, _ := typeIndex(cur)
		parts = append(parts, fmt.Sprintf("%s[%d]", cur.Data, idx))
	}
	reverse(parts)
	return "/" + strings.Join(parts, "/")
}

func positionalPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		parts = append(parts, step(cur, false))
	}
	reverse(parts)
	return strings.Join(parts, " > ")
}

func tablePath(n *html.Node) (string, bool) {
	var cell, row, table *html.Node
	var below []*html.Node
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		switch {
		case cell == nil && (cur.DataAtom == atom.Td || cur.DataAtom == atom.Th):
			cell = cur
		case cell != nil && row == nil && cur.DataAtom == atom.Tr:
			row = cur
		case row != nil && cur.DataAtom == atom.Table:
			table = cur
		}
		if table != nil {
			break
		}
		if cell == nil {
			below = append(below, cur)
		}
	}
	if table == nil {
		return "", false
	}

	path := fmt.Sprintf("%s %s %s", step(table, true), step(row, true), step(cell, true))
	if len(below) > 0 {
		reverse(below)
		steps := make([]string, len(below))
		for i, b := range below {
			steps[i] = step(b, false)
		}
		path += " > " + strings.Join(steps, " > ")
	}
	return path, true
}

func contextualPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode && len(parts) < maxContextLevels; cur = cur.Parent {
		if cur.DataAtom == atom.Html {
			break
		}
		if class := stableClass(cur); class != "" {
			parts = append(parts, cur.Data+"."+class)
			continue
		}
		parts = append(parts, step(cur, false))
	}
	reverse(parts)
	return strings.Join(parts, " > ")
}

func stableClass(n *html.Node) string {
	v, ok := attr(n, "class")
	if !ok {
		return ""
	}
	for _, c := range strings.Fields(v) {
		if isStableClass(c) {
			return c
		}
	}
	return ""
}

func isStableClass(c string) bool {
	if !plainIdent.MatchString(c) || generatedClass.MatchString(c) || stateClass.MatchString(c) {
		return false
	}
	digits := 0
	for _, r := range c {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits*2 < len(c)
}

// unique reports whether css matches exactly n within root.
func unique(root *html.Node, css string, n *html.Node) bool {
	if css == "" {
		return false
	}
	sel, err := cascadia.Compile(css)
	if err != nil {
		return false
	}
	matches := cascadia.QueryAll(root, sel)
	return len(matches) == 1 && matches[0] == n
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
