package cascade

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/leapstack-labs/inspector/internal/document"
)

// evalCheckbox returns the labels of the checked inputs in a container:
// the first one for radio groups, all of them comma-joined otherwise.
func evalCheckbox(root *html.Node, s CheckboxStrategy) (string, error) {
	sel, err := cascadia.Compile(s.Container)
	if err != nil {
		return "", &TemplateError{Layer: "css selector", Expr: s.Container, Err: err}
	}
	container := cascadia.Query(root, sel)
	if container == nil {
		return "", nil
	}

	inputs := choiceInputs(container)
	if len(inputs) == 0 {
		return "", &TemplateError{Layer: "checkbox group", Expr: s.Container, Err: ErrCheckboxTarget}
	}

	var labels []string
	for _, in := range inputs {
		if _, checked := document.Attr(in, "checked"); !checked {
			continue
		}
		label := labelFor(root, in)
		if label == "" {
			continue
		}
		if s.Radio {
			return label, nil
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, ", "), nil
}

func isChoiceInput(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Input {
		return false
	}
	t, _ := document.Attr(n, "type")
	t = strings.ToLower(t)
	return t == "checkbox" || t == "radio"
}

func choiceInputs(container *html.Node) []*html.Node {
	if isChoiceInput(container) {
		return []*html.Node{container}
	}
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isChoiceInput(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(container)
	return out
}

// labelFor resolves an input's label: an explicit label[for], an enclosing
// label, adjacent text, the parent's text, the value or name attribute, and
// finally the browser default value "on".
func labelFor(root, in *html.Node) string {
	if id, ok := document.Attr(in, "id"); ok && id != "" {
		if l := explicitLabel(root, id); l != "" {
			return l
		}
	}

	for p := in.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Label {
			if l := textExcluding(p, in); l != "" {
				return l
			}
			break
		}
	}

	if l := adjacentText(in); l != "" {
		return l
	}

	if in.Parent != nil {
		if l := textExcluding(in.Parent, in); l != "" {
			return l
		}
	}

	if v, ok := document.Attr(in, "value"); ok && strings.TrimSpace(v) != "" && !strings.EqualFold(v, "on") {
		return strings.TrimSpace(v)
	}
	if v, ok := document.Attr(in, "name"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return "on"
}

func explicitLabel(root *html.Node, id string) string {
	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Label {
			if f, ok := document.Attr(n, "for"); ok && f == id {
				found = document.CollapseSpace(document.Text(n))
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

func adjacentText(in *html.Node) string {
	for sib := in.NextSibling; sib != nil; sib = sib.NextSibling {
		switch {
		case sib.Type == html.TextNode:
			if t := document.CollapseSpace(sib.Data); t != "" {
				return t
			}
		case sib.Type == html.ElementNode && sib.DataAtom == atom.Label:
			return document.CollapseSpace(document.Text(sib))
		case sib.Type == html.ElementNode:
			if isChoiceInput(sib) || sib.DataAtom == atom.Br {
				return ""
			}
			if t := document.CollapseSpace(document.Text(sib)); t != "" {
				return t
			}
		}
	}
	return ""
}

// textExcluding returns the collapsed text of n without the skip subtree.
func textExcluding(n, skip *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c == skip {
			return
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return document.CollapseSpace(sb.String())
}
