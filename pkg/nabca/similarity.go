// Package nabca extracts NABCA liquor-report tables from OCR output: it
// recognizes which table is which by fuzzy header matching and page titles,
// then maps table rows to entity records by position or header.
package nabca

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case and accents and collapses punctuation and whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var sb strings.Builder
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '%' || r == '#' {
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
			continue
		}
		space = true
	}
	return sb.String()
}

// Similarity scores two strings in [0,1]: 1 when either normalized string
// contains the other, otherwise the sequence-matcher ratio.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(na, ""), strings.Split(nb, ""))
	return m.Ratio()
}

// bestMatch returns the highest similarity of want against any cell.
func bestMatch(want string, cells []string) (float64, int) {
	best, idx := 0.0, -1
	for i, c := range cells {
		if s := Similarity(want, c); s > best {
			best, idx = s, i
		}
	}
	return best, idx
}
