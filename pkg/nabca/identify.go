package nabca

import (
	"log/slog"
	"strings"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/ocr"
)

// Identification tuning.
const (
	DefaultFuzzyThreshold = 0.8
	HeaderMatchRatio      = 0.7
	HeaderScanRows        = 10
	MinAssignScore        = 0.6
)

// Match assigns one table to one pattern.
type Match struct {
	Table     ocr.Table
	Pattern   core.TablePattern
	HeaderRow int
	Score     float64
}

// HeaderRow finds the header row of a table among its first rows: the first
// row where at least 70% of the required headers reach threshold against
// some cell. It returns the row index and the matched fraction.
func HeaderRow(t ocr.Table, required []string, threshold float64) (int, float64, bool) {
	if len(required) == 0 {
		return 0, 0, false
	}
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	limit := min(len(t.Rows), HeaderScanRows)
	for i := 0; i < limit; i++ {
		matched := 0
		for _, h := range required {
			if s, _ := bestMatch(h, t.Rows[i]); s >= threshold {
				matched++
			}
		}
		frac := float64(matched) / float64(len(required))
		if frac >= HeaderMatchRatio {
			return i, frac, true
		}
	}
	return 0, 0, false
}

// Score rates how well a table fits a pattern. The base score is the
// fraction of required headers matched. Title keywords found in the page
// text add 0.3 when all are present or a proportional 0.15 when some are.
// When none are found the base is halved, but only if one of rivals has its
// full title on the page; continuation pages carry no title and keep the
// base.
func Score(t ocr.Table, p core.TablePattern, pageLines []string, rivals []core.TablePattern) (float64, int, bool) {
	row, base, ok := HeaderRow(t, p.RequiredHeaders, p.FuzzyThreshold)
	if !ok {
		return 0, 0, false
	}
	if len(p.TitleKeywords) == 0 {
		return base, row, true
	}

	page := Normalize(strings.Join(pageLines, " "))
	found := titleHits(p, page)
	switch {
	case found == len(p.TitleKeywords):
		return base + 0.3, row, true
	case found > 0:
		return base + 0.15*float64(found)/float64(len(p.TitleKeywords)), row, true
	}
	for _, r := range rivals {
		if r.Name == p.Name && r.TargetEntity == p.TargetEntity {
			continue
		}
		if len(r.TitleKeywords) > 0 && titleHits(r, page) == len(r.TitleKeywords) {
			return base * 0.5, row, true
		}
	}
	return base, row, true
}

// titleHits counts the title keywords of p found in normalized page text.
func titleHits(p core.TablePattern, page string) int {
	found := 0
	for _, kw := range p.TitleKeywords {
		if nk := Normalize(kw); nk != "" && strings.Contains(page, nk) {
			found++
		}
	}
	return found
}

// Identify assigns tables to patterns in document order. Each table goes to
// the highest scoring pattern at or above MinAssignScore whose entity has
// not been claimed by an earlier table, unless the pattern allows multiple.
func Identify(a *ocr.Analysis, patterns []core.TablePattern, logger *slog.Logger) []Match {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	claimed := make(map[string]bool)
	var matches []Match
	for _, t := range a.Tables {
		lines := a.LinesOnPage(t.Page)

		var best *Match
		for _, p := range patterns {
			if claimed[p.TargetEntity] && !p.AllowMultiple {
				continue
			}
			score, row, ok := Score(t, p, lines, patterns)
			if !ok || score < MinAssignScore {
				continue
			}
			if best == nil || score > best.Score {
				best = &Match{Table: t, Pattern: p, HeaderRow: row, Score: score}
			}
		}

		if best == nil {
			logger.Debug("table matched no pattern", "table", t.Index, "page", t.Page)
			continue
		}
		claimed[best.Pattern.TargetEntity] = true
		logger.Debug("table identified",
			"table", t.Index,
			"page", t.Page,
			"pattern", best.Pattern.Name,
			"entity", best.Pattern.TargetEntity,
			"score", best.Score)
		matches = append(matches, *best)
	}
	return matches
}
