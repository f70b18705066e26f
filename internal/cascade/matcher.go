package cascade

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// PatternMatcher evaluates text patterns.
type PatternMatcher interface {
	// Find returns the given capture group of the first match, the whole
	// match when the pattern has no groups, or "" when nothing matches.
	Find(pattern, text string, group int) (string, error)
	// Match reports whether the pattern matches anywhere in text.
	Match(pattern, text string) (bool, error)
}

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 2 * time.Second

// Regexp2Matcher evaluates ECMAScript-flavoured, case-insensitive patterns.
type Regexp2Matcher struct {
	// Timeout defaults to DefaultMatchTimeout.
	Timeout time.Duration
}

var _ PatternMatcher = Regexp2Matcher{}

func (m Regexp2Matcher) compile(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript|regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = m.Timeout
	if re.MatchTimeout <= 0 {
		re.MatchTimeout = DefaultMatchTimeout
	}
	return re, nil
}

// Find implements PatternMatcher.
func (m Regexp2Matcher) Find(pattern, text string, group int) (string, error) {
	re, err := m.compile(pattern)
	if err != nil {
		return "", err
	}
	count := len(re.GetGroupNumbers()) - 1
	if count > 0 && (group < 0 || group > count) {
		return "", fmt.Errorf("%w: group %d, pattern has %d", ErrCaptureGroup, group, count)
	}

	match, err := re.FindStringMatch(text)
	if err != nil || match == nil {
		return "", err
	}
	if count == 0 {
		return strings.TrimSpace(match.String()), nil
	}
	g := match.GroupByNumber(group)
	if g == nil {
		return "", nil
	}
	if len(g.Captures) == 0 {
		return "", nil
	}
	return strings.TrimSpace(g.String()), nil
}

// Match implements PatternMatcher.
func (m Regexp2Matcher) Match(pattern, text string) (bool, error) {
	re, err := m.compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text)
}
