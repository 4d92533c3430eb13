package measure

import (
	"fmt"
	"regexp"
)

// Matcher extracts the first capture group of a pattern from console text
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles a pattern. The pattern must have at least one capture group.
func NewMatcher(pattern string) (*Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q has no capture group", pattern)
	}
	return &Matcher{re: re}, nil
}

// Match returns the captured value and whether the text matched
func (m *Matcher) Match(text string) (string, bool) {
	matches := m.re.FindStringSubmatch(text)
	if len(matches) < 2 || matches[1] == "" {
		return "", false
	}
	return matches[1], true
}
