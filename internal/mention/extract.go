// Package mention finds issue identifiers in free-form chat text.
package mention

import (
	"fmt"
	"regexp"
)

// DefaultPattern matches uppercase project codes with a numeric suffix (PROJ-123).
const DefaultPattern = `[A-Z][A-Z0-9]+-[0-9]+`

// Extractor scans text with one compiled pattern. It is safe for concurrent use.
type Extractor struct {
	re    *regexp.Regexp
	group bool
}

// New compiles pattern. An empty pattern selects DefaultPattern.
// When the pattern has capture groups, group 1 is taken as the identifier.
func New(pattern string) (*Extractor, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile mention pattern: %w", err)
	}
	return &Extractor{re: re, group: re.NumSubexp() > 0}, nil
}

// MustNew is New that panics on error. Intended for tests and constants.
func MustNew(pattern string) *Extractor {
	e, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

// Pattern returns the source pattern.
func (e *Extractor) Pattern() string { return e.re.String() }

// Extract returns the distinct identifiers in text in order of first appearance.
// It returns nil when nothing matches.
func (e *Extractor) Extract(text string) []string {
	if e == nil || text == "" {
		return nil
	}
	matches := e.re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var (
		out  []string
		seen = make(map[string]struct{}, len(matches))
	)
	for _, m := range matches {
		id := m[0]
		if e.group {
			id = m[1]
		}
		// An optional group that did not participate yields "".
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
