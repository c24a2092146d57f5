package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher decides whether a scraped posting is relevant to the catalog at
// all. Per-user fit scoring happens later, against the stored row.
type Matcher struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// NewMatcher compiles case-insensitive whole-word alternations. An empty
// include list matches everything; an empty exclude list excludes nothing.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	m := &Matcher{}
	var err error
	if m.include, err = wordsRegex(include); err != nil {
		return nil, fmt.Errorf("include keywords: %w", err)
	}
	if m.exclude, err = wordsRegex(exclude); err != nil {
		return nil, fmt.Errorf("exclude keywords: %w", err)
	}
	return m, nil
}

func wordsRegex(words []string) (*regexp.Regexp, error) {
	var parts []string
	for _, w := range words {
		fields := strings.Fields(w)
		if len(fields) == 0 {
			continue
		}
		for i, f := range fields {
			fields[i] = regexp.QuoteMeta(f)
		}
		parts = append(parts, strings.Join(fields, `\s+`))
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?i)\b(` + strings.Join(parts, "|") + `)\b`)
}

// Relevant reports whether the title or description hits an include keyword
// and the title avoids every exclude keyword. A nil Matcher accepts all.
func (m *Matcher) Relevant(title, description string) bool {
	if m == nil {
		return true
	}
	if m.exclude != nil && m.exclude.MatchString(title) {
		return false
	}
	if m.include == nil {
		return true
	}
	return m.include.MatchString(title + " " + description)
}
