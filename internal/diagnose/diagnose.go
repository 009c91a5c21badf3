// Package diagnose maps raw toolkit log text to known issues and their
// remediations. It is pure: no I/O, no state.
package diagnose

import (
	"regexp"

	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

var (
	logHeader = regexp.MustCompile(`=== (setup|hytale-rag) started ===`)
	logLine   = regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \[(INFO|DEBUG|WARNING|ERROR)\]`)
)

// Matcher classifies text against an ordered pattern table.
type Matcher struct {
	patterns []Pattern
}

// New returns a Matcher over patterns. A nil or empty table means the
// built-in one.
func New(patterns []Pattern) *Matcher {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	return &Matcher{patterns: patterns}
}

// Default is the Matcher over the built-in pattern table.
var Default = New(nil)

// LooksLikeProductLog reports whether text carries a toolkit log header or at
// least one structured log line (timestamp followed by a level tag).
func LooksLikeProductLog(text string) bool {
	return logHeader.MatchString(text) || logLine.MatchString(text)
}

// Classify returns every known issue found in text, in table order. Text that
// does not look like a toolkit log yields nothing, even if it happens to
// contain an error signature.
func (m *Matcher) Classify(text string) []protocol.Issue {
	if !LooksLikeProductLog(text) {
		return nil
	}
	return m.Detect(text)
}

// Detect matches text against the table without the log gate.
func (m *Matcher) Detect(text string) []protocol.Issue {
	var issues []protocol.Issue
	for _, p := range m.patterns {
		if p.Expr.MatchString(text) {
			issues = append(issues, protocol.Issue{Name: p.Name, Remediation: p.Remediation})
		}
	}
	return issues
}

// Patterns returns a copy of the table in evaluation order.
func (m *Matcher) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Classify runs the built-in matcher.
func Classify(text string) []protocol.Issue {
	return Default.Classify(text)
}
