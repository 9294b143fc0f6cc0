// Package scan defines the file-pattern scanning collaborator consumed by the
// policy engine and the heal protocol. Given root paths, include/exclude
// globs, and a pattern set, a Scanner returns structured matches with the
// matched text masked.
package scan

import "context"

// Severity classifies how serious a pattern match is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Pattern is one detection rule: a regular expression with a category and a
// severity. The expression is compiled by the scanner implementation.
type Pattern struct {
	ID       string
	Category string
	Expr     string
	Severity Severity
}

// Match is one structured finding. Masked holds a redacted form of the
// matched text; the raw match is never surfaced.
type Match struct {
	File     string
	Line     int
	RuleID   string
	Category string
	Severity Severity
	Masked   string
}

// Request describes one scan invocation.
type Request struct {
	// Roots are the directories to walk.
	Roots []string
	// Include restricts the scan to files whose relative path matches at
	// least one glob. Empty means all files.
	Include []string
	// Exclude skips files whose relative path matches any glob.
	Exclude []string
	// Patterns is the rule set to apply.
	Patterns []Pattern
}

// Scanner walks the requested roots and applies the pattern set line by line.
type Scanner interface {
	Scan(ctx context.Context, req Request) ([]Match, error)
}
