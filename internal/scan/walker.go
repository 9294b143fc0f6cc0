// Package scan implements filesystem credential scanning over a compiled
// rule set. The walker reads files line by line and reports masked matches;
// raw secret text never leaves this package.
package scan

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gantry-ci/gantry/pkg/gantry/v1/log"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/scan"
)

// maxScanLineLength bounds per-line work; minified or binary-ish lines
// longer than this are skipped rather than scanned.
const maxScanLineLength = 4096

// Walker is the filesystem-backed Scanner implementation.
type Walker struct {
	log log.Logger
}

var _ scan.Scanner = (*Walker)(nil)

// NewWalker creates a Walker. The logger must not be nil.
func NewWalker(logger log.Logger) *Walker {
	if logger == nil {
		panic("scan: NewWalker requires a non-nil logger")
	}
	return &Walker{log: logger}
}

type compiledPattern struct {
	pattern scan.Pattern
	re      *regexp.Regexp
}

// Scan walks every root in the request, applies the include/exclude globs,
// and matches each surviving line against the compiled patterns. Matches
// carry masked text only. The context cancels an in-progress walk.
func (w *Walker) Scan(ctx context.Context, req scan.Request) ([]scan.Match, error) {
	patterns := req.Patterns
	if len(patterns) == 0 {
		patterns = DefaultSecretPatterns()
	}
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiling scan pattern %q: %w", p.ID, err)
		}
		compiled = append(compiled, compiledPattern{pattern: p, re: re})
	}

	excludes := req.Exclude
	if excludes == nil {
		excludes = DefaultExcludes()
	}

	var matches []scan.Match
	for _, root := range req.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are logged and skipped, not fatal.
				w.log.Debugf("Skipping unreadable path during scan: %s: %v", path, err)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if matchesAnyGlob(rel+"/", excludes) {
					return filepath.SkipDir
				}
				return nil
			}
			if matchesAnyGlob(rel, excludes) {
				return nil
			}
			if len(req.Include) > 0 && !matchesAnyGlob(rel, req.Include) {
				return nil
			}
			fileMatches, scanErr := w.scanFile(path, rel, compiled)
			if scanErr != nil {
				w.log.Debugf("Skipping unscannable file: %s: %v", path, scanErr)
				return nil
			}
			matches = append(matches, fileMatches...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (w *Walker) scanFile(path, rel string, patterns []compiledPattern) ([]scan.Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []scan.Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) > maxScanLineLength || strings.ContainsRune(line, '\x00') {
			continue
		}
		for _, cp := range patterns {
			loc := cp.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			matches = append(matches, scan.Match{
				File:     rel,
				Line:     lineNum,
				RuleID:   cp.pattern.ID,
				Category: cp.pattern.Category,
				Severity: cp.pattern.Severity,
				Masked:   maskMatch(line[loc[0]:loc[1]]),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return matches, err
	}
	return matches, nil
}

// maskMatch keeps a short identifying prefix and obscures the rest so a
// finding can be located without republishing the credential.
func maskMatch(matched string) string {
	const keep = 6
	if len(matched) <= keep {
		return strings.Repeat("*", len(matched))
	}
	return matched[:keep] + strings.Repeat("*", len(matched)-keep)
}

// matchesAnyGlob applies doublestar-style globs against a slash-separated
// relative path. "**/" prefixes match at any depth.
func matchesAnyGlob(rel string, globs []string) bool {
	for _, g := range globs {
		if globMatch(g, rel) {
			return true
		}
	}
	return false
}

func globMatch(glob, rel string) bool {
	glob = filepath.ToSlash(glob)
	// "**/x/**" means "any path containing segment x".
	if strings.HasPrefix(glob, "**/") && strings.HasSuffix(glob, "/**") {
		segment := strings.TrimSuffix(strings.TrimPrefix(glob, "**/"), "/**")
		for _, part := range strings.Split(strings.Trim(rel, "/"), "/") {
			if ok, _ := filepath.Match(segment, part); ok {
				return true
			}
		}
		return false
	}
	if strings.HasPrefix(glob, "**/") {
		base := strings.TrimPrefix(glob, "**/")
		if ok, _ := filepath.Match(base, filepath.Base(rel)); ok {
			return true
		}
	}
	ok, _ := filepath.Match(glob, rel)
	return ok
}
