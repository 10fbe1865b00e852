// Package pattern recognizes screenshot capture API calls in source text.
//
// Each line is offered to an ordered list of category matchers. The first
// matcher that recognizes the line determines its category, so a line
// yields at most one Pattern. Region is checked before the generic capture
// matcher because both describe "capture" calls and region lines carry
// extra parameters.
//
// Matching is purely textual. Deprecated spellings are recognized as the
// same category as their replacements; flagging them is the diagnostics
// package's job.
package pattern

import (
	"regexp"
	"strings"

	"github.com/timvw/shotlens/internal/model"
)

// Matcher recognizes one category of call on a single line.
type Matcher interface {
	// Category returns the category this matcher produces.
	Category() model.Category

	// Match returns the byte offset and text of the first recognized call
	// on the line, or ok=false when the line does not belong to this
	// category.
	Match(line string) (column int, text string, ok bool)
}

// regexpMatcher is a Matcher backed by a case-insensitive regular expression.
type regexpMatcher struct {
	category model.Category
	re       *regexp.Regexp
}

func (m *regexpMatcher) Category() model.Category { return m.category }

func (m *regexpMatcher) Match(line string) (int, string, bool) {
	loc := m.re.FindStringIndex(line)
	if loc == nil {
		return 0, "", false
	}
	return loc[0], line[loc[0]:loc[1]], true
}

// NewMatcher builds a Matcher from a regular expression. The expression is
// compiled case-insensitively.
func NewMatcher(category model.Category, expr string) Matcher {
	return &regexpMatcher{
		category: category,
		re:       regexp.MustCompile(`(?i)` + expr),
	}
}

var (
	regionMatcher = NewMatcher(model.CategoryRegion,
		`\b(captureRegion|captureArea|screenshot_capture_region)\b`)
	captureMatcher = NewMatcher(model.CategoryCapture,
		`\b(captureFullScreen|captureWindow\w*|takeScreenshot|captureScreen|screenshot_capture_full|screenshot_capture_window)\b`)
	listDisplaysMatcher = NewMatcher(model.CategoryListDisplays,
		`\b(listDisplays|getDisplays|screenshot_list_displays)\b`)
	listWindowsMatcher = NewMatcher(model.CategoryListWindows,
		`\b(listWindows|screenshot_list_windows)\b`)
)

// Registry holds an ordered list of matchers and tries each one per line.
type Registry struct {
	matchers []Matcher
}

// NewRegistry creates a registry with the default matchers in priority
// order: region, capture, list displays, list windows.
func NewRegistry() *Registry {
	return &Registry{
		matchers: []Matcher{
			regionMatcher,
			captureMatcher,
			listDisplaysMatcher,
			listWindowsMatcher,
		},
	}
}

// NewRegistryWith creates a registry from a custom ordered matcher list.
func NewRegistryWith(matchers ...Matcher) *Registry {
	return &Registry{matchers: matchers}
}

// Analyze scans text line by line and returns every recognized pattern in
// source order. It is deterministic and never fails.
func (r *Registry) Analyze(text string) []model.Pattern {
	var patterns []model.Pattern
	for i, line := range splitLines(text) {
		for _, m := range r.matchers {
			col, matched, ok := m.Match(line)
			if !ok {
				continue
			}
			p := model.Pattern{
				Category:    m.Category(),
				Line:        i,
				Column:      col,
				MatchedText: matched,
			}
			if p.Category == model.CategoryRegion {
				p.Parameters = ExtractRegion(line)
			}
			patterns = append(patterns, p)
			break
		}
	}
	return patterns
}

var defaultRegistry = NewRegistry()

// Analyze runs the default registry over text.
func Analyze(text string) []model.Pattern {
	return defaultRegistry.Analyze(text)
}

// splitLines splits on "\n" and drops a trailing "\r" from each line so
// CRLF input reports the same columns as LF input.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
