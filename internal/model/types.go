package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is an immutable snapshot of an editor buffer.
type Document struct {
	// URI identifies the document (e.g., "file:///tmp/agent.ts").
	URI string `json:"uri"`
	// Version increases monotonically with every edit.
	Version int `json:"version"`
	// Text is the full buffer content at Version.
	Text string `json:"text"`
}

// Category classifies a recognized capture API call.
type Category int

const (
	CategoryCapture Category = iota
	CategoryRegion
	CategoryListDisplays
	CategoryListWindows
)

var categoryNames = map[Category]string{
	CategoryCapture:      "capture",
	CategoryRegion:       "region",
	CategoryListDisplays: "list_displays",
	CategoryListWindows:  "list_windows",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalJSON encodes the category by name.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Pattern is one recognized call site in a document.
type Pattern struct {
	Category Category `json:"category"`
	// Line is the 0-based line index.
	Line int `json:"line"`
	// Column is the 0-based byte offset of MatchedText within the line.
	Column int `json:"column"`
	// MatchedText is the call name as written in the source.
	MatchedText string `json:"matched_text"`
	// Parameters holds literal region values (x, y, width, height) found
	// on the line. Nil when the pattern is not a region or no literal
	// values were present.
	Parameters map[string]int `json:"parameters,omitempty"`
}

// HasParameters reports whether any region parameters were extracted.
func (p Pattern) HasParameters() bool {
	return p.Parameters != nil
}

// End returns the position just past MatchedText.
func (p Pattern) End() Position {
	return Position{Line: p.Line, Column: p.Column + len(p.MatchedText)}
}

// Severity of a finding. The numeric values match LSP DiagnosticSeverity.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
	SeverityInfo    Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalJSON encodes the severity by name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Position is a 0-based line and byte column.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open span [Start, End) within a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Finding codes. These strings are part of the published contract and
// must not change.
const (
	CodeInvalidFormat           = "invalid-format"
	CodeQualityOutOfRange       = "quality-out-of-range"
	CodeMissingParameters       = "missing-parameters"
	CodeDeprecatedAPI           = "deprecated-api"
	CodeMissingRegionParameters = "missing-region-parameters"
	CodeInvalidRegionWidth      = "invalid-region-width"
	CodeInvalidRegionHeight     = "invalid-region-height"
)

// Finding is a diagnostic produced by a validator.
type Finding struct {
	Severity Severity `json:"severity"`
	Range    Range    `json:"range"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// FormatFinding renders a finding as "line:col: severity: message [code]"
// using 1-based line and column numbers.
func FormatFinding(f Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d: %s: %s", f.Range.Start.Line+1, f.Range.Start.Column+1, f.Severity, f.Message)
	if f.Code != "" {
		fmt.Fprintf(&b, " [%s]", f.Code)
	}
	return b.String()
}
