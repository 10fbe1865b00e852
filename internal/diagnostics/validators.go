package diagnostics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/timvw/shotlens/internal/model"
	"github.com/timvw/shotlens/internal/pattern"
)

// AllowedFormats lists the image formats the capture API accepts.
var AllowedFormats = []string{"png", "jpeg", "webp"}

var (
	formatLiteral  = regexp.MustCompile(`format\s*:\s*["']([^"']*)["']`)
	qualityLiteral = regexp.MustCompile(`quality\s*:\s*(-?\d+)`)
	emptyCall      = regexp.MustCompile(`\b(captureFullScreen|captureWindow|captureRegion)\s*\(\s*\)`)
)

// formatValidator warns on format literals outside AllowedFormats.
type formatValidator struct{}

func (formatValidator) Name() string { return "format" }

func (formatValidator) Validate(doc model.Document, _ []model.Pattern) []model.Finding {
	var out []model.Finding
	for i, line := range lines(doc.Text) {
		for _, m := range formatLiteral.FindAllStringSubmatchIndex(line, -1) {
			value := line[m[2]:m[3]]
			if isAllowedFormat(value) {
				continue
			}
			out = append(out, model.Finding{
				Severity: model.SeverityWarning,
				Range:    span(i, m[0], m[1]),
				Message:  fmt.Sprintf("Invalid format %q. Allowed formats: %s", value, strings.Join(AllowedFormats, ", ")),
				Code:     model.CodeInvalidFormat,
			})
		}
	}
	return out
}

func isAllowedFormat(v string) bool {
	for _, f := range AllowedFormats {
		if v == f {
			return true
		}
	}
	return false
}

// qualityValidator flags quality literals outside [0, 100].
type qualityValidator struct{}

func (qualityValidator) Name() string { return "quality" }

func (qualityValidator) Validate(doc model.Document, _ []model.Pattern) []model.Finding {
	var out []model.Finding
	for i, line := range lines(doc.Text) {
		for _, m := range qualityLiteral.FindAllStringSubmatchIndex(line, -1) {
			literal := line[m[2]:m[3]]
			q, err := strconv.Atoi(literal)
			// A literal too large for int is out of range by definition.
			if err == nil && q >= 0 && q <= 100 {
				continue
			}
			out = append(out, model.Finding{
				Severity: model.SeverityError,
				Range:    span(i, m[0], m[1]),
				Message:  fmt.Sprintf("Quality must be between 0 and 100 (got %s)", literal),
				Code:     model.CodeQualityOutOfRange,
			})
		}
	}
	return out
}

var requiredParams = map[string]string{
	"captureFullScreen": "format",
	"captureWindow":     "format and one of windowId or windowTitle",
	"captureRegion":     "x, y, width, height, format",
}

// missingParamsValidator flags capture calls made with an empty argument list.
type missingParamsValidator struct{}

func (missingParamsValidator) Name() string { return "missing-parameters" }

func (missingParamsValidator) Validate(doc model.Document, _ []model.Pattern) []model.Finding {
	var out []model.Finding
	for i, line := range lines(doc.Text) {
		for _, m := range emptyCall.FindAllStringSubmatchIndex(line, -1) {
			name := line[m[2]:m[3]]
			out = append(out, model.Finding{
				Severity: model.SeverityError,
				Range:    span(i, m[0], m[1]),
				Message:  fmt.Sprintf("%s requires parameters: %s", name, requiredParams[name]),
				Code:     model.CodeMissingParameters,
			})
		}
	}
	return out
}

// regionValidator checks extracted region parameters on Region patterns.
type regionValidator struct{}

func (regionValidator) Name() string { return "region" }

func (regionValidator) Validate(_ model.Document, patterns []model.Pattern) []model.Finding {
	var out []model.Finding
	for _, p := range patterns {
		if p.Category != model.CategoryRegion {
			continue
		}
		rng := model.Range{Start: model.Position{Line: p.Line, Column: p.Column}, End: p.End()}
		if missing := pattern.MissingRegionKeys(p.Parameters); len(missing) > 0 {
			out = append(out, model.Finding{
				Severity: model.SeverityError,
				Range:    rng,
				Message:  "Region capture is missing required parameters: " + strings.Join(missing, ", "),
				Code:     model.CodeMissingRegionParameters,
			})
		}
		if w, ok := p.Parameters["width"]; ok && w <= 0 {
			out = append(out, model.Finding{
				Severity: model.SeverityError,
				Range:    rng,
				Message:  fmt.Sprintf("Region width must be greater than 0 (got %d)", w),
				Code:     model.CodeInvalidRegionWidth,
			})
		}
		if h, ok := p.Parameters["height"]; ok && h <= 0 {
			out = append(out, model.Finding{
				Severity: model.SeverityError,
				Range:    rng,
				Message:  fmt.Sprintf("Region height must be greater than 0 (got %d)", h),
				Code:     model.CodeInvalidRegionHeight,
			})
		}
	}
	return out
}

// Deprecation pairs a retired API name with its replacement.
type Deprecation struct {
	Name        string
	Replacement string
}

// Deprecations is the table of retired API names.
var Deprecations = []Deprecation{
	{Name: "takeScreenshot", Replacement: "captureFullScreen"},
	{Name: "captureScreen", Replacement: "captureFullScreen"},
	{Name: "captureWindowByTitle", Replacement: "captureWindow"},
	{Name: "captureArea", Replacement: "captureRegion"},
	{Name: "getDisplays", Replacement: "listDisplays"},
}

var deprecatedName = func() *regexp.Regexp {
	names := make([]string, len(Deprecations))
	for i, d := range Deprecations {
		names[i] = regexp.QuoteMeta(d.Name)
	}
	return regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)\b`)
}()

// ReplacementFor returns the replacement for a deprecated name.
func ReplacementFor(name string) (string, bool) {
	for _, d := range Deprecations {
		if d.Name == name {
			return d.Replacement, true
		}
	}
	return "", false
}

// deprecatedValidator reports every occurrence of a deprecated name.
type deprecatedValidator struct{}

func (deprecatedValidator) Name() string { return "deprecated" }

func (deprecatedValidator) Validate(doc model.Document, _ []model.Pattern) []model.Finding {
	var out []model.Finding
	for i, line := range lines(doc.Text) {
		for _, m := range deprecatedName.FindAllStringIndex(line, -1) {
			name := line[m[0]:m[1]]
			replacement, _ := ReplacementFor(name)
			out = append(out, model.Finding{
				Severity: model.SeverityInfo,
				Range:    span(i, m[0], m[1]),
				Message:  fmt.Sprintf("%s is deprecated; use %s instead", name, replacement),
				Code:     model.CodeDeprecatedAPI,
			})
		}
	}
	return out
}
