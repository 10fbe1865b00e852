package diagnostics

import (
	"strings"
	"testing"

	"github.com/timvw/shotlens/internal/model"
	"github.com/timvw/shotlens/internal/pattern"
)

func run(text string) []model.Finding {
	doc := model.Document{URI: "file:///test.ts", Version: 1, Text: text}
	return NewPipeline(nil).Run(doc, pattern.Analyze(text))
}

func codes(findings []model.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func TestPipeline_CleanDocument(t *testing.T) {
	text := `const shot = await captureFullScreen({ format: "png", quality: 80 })
const area = await captureRegion({ x: 0, y: 0, width: 640, height: 480, format: "webp" })
const displays = await listDisplays()`
	if got := run(text); len(got) != 0 {
		t.Errorf("findings: got %v, want none", got)
	}
}

func TestPipeline_InvalidFormat(t *testing.T) {
	got := run(`captureFullScreen({ format: "gif" })`)
	if len(got) != 1 {
		t.Fatalf("findings: got %d, want 1 (%v)", len(got), got)
	}
	f := got[0]
	if f.Severity != model.SeverityWarning {
		t.Errorf("severity: got %v, want warning", f.Severity)
	}
	if f.Code != model.CodeInvalidFormat {
		t.Errorf("code: got %q, want %q", f.Code, model.CodeInvalidFormat)
	}
	for _, want := range []string{"gif", "png", "jpeg", "webp"} {
		if !strings.Contains(f.Message, want) {
			t.Errorf("message %q missing %q", f.Message, want)
		}
	}
	if f.Range.Start.Column != strings.Index(`captureFullScreen({ format: "gif" })`, "format") {
		t.Errorf("range start: got %d", f.Range.Start.Column)
	}
}

func TestPipeline_Quality(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantHit bool
		wantMsg string
	}{
		{"in range", `captureFullScreen({ format: "png", quality: 100 })`, false, ""},
		{"zero", `captureFullScreen({ format: "png", quality: 0 })`, false, ""},
		{"too high", `captureFullScreen({ format: "png", quality: 150 })`, true, "150"},
		{"negative", `captureFullScreen({ format: "png", quality: -5 })`, true, "5"},
		{"overflow", `captureFullScreen({ format: "png", quality: 999999999999999999999 })`, true, "999999999999999999999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(tt.text)
			if !tt.wantHit {
				if len(got) != 0 {
					t.Errorf("findings: got %v, want none", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("findings: got %d, want 1 (%v)", len(got), got)
			}
			f := got[0]
			if f.Severity != model.SeverityError || f.Code != model.CodeQualityOutOfRange {
				t.Errorf("finding: got %v/%q", f.Severity, f.Code)
			}
			if !strings.Contains(f.Message, "100") || !strings.Contains(f.Message, tt.wantMsg) {
				t.Errorf("message: got %q, want it to mention 100 and %s", f.Message, tt.wantMsg)
			}
		})
	}
}

func TestPipeline_MissingParameters(t *testing.T) {
	text := "captureFullScreen();"
	got := run(text)
	if len(got) != 1 {
		t.Fatalf("findings: got %d, want 1 (%v)", len(got), got)
	}
	f := got[0]
	if f.Code != model.CodeMissingParameters || f.Severity != model.SeverityError {
		t.Errorf("finding: got %v/%q", f.Severity, f.Code)
	}
	if f.Range.Start.Column != 0 || f.Range.End.Column != len("captureFullScreen()") {
		t.Errorf("range: got %+v", f.Range)
	}
	if !strings.Contains(f.Message, "format") {
		t.Errorf("message %q should name format", f.Message)
	}
}

func TestPipeline_MissingParametersWindow(t *testing.T) {
	got := run("captureWindow( )")
	if len(got) != 1 || got[0].Code != model.CodeMissingParameters {
		t.Fatalf("findings: got %v", got)
	}
	if !strings.Contains(got[0].Message, "windowId") || !strings.Contains(got[0].Message, "windowTitle") {
		t.Errorf("message %q should name window identifiers", got[0].Message)
	}
}

func TestPipeline_EmptyRegionCall(t *testing.T) {
	// Both the missing-parameters and region validators report; neither
	// suppresses the other.
	got := run("captureRegion()")
	want := []string{model.CodeMissingParameters, model.CodeMissingRegionParameters}
	if strings.Join(codes(got), ",") != strings.Join(want, ",") {
		t.Errorf("codes: got %v, want %v", codes(got), want)
	}
}

func TestPipeline_RegionParameters(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		codes []string
	}{
		{"valid", `captureRegion({ x: 0, y: 0, width: 10, height: 10 })`, nil},
		{"missing two", `captureRegion({ width: 10, height: 10 })`, []string{model.CodeMissingRegionParameters}},
		{"zero width", `captureRegion({ x: 0, y: 0, width: 0, height: 10 })`, []string{model.CodeInvalidRegionWidth}},
		{"bad both", `captureRegion({ x: 0, y: 0, width: -5, height: 0 })`, []string{model.CodeInvalidRegionWidth, model.CodeInvalidRegionHeight}},
		{"missing and bad", `captureRegion({ x: 1, width: -1 })`, []string{model.CodeMissingRegionParameters, model.CodeInvalidRegionWidth}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(run(tt.text))
			if strings.Join(got, ",") != strings.Join(tt.codes, ",") {
				t.Errorf("codes: got %v, want %v", got, tt.codes)
			}
		})
	}
}

func TestPipeline_RegionMissingMessageOrder(t *testing.T) {
	got := run(`captureRegion({ height: 1, width: 1 })`)
	if len(got) != 1 {
		t.Fatalf("findings: got %v", got)
	}
	if !strings.HasSuffix(got[0].Message, "x, y") {
		t.Errorf("message: got %q, want suffix %q", got[0].Message, "x, y")
	}
}

func TestPipeline_Deprecated(t *testing.T) {
	for _, d := range Deprecations {
		t.Run(d.Name, func(t *testing.T) {
			got := run(d.Name + `({ format: "png", windowId: 1, x: 0, y: 0, width: 1, height: 1 })`)
			var infos []model.Finding
			for _, f := range got {
				if f.Severity == model.SeverityInfo {
					infos = append(infos, f)
				}
			}
			if len(infos) != 1 {
				t.Fatalf("infos: got %d, want 1 (%v)", len(infos), got)
			}
			if infos[0].Code != model.CodeDeprecatedAPI {
				t.Errorf("code: got %q", infos[0].Code)
			}
			if !strings.Contains(infos[0].Message, d.Replacement) {
				t.Errorf("message %q should name %s", infos[0].Message, d.Replacement)
			}
		})
	}
}

func TestPipeline_ValidatorOrder(t *testing.T) {
	text := `takeScreenshot()
captureFullScreen({ format: "bmp", quality: 500 })
captureFullScreen()`
	got := codes(run(text))
	want := []string{
		model.CodeInvalidFormat,
		model.CodeQualityOutOfRange,
		model.CodeMissingParameters,
		model.CodeDeprecatedAPI,
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("codes: got %v, want %v", got, want)
	}
}

func TestPipeline_PanicIsolation(t *testing.T) {
	boom := ValidatorFunc{ID: "boom", Fn: func(model.Document, []model.Pattern) []model.Finding {
		panic("validator bug")
	}}
	validators := append([]Validator{boom}, DefaultValidators()...)
	p := NewPipeline(nil, validators...)

	text := "captureFullScreen()"
	got := p.Run(model.Document{URI: "u", Version: 1, Text: text}, pattern.Analyze(text))
	if len(got) != 1 || got[0].Code != model.CodeMissingParameters {
		t.Errorf("findings after panic: got %v, want the missing-parameters finding", got)
	}
}

func TestReplacementFor(t *testing.T) {
	if r, ok := ReplacementFor("captureArea"); !ok || r != "captureRegion" {
		t.Errorf("ReplacementFor(captureArea): got %q, %v", r, ok)
	}
	if _, ok := ReplacementFor("captureRegion"); ok {
		t.Error("ReplacementFor(captureRegion): got ok, want not deprecated")
	}
}
