// Package diagnostics turns a document and its recognized patterns into
// findings.
//
// The Pipeline runs a fixed, ordered list of validators. Each validator is
// independent: a panic in one is logged and contributes no findings, but
// never affects the others. Output is the concatenation of every
// validator's findings in validator order.
package diagnostics

import (
	"log/slog"
	"strings"

	"github.com/timvw/shotlens/internal/model"
)

// Validator inspects a document and produces findings.
type Validator interface {
	// Name identifies the validator in logs.
	Name() string

	// Validate returns findings in source order. Patterns are the cached
	// matcher output for doc and must not be modified.
	Validate(doc model.Document, patterns []model.Pattern) []model.Finding
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc struct {
	ID string
	Fn func(doc model.Document, patterns []model.Pattern) []model.Finding
}

func (v ValidatorFunc) Name() string { return v.ID }

func (v ValidatorFunc) Validate(doc model.Document, patterns []model.Pattern) []model.Finding {
	return v.Fn(doc, patterns)
}

// DefaultValidators returns the built-in validators in publication order.
func DefaultValidators() []Validator {
	return []Validator{
		formatValidator{},
		qualityValidator{},
		missingParamsValidator{},
		regionValidator{},
		deprecatedValidator{},
	}
}

// Pipeline runs validators in order and isolates their failures.
type Pipeline struct {
	validators []Validator
	logger     *slog.Logger
}

// NewPipeline creates a pipeline. With no validators it uses
// DefaultValidators. A nil logger uses slog.Default().
func NewPipeline(logger *slog.Logger, validators ...Validator) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if len(validators) == 0 {
		validators = DefaultValidators()
	}
	return &Pipeline{validators: validators, logger: logger}
}

// Run executes every validator against doc.
func (p *Pipeline) Run(doc model.Document, patterns []model.Pattern) []model.Finding {
	var findings []model.Finding
	for _, v := range p.validators {
		findings = append(findings, p.runOne(v, doc, patterns)...)
	}
	return findings
}

func (p *Pipeline) runOne(v Validator, doc model.Document, patterns []model.Pattern) (out []model.Finding) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("validator failed",
				slog.String("validator", v.Name()),
				slog.String("uri", doc.URI),
				slog.Int("version", doc.Version),
				slog.Any("panic", r),
			)
			out = nil
		}
	}()
	return v.Validate(doc, patterns)
}

// lines splits text the same way the pattern matcher does.
func lines(text string) []string {
	ls := strings.Split(text, "\n")
	for i, l := range ls {
		ls[i] = strings.TrimSuffix(l, "\r")
	}
	return ls
}

func span(line, start, end int) model.Range {
	return model.Range{
		Start: model.Position{Line: line, Column: start},
		End:   model.Position{Line: line, Column: end},
	}
}
