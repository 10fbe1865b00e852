// Package engine keeps diagnostics current while documents are edited.
//
// Edits arm a per-document debounce timer; when the document has been
// quiet for the configured period, the engine reads the latest snapshot,
// fetches its patterns through the version-keyed cache, runs the
// diagnostics pipeline and publishes the findings. Opening a document
// validates immediately. Publication is strictly ordered per document: a
// result is dropped if the document moved on while it was being computed.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/timvw/shotlens/internal/diagnostics"
	"github.com/timvw/shotlens/internal/model"
	slotel "github.com/timvw/shotlens/internal/otel"
)

// DefaultDebounce is the quiet period after an edit before revalidating.
const DefaultDebounce = 100 * time.Millisecond

var tracer = otel.Tracer("shotlens/engine")

// DocumentSource provides the current snapshot of a document.
type DocumentSource interface {
	Snapshot(uri string) (model.Document, bool)
}

// Publisher receives findings for a document version.
type Publisher func(doc model.Document, findings []model.Finding)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Debounce is the quiet period after an edit. Negative disables
	// debouncing so edits validate immediately; zero selects DefaultDebounce.
	Debounce  time.Duration
	CacheSize int
	Pipeline  *diagnostics.Pipeline
	Logger    *slog.Logger
	Metrics   *slotel.Metrics
}

// Engine owns the pattern cache, debounce scheduler and diagnostics
// pipeline for a set of documents.
type Engine struct {
	docs     DocumentSource
	publish  Publisher
	cache    *PatternCache
	sched    *Scheduler
	pipeline *diagnostics.Pipeline
	debounce time.Duration
	logger   *slog.Logger
	metrics  *slotel.Metrics

	mu        sync.Mutex
	published map[string]int // uri -> last published version
}

// New creates an Engine reading snapshots from docs and sending findings
// to publish.
func New(docs DocumentSource, publish Publisher, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := NewPatternCache(opts.CacheSize, opts.Metrics)
	if err != nil {
		return nil, err
	}
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = diagnostics.NewPipeline(logger)
	}
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	return &Engine{
		docs:      docs,
		publish:   publish,
		cache:     cache,
		sched:     NewScheduler(),
		pipeline:  pipeline,
		debounce:  debounce,
		logger:    logger,
		metrics:   opts.Metrics,
		published: make(map[string]int),
	}, nil
}

// OnOpen validates uri immediately, cancelling any pending revalidation.
func (e *Engine) OnOpen(uri string) {
	e.sched.Cancel(uri)
	e.Validate(uri)
}

// OnEdit schedules a revalidation of uri after the debounce period. Each
// call restarts the period.
func (e *Engine) OnEdit(uri string) {
	if e.debounce < 0 {
		e.Validate(uri)
		return
	}
	e.sched.Arm(uri, e.debounce, func() { e.Validate(uri) })
}

// OnClose cancels pending work for uri and drops its cached patterns.
func (e *Engine) OnClose(uri string) {
	e.sched.Cancel(uri)
	e.cache.Evict(uri)
	e.mu.Lock()
	delete(e.published, uri)
	e.mu.Unlock()
}

// Pending reports whether a revalidation of uri is scheduled.
func (e *Engine) Pending(uri string) bool {
	return e.sched.Pending(uri)
}

// Validate analyzes the current snapshot of uri and publishes the findings.
// It returns the findings, or nil when uri is not open.
func (e *Engine) Validate(uri string) []model.Finding {
	doc, ok := e.docs.Snapshot(uri)
	if !ok {
		return nil
	}

	ctx, span := tracer.Start(context.Background(), "engine.validate")
	span.SetAttributes(
		attribute.String("document.uri", doc.URI),
		attribute.Int("document.version", doc.Version),
	)
	defer span.End()

	patterns := e.cache.Get(ctx, doc.URI, doc.Version, doc.Text)
	findings := e.pipeline.Run(doc, patterns)

	codes := make([]string, len(findings))
	for i, f := range findings {
		codes[i] = f.Code
	}
	e.metrics.RecordAnalysis(ctx, codes)
	span.SetAttributes(attribute.Int("findings.count", len(findings)))

	e.deliver(doc, findings)
	return findings
}

// deliver publishes findings unless doc is no longer the current snapshot
// or a newer version was already published. A stale doc may have been
// closed while it was analyzed, so its cache entry is forgotten as well.
func (e *Engine) deliver(doc model.Document, findings []model.Finding) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.docs.Snapshot(doc.URI)
	if !ok || current.Version != doc.Version || current.Text != doc.Text {
		e.cache.Forget(doc.URI, doc.Version, doc.Text)
		e.logger.Debug("dropping stale findings",
			slog.String("uri", doc.URI),
			slog.Int("version", doc.Version),
			slog.Bool("open", ok),
		)
		return
	}
	if last, ok := e.published[doc.URI]; ok && last > doc.Version {
		return
	}
	e.published[doc.URI] = doc.Version
	if e.publish != nil {
		e.publish(doc, findings)
	}
}

// Patterns returns the cached patterns for the current snapshot of uri.
func (e *Engine) Patterns(ctx context.Context, uri string) (model.Document, []model.Pattern, bool) {
	doc, ok := e.docs.Snapshot(uri)
	if !ok {
		return model.Document{}, nil, false
	}
	return doc, e.cache.Get(ctx, doc.URI, doc.Version, doc.Text), true
}

// PatternsFor returns the patterns of a specific document version, such as
// the one handed to a Publisher.
func (e *Engine) PatternsFor(ctx context.Context, doc model.Document) []model.Pattern {
	return e.cache.Get(ctx, doc.URI, doc.Version, doc.Text)
}

// PatternAt returns the pattern on line of uri, if any.
func (e *Engine) PatternAt(ctx context.Context, uri string, line int) (model.Pattern, bool) {
	_, patterns, ok := e.Patterns(ctx, uri)
	if !ok {
		return model.Pattern{}, false
	}
	for _, p := range patterns {
		if p.Line == line {
			return p, true
		}
	}
	return model.Pattern{}, false
}

// Close cancels all pending revalidations and clears the cache. The
// Engine must not be used afterwards.
func (e *Engine) Close() {
	e.sched.Stop()
	e.cache.Purge()
}
