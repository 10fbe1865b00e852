package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/timvw/shotlens/internal/model"
)

// recorder captures published findings.
type recorder struct {
	mu    sync.Mutex
	calls []published
}

type published struct {
	doc      model.Document
	findings []model.Finding
}

func (r *recorder) publish(doc model.Document, findings []model.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, published{doc: doc, findings: findings})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func newTestEngine(t *testing.T, debounce time.Duration) (*Engine, *Documents, *recorder) {
	t.Helper()
	docs := NewDocuments()
	rec := &recorder{}
	e, err := New(docs, rec.publish, Options{Debounce: debounce})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e, docs, rec
}

func TestEngine_OpenValidatesImmediately(t *testing.T) {
	e, docs, rec := newTestEngine(t, 50*time.Millisecond)
	docs.Open("file:///a.ts", "captureFullScreen();", 1)
	e.OnOpen("file:///a.ts")

	if rec.count() != 1 {
		t.Fatalf("publishes: got %d, want 1", rec.count())
	}
	got := rec.last()
	if got.doc.Version != 1 {
		t.Errorf("version: got %d, want 1", got.doc.Version)
	}
	if len(got.findings) != 1 || got.findings[0].Code != model.CodeMissingParameters {
		t.Errorf("findings: got %v, want one missing-parameters", got.findings)
	}
}

func TestEngine_EditBurstCoalesces(t *testing.T) {
	e, docs, rec := newTestEngine(t, 40*time.Millisecond)
	uri := "file:///a.ts"
	docs.Open(uri, "", 1)

	for v := 2; v <= 6; v++ {
		docs.Update(uri, `captureFullScreen({ format: "gif" })`, v)
		e.OnEdit(uri)
		time.Sleep(5 * time.Millisecond)
	}
	if !e.Pending(uri) {
		t.Error("Pending: got false during burst")
	}

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	time.Sleep(80 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("publishes: got %d, want exactly 1", rec.count())
	}
	got := rec.last()
	if got.doc.Version != 6 {
		t.Errorf("published version: got %d, want 6", got.doc.Version)
	}
	if len(got.findings) != 1 || got.findings[0].Code != model.CodeInvalidFormat {
		t.Errorf("findings: got %v", got.findings)
	}
}

func TestEngine_ReadsSnapshotAtFireTime(t *testing.T) {
	e, docs, rec := newTestEngine(t, 30*time.Millisecond)
	uri := "file:///a.ts"
	docs.Open(uri, "captureFullScreen()", 1)
	e.OnEdit(uri)
	// Content changes after the timer was armed but before it fires.
	docs.Update(uri, "listWindows()", 2)

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	got := rec.last()
	if got.doc.Version != 2 || len(got.findings) != 0 {
		t.Errorf("published: version %d findings %v, want version 2 with no findings", got.doc.Version, got.findings)
	}
}

func TestEngine_CloseCancelsPending(t *testing.T) {
	e, docs, rec := newTestEngine(t, 30*time.Millisecond)
	uri := "file:///a.ts"
	docs.Open(uri, "captureFullScreen()", 1)
	e.OnEdit(uri)
	docs.Close(uri)
	e.OnClose(uri)

	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("publishes after close: got %d, want 0", rec.count())
	}
	if e.cache.Len() != 0 {
		t.Errorf("cache entries after close: got %d, want 0", e.cache.Len())
	}
}

func TestEngine_DropsStaleResult(t *testing.T) {
	docs := NewDocuments()
	rec := &recorder{}
	uri := "file:///a.ts"
	docs.Open(uri, "captureFullScreen()", 1)

	e, err := New(docs, rec.publish, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	// Simulate a result for version 1 arriving after version 2 was stored.
	docs.Update(uri, "listWindows()", 2)
	e.deliver(model.Document{URI: uri, Version: 1}, nil)
	if rec.count() != 0 {
		t.Errorf("stale publish: got %d, want 0", rec.count())
	}
}

func TestEngine_ImmediateModeWhenDebounceDisabled(t *testing.T) {
	e, docs, rec := newTestEngine(t, -1)
	docs.Open("u", "captureWindow()", 1)
	e.OnEdit("u")
	if rec.count() != 1 {
		t.Errorf("publishes: got %d, want 1 without debounce", rec.count())
	}
}

func TestEngine_PatternAt(t *testing.T) {
	e, docs, _ := newTestEngine(t, 0)
	docs.Open("u", "// shots\ncaptureRegion({ x: 1, y: 2, width: 3, height: 4 })", 1)

	p, ok := e.PatternAt(context.Background(), "u", 1)
	if !ok {
		t.Fatal("PatternAt: got no pattern on line 1")
	}
	if p.Category != model.CategoryRegion || p.Parameters["height"] != 4 {
		t.Errorf("pattern: got %+v", p)
	}
	if _, ok := e.PatternAt(context.Background(), "u", 0); ok {
		t.Error("PatternAt line 0: got a pattern, want none")
	}
	if _, ok := e.PatternAt(context.Background(), "missing", 0); ok {
		t.Error("PatternAt unknown uri: got a pattern")
	}
}

func TestEngine_ValidateUnknownDocument(t *testing.T) {
	e, _, rec := newTestEngine(t, 0)
	if got := e.Validate("nope"); got != nil {
		t.Errorf("Validate unknown: got %v, want nil", got)
	}
	if rec.count() != 0 {
		t.Errorf("publishes: got %d, want 0", rec.count())
	}
}

// closingSource closes the document just after handing out its first
// snapshot, the way a didClose can land while a debounced pass is running.
type closingSource struct {
	*Documents
	onClose func(uri string)
	closed  bool
}

func (s *closingSource) Snapshot(uri string) (model.Document, bool) {
	doc, ok := s.Documents.Snapshot(uri)
	if ok && !s.closed {
		s.closed = true
		s.Documents.Close(uri)
		s.onClose(uri)
	}
	return doc, ok
}

func TestEngine_CloseDuringValidate(t *testing.T) {
	tests := []struct {
		name          string
		closedVersion int
	}{
		{"reopen at same version", 1},
		{"reopen at lower version", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri := "file:///a.ts"
			src := &closingSource{Documents: NewDocuments()}
			rec := &recorder{}
			e, err := New(src, rec.publish, Options{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer e.Close()
			src.onClose = e.OnClose

			src.Open(uri, "captureRegion({ x: 1, y: 2, width: 3, height: 4 })", tt.closedVersion)
			e.Validate(uri)
			if rec.count() != 0 {
				t.Fatalf("publishes for closed buffer: got %d, want 0", rec.count())
			}
			if e.cache.Len() != 0 {
				t.Fatalf("cache entries after close: got %d, want 0", e.cache.Len())
			}

			src.Open(uri, "listWindows()", 1)
			e.OnOpen(uri)

			_, patterns, ok := e.Patterns(context.Background(), uri)
			if !ok || len(patterns) != 1 || patterns[0].Category != model.CategoryListWindows {
				t.Errorf("patterns after reopen: got %+v, want one list-windows pattern", patterns)
			}
			if _, ok := e.cache.Lookup(uri, 1); !ok {
				t.Error("reopened document was not cached")
			}
			if rec.count() != 1 || rec.last().doc.Text != "listWindows()" {
				t.Errorf("publishes after reopen: got %+v", rec.calls)
			}
		})
	}
}
