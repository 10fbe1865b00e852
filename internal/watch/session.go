package watch

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/timvw/shotlens/internal/engine"
)

// Session keeps one file on disk loaded into an engine, bumping the
// document version on every reload.
type Session struct {
	path string
	uri  string
	docs *engine.Documents
	eng  *engine.Engine

	mu      sync.Mutex
	version int
}

// NewSession creates a session for path whose findings go to publish.
func NewSession(path string, publish engine.Publisher, opts engine.Options) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	docs := engine.NewDocuments()
	eng, err := engine.New(docs, publish, opts)
	if err != nil {
		return nil, err
	}
	return &Session{
		path: abs,
		uri:  (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		docs: docs,
		eng:  eng,
	}, nil
}

// URI returns the document URI of the watched file.
func (s *Session) URI() string { return s.uri }

// Engine returns the session's engine.
func (s *Session) Engine() *engine.Engine { return s.eng }

func (s *Session) load() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", s.path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.docs.Update(s.uri, string(data), s.version)
	return s.version, nil
}

// Reload reads the file and validates it immediately.
func (s *Session) Reload() error {
	if _, err := s.load(); err != nil {
		return err
	}
	s.eng.OnOpen(s.uri)
	return nil
}

// Changed reads the file and schedules a debounced revalidation. It
// returns the new document version.
func (s *Session) Changed() (int, error) {
	version, err := s.load()
	if err != nil {
		return 0, err
	}
	s.eng.OnEdit(s.uri)
	return version, nil
}

// Close stops pending revalidations.
func (s *Session) Close() {
	s.eng.OnClose(s.uri)
	s.docs.Close(s.uri)
	s.eng.Close()
}
