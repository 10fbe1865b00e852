package engine

import (
	"sync"

	"github.com/timvw/shotlens/internal/model"
)

// Documents tracks the open editor buffers. It is owned by the editor
// surface (language server or watcher) and read by the Engine.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]model.Document
}

// NewDocuments creates an empty document store.
func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]model.Document)}
}

// Open records a newly opened document.
func (d *Documents) Open(uri, text string, version int) model.Document {
	doc := model.Document{URI: uri, Version: version, Text: text}
	d.mu.Lock()
	d.docs[uri] = doc
	d.mu.Unlock()
	return doc
}

// Update replaces the content of uri. An unknown uri is opened.
func (d *Documents) Update(uri, text string, version int) model.Document {
	return d.Open(uri, text, version)
}

// Close forgets uri.
func (d *Documents) Close(uri string) {
	d.mu.Lock()
	delete(d.docs, uri)
	d.mu.Unlock()
}

// Snapshot returns the current state of uri.
func (d *Documents) Snapshot(uri string) (model.Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[uri]
	return doc, ok
}

// URIs returns the open document URIs in no particular order.
func (d *Documents) URIs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	uris := make([]string, 0, len(d.docs))
	for uri := range d.docs {
		uris = append(uris, uri)
	}
	return uris
}
