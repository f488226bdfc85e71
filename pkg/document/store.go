// ABOUTME: Registry of open documents keyed by ID
// ABOUTME: Provides open, lookup, listing and close operations

package document

import (
	"fmt"
	"sort"
	"sync"
)

// Store keeps the open documents of one process.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Open registers a new document with the given initial text.
func (s *Store) Open(id, path, text string) (*Document, error) {
	if id == "" {
		return nil, fmt.Errorf("open document: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; ok {
		return nil, fmt.Errorf("open %s: %w", id, ErrDocumentExists)
	}
	doc := New(id, path, text)
	s.docs[id] = doc
	return doc, nil
}

// Get returns an open document.
func (s *Store) Get(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrDocumentNotFound)
	}
	return doc, nil
}

// Close forgets a document.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("close %s: %w", id, ErrDocumentNotFound)
	}
	delete(s.docs, id)
	return nil
}

// List returns summaries of all open documents ordered by ID.
func (s *Store) List() []Info {
	s.mu.RLock()
	infos := make([]Info, 0, len(s.docs))
	for _, doc := range s.docs {
		infos = append(infos, doc.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
