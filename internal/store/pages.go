package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

// Page is a raw page as captured on first sight of its URL.
type Page struct {
	PageID  string `json:"page_id,omitempty"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PageStore keeps one file per page.
type PageStore struct {
	dir string
	mu  sync.Mutex
}

// OpenPageStore creates dir if needed.
func OpenPageStore(dir string) (*PageStore, error) {
	if err := openDir("page", dir); err != nil {
		return nil, err
	}
	return &PageStore{dir: dir}, nil
}

func (s *PageStore) Dir() string {
	return s.dir
}

func (s *PageStore) path(pageID string) string {
	return filepath.Join(s.dir, pageID+".json")
}

// Has reports whether a record for pageID exists.
func (s *PageStore) Has(pageID string) (bool, error) {
	if !keyPattern.MatchString(pageID) {
		return false, ErrInvalidKey
	}
	return exists(s.path(pageID))
}

// Get loads the record for pageID. It returns nil, nil when absent.
func (s *PageStore) Get(pageID string) (*Page, error) {
	if !keyPattern.MatchString(pageID) {
		return nil, ErrInvalidKey
	}
	var p Page
	if err := readRecord(s.path(pageID), &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Put stores p under p.PageID unless a record already exists. Existing
// records are never overwritten. It reports whether p was written.
func (s *PageStore) Put(p Page) (bool, error) {
	if !keyPattern.MatchString(p.PageID) {
		return false, &WriteError{Key: p.PageID, Err: ErrInvalidKey}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := createExclusive(s.dir, p.PageID+".json", p)
	if err != nil {
		return false, &WriteError{Key: p.PageID, Err: err}
	}
	return created, nil
}

// PutIndexed writes p as page_{n}.json, replacing any previous file.
// Used when deduplication is off.
func (s *PageStore) PutIndexed(n int, p Page) error {
	name := fmt.Sprintf("page_%d.json", n)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeReplace(s.dir, name, p); err != nil {
		return &WriteError{Key: name, Err: err}
	}
	return nil
}

// Count returns the number of stored pages.
func (s *PageStore) Count() (int, error) {
	names, err := listRecords(s.dir)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}
