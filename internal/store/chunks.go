package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const knownCacheSize = 8192

// Chunk is a cleaned, bounded-size segment of a page.
type Chunk struct {
	PageID     string `json:"page_id,omitempty"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	ChunkIndex int    `json:"chunk_index"`
	ChunkHash  string `json:"chunk_hash,omitempty"`
	Content    string `json:"content"`
}

// ChunkStore is content-addressed: a chunk lives at {chunk_hash}.json.
// Existence is checked per key, with a bounded cache of hashes already
// known to be on disk.
type ChunkStore struct {
	dir   string
	mu    sync.Mutex
	known *lru.Cache[string, struct{}]
}

// OpenChunkStore creates dir if needed.
func OpenChunkStore(dir string) (*ChunkStore, error) {
	if err := openDir("chunk", dir); err != nil {
		return nil, err
	}
	known, err := lru.New[string, struct{}](knownCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create chunk cache: %w", err)
	}
	return &ChunkStore{dir: dir, known: known}, nil
}

func (s *ChunkStore) Dir() string {
	return s.dir
}

// Path returns the full path of a chunk file name.
func (s *ChunkStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Has reports whether a chunk with this hash is stored.
func (s *ChunkStore) Has(hash string) (bool, error) {
	if !keyPattern.MatchString(hash) {
		return false, ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLocked(hash)
}

func (s *ChunkStore) hasLocked(hash string) (bool, error) {
	if s.known.Contains(hash) {
		return true, nil
	}
	ok, err := exists(s.Path(hash + ".json"))
	if err != nil {
		return false, err
	}
	if ok {
		s.known.Add(hash, struct{}{})
	}
	return ok, nil
}

// Put stores c under c.ChunkHash if no chunk with that hash exists.
// Concurrent calls with the same hash produce exactly one write. It
// reports whether c was written.
func (s *ChunkStore) Put(c Chunk) (bool, error) {
	if !keyPattern.MatchString(c.ChunkHash) {
		return false, &WriteError{Key: c.ChunkHash, Err: ErrInvalidKey}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	present, err := s.hasLocked(c.ChunkHash)
	if err != nil {
		return false, &WriteError{Key: c.ChunkHash, Err: err}
	}
	if present {
		return false, nil
	}

	created, err := createExclusive(s.dir, c.ChunkHash+".json", c)
	if err != nil {
		return false, &WriteError{Key: c.ChunkHash, Err: err}
	}
	s.known.Add(c.ChunkHash, struct{}{})
	return created, nil
}

// PutIndexed writes c as page_{page}_chunk_{chunk}.json, replacing any
// previous file. Used when deduplication is off.
func (s *ChunkStore) PutIndexed(page, chunk int, c Chunk) error {
	name := fmt.Sprintf("page_%d_chunk_%d.json", page, chunk)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeReplace(s.dir, name, c); err != nil {
		return &WriteError{Key: name, Err: err}
	}
	return nil
}

// Get loads the chunk stored under hash. It returns nil, nil when absent.
func (s *ChunkStore) Get(hash string) (*Chunk, error) {
	if !keyPattern.MatchString(hash) {
		return nil, ErrInvalidKey
	}
	c, err := s.Read(hash + ".json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return c, err
}

// Read loads a chunk by file name.
func (s *ChunkStore) Read(name string) (*Chunk, error) {
	var c Chunk
	if err := readRecord(s.Path(filepath.Base(name)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Files lists chunk file names in lexicographic order.
func (s *ChunkStore) Files() ([]string, error) {
	return listRecords(s.dir)
}
