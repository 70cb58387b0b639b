// Package ledger tracks which chunk hashes have been submitted to the
// downstream index. The ledger is a JSON array of hashes on disk; it only
// ever grows.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Open when another pass holds the ledger.
var ErrLocked = errors.New("ledger is locked by another pass")

// State describes what Load found on disk.
type State int

const (
	StateAbsent State = iota
	StateEmpty
	StateCorrupt
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateEmpty:
		return "empty"
	case StateCorrupt:
		return "corrupt"
	case StateLoaded:
		return "loaded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CorruptError describes a ledger file that could not be decoded. The
// ledger is then treated as empty and rewritten on the next save.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// LoadResult is the outcome of reading a ledger file.
type LoadResult struct {
	State   State
	Hashes  map[string]struct{}
	Corrupt *CorruptError // set when State is StateCorrupt
}

// Load reads the ledger at path. Missing, empty and malformed files all
// yield an empty hash set; only I/O failures return an error.
func Load(path string) (LoadResult, error) {
	res := LoadResult{Hashes: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.State = StateAbsent
			return res, nil
		}
		return res, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		res.State = StateEmpty
		return res, nil
	}

	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		res.State = StateCorrupt
		res.Corrupt = &CorruptError{Path: path, Err: err}
		return res, nil
	}
	for _, h := range hashes {
		if h != "" {
			res.Hashes[h] = struct{}{}
		}
	}
	res.State = StateLoaded
	return res, nil
}

// Ledger is the in-memory working copy owned by one ingestion pass. It
// holds an exclusive file lock until Close.
type Ledger struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	hashes map[string]struct{}
	loaded LoadResult
}

// Open locks the ledger at path and loads it. It waits up to wait for a
// concurrent pass to release the lock before returning ErrLocked; a zero
// wait fails immediately.
func Open(ctx context.Context, path string, wait time.Duration) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open ledger directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := tryLock(ctx, lock, wait)
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	res, err := Load(path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	return &Ledger{
		path:   path,
		lock:   lock,
		hashes: res.Hashes,
		loaded: res,
	}, nil
}

func tryLock(ctx context.Context, lock *flock.Flock, wait time.Duration) (bool, error) {
	if wait <= 0 {
		return lock.TryLock()
	}
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return false, nil
	}
	return locked, err
}

// Loaded returns what was found on disk when the ledger was opened.
func (l *Ledger) Loaded() LoadResult {
	return l.loaded
}

func (l *Ledger) Path() string {
	return l.path
}

// Contains reports whether hash has been submitted.
func (l *Ledger) Contains(hash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.hashes[hash]
	return ok
}

// Add records hash as submitted. It reports whether hash was new.
func (l *Ledger) Add(hash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.hashes[hash]; ok {
		return false
	}
	l.hashes[hash] = struct{}{}
	return true
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hashes)
}

// Hashes returns the hashes in sorted order.
func (l *Ledger) Hashes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedKeys(l.hashes)
}

// Save atomically replaces the ledger file with the in-memory set.
func (l *Ledger) Save() error {
	data, err := json.MarshalIndent(l.Hashes(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Close releases the file lock. It does not save.
func (l *Ledger) Close() error {
	return l.lock.Unlock()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
