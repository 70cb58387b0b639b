// Package store persists raw pages and cleaned chunks as one JSON file per
// record. In deduplicating mode every record is written once under a
// derived key and never modified afterwards.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidKey is returned when a lookup key is not a hex digest.
var ErrInvalidKey = errors.New("invalid record key")

var keyPattern = regexp.MustCompile(`^[0-9a-f]{16,128}$`)

// WriteError reports that a single record could not be persisted. Other
// records are unaffected.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write record %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func encodeRecord(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// writeTemp writes data to a hidden temp file in dir and returns its path.
func writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// createExclusive publishes v under dir/name only if that name does not
// exist yet. The record becomes visible fully written or not at all.
// It reports whether this call created the file.
func createExclusive(dir, name string, v any) (bool, error) {
	data, err := encodeRecord(v)
	if err != nil {
		return false, err
	}
	tmpPath, err := writeTemp(dir, data)
	if err != nil {
		return false, err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, filepath.Join(dir, name)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("publish %s: %w", name, err)
	}
	return true, nil
}

// writeReplace writes v to dir/name, replacing any previous file.
func writeReplace(dir, name string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	tmpPath, err := writeTemp(dir, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// listRecords returns the names of the .json files in dir, sorted.
func listRecords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func openDir(kind, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("open %s store %s: %w", kind, dir, err)
	}
	return nil
}
