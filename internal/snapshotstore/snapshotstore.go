// Package snapshotstore implements the on-disk snapshot artifact spec.md
// §6 describes: one JSON file per spec file under
// __snapshots__/<spec-name>.snap.json, a flat mapping from sanitized key
// to the expected JSON representation.
package snapshotstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store owns one spec file's snapshot document.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]json.RawMessage
	dirty   bool
}

// Dir returns the snapshot file path for specFile under snapshotDir,
// following spec.md's `__snapshots__/<spec-name>.snap.json` convention.
func Dir(snapshotDir, specFile string) string {
	base := filepath.Base(specFile)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(snapshotDir, name+".snap.json")
}

// Open loads an existing snapshot document, or starts an empty one if none
// exists yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("parsing snapshot file %s: %w", path, err)
	}
	return s, nil
}

// Compare reports whether actual matches the stored snapshot for key. A
// missing key is never a match; diff renders both documents for the
// reporter.
func (s *Store) Compare(key string, actual []byte) (matched bool, diff string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[key]
	if !ok {
		return false, fmt.Sprintf("no stored snapshot for key %q", key), nil
	}
	var storedCanon, actualCanon bytes.Buffer
	if err := json.Compact(&storedCanon, stored); err != nil {
		return false, "", err
	}
	if err := json.Compact(&actualCanon, actual); err != nil {
		return false, "", err
	}
	if storedCanon.String() == actualCanon.String() {
		return true, "", nil
	}
	return false, fmt.Sprintf("- %s\n+ %s", storedCanon.String(), actualCanon.String()), nil
}

// Update rewrites key's stored value and marks the store dirty; the
// caller must call Flush to persist it (spec.md's update-mode snapshot
// rewrite).
func (s *Store) Update(key string, actual []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var compact bytes.Buffer
	if err := json.Compact(&compact, actual); err != nil {
		return err
	}
	s.entries[key] = append([]byte{}, compact.Bytes()...)
	s.dirty = true
	return nil
}

// Flush atomically rewrites the snapshot file if it was modified since
// Open, via a temp-file-then-rename, matching the teacher's own atomic
// artifact-write probe pattern.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snap-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	s.dirty = false
	return nil
}
