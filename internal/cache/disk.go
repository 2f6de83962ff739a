package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/juvistr/draftspec/internal/scriptparse"
)

// meta is the sidecar document persisted next to each cached result so a
// hit can be verified against the full key, not just its hash.
type meta struct {
	AbsolutePath string    `json:"absolute_path"`
	ContentHash  string    `json:"content_hash"`
	ModTime      time.Time `json:"mtime"`
}

// DiskCache persists parse results under
// <dir>/<hash>.meta.json + <dir>/<hash>.result.json, the incremental
// parse cache layout spec.md §6 names (.draftspec/cache/parsing/). It is
// typically layered behind the in-memory Cache: consult memory first,
// fall back to disk, parse on a double miss.
type DiskCache struct {
	Dir string
}

func (d *DiskCache) paths(key Key) (metaPath, resultPath string) {
	h := HashContent([]byte(keyID(key)))
	return filepath.Join(d.Dir, h+".meta.json"), filepath.Join(d.Dir, h+".result.json")
}

// Load returns the persisted parse result for key, if present and its
// sidecar metadata still matches the full key.
func (d *DiskCache) Load(key Key) (*scriptparse.Result, bool) {
	metaPath, resultPath := d.paths(key)
	mb, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, false
	}
	var m meta
	if err := json.Unmarshal(mb, &m); err != nil {
		return nil, false
	}
	if m.AbsolutePath != key.AbsolutePath || m.ContentHash != key.ContentHash || !m.ModTime.Equal(key.ModTime) {
		return nil, false
	}
	rb, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, false
	}
	var result scriptparse.Result
	if err := json.Unmarshal(rb, &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Store persists result under key, atomically (temp-file-then-rename per
// artifact), writing the result before its meta so a crash between the
// two leaves no readable-but-unverifiable entry.
func (d *DiskCache) Store(key Key, result *scriptparse.Result) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	metaPath, resultPath := d.paths(key)

	rb, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := writeAtomic(resultPath, rb); err != nil {
		return err
	}

	mb, err := json.Marshal(meta{AbsolutePath: key.AbsolutePath, ContentHash: key.ContentHash, ModTime: key.ModTime})
	if err != nil {
		return err
	}
	return writeAtomic(metaPath, mb)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
