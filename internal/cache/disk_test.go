package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/juvistr/draftspec/internal/scriptparse"
)

func TestDiskCache_RoundTrips(t *testing.T) {
	d := &DiskCache{Dir: filepath.Join(t.TempDir(), "parsing")}
	key := Key{AbsolutePath: "/a.dspec", ContentHash: HashContent([]byte("x")), ModTime: time.Unix(100, 0)}
	want := &scriptparse.Result{
		File:     "/a.dspec",
		Specs:    []scriptparse.StaticSpec{{Description: "x", Line: 2, Kind: scriptparse.KindRegular}},
		Complete: true,
	}
	if err := d.Store(key, want); err != nil {
		t.Fatal(err)
	}
	got, ok := d.Load(key)
	if !ok {
		t.Fatal("expected a disk hit after Store")
	}
	if got.File != want.File || len(got.Specs) != 1 || got.Specs[0].Description != "x" || !got.Complete {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDiskCache_StaleKeyMisses(t *testing.T) {
	d := &DiskCache{Dir: t.TempDir()}
	key := Key{AbsolutePath: "/a.dspec", ContentHash: HashContent([]byte("x")), ModTime: time.Unix(100, 0)}
	if err := d.Store(key, &scriptparse.Result{File: "/a.dspec"}); err != nil {
		t.Fatal(err)
	}
	edited := key
	edited.ContentHash = HashContent([]byte("y"))
	if _, ok := d.Load(edited); ok {
		t.Fatal("expected a miss once the content hash changed")
	}
}

func TestDiskCache_MissingEntryMisses(t *testing.T) {
	d := &DiskCache{Dir: t.TempDir()}
	key := Key{AbsolutePath: "/never.dspec", ContentHash: "h", ModTime: time.Unix(1, 0)}
	if _, ok := d.Load(key); ok {
		t.Fatal("expected a miss for an entry never stored")
	}
}
