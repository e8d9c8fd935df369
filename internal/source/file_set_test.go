package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fs.yaml")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBFa: 1\r\nb: 2\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	f := fs.Get(id)
	if string(f.Content) != "a: 1\nb: 2\n" {
		t.Fatalf("content = %q", f.Content)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Fatalf("flags = %b", f.Flags)
	}
	if got, ok := fs.GetByPath(path); !ok || got.ID != id {
		t.Fatalf("GetByPath(%q) = %v, %v", path, got, ok)
	}
}

func TestVirtualShadowsByPath(t *testing.T) {
	fs := NewFileSet()
	a := fs.AddVirtual("x.toml", []byte("one"))
	b := fs.AddVirtual("./x.toml", []byte("two"))
	if a == b {
		t.Fatal("expected distinct ids")
	}
	f, ok := fs.GetByPath("x.toml")
	if !ok || f.ID != b {
		t.Fatalf("expected latest file, got %+v", f)
	}
	if fs.Get(FileID(99)) != nil {
		t.Fatal("out of range id must return nil")
	}
	if f.Hash == fs.Get(a).Hash {
		t.Fatal("hashes of different content must differ")
	}
}

func TestLocString(t *testing.T) {
	l := Loc{File: "fs.yaml"}.Child("fs").Child("read")
	if l.String() != "fs.yaml: fs.read" {
		t.Fatalf("got %q", l.String())
	}
	if (Loc{}).String() != "<unknown>" {
		t.Fatal("empty loc")
	}
}
