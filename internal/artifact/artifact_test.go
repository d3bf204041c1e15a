package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocateAndStatus(t *testing.T) {
	root := t.TempDir()
	set := Locate(root, "Movie.2020.1080p")

	if set.NFO != filepath.Join(root, "Movie.2020.1080p", "Movie.2020.1080p.nfo") {
		t.Fatalf("unexpected nfo path %s", set.NFO)
	}
	if st := set.Status(); st.HasNFO || st.HasTorrent || st.HasMetadata {
		t.Fatalf("nothing should exist yet: %+v", st)
	}

	if err := WriteFileAtomic(set.NFO, []byte("nfo")); err != nil {
		t.Fatalf("write nfo: %v", err)
	}
	if err := WriteFileAtomic(set.Metadata, nil); err != nil {
		t.Fatalf("write empty txt: %v", err)
	}

	st := set.Status()
	if !st.HasNFO {
		t.Fatalf("nfo should be present")
	}
	if st.HasMetadata {
		t.Fatalf("zero-length files do not count as present")
	}
	if out := set.Outputs(); out.Folder != "Movie.2020.1080p" || !out.NFO {
		t.Fatalf("unexpected outputs %+v", out)
	}
}

func TestWriteFileAtomicLeavesNoTempOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.nfo")

	orig := renameFunc
	renameFunc = func(string, string) error { return errors.New("boom") }
	defer func() { renameFunc = orig }()

	if err := WriteFileAtomic(path, []byte("x")); err == nil {
		t.Fatalf("expected rename failure")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp file left behind: %v", entries[0].Name())
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x", "a.txt")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "two" {
		t.Fatalf("expected replaced content, got %q", got)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	cases := []struct {
		category, folder, file string
		ok                     bool
	}{
		{"films", "Movie", "Movie.torrent", true},
		{"films", "Movie", "Movie.NFO", true},
		{"films", "Movie", "Movie.mkv", false},
		{"films", "..", "passwd.txt", false},
		{"films", "Movie", "../../etc.txt", false},
		{"", "Movie", "Movie.txt", false},
	}
	for _, tc := range cases {
		_, err := Resolve(root, tc.category, tc.folder, tc.file)
		if (err == nil) != tc.ok {
			t.Errorf("Resolve(%q,%q,%q) err=%v, want ok=%v", tc.category, tc.folder, tc.file, err, tc.ok)
		}
	}
}
