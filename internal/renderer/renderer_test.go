package renderer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/anacrolix/torrent/metainfo"
)

func TestPieceExponentIsMonotonic(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{0, 20},
		{512*mib - 1, 20},
		{512 * mib, 21},
		{1*gib - 1, 21},
		{1 * gib, 22},
		{2 * gib, 23},
		{4*gib - 1, 23},
		{4 * gib, 24},
		{64 * gib, 24},
	}
	prev := 0
	for _, tc := range cases {
		got := PieceExponent(tc.size)
		if got != tc.want {
			t.Errorf("PieceExponent(%d) = %d, want %d", tc.size, got, tc.want)
		}
		if got < prev {
			t.Errorf("PieceExponent decreased at size %d", tc.size)
		}
		prev = got
	}
}

func TestNativeBuilderWritesTorrent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "content")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.bin"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.bin"), []byte("second file"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out", "Release.torrent")
	res, err := NativeBuilder{}.Build(context.Background(), ArchiveRequest{
		Source:        src,
		Output:        out,
		PieceExponent: 20,
		Name:          "Release.Name",
		Trackers:      []string{"https://t1/announce", "https://t2/announce"},
		Private:       true,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(res.InfoHash) != 40 {
		t.Fatalf("unexpected info hash %q", res.InfoHash)
	}

	mi, err := metainfo.LoadFromFile(out)
	if err != nil {
		t.Fatalf("load torrent: %v", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Name != "Release.Name" {
		t.Fatalf("content name not overridden: %q", info.Name)
	}
	if info.PieceLength != 1<<20 {
		t.Fatalf("unexpected piece length %d", info.PieceLength)
	}
	if info.Private == nil || !*info.Private {
		t.Fatalf("private flag missing")
	}
	if len(info.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(info.Files))
	}
	if mi.Announce != "https://t1/announce" || len(mi.AnnounceList) != 2 {
		t.Fatalf("unexpected announce data %q %v", mi.Announce, mi.AnnounceList)
	}
	if mi.HashInfoBytes().HexString() != res.InfoHash {
		t.Fatalf("reported hash differs from file")
	}
}

func TestNewArchiveBuilder(t *testing.T) {
	if _, err := NewArchiveBuilder("native", "", 0); err != nil {
		t.Fatalf("native: %v", err)
	}
	if b, err := NewArchiveBuilder("mktorrent", "", 0); err != nil || b.(*Mktorrent).Path != "mktorrent" {
		t.Fatalf("mktorrent: %v", err)
	}
	if _, err := NewArchiveBuilder("zip", "", 0); err == nil {
		t.Fatalf("unknown builder should fail")
	}
}

func TestToolErrorCarriesExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	_, err := runTool(context.Background(), 0, "sh", "-c", "echo broken >&2; exit 3")
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.ExitCode != 3 || te.Error() != "sh failed (exit 3): broken" {
		t.Fatalf("unexpected tool error %q (code %d)", te.Error(), te.ExitCode)
	}
}

func TestMissingToolIsToolError(t *testing.T) {
	m := NewMediaInfo("/nonexistent/mediainfo-binary", 0)
	_, err := m.Inspect(context.Background(), "/tmp/x.mkv")
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
}

func TestParseGuessit(t *testing.T) {
	f, err := parseGuessit([]byte(`{"title": "Dune", "year": 2021, "other": ["HDR10", "Rip"], "episode": [1, 2]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Title != "Dune" || f.YearString() != "2021" || len(f.Other) != 2 || len(f.Episode) != 2 {
		t.Fatalf("unexpected fields %+v", f)
	}
	if _, err := parseGuessit([]byte("Traceback (most recent call last)")); err == nil {
		t.Fatalf("garbage output must fail")
	}
}

func TestMktorrentInvocation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := filepath.Join(dir, "fake-mktorrent")
	body := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n" +
		"while [ $# -gt 0 ]; do if [ \"$1\" = \"-o\" ]; then shift; printf 'd4:infod4:name1:xee' > \"$1\"; fi; shift; done\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "r", "r.torrent")
	_, err := NewMktorrent(script, 0).Build(context.Background(), ArchiveRequest{
		Source:        "/src/file.mkv",
		Output:        out,
		PieceExponent: 22,
		Trackers:      []string{"https://a", "https://b"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output not committed: %v", err)
	}
	args, _ := os.ReadFile(argsFile)
	want := "-v -l 22 -a https://a -a https://b -o " + out + ".partial /src/file.mkv\n"
	if string(args) != want {
		t.Fatalf("args\n got %q\nwant %q", args, want)
	}
}
