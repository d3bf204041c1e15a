package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"torrentify/internal/artifact"
)

const (
	mib = int64(1) << 20
	gib = int64(1) << 30
)

// PieceExponent picks the piece size exponent (2^n bytes) for content of the
// given total size. Larger content gets coarser pieces.
func PieceExponent(size int64) int {
	switch {
	case size < 512*mib:
		return 20
	case size < 1*gib:
		return 21
	case size < 2*gib:
		return 22
	case size < 4*gib:
		return 23
	default:
		return 24
	}
}

// ArchiveRequest describes one .torrent to produce.
type ArchiveRequest struct {
	Source        string
	Output        string
	PieceExponent int
	// Name is the content name stored in the archive; empty keeps the
	// source base name.
	Name     string
	Trackers []string
	Private  bool
}

type ArchiveResult struct {
	InfoHash string
}

// ArchiveBuilder produces a torrent file for a file or directory.
type ArchiveBuilder interface {
	Build(ctx context.Context, req ArchiveRequest) (ArchiveResult, error)
}

// NewArchiveBuilder returns the builder registered under kind.
func NewArchiveBuilder(kind, mktorrentPath string, timeout time.Duration) (ArchiveBuilder, error) {
	switch kind {
	case "", "native":
		return NativeBuilder{}, nil
	case "mktorrent":
		return NewMktorrent(mktorrentPath, timeout), nil
	default:
		return nil, fmt.Errorf("unknown archive builder %q", kind)
	}
}

// NativeBuilder hashes content in-process with the anacrolix metainfo package.
type NativeBuilder struct{}

func (NativeBuilder) Build(ctx context.Context, req ArchiveRequest) (ArchiveResult, error) {
	if err := ctx.Err(); err != nil {
		return ArchiveResult{}, err
	}
	info := metainfo.Info{PieceLength: int64(1) << pieceExp(req.PieceExponent)}
	if err := info.BuildFromFilePath(req.Source); err != nil {
		return ArchiveResult{}, fmt.Errorf("hash %s: %w", req.Source, err)
	}
	if req.Name != "" {
		info.Name = req.Name
	}
	if req.Private {
		private := true
		info.Private = &private
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("encode info: %w", err)
	}
	mi := metainfo.MetaInfo{
		InfoBytes:    infoBytes,
		CreatedBy:    "torrentify",
		CreationDate: time.Now().Unix(),
	}
	if len(req.Trackers) > 0 {
		mi.Announce = req.Trackers[0]
		for _, tr := range req.Trackers {
			mi.AnnounceList = append(mi.AnnounceList, []string{tr})
		}
	}

	if err := artifact.WriteAtomic(req.Output, mi.Write); err != nil {
		return ArchiveResult{}, err
	}
	return ArchiveResult{InfoHash: mi.HashInfoBytes().HexString()}, nil
}

// Mktorrent shells out to the mktorrent CLI.
type Mktorrent struct {
	Path    string
	Timeout time.Duration
}

func NewMktorrent(path string, timeout time.Duration) *Mktorrent {
	if path == "" {
		path = "mktorrent"
	}
	return &Mktorrent{Path: path, Timeout: timeout}
}

func (m *Mktorrent) Build(ctx context.Context, req ArchiveRequest) (ArchiveResult, error) {
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return ArchiveResult{}, fmt.Errorf("create archive dir: %w", err)
	}
	// mktorrent refuses to overwrite, and a crash must not leave a
	// truncated file under the final name.
	partial := req.Output + ".partial"
	_ = os.Remove(partial)
	defer os.Remove(partial)

	args := []string{"-v", "-l", strconv.Itoa(pieceExp(req.PieceExponent))}
	if req.Private {
		args = append(args, "-p")
	}
	if req.Name != "" {
		args = append(args, "-n", req.Name)
	}
	for _, tr := range req.Trackers {
		args = append(args, "-a", tr)
	}
	args = append(args, "-o", partial, req.Source)

	if _, err := runTool(ctx, m.Timeout, m.Path, args...); err != nil {
		return ArchiveResult{}, err
	}
	if err := os.Rename(partial, req.Output); err != nil {
		return ArchiveResult{}, fmt.Errorf("commit archive: %w", err)
	}

	var res ArchiveResult
	if mi, err := metainfo.LoadFromFile(req.Output); err == nil {
		res.InfoHash = mi.HashInfoBytes().HexString()
	}
	return res, nil
}

func pieceExp(n int) int {
	if n <= 0 {
		return 20
	}
	return n
}
