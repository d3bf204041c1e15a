package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"torrentify/internal/domain"
)

// Set is the triple of files produced for one release folder.
type Set struct {
	Dir      string
	NFO      string
	Torrent  string
	Metadata string
}

// Locate returns the artifact paths for folder under destRoot. The folder
// name doubles as the base name of every file.
func Locate(destRoot, folder string) Set {
	dir := filepath.Join(destRoot, folder)
	return Set{
		Dir:      dir,
		NFO:      filepath.Join(dir, folder+".nfo"),
		Torrent:  filepath.Join(dir, folder+".torrent"),
		Metadata: filepath.Join(dir, folder+".txt"),
	}
}

// Status reports which artifacts exist with a non-zero size.
func (s Set) Status() domain.ProcessingStatus {
	return domain.ProcessingStatus{
		HasNFO:      present(s.NFO),
		HasTorrent:  present(s.Torrent),
		HasMetadata: present(s.Metadata),
	}
}

// Outputs converts the current status into the event payload form.
func (s Set) Outputs() domain.Outputs {
	st := s.Status()
	return domain.Outputs{
		NFO:      st.HasNFO,
		Torrent:  st.HasTorrent,
		Metadata: st.HasMetadata,
		Folder:   filepath.Base(s.Dir),
	}
}

func present(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// Media types of the files that may leave the output tree.
var contentTypes = map[string]string{
	".torrent": "application/x-bittorrent",
	".nfo":     "text/plain; charset=utf-8",
	".txt":     "text/plain; charset=utf-8",
}

// ContentType returns the media type served for name, or "" when the file
// is not an artifact.
func ContentType(name string) string {
	return contentTypes[strings.ToLower(filepath.Ext(name))]
}

// Downloadable reports whether name has an extension that may be served.
func Downloadable(name string) bool {
	return ContentType(name) != ""
}

// Resolve joins category, folder and file beneath root and fails when the
// result escapes root or is not a downloadable artifact.
func Resolve(root, category, folder, file string) (string, error) {
	for _, part := range []string{category, folder, file} {
		if part == "" || part != filepath.Base(part) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid path segment %q", part)
		}
	}
	if !Downloadable(file) {
		return "", fmt.Errorf("file type not allowed: %s", file)
	}

	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	full := filepath.Join(base, category, folder, file)
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes artifact root: %s", file)
	}
	return full, nil
}

// renameFunc is swapped in tests to simulate rename failures.
var renameFunc = os.Rename

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by a rename, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic is WriteFileAtomic for streamed content.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := renameFunc(tmpName, path); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
