package renderer

import (
	"context"
	"strings"
	"time"
)

// MediaInfo runs the mediainfo CLI to produce a technical report.
type MediaInfo struct {
	Path    string
	Timeout time.Duration
}

func NewMediaInfo(path string, timeout time.Duration) *MediaInfo {
	if path == "" {
		path = "mediainfo"
	}
	return &MediaInfo{Path: path, Timeout: timeout}
}

// Inspect returns the textual report for the file at path.
func (m *MediaInfo) Inspect(ctx context.Context, path string) (string, error) {
	out, err := runTool(ctx, m.Timeout, m.Path, path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}
