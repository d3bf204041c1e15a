package domain

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Category is one of the fixed media families the inventory knows about.
type Category string

const (
	CategoryFilms        Category = "films"
	CategorySeries       Category = "series"
	CategoryAnimesFilms  Category = "animes_films"
	CategoryAnimesSeries Category = "animes_series"
	CategoryGames        Category = "jeux"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryFilms,
		CategorySeries,
		CategoryAnimesFilms,
		CategoryAnimesSeries,
		CategoryGames,
	}
}

// ParseCategory validates a raw category name.
func ParseCategory(raw string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", raw)
}

// MediaKind drives naming and metadata lookup.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
	KindGame  MediaKind = "game"
)

func (c Category) Kind() MediaKind {
	switch c {
	case CategorySeries, CategoryAnimesSeries:
		return KindTV
	case CategoryGames:
		return KindGame
	default:
		return KindMovie
	}
}

// Hierarchical reports whether items of the category are grouped as a directory tree.
func (c Category) Hierarchical() bool {
	return c == CategoryGames
}

// Grouped reports whether items of the category are offered as directories.
func (c Category) Grouped() bool {
	return c == CategorySeries || c == CategoryAnimesSeries || c == CategoryGames
}

// ProcessingStatus records which output artifacts exist and are non-empty.
type ProcessingStatus struct {
	HasNFO      bool `json:"hasNfo"`
	HasTorrent  bool `json:"hasTorrent"`
	HasMetadata bool `json:"hasTxt"`
}

// Complete reports whether every artifact expected for the kind is present.
// Games never get a metadata artifact.
func (s ProcessingStatus) Complete(kind MediaKind) bool {
	if kind == KindGame {
		return s.HasNFO && s.HasTorrent
	}
	return s.HasNFO && s.HasTorrent && s.HasMetadata
}

// MediaItem is a discovered source file.
type MediaItem struct {
	ID          string           `json:"id"`
	Path        string           `json:"path"`
	Name        string           `json:"name"`
	Size        int64            `json:"size"`
	ModTime     time.Time        `json:"modified"`
	Category    Category         `json:"type"`
	OutputName  string           `json:"outputName"`
	Status      ProcessingStatus `json:"status"`
	IsProcessed bool             `json:"isProcessed"`
}

// DirectoryGroup is a folder of media items. Children is only populated for
// hierarchical categories.
type DirectoryGroup struct {
	ID               string           `json:"id"`
	Path             string           `json:"path"`
	Name             string           `json:"name"`
	SeriesName       string           `json:"seriesName,omitempty"`
	Category         Category         `json:"type"`
	Files            []MediaItem      `json:"files"`
	Children         []DirectoryGroup `json:"children,omitempty"`
	TotalSize        int64            `json:"totalSize"`
	ProcessedCount   int              `json:"processedCount"`
	PendingCount     int              `json:"pendingCount"`
	IsFullyProcessed bool             `json:"isFullyProcessed"`
}

// Hierarchy is the tree view of a hierarchical category. Files sitting directly
// under the root are kept apart in RootFiles.
type Hierarchy struct {
	Directories []DirectoryGroup `json:"directories"`
	RootFiles   []MediaItem      `json:"rootFiles"`
}

// InventoryStats aggregates a set of media items.
type InventoryStats struct {
	TotalFiles     int   `json:"totalFiles"`
	Completed      int   `json:"completed"`
	Pending        int   `json:"pending"`
	TotalSize      int64 `json:"totalSize"`
	CompletionRate int   `json:"completionRate"`
}

// EncodeID derives the stable identifier of a path.
func EncodeID(path string) string {
	return base64.StdEncoding.EncodeToString([]byte(path))
}

// DecodeID reverses EncodeID.
func DecodeID(id string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	return string(raw), nil
}

// MediaSource binds a category to its source roots and destination root.
type MediaSource struct {
	Category Category `json:"category"`
	Roots    []string `json:"roots"`
	Dest     string   `json:"dest"`
}

// MatchSource returns the source and root containing path. When several
// roots match, the deepest one wins.
func MatchSource(sources []MediaSource, path string) (MediaSource, string, bool) {
	var (
		best     MediaSource
		bestRoot string
		found    bool
	)
	for _, src := range sources {
		for _, root := range src.Roots {
			if !Within(root, path) {
				continue
			}
			if !found || len(root) > len(bestRoot) {
				best, bestRoot, found = src, root, true
			}
		}
	}
	return best, bestRoot, found
}

// Within reports whether path is root or lies beneath it.
func Within(root, path string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
