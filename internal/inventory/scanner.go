package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"torrentify/internal/artifact"
	"torrentify/internal/domain"
	"torrentify/internal/naming"
	"torrentify/internal/telemetry"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
	".flv": true, ".wmv": true, ".m4v": true,
}

var gameExtensions = map[string]bool{
	".iso": true, ".zip": true, ".rar": true, ".7z": true, ".exe": true,
	".bin": true, ".cue": true, ".img": true, ".nsp": true, ".xci": true,
	".pkg": true, ".tar": true, ".gz": true,
}

// Extensions returns the extension set scanned for a category.
func Extensions(c domain.Category) map[string]bool {
	if c == domain.CategoryGames {
		return gameExtensions
	}
	return videoExtensions
}

// NameIndex resolves the release name already assigned to a source path.
type NameIndex interface {
	ReleaseFor(ctx context.Context, path string) (string, bool)
}

type Config struct {
	CacheTTL time.Duration
	// Sources is called once per scan for the current configuration.
	Sources func() []domain.MediaSource
	Index   NameIndex
	Logger  *logrus.Logger
}

// Snapshot is the result of one scan.
type Snapshot struct {
	Items     map[domain.Category][]domain.MediaItem `json:"items"`
	Stats     domain.InventoryStats                  `json:"stats"`
	ScannedAt time.Time                              `json:"scannedAt"`
}

// Category returns the items of one category, never nil.
func (s *Snapshot) Category(c domain.Category) []domain.MediaItem {
	if items := s.Items[c]; items != nil {
		return items
	}
	return []domain.MediaItem{}
}

// Scanner walks the configured media roots. Results are cached for
// CacheTTL; Clear drops the cache.
type Scanner struct {
	cfg   Config
	group singleflight.Group

	mu       sync.Mutex
	cached   *Snapshot
	cachedAt time.Time
}

func New(cfg Config) *Scanner {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Sources == nil {
		cfg.Sources = func() []domain.MediaSource { return nil }
	}
	return &Scanner{cfg: cfg}
}

// Scan returns the current inventory, from cache unless force is set.
func (s *Scanner) Scan(ctx context.Context, force bool) (*Snapshot, error) {
	if !force {
		s.mu.Lock()
		snap, at := s.cached, s.cachedAt
		s.mu.Unlock()
		if snap != nil && time.Since(at) < s.cfg.CacheTTL {
			telemetry.InventoryScans.WithLabelValues("cache").Inc()
			return snap, nil
		}
	}

	v, err, _ := s.group.Do("scan", func() (any, error) {
		snap, err := s.walk(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cached, s.cachedAt = snap, time.Now()
		s.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.InventoryScans.WithLabelValues("walk").Inc()
	return v.(*Snapshot), nil
}

// Clear invalidates the cache.
func (s *Scanner) Clear() {
	s.mu.Lock()
	s.cached = nil
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Scanner) walk(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Items:     make(map[domain.Category][]domain.MediaItem),
		ScannedAt: time.Now().UTC(),
	}
	for _, src := range s.cfg.Sources() {
		exts := Extensions(src.Category)
		for _, root := range src.Roots {
			items, err := s.walkRoot(ctx, src, root, exts)
			if err != nil {
				return nil, err
			}
			snap.Items[src.Category] = append(snap.Items[src.Category], items...)
		}
	}

	c := newCollator()
	all := make([][]domain.MediaItem, 0, len(snap.Items))
	for cat, items := range snap.Items {
		sortItems(c, items)
		snap.Items[cat] = items
		all = append(all, items)
	}
	snap.Stats = Stats(all...)
	return snap, nil
}

func (s *Scanner) walkRoot(ctx context.Context, src domain.MediaSource, root string, exts map[string]bool) ([]domain.MediaItem, error) {
	log := s.cfg.Logger.WithFields(logrus.Fields{"category": src.Category, "root": root})
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		log.Warn("media root missing or unreadable, skipping")
		return nil, nil
	}

	var items []domain.MediaItem
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.Warnf("skip %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			log.Warnf("stat %s: %v", path, err)
			return nil
		}
		items = append(items, s.describe(ctx, src, path, info))
		return nil
	})
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	if err != nil {
		log.Warnf("walk failed: %v", err)
	}
	return items, nil
}

func (s *Scanner) describe(ctx context.Context, src domain.MediaSource, path string, info fs.FileInfo) domain.MediaItem {
	item := domain.MediaItem{
		ID:       domain.EncodeID(path),
		Path:     path,
		Name:     info.Name(),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Category: src.Category,
	}
	item.OutputName = s.OutputName(ctx, path, false)
	item.Status = artifact.Locate(src.Dest, item.OutputName).Status()
	item.IsProcessed = item.Status.Complete(src.Category.Kind())
	return item
}

// OutputName returns the output folder for a source path: the recorded
// release name when one exists, otherwise the safe form of its base name.
func (s *Scanner) OutputName(ctx context.Context, path string, isDir bool) string {
	if s.cfg.Index != nil {
		if name, ok := s.cfg.Index.ReleaseFor(ctx, path); ok && name != "" {
			return naming.SafeName(name)
		}
	}
	return naming.SafeName(naming.FallbackName(path, isDir))
}

// FileByID returns one item from the current inventory.
func (s *Scanner) FileByID(ctx context.Context, id string) (domain.MediaItem, bool, error) {
	snap, err := s.Scan(ctx, false)
	if err != nil {
		return domain.MediaItem{}, false, err
	}
	for _, c := range domain.Categories() {
		for _, it := range snap.Items[c] {
			if it.ID == id {
				return it, true, nil
			}
		}
	}
	return domain.MediaItem{}, false, nil
}

// FilesByIDs resolves ids in request order, dropping unknown ones.
func (s *Scanner) FilesByIDs(ctx context.Context, ids []string) ([]domain.MediaItem, error) {
	snap, err := s.Scan(ctx, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.MediaItem)
	for _, items := range snap.Items {
		for _, it := range items {
			byID[it.ID] = it
		}
	}
	out := make([]domain.MediaItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// GroupedView is the inventory with directory groupings attached.
type GroupedView struct {
	*Snapshot
	SeriesDirectories       []domain.DirectoryGroup `json:"series_directories"`
	AnimesSeriesDirectories []domain.DirectoryGroup `json:"animes_series_directories"`
	GamesDirectories        []domain.DirectoryGroup `json:"jeux_directories"`
	GamesRootFiles          []domain.MediaItem      `json:"jeux_root_files"`
}

// Grouped returns the inventory with series grouped by folder and games as
// a tree per configured root.
func (s *Scanner) Grouped(ctx context.Context, force bool) (*GroupedView, error) {
	snap, err := s.Scan(ctx, force)
	if err != nil {
		return nil, err
	}
	sources := s.cfg.Sources()
	view := &GroupedView{Snapshot: snap}
	view.SeriesDirectories = GroupFlat(snap.Category(domain.CategorySeries), rootNames(sources)...)
	view.AnimesSeriesDirectories = GroupFlat(snap.Category(domain.CategoryAnimesSeries), rootNames(sources)...)

	view.GamesDirectories = []domain.DirectoryGroup{}
	view.GamesRootFiles = []domain.MediaItem{}
	games := snap.Category(domain.CategoryGames)
	for _, src := range sources {
		if src.Category != domain.CategoryGames {
			continue
		}
		for _, root := range src.Roots {
			var under []domain.MediaItem
			for _, it := range games {
				if domain.Within(root, it.Path) {
					under = append(under, it)
				}
			}
			h := GroupHierarchical(under, root)
			view.GamesDirectories = append(view.GamesDirectories, h.Directories...)
			view.GamesRootFiles = append(view.GamesRootFiles, h.RootFiles...)
		}
	}
	return view, nil
}

// DirectoryByID finds a series folder or any game directory by id.
func (s *Scanner) DirectoryByID(ctx context.Context, id string) (domain.DirectoryGroup, bool, error) {
	view, err := s.Grouped(ctx, false)
	if err != nil {
		return domain.DirectoryGroup{}, false, err
	}
	for _, groups := range [][]domain.DirectoryGroup{
		view.SeriesDirectories,
		view.AnimesSeriesDirectories,
		view.GamesDirectories,
	} {
		if g, ok := FindByID(groups, id); ok {
			return g, true, nil
		}
	}
	return domain.DirectoryGroup{}, false, nil
}

func rootNames(sources []domain.MediaSource) []string {
	var names []string
	for _, src := range sources {
		for _, r := range src.Roots {
			names = append(names, filepath.Base(filepath.Clean(r)))
		}
	}
	return names
}
