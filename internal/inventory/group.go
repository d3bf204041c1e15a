package inventory

import (
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"torrentify/internal/domain"
)

// sourceDirNames are folder names that never act as a series name.
var sourceDirNames = []string{
	"Animes_series", "Animes_series2", "Animes_films", "Animes_films2",
	"series", "series2", "films", "films2", "jeux", "data",
}

// newCollator compares names the way a French listing would, ignoring case
// and accents. Collators are not safe for concurrent use.
func newCollator() *collate.Collator {
	return collate.New(language.French, collate.Loose)
}

func sortItems(c *collate.Collator, items []domain.MediaItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return c.CompareString(items[i].Name, items[j].Name) < 0
	})
}

// GroupFlat groups items by their parent directory. The series name is the
// grandparent folder unless that folder is a source root, in which case the
// parent folder name is used.
func GroupFlat(items []domain.MediaItem, rootNames ...string) []domain.DirectoryGroup {
	roots := append(slices.Clone(sourceDirNames), rootNames...)

	index := make(map[string]int)
	var groups []domain.DirectoryGroup
	for _, item := range items {
		dir := filepath.Dir(item.Path)
		i, ok := index[dir]
		if !ok {
			name := filepath.Base(dir)
			if name == "" || name == "." || name == string(filepath.Separator) {
				name = "Unknown"
			}
			series := filepath.Base(filepath.Dir(dir))
			if series == "" || series == "." || series == string(filepath.Separator) || slices.Contains(roots, series) {
				series = name
			}
			groups = append(groups, domain.DirectoryGroup{
				ID:         domain.EncodeID(dir),
				Path:       dir,
				Name:       name,
				SeriesName: series,
				Category:   item.Category,
			})
			i = len(groups) - 1
			index[dir] = i
		}
		addFile(&groups[i], item, true)
	}

	c := newCollator()
	for i := range groups {
		sortItems(c, groups[i].Files)
		groups[i].IsFullyProcessed = groups[i].PendingCount == 0
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if cmp := c.CompareString(groups[i].SeriesName, groups[j].SeriesName); cmp != 0 {
			return cmp < 0
		}
		return c.CompareString(groups[i].Name, groups[j].Name) < 0
	})
	return groups
}

func addFile(g *domain.DirectoryGroup, item domain.MediaItem, attach bool) {
	g.TotalSize += item.Size
	if item.IsProcessed {
		g.ProcessedCount++
	} else {
		g.PendingCount++
	}
	if attach {
		g.Files = append(g.Files, item)
	}
}

type node struct {
	group    domain.DirectoryGroup
	children map[string]*node
}

// GroupHierarchical builds the directory tree of items below root. Every
// ancestor carries the statistics of all files beneath it; files sitting
// directly in root are returned as RootFiles.
func GroupHierarchical(items []domain.MediaItem, root string) domain.Hierarchy {
	root = filepath.Clean(root)
	top := make(map[string]*node)
	var rootFiles []domain.MediaItem

	for _, item := range items {
		rel, err := filepath.Rel(root, item.Path)
		if err != nil || rel == "." || !domain.Within(root, item.Path) {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		dirs := parts[:len(parts)-1]
		if len(dirs) == 0 {
			rootFiles = append(rootFiles, item)
			continue
		}

		level := top
		current := root
		for i, part := range dirs {
			current = filepath.Join(current, part)
			n, ok := level[part]
			if !ok {
				n = &node{
					group: domain.DirectoryGroup{
						ID:       domain.EncodeID(current),
						Path:     current,
						Name:     part,
						Category: item.Category,
					},
					children: make(map[string]*node),
				}
				level[part] = n
			}
			addFile(&n.group, item, i == len(dirs)-1)
			level = n.children
		}
	}

	c := newCollator()
	sortItems(c, rootFiles)
	if rootFiles == nil {
		rootFiles = []domain.MediaItem{}
	}
	return domain.Hierarchy{
		Directories: flatten(c, top),
		RootFiles:   rootFiles,
	}
}

func flatten(c *collate.Collator, level map[string]*node) []domain.DirectoryGroup {
	out := make([]domain.DirectoryGroup, 0, len(level))
	for _, n := range level {
		g := n.group
		g.Children = flatten(c, n.children)
		if g.Files == nil {
			g.Files = []domain.MediaItem{}
		}
		sortItems(c, g.Files)
		g.IsFullyProcessed = g.PendingCount == 0
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

// FindByID searches groups and all their descendants.
func FindByID(groups []domain.DirectoryGroup, id string) (domain.DirectoryGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
		if found, ok := FindByID(g.Children, id); ok {
			return found, true
		}
	}
	return domain.DirectoryGroup{}, false
}

// Stats aggregates items.
func Stats(items ...[]domain.MediaItem) domain.InventoryStats {
	var st domain.InventoryStats
	for _, list := range items {
		for _, it := range list {
			st.TotalFiles++
			st.TotalSize += it.Size
			if it.IsProcessed {
				st.Completed++
			} else {
				st.Pending++
			}
		}
	}
	if st.TotalFiles > 0 {
		st.CompletionRate = int(float64(st.Completed)/float64(st.TotalFiles)*100 + 0.5)
	}
	return st
}
