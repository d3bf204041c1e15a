package main

import (
	"bytes"
	"testing"

	"torrentify/internal/domain"
	"torrentify/internal/inventory"
)

func TestSelectPending(t *testing.T) {
	done := domain.MediaItem{ID: "f1", Path: "/m/films/done.mkv", IsProcessed: true}
	todo := domain.MediaItem{ID: "f2", Path: "/m/films/todo.mkv"}
	ep := domain.MediaItem{ID: "s1", Path: "/m/series/Show/e01.mkv"}
	loose := domain.MediaItem{ID: "g1", Path: "/m/jeux/setup.iso"}

	view := &inventory.GroupedView{
		Snapshot: &inventory.Snapshot{Items: map[domain.Category][]domain.MediaItem{
			domain.CategoryFilms:  {done, todo},
			domain.CategorySeries: {ep},
			domain.CategoryGames:  {loose},
		}},
		SeriesDirectories: []domain.DirectoryGroup{
			{ID: "d1", Path: "/m/series/Show"},
			{ID: "d2", Path: "/m/series/Old", IsFullyProcessed: true},
		},
		GamesDirectories: []domain.DirectoryGroup{{ID: "d3", Path: "/m/jeux/Game"}},
		GamesRootFiles:   []domain.MediaItem{loose},
	}
	all := []domain.Category{domain.CategoryFilms, domain.CategorySeries, domain.CategoryGames}

	sel := selectPending(view, all, false)
	if len(sel.dirs) != 0 || len(sel.files) != 3 || sel.files[0] != "f2" {
		t.Fatalf("file mode: %+v", sel)
	}

	sel = selectPending(view, all, true)
	if len(sel.files) != 2 || sel.files[0] != "f2" || sel.files[1] != "g1" {
		t.Fatalf("directory mode files: %+v", sel.files)
	}
	if len(sel.dirs) != 2 || sel.dirs[0] != "d1" || sel.dirs[1] != "d3" {
		t.Fatalf("directory mode dirs: %+v", sel.dirs)
	}

	if !selectPending(view, []domain.Category{domain.CategoryAnimesFilms}, false).empty() {
		t.Fatalf("empty category selected items")
	}
}

func TestBarSinkCountsFinalStatuses(t *testing.T) {
	var out bytes.Buffer
	s := newBarSink(&out)
	s.start(3)

	s.Broadcast(domain.Event{Type: domain.EventFileStatus, Data: domain.FileStatusData{Status: domain.ItemStatusProcessing}})
	s.Broadcast(domain.Event{Type: domain.EventFileStatus, Data: domain.FileStatusData{Status: domain.ItemStatusCompleted}})
	s.Broadcast(domain.Event{Type: domain.EventDirectoryStatus, Data: domain.DirectoryStatusData{Status: domain.ItemStatusSkipped}})
	s.Broadcast(domain.Event{Type: domain.EventJobLog, Data: domain.LogData{Message: "x"}})
	s.Broadcast(domain.Event{Type: domain.EventFileStatus, Data: domain.FileStatusData{Status: domain.ItemStatusError}})
	s.finish()

	if s.done != 3 {
		t.Fatalf("counted %d final statuses, want 3", s.done)
	}
	if out.Len() == 0 {
		t.Fatalf("progress bar wrote nothing")
	}
}

func TestMarker(t *testing.T) {
	st := domain.ProcessingStatus{HasNFO: true, HasMetadata: true}
	if got := marker(st, domain.KindMovie); got != "[N-M]" {
		t.Fatalf("movie marker %q", got)
	}
	if got := marker(st, domain.KindGame); got != "[N-]" {
		t.Fatalf("game marker %q", got)
	}
}
