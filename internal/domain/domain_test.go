package domain

import "testing"

func TestWithin(t *testing.T) {
	cases := []struct {
		root, path string
		want       bool
	}{
		{"/m/films", "/m/films/a.mkv", true},
		{"/m/films", "/m/films", true},
		{"/m/films/", "/m/films/sub/a.mkv", true},
		{"/m/films", "/m/films2/a.mkv", false},
		{"/m/films", "/m/..films/a.mkv", false},
		{"/m/films", "/m/series/a.mkv", false},
		{"", "/m/films/a.mkv", false},
	}
	for _, c := range cases {
		if got := Within(c.root, c.path); got != c.want {
			t.Errorf("Within(%q, %q) = %v, want %v", c.root, c.path, got, c.want)
		}
	}
}

func TestMatchSourcePrefersDeepestRoot(t *testing.T) {
	sources := []MediaSource{
		{Category: CategoryFilms, Roots: []string{"/m"}},
		{Category: CategoryAnimesFilms, Roots: []string{"/m/animes"}},
	}
	src, root, ok := MatchSource(sources, "/m/animes/a.mkv")
	if !ok || src.Category != CategoryAnimesFilms || root != "/m/animes" {
		t.Fatalf("got %v %q %v", src.Category, root, ok)
	}
	if _, _, ok := MatchSource(sources, "/other/a.mkv"); ok {
		t.Fatalf("path outside every root matched")
	}
}

func TestIDRoundTripAndCategories(t *testing.T) {
	path := "/m/séries/Show S01/e01.mkv"
	got, err := DecodeID(EncodeID(path))
	if err != nil || got != path {
		t.Fatalf("round trip: %q %v", got, err)
	}
	if _, err := DecodeID("%%%"); err == nil {
		t.Fatalf("garbage id decoded")
	}
	if _, err := ParseCategory("music"); err == nil {
		t.Fatalf("unknown category accepted")
	}
	if CategoryAnimesSeries.Kind() != KindTV || CategoryGames.Kind() != KindGame || CategoryFilms.Kind() != KindMovie {
		t.Fatalf("kind mapping broken")
	}
}

func TestItemStatusOnlyAdvances(t *testing.T) {
	if !ItemStatusPending.CanAdvanceTo(ItemStatusProcessing) {
		t.Fatalf("pending should advance to processing")
	}
	if ItemStatusCompleted.CanAdvanceTo(ItemStatusProcessing) {
		t.Fatalf("completed must not regress")
	}
}
