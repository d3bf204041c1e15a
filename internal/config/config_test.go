package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"torrentify/internal/domain"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TORRENTIFY_MEDIA_FILMS", "/m/films, /m/films2")
	t.Setenv("TORRENTIFY_MEDIA_ENABLE_SERIES", "false")
	t.Setenv("TORRENTIFY_MEDIA_SERIES", "/m/series")
	t.Setenv("TRACKERS", "https://a.example/announce,https://b.example/announce")
	t.Setenv("TMDB_API_KEY", "legacy-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:3000" || cfg.Processing.ParallelJobs != 1 || cfg.Archive.Builder != "native" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.TMDB.Timeout != 8*time.Second || cfg.Inventory.CacheTTL != 30*time.Second {
		t.Fatalf("durations not decoded: %v %v", cfg.TMDB.Timeout, cfg.Inventory.CacheTTL)
	}
	if cfg.TMDB.APIKey != "legacy-key" {
		t.Fatalf("legacy env name ignored")
	}
	if got := cfg.TrackerList(); len(got) != 2 {
		t.Fatalf("trackers %v", got)
	}

	sources := cfg.MediaSources()
	if len(sources) != 1 || sources[0].Category != domain.CategoryFilms {
		t.Fatalf("disabled category leaked: %+v", sources)
	}
	if len(sources[0].Roots) != 2 || sources[0].Roots[1] != "/m/films2" {
		t.Fatalf("roots not split: %v", sources[0].Roots)
	}
	if sources[0].Dest != filepath.Join("/data/torrent", "films") {
		t.Fatalf("unexpected dest %q", sources[0].Dest)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := filepath.Join(dir, "config.yaml")
	content := "processing:\n  parallel_jobs: 4\nmedia:\n  jeux: /m/jeux\n  output_dir: /out\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Processing.ParallelJobs != 4 {
		t.Fatalf("file value ignored: %d", cfg.Processing.ParallelJobs)
	}
	sources := cfg.MediaSources()
	if len(sources) != 1 || sources[0].Dest != filepath.Join("/out", "jeux") {
		t.Fatalf("unexpected sources %+v", sources)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		var c Config
		c.Processing.ParallelJobs = 1
		c.Processing.MaxConcurrentJobs = 1
		c.Archive.Builder = "native"
		return c
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Processing.ParallelJobs = 0
	c.Archive.Builder = "transmission"
	c.Auth.Enabled = true
	c.Trackers = "not a url"
	err := c.Validate()
	if err == nil {
		t.Fatalf("invalid config accepted")
	}
	for _, want := range []string{"parallel_jobs", "archive.builder", "jwt_secret", "password", "tracker"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestSeedMappings(t *testing.T) {
	var c Config
	c.Media.EnableFilms, c.Media.EnableSeries = true, true
	c.Media.Films = "/m/films"
	c.Media.Series = "/m/series"
	c.Media.Hardlinks = "/seed/all, /m/series=/seed/tv"

	got := c.SeedMappings()
	want := []SeedMapping{
		{Source: "/m/films", Dest: "/seed/all"},
		{Source: "/m/series", Dest: "/seed/all"},
		{Source: "/m/series", Dest: "/seed/tv"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mapping %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRedacted(t *testing.T) {
	var c Config
	c.TMDB.APIKey = "k"
	c.Auth.JWTSecret = "s"
	r := c.Redacted()
	if r.TMDB.APIKey == "k" || r.Auth.JWTSecret == "s" || r.Auth.Password != "" {
		t.Fatalf("secrets not masked: %+v", r.Auth)
	}
	if c.TMDB.APIKey != "k" {
		t.Fatalf("original mutated")
	}
}

func TestProvider(t *testing.T) {
	var c Config
	c.Server.Addr = ":1"
	p := StaticProvider(c)
	if p.Get().Server.Addr != ":1" {
		t.Fatalf("unexpected snapshot")
	}
	p.Watch(nil) // no file: no-op
}
