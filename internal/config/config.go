package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"torrentify/internal/domain"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"server" yaml:"server"`
	Log      LogConfig `mapstructure:"log" yaml:"log"`
	Database struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"database" yaml:"database"`
	Media      MediaConfig      `mapstructure:"media" yaml:"media"`
	Trackers   string           `mapstructure:"trackers" yaml:"trackers"`
	TMDB       TMDBConfig       `mapstructure:"tmdb" yaml:"tmdb"`
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`
	Archive    struct {
		Builder       string `mapstructure:"builder" yaml:"builder"`
		Private       bool   `mapstructure:"private" yaml:"private"`
		MktorrentPath string `mapstructure:"mktorrent_path" yaml:"mktorrent_path"`
	} `mapstructure:"archive" yaml:"archive"`
	Tools struct {
		MediainfoPath string        `mapstructure:"mediainfo_path" yaml:"mediainfo_path"`
		PythonPath    string        `mapstructure:"python_path" yaml:"python_path"`
		Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	} `mapstructure:"tools" yaml:"tools"`
	Inventory struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	} `mapstructure:"inventory" yaml:"inventory"`
	Events struct {
		HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
		QueueSize           int           `mapstructure:"queue_size" yaml:"queue_size"`
		StrictSubscriptions bool          `mapstructure:"strict_subscriptions" yaml:"strict_subscriptions"`
	} `mapstructure:"events" yaml:"events"`
	Auth    AuthConfig `mapstructure:"auth" yaml:"auth"`
	Storage struct {
		Bucket    string `mapstructure:"bucket" yaml:"bucket"`
		KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
		Region    string `mapstructure:"region" yaml:"region"`
		Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	} `mapstructure:"storage" yaml:"storage"`
	AWS struct {
		Profile string `mapstructure:"profile" yaml:"profile"`
	} `mapstructure:"aws" yaml:"aws"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MediaConfig lists source roots per category as comma-separated paths.
type MediaConfig struct {
	Films              string `mapstructure:"films" yaml:"films"`
	Series             string `mapstructure:"series" yaml:"series"`
	AnimesFilms        string `mapstructure:"animes_films" yaml:"animes_films"`
	AnimesSeries       string `mapstructure:"animes_series" yaml:"animes_series"`
	Jeux               string `mapstructure:"jeux" yaml:"jeux"`
	EnableFilms        bool   `mapstructure:"enable_films" yaml:"enable_films"`
	EnableSeries       bool   `mapstructure:"enable_series" yaml:"enable_series"`
	EnableAnimesFilms  bool   `mapstructure:"enable_animes_films" yaml:"enable_animes_films"`
	EnableAnimesSeries bool   `mapstructure:"enable_animes_series" yaml:"enable_animes_series"`
	EnableJeux         bool   `mapstructure:"enable_jeux" yaml:"enable_jeux"`
	OutputDir          string `mapstructure:"output_dir" yaml:"output_dir"`
	// Hardlinks holds seeding directories: "src=dest" maps one source root,
	// a bare "dest" maps every source root.
	Hardlinks string `mapstructure:"hardlinks" yaml:"hardlinks"`
}

type TMDBConfig struct {
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheDir string        `mapstructure:"cache_dir" yaml:"cache_dir"`
}

type ProcessingConfig struct {
	ParallelJobs      int           `mapstructure:"parallel_jobs" yaml:"parallel_jobs"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
	JobRetention      time.Duration `mapstructure:"job_retention" yaml:"job_retention"`
	PruneInterval     time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
	HistoryRetention  time.Duration `mapstructure:"history_retention" yaml:"history_retention"`
}

type AuthConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Username        string `mapstructure:"username" yaml:"username"`
	Password        string `mapstructure:"password" yaml:"password"`
	JWTSecret       string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes" yaml:"token_ttl_minutes"`
}

var defaults = map[string]any{
	"server.addr":                    "0.0.0.0:3000",
	"log.level":                      "info",
	"log.format":                     "text",
	"log.file":                       "",
	"log.max_size_mb":                50,
	"log.max_backups":                5,
	"log.max_age_days":               30,
	"log.compress":                   true,
	"database.path":                  "data/torrentify.db",
	"media.films":                    "",
	"media.series":                   "",
	"media.animes_films":             "",
	"media.animes_series":            "",
	"media.jeux":                     "",
	"media.enable_films":             true,
	"media.enable_series":            true,
	"media.enable_animes_films":      true,
	"media.enable_animes_series":     true,
	"media.enable_jeux":              true,
	"media.output_dir":               "/data/torrent",
	"media.hardlinks":                "",
	"trackers":                       "",
	"tmdb.api_key":                   "",
	"tmdb.base_url":                  "https://api.themoviedb.org/3",
	"tmdb.timeout":                   "8s",
	"tmdb.cache_dir":                 "",
	"processing.parallel_jobs":       1,
	"processing.max_concurrent_jobs": 3,
	"processing.job_retention":       "24h",
	"processing.prune_interval":      "1h",
	"processing.history_retention":   "720h",
	"archive.builder":                "native",
	"archive.private":                false,
	"archive.mktorrent_path":         "mktorrent",
	"tools.mediainfo_path":           "mediainfo",
	"tools.python_path":              "python3",
	"tools.timeout":                  "5m",
	"inventory.cache_ttl":            "30s",
	"events.heartbeat_interval":      "30s",
	"events.queue_size":              256,
	"events.strict_subscriptions":    false,
	"auth.enabled":                   false,
	"auth.username":                  "admin",
	"auth.password":                  "",
	"auth.jwt_secret":                "",
	"auth.token_ttl_minutes":         1440,
	"storage.bucket":                 "",
	"storage.key_prefix":             "torrentify",
	"storage.region":                 "us-east-1",
	"storage.endpoint":               "",
	"aws.profile":                    "",
}

// legacyEnv keeps the unprefixed variable names of older deployments working.
var legacyEnv = map[string]string{
	"tmdb.api_key":             "TMDB_API_KEY",
	"trackers":                 "TRACKERS",
	"processing.parallel_jobs": "PARALLEL_JOBS",
	"auth.enabled":             "AUTH_ENABLED",
	"auth.username":            "AUTH_USERNAME",
	"auth.password":            "AUTH_PASSWORD",
	"auth.jwt_secret":          "AUTH_SECRET",
}

// newViper builds the viper instance shared by Load and the Provider.
func newViper(configFile string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TORRENTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, "TORRENTIFY_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if dir := os.Getenv("TORRENTIFY_CONFIG_DIR"); dir != "" {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads configuration from environment variables and an optional
// config file. An empty configFile searches "." and $TORRENTIFY_CONFIG_DIR.
func Load(configFile string) (Config, error) {
	v, err := newViper(configFile)
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Processing.ParallelJobs < 1 {
		errs = append(errs, fmt.Errorf("processing.parallel_jobs must be at least 1, got %d", c.Processing.ParallelJobs))
	}
	if c.Processing.MaxConcurrentJobs < 1 {
		errs = append(errs, fmt.Errorf("processing.max_concurrent_jobs must be at least 1, got %d", c.Processing.MaxConcurrentJobs))
	}
	switch c.Archive.Builder {
	case "native", "mktorrent":
	default:
		errs = append(errs, fmt.Errorf("archive.builder must be native or mktorrent, got %q", c.Archive.Builder))
	}
	if c.Auth.Enabled {
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
		}
		if c.Auth.Password == "" {
			errs = append(errs, errors.New("auth.password is required when auth is enabled"))
		}
	}
	for _, t := range c.TrackerList() {
		u, err := url.Parse(t)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid tracker url %q", t))
		}
	}
	return errors.Join(errs...)
}

// TrackerList returns the configured announce URLs.
func (c Config) TrackerList() []string {
	return splitList(c.Trackers)
}

// MediaSources returns every enabled category that has at least one root.
func (c Config) MediaSources() []domain.MediaSource {
	m := c.Media
	entries := []struct {
		category domain.Category
		roots    string
		enabled  bool
	}{
		{domain.CategoryFilms, m.Films, m.EnableFilms},
		{domain.CategorySeries, m.Series, m.EnableSeries},
		{domain.CategoryAnimesFilms, m.AnimesFilms, m.EnableAnimesFilms},
		{domain.CategoryAnimesSeries, m.AnimesSeries, m.EnableAnimesSeries},
		{domain.CategoryGames, m.Jeux, m.EnableJeux},
	}

	var out []domain.MediaSource
	for _, e := range entries {
		roots := splitList(e.roots)
		if !e.enabled || len(roots) == 0 {
			continue
		}
		for i := range roots {
			roots[i] = filepath.Clean(roots[i])
		}
		out = append(out, domain.MediaSource{
			Category: e.category,
			Roots:    roots,
			Dest:     filepath.Join(m.OutputDir, string(e.category)),
		})
	}
	return out
}

// SeedMapping maps media below Source to the seeding directory Dest.
type SeedMapping struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// SeedMappings expands media.hardlinks against the enabled sources.
func (c Config) SeedMappings() []SeedMapping {
	var out []SeedMapping
	for _, entry := range splitList(c.Media.Hardlinks) {
		if src, dest, ok := strings.Cut(entry, "="); ok {
			out = append(out, SeedMapping{Source: filepath.Clean(strings.TrimSpace(src)), Dest: filepath.Clean(strings.TrimSpace(dest))})
			continue
		}
		for _, source := range c.MediaSources() {
			for _, root := range source.Roots {
				out = append(out, SeedMapping{Source: root, Dest: filepath.Clean(entry)})
			}
		}
	}
	return out
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.TMDB.APIKey = mask(c.TMDB.APIKey)
	c.Auth.Password = mask(c.Auth.Password)
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	return c
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
