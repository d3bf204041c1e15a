package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"torrentify/internal/artifact"
	"torrentify/internal/domain"
	"torrentify/internal/naming"
	"torrentify/internal/telemetry"
)

// Searcher is the network side of a lookup.
type Searcher interface {
	Search(ctx context.Context, kind domain.MediaKind, query, language string) ([]Result, error)
}

type LookupConfig struct {
	// Languages are tried in order; the first one is also used for the
	// final year-less attempt.
	Languages []string
	// CacheDir, when set, persists hits as JSON files.
	CacheDir string
	Logger   *logrus.Logger
}

// Lookup finds the best metadata match for a title, trying several
// languages and caching every answer.
type Lookup struct {
	cfg      LookupConfig
	searcher Searcher

	mu    sync.Mutex
	cache map[string]*Result
}

func NewLookup(cfg LookupConfig, searcher Searcher) *Lookup {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en-US", "fr-FR"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Lookup{
		cfg:      cfg,
		searcher: searcher,
		cache:    make(map[string]*Result),
	}
}

// Find returns the best match or nil when nothing matched. A missing API key
// counts as no match; transport failures are returned.
func (l *Lookup) Find(ctx context.Context, kind domain.MediaKind, title, year string) (*Result, error) {
	primary := l.cfg.Languages[0]
	attempts := make([][2]string, 0, len(l.cfg.Languages)+1)
	for _, lang := range l.cfg.Languages {
		attempts = append(attempts, [2]string{year, lang})
	}
	if year != "" {
		attempts = append(attempts, [2]string{"", primary})
	}

	for _, a := range attempts {
		res, err := l.cached(ctx, kind, title, a[0], a[1])
		if errors.Is(err, ErrNoAPIKey) {
			telemetry.MetadataLookups.WithLabelValues("disabled").Inc()
			return nil, nil
		}
		if err != nil {
			telemetry.MetadataLookups.WithLabelValues("error").Inc()
			return nil, err
		}
		if res != nil {
			telemetry.MetadataLookups.WithLabelValues("found").Inc()
			return res, nil
		}
	}
	telemetry.MetadataLookups.WithLabelValues("not_found").Inc()
	return nil, nil
}

// CacheKey is the composite key used for both cache layers.
func CacheKey(kind domain.MediaKind, title, year, language string) string {
	key := strings.ToLower(naming.SafeName(title + "_" + year + "_" + language))
	if kind == domain.KindTV {
		key = "tv_" + key
	}
	return strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(key)
}

func (l *Lookup) cached(ctx context.Context, kind domain.MediaKind, title, year, lang string) (*Result, error) {
	key := CacheKey(kind, title, year, lang)

	l.mu.Lock()
	res, ok := l.cache[key]
	l.mu.Unlock()
	if ok {
		return res, nil
	}
	if res := l.readDisk(key); res != nil {
		l.store(key, res)
		return res, nil
	}

	res, err := l.search(ctx, kind, title, year, lang)
	if err != nil {
		return nil, err
	}
	l.store(key, res)
	if res != nil {
		l.writeDisk(key, res)
	}
	return res, nil
}

func (l *Lookup) search(ctx context.Context, kind domain.MediaKind, title, year, lang string) (*Result, error) {
	query := cleanTitle(title)
	if query == "" {
		return nil, nil
	}
	results, err := l.searcher.Search(ctx, kind, query, lang)
	if err != nil {
		return nil, err
	}
	if year != "" {
		filtered := results[:0:0]
		for _, r := range results {
			if strings.HasPrefix(r.Date(), year) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) == 0 {
		return nil, nil
	}

	target := strings.ToLower(query)
	best, bestScore := results[0], 0.0
	for _, r := range results {
		if score := Similarity(target, strings.ToLower(r.DisplayTitle())); score > bestScore {
			best, bestScore = r, score
		}
	}
	return &best, nil
}

func (l *Lookup) store(key string, res *Result) {
	l.mu.Lock()
	l.cache[key] = res
	l.mu.Unlock()
}

func (l *Lookup) readDisk(key string) *Result {
	if l.cfg.CacheDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(l.cfg.CacheDir, key+".json"))
	if err != nil {
		return nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil || res.ID == 0 {
		return nil
	}
	return &res
}

func (l *Lookup) writeDisk(key string, res *Result) {
	if l.cfg.CacheDir == "" {
		return
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return
	}
	if err := artifact.WriteFileAtomic(filepath.Join(l.cfg.CacheDir, key+".json"), data); err != nil {
		l.cfg.Logger.Warnf("write tmdb cache %s: %v", key, err)
	}
}

func cleanTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if r == ' ' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity is the Sørensen–Dice coefficient over character bigrams,
// ignoring whitespace. It returns a value in [0, 1].
func Similarity(a, b string) float64 {
	a = strings.Join(strings.Fields(a), "")
	b = strings.Join(strings.Fields(b), "")
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[string]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[string(ra[i:i+2])]++
	}
	matches := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := string(rb[i : i+2])
		if bigrams[bg] > 0 {
			bigrams[bg]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(len(ra)+len(rb)-2)
}
