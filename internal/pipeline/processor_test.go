package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"torrentify/internal/artifact"
	"torrentify/internal/domain"
	"torrentify/internal/jobstore"
	"torrentify/internal/naming"
	"torrentify/internal/renderer"
	"torrentify/internal/tmdb"
)

type fakeCatalog struct {
	files   map[string]domain.MediaItem
	dirs    map[string]domain.DirectoryGroup
	cleared atomic.Int32
}

func (c *fakeCatalog) FilesByIDs(_ context.Context, ids []string) ([]domain.MediaItem, error) {
	var out []domain.MediaItem
	for _, id := range ids {
		if f, ok := c.files[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (c *fakeCatalog) DirectoryByID(_ context.Context, id string) (domain.DirectoryGroup, bool, error) {
	g, ok := c.dirs[id]
	return g, ok, nil
}

func (c *fakeCatalog) Clear() { c.cleared.Add(1) }

type fakeInspector struct {
	calls atomic.Int32
	err   error
}

func (f *fakeInspector) Inspect(_ context.Context, path string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "General\nComplete name                            : " + path + "\nFormat : Matroska\n", nil
}

type fakeBuilder struct {
	calls  atomic.Int32
	failOn string
	// gate, when set, holds every build until it is closed or ctx ends.
	gate chan struct{}

	mu   sync.Mutex
	reqs []renderer.ArchiveRequest
}

func (f *fakeBuilder) Build(ctx context.Context, req renderer.ArchiveRequest) (renderer.ArchiveResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return renderer.ArchiveResult{}, ctx.Err()
		}
	}
	if f.failOn != "" && req.Source == f.failOn {
		return renderer.ArchiveResult{}, errors.New("mktorrent failed (exit 1): boom")
	}
	if err := artifact.WriteFileAtomic(req.Output, []byte("d8:announce0:e")); err != nil {
		return renderer.ArchiveResult{}, err
	}
	return renderer.ArchiveResult{InfoHash: "abc"}, nil
}

type fakeLookup struct {
	calls atomic.Int32
	miss  bool
}

func (f *fakeLookup) Find(_ context.Context, _ domain.MediaKind, _, _ string) (*tmdb.Result, error) {
	f.calls.Add(1)
	if f.miss {
		return nil, nil
	}
	return &tmdb.Result{ID: 42, Title: "Found"}, nil
}

type countingNamer struct {
	calls atomic.Int32
}

func (n *countingNamer) ReleaseName(ctx context.Context, src naming.Source) string {
	n.calls.Add(1)
	return naming.Verbatim{}.ReleaseName(ctx, src)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Broadcast(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	t         *testing.T
	base      string
	store     *jobstore.Store
	catalog   *fakeCatalog
	inspector *fakeInspector
	builder   *fakeBuilder
	lookup    *fakeLookup
	namer     *countingNamer
	events    *recorder
	settings  Settings
	proc      Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSlots(t, 2, nil)
}

// newFixtureWithSlots builds a processor running at most slots jobs at once.
// A non-nil gate blocks archive builds until it is closed.
func newFixtureWithSlots(t *testing.T, slots int, gate chan struct{}) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		t:         t,
		base:      base,
		store:     jobstore.New(),
		catalog:   &fakeCatalog{files: map[string]domain.MediaItem{}, dirs: map[string]domain.DirectoryGroup{}},
		inspector: &fakeInspector{},
		builder:   &fakeBuilder{gate: gate},
		lookup:    &fakeLookup{},
		namer:     &countingNamer{},
		events:    &recorder{},
	}
	f.settings = Settings{
		Sources: []domain.MediaSource{
			{Category: domain.CategoryFilms, Roots: []string{filepath.Join(base, "films")}, Dest: filepath.Join(base, "out", "films")},
			{Category: domain.CategorySeries, Roots: []string{filepath.Join(base, "series")}, Dest: filepath.Join(base, "out", "series")},
		},
		Trackers: []string{"https://tracker.example/announce"},
		Parallel: 2,
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f.proc = NewProcessor(Config{
		MaxConcurrentJobs: slots,
		Settings:          func() Settings { return f.settings },
		Logger:            logger,
	}, Deps{
		Store:     f.store,
		Events:    f.events,
		Catalog:   f.catalog,
		Namer:     f.namer,
		Inspector: f.inspector,
		Builder:   f.builder,
		Lookup:    f.lookup,
	})
	if err := f.proc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.proc.Shutdown)
	return f
}

func (f *fixture) addFile(rel, content string) domain.MediaItem {
	f.t.Helper()
	path := filepath.Join(f.base, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		f.t.Fatal(err)
	}
	cat := domain.CategoryFilms
	if strings.HasPrefix(rel, "series") {
		cat = domain.CategorySeries
	}
	item := domain.MediaItem{
		ID:       domain.EncodeID(path),
		Path:     path,
		Name:     filepath.Base(path),
		Size:     int64(len(content)),
		Category: cat,
	}
	f.catalog.files[item.ID] = item
	return item
}

func (f *fixture) finished(id string) domain.Job {
	f.t.Helper()
	f.proc.Wait()
	job, ok := f.store.Get(id)
	if !ok {
		f.t.Fatalf("job %s missing", id)
	}
	if !job.Status.Terminal() {
		f.t.Fatalf("job %s not finished: %s", id, job.Status)
	}
	return job
}

func TestProcessFilesEndToEnd(t *testing.T) {
	f := newFixture(t)
	a := f.addFile("films/Movie.One.2020.mkv", "aaaa")
	b := f.addFile("films/Movie.Two.2021.mkv", "bb")

	id, err := f.proc.SubmitFiles(context.Background(), []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := f.finished(id)

	if job.Status != domain.JobStatusCompleted || job.Summary == nil {
		t.Fatalf("unexpected job %+v", job)
	}
	if s := job.Summary; s.Total != 2 || s.Processed != 2 || s.Errors != 0 || s.MetadataFound != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if job.Progress.Completed != 2 {
		t.Fatalf("progress completed = %d", job.Progress.Completed)
	}
	for _, it := range job.Items {
		if it.Status != domain.ItemStatusCompleted {
			t.Fatalf("item %s ended %s", it.Name, it.Status)
		}
	}

	set := artifact.Locate(filepath.Join(f.base, "out", "films"), "Movie.One.2020")
	if !set.Status().Complete(domain.KindMovie) {
		t.Fatalf("artifacts missing: %+v", set.Status())
	}
	txt, _ := os.ReadFile(set.Metadata)
	if string(txt) != "ID TMDB : 42\n" {
		t.Fatalf("unexpected metadata %q", txt)
	}
	nfo, _ := os.ReadFile(set.NFO)
	if strings.Contains(string(nfo), f.base) || !strings.Contains(string(nfo), "Release Name : Movie.One.2020") {
		t.Fatalf("unexpected nfo:\n%s", nfo)
	}

	if len(f.events.ofType(domain.EventJobStart)) != 1 || len(f.events.ofType(domain.EventJobComplete)) != 1 {
		t.Fatalf("expected one start and one complete event")
	}
	if got := len(f.events.ofType(domain.EventJobProgress)); got != 2 {
		t.Fatalf("expected 2 progress events, got %d", got)
	}
	completed := 0
	for _, ev := range f.events.ofType(domain.EventFileStatus) {
		if ev.Data.(domain.FileStatusData).Status == domain.ItemStatusCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Fatalf("expected 2 completed file events, got %d", completed)
	}
	first, last := f.events.events[0], f.events.events[len(f.events.events)-1]
	if first.Type != domain.EventJobStart || last.Type != domain.EventJobComplete {
		t.Fatalf("events out of order: first %s last %s", first.Type, last.Type)
	}
	if f.catalog.cleared.Load() != 1 {
		t.Fatalf("inventory cache should be cleared once")
	}
}

func TestProcessFilesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.addFile("films/Movie.One.2020.mkv", "aaaa")

	id, _ := f.proc.SubmitFiles(context.Background(), []string{a.ID})
	f.finished(id)
	inspect, build, lookup, names := f.inspector.calls.Load(), f.builder.calls.Load(), f.lookup.calls.Load(), f.namer.calls.Load()

	id, err := f.proc.SubmitFiles(context.Background(), []string{a.ID})
	if err != nil {
		t.Fatal(err)
	}
	job := f.finished(id)
	if job.Summary.Skipped != 1 || job.Summary.Processed != 0 {
		t.Fatalf("second run should skip: %+v", job.Summary)
	}
	if f.inspector.calls.Load() != inspect || f.builder.calls.Load() != build ||
		f.lookup.calls.Load() != lookup || f.namer.calls.Load() != names {
		t.Fatalf("second run must not call external tools")
	}
}

func TestProcessFilesPartialFailure(t *testing.T) {
	f := newFixture(t)
	a := f.addFile("films/Good.2020.mkv", "a")
	b := f.addFile("films/Bad.2020.mkv", "b")
	f.builder.failOn = b.Path

	id, _ := f.proc.SubmitFiles(context.Background(), []string{a.ID, b.ID})
	job := f.finished(id)

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("one failing item must not fail the job: %s", job.Status)
	}
	s := job.Summary
	if s.Processed != 1 || s.Errors != 1 || len(s.ErrorDetails) != 1 || s.ErrorDetails[0].Path != b.Path {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !strings.Contains(s.ErrorDetails[0].Error, "create torrent") {
		t.Fatalf("error should name the failing step: %q", s.ErrorDetails[0].Error)
	}
}

func TestProcessFilesWithoutTrackersOrMatch(t *testing.T) {
	f := newFixture(t)
	f.settings.Trackers = nil
	f.lookup.miss = true
	a := f.addFile("films/Lonely.2020.mkv", "a")
	stray := f.addFile("elsewhere/Stray.mkv", "s")

	id, _ := f.proc.SubmitFiles(context.Background(), []string{a.ID, stray.ID})
	job := f.finished(id)

	if f.builder.calls.Load() != 0 {
		t.Fatalf("no torrent should be built without trackers")
	}
	s := job.Summary
	if s.Processed != 1 || s.Skipped != 1 || s.MetadataMissing != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	set := artifact.Locate(filepath.Join(f.base, "out", "films"), "Lonely.2020")
	st := set.Status()
	if !st.HasNFO || st.HasTorrent || !st.HasMetadata {
		t.Fatalf("unexpected artifacts %+v", st)
	}
	txt, _ := os.ReadFile(set.Metadata)
	if string(txt) != "TMDb : NON TROUVÉ\n" {
		t.Fatalf("unexpected metadata %q", txt)
	}
}

func TestInspectionFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.inspector.err = errors.New("mediainfo not installed")
	a := f.addFile("films/Quiet.2020.mkv", "a")

	id, _ := f.proc.SubmitFiles(context.Background(), []string{a.ID})
	job := f.finished(id)
	if job.Summary.Processed != 1 {
		t.Fatalf("inspection failure must not fail the item: %+v", job.Summary)
	}
	nfo, _ := os.ReadFile(artifact.Locate(filepath.Join(f.base, "out", "films"), "Quiet.2020").NFO)
	if !strings.Contains(string(nfo), inspectionUnavailable) {
		t.Fatalf("placeholder missing:\n%s", nfo)
	}
}

func TestSubmitWithoutValidItems(t *testing.T) {
	f := newFixture(t)
	id, err := f.proc.SubmitFiles(context.Background(), []string{"nope"})
	if !errors.Is(err, ErrNoValidItems) {
		t.Fatalf("expected ErrNoValidItems, got %v", err)
	}
	job, ok := f.store.Get(id)
	if !ok || job.Status != domain.JobStatusError || job.Error == "" {
		t.Fatalf("rejected batch should be an error job: %+v", job)
	}
	if job.Summary == nil || job.Summary.Total != 0 || job.Summary.ErrorDetails == nil {
		t.Fatalf("rejected batch should carry an empty summary: %+v", job.Summary)
	}
	if len(f.events.ofType(domain.EventJobError)) != 1 {
		t.Fatalf("expected a job:error event")
	}

	if _, err := f.proc.SubmitDirectories(context.Background(), []string{"nope"}, nil); !errors.Is(err, ErrNoValidItems) {
		t.Fatalf("expected ErrNoValidItems for directories, got %v", err)
	}
}

func TestSubmitCollapsesRepeatedIDs(t *testing.T) {
	f := newFixture(t)
	a := f.addFile("films/A.2020.mkv", "aaaa")

	id, err := f.proc.SubmitFiles(context.Background(), []string{a.ID, a.ID})
	if err != nil {
		t.Fatal(err)
	}
	job := f.finished(id)
	if job.Status != domain.JobStatusCompleted || len(job.Items) != 1 {
		t.Fatalf("expected one completed item, got %s with %+v", job.Status, job.Items)
	}
	if job.Items[0].Status != domain.ItemStatusCompleted {
		t.Fatalf("item left at %s", job.Items[0].Status)
	}
	if job.Summary == nil || job.Summary.Total != 1 || job.Summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", job.Summary)
	}
}

func TestJobsQueueWhenSlotsAreBusy(t *testing.T) {
	gate := make(chan struct{})
	f := newFixtureWithSlots(t, 1, gate)
	a := f.addFile("films/A.2020.mkv", "aaaa")
	b := f.addFile("films/B.2021.mkv", "bbbb")

	first, err := f.proc.SubmitFiles(context.Background(), []string{a.ID})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.proc.SubmitFiles(context.Background(), []string{b.ID})
	if err != nil {
		t.Fatal(err)
	}
	if job, _ := f.store.Get(first); job.Status != domain.JobStatusRunning {
		t.Fatalf("first job should run at once, got %s", job.Status)
	}
	if job, _ := f.store.Get(second); job.Status != domain.JobStatusQueued {
		t.Fatalf("second job should wait for a slot, got %s", job.Status)
	}

	close(gate)
	for _, id := range []string{first, second} {
		if job := f.finished(id); job.Status != domain.JobStatusCompleted {
			t.Fatalf("job %s ended %s: %s", id, job.Status, job.Error)
		}
	}
	if n := len(f.events.ofType(domain.EventJobStart)); n != 2 {
		t.Fatalf("expected two job:start events, got %d", n)
	}
}

func TestShutdownInterruptsRunningAndQueuedJobs(t *testing.T) {
	f := newFixtureWithSlots(t, 1, make(chan struct{}))
	a := f.addFile("films/A.2020.mkv", "aaaa")
	b := f.addFile("films/B.2021.mkv", "bbbb")

	running, err := f.proc.SubmitFiles(context.Background(), []string{a.ID})
	if err != nil {
		t.Fatal(err)
	}
	queued, err := f.proc.SubmitFiles(context.Background(), []string{b.ID})
	if err != nil {
		t.Fatal(err)
	}

	f.proc.Shutdown()

	for _, id := range []string{running, queued} {
		job, ok := f.store.Get(id)
		if !ok || job.Status != domain.JobStatusError || job.Error != "interrupted" {
			t.Fatalf("job %s should be interrupted: %+v", id, job)
		}
		if job.Summary == nil || job.Summary.Total != 1 {
			t.Fatalf("job %s should keep a summary: %+v", id, job.Summary)
		}
	}
	if n := len(f.events.ofType(domain.EventJobError)); n != 2 {
		t.Fatalf("expected two job:error events, got %d", n)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	p := NewProcessor(Config{}, Deps{Store: jobstore.New()})
	if _, err := p.SubmitFiles(context.Background(), []string{"x"}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestProcessDirectoryWithHardlinks(t *testing.T) {
	f := newFixture(t)
	seed := filepath.Join(f.base, "seed")
	f.settings.SeedLinks = []SeedLink{{Source: filepath.Join(f.base, "series"), Dest: seed}}

	var files []domain.MediaItem
	for _, name := range []string{"e01.mkv", "e02.mkv", "e03.mkv"} {
		files = append(files, f.addFile(filepath.Join("series", "Show", "S01", name), name))
	}
	dir := filepath.Join(f.base, "series", "Show", "S01")
	group := domain.DirectoryGroup{
		ID:       domain.EncodeID(dir),
		Path:     dir,
		Name:     "S01",
		Category: domain.CategorySeries,
		Files:    files,
	}
	f.catalog.dirs[group.ID] = group
	names := map[string]string{group.ID: "Show.S01.PACK"}

	id, err := f.proc.SubmitDirectories(context.Background(), []string{group.ID}, names)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := f.finished(id)
	if job.Summary.Processed != 1 || job.Summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", job.Summary)
	}
	if job.Items[0].CustomName != "Show.S01.PACK" {
		t.Fatalf("custom name not kept on the work item")
	}
	if len(f.builder.reqs) != 1 || f.builder.reqs[0].Name != "Show.S01.PACK" || f.builder.reqs[0].Source != dir {
		t.Fatalf("unexpected archive request %+v", f.builder.reqs)
	}

	for _, src := range files {
		linked, err := os.Stat(filepath.Join(seed, "Show.S01.PACK", src.Name))
		if err != nil {
			t.Fatalf("link missing: %v", err)
		}
		orig, _ := os.Stat(src.Path)
		if !os.SameFile(orig, linked) {
			t.Fatalf("%s is not a hard link", src.Name)
		}
	}

	nfo, _ := os.ReadFile(artifact.Locate(filepath.Join(f.base, "out", "series"), "Show.S01.PACK").NFO)
	if !strings.Contains(string(nfo), "[ Content : 3 files ]") {
		t.Fatalf("directory nfo should list files:\n%s", nfo)
	}

	f.events.reset()
	id, _ = f.proc.SubmitDirectories(context.Background(), []string{group.ID}, names)
	job = f.finished(id)
	if job.Summary.Skipped != 1 {
		t.Fatalf("re-run should skip: %+v", job.Summary)
	}
	var final *domain.DirectoryStatusData
	for _, ev := range f.events.ofType(domain.EventDirectoryStatus) {
		d := ev.Data.(domain.DirectoryStatusData)
		if d.Status == domain.ItemStatusSkipped {
			final = &d
		}
	}
	if final == nil || final.Links == nil || final.Links.Existing != 3 || final.Links.Created != 0 {
		t.Fatalf("unexpected link report %+v", final)
	}
}

func TestRedactCompleteName(t *testing.T) {
	report := "General\nComplete name                            : /srv/media/films/X.mkv\nFormat : Matroska\n"
	got := redactCompleteName(report, "X.mkv")
	if strings.Contains(got, "/srv/media") || !strings.Contains(got, "Complete name                            : X.mkv") {
		t.Fatalf("path not redacted:\n%s", got)
	}
}

func TestRenderFileNFO(t *testing.T) {
	added := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	nfo := renderFileNFO("Some.Movie.2024", 1536, added, "REPORT")
	for _, want := range []string{
		"PRIVATE TRACKER NFO",
		"Release Name : Some.Movie.2024",
		"File Size    : 1.5 KiB",
		"Added On     : 2024-05-01 12:30:00",
		"[ Video / Audio / Subtitles ]\n" + nfoThinRule + "\nREPORT",
		"Generated by torrentify",
	} {
		if !strings.Contains(nfo, want) {
			t.Fatalf("nfo missing %q:\n%s", want, nfo)
		}
	}
	if strings.HasPrefix(nfo, "\n") || strings.HasSuffix(nfo, "\n") {
		t.Fatalf("nfo should be trimmed")
	}
}

func TestFolderLocksSerialize(t *testing.T) {
	locks := newFolderLocks()
	var (
		inside atomic.Int32
		peak   atomic.Int32
		wg     sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("same")
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("lock held by %d goroutines at once", peak.Load())
	}
	if len(locks.locks) != 0 {
		t.Fatalf("released locks should be dropped")
	}
}
