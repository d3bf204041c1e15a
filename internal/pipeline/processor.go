package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"torrentify/internal/domain"
	"torrentify/internal/jobstore"
	"torrentify/internal/naming"
	"torrentify/internal/renderer"
	"torrentify/internal/telemetry"
	"torrentify/internal/tmdb"
)

var (
	ErrNoValidItems = errors.New("no valid items found for the provided ids")
	ErrNotStarted   = errors.New("processor not started")
)

// Processor turns selected media into release artifacts in background jobs.
type Processor interface {
	Start(ctx context.Context) error
	Shutdown()
	// Wait blocks until every submitted job has finished.
	Wait()
	SubmitFiles(ctx context.Context, ids []string) (string, error)
	SubmitDirectories(ctx context.Context, ids []string, names map[string]string) (string, error)
}

// EventSink receives every progress event a job produces, in order.
type EventSink interface {
	Broadcast(ev domain.Event)
}

type Inspector interface {
	Inspect(ctx context.Context, path string) (string, error)
}

type MetadataLookup interface {
	Find(ctx context.Context, kind domain.MediaKind, title, year string) (*tmdb.Result, error)
}

// Catalog resolves client identifiers against the inventory.
type Catalog interface {
	FilesByIDs(ctx context.Context, ids []string) ([]domain.MediaItem, error)
	DirectoryByID(ctx context.Context, id string) (domain.DirectoryGroup, bool, error)
	Clear()
}

// ReleaseIndex remembers the release name given to each source path.
type ReleaseIndex interface {
	ReleaseFor(ctx context.Context, path string) (string, bool)
	RecordRelease(ctx context.Context, path, release string, category domain.Category) error
}

// History persists finished jobs.
type History interface {
	SaveJob(ctx context.Context, job domain.Job) error
}

// Exporter ships a finished artifact folder elsewhere.
type Exporter interface {
	ExportFolder(ctx context.Context, dir string, category domain.Category) (string, error)
}

// SeedLink maps media below Source to a seeding directory.
type SeedLink struct {
	Source string
	Dest   string
}

// Settings is the configuration snapshot taken when a job starts.
type Settings struct {
	Sources   []domain.MediaSource
	Trackers  []string
	SeedLinks []SeedLink
	Parallel  int
	Private   bool
}

type Config struct {
	MaxConcurrentJobs int
	Settings          func() Settings
	Logger            *logrus.Logger
}

// Deps are the collaborators of a processor. Store, Events, Catalog,
// Inspector and Builder are required.
type Deps struct {
	Store     *jobstore.Store
	Events    EventSink
	Catalog   Catalog
	Namer     naming.Strategy
	Extractor naming.Extractor
	Inspector Inspector
	Builder   renderer.ArchiveBuilder
	Lookup    MetadataLookup
	Index     ReleaseIndex
	History   History
	Exporter  Exporter
}

type processor struct {
	cfg   Config
	deps  Deps
	locks *folderLocks

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Processor = (*processor)(nil)

func NewProcessor(cfg Config, deps Deps) Processor {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Settings == nil {
		cfg.Settings = func() Settings { return Settings{} }
	}
	if deps.Extractor != nil {
		deps.Extractor = newMemoExtractor(deps.Extractor)
	}
	if deps.Namer == nil {
		deps.Namer = naming.NewScene(deps.Extractor, cfg.Logger)
	}
	if deps.Index == nil {
		deps.Index = NewMemoryIndex()
	}
	return &processor{
		cfg:   cfg,
		deps:  deps,
		locks: newFolderLocks(),
		sem:   make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

func (p *processor) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cfg.Logger.Infof("processing pipeline started, %d concurrent jobs", p.cfg.MaxConcurrentJobs)
	return nil
}

func (p *processor) Shutdown() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.cfg.Logger.Info("processing pipeline stopped")
}

func (p *processor) Wait() {
	p.wg.Wait()
}

func (p *processor) SubmitFiles(ctx context.Context, ids []string) (string, error) {
	if p.ctx == nil {
		return "", ErrNotStarted
	}
	files, err := p.deps.Catalog.FilesByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return "", fmt.Errorf("resolve files: %w", err)
	}
	if len(files) == 0 {
		return p.rejectBatch(domain.JobKindFiles, "No valid files found for the provided IDs"), ErrNoValidItems
	}

	work := make([]domain.WorkItem, len(files))
	for i, f := range files {
		work[i] = domain.WorkItem{ID: f.ID, Path: f.Path, Name: f.Name, Category: f.Category}
	}
	id := p.deps.Store.CreateJob(domain.JobKindFiles, work)
	p.spawnJob(id, domain.JobKindFiles, work, nil)
	return id, nil
}

func (p *processor) SubmitDirectories(ctx context.Context, ids []string, names map[string]string) (string, error) {
	if p.ctx == nil {
		return "", ErrNotStarted
	}
	var (
		work []domain.WorkItem
		dirs = make(map[string]domain.DirectoryGroup)
	)
	for _, dirID := range uniqueIDs(ids) {
		g, ok, err := p.deps.Catalog.DirectoryByID(ctx, dirID)
		if err != nil {
			return "", fmt.Errorf("resolve directory: %w", err)
		}
		if !ok {
			continue
		}
		dirs[g.Path] = g
		work = append(work, domain.WorkItem{
			ID:          g.ID,
			Path:        g.Path,
			Name:        g.Name,
			Category:    g.Category,
			IsDirectory: true,
			FilesCount:  len(g.Files),
			CustomName:  names[dirID],
		})
	}
	if len(work) == 0 {
		return p.rejectBatch(domain.JobKindDirectories, "No valid directories found for the provided IDs"), ErrNoValidItems
	}

	id := p.deps.Store.CreateJob(domain.JobKindDirectories, work)
	p.spawnJob(id, domain.JobKindDirectories, work, dirs)
	return id, nil
}

// rejectBatch records a job that could not start so it stays queryable.
func (p *processor) rejectBatch(kind domain.JobKind, msg string) string {
	id := p.deps.Store.CreateJob(kind, nil)
	p.failJob(id, msg, emptySummary(0))
	return id
}

// uniqueIDs drops repeated ids, keeping the first occurrence. Work items are
// addressed by path, so a repeated id would leave its copy unattributed.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func emptySummary(total int) domain.Summary {
	return domain.Summary{Total: total, ErrorDetails: []domain.ItemError{}}
}

// spawnJob moves the job to running right away when a slot is free;
// otherwise it stays queued until one opens up.
func (p *processor) spawnJob(id string, kind domain.JobKind, work []domain.WorkItem, dirs map[string]domain.DirectoryGroup) {
	acquired := false
	select {
	case p.sem <- struct{}{}:
		acquired = true
		p.startJob(id, kind, work)
	default:
		p.cfg.Logger.WithField("job_id", id).Info("job queued, waiting for a free slot")
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if !acquired {
			select {
			case <-p.ctx.Done():
				p.failJob(id, "interrupted", emptySummary(len(work)))
				return
			case p.sem <- struct{}{}:
				p.startJob(id, kind, work)
			}
		}
		defer func() { <-p.sem }()
		p.runJob(p.ctx, id, kind, work, dirs)
	}()
}

func (p *processor) startJob(id string, kind domain.JobKind, work []domain.WorkItem) {
	if err := p.deps.Store.Transition(id, domain.JobStatusRunning); err != nil {
		p.cfg.Logger.WithField("job_id", id).Errorf("start job: %v", err)
		return
	}
	data := domain.StartData{Timestamp: time.Now().UTC()}
	if kind == domain.JobKindDirectories {
		data.DirectoriesCount = len(work)
		data.IsDirectory = true
	} else {
		data.FilesCount = len(work)
	}
	p.emit(domain.Event{Type: domain.EventJobStart, JobID: id, Data: data})
}

func (p *processor) runJob(ctx context.Context, id string, kind domain.JobKind, work []domain.WorkItem, dirs map[string]domain.DirectoryGroup) {
	started := time.Now()
	t := &tally{summary: emptySummary(len(work))}
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.WithField("job_id", id).Errorf("job panicked: %v", r)
			p.failJob(id, fmt.Sprintf("internal error: %v", r), t.finish(started))
		}
	}()

	settings := p.cfg.Settings()
	parallel := max(settings.Parallel, 1)

	noun := "files"
	if kind == domain.JobKindDirectories {
		noun = "directories"
	}
	p.logf(id, domain.LogInfo, "Processing %d %s (%d in parallel)", len(work), noun, parallel)

	var (
		g       errgroup.Group
		current atomic.Int64
	)
	g.SetLimit(parallel)
	for _, item := range work {
		g.Go(func() error {
			n := int(current.Add(1))
			p.deps.Store.UpdateProgress(id, func(pr *domain.Progress) {
				pr.Current = max(pr.Current, n)
				pr.CurrentFile = item.Name
			})
			p.emit(domain.Event{Type: domain.EventJobProgress, JobID: id, Data: domain.ProgressData{
				Current:     n,
				Total:       len(work),
				CurrentFile: item.Name,
				Timestamp:   time.Now().UTC(),
			}})

			itemStart := time.Now()
			p.guard(id, item, t, func() {
				if item.IsDirectory {
					p.processDirectory(ctx, id, item, dirs[item.Path], settings, t)
				} else {
					p.processFile(ctx, id, item, settings, t)
				}
			})
			telemetry.ItemDuration.WithLabelValues(string(kind)).Observe(time.Since(itemStart).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		p.failJob(id, "interrupted", t.finish(started))
		return
	}

	summary := t.finish(started)
	p.deps.Store.SetSummary(id, summary)
	if err := p.deps.Store.Transition(id, domain.JobStatusCompleted); err != nil {
		p.cfg.Logger.WithField("job_id", id).Errorf("complete job: %v", err)
		return
	}
	telemetry.JobsFinished.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	p.logf(id, domain.LogSuccess, "Job finished: %d processed, %d skipped, %d errors in %.1fs",
		summary.Processed, summary.Skipped, summary.Errors, summary.DurationSeconds)
	p.emit(domain.Event{Type: domain.EventJobComplete, JobID: id, Data: domain.CompleteData{
		Summary:     summary,
		IsDirectory: kind == domain.JobKindDirectories,
		Timestamp:   time.Now().UTC(),
	}})

	p.deps.Catalog.Clear()
	p.persist(id)
}

// guard turns a panic inside one item into an item error.
func (p *processor) guard(id string, item domain.WorkItem, t *tally, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.itemFailed(id, item, fmt.Errorf("internal error: %v", r), t)
		}
	}()
	fn()
}

// failJob ends a job in error. The summary is recorded first so a failed job
// stays as queryable as a completed one.
func (p *processor) failJob(id, msg string, summary domain.Summary) {
	job, ok := p.deps.Store.Get(id)
	if !ok || job.Status.Terminal() {
		return
	}
	p.deps.Store.SetSummary(id, summary)
	if !p.deps.Store.SetError(id, msg) {
		return
	}
	telemetry.JobsFinished.WithLabelValues(string(domain.JobStatusError)).Inc()
	p.cfg.Logger.WithField("job_id", id).Errorf("job failed: %s", msg)
	p.emit(domain.Event{Type: domain.EventJobError, JobID: id, Data: domain.ErrorData{
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}})
	p.persist(id)
}

func (p *processor) persist(id string) {
	if p.deps.History == nil {
		return
	}
	job, ok := p.deps.Store.Get(id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.deps.History.SaveJob(ctx, job); err != nil {
		p.cfg.Logger.WithField("job_id", id).Warnf("persist job history: %v", err)
	}
}

func (p *processor) emit(ev domain.Event) {
	if p.deps.Events != nil {
		p.deps.Events.Broadcast(ev)
	}
}

// logf appends to the job log, broadcasts it and mirrors it to the process log.
func (p *processor) logf(id string, level domain.LogLevel, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	now := time.Now().UTC()
	p.deps.Store.AppendLog(id, msg, level)
	p.emit(domain.Event{Type: domain.EventJobLog, JobID: id, Data: domain.LogData{
		Message:   msg,
		Level:     level,
		Timestamp: now,
	}})

	entry := p.cfg.Logger.WithField("job_id", id)
	switch level {
	case domain.LogError:
		entry.Error(msg)
	case domain.LogWarn:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

// tally accumulates a job summary across concurrent items.
type tally struct {
	mu      sync.Mutex
	summary domain.Summary
}

func (t *tally) add(fn func(s *domain.Summary)) {
	t.mu.Lock()
	fn(&t.summary)
	t.mu.Unlock()
}

func (t *tally) snapshot() domain.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summary
	s.ErrorDetails = append([]domain.ItemError{}, t.summary.ErrorDetails...)
	return s
}

// finish snapshots the counts with the elapsed time since started.
func (t *tally) finish(started time.Time) domain.Summary {
	s := t.snapshot()
	s.DurationSeconds = time.Since(started).Seconds()
	return s
}
