package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"torrentify/internal/artifact"
	"torrentify/internal/domain"
	"torrentify/internal/naming"
	"torrentify/internal/renderer"
	"torrentify/internal/telemetry"
)

const metadataMissing = "TMDb : NON TROUVÉ\n"

// target is one source resolved to its output folder.
type target struct {
	item    domain.WorkItem
	source  domain.MediaSource
	release string
	set     artifact.Set
	files   []contentFile
	size    int64
}

type contentFile struct {
	Path string
	Rel  string
	Size int64
}

func (p *processor) processFile(ctx context.Context, jobID string, item domain.WorkItem, st Settings, t *tally) {
	src, _, ok := domain.MatchSource(st.Sources, item.Path)
	if !ok {
		p.logf(jobID, domain.LogWarn, "No configured category contains %s, skipping", item.Path)
		p.fileStatus(jobID, item, domain.ItemStatusSkipped, domain.Outputs{}, "")
		t.add(func(s *domain.Summary) { s.Skipped++ })
		telemetry.ItemsHandled.WithLabelValues("skipped").Inc()
		return
	}
	if err := ctx.Err(); err != nil {
		p.itemFailed(jobID, item, errors.New("interrupted"), t)
		return
	}
	p.fileStatus(jobID, item, domain.ItemStatusProcessing, domain.Outputs{}, "")

	fi, err := os.Stat(item.Path)
	if err != nil {
		p.itemFailed(jobID, item, fmt.Errorf("stat source: %w", err), t)
		return
	}

	tg := p.resolve(ctx, jobID, item, src)
	unlock := p.locks.Lock(tg.set.Dir)
	defer unlock()

	if tg.set.Status().Complete(src.Category.Kind()) {
		p.logf(jobID, domain.LogInfo, "%s already processed, skipping", tg.release)
		p.fileStatus(jobID, item, domain.ItemStatusSkipped, tg.set.Outputs(), "")
		t.add(func(s *domain.Summary) { s.Skipped++ })
		telemetry.ItemsHandled.WithLabelValues("skipped").Inc()
		return
	}

	tg.size = fi.Size()
	tg.files = []contentFile{{Path: item.Path, Rel: filepath.Base(item.Path), Size: fi.Size()}}
	out, err := p.produce(ctx, jobID, tg, st, t)
	if err != nil {
		p.itemFailed(jobID, item, err, t)
		return
	}
	p.completed(jobID, item, t)
	p.fileStatus(jobID, item, domain.ItemStatusCompleted, out, "")
	p.export(ctx, jobID, tg)
}

func (p *processor) processDirectory(ctx context.Context, jobID string, item domain.WorkItem, group domain.DirectoryGroup, st Settings, t *tally) {
	src, _, ok := domain.MatchSource(st.Sources, item.Path)
	if !ok {
		p.logf(jobID, domain.LogWarn, "No configured category contains %s, skipping", item.Path)
		p.dirStatus(jobID, item, domain.ItemStatusSkipped, domain.Outputs{}, nil, "")
		t.add(func(s *domain.Summary) { s.Skipped++ })
		telemetry.ItemsHandled.WithLabelValues("skipped").Inc()
		return
	}
	if err := ctx.Err(); err != nil {
		p.itemFailed(jobID, item, errors.New("interrupted"), t)
		return
	}
	p.dirStatus(jobID, item, domain.ItemStatusProcessing, domain.Outputs{}, nil, "")

	files, err := directoryContents(item.Path, src.Category, group)
	if err != nil {
		p.itemFailed(jobID, item, err, t)
		return
	}
	if len(files) == 0 {
		p.itemFailed(jobID, item, errors.New("directory contains no media files"), t)
		return
	}

	tg := p.resolve(ctx, jobID, item, src)
	tg.files = files
	for _, f := range files {
		tg.size += f.Size
	}
	p.logf(jobID, domain.LogInfo, "Directory %s: %d files, %s", item.Name, len(files), formatBytes(tg.size))

	unlock := p.locks.Lock(tg.set.Dir)
	defer unlock()

	status := domain.ItemStatusCompleted
	out := tg.set.Outputs()
	if tg.set.Status().Complete(src.Category.Kind()) {
		p.logf(jobID, domain.LogInfo, "%s already processed, skipping", tg.release)
		status = domain.ItemStatusSkipped
	} else {
		out, err = p.produce(ctx, jobID, tg, st, t)
		if err != nil {
			p.itemFailed(jobID, item, err, t)
			return
		}
	}

	links := p.linkForSeeding(jobID, tg, st.SeedLinks)

	if status == domain.ItemStatusSkipped {
		t.add(func(s *domain.Summary) { s.Skipped++ })
		telemetry.ItemsHandled.WithLabelValues("skipped").Inc()
	} else {
		p.completed(jobID, item, t)
		p.export(ctx, jobID, tg)
	}
	p.dirStatus(jobID, item, status, out, links, "")
}

// resolve names the item, reusing a recorded release name when there is one.
func (p *processor) resolve(ctx context.Context, jobID string, item domain.WorkItem, src domain.MediaSource) target {
	release := item.CustomName
	if release == "" {
		if known, ok := p.deps.Index.ReleaseFor(ctx, item.Path); ok && known != "" {
			release = known
		}
	}
	if release == "" {
		release = p.deps.Namer.ReleaseName(ctx, naming.Source{
			Path:        item.Path,
			Category:    src.Category,
			IsDirectory: item.IsDirectory,
		})
	}
	release = naming.SafeName(release)
	if release == "" {
		release = naming.SafeName(naming.FallbackName(item.Path, item.IsDirectory))
	}
	if err := p.deps.Index.RecordRelease(ctx, item.Path, release, src.Category); err != nil {
		p.logf(jobID, domain.LogWarn, "Could not record release name for %s: %v", item.Name, err)
	}
	return target{
		item:    item,
		source:  src,
		release: release,
		set:     artifact.Locate(src.Dest, release),
	}
}

// produce writes whichever artifacts are missing from the output folder.
func (p *processor) produce(ctx context.Context, jobID string, tg target, st Settings, t *tally) (domain.Outputs, error) {
	if err := os.MkdirAll(tg.set.Dir, 0o755); err != nil {
		return domain.Outputs{}, fmt.Errorf("create output folder: %w", err)
	}
	status := tg.set.Status()
	kind := tg.source.Category.Kind()

	if !status.HasNFO {
		nfo := p.describe(ctx, jobID, tg)
		if err := artifact.WriteFileAtomic(tg.set.NFO, []byte(nfo)); err != nil {
			return domain.Outputs{}, fmt.Errorf("write nfo: %w", err)
		}
		p.logf(jobID, domain.LogSuccess, "NFO written for %s", tg.release)
	}

	var infoHash string
	if !status.HasTorrent {
		if len(st.Trackers) == 0 {
			p.logf(jobID, domain.LogWarn, "No trackers configured, torrent not created for %s", tg.release)
		} else {
			req := renderer.ArchiveRequest{
				Source:        tg.item.Path,
				Output:        tg.set.Torrent,
				PieceExponent: renderer.PieceExponent(tg.size),
				Trackers:      st.Trackers,
				Private:       st.Private,
			}
			if tg.item.IsDirectory {
				req.Name = tg.release
			}
			res, err := p.deps.Builder.Build(ctx, req)
			if err != nil {
				return domain.Outputs{}, fmt.Errorf("create torrent: %w", err)
			}
			infoHash = res.InfoHash
			p.logf(jobID, domain.LogSuccess, "Torrent created for %s (%d trackers)", tg.release, len(st.Trackers))
		}
	}

	if !status.HasMetadata && kind != domain.KindGame {
		body, found, err := p.metadata(ctx, tg, kind)
		if err != nil {
			return domain.Outputs{}, fmt.Errorf("metadata lookup: %w", err)
		}
		if err := artifact.WriteFileAtomic(tg.set.Metadata, []byte(body)); err != nil {
			return domain.Outputs{}, fmt.Errorf("write metadata: %w", err)
		}
		if found {
			t.add(func(s *domain.Summary) { s.MetadataFound++ })
			p.logf(jobID, domain.LogSuccess, "Metadata found for %s", tg.release)
		} else {
			t.add(func(s *domain.Summary) { s.MetadataMissing++ })
			p.logf(jobID, domain.LogWarn, "No metadata match for %s", tg.release)
		}
	}

	out := tg.set.Outputs()
	out.InfoHash = infoHash
	return out, nil
}

// describe renders the NFO body. An inspection failure degrades to a
// placeholder section.
func (p *processor) describe(ctx context.Context, jobID string, tg target) string {
	first := tg.files[0].Path
	report, err := p.deps.Inspector.Inspect(ctx, first)
	if err != nil {
		p.logf(jobID, domain.LogWarn, "Media inspection failed for %s: %v", filepath.Base(first), err)
		report = inspectionUnavailable
	} else {
		report = redactCompleteName(report, filepath.Base(first))
	}

	now := time.Now()
	if tg.item.IsDirectory {
		return renderDirectoryNFO(tg.release, tg.size, now, tg.files, report)
	}
	return renderFileNFO(tg.release, tg.size, now, report)
}

func (p *processor) metadata(ctx context.Context, tg target, kind domain.MediaKind) (string, bool, error) {
	if p.deps.Lookup == nil {
		return metadataMissing, false, nil
	}
	title, year := p.titleAndYear(ctx, tg)
	res, err := p.deps.Lookup.Find(ctx, kind, title, year)
	if err != nil {
		return "", false, err
	}
	if res == nil {
		return metadataMissing, false, nil
	}
	return fmt.Sprintf("ID TMDB : %d\n", res.ID), true, nil
}

func (p *processor) titleAndYear(ctx context.Context, tg target) (string, string) {
	fallback := naming.FallbackName(tg.item.Path, tg.item.IsDirectory)
	if p.deps.Extractor == nil {
		return fallback, ""
	}
	f, err := p.deps.Extractor.Extract(ctx, tg.item.Path)
	if err != nil || f.Title == "" {
		return fallback, ""
	}
	return f.Title, f.YearString()
}

func (p *processor) export(ctx context.Context, jobID string, tg target) {
	if p.deps.Exporter == nil {
		return
	}
	loc, err := p.deps.Exporter.ExportFolder(ctx, tg.set.Dir, tg.source.Category)
	if err != nil {
		p.logf(jobID, domain.LogWarn, "Export of %s failed: %v", tg.release, err)
		return
	}
	p.logf(jobID, domain.LogInfo, "Exported %s to %s", tg.release, loc)
}

func (p *processor) completed(jobID string, item domain.WorkItem, t *tally) {
	t.add(func(s *domain.Summary) { s.Processed++ })
	p.deps.Store.UpdateProgress(jobID, func(pr *domain.Progress) { pr.Completed++ })
	telemetry.ItemsHandled.WithLabelValues("completed").Inc()
}

func (p *processor) itemFailed(jobID string, item domain.WorkItem, err error, t *tally) {
	msg := err.Error()
	t.add(func(s *domain.Summary) {
		s.Errors++
		s.ErrorDetails = append(s.ErrorDetails, domain.ItemError{
			ItemID: item.ID,
			Path:   item.Path,
			Name:   item.Name,
			Error:  msg,
		})
	})
	telemetry.ItemsHandled.WithLabelValues("error").Inc()
	p.logf(jobID, domain.LogError, "Failed to process %s: %s", item.Name, msg)
	if item.IsDirectory {
		p.dirStatus(jobID, item, domain.ItemStatusError, domain.Outputs{}, nil, msg)
	} else {
		p.fileStatus(jobID, item, domain.ItemStatusError, domain.Outputs{}, msg)
	}
}

func (p *processor) fileStatus(jobID string, item domain.WorkItem, status domain.ItemStatus, out domain.Outputs, errMsg string) {
	if !p.deps.Store.UpdateItemStatus(jobID, item.Path, status, errMsg) {
		return
	}
	p.emit(domain.Event{Type: domain.EventFileStatus, JobID: jobID, Data: domain.FileStatusData{
		File:      item.Path,
		Status:    status,
		Outputs:   out,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}})
}

func (p *processor) dirStatus(jobID string, item domain.WorkItem, status domain.ItemStatus, out domain.Outputs, links *domain.LinkReport, errMsg string) {
	if !p.deps.Store.UpdateItemStatus(jobID, item.Path, status, errMsg) {
		return
	}
	p.emit(domain.Event{Type: domain.EventDirectoryStatus, JobID: jobID, Data: domain.DirectoryStatusData{
		DirPath:   item.Path,
		DirName:   item.Name,
		Status:    status,
		Skipped:   status == domain.ItemStatusSkipped,
		Outputs:   out,
		Links:     links,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}})
}

// directoryContents lists the files making up a directory release. Game
// directories take every file below them; other categories take the media
// files found by the inventory.
func directoryContents(dir string, c domain.Category, group domain.DirectoryGroup) ([]contentFile, error) {
	if !c.Hierarchical() && len(group.Files) > 0 {
		out := make([]contentFile, 0, len(group.Files))
		for _, f := range group.Files {
			rel, err := filepath.Rel(dir, f.Path)
			if err != nil {
				rel = filepath.Base(f.Path)
			}
			out = append(out, contentFile{Path: f.Path, Rel: rel, Size: f.Size})
		}
		return out, nil
	}

	var out []contentFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, contentFile{Path: path, Rel: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list directory: %w", err)
	}
	return out, nil
}
