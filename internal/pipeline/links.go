package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"torrentify/internal/domain"
)

// linkForSeeding hard-links the content of a directory release into every
// seeding directory mapped to its source, laid out as the torrent names it.
// A nil report means no mapping applied.
func (p *processor) linkForSeeding(jobID string, tg target, mappings []SeedLink) *domain.LinkReport {
	var dests []string
	for _, m := range mappings {
		if m.Dest != "" && domain.Within(m.Source, tg.item.Path) {
			dests = append(dests, m.Dest)
		}
	}
	if len(dests) == 0 {
		p.logf(jobID, domain.LogWarn, "No seeding directory mapped for %s, hard links skipped", tg.item.Name)
		return nil
	}

	report := &domain.LinkReport{}
	for _, dest := range dests {
		root := filepath.Join(dest, tg.release)
		for _, f := range tg.files {
			switch err := hardlink(f.Path, filepath.Join(root, f.Rel)); {
			case err == nil:
				report.Created++
			case errors.Is(err, errLinkExists):
				report.Existing++
			default:
				report.Failed++
				p.logf(jobID, domain.LogWarn, "Hard link failed for %s: %v", f.Rel, err)
			}
		}
	}
	level := domain.LogSuccess
	if report.Failed > 0 {
		level = domain.LogWarn
	}
	p.logf(jobID, level, "Hard links for %s: %d created, %d existing, %d failed",
		tg.release, report.Created, report.Existing, report.Failed)
	return report
}

var errLinkExists = errors.New("link already exists")

// hardlink links src at dst. An existing dst pointing at the same inode
// reports errLinkExists; any other existing file is an error.
func hardlink(src, dst string) error {
	if existing, err := os.Stat(dst); err == nil {
		source, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
		if os.SameFile(source, existing) {
			return errLinkExists
		}
		return fmt.Errorf("%s exists and is a different file", dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create link directory: %w", err)
	}
	if err := os.Link(src, dst); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}
