package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"torrentify/internal/app"
	"torrentify/internal/domain"
	"torrentify/internal/inventory"
	"torrentify/internal/pipeline"
)

var (
	processCategories  []string
	processDirectories bool
	processDryRun      bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Produce artifacts for every pending item",
	Long: `Scans the configured media roots and processes every item that is still
missing one of its artifacts, showing a progress bar until all jobs finish.

Examples:
  torrentify process
  torrentify process --category films,animes_films
  torrentify process --category series --directories`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringSliceVar(&processCategories, "category", nil, "Categories to process (default: every enabled category)")
	processCmd.Flags().BoolVar(&processDirectories, "directories", false, "Process series and game folders as one release per directory")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Only print what would be processed")
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	categories, err := parseCategories(processCategories)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sink := newBarSink(cmd.ErrOrStderr())
	a, err := app.Build(ctx, provider, logger, sink)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.Scanner.Grouped(ctx, true)
	if err != nil {
		return fmt.Errorf("scan media: %w", err)
	}
	sel := selectPending(view, categories, processDirectories)
	if sel.empty() {
		fmt.Fprintln(out, "nothing to process")
		return nil
	}
	if processDryRun {
		for _, name := range sel.names {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	if err := a.Processor.Start(ctx); err != nil {
		return err
	}
	defer a.Processor.Shutdown()
	sink.start(len(sel.files) + len(sel.dirs))

	var jobIDs []string
	if len(sel.files) > 0 {
		id, err := a.Processor.SubmitFiles(ctx, sel.files)
		if err != nil && !errors.Is(err, pipeline.ErrNoValidItems) {
			return err
		}
		jobIDs = append(jobIDs, id)
	}
	if len(sel.dirs) > 0 {
		id, err := a.Processor.SubmitDirectories(ctx, sel.dirs, nil)
		if err != nil && !errors.Is(err, pipeline.ErrNoValidItems) {
			return err
		}
		jobIDs = append(jobIDs, id)
	}
	a.Processor.Wait()
	sink.finish()

	failed := false
	for _, id := range jobIDs {
		job, err := a.Jobs.GetJob(ctx, id)
		if err != nil {
			return err
		}
		printSummary(out, job)
		if job.Status == domain.JobStatusError {
			failed = true
		}
	}
	if failed {
		return errors.New("one or more jobs failed")
	}
	return nil
}

// selection is what a batch run submits: loose files and whole directories.
type selection struct {
	files []string
	dirs  []string
	names []string
}

func (s selection) empty() bool { return len(s.files) == 0 && len(s.dirs) == 0 }

// selectPending picks every unfinished item of the wanted categories. With
// directories set, grouped categories contribute their unfinished folders
// instead of single files; games files sitting directly under a root are
// still submitted as files.
func selectPending(view *inventory.GroupedView, categories []domain.Category, directories bool) selection {
	var sel selection
	addDirs := func(groups []domain.DirectoryGroup) {
		for _, g := range groups {
			if !g.IsFullyProcessed {
				sel.dirs = append(sel.dirs, g.ID)
				sel.names = append(sel.names, g.Path+"/")
			}
		}
	}
	addFiles := func(items []domain.MediaItem) {
		for _, it := range items {
			if !it.IsProcessed {
				sel.files = append(sel.files, it.ID)
				sel.names = append(sel.names, it.Path)
			}
		}
	}

	for _, c := range categories {
		if !directories || !c.Grouped() {
			addFiles(view.Category(c))
			continue
		}
		switch c {
		case domain.CategorySeries:
			addDirs(view.SeriesDirectories)
		case domain.CategoryAnimesSeries:
			addDirs(view.AnimesSeriesDirectories)
		case domain.CategoryGames:
			addDirs(view.GamesDirectories)
			addFiles(view.GamesRootFiles)
		}
	}
	return sel
}

func parseCategories(raw []string) ([]domain.Category, error) {
	if len(raw) == 0 {
		var all []domain.Category
		for _, src := range provider.Get().MediaSources() {
			all = append(all, src.Category)
		}
		return all, nil
	}
	out := make([]domain.Category, 0, len(raw))
	for _, r := range raw {
		c, err := domain.ParseCategory(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func printSummary(w io.Writer, job *domain.Job) {
	fmt.Fprintf(w, "job %s: %s\n", job.ID, job.Status)
	if job.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", job.Error)
	}
	s := job.Summary
	if s == nil {
		return
	}
	fmt.Fprintf(w, "  processed %d, skipped %d, errors %d, metadata %d found / %d missing, %.1fs\n",
		s.Processed, s.Skipped, s.Errors, s.MetadataFound, s.MetadataMissing, s.DurationSeconds)
	for _, e := range s.ErrorDetails {
		fmt.Fprintf(w, "  ! %s: %s\n", e.Name, e.Error)
	}
}
