package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"torrentify/internal/app"
	"torrentify/internal/domain"
	"torrentify/internal/inventory"
)

var (
	scanJSON    bool
	scanPending bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List media per category with their artifact status",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the full inventory as JSON")
	scanCmd.Flags().BoolVar(&scanPending, "pending", false, "Only list items still missing artifacts")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := app.Build(ctx, provider, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.Scanner.Scan(ctx, true)
	if err != nil {
		return fmt.Errorf("scan media: %w", err)
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, category := range domain.Categories() {
		items := snap.Category(category)
		if len(items) == 0 {
			continue
		}
		st := inventory.Stats(items)
		fmt.Fprintf(w, "== %s\t%d files\t%d done\t%d%%\n", category, st.TotalFiles, st.Completed, st.CompletionRate)
		for _, it := range items {
			if scanPending && it.IsProcessed {
				continue
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", marker(it.Status, category.Kind()), it.Name, it.OutputName)
		}
	}
	st := snap.Stats
	fmt.Fprintf(w, "total\t%d files\t%d done\t%d%%\n", st.TotalFiles, st.Completed, st.CompletionRate)
	return w.Flush()
}

// marker renders the artifact flags as N (nfo), T (torrent), M (metadata).
func marker(s domain.ProcessingStatus, kind domain.MediaKind) string {
	flag := func(ok bool, c byte) byte {
		if ok {
			return c
		}
		return '-'
	}
	m := []byte{flag(s.HasNFO, 'N'), flag(s.HasTorrent, 'T'), flag(s.HasMetadata, 'M')}
	if kind == domain.KindGame {
		m = m[:2]
	}
	return "[" + string(m) + "]"
}
