package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	nfoRule     = "============================================================"
	nfoThinRule = "------------------------------------------------------------"

	inspectionUnavailable = "Technical information unavailable."
)

var completeNameLine = regexp.MustCompile(`(?m)^Complete name\s*:.*$`)

// redactCompleteName keeps only the base name on the inspection's
// "Complete name" line so that absolute paths never leak into an NFO.
func redactCompleteName(report, base string) string {
	line := fmt.Sprintf("Complete name                            : %s", base)
	return completeNameLine.ReplaceAllLiteralString(strings.TrimRight(report, "\n"), line)
}

func nfoHeader(b *strings.Builder, release string, size int64, added time.Time) {
	fmt.Fprintln(b, nfoRule)
	fmt.Fprintln(b, "                        PRIVATE TRACKER NFO")
	fmt.Fprintln(b, nfoRule)
	fmt.Fprintf(b, "Release Name : %s\n", release)
	fmt.Fprintf(b, "File Size    : %s\n", formatBytes(size))
	fmt.Fprintf(b, "Added On     : %s\n", added.UTC().Format(time.DateTime))
	fmt.Fprintln(b, nfoRule)
}

func nfoInspection(b *strings.Builder, report string) {
	fmt.Fprintln(b)
	fmt.Fprintln(b, "[ Video / Audio / Subtitles ]")
	fmt.Fprintln(b, nfoThinRule)
	fmt.Fprintln(b, report)
	fmt.Fprintln(b)
	fmt.Fprintln(b, nfoRule)
	fmt.Fprintln(b, "Generated by torrentify")
	fmt.Fprint(b, nfoRule)
}

func renderFileNFO(release string, size int64, added time.Time, report string) string {
	var b strings.Builder
	nfoHeader(&b, release, size, added)
	nfoInspection(&b, report)
	return b.String()
}

// renderDirectoryNFO lists every file of the release before the inspection
// of its first file.
func renderDirectoryNFO(release string, size int64, added time.Time, files []contentFile, report string) string {
	var b strings.Builder
	nfoHeader(&b, release, size, added)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "[ Content : %d files ]\n", len(files))
	fmt.Fprintln(&b, nfoThinRule)
	for _, f := range files {
		fmt.Fprintf(&b, "%-48s %10s\n", f.Rel, formatBytes(f.Size))
	}
	nfoInspection(&b, report)
	return b.String()
}

func formatBytes(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}
