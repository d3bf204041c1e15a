package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"torrentify/internal/domain"
)

// barSink advances a terminal progress bar as items reach a final status.
type barSink struct {
	out io.Writer

	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	done int
}

func newBarSink(out io.Writer) *barSink {
	return &barSink{out: out}
}

func (s *barSink) start(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (s *barSink) Broadcast(ev domain.Event) {
	var status domain.ItemStatus
	switch d := ev.Data.(type) {
	case domain.FileStatusData:
		status = d.Status
	case domain.DirectoryStatusData:
		status = d.Status
	default:
		return
	}
	switch status {
	case domain.ItemStatusCompleted, domain.ItemStatusSkipped, domain.ItemStatusError:
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

func (s *barSink) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}
