package jobstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"torrentify/internal/domain"
)

// MaxLogEntries bounds the per-job log; older entries are dropped first.
const MaxLogEntries = 1000

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

var transitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobStatusQueued:  {domain.JobStatusRunning, domain.JobStatusError},
	domain.JobStatusRunning: {domain.JobStatusCompleted, domain.JobStatusError},
}

// Store is the process-local registry of jobs. All methods are safe for
// concurrent use; returned jobs are copies.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*domain.Job
	order  []string
	active map[string]struct{}
	now    func() time.Time
}

func New() *Store {
	return &Store{
		jobs:   make(map[string]*domain.Job),
		active: make(map[string]struct{}),
		now:    time.Now,
	}
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// CreateJob registers a queued job for the given work-list and returns its id.
func (s *Store) CreateJob(kind domain.JobKind, items []domain.WorkItem) string {
	list := make([]domain.WorkItem, len(items))
	for i, it := range items {
		it.Status = domain.ItemStatusPending
		it.Error = ""
		list[i] = it
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := newJobID()
	for _, exists := s.jobs[id]; exists; _, exists = s.jobs[id] {
		id = newJobID()
	}
	s.jobs[id] = &domain.Job{
		ID:        id,
		Kind:      kind,
		Status:    domain.JobStatusQueued,
		Items:     list,
		Progress:  domain.Progress{Total: len(list)},
		StartTime: s.now().UTC(),
	}
	s.order = append(s.order, id)
	return id
}

func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return cloneJob(job, true), true
}

// List returns jobs in creation order. When statuses are given only matching
// jobs are returned. Logs are omitted; use Logs for them.
func (s *Store) List(statuses ...domain.JobStatus) []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		if len(statuses) > 0 && !slices.Contains(statuses, job.Status) {
			continue
		}
		out = append(out, cloneJob(job, false))
	}
	return out
}

// Active returns queued and running jobs.
func (s *Store) Active() []domain.Job {
	return s.List(domain.JobStatusQueued, domain.JobStatusRunning)
}

func (s *Store) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[id]
	return ok
}

// Transition moves a job along queued -> running -> completed|error.
func (s *Store) Transition(id string, next domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !allowed(job.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, next)
	}
	s.apply(job, next)
	return nil
}

func (s *Store) apply(job *domain.Job, next domain.JobStatus) {
	job.Status = next
	switch {
	case next == domain.JobStatusRunning:
		s.active[job.ID] = struct{}{}
	case next.Terminal():
		end := s.now().UTC()
		job.EndTime = &end
		delete(s.active, job.ID)
	}
}

func (s *Store) AppendLog(id, message string, level domain.LogLevel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	job.Logs = append(job.Logs, domain.LogEntry{
		Timestamp: s.now().UTC(),
		Message:   message,
		Level:     level,
	})
	if over := len(job.Logs) - MaxLogEntries; over > 0 {
		trimmed := make([]domain.LogEntry, MaxLogEntries)
		copy(trimmed, job.Logs[over:])
		job.Logs = trimmed
	}
	return true
}

// UpdateProgress applies fn to the job progress under the store lock.
func (s *Store) UpdateProgress(id string, fn func(p *domain.Progress)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(&job.Progress)
	return true
}

// UpdateItemStatus sets the sub-status of the work item with the given path.
// Regressions are refused.
func (s *Store) UpdateItemStatus(id, itemPath string, status domain.ItemStatus, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	for i := range job.Items {
		item := &job.Items[i]
		if item.Path != itemPath {
			continue
		}
		if !item.Status.CanAdvanceTo(status) {
			return false
		}
		item.Status = status
		if errMsg != "" {
			item.Error = errMsg
		}
		return true
	}
	return false
}

func (s *Store) SetSummary(id string, summary domain.Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	job.Summary = &summary
	return true
}

// SetError records a terminal error on a job that is not yet terminal.
func (s *Store) SetError(id, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	job.Error = message
	s.apply(job, domain.JobStatusError)
	return true
}

// Logs returns a page of the job log.
func (s *Store) Logs(id string, offset, limit int) (domain.LogPage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.LogPage{}, false
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	total := len(job.Logs)
	start := min(offset, total)
	end := min(start+limit, total)
	page := make([]domain.LogEntry, end-start)
	copy(page, job.Logs[start:end])
	return domain.LogPage{Logs: page, Total: total, Offset: offset, Limit: limit}, true
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	delete(s.active, id)
	s.removeOrder(id)
	return true
}

// PruneOlderThan drops terminal jobs that ended more than maxAge ago.
func (s *Store) PruneOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-maxAge)
	pruned := 0
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status.Terminal() && job.EndTime != nil && job.EndTime.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return pruned
}

func (s *Store) Stats() domain.JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.JobStats{Total: len(s.jobs), ActiveJobs: len(s.active)}
	for _, job := range s.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusRunning:
			stats.Running++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusError:
			stats.Errors++
		}
	}
	return stats
}

// RunJanitor prunes expired jobs every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, maxAge time.Duration, logger *logrus.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PruneOlderThan(maxAge); n > 0 && logger != nil {
				logger.Infof("pruned %d finished jobs", n)
			}
		}
	}
}

func (s *Store) removeOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func allowed(from, to domain.JobStatus) bool {
	return slices.Contains(transitions[from], to)
}

func cloneJob(job *domain.Job, withLogs bool) domain.Job {
	out := *job
	out.Items = append([]domain.WorkItem(nil), job.Items...)
	out.Logs = nil
	if withLogs {
		out.Logs = append([]domain.LogEntry(nil), job.Logs...)
	}
	if job.EndTime != nil {
		end := *job.EndTime
		out.EndTime = &end
	}
	if job.Summary != nil {
		summary := *job.Summary
		summary.ErrorDetails = append([]domain.ItemError(nil), job.Summary.ErrorDetails...)
		out.Summary = &summary
	}
	return out
}
