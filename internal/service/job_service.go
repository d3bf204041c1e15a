package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"torrentify/internal/domain"
	"torrentify/internal/jobstore"
	"torrentify/internal/repository"
)

// ErrJobNotFound is returned when a job is neither live nor in history.
var ErrJobNotFound = errors.New("job not found")

// JobService answers job queries from the live store, falling back to the
// persisted history for jobs the store has already pruned.
type JobService interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, statuses ...domain.JobStatus) []domain.Job
	ActiveJobs(ctx context.Context) []domain.Job
	History(ctx context.Context, limit int) ([]domain.Job, error)
	Logs(ctx context.Context, id string, offset, limit int) (domain.LogPage, error)
	Stats(ctx context.Context) domain.JobStats
	SaveJob(ctx context.Context, job domain.Job) error
	PruneHistory(ctx context.Context, maxAge time.Duration) (int64, error)
}

type jobService struct {
	store   *jobstore.Store
	history repository.JobRepository
}

func NewJobService(store *jobstore.Store, history repository.JobRepository) JobService {
	return &jobService{
		store:   store,
		history: history,
	}
}

func (s *jobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	if job, ok := s.store.Get(id); ok {
		return &job, nil
	}
	if s.history == nil {
		return nil, ErrJobNotFound
	}
	job, err := s.history.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job history: %w", err)
	}
	return job, nil
}

func (s *jobService) ListJobs(_ context.Context, statuses ...domain.JobStatus) []domain.Job {
	return s.store.List(statuses...)
}

func (s *jobService) ActiveJobs(_ context.Context) []domain.Job {
	return s.store.Active()
}

func (s *jobService) History(ctx context.Context, limit int) ([]domain.Job, error) {
	if s.history == nil {
		return s.store.List(domain.JobStatusCompleted, domain.JobStatusError), nil
	}
	jobs, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	for i := range jobs {
		jobs[i].Logs = nil
	}
	return jobs, nil
}

func (s *jobService) Logs(ctx context.Context, id string, offset, limit int) (domain.LogPage, error) {
	if page, ok := s.store.Logs(id, offset, limit); ok {
		return page, nil
	}
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return domain.LogPage{}, err
	}
	return paginate(job.Logs, offset, limit), nil
}

func (s *jobService) Stats(_ context.Context) domain.JobStats {
	return s.store.Stats()
}

func (s *jobService) SaveJob(ctx context.Context, job domain.Job) error {
	if s.history == nil {
		return nil
	}
	return s.history.Save(ctx, job)
}

func (s *jobService) PruneHistory(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.history == nil || maxAge <= 0 {
		return 0, nil
	}
	return s.history.PruneOlderThan(ctx, time.Now().Add(-maxAge))
}

func paginate(logs []domain.LogEntry, offset, limit int) domain.LogPage {
	if limit <= 0 {
		limit = 100
	}
	total := len(logs)
	offset = min(max(offset, 0), total)
	end := min(offset+limit, total)
	page := make([]domain.LogEntry, end-offset)
	copy(page, logs[offset:end])
	return domain.LogPage{Logs: page, Total: total, Offset: offset, Limit: limit}
}
