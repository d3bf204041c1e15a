package repository

import (
	"context"
	"errors"
	"time"

	"torrentify/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// JobRepository persists finished jobs.
type JobRepository interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]domain.Job, error)
	ListByStatuses(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error)
	Delete(ctx context.Context, id string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Release is the release name recorded for a source path.
type Release struct {
	Path      string          `json:"path"`
	Name      string          `json:"name"`
	Category  domain.Category `json:"category"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ReleaseRepository indexes release names by source path.
type ReleaseRepository interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, path, name string, category domain.Category) error
	Get(ctx context.Context, path string) (*Release, error)
	ListByCategory(ctx context.Context, category domain.Category) ([]Release, error)
}

// UserRepository stores the administrator accounts allowed to use the API.
type UserRepository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, username, hash string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}
