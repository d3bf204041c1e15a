package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"torrentify/internal/domain"
	"torrentify/internal/repository"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	items_json TEXT NOT NULL DEFAULT '[]',
	summary_json TEXT NULL,
	logs_json TEXT NOT NULL DEFAULT '[]',
	started_at DATETIME NOT NULL,
	ended_at DATETIME NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);
`

const jobColumns = `id, kind, status, total, completed, error_message, items_json, summary_json, logs_json, started_at, ended_at`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createJobsTable); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// Save inserts or replaces a job.
func (r *JobRepository) Save(ctx context.Context, job domain.Job) error {
	items, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("encode job items: %w", err)
	}
	logs, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("encode job logs: %w", err)
	}
	var summary any
	if job.Summary != nil {
		raw, err := json.Marshal(job.Summary)
		if err != nil {
			return fmt.Errorf("encode job summary: %w", err)
		}
		summary = string(raw)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, status, total, completed, error_message, items_json, summary_json, logs_json, started_at, ended_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status=excluded.status,
	total=excluded.total,
	completed=excluded.completed,
	error_message=excluded.error_message,
	items_json=excluded.items_json,
	summary_json=excluded.summary_json,
	logs_json=excluded.logs_json,
	ended_at=excluded.ended_at,
	updated_at=excluded.updated_at`,
		job.ID,
		string(job.Kind),
		string(job.Status),
		job.Progress.Total,
		job.Progress.Completed,
		job.Error,
		string(items),
		summary,
		string(logs),
		job.StartTime.UTC(),
		nullTime(job.EndTime),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row)
}

// List returns the most recent jobs first. A non-positive limit returns all.
func (r *JobRepository) List(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) ListByStatuses(ctx context.Context, statuses ...domain.JobStatus) ([]domain.Job, error) {
	if len(statuses) == 0 {
		return []domain.Job{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE status IN (%s) ORDER BY started_at DESC, id DESC`,
		jobColumns, strings.Join(placeholders, ","))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs by status: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("job delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("job %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// PruneOlderThan removes jobs that ended before cutoff.
func (r *JobRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface {
	Scan(dest ...any) error
}) (*domain.Job, error) {
	var (
		job       domain.Job
		kind      string
		status    string
		items     string
		summary   sql.NullString
		logs      string
		startedAt time.Time
		endedAt   sql.NullTime
	)

	if err := scanner.Scan(
		&job.ID,
		&kind,
		&status,
		&job.Progress.Total,
		&job.Progress.Completed,
		&job.Error,
		&items,
		&summary,
		&logs,
		&startedAt,
		&endedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.StartTime = startedAt.UTC()
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		job.EndTime = &t
	}
	if err := json.Unmarshal([]byte(items), &job.Items); err != nil {
		return nil, fmt.Errorf("decode job items: %w", err)
	}
	if err := json.Unmarshal([]byte(logs), &job.Logs); err != nil {
		return nil, fmt.Errorf("decode job logs: %w", err)
	}
	if summary.Valid {
		var s domain.Summary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return nil, fmt.Errorf("decode job summary: %w", err)
		}
		job.Summary = &s
	}
	return &job, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
