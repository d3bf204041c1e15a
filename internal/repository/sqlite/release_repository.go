package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"torrentify/internal/domain"
	"torrentify/internal/repository"
)

const createReleasesTable = `
CREATE TABLE IF NOT EXISTS releases (
	path TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_releases_category ON releases(category);
`

type ReleaseRepository struct {
	db *sql.DB
}

func NewReleaseRepository(db *sql.DB) *ReleaseRepository {
	return &ReleaseRepository{db: db}
}

var _ repository.ReleaseRepository = (*ReleaseRepository)(nil)

func (r *ReleaseRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createReleasesTable); err != nil {
		return fmt.Errorf("create releases table: %w", err)
	}
	return nil
}

func (r *ReleaseRepository) Record(ctx context.Context, path, name string, category domain.Category) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO releases (path, name, category, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET name=excluded.name, category=excluded.category, updated_at=excluded.updated_at`,
		path,
		name,
		string(category),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record release: %w", err)
	}
	return nil
}

func (r *ReleaseRepository) Get(ctx context.Context, path string) (*repository.Release, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT path, name, category, updated_at
FROM releases
WHERE path=?`, path)
	rel, err := scanRelease(row)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

func (r *ReleaseRepository) ListByCategory(ctx context.Context, category domain.Category) ([]repository.Release, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT path, name, category, updated_at
FROM releases
WHERE category=?
ORDER BY path ASC`, string(category))
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	var out []repository.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rel)
	}
	return out, rows.Err()
}

// ReleaseFor and RecordRelease let the repository serve as the naming index
// of the inventory and the pipeline.
func (r *ReleaseRepository) ReleaseFor(ctx context.Context, path string) (string, bool) {
	rel, err := r.Get(ctx, path)
	if err != nil {
		return "", false
	}
	return rel.Name, true
}

func (r *ReleaseRepository) RecordRelease(ctx context.Context, path, release string, category domain.Category) error {
	return r.Record(ctx, path, release, category)
}

func scanRelease(scanner interface {
	Scan(dest ...any) error
}) (*repository.Release, error) {
	var (
		rel      repository.Release
		category string
	)
	if err := scanner.Scan(&rel.Path, &rel.Name, &category, &rel.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan release: %w", err)
	}
	rel.Category = domain.Category(category)
	rel.UpdatedAt = rel.UpdatedAt.UTC()
	return &rel, nil
}
