package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"torrentify/internal/domain"
	"torrentify/internal/jobstore"
	"torrentify/internal/repository"
)

type memUsers struct {
	byName map[string]*domain.User
	nextID int64
}

func newMemUsers() *memUsers { return &memUsers{byName: map[string]*domain.User{}} }

func (m *memUsers) Init(context.Context) error { return nil }

func (m *memUsers) Upsert(_ context.Context, name, hash string) (*domain.User, error) {
	u, ok := m.byName[name]
	if !ok {
		m.nextID++
		u = &domain.User{ID: m.nextID, Username: name, CreatedAt: time.Now()}
		m.byName[name] = u
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*domain.User, error) {
	u, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("admin: %w", repository.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) RecordLogin(_ context.Context, id int64, at time.Time) error {
	for _, u := range m.byName {
		if u.ID == id {
			u.LastLoginAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func TestAuthLoginAndTokens(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	auth := NewAuthService(AuthConfig{Enabled: true, Secret: "s3cret", TokenTTL: time.Hour}, users)

	if _, err := auth.EnsureAdmin(ctx, "admin", "short"); err == nil {
		t.Fatalf("short password accepted")
	}
	admin, err := auth.EnsureAdmin(ctx, "admin", "correct horse")
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if admin.PasswordHash != "" {
		t.Fatalf("hash must not leak")
	}

	if _, err := auth.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Authenticate(ctx, "nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user should be invalid credentials, got %v", err)
	}
	user, err := auth.Authenticate(ctx, "admin", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	token, expires, err := auth.IssueToken(user)
	if err != nil || time.Until(expires) <= 0 {
		t.Fatalf("issue: %v", err)
	}
	claims, err := auth.ParseToken(token)
	if err != nil || claims.Username != "admin" || claims.Subject != "1" {
		t.Fatalf("parse: %+v %v", claims, err)
	}

	other := NewAuthService(AuthConfig{Secret: "different"}, users)
	if _, err := other.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret should fail, got %v", err)
	}

	// Changing the configured password rotates the stored hash.
	if _, err := auth.EnsureAdmin(ctx, "admin", "battery staple"); err != nil {
		t.Fatal(err)
	}
	if _, err := auth.Authenticate(ctx, "admin", "battery staple"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if len(users.byName) != 1 {
		t.Fatalf("admin duplicated")
	}
}

type memHistory struct {
	jobs map[string]domain.Job
}

func (m *memHistory) Init(context.Context) error { return nil }

func (m *memHistory) Save(_ context.Context, job domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memHistory) Get(_ context.Context, id string) (*domain.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &j, nil
}

func (m *memHistory) List(context.Context, int) ([]domain.Job, error) {
	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *memHistory) ListByStatuses(context.Context, ...domain.JobStatus) ([]domain.Job, error) {
	return nil, nil
}

func (m *memHistory) Delete(context.Context, string) error { return nil }

func (m *memHistory) PruneOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func TestJobServiceFallsBackToHistory(t *testing.T) {
	ctx := context.Background()
	store := jobstore.New()
	history := &memHistory{jobs: map[string]domain.Job{}}
	svc := NewJobService(store, history)

	live := store.CreateJob(domain.JobKindFiles, nil)
	if job, err := svc.GetJob(ctx, live); err != nil || job.ID != live {
		t.Fatalf("live job: %+v %v", job, err)
	}

	var logs []domain.LogEntry
	for i := 0; i < 5; i++ {
		logs = append(logs, domain.LogEntry{Message: fmt.Sprintf("line %d", i)})
	}
	if err := svc.SaveJob(ctx, domain.Job{ID: "job_old", Status: domain.JobStatusCompleted, Logs: logs}); err != nil {
		t.Fatal(err)
	}
	job, err := svc.GetJob(ctx, "job_old")
	if err != nil || job.Status != domain.JobStatusCompleted {
		t.Fatalf("history job: %+v %v", job, err)
	}
	page, err := svc.Logs(ctx, "job_old", 3, 10)
	if err != nil || page.Total != 5 || len(page.Logs) != 2 || page.Logs[0].Message != "line 3" {
		t.Fatalf("history logs: %+v %v", page, err)
	}

	if _, err := svc.GetJob(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	hist, _ := svc.History(ctx, 10)
	if len(hist) != 1 || hist[0].Logs != nil {
		t.Fatalf("history listing should omit logs: %+v", hist)
	}
}
