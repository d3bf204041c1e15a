package domain

import "time"

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// JobKind tells whether a job works on single files or whole directories.
type JobKind string

const (
	JobKindFiles       JobKind = "files"
	JobKindDirectories JobKind = "directories"
)

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusSkipped    ItemStatus = "skipped"
	ItemStatusError      ItemStatus = "error"
)

func (s ItemStatus) rank() int {
	switch s {
	case ItemStatusPending:
		return 0
	case ItemStatusProcessing:
		return 1
	default:
		return 2
	}
}

// CanAdvanceTo reports whether moving from s to next keeps sub-status monotonic.
func (s ItemStatus) CanAdvanceTo(next ItemStatus) bool {
	if s == next {
		return true
	}
	return next.rank() > s.rank()
}

// WorkItem is one entry of a job's work-list.
type WorkItem struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Name        string     `json:"name"`
	Category    Category   `json:"type,omitempty"`
	IsDirectory bool       `json:"isDirectory"`
	FilesCount  int        `json:"filesCount,omitempty"`
	CustomName  string     `json:"customTorrentName,omitempty"`
	Status      ItemStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
}

type Progress struct {
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Current     int    `json:"current"`
	CurrentFile string `json:"currentFile,omitempty"`
}

type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarn    LogLevel = "warn"
	LogError   LogLevel = "error"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
}

// ItemError details one failed item in a summary.
type ItemError struct {
	ItemID string `json:"id"`
	Path   string `json:"path"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

// Summary is the final record of a job.
type Summary struct {
	Total           int         `json:"total"`
	Processed       int         `json:"processed"`
	Skipped         int         `json:"skipped"`
	MetadataFound   int         `json:"tmdbFound"`
	MetadataMissing int         `json:"tmdbNotFound"`
	Errors          int         `json:"errors"`
	DurationSeconds float64     `json:"duration"`
	ErrorDetails    []ItemError `json:"errorDetails"`
}

// Job is one user-initiated processing run.
type Job struct {
	ID        string     `json:"id"`
	Kind      JobKind    `json:"kind"`
	Status    JobStatus  `json:"status"`
	Items     []WorkItem `json:"files"`
	Progress  Progress   `json:"progress"`
	Logs      []LogEntry `json:"logs,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Summary   *Summary   `json:"summary"`
	Error     string     `json:"error,omitempty"`
}

// JobStats counts jobs per status.
type JobStats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Running    int `json:"running"`
	Completed  int `json:"completed"`
	Errors     int `json:"errors"`
	ActiveJobs int `json:"activeJobs"`
}

// LogPage is a slice of a job log.
type LogPage struct {
	Logs   []LogEntry `json:"logs"`
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
}
