package domain

import "time"

type EventType string

const (
	EventConnected       EventType = "connected"
	EventPong            EventType = "pong"
	EventJobStart        EventType = "job:start"
	EventJobLog          EventType = "job:log"
	EventJobProgress     EventType = "job:progress"
	EventFileStatus      EventType = "file:status"
	EventDirectoryStatus EventType = "directory:status"
	EventJobComplete     EventType = "job:complete"
	EventJobError        EventType = "job:error"
)

// Event is a transient progress message. JobID is empty for connection
// lifecycle events, which go to every observer.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"jobId,omitempty"`
	Data  any       `json:"data,omitempty"`
}

// Outputs lists the artifacts present after an item was handled.
type Outputs struct {
	NFO      bool   `json:"nfo"`
	Torrent  bool   `json:"torrent"`
	Metadata bool   `json:"txt"`
	Folder   string `json:"folder,omitempty"`
	InfoHash string `json:"infoHash,omitempty"`
}

// LinkReport counts hardlinks materialized for a directory.
type LinkReport struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

type ConnectedData struct {
	ClientID  string    `json:"clientId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type StartData struct {
	FilesCount       int       `json:"filesCount,omitempty"`
	DirectoriesCount int       `json:"directoriesCount,omitempty"`
	IsDirectory      bool      `json:"isDirectory"`
	Timestamp        time.Time `json:"timestamp"`
}

type LogData struct {
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

type ProgressData struct {
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	CurrentFile string    `json:"currentFile"`
	Timestamp   time.Time `json:"timestamp"`
}

type FileStatusData struct {
	File      string     `json:"file"`
	Status    ItemStatus `json:"status"`
	Outputs   Outputs    `json:"outputs"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type DirectoryStatusData struct {
	DirPath   string      `json:"dirPath"`
	DirName   string      `json:"dirName"`
	Status    ItemStatus  `json:"status"`
	Skipped   bool        `json:"skipped"`
	Outputs   Outputs     `json:"outputs"`
	Links     *LinkReport `json:"links,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type CompleteData struct {
	Summary     Summary   `json:"summary"`
	IsDirectory bool      `json:"isDirectory"`
	Timestamp   time.Time `json:"timestamp"`
}

type ErrorData struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
