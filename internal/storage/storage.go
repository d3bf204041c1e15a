package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string     `json:"key"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// PutOptions describes where a folder lands and which of its files go.
type PutOptions struct {
	Bucket string
	Prefix string
	// Include selects files by slash-separated relative path; nil keeps all.
	Include func(rel string) bool
	// Concurrency bounds parallel object uploads; values below 1 mean 4.
	Concurrency int
	// OnObject is called once per stored object, possibly from several goroutines.
	OnObject func(key string, size int64)
}

// PutResult summarizes one folder upload.
type PutResult struct {
	Location string
	Objects  int
	Bytes    int64
}

// Service copies artifact folders to remote object storage.
type Service interface {
	PutFolder(ctx context.Context, dir string, opts PutOptions) (PutResult, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) (int, error)
}
