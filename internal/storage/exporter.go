package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"torrentify/internal/artifact"
	"torrentify/internal/domain"
)

type ExportConfig struct {
	Bucket    string
	KeyPrefix string
	Logger    *logrus.Logger
}

// Exporter copies finished artifact folders to a bucket, laid out as
// <prefix>/<category>/<folder>/<file>.
type Exporter struct {
	cfg     ExportConfig
	storage Service
}

func NewExporter(cfg ExportConfig, svc Service) *Exporter {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	return &Exporter{cfg: cfg, storage: svc}
}

func (e *Exporter) ExportFolder(ctx context.Context, dir string, category domain.Category) (string, error) {
	folder := filepath.Base(filepath.Clean(dir))
	log := e.cfg.Logger.WithFields(logrus.Fields{"component": "export", "folder": folder})
	res, err := e.storage.PutFolder(ctx, dir, PutOptions{
		Bucket:  e.cfg.Bucket,
		Prefix:  e.Prefix(category, folder),
		Include: artifact.Downloadable,
		OnObject: func(key string, size int64) {
			log.WithField("key", key).Debugf("stored %d bytes", size)
		},
	})
	if err != nil {
		return "", fmt.Errorf("export %s: %w", folder, err)
	}
	log.Infof("exported %d objects (%d bytes) to %s", res.Objects, res.Bytes, res.Location)
	return res.Location, nil
}

// List returns the exported objects, optionally limited to one category.
func (e *Exporter) List(ctx context.Context, category domain.Category) ([]ObjectInfo, error) {
	prefix := e.cfg.KeyPrefix
	if category != "" {
		prefix = path.Join(prefix, string(category))
	}
	if prefix != "" {
		prefix += "/"
	}
	return e.storage.List(ctx, e.cfg.Bucket, prefix)
}

// Remove deletes one exported folder.
func (e *Exporter) Remove(ctx context.Context, category domain.Category, folder string) error {
	n, err := e.storage.DeletePrefix(ctx, e.cfg.Bucket, e.Prefix(category, folder)+"/")
	if err != nil {
		return err
	}
	e.cfg.Logger.WithFields(logrus.Fields{"component": "export", "folder": folder}).Infof("removed %d exported objects", n)
	return nil
}

func (e *Exporter) Prefix(category domain.Category, folder string) string {
	return path.Join(e.cfg.KeyPrefix, string(category), folder)
}
