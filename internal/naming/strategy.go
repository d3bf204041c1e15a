package naming

import (
	"context"

	"github.com/sirupsen/logrus"

	"torrentify/internal/domain"
)

// Extractor pulls structured release fields out of a path.
type Extractor interface {
	Extract(ctx context.Context, path string) (Fields, error)
}

// Source is what a strategy names.
type Source struct {
	Path        string
	Category    domain.Category
	IsDirectory bool
	// Override is a user-supplied name that wins over any inference.
	Override string
}

// Strategy assigns release names.
type Strategy interface {
	ReleaseName(ctx context.Context, src Source) string
}

// Scene names audiovisual sources from extracted fields and keeps games on
// their original name.
type Scene struct {
	extractor Extractor
	logger    *logrus.Logger
}

var _ Strategy = (*Scene)(nil)

func NewScene(extractor Extractor, logger *logrus.Logger) *Scene {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scene{extractor: extractor, logger: logger}
}

func (s *Scene) ReleaseName(ctx context.Context, src Source) string {
	if src.Override != "" {
		return src.Override
	}
	fallback := FallbackName(src.Path, src.IsDirectory)
	if src.Category.Kind() == domain.KindGame || s.extractor == nil {
		return fallback
	}

	fields, err := s.extractor.Extract(ctx, src.Path)
	if err != nil {
		s.logger.WithField("path", src.Path).Warnf("name extraction failed, keeping original name: %v", err)
		return fallback
	}
	name, ok := ReleaseName(fields)
	if !ok {
		return fallback
	}
	return name
}

// Verbatim keeps the original name. Useful when no extractor is installed.
type Verbatim struct{}

func (Verbatim) ReleaseName(_ context.Context, src Source) string {
	if src.Override != "" {
		return src.Override
	}
	return FallbackName(src.Path, src.IsDirectory)
}
