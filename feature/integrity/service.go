package integrity

import (
	"context"

	"data-reconciler/core/pipeline"
	"data-reconciler/core/staging"
	"data-reconciler/core/storage"
	"data-reconciler/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles integrity checks.
type Service struct {
	runner *pipeline.Runner
	client storage.Client
	bucket string
	dirs   []string
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new integrity service. dirs are the local working
// directories that must exist; an empty bucket skips the bucket check.
func NewService(runner *pipeline.Runner, client storage.Client, bucket string, dirs []string, db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{
		runner: runner,
		client: client,
		bucket: bucket,
		dirs:   dirs,
		db:     db,
		logger: logger,
	}
}

// CheckStructure returns the missing working directories and report bucket.
func (s *Service) CheckStructure(ctx context.Context) ([]string, error) {
	return checks.CheckStructure(ctx, s.client, s.bucket, s.dirs)
}

// FixStructure creates the missing directories and bucket.
func (s *Service) FixStructure(ctx context.Context, missing []string) error {
	return checks.FixStructure(ctx, s.client, s.logger, missing)
}

// CheckDatasets reports whether every dataset source exists.
func (s *Service) CheckDatasets(ctx context.Context) []checks.DatasetReport {
	return checks.CheckDatasets(ctx, s.runner.File(), s.client)
}

// CheckSources validates the tables behind database datasets.
func (s *Service) CheckSources() (*checks.SourcesReport, error) {
	return checks.CheckSources(s.db, s.runner.File())
}

// CheckCache reports staging cache freshness for every dataset.
func (s *Service) CheckCache(ctx context.Context) ([]*staging.CacheStatus, error) {
	return s.runner.CacheStatus(ctx, nil)
}
