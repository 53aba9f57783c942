package cmd

import (
	"fmt"

	"data-reconciler/core/config"
	"data-reconciler/core/database"
	"data-reconciler/core/datasets"
	"data-reconciler/core/logger"
	"data-reconciler/core/pipeline"
	"data-reconciler/core/source"
	"data-reconciler/core/staging"
	"data-reconciler/core/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// environment is everything a command needs to drive the pipeline.
type environment struct {
	cfg    *config.Config
	log    *zap.Logger
	file   *datasets.File
	store  storage.Client
	db     *gorm.DB
	runner *pipeline.Runner
}

// bucket is the report bucket, empty when uploads are off.
func (e *environment) bucket() string {
	if e.store == nil || !e.cfg.Report.Upload {
		return ""
	}
	return e.cfg.Storage.Bucket
}

// setup loads configuration and the datasets file, then connects the storage
// and database only when a dataset or the report upload needs them.
func setup() (*environment, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	path := cfg.Datasets.File
	if datasetsFile != "" {
		path = datasetsFile
	}
	file, err := datasets.Load(path)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, log: logg, file: file}

	needsStorage, needsDB := cfg.Report.Upload, false
	for _, ds := range file.Datasets {
		needsStorage = needsStorage || ds.IsRemote()
		needsDB = needsDB || ds.Format == datasets.FormatDatabase
	}

	if needsStorage {
		if !cfg.Storage.Enabled {
			return nil, fmt.Errorf("storage is required by s3:// datasets or report upload; set STORAGE_ENABLED=true")
		}
		if env.store, err = storage.NewClient(cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
	}

	if needsDB {
		if env.db, err = database.Connect(cfg.Database); err != nil {
			return nil, fmt.Errorf("database connection required: %w", err)
		}
		logg.Info("Connected to source database", zap.String("driver", cfg.Database.Driver))
	}

	cache, err := staging.NewCacheStore(cfg.Staging, logg)
	if err != nil {
		return nil, err
	}

	env.runner = pipeline.NewRunner(file, pipeline.Config{
		Engine: cfg.Engine,
		Report: cfg.Report,
		Bucket: env.bucket(),
	}, pipeline.Deps{
		Cache:   cache,
		Source:  source.Deps{Storage: env.store, DB: env.db, TempDir: cfg.Engine.TempDir, Log: logg},
		Storage: env.store,
		Log:     logg,
	})
	return env, nil
}
