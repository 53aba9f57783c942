package validation

import (
	"context"
	"fmt"

	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/staging"

	"go.uber.org/zap"
)

// Check is one independent validation step.
type Check interface {
	Name() string
	Run(ctx context.Context, sess *engine.Session, table *staging.Table) (*Report, error)
}

// Pipeline runs checks in order and merges their reports.
type Pipeline struct {
	Checks   []Check
	FailFast bool
	log      *zap.Logger
}

// NewPipeline returns the default pipeline: schema, type sanity, keys, duplicates.
func NewPipeline(opts datasets.ValidationOptions, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	sample := opts.SampleSize
	if sample <= 0 {
		sample = 100
	}
	return &Pipeline{
		Checks: []Check{
			SchemaCheck{SampleSize: sample},
			TypeSanityCheck{SampleSize: sample},
			KeyCheck{},
			DuplicateCheck{},
		},
		FailFast: opts.FailFast,
		log:      log,
	}
}

// Validate runs every check against table. With FailFast the pipeline stops
// after the first check that reports an ERROR.
func (p *Pipeline) Validate(ctx context.Context, sess *engine.Session, table *staging.Table) (*Report, error) {
	report := newReport(table.Dataset)
	log := p.log.With(zap.String("dataset", table.Dataset))

	for _, check := range p.Checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := check.Run(ctx, sess, table)
		if err != nil {
			return nil, fmt.Errorf("validation check %s on %q: %w", check.Name(), table.Dataset, err)
		}
		report.ChecksRun = append(report.ChecksRun, check.Name())
		report.merge(res)

		if p.FailFast && len(res.Errors()) > 0 {
			log.Warn("Validation stopped at first failing check", zap.String("check", check.Name()))
			break
		}
	}

	log.Info("Validation finished",
		zap.Bool("valid", report.Valid),
		zap.Int("errors", len(report.Errors())),
		zap.Int("warnings", len(report.Warnings())))
	return report, nil
}
