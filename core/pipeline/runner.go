package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"data-reconciler/core/chunked"
	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/lineage"
	"data-reconciler/core/logger"
	"data-reconciler/core/reconcile"
	"data-reconciler/core/report"
	"data-reconciler/core/source"
	"data-reconciler/core/staging"
	"data-reconciler/core/storage"
	"data-reconciler/core/validation"

	"go.uber.org/zap"
)

// ErrPairNotFound is returned when Options.Pair names no configured comparison.
var ErrPairNotFound = errors.New("comparison pair not found")

// Options controls one run.
type Options struct {
	// Pair restricts the run to one named comparison.
	Pair string
	// Cutoff overrides the date filter cutoff of every comparison.
	Cutoff *time.Time
	// ForceRestage ignores cached canonical tables.
	ForceRestage bool
}

// Config holds the runner settings.
type Config struct {
	Engine engine.Config
	Report report.Config
	// Bucket receives uploaded reports.
	Bucket string
}

// Deps are the collaborators shared across runs.
type Deps struct {
	Cache   staging.CacheStore
	Source  source.Deps
	Storage storage.Client
	Log     *zap.Logger
}

// Runner executes the stage, validate, compare and report pipeline. Each call
// opens its own engine session and closes it before returning. Calls that
// stage must not overlap when they share a file cache; CacheStatus only reads it.
type Runner struct {
	file *datasets.File
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// NewRunner creates a runner for a resolved datasets file.
func NewRunner(file *datasets.File, cfg Config, deps Deps) *Runner {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = staging.NewMemoryCacheStore()
	}
	if deps.Source.Log == nil {
		deps.Source.Log = deps.Log
	}
	return &Runner{file: file, cfg: cfg, deps: deps, log: deps.Log}
}

// File returns the datasets file the runner was built with.
func (r *Runner) File() *datasets.File {
	return r.file
}

// session bundles the per-call engine state.
type session struct {
	sess       *engine.Session
	stager     *staging.Stager
	comparator *reconcile.Comparator
	writer     *report.Writer
}

func (r *Runner) open(ctx context.Context) (*session, error) {
	sess, err := engine.Open(ctx, r.cfg.Engine, r.log)
	if err != nil {
		return nil, err
	}
	return &session{
		sess:       sess,
		stager:     staging.NewStager(sess, r.deps.Cache, r.deps.Source, r.log),
		comparator: reconcile.NewComparator(sess, r.log),
		writer:     report.NewWriter(sess, r.cfg.Report, r.deps.Storage, r.cfg.Bucket, r.log),
	}, nil
}

// Comparisons selects the comparisons of a run with the cutoff applied.
func (r *Runner) Comparisons(opts Options) ([]*datasets.Comparison, error) {
	var selected []*datasets.Comparison
	if opts.Pair != "" {
		cmp, ok := r.file.Comparison(opts.Pair)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPairNotFound, opts.Pair)
		}
		selected = []*datasets.Comparison{cmp}
	} else {
		selected = r.file.Comparisons
	}

	if opts.Cutoff == nil {
		return selected, nil
	}
	out := make([]*datasets.Comparison, len(selected))
	for i, cmp := range selected {
		out[i] = cmp.WithCutoff(*opts.Cutoff)
	}
	return out, nil
}

// Run stages every dataset the selected comparisons use, once and in
// first-use order, validates them, then compares and writes reports.
// Cancellation is honoured between steps.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunResult, error) {
	comparisons, err := r.Comparisons(opts)
	if err != nil {
		return nil, err
	}

	tracker := lineage.NewTracker()
	res := &RunResult{RunID: tracker.RunID(), StartedAt: time.Now().UTC()}
	log := r.log.With(zap.String("run_id", res.RunID))
	log.Info("Pipeline run started", zap.Int("comparisons", len(comparisons)), zap.Bool("force_restage", opts.ForceRestage))

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.sess.Close()

	tables := make(map[string]*staging.Table)
	reports := make(map[string]*validation.Report)
	for _, name := range usedDatasets(comparisons) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := r.stageOne(ctx, s, tracker, name, opts.ForceRestage, &r.file.Validation, tables, reports)
		res.Datasets = append(res.Datasets, out)
	}

	for _, cmp := range comparisons {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Comparisons = append(res.Comparisons, r.compareOne(ctx, s, tracker, res.RunID, cmp, tables, reports))
	}

	res.FinishedAt = time.Now().UTC()
	res.Lineage = tracker.Report()
	log.Info("Pipeline run finished",
		zap.Int("datasets", len(res.Datasets)),
		zap.Int("comparisons", len(res.Comparisons)),
		zap.Bool("failed", res.Failed()),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

func usedDatasets(comparisons []*datasets.Comparison) []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range comparisons {
		for _, n := range []string{c.Left, c.Right} {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

// stageOne stages and, with non-nil vopts, validates one dataset.
func (r *Runner) stageOne(ctx context.Context, s *session, tracker *lineage.Tracker, name string, force bool,
	vopts *datasets.ValidationOptions, tables map[string]*staging.Table, reports map[string]*validation.Report) DatasetOutcome {
	out := DatasetOutcome{Name: name}
	ds, ok := r.file.Dataset(name)
	if !ok {
		out.Error = fmt.Sprintf("dataset %q is not defined", name)
		return out
	}

	table, err := r.stage(ctx, s, tracker, *ds, force)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	tables[name] = table
	tracker.TrackDataset(ds.Path, table)

	out.Rows = table.RowCount
	out.Columns = table.ColumnNames()
	out.FromCache = table.FromCache
	out.DriftReasons = table.DriftReasons
	out.Warnings = table.Warnings
	if vopts == nil {
		return out
	}

	vr, err := r.validate(ctx, s, tracker, *vopts, table)
	if err != nil {
		// Validation is advisory; the table stays usable.
		out.Warnings = append(out.Warnings, "validation failed: "+err.Error())
		return out
	}
	reports[name] = vr
	out.Validation = vr
	return out
}

func (r *Runner) compareOne(ctx context.Context, s *session, tracker *lineage.Tracker, runID string, cmp *datasets.Comparison,
	tables map[string]*staging.Table, reports map[string]*validation.Report) ComparisonOutcome {
	out := ComparisonOutcome{Name: cmp.Name}
	left, right := tables[cmp.Left], tables[cmp.Right]
	switch {
	case left == nil:
		out.Error = fmt.Sprintf("dataset %q was not staged", cmp.Left)
		return out
	case right == nil:
		out.Error = fmt.Sprintf("dataset %q was not staged", cmp.Right)
		return out
	}

	mode := r.mode(cmp, left, right)
	out.Mode = string(mode)

	started := time.Now()
	res, err := r.compare(ctx, s, tracker, cmp, mode, left, right)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer func() { _ = s.comparator.Drop(context.WithoutCancel(ctx), res) }()

	summary := res.Summary()
	out.Result = res
	out.Summary = &summary

	tracker.TrackComparison(res, report.Paths(r.cfg.Report.Dir, res).Files(), time.Since(started))

	art, err := r.report(ctx, s, tracker, cmp.Name, res, report.Input{
		RunID:           runID,
		MaxDifferences:  cmp.MaxDifferences,
		LeftValidation:  reports[cmp.Left],
		RightValidation: reports[cmp.Right],
		Lineage:         tracker.Report(),
	})
	out.Artifacts = art
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func (r *Runner) stage(ctx context.Context, s *session, tracker *lineage.Tracker, ds datasets.Dataset, force bool) (table *staging.Table, err error) {
	ph := logger.BeginObservedPhase(r.log, tracker, "stage", zap.String("dataset", ds.Name))
	defer func() { ph.End(err) }()
	return s.stager.Stage(ctx, ds, force)
}

func (r *Runner) validate(ctx context.Context, s *session, tracker *lineage.Tracker, opts datasets.ValidationOptions, table *staging.Table) (vr *validation.Report, err error) {
	ph := logger.BeginObservedPhase(r.log, tracker, "validate", zap.String("dataset", table.Dataset))
	defer func() { ph.End(err) }()
	return validation.NewPipeline(opts, r.log).Validate(ctx, s.sess, table)
}

// compare runs cmp in mode. Chunked windows are sized from the left dataset,
// whose key space is paged, with the same precedence staging uses.
func (r *Runner) compare(ctx context.Context, s *session, tracker *lineage.Tracker, cmp *datasets.Comparison, mode datasets.Mode,
	left, right *staging.Table) (res *reconcile.Result, err error) {
	ph := logger.BeginObservedPhase(r.log, tracker, "compare", zap.String("comparison", cmp.Name), zap.String("mode", string(mode)))
	defer func() { ph.End(err) }()

	if mode != datasets.ModeChunked {
		return s.comparator.Compare(ctx, left, right, *cmp)
	}
	var datasetSize int
	if ds, ok := r.file.Dataset(cmp.Left); ok {
		datasetSize = ds.ChunkSize
	}
	override := chunked.Override(datasetSize, r.cfg.Engine.ChunkSize)
	size := chunked.ChunkSize(left.Fingerprint.Format, len(left.Columns), left.Fingerprint.SizeBytes, override)
	return s.comparator.CompareChunked(ctx, left, right, *cmp, size)
}

func (r *Runner) report(ctx context.Context, s *session, tracker *lineage.Tracker, name string, res *reconcile.Result, in report.Input) (art *report.Artifacts, err error) {
	ph := logger.BeginObservedPhase(r.log, tracker, "report", zap.String("comparison", name))
	defer func() { ph.End(err) }()
	return s.writer.Write(ctx, res, in)
}

func (r *Runner) mode(cmp *datasets.Comparison, left, right *staging.Table) datasets.Mode {
	switch cmp.Mode {
	case datasets.ModeChunked:
		return datasets.ModeChunked
	case datasets.ModeAuto:
		limit := r.cfg.Engine.ChunkedThresholdRows
		if limit > 0 && left.RowCount+right.RowCount > limit {
			return datasets.ModeChunked
		}
	}
	return datasets.ModeFull
}
