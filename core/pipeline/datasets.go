package pipeline

import (
	"context"
	"errors"
	"fmt"

	"data-reconciler/core/datasets"
	"data-reconciler/core/lineage"
	"data-reconciler/core/reconcile"
	"data-reconciler/core/staging"
	"data-reconciler/core/validation"
)

// ErrDatasetNotFound is returned for a dataset name the file does not define.
var ErrDatasetNotFound = errors.New("dataset not found")

func (r *Runner) resolveNames(names []string) ([]string, error) {
	if len(names) == 0 {
		return r.file.DatasetNames(), nil
	}
	for _, n := range names {
		if _, ok := r.file.Dataset(n); !ok {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, n)
		}
	}
	return names, nil
}

// Stage stages the named datasets, or every dataset when names is empty.
func (r *Runner) Stage(ctx context.Context, names []string, force bool) ([]DatasetOutcome, error) {
	return r.stageMany(ctx, names, force, nil)
}

// Validate stages the named datasets, reusing fresh caches, and validates them with opts.
func (r *Runner) Validate(ctx context.Context, names []string, opts datasets.ValidationOptions) ([]DatasetOutcome, error) {
	return r.stageMany(ctx, names, false, &opts)
}

func (r *Runner) stageMany(ctx context.Context, names []string, force bool, vopts *datasets.ValidationOptions) ([]DatasetOutcome, error) {
	names, err := r.resolveNames(names)
	if err != nil {
		return nil, err
	}

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.sess.Close()

	tracker := lineage.NewTracker()
	tables := make(map[string]*staging.Table)
	reports := make(map[string]*validation.Report)
	out := make([]DatasetOutcome, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, r.stageOne(ctx, s, tracker, name, force, vopts, tables, reports))
	}
	return out, nil
}

// KeyCandidates stages two datasets and ranks their common columns as keys.
func (r *Runner) KeyCandidates(ctx context.Context, left, right string) ([]reconcile.KeyCandidate, error) {
	if _, err := r.resolveNames([]string{left, right}); err != nil {
		return nil, err
	}

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.sess.Close()

	tables := make([]*staging.Table, 2)
	for i, name := range []string{left, right} {
		ds, _ := r.file.Dataset(name)
		if tables[i], err = s.stager.Stage(ctx, *ds, false); err != nil {
			return nil, err
		}
	}
	return reconcile.KeyCandidates(ctx, s.sess, tables[0], tables[1])
}

// CacheStatus reports whether the cached canonical tables of the named
// datasets, or of every dataset when names is empty, could be reused as is.
// A dataset whose source cannot be inspected carries the error in its status.
func (r *Runner) CacheStatus(ctx context.Context, names []string) ([]*staging.CacheStatus, error) {
	names, err := r.resolveNames(names)
	if err != nil {
		return nil, err
	}

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.sess.Close()

	out := make([]*staging.CacheStatus, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ds, _ := r.file.Dataset(name)
		st, err := s.stager.Status(ctx, *ds)
		if err != nil {
			st = &staging.CacheStatus{Dataset: name, Error: err.Error()}
		}
		out = append(out, st)
	}
	return out, nil
}
