package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/report"
	"data-reconciler/core/staging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const datasetsYAML = `
datasets:
  ledger:
    path: %[1]s/ledger.csv
    key_columns: [id]
    last_modified_column: updated
    dtypes:
      updated: date
  bank:
    path: %[1]s/bank.csv
    key_columns: [id]
    chunk_size: 1
  ghost:
    path: %[1]s/ghost.csv
    key_columns: [id]
comparisons:
  - name: ledger_bank
    left: ledger
    right: bank
    date_filter:
      cutoff: 2024-01-01
  - name: ledger_ghost
    left: ledger
    right: ghost
  - name: bank_ledger_chunked
    left: bank
    right: ledger
    mode: chunked
  - name: ledger_bank_auto
    left: ledger
    right: bank
    mode: auto
`

type env struct {
	dir     string
	reports string
	file    *datasets.File
}

func setup(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("ledger.csv", "id,name,amount,updated\n1,Alice,1000.50,2023-12-01\n2,Bob,2500.75,2024-02-01\n3,Carol,10,2024-02-02\n")
	write("bank.csv", "id,name,amount\n1,Alice,1000.50\n2,Bob,2600.00\n4,Dan,5\n")

	file, err := datasets.Parse([]byte(fmt.Sprintf(datasetsYAML, dir)))
	require.NoError(t, err)
	return &env{dir: dir, reports: filepath.Join(dir, "reports"), file: file}
}

func (e *env) runner(cfg engine.Config) *Runner {
	return NewRunner(e.file, Config{Engine: cfg, Report: report.Config{Dir: e.reports}}, Deps{Log: zap.NewNop()})
}

func TestRun_AllComparisons(t *testing.T) {
	e := setup(t)
	res, err := e.runner(engine.Config{ChunkedThresholdRows: 5}).Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.Failed())

	names := make([]string, len(res.Datasets))
	for i, d := range res.Datasets {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"ledger", "bank", "ghost"}, names)

	ghost, ok := res.Dataset("ghost")
	require.True(t, ok)
	assert.NotEmpty(t, ghost.Error)

	ledger, ok := res.Dataset("ledger")
	require.True(t, ok)
	assert.Empty(t, ledger.Error)
	require.NotNil(t, ledger.Validation)
	assert.True(t, ledger.Validation.Valid)

	full, ok := res.Comparison("ledger_bank")
	require.True(t, ok)
	require.Empty(t, full.Error)
	assert.Equal(t, "full", full.Mode)
	assert.Equal(t, int64(2), full.Result.MatchedRows)
	assert.Equal(t, int64(1), full.Result.ValueDiffs)
	// Bob's ledger row is dated after the cutoff.
	assert.Equal(t, int64(1), full.Result.ErrorDiffs)
	assert.FileExists(t, filepath.Join(e.reports, "ledger_bank__value_differences.csv"))
	assert.FileExists(t, filepath.Join(e.reports, "ledger_bank__report.json"))

	failed, ok := res.Comparison("ledger_ghost")
	require.True(t, ok)
	assert.Contains(t, failed.Error, `"ghost" was not staged`)

	windowed, ok := res.Comparison("bank_ledger_chunked")
	require.True(t, ok)
	require.Empty(t, windowed.Error)
	assert.Equal(t, "chunked", windowed.Mode)
	assert.Equal(t, full.Result.MatchedRows, windowed.Result.MatchedRows)
	assert.Equal(t, full.Result.OnlyInLeft, windowed.Result.OnlyInRight)
	assert.Equal(t, full.Result.OnlyInRight, windowed.Result.OnlyInLeft)
	// bank pages its three keys one window at a time.
	assert.Equal(t, int64(3), windowed.Result.Windows)

	auto, ok := res.Comparison("ledger_bank_auto")
	require.True(t, ok)
	assert.Equal(t, "chunked", auto.Mode)

	require.NotNil(t, res.Lineage)
	assert.Equal(t, 2, res.Lineage.Summary.DatasetsProcessed)
	assert.Equal(t, 3, res.Lineage.Summary.ComparisonsPerformed)
}

func TestRun_PhasesRecorded(t *testing.T) {
	e := setup(t)
	res, err := e.runner(engine.Config{}).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Lineage)

	counts := make(map[string]int)
	var failed []string
	for _, p := range res.Lineage.Phases {
		counts[p.Name]++
		if p.Error != "" {
			failed = append(failed, p.Name)
		}
	}
	assert.Equal(t, 3, counts["stage"])
	assert.Equal(t, 2, counts["validate"])
	assert.Equal(t, 3, counts["compare"])
	assert.Equal(t, []string{"stage"}, failed)
}

func TestRun_Pair(t *testing.T) {
	e := setup(t)
	res, err := e.runner(engine.Config{}).Run(context.Background(), Options{Pair: "ledger_bank_auto"})
	require.NoError(t, err)
	assert.False(t, res.Failed())
	require.Len(t, res.Comparisons, 1)
	assert.Equal(t, "full", res.Comparisons[0].Mode)
	assert.Len(t, res.Datasets, 2)
}

func TestRun_PairNotFound(t *testing.T) {
	e := setup(t)
	_, err := e.runner(engine.Config{}).Run(context.Background(), Options{Pair: "nope"})
	assert.True(t, errors.Is(err, ErrPairNotFound))
}

func TestRun_CutoffOverride(t *testing.T) {
	e := setup(t)
	cutoff := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	r := e.runner(engine.Config{})

	cmps, err := r.Comparisons(Options{Cutoff: &cutoff})
	require.NoError(t, err)
	for _, c := range cmps {
		require.NotNil(t, c.DateFilter, c.Name)
		assert.Equal(t, cutoff, c.DateFilter.Cutoff)
		assert.Equal(t, datasets.OpGreaterEqual, c.DateFilter.Operator)
	}
	orig, _ := e.file.Comparison("ledger_ghost")
	assert.Nil(t, orig.DateFilter)

	res, err := r.Run(context.Background(), Options{Pair: "ledger_bank", Cutoff: &cutoff})
	require.NoError(t, err)
	out := res.Comparisons[0]
	assert.Equal(t, int64(0), out.Result.ErrorDiffs)
	assert.Equal(t, int64(1), out.Result.Uncounted)
}

func TestRun_Cancelled(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.runner(engine.Config{}).Run(ctx, Options{})
	assert.Error(t, err)
}

func TestRun_ReusesFileCache(t *testing.T) {
	e := setup(t)
	cache := staging.NewFileCacheStore(filepath.Join(e.dir, ".staging"), zap.NewNop())
	r := NewRunner(e.file, Config{Report: report.Config{Dir: e.reports}}, Deps{Cache: cache})

	first, err := r.Run(context.Background(), Options{Pair: "ledger_bank"})
	require.NoError(t, err)
	for _, d := range first.Datasets {
		assert.False(t, d.FromCache, d.Name)
	}

	second, err := r.Run(context.Background(), Options{Pair: "ledger_bank"})
	require.NoError(t, err)
	for _, d := range second.Datasets {
		assert.True(t, d.FromCache, d.Name)
	}
	assert.Equal(t, first.Comparisons[0].Result.ValueDiffs, second.Comparisons[0].Result.ValueDiffs)

	forced, err := r.Run(context.Background(), Options{Pair: "ledger_bank", ForceRestage: true})
	require.NoError(t, err)
	for _, d := range forced.Datasets {
		assert.False(t, d.FromCache, d.Name)
	}
}

func TestStageAndValidate(t *testing.T) {
	e := setup(t)
	r := e.runner(engine.Config{})

	staged, err := r.Stage(context.Background(), []string{"bank"}, false)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, int64(3), staged[0].Rows)
	assert.Nil(t, staged[0].Validation)

	validated, err := r.Validate(context.Background(), nil, datasets.ValidationOptions{FailFast: true})
	require.NoError(t, err)
	require.Len(t, validated, 3)
	for _, d := range validated {
		if d.Name == "ghost" {
			assert.NotEmpty(t, d.Error)
			continue
		}
		require.NotNil(t, d.Validation, d.Name)
		assert.True(t, d.Validation.Valid, d.Name)
	}

	_, err = r.Stage(context.Background(), []string{"missing"}, false)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestKeyCandidates(t *testing.T) {
	e := setup(t)
	got, err := e.runner(engine.Config{}).KeyCandidates(context.Background(), "ledger", "bank")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.True(t, got[0].Left.IsKey())
	assert.True(t, got[0].Right.IsKey())
}

func TestCacheStatus(t *testing.T) {
	e := setup(t)
	cache := staging.NewFileCacheStore(filepath.Join(e.dir, ".staging"), zap.NewNop())
	r := NewRunner(e.file, Config{Report: report.Config{Dir: e.reports}}, Deps{Cache: cache})

	before, err := r.CacheStatus(context.Background(), []string{"ledger"})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.False(t, before[0].Cached)

	_, err = r.Stage(context.Background(), []string{"ledger"}, false)
	require.NoError(t, err)

	after, err := r.CacheStatus(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, after, 3)
	for _, st := range after {
		if st.Dataset == "ledger" {
			assert.True(t, st.Cached)
			assert.True(t, st.Fresh)
			assert.Equal(t, int64(3), st.RowCount)
			continue
		}
		assert.False(t, st.Cached, st.Dataset)
	}

	_, err = r.CacheStatus(context.Background(), []string{"missing"})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}
