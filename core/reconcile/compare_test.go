package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/normalize"
	"data-reconciler/core/source"
	"data-reconciler/core/staging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	t      *testing.T
	sess   *engine.Session
	stager *staging.Stager
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sess, err := engine.Open(context.Background(), engine.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return &fixture{
		t:      t,
		sess:   sess,
		stager: staging.NewStager(sess, staging.NewMemoryCacheStore(), source.Deps{}, zap.NewNop()),
		dir:    t.TempDir(),
	}
}

func (f *fixture) stage(name, csv string, ds datasets.Dataset) *staging.Table {
	f.t.Helper()
	path := filepath.Join(f.dir, name+".csv")
	require.NoError(f.t, os.WriteFile(path, []byte(csv), 0o644))
	ds.Name = name
	ds.Path = path
	ds.Format = datasets.FormatCSV
	ds.InferTypes = true
	if len(ds.Keys) == 0 {
		ds.Keys = []string{"id"}
	}
	table, err := f.stager.Stage(context.Background(), ds, false)
	require.NoError(f.t, err)
	return table
}

func (f *fixture) rows(table string) []map[string]any {
	f.t.Helper()
	res, err := f.sess.Fetch(context.Background(), "SELECT * FROM "+engine.QuoteIdent(table))
	require.NoError(f.t, err)
	return res.Records()
}

func intPtr(v int) *int { return &v }

func TestCompare_EndToEnd(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,name,amount\n1,Alice,1000.50\n2,Bob,2500.75\n", datasets.Dataset{})
	right := f.stage("right", "id,name,amount\n1,Alice,1000.50\n2,Bob,2600.00\n", datasets.Dataset{})

	res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{
		Name: "people", Left: "left", Right: "right", Keys: []string{"id"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.OnlyInLeft)
	assert.Equal(t, int64(0), res.OnlyInRight)
	assert.Equal(t, int64(2), res.MatchedRows)
	assert.Equal(t, int64(1), res.ValueDiffs)
	assert.Equal(t, int64(1), res.ErrorDiffs)
	assert.Equal(t, []string{"amount", "name"}, res.Columns)

	diffs := f.rows(res.DiffTable)
	require.Len(t, diffs, 1)
	assert.EqualValues(t, 2, diffs[0]["id"])
	assert.Equal(t, "amount", diffs[0][ColColumnName])
	assert.Equal(t, "2500.75", diffs[0][ColValueLeft])
	assert.Equal(t, "2600.0", diffs[0][ColValueRight])
	assert.Equal(t, "ERROR", diffs[0][ColErrorFlag])

	summary := res.Summary()
	assert.Equal(t, 100.0, summary.MatchRate)
	assert.Equal(t, int64(2), summary.TotalUniqueRecords)
	assert.Equal(t, 50.0, summary.DifferenceRate)
}

func TestCompare_PresenceOrdered(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,name\n5,E\n1,A\n3,C\n", datasets.Dataset{})
	right := f.stage("right", "id,name\n3,C\n4,D\n2,B\n", datasets.Dataset{})

	res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{Name: "p", Keys: []string{"id"}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.OnlyInLeft)
	assert.Equal(t, int64(2), res.OnlyInRight)
	assert.Equal(t, int64(1), res.MatchedRows)

	onlyLeft := f.rows(res.OnlyLeftTable)
	require.Len(t, onlyLeft, 2)
	assert.EqualValues(t, 1, onlyLeft[0]["id"])
	assert.EqualValues(t, 5, onlyLeft[1]["id"])

	onlyRight := f.rows(res.OnlyRightTable)
	require.Len(t, onlyRight, 2)
	assert.EqualValues(t, 2, onlyRight[0]["id"])
	assert.EqualValues(t, 4, onlyRight[1]["id"])
}

func TestCompare_NumericRound(t *testing.T) {
	tests := []struct {
		name  string
		right string
		diffs int64
	}{
		{name: "noise absorbed", right: "10.001", diffs: 0},
		{name: "real difference", right: "10.02", diffs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			left := f.stage("left", "id,price\n1,10.004\n", datasets.Dataset{})
			right := f.stage("right", "id,price\n1,"+tt.right+"\n", datasets.Dataset{})

			res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{
				Name: "prices", Keys: []string{"id"}, NumericRound: intPtr(2),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.diffs, res.ValueDiffs)
		})
	}
}

func TestCompare_NullSemantics(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,note\n1,\n2,\n3,x\n", datasets.Dataset{
		DTypes: map[string]normalize.ColumnType{"note": normalize.TypeString},
	})
	right := f.stage("right", "id,note\n1,\n2,y\n3,\n", datasets.Dataset{
		DTypes: map[string]normalize.ColumnType{"note": normalize.TypeString},
	})

	res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{Name: "notes", Keys: []string{"id"}})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.ValueDiffs)

	diffs := f.rows(res.DiffTable)
	assert.EqualValues(t, 2, diffs[0]["id"])
	assert.Nil(t, diffs[0][ColValueLeft])
	assert.Equal(t, "y", diffs[0][ColValueRight])
	assert.EqualValues(t, 3, diffs[1]["id"])
	assert.Equal(t, "x", diffs[1][ColValueLeft])
	assert.Nil(t, diffs[1][ColValueRight])
}

func TestCompare_Symmetric(t *testing.T) {
	f := newFixture(t)
	a := f.stage("a", "id,name,qty\n1,A,1\n2,B,2\n3,C,3\n", datasets.Dataset{})
	b := f.stage("b", "id,name,qty\n2,B,20\n3,X,3\n4,D,4\n", datasets.Dataset{})
	cmp := NewComparator(f.sess, nil)

	ab, err := cmp.Compare(context.Background(), a, b, datasets.Comparison{Name: "ab", Keys: []string{"id"}})
	require.NoError(t, err)
	ba, err := cmp.Compare(context.Background(), b, a, datasets.Comparison{Name: "ba", Keys: []string{"id"}})
	require.NoError(t, err)

	assert.Equal(t, ab.MatchedRows, ba.MatchedRows)
	assert.Equal(t, ab.ValueDiffs, ba.ValueDiffs)
	assert.Equal(t, ab.OnlyInLeft, ba.OnlyInRight)
	assert.Equal(t, ab.OnlyInRight, ba.OnlyInLeft)

	abRows, baRows := f.rows(ab.DiffTable), f.rows(ba.DiffTable)
	require.Len(t, abRows, 2)
	require.Len(t, baRows, 2)
	for i := range abRows {
		assert.Equal(t, abRows[i][ColColumnName], baRows[i][ColColumnName])
		assert.Equal(t, abRows[i][ColValueLeft], baRows[i][ColValueRight])
		assert.Equal(t, abRows[i][ColValueRight], baRows[i][ColValueLeft])
	}
}

func TestCompare_SymmetricWithDuplicateKeys(t *testing.T) {
	f := newFixture(t)
	a := f.stage("a", "id,name\n1,A\n2,B\n", datasets.Dataset{})
	b := f.stage("b", "id,name\n1,A\n1,A\n2,B\n", datasets.Dataset{})
	cmp := NewComparator(f.sess, nil)

	ab, err := cmp.Compare(context.Background(), a, b, datasets.Comparison{Name: "ab", Keys: []string{"id"}})
	require.NoError(t, err)
	ba, err := cmp.Compare(context.Background(), b, a, datasets.Comparison{Name: "ba", Keys: []string{"id"}})
	require.NoError(t, err)

	assert.Equal(t, int64(3), ab.MatchedRows)
	assert.Equal(t, ab.MatchedRows, ba.MatchedRows)
	assert.Equal(t, int64(0), ab.OnlyInLeft)
	assert.Equal(t, int64(0), ba.OnlyInRight)

	for _, size := range []int{1, 2} {
		windowed, err := cmp.CompareChunked(context.Background(), b, a, datasets.Comparison{Name: "ba_windowed", Keys: []string{"id"}}, size)
		require.NoError(t, err)
		assert.Equal(t, ba.MatchedRows, windowed.MatchedRows, "size %d", size)
	}
}

func TestCompare_DateFilter(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,qty,updated\n1,1,2024-01-10\n2,2,2024-03-01\n", datasets.Dataset{
		DTypes:             map[string]normalize.ColumnType{"updated": normalize.TypeDate},
		LastModifiedColumn: "updated",
	})
	right := f.stage("right", "id,qty,updated\n1,10,2024-01-10\n2,20,2024-03-01\n", datasets.Dataset{
		DTypes: map[string]normalize.ColumnType{"updated": normalize.TypeDate},
	})

	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{
		Name:           "recent",
		Keys:           []string{"id"},
		CompareColumns: []string{"qty"},
		DateFilter:     &datasets.DateFilter{Cutoff: cutoff, Operator: datasets.OpGreaterEqual},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.ValueDiffs)
	assert.Equal(t, int64(1), res.ErrorDiffs)
	assert.Equal(t, int64(1), res.Uncounted)

	diffs := f.rows(res.DiffTable)
	assert.Equal(t, string(FlagUncounted), diffs[0][ColErrorFlag])
	assert.Equal(t, string(FlagError), diffs[1][ColErrorFlag])
	assert.Nil(t, diffs[0][ColLastModifiedRight])
}

func TestCompare_MixedKeyTypes(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,name\n1,A\n2,B\n", datasets.Dataset{})
	right := f.stage("right", "id,name\n1,A\n2,Z\n", datasets.Dataset{
		DTypes: map[string]normalize.ColumnType{"id": normalize.TypeString},
	})

	res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{Name: "mixed", Keys: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedRows)
	assert.Equal(t, int64(1), res.ValueDiffs)
	assert.Equal(t, "2", f.rows(res.DiffTable)[0]["id"])
}

func TestCompare_KeyColumnMissing(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,name\n1,A\n", datasets.Dataset{})
	right := f.stage("right", "ref,name\n1,A\n", datasets.Dataset{Keys: []string{"ref"}})

	_, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{Name: "k", Keys: []string{"id"}})
	var keyErr *KeyColumnError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, "right", keyErr.Side)
	assert.Equal(t, "right", keyErr.Dataset)
	assert.Equal(t, "id", keyErr.Column)
	assert.Contains(t, keyErr.Available, "ref")
}

func TestCompare_NoCompareColumns(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,a\n1,x\n", datasets.Dataset{})
	right := f.stage("right", "id,b\n1,y\n", datasets.Dataset{})

	_, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{Name: "none", Keys: []string{"id"}})
	assert.ErrorIs(t, err, ErrNoCompareColumns)
}

func TestCompare_ConfiguredColumnMissingWarns(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,a,b\n1,x,1\n", datasets.Dataset{})
	right := f.stage("right", "id,a\n1,x\n", datasets.Dataset{})

	res, err := NewComparator(f.sess, nil).Compare(context.Background(), left, right, datasets.Comparison{
		Name: "cols", Keys: []string{"id"}, CompareColumns: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Columns)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "compare column b")
}

func TestCompareChunked_MatchesFull(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,v\n1,a\n1,b\n2,c\n3,d\n,e\n5,f\n7,g\n", datasets.Dataset{})
	right := f.stage("right", "id,v\n1,a\n2,c\n2,x\n4,d\n5,f\n,z\n8,h\n", datasets.Dataset{})
	cmp := NewComparator(f.sess, nil)
	cfg := datasets.Comparison{Name: "chunk", Keys: []string{"id"}}

	full, err := cmp.Compare(context.Background(), left, right, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(5), full.MatchedRows)
	assert.Equal(t, int64(3), full.OnlyInLeft)
	assert.Equal(t, int64(3), full.OnlyInRight)

	for _, size := range []int{1, 2, 3, 100} {
		cfg.Name = "chunk_windowed"
		windowed, err := cmp.CompareChunked(context.Background(), left, right, cfg, size)
		require.NoError(t, err)

		assert.True(t, windowed.Chunked)
		assert.Equal(t, full.MatchedRows, windowed.MatchedRows, "size %d", size)
		assert.Equal(t, full.OnlyInLeft, windowed.OnlyInLeft, "size %d", size)
		assert.Equal(t, full.OnlyInRight, windowed.OnlyInRight, "size %d", size)
		assert.Equal(t, int64(0), windowed.ValueDiffs)

		n, err := f.sess.RowCount(context.Background(), windowed.DiffTable)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	}
}

func TestCompare_Cancelled(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,v\n1,a\n", datasets.Dataset{})
	right := f.stage("right", "id,v\n1,b\n", datasets.Dataset{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewComparator(f.sess, nil).CompareChunked(ctx, left, right, datasets.Comparison{Name: "c", Keys: []string{"id"}}, 1)
	assert.Error(t, err)
}

func TestDrop(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,v\n1,a\n", datasets.Dataset{})
	right := f.stage("right", "id,v\n1,b\n", datasets.Dataset{})
	cmp := NewComparator(f.sess, nil)

	res, err := cmp.Compare(context.Background(), left, right, datasets.Comparison{Name: "d", Keys: []string{"id"}})
	require.NoError(t, err)
	require.NoError(t, cmp.Drop(context.Background(), res))

	exists, err := f.sess.TableExists(context.Background(), res.DiffTable)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSummary(t *testing.T) {
	res := &Result{TotalLeft: 4, TotalRight: 6, MatchedRows: 3, ValueDiffs: 1, ErrorDiffs: 1}
	s := res.Summary()
	assert.Equal(t, int64(7), s.TotalUniqueRecords)
	assert.Equal(t, 42.86, s.MatchRate)
	assert.Equal(t, 75.0, s.LeftCoverage)
	assert.Equal(t, 50.0, s.RightCoverage)
	assert.Equal(t, 33.33, s.DifferenceRate)

	assert.Equal(t, Summary{}, (&Result{}).Summary())
}

func TestDiffColumns(t *testing.T) {
	assert.Equal(t, []string{
		"id", "column_name", "value_in_left", "value_in_right",
		"row_number_left", "row_number_right", "last_modified_left", "last_modified_right", "error_flag",
	}, DiffColumns([]string{"id"}))
}

func TestKeyCandidates(t *testing.T) {
	f := newFixture(t)
	left := f.stage("left", "id,code,name\n1,A,x\n2,A,y\n3,B,\n", datasets.Dataset{})
	right := f.stage("right", "id,code,other\n1,A,x\n2,B,y\n", datasets.Dataset{})

	got, err := KeyCandidates(context.Background(), f.sess, left, right)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "id", got[0].Column)
	assert.True(t, got[0].Left.IsKey())
	assert.True(t, got[0].Right.IsKey())

	assert.Equal(t, "code", got[1].Column)
	assert.Equal(t, int64(1), got[1].Left.Duplicates)
	assert.False(t, got[1].Left.IsKey())
}
