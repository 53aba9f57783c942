package reconcile

import (
	"context"
	"fmt"
	"sort"

	"data-reconciler/core/engine"
	"data-reconciler/core/staging"
)

// Uniqueness describes one column on one side.
type Uniqueness struct {
	Total      int64   `json:"total"`
	Unique     int64   `json:"unique"`
	Duplicates int64   `json:"duplicates"`
	Nulls      int64   `json:"nulls"`
	Ratio      float64 `json:"ratio"`
}

// IsKey reports whether the column identifies every row on this side.
func (u Uniqueness) IsKey() bool {
	return u.Total > 0 && u.Nulls == 0 && u.Duplicates == 0
}

// KeyCandidate is a column present on both sides.
type KeyCandidate struct {
	Column string     `json:"column"`
	Left   Uniqueness `json:"left"`
	Right  Uniqueness `json:"right"`
}

// Score ranks candidates: the lower uniqueness ratio of both sides.
func (k KeyCandidate) Score() float64 {
	return min(k.Left.Ratio, k.Right.Ratio)
}

// KeyCandidates lists the columns common to left and right with their
// uniqueness on each side, best candidates first.
func KeyCandidates(ctx context.Context, sess *engine.Session, left, right *staging.Table) ([]KeyCandidate, error) {
	var out []KeyCandidate
	for _, col := range left.Columns {
		if _, ok := right.Column(col.Name); !ok {
			continue
		}
		l, err := uniqueness(ctx, sess, left.Name, col.Name)
		if err != nil {
			return nil, err
		}
		r, err := uniqueness(ctx, sess, right.Name, col.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyCandidate{Column: col.Name, Left: l, Right: r})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		return out[i].Column < out[j].Column
	})
	return out, nil
}

func uniqueness(ctx context.Context, sess *engine.Session, table, column string) (Uniqueness, error) {
	var u Uniqueness
	col := engine.QuoteIdent(column)
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT %s), COUNT(*) FILTER (WHERE %s IS NULL) FROM %s",
		col, col, engine.QuoteIdent(table))
	if err := sess.QueryRow(ctx, query).Scan(&u.Total, &u.Unique, &u.Nulls); err != nil {
		return u, fmt.Errorf("uniqueness of %s.%s: %w", table, column, err)
	}
	u.Duplicates = u.Total - u.Nulls - u.Unique
	u.Ratio = rate(u.Unique, u.Total) / 100
	return u, nil
}
