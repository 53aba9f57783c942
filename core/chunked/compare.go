package chunked

import (
	"context"
	"fmt"
	"strings"

	"data-reconciler/core/engine"

	"github.com/google/uuid"
)

// Key is one join key. A non-empty Cast names the engine type both sides are
// cast to, for keys whose types differ between the two tables.
type Key struct {
	Name string
	Cast string
}

func (k Key) expr(alias string) string {
	col := alias + "." + engine.QuoteIdent(k.Name)
	if k.Cast != "" {
		return "CAST(" + col + " AS " + k.Cast + ")"
	}
	return col
}

// Aggregates are the presence counts of a windowed comparison.
type Aggregates struct {
	TotalLeft   int64 `json:"total_left"`
	TotalRight  int64 `json:"total_right"`
	MatchedRows int64 `json:"matched_rows"`
	OnlyInLeft  int64 `json:"only_in_left"`
	OnlyInRight int64 `json:"only_in_right"`
	Windows     int64 `json:"windows"`
}

// Compare pages through the distinct key tuples of left in windows of size
// tuples. Per window it counts the joined row pairs and the rows of each side
// that have a partner. Rows with a null key never match. MatchedRows is the
// inner join size, so it does not depend on which table is left.
func Compare(ctx context.Context, sess *engine.Session, left, right string, keys []Key, size int) (Aggregates, error) {
	var agg Aggregates
	if len(keys) == 0 {
		return agg, fmt.Errorf("chunked compare %s/%s: no key columns", left, right)
	}
	if size < 1 {
		size = MinChunkSize
	}

	var err error
	if agg.TotalLeft, err = sess.RowCount(ctx, left); err != nil {
		return agg, err
	}
	if agg.TotalRight, err = sess.RowCount(ctx, right); err != nil {
		return agg, err
	}

	window := "__keys_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	defer func() { _ = sess.DropTable(context.WithoutCancel(ctx), window) }()

	slots := make([]string, len(keys))
	selects := make([]string, len(keys))
	notNull := make([]string, len(keys))
	for i, k := range keys {
		slots[i] = fmt.Sprintf("__k%d", i)
		selects[i] = k.expr("l") + " AS " + slots[i]
		notNull[i] = k.expr("l") + " IS NOT NULL"
	}
	err = sess.Exec(ctx, fmt.Sprintf(
		`CREATE TEMP TABLE %s AS
		 SELECT *, ROW_NUMBER() OVER (ORDER BY %s) AS __kid
		 FROM (SELECT DISTINCT %s FROM %s l WHERE %s)`,
		engine.QuoteIdent(window), strings.Join(slots, ", "),
		strings.Join(selects, ", "), engine.QuoteIdent(left), strings.Join(notNull, " AND ")))
	if err != nil {
		return agg, fmt.Errorf("collect keys of %s: %w", left, err)
	}

	distinct, err := sess.RowCount(ctx, window)
	if err != nil {
		return agg, err
	}

	on := func(alias string) string {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k.expr(alias) + " = w." + slots[i]
		}
		return strings.Join(parts, " AND ")
	}

	leftQuery := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s l JOIN (
			SELECT * FROM %s w WHERE w.__kid > ? AND w.__kid <= ?
			AND EXISTS (SELECT 1 FROM %s r WHERE %s)
		 ) w ON %s`,
		engine.QuoteIdent(left), engine.QuoteIdent(window), engine.QuoteIdent(right), on("r"), on("l"))
	pairQuery := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s l JOIN (
			SELECT * FROM %s w WHERE w.__kid > ? AND w.__kid <= ?
		 ) w ON %s
		 JOIN %s r ON %s`,
		engine.QuoteIdent(left), engine.QuoteIdent(window), on("l"),
		engine.QuoteIdent(right), on("r"))
	rightQuery := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s r JOIN (
			SELECT * FROM %s w WHERE w.__kid > ? AND w.__kid <= ?
		 ) w ON %s`,
		engine.QuoteIdent(right), engine.QuoteIdent(window), on("r"))

	var leftMatched, rightMatched int64
	for from := int64(0); from < distinct; from += int64(size) {
		if err := ctx.Err(); err != nil {
			return agg, err
		}
		to := from + int64(size)

		pairs, err := sess.Int64(ctx, pairQuery, from, to)
		if err != nil {
			return agg, fmt.Errorf("window %d of %s: %w", agg.Windows, left, err)
		}
		matched, err := sess.Int64(ctx, leftQuery, from, to)
		if err != nil {
			return agg, fmt.Errorf("window %d of %s: %w", agg.Windows, left, err)
		}
		covered, err := sess.Int64(ctx, rightQuery, from, to)
		if err != nil {
			return agg, fmt.Errorf("window %d of %s: %w", agg.Windows, right, err)
		}
		agg.MatchedRows += pairs
		leftMatched += matched
		rightMatched += covered
		agg.Windows++
	}

	agg.OnlyInLeft = agg.TotalLeft - leftMatched
	agg.OnlyInRight = agg.TotalRight - rightMatched
	return agg, nil
}
