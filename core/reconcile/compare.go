package reconcile

import (
	"context"
	"fmt"
	"strings"

	"data-reconciler/core/chunked"
	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/staging"

	"go.uber.org/zap"
)

// Comparator diffs two staged tables inside one engine session.
type Comparator struct {
	sess *engine.Session
	log  *zap.Logger
}

// NewComparator creates a comparator bound to sess.
func NewComparator(sess *engine.Session, log *zap.Logger) *Comparator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Comparator{sess: sess, log: log}
}

// Compare computes the presence diff and the tall value diff of left and
// right. All three relations are ordered by key, then by column name.
func (c *Comparator) Compare(ctx context.Context, left, right *staging.Table, cfg datasets.Comparison) (*Result, error) {
	p, err := buildPlan(left, right, cfg)
	if err != nil {
		return nil, err
	}
	log := c.log.With(zap.String("comparison", cfg.Name))
	for _, w := range p.warnings {
		log.Warn("Compare column skipped", zap.String("reason", w))
	}

	res := c.newResult(p)
	if err := c.presence(ctx, p, res); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.diffs(ctx, p, res); err != nil {
		return nil, err
	}
	if err := c.counts(ctx, p, res); err != nil {
		return nil, err
	}

	log.Info("Comparison finished",
		zap.Int64("matched", res.MatchedRows),
		zap.Int64("only_left", res.OnlyInLeft),
		zap.Int64("only_right", res.OnlyInRight),
		zap.Int64("differences", res.ValueDiffs))
	return res, nil
}

// CompareChunked computes presence aggregates in key windows of chunkSize.
// The result relations exist but stay empty.
func (c *Comparator) CompareChunked(ctx context.Context, left, right *staging.Table, cfg datasets.Comparison, chunkSize int) (*Result, error) {
	p, err := buildPlan(left, right, cfg)
	if err != nil {
		return nil, err
	}

	res := c.newResult(p)
	res.Chunked = true

	agg, err := chunked.Compare(ctx, c.sess, left.Name, right.Name, p.chunkKeys(), chunkSize)
	if err != nil {
		return nil, fmt.Errorf("comparison %q: %w", cfg.Name, err)
	}
	res.TotalLeft, res.TotalRight = agg.TotalLeft, agg.TotalRight
	res.MatchedRows = agg.MatchedRows
	res.OnlyInLeft, res.OnlyInRight = agg.OnlyInLeft, agg.OnlyInRight
	res.Windows = agg.Windows

	if err := c.emptyRelations(ctx, p, res); err != nil {
		return nil, err
	}

	c.log.Info("Chunked comparison finished",
		zap.String("comparison", cfg.Name),
		zap.Int64("windows", agg.Windows),
		zap.Int64("matched", res.MatchedRows),
		zap.Int64("only_left", res.OnlyInLeft),
		zap.Int64("only_right", res.OnlyInRight))
	return res, nil
}

// Drop removes the relations of res from the session.
func (c *Comparator) Drop(ctx context.Context, res *Result) error {
	for _, t := range []string{res.OnlyLeftTable, res.OnlyRightTable, res.DiffTable} {
		if err := c.sess.DropTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Comparator) newResult(p *plan) *Result {
	onlyLeft, onlyRight, diffs := TableNames(p.name)
	return &Result{
		Name:           p.name,
		Left:           p.left.Dataset,
		Right:          p.right.Dataset,
		Keys:           p.keyNames(),
		Columns:        p.columnNames(),
		Warnings:       p.warnings,
		OnlyLeftTable:  onlyLeft,
		OnlyRightTable: onlyRight,
		DiffTable:      diffs,
	}
}

func (c *Comparator) presence(ctx context.Context, p *plan, res *Result) error {
	anti := `CREATE OR REPLACE TABLE %s AS
		SELECT l.* FROM %s l
		WHERE NOT EXISTS (SELECT 1 FROM %s r WHERE %s)
		ORDER BY %s, l.%s`

	err := c.sess.Exec(ctx, fmt.Sprintf(anti,
		engine.QuoteIdent(res.OnlyLeftTable),
		engine.QuoteIdent(p.left.Name), engine.QuoteIdent(p.right.Name), p.join(),
		prefixed("l", p.keyNames()), engine.QuoteIdent(staging.RowNumberColumn)))
	if err != nil {
		return fmt.Errorf("comparison %q: only in %s: %w", p.name, p.left.Dataset, err)
	}

	// Same anti-join with the roles swapped: l is the right table here.
	err = c.sess.Exec(ctx, fmt.Sprintf(anti,
		engine.QuoteIdent(res.OnlyRightTable),
		engine.QuoteIdent(p.right.Name), engine.QuoteIdent(p.left.Name), p.join(),
		prefixed("l", p.keyNames()), engine.QuoteIdent(staging.RowNumberColumn)))
	if err != nil {
		return fmt.Errorf("comparison %q: only in %s: %w", p.name, p.right.Dataset, err)
	}
	return nil
}

func (c *Comparator) diffs(ctx context.Context, p *plan, res *Result) error {
	selects := make([]string, len(p.columns))
	for i, col := range p.columns {
		selects[i] = p.diffSelect(col)
	}
	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM (%s) ORDER BY %s, %s, %s, %s",
		engine.QuoteIdent(res.DiffTable),
		strings.Join(selects, "\nUNION ALL\n"),
		p.orderBy(), ColColumnName, ColRowNumberLeft, ColRowNumberRight)
	if err := c.sess.Exec(ctx, query); err != nil {
		return fmt.Errorf("comparison %q: value differences: %w", p.name, err)
	}
	return nil
}

func (c *Comparator) counts(ctx context.Context, p *plan, res *Result) error {
	var err error
	if res.TotalLeft, err = c.sess.RowCount(ctx, p.left.Name); err != nil {
		return err
	}
	if res.TotalRight, err = c.sess.RowCount(ctx, p.right.Name); err != nil {
		return err
	}
	if res.OnlyInLeft, err = c.sess.RowCount(ctx, res.OnlyLeftTable); err != nil {
		return err
	}
	if res.OnlyInRight, err = c.sess.RowCount(ctx, res.OnlyRightTable); err != nil {
		return err
	}
	// Matched rows are join pairs, so a key duplicated on one side counts once per partner.
	pairs := fmt.Sprintf("SELECT COUNT(*) FROM %s l JOIN %s r ON %s",
		engine.QuoteIdent(p.left.Name), engine.QuoteIdent(p.right.Name), p.join())
	if err := c.sess.QueryRow(ctx, pairs).Scan(&res.MatchedRows); err != nil {
		return fmt.Errorf("comparison %q: count matches: %w", p.name, err)
	}

	query := fmt.Sprintf("SELECT COUNT(*), COUNT(*) FILTER (WHERE %s = %s) FROM %s",
		ColErrorFlag, engine.QuoteLiteral(string(FlagError)), engine.QuoteIdent(res.DiffTable))
	if err := c.sess.QueryRow(ctx, query).Scan(&res.ValueDiffs, &res.ErrorDiffs); err != nil {
		return fmt.Errorf("comparison %q: count differences: %w", p.name, err)
	}
	res.Uncounted = res.ValueDiffs - res.ErrorDiffs
	return nil
}

func (c *Comparator) emptyRelations(ctx context.Context, p *plan, res *Result) error {
	stmts := []string{
		fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s LIMIT 0",
			engine.QuoteIdent(res.OnlyLeftTable), engine.QuoteIdent(p.left.Name)),
		fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s LIMIT 0",
			engine.QuoteIdent(res.OnlyRightTable), engine.QuoteIdent(p.right.Name)),
		fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM (%s) LIMIT 0",
			engine.QuoteIdent(res.DiffTable), p.diffSelect(p.columns[0])),
	}
	for _, stmt := range stmts {
		if err := c.sess.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("comparison %q: %w", p.name, err)
		}
	}
	return nil
}

func prefixed(alias string, names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = alias + "." + engine.QuoteIdent(n)
	}
	return strings.Join(parts, ", ")
}
