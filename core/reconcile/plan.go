package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"data-reconciler/core/chunked"
	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/normalize"
	"data-reconciler/core/staging"
)

// pair is one column resolved on both sides.
type pair struct {
	name  string
	left  normalize.ColumnType
	right normalize.ColumnType
}

// common is the engine type both sides are compared as, or "" when the
// declared types already agree.
func (p pair) common() string {
	switch {
	case p.left == p.right:
		return ""
	case p.left.IsNumeric() && p.right.IsNumeric():
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func (p pair) fractional() bool {
	return p.left.IsFractional() || p.right.IsFractional()
}

// expr is the comparison expression of the column on one side.
func (p pair) expr(alias string, round *int) string {
	out := alias + "." + engine.QuoteIdent(p.name)
	if t := p.common(); t != "" {
		out = "CAST(" + out + " AS " + t + ")"
	}
	if round != nil && p.fractional() && p.common() != "VARCHAR" {
		out = fmt.Sprintf("ROUND(%s, %d)", out, *round)
	}
	return out
}

// text renders the raw value on one side for reporting.
func (p pair) text(alias string) string {
	return "CAST(" + alias + "." + engine.QuoteIdent(p.name) + " AS VARCHAR)"
}

// plan is a comparison resolved against two staged tables.
type plan struct {
	name     string
	left     *staging.Table
	right    *staging.Table
	keys     []pair
	columns  []pair
	round    *int
	filter   *datasets.DateFilter
	warnings []string
}

func buildPlan(left, right *staging.Table, cfg datasets.Comparison) (*plan, error) {
	p := &plan{name: cfg.Name, left: left, right: right, round: cfg.NumericRound, filter: cfg.DateFilter}

	keys := cfg.Keys
	if len(keys) == 0 {
		keys = left.Keys
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("comparison %q: no key columns configured", cfg.Name)
	}

	for _, k := range keys {
		name := resolve(left, k)
		lc, ok := left.Column(name)
		if !ok {
			return nil, &KeyColumnError{Comparison: cfg.Name, Side: "left", Dataset: left.Dataset, Column: k, Available: left.ColumnNames()}
		}
		rc, ok := right.Column(name)
		if !ok {
			return nil, &KeyColumnError{Comparison: cfg.Name, Side: "right", Dataset: right.Dataset, Column: k, Available: right.ColumnNames()}
		}
		p.keys = append(p.keys, pair{name: name, left: lc.Type, right: rc.Type})
	}

	isKey := make(map[string]bool, len(p.keys))
	for _, k := range p.keys {
		isKey[k.name] = true
	}

	var candidates []string
	if len(cfg.CompareColumns) > 0 {
		for _, c := range cfg.CompareColumns {
			candidates = append(candidates, resolve(left, c))
		}
	} else {
		candidates = left.ColumnNames()
		sort.Strings(candidates)
	}

	seen := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		if isKey[name] || seen[name] {
			continue
		}
		seen[name] = true
		lc, lok := left.Column(name)
		rc, rok := right.Column(name)
		if !lok || !rok {
			if len(cfg.CompareColumns) > 0 {
				p.warnings = append(p.warnings, fmt.Sprintf("compare column %s is missing from %s", name, missingSide(lok, rok)))
			}
			continue
		}
		p.columns = append(p.columns, pair{name: name, left: lc.Type, right: rc.Type})
	}
	if len(p.columns) == 0 {
		return nil, fmt.Errorf("comparison %q between %s and %s: %w", cfg.Name, left.Dataset, right.Dataset, ErrNoCompareColumns)
	}
	return p, nil
}

// resolve maps a configured column to the canonical name present in t.
func resolve(t *staging.Table, name string) string {
	if _, ok := t.Column(name); ok {
		return name
	}
	return normalize.CanonicalName(name)
}

func missingSide(left, right bool) string {
	switch {
	case !left && !right:
		return "both sides"
	case !left:
		return "the left side"
	default:
		return "the right side"
	}
}

func (p *plan) keyNames() []string {
	out := make([]string, len(p.keys))
	for i, k := range p.keys {
		out[i] = k.name
	}
	return out
}

func (p *plan) columnNames() []string {
	out := make([]string, len(p.columns))
	for i, c := range p.columns {
		out[i] = c.name
	}
	return out
}

// join is the key equality condition between aliases l and r.
func (p *plan) join() string {
	parts := make([]string, len(p.keys))
	for i, k := range p.keys {
		parts[i] = k.expr("l", nil) + " = " + k.expr("r", nil)
	}
	return strings.Join(parts, " AND ")
}

// keySelect projects the key columns from alias under their canonical names.
func (p *plan) keySelect(alias string) string {
	parts := make([]string, len(p.keys))
	for i, k := range p.keys {
		parts[i] = k.expr(alias, nil) + " AS " + engine.QuoteIdent(k.name)
	}
	return strings.Join(parts, ", ")
}

func (p *plan) orderBy() string {
	return engine.QuoteIdents(p.keyNames())
}

// flag is the error_flag expression of a difference row.
func (p *plan) flag() string {
	if p.filter == nil {
		return engine.QuoteLiteral(string(FlagError))
	}
	cutoff := "DATE " + engine.QuoteLiteral(p.filter.Cutoff.Format("2006-01-02"))
	cond := func(alias string) string {
		return fmt.Sprintf("%s.%s %s %s", alias, engine.QuoteIdent(staging.LastModifiedColumn), p.filter.Operator, cutoff)
	}
	return fmt.Sprintf("CASE WHEN %s OR %s THEN %s ELSE %s END",
		cond("l"), cond("r"), engine.QuoteLiteral(string(FlagError)), engine.QuoteLiteral(string(FlagUncounted)))
}

// diffSelect emits the difference rows of one column.
func (p *plan) diffSelect(c pair) string {
	return fmt.Sprintf(`SELECT %s,
			%s AS %s,
			%s AS %s,
			%s AS %s,
			l.%s AS %s,
			r.%s AS %s,
			l.%s AS %s,
			r.%s AS %s,
			%s AS %s
		FROM %s l JOIN %s r ON %s
		WHERE %s IS DISTINCT FROM %s`,
		p.keySelect("l"),
		engine.QuoteLiteral(c.name), ColColumnName,
		c.text("l"), ColValueLeft,
		c.text("r"), ColValueRight,
		engine.QuoteIdent(staging.RowNumberColumn), ColRowNumberLeft,
		engine.QuoteIdent(staging.RowNumberColumn), ColRowNumberRight,
		engine.QuoteIdent(staging.LastModifiedColumn), ColLastModifiedLeft,
		engine.QuoteIdent(staging.LastModifiedColumn), ColLastModifiedRight,
		p.flag(), ColErrorFlag,
		engine.QuoteIdent(p.left.Name), engine.QuoteIdent(p.right.Name), p.join(),
		c.expr("l", p.round), c.expr("r", p.round))
}

// chunkKeys describes the keys for the windowed comparison.
func (p *plan) chunkKeys() []chunked.Key {
	out := make([]chunked.Key, len(p.keys))
	for i, k := range p.keys {
		out[i] = chunked.Key{Name: k.name, Cast: k.common()}
	}
	return out
}
