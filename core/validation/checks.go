package validation

import (
	"context"
	"fmt"
	"strings"

	"data-reconciler/core/engine"
	"data-reconciler/core/normalize"
	"data-reconciler/core/staging"
	"data-reconciler/core/utils"
)

const maxDuplicateExamples = 10

// SchemaCheck verifies the table is non-empty with unique column names and
// flags text columns mixing numeric and non-numeric values.
type SchemaCheck struct {
	SampleSize int
}

func (SchemaCheck) Name() string { return "schema" }

func (c SchemaCheck) Run(ctx context.Context, sess *engine.Session, table *staging.Table) (*Report, error) {
	r := newReport(table.Dataset)

	rows, err := sess.RowCount(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	r.Stats["row_count"] = rows
	r.Stats["column_count"] = len(table.Columns)

	types := make(map[string]string, len(table.Columns))
	for _, col := range table.Columns {
		types[col.Name] = string(col.Type)
	}
	r.Stats["column_types"] = types

	if rows == 0 {
		r.Add(SeverityError, "schema", "Table is empty", map[string]any{"rows": 0, "columns": len(table.Columns)})
		return r, nil
	}

	seen := make(map[string]int, len(table.Columns))
	var dups []string
	for _, col := range table.Columns {
		seen[col.Name]++
		if seen[col.Name] == 2 {
			dups = append(dups, col.Name)
		}
	}
	if len(dups) > 0 {
		r.Add(SeverityError, "schema", "Duplicate column names found", map[string]any{"duplicates": dups})
	}

	for _, col := range table.Columns {
		if col.Type != normalize.TypeString {
			continue
		}
		numeric, total, err := numericShare(ctx, sess, table.Name, col.Name, c.SampleSize)
		if err != nil {
			return nil, err
		}
		if numeric > 0 && numeric < total {
			r.Add(SeverityWarning, "schema", fmt.Sprintf("Mixed types in column %s", col.Name), map[string]any{
				"column":  col.Name,
				"types":   []string{"numeric", "text"},
				"numeric": numeric,
				"sampled": total,
			})
		}
	}
	return r, nil
}

// TypeSanityCheck reports coercion failures from staging and text columns
// whose sampled values all look numeric.
type TypeSanityCheck struct {
	SampleSize int
}

func (TypeSanityCheck) Name() string { return "type_sanity" }

func (c TypeSanityCheck) Run(ctx context.Context, sess *engine.Session, table *staging.Table) (*Report, error) {
	r := newReport(table.Dataset)
	r.Stats["coercion_failures"] = table.CoercionFailures

	for _, col := range table.Columns {
		if n := table.CoercionFailures[col.Name]; n > 0 {
			r.Add(SeverityWarning, "dtype",
				fmt.Sprintf("%d values in column %s could not be coerced to %s and were set to null", n, col.Name, col.Type),
				map[string]any{
					"column":   col.Name,
					"expected": string(col.Type),
					"failures": n,
					"percent":  percent(n, table.RowCount),
				})
		}
	}

	for _, col := range table.Columns {
		if col.Type != normalize.TypeString {
			continue
		}
		numeric, total, err := numericShare(ctx, sess, table.Name, col.Name, c.SampleSize)
		if err != nil {
			return nil, err
		}
		if total > 0 && numeric == total {
			r.Add(SeverityInfo, "dtype",
				fmt.Sprintf("Column %s appears numeric but stored as string", col.Name),
				map[string]any{"column": col.Name, "sampled": total})
		}
	}
	return r, nil
}

// numericShare samples up to n non-null values of a text column and counts
// how many parse as numbers.
func numericShare(ctx context.Context, sess *engine.Session, table, column string, n int) (numeric, total int64, err error) {
	col := engine.QuoteIdent(column)
	query := fmt.Sprintf(`SELECT
			COUNT(*) FILTER (WHERE TRY_CAST(TRIM(v) AS DOUBLE) IS NOT NULL AND regexp_matches(v, '[0-9]')),
			COUNT(*)
		FROM (SELECT %s AS v FROM %s WHERE %s IS NOT NULL AND TRIM(%s) <> '' ORDER BY %s LIMIT %d)`,
		col, engine.QuoteIdent(table), col, col, engine.QuoteIdent(staging.RowNumberColumn), n)
	if err := sess.QueryRow(ctx, query).Scan(&numeric, &total); err != nil {
		return 0, 0, fmt.Errorf("sample column %s: %w", column, err)
	}
	return numeric, total, nil
}

// KeyCheck verifies key columns exist, contain no nulls and are unique.
type KeyCheck struct{}

func (KeyCheck) Name() string { return "keys" }

func (KeyCheck) Run(ctx context.Context, sess *engine.Session, table *staging.Table) (*Report, error) {
	r := newReport(table.Dataset)
	if len(table.Keys) == 0 {
		return r, nil
	}

	var missing []string
	for _, k := range table.Keys {
		if _, ok := table.Column(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		r.Add(SeverityError, "keys", "Key columns not found", map[string]any{
			"missing":           missing,
			"available_columns": table.ColumnNames(),
		})
		return r, nil
	}

	name := engine.QuoteIdent(table.Name)
	rows, err := sess.RowCount(ctx, table.Name)
	if err != nil {
		return nil, err
	}

	for _, k := range table.Keys {
		nulls, err := sess.Int64(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", name, engine.QuoteIdent(k)))
		if err != nil {
			return nil, err
		}
		if nulls > 0 {
			r.Add(SeverityError, "keys", fmt.Sprintf("Null values in key column %s", k), map[string]any{
				"column":     k,
				"null_count": nulls,
				"percent":    percent(nulls, rows),
			})
		}
	}

	keys := engine.QuoteIdents(table.Keys)
	unique, err := sess.Int64(ctx, fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s)", keys, name))
	if err != nil {
		return nil, err
	}
	r.Stats["key_columns"] = table.Keys
	r.Stats["unique_keys"] = unique

	if dup := rows - unique; dup > 0 {
		r.Add(SeverityWarning, "keys", "Duplicate key values found", map[string]any{
			"duplicate_count": dup,
			"percent":         percent(dup, rows),
		})

		examples, err := sess.Fetch(ctx, fmt.Sprintf(
			"SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY %s LIMIT %d",
			keys, name, keys, keys, maxDuplicateExamples))
		if err != nil {
			return nil, err
		}
		tuples := make([][]string, 0, len(examples.Rows))
		for _, row := range examples.Rows {
			tuple := make([]string, len(row))
			for i, v := range row {
				tuple[i] = utils.ToString(v)
			}
			tuples = append(tuples, tuple)
		}
		r.Stats["duplicate_examples"] = tuples
	}
	return r, nil
}

// DuplicateCheck counts rows that are identical across every canonical column.
type DuplicateCheck struct{}

func (DuplicateCheck) Name() string { return "duplicates" }

func (DuplicateCheck) Run(ctx context.Context, sess *engine.Session, table *staging.Table) (*Report, error) {
	r := newReport(table.Dataset)
	if len(table.Columns) == 0 {
		r.Stats["full_duplicates"] = int64(0)
		return r, nil
	}

	name := engine.QuoteIdent(table.Name)
	rows, err := sess.RowCount(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	distinct, err := sess.Int64(ctx, fmt.Sprintf("SELECT COUNT(*) FROM (SELECT DISTINCT %s FROM %s)",
		engine.QuoteIdents(table.ColumnNames()), name))
	if err != nil {
		return nil, err
	}

	dup := rows - distinct
	r.Stats["full_duplicates"] = dup
	if dup > 0 {
		r.Add(SeverityWarning, "duplicates", "Full duplicate rows found", map[string]any{
			"count":   dup,
			"percent": percent(dup, rows),
		})
	}
	return r, nil
}

// Summary renders a one-line description of a report.
func Summary(r *Report) string {
	var parts []string
	for _, sev := range []Severity{SeverityError, SeverityWarning, SeverityInfo} {
		if n := len(r.filter(sev)); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(sev))))
		}
	}
	status := "valid"
	if !r.Valid {
		status = "invalid"
	}
	if len(parts) == 0 {
		return status
	}
	return status + " (" + strings.Join(parts, ", ") + ")"
}
