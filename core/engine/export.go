package engine

import (
	"context"
	"fmt"
)

// FileFormat selects the output format of CopyTo.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatCSV     FileFormat = "csv"
)

// CopyTo writes the result of query (or a bare table name) to path.
// CSV output carries a header row and comma delimiters.
func (s *Session) CopyTo(ctx context.Context, query string, path string, format FileFormat) error {
	var opts string
	switch format {
	case FormatParquet:
		opts = "(FORMAT PARQUET)"
	case FormatCSV:
		opts = "(HEADER, DELIMITER ',')"
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	stmt := fmt.Sprintf("COPY (%s) TO %s %s", query, QuoteLiteral(path), opts)
	if err := s.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("export to %s: %w", path, err)
	}
	return nil
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Records returns each row as a column-name keyed map.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for j, col := range r.Columns {
			rec[col] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Fetch runs query and materializes every row. Use it only for bounded results.
func (s *Session) Fetch(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}
