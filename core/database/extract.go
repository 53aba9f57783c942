package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"data-reconciler/core/utils"

	"gorm.io/gorm"
)

// RowFunc receives one extracted row. Values are rendered as text; nil means NULL.
type RowFunc func(row []*string) error

// QueryText runs query and streams every row to fn as text values.
// It returns the result column names in order.
func QueryText(ctx context.Context, db *gorm.DB, query string, fn RowFunc) ([]string, error) {
	rows, err := db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to run extraction query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	values := make([]any, len(columns))
	for i := range values {
		values[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(values...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]*string, len(columns))
		for i, v := range values {
			row[i] = renderText(*(v.(*any)))
		}
		if err := fn(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return columns, nil
}

// QueryColumns returns the column names a table or query yields without reading rows.
func QueryColumns(ctx context.Context, db *gorm.DB, tableOrQuery string) ([]string, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", fromClause(db, tableOrQuery))
	rows, err := db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to describe extraction: %w", err)
	}
	defer rows.Close()
	return rows.Columns()
}

// SelectAll returns the extraction statement for a table name or passes a query through.
func SelectAll(db *gorm.DB, tableOrQuery string) string {
	if IsQuery(tableOrQuery) {
		return strings.TrimRight(strings.TrimSpace(tableOrQuery), ";")
	}
	return "SELECT * FROM " + QuoteTable(db, tableOrQuery)
}

// CountRows returns the number of rows a table or query yields.
func CountRows(ctx context.Context, db *gorm.DB, tableOrQuery string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", fromClause(db, tableOrQuery))
	if err := db.WithContext(ctx).Raw(query).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

// IsQuery reports whether s is a SELECT statement rather than a table name.
func IsQuery(s string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(trimmed, "select") || strings.HasPrefix(trimmed, "with")
}

func fromClause(db *gorm.DB, tableOrQuery string) string {
	if IsQuery(tableOrQuery) {
		return "(" + strings.TrimRight(strings.TrimSpace(tableOrQuery), ";") + ") AS extraction"
	}
	return QuoteTable(db, tableOrQuery)
}

// QuoteTable quotes a table name for the connected dialect.
func QuoteTable(db *gorm.DB, table string) string {
	if db.Dialector.Name() == "mysql" {
		return "`" + strings.ReplaceAll(table, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
}

func renderText(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	if t, ok := v.(time.Time); ok {
		s = utils.FormatTime(t)
	} else {
		s = utils.ToString(v)
	}
	return &s
}
