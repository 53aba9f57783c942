package source

import (
	"context"
	"fmt"
	"strings"

	"data-reconciler/core/database"
	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const databaseBatchSize = 10000

// DatabaseReader extracts a table or query from the configured relational database.
type DatabaseReader struct {
	dataset datasets.Dataset
	db      *gorm.DB
	log     *zap.Logger
}

// extraction returns the table name or query to read.
func (r *DatabaseReader) extraction() string {
	if strings.TrimSpace(r.dataset.CustomSQL) == "" {
		return r.dataset.Path
	}
	q := strings.TrimRight(strings.TrimSpace(r.dataset.CustomSQL), ";")
	return strings.ReplaceAll(q, "{table}", database.QuoteTable(r.db, r.dataset.Path))
}

// Fingerprint implements Reader. Databases expose no modification time, so the
// row count stands in for it.
func (r *DatabaseReader) Fingerprint(ctx context.Context, _ *engine.Session) (Fingerprint, error) {
	if !database.IsQuery(r.dataset.Path) && !r.db.WithContext(ctx).Migrator().HasTable(r.dataset.Path) {
		return Fingerprint{}, &NotFoundError{Dataset: r.dataset.Name, Locator: r.dataset.Path}
	}
	cols, err := database.QueryColumns(ctx, r.db, r.dataset.Path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("dataset %q: describe %s: %w", r.dataset.Name, r.dataset.Path, err)
	}

	count, err := database.CountRows(ctx, r.db, r.extraction())
	if err != nil {
		return Fingerprint{}, fmt.Errorf("dataset %q: %w", r.dataset.Name, err)
	}

	return Fingerprint{
		Columns:   cols,
		RowCount:  count,
		SizeBytes: -1,
		Format:    datasets.FormatDatabase,
	}, nil
}

// Load implements Reader. Rows are streamed into the engine in batches.
func (r *DatabaseReader) Load(ctx context.Context, sess *engine.Session, table string) (int64, error) {
	query := r.extraction()
	cols, err := database.QueryColumns(ctx, r.db, query)
	if err != nil {
		return 0, fmt.Errorf("dataset %q: %w", r.dataset.Name, err)
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("dataset %q: extraction has no columns", r.dataset.Name)
	}

	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, engine.QuoteIdent(OrdinalColumn)+" BIGINT")
	for _, c := range cols {
		defs = append(defs, engine.QuoteIdent(c)+" VARCHAR")
	}
	if err := sess.Exec(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", engine.QuoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("dataset %q: create raw table: %w", r.dataset.Name, err)
	}

	var total, ordinal int64
	batch := make([][]any, 0, databaseBatchSize)
	flush := func() error {
		if err := sess.AppendRows(ctx, table, batch); err != nil {
			return err
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	_, err = database.QueryText(ctx, r.db, database.SelectAll(r.db, query), func(row []*string) error {
		values := make([]any, len(row)+1)
		values[0] = ordinal
		ordinal++
		for i, v := range row {
			if v != nil {
				values[i+1] = *v
			}
		}
		batch = append(batch, values)
		if len(batch) >= databaseBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("dataset %q: extract: %w", r.dataset.Name, err)
	}
	if err := flush(); err != nil {
		return 0, fmt.Errorf("dataset %q: extract: %w", r.dataset.Name, err)
	}

	r.log.Debug("Database source extracted", zap.String("source", r.dataset.Path), zap.Int64("rows", total))
	return total, nil
}

// Close implements Reader.
func (r *DatabaseReader) Close() error {
	return nil
}
