package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Fingerprint identifies the state of a source for cache validation.
type Fingerprint struct {
	// Columns are the source column names before mapping, in source order.
	Columns []string `json:"columns"`
	// ModTime is the source modification time in UTC, truncated to seconds. Zero when unknown.
	ModTime time.Time `json:"mtime"`
	// RowCount is -1 when it was not computed.
	RowCount  int64           `json:"row_count"`
	SizeBytes int64           `json:"size_bytes"`
	Format    datasets.Format `json:"format"`
}

// HasModTime reports whether the source exposes a modification time.
func (f Fingerprint) HasModTime() bool {
	return !f.ModTime.IsZero()
}

// ColumnSet returns the column names sorted, for order-insensitive comparison.
func (f Fingerprint) ColumnSet() []string {
	set := append([]string(nil), f.Columns...)
	sort.Strings(set)
	return set
}

// SameColumns reports whether both fingerprints carry the same column-name set.
func (f Fingerprint) SameColumns(other Fingerprint) bool {
	a, b := f.ColumnSet(), other.ColumnSet()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OrdinalColumn is the zero-based source position that Load adds to every raw
// table. Raw rows are paged on it, so a source column named rowid cannot shadow it.
const OrdinalColumn = "__src_ordinal"

// Reader loads one dataset source into the engine.
type Reader interface {
	// Fingerprint describes the current state of the source without loading it.
	Fingerprint(ctx context.Context, sess *engine.Session) (Fingerprint, error)
	// Load materializes the raw rows as an all-VARCHAR engine table plus
	// OrdinalColumn and returns the row count.
	Load(ctx context.Context, sess *engine.Session, table string) (int64, error)
	// Close releases temporary files created while reading.
	Close() error
}

// Deps carries the collaborators readers may need.
type Deps struct {
	// Storage is required for s3:// locators.
	Storage storage.Client
	// DB is required for database datasets.
	DB *gorm.DB
	// TempDir holds transcoded and downloaded files. Empty means the OS default.
	TempDir string
	Log     *zap.Logger
}

func (d Deps) tempDir() string {
	if d.TempDir != "" {
		return d.TempDir
	}
	return os.TempDir()
}

// NotFoundError reports a missing source.
type NotFoundError struct {
	Dataset string
	Locator string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q: source %q not found", e.Dataset, e.Locator)
}

func (e *NotFoundError) Unwrap() error {
	return fs.ErrNotExist
}

// For picks the reader for a dataset.
func For(ds datasets.Dataset, deps Deps) (Reader, error) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	log := deps.Log.With(zap.String("dataset", ds.Name))

	switch {
	case ds.Format == datasets.FormatDatabase:
		if deps.DB == nil {
			return nil, fmt.Errorf("dataset %q: database source requires a database connection", ds.Name)
		}
		return &DatabaseReader{dataset: ds, db: deps.DB, log: log}, nil
	case storage.IsRemote(ds.Path):
		if deps.Storage == nil {
			return nil, fmt.Errorf("dataset %q: s3 source requires storage to be enabled", ds.Name)
		}
		bucket, object, err := storage.ParseLocator(ds.Path)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", ds.Name, err)
		}
		return &S3Reader{
			dataset: ds,
			client:  deps.Storage,
			bucket:  bucket,
			object:  object,
			tempDir: deps.tempDir(),
			log:     log,
		}, nil
	default:
		return NewFileReader(ds, ds.Path, deps.tempDir(), log), nil
	}
}

// applyCustomSQL wraps a relation in the dataset's custom extraction expression.
// "{table}" in the expression is replaced by the relation.
func applyCustomSQL(customSQL, relation string) string {
	if strings.TrimSpace(customSQL) == "" {
		return relation
	}
	q := strings.TrimRight(strings.TrimSpace(customSQL), ";")
	return "(" + strings.ReplaceAll(q, "{table}", relation) + ")"
}

// loadAsText creates table as an all-VARCHAR copy of relation.
func loadAsText(ctx context.Context, sess *engine.Session, relation, table string) (int64, error) {
	probe, err := sess.Fetch(ctx, fmt.Sprintf("SELECT * FROM %s AS src LIMIT 0", relation))
	if err != nil {
		return 0, err
	}
	if len(probe.Columns) == 0 {
		return 0, fmt.Errorf("source has no columns")
	}

	casts := make([]string, len(probe.Columns))
	for i, c := range probe.Columns {
		casts[i] = fmt.Sprintf("CAST(%s AS VARCHAR) AS %s", engine.QuoteIdent(c), engine.QuoteIdent(c))
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT ROW_NUMBER() OVER () - 1 AS %s, %s FROM %s AS src",
		engine.QuoteIdent(table), engine.QuoteIdent(OrdinalColumn), strings.Join(casts, ", "), relation)
	if err := sess.Exec(ctx, stmt); err != nil {
		return 0, err
	}
	return sess.RowCount(ctx, table)
}
