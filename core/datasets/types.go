package datasets

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"data-reconciler/core/normalize"
)

// Format is the physical format of a dataset source.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatParquet  Format = "parquet"
	FormatExcel    Format = "excel"
	FormatJSON     Format = "json"
	FormatDatabase Format = "database"
)

// FormatFromPath infers a format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, true
	case ".parquet", ".pq":
		return FormatParquet, true
	case ".xlsx", ".xls":
		return FormatExcel, true
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, true
	default:
		return "", false
	}
}

func parseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "tsv", "txt":
		return FormatCSV, true
	case "parquet":
		return FormatParquet, true
	case "excel", "xlsx", "xls":
		return FormatExcel, true
	case "json", "jsonl", "ndjson":
		return FormatJSON, true
	case "database", "db", "sql", "mysql", "sqlite":
		return FormatDatabase, true
	default:
		return "", false
	}
}

// Mapping renames one source column to a canonical column.
type Mapping struct {
	Source    string
	Canonical string
}

// Dataset is a resolved dataset definition.
type Dataset struct {
	Name    string
	Path    string
	Format  Format
	Keys    []string
	Mapping []Mapping
	// DTypes holds declared canonical column types.
	DTypes      map[string]normalize.ColumnType
	Normalizers map[string][]normalize.NormalizerKind
	Converters  map[string]normalize.ConverterKind
	// LastModifiedColumn is the canonical column feeding the lastModified synthetic column.
	LastModifiedColumn string
	ExcludeColumns     []string
	CustomSQL          string
	InferTypes         bool
	ChunkSize          int
}

// IsRemote reports whether the dataset is read from object storage.
func (d *Dataset) IsRemote() bool {
	return strings.HasPrefix(d.Path, "s3://")
}

// CanonicalFor returns the canonical name for a source column, applying the
// column map first and canonical naming otherwise.
func (d *Dataset) CanonicalFor(source string) string {
	key := normalize.CanonicalName(source)
	for _, m := range d.Mapping {
		if m.Source == source || normalize.CanonicalName(m.Source) == key {
			return m.Canonical
		}
	}
	return key
}

// SourceFor returns the configured source column mapped to canonical, if any.
func (d *Dataset) SourceFor(canonical string) (string, bool) {
	for _, m := range d.Mapping {
		if m.Canonical == canonical {
			return m.Source, true
		}
	}
	return "", false
}

// IsExcluded reports whether a canonical column is dropped at staging.
func (d *Dataset) IsExcluded(canonical string) bool {
	for _, c := range d.ExcludeColumns {
		if c == canonical {
			return true
		}
	}
	return false
}

// Operator is a date cutoff comparison operator.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "="
)

// ParseOperator validates a configured operator.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual:
		return op, nil
	case "==":
		return OpEqual, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Holds reports whether "d op cutoff" is true.
func (o Operator) Holds(d, cutoff time.Time) bool {
	switch o {
	case OpLess:
		return d.Before(cutoff)
	case OpLessEqual:
		return !d.After(cutoff)
	case OpGreater:
		return d.After(cutoff)
	case OpGreaterEqual:
		return !d.Before(cutoff)
	case OpEqual:
		return d.Equal(cutoff)
	default:
		return false
	}
}

// DateFilter classifies value differences by recency.
type DateFilter struct {
	Cutoff   time.Time
	Operator Operator
}

// Mode selects how a comparison is executed.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeChunked Mode = "chunked"
	ModeAuto    Mode = "auto"
)

// Comparison is a resolved comparison definition.
type Comparison struct {
	Name           string
	Left           string
	Right          string
	Keys           []string
	CompareColumns []string
	// NumericRound is the rounding precision for float and currency columns; nil disables rounding.
	NumericRound   *int
	DateFilter     *DateFilter
	Mode           Mode
	MaxDifferences int
}

// WithCutoff returns a copy whose date filter uses cutoff.
// A comparison without a filter gets one with the >= operator.
func (c *Comparison) WithCutoff(cutoff time.Time) *Comparison {
	out := *c
	op := OpGreaterEqual
	if c.DateFilter != nil {
		op = c.DateFilter.Operator
	}
	out.DateFilter = &DateFilter{Cutoff: cutoff, Operator: op}
	return &out
}

// ValidationOptions configures the validation pipeline.
type ValidationOptions struct {
	FailFast bool
	// SampleSize bounds the values inspected by type checks.
	SampleSize int
}

// File is a fully resolved datasets file.
type File struct {
	Path        string
	Datasets    map[string]*Dataset
	Comparisons []*Comparison
	Validation  ValidationOptions
}

// Dataset looks up a dataset by name.
func (f *File) Dataset(name string) (*Dataset, bool) {
	d, ok := f.Datasets[name]
	return d, ok
}

// Comparison looks up a comparison by name.
func (f *File) Comparison(name string) (*Comparison, bool) {
	for _, c := range f.Comparisons {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// DatasetNames returns dataset names in first-use order across comparisons,
// followed by datasets no comparison uses, sorted.
func (f *File) DatasetNames() []string {
	seen := make(map[string]struct{}, len(f.Datasets))
	var names []string
	for _, c := range f.Comparisons {
		for _, n := range []string{c.Left, c.Right} {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	var rest []string
	for n := range f.Datasets {
		if _, ok := seen[n]; !ok {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
