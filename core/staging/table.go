package staging

import (
	"fmt"
	"strings"
	"time"

	"data-reconciler/core/normalize"
	"data-reconciler/core/source"
)

// Synthetic columns added to every canonical table.
const (
	RowNumberColumn    = "__row_number"
	LastModifiedColumn = "__last_modified"
)

// Column is one canonical column.
type Column struct {
	Name string               `json:"name"`
	Type normalize.ColumnType `json:"type"`
}

// Table is a staged canonical table living in the engine session.
// It is replaced wholesale on restage and never mutated in place.
type Table struct {
	// Name is the engine table name.
	Name    string
	Dataset string
	// Columns are the canonical columns, excluding synthetic ones, in staging order.
	Columns          []Column
	Keys             []string
	RowCount         int64
	FromCache        bool
	HasLastModified  bool
	Fingerprint      source.Fingerprint
	CoercionFailures map[string]int64
	Warnings         []string
	DriftReasons     []string
	Transformations  []string
	StagedAt         time.Time
}

// ColumnNames returns the canonical column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a canonical column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// TotalCoercionFailures sums failures over all columns.
func (t *Table) TotalCoercionFailures() int64 {
	var n int64
	for _, v := range t.CoercionFailures {
		n += v
	}
	return n
}

// TableName is the engine table holding the canonical rows of a dataset.
func TableName(dataset string) string {
	return "stg_" + dataset
}

// KeyColumnError reports a configured key column that the source cannot provide.
type KeyColumnError struct {
	Dataset   string
	Column    string
	Available []string
}

func (e *KeyColumnError) Error() string {
	return fmt.Sprintf("dataset %q: key column %q is not available after mapping (available: %s)",
		e.Dataset, e.Column, strings.Join(e.Available, ", "))
}
