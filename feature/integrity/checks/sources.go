package checks

import (
	"fmt"
	"sort"
	"strings"

	"data-reconciler/core/database"
	"data-reconciler/core/datasets"
	"data-reconciler/core/normalize"

	"gorm.io/gorm"
)

// SourcesReport strictly types the result of a database source check.
type SourcesReport struct {
	Matched  bool                    `json:"matched"`
	Datasets map[string]SourceReport `json:"datasets"`
	Errors   []string                `json:"errors"`
}

type SourceReport struct {
	Table          string   `json:"table"`
	MissingColumns []string `json:"missing_columns"`
	Status         string   `json:"status"` // "ok", "error", "skipped"
}

// CheckSources verifies that the tables behind database datasets carry every
// key, mapped and last-modified column the dataset configuration refers to.
// Query-backed datasets are skipped.
func CheckSources(db *gorm.DB, file *datasets.File) (*SourcesReport, error) {
	report := &SourcesReport{
		Matched:  true,
		Datasets: make(map[string]SourceReport),
	}

	for _, name := range file.DatasetNames() {
		ds, _ := file.Dataset(name)
		if ds.Format != datasets.FormatDatabase {
			continue
		}
		if db == nil {
			return nil, fmt.Errorf("database connection is nil")
		}

		rep := SourceReport{Table: ds.Path, MissingColumns: []string{}, Status: StatusOK}
		if database.IsQuery(ds.Path) || strings.TrimSpace(ds.CustomSQL) != "" {
			rep.Status = StatusSkipped
			report.Datasets[name] = rep
			continue
		}

		actual, err := database.GetTableColumns(db, ds.Path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Failed to inspect table %s: %v", ds.Path, err))
			report.Matched = false
			rep.Status = StatusError
			report.Datasets[name] = rep
			continue
		}

		present := make(map[string]bool, len(actual)*2)
		for _, col := range actual {
			present[col.Field] = true
			present[normalize.CanonicalName(col.Field)] = true
		}
		for _, col := range expectedColumns(ds) {
			if present[strings.ToLower(col)] || present[normalize.CanonicalName(col)] {
				continue
			}
			rep.MissingColumns = append(rep.MissingColumns, col)
		}
		if len(rep.MissingColumns) > 0 {
			rep.Status = StatusError
			report.Matched = false
		}
		report.Datasets[name] = rep
	}

	return report, nil
}

// expectedColumns lists the source column names a dataset depends on.
func expectedColumns(ds *datasets.Dataset) []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}

	sourceOf := func(canonical string) string {
		if src, ok := ds.SourceFor(canonical); ok {
			return src
		}
		return canonical
	}
	for _, k := range ds.Keys {
		add(sourceOf(k))
	}
	if ds.LastModifiedColumn != "" {
		add(sourceOf(ds.LastModifiedColumn))
	}
	mapped := make([]string, 0, len(ds.Mapping))
	for _, m := range ds.Mapping {
		mapped = append(mapped, m.Source)
	}
	sort.Strings(mapped)
	for _, m := range mapped {
		add(m)
	}
	return cols
}
