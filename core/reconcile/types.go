package reconcile

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrorFlag classifies one value difference.
type ErrorFlag string

const (
	// FlagError is a difference counted as a hard error.
	FlagError ErrorFlag = "ERROR"
	// FlagUncounted is a real difference excluded from the error count by the date filter.
	FlagUncounted ErrorFlag = "MISMATCH_UNCOUNTED"
)

// Fixed value-difference columns, following the key columns.
const (
	ColColumnName        = "column_name"
	ColValueLeft         = "value_in_left"
	ColValueRight        = "value_in_right"
	ColRowNumberLeft     = "row_number_left"
	ColRowNumberRight    = "row_number_right"
	ColLastModifiedLeft  = "last_modified_left"
	ColLastModifiedRight = "last_modified_right"
	ColErrorFlag         = "error_flag"
)

// DiffColumns returns the column order of the value-difference table.
func DiffColumns(keys []string) []string {
	out := make([]string, 0, len(keys)+8)
	out = append(out, keys...)
	return append(out,
		ColColumnName, ColValueLeft, ColValueRight,
		ColRowNumberLeft, ColRowNumberRight,
		ColLastModifiedLeft, ColLastModifiedRight,
		ColErrorFlag)
}

// ErrNoCompareColumns is returned when column resolution leaves nothing to compare.
var ErrNoCompareColumns = errors.New("no columns to compare")

// KeyColumnError reports a comparison key absent from one side.
type KeyColumnError struct {
	Comparison string
	Side       string
	Dataset    string
	Column     string
	Available  []string
}

func (e *KeyColumnError) Error() string {
	return fmt.Sprintf("comparison %q: key column %q not found in %s dataset %q (available: %s)",
		e.Comparison, e.Column, e.Side, e.Dataset, strings.Join(e.Available, ", "))
}

// Result describes one comparison. The presence and difference relations
// live in the engine session under OnlyLeftTable, OnlyRightTable and DiffTable.
type Result struct {
	Name         string   `json:"name"`
	Left         string   `json:"left"`
	Right        string   `json:"right"`
	Keys         []string `json:"keys"`
	Columns      []string `json:"compare_columns"`
	TotalLeft    int64    `json:"total_left"`
	TotalRight   int64    `json:"total_right"`
	MatchedRows  int64    `json:"matched_rows"`
	OnlyInLeft   int64    `json:"only_in_left"`
	OnlyInRight  int64    `json:"only_in_right"`
	ValueDiffs   int64    `json:"value_differences"`
	ErrorDiffs   int64    `json:"error_differences"`
	Uncounted    int64    `json:"uncounted_differences"`
	// Chunked results carry aggregates only; the relations are empty.
	Chunked  bool     `json:"chunked"`
	Windows  int64    `json:"windows,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	OnlyLeftTable  string `json:"-"`
	OnlyRightTable string `json:"-"`
	DiffTable      string `json:"-"`
}

// Summary holds the derived rates of a result.
type Summary struct {
	MatchRate            float64 `json:"match_rate"`
	TotalUniqueRecords   int64   `json:"total_unique_records"`
	LeftCoverage         float64 `json:"left_coverage"`
	RightCoverage        float64 `json:"right_coverage"`
	DifferenceRate       float64 `json:"difference_rate"`
	ErrorDifferences     int64   `json:"error_differences"`
	UncountedDifferences int64   `json:"uncounted_differences"`
}

// Summary derives rates from the counts. Percentages have two decimals.
func (r *Result) Summary() Summary {
	unique := r.TotalLeft + r.TotalRight - r.MatchedRows
	return Summary{
		MatchRate:            rate(r.MatchedRows, unique),
		TotalUniqueRecords:   unique,
		LeftCoverage:         rate(r.MatchedRows, r.TotalLeft),
		RightCoverage:        rate(r.MatchedRows, r.TotalRight),
		DifferenceRate:       rate(r.ValueDiffs, r.MatchedRows),
		ErrorDifferences:     r.ErrorDiffs,
		UncountedDifferences: r.Uncounted,
	}
}

func rate(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(10000*float64(part)/float64(total)) / 100
}

// TableNames returns the engine relation names used for comparison name.
func TableNames(name string) (onlyLeft, onlyRight, diffs string) {
	base := "cmp_" + name
	return base + "__only_left", base + "__only_right", base + "__diffs"
}
