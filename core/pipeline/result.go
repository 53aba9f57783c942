package pipeline

import (
	"time"

	"data-reconciler/core/lineage"
	"data-reconciler/core/reconcile"
	"data-reconciler/core/report"
	"data-reconciler/core/validation"
)

// DatasetOutcome is the staging and validation outcome of one dataset.
type DatasetOutcome struct {
	Name         string             `json:"name"`
	Rows         int64              `json:"rows"`
	Columns      []string           `json:"columns,omitempty"`
	FromCache    bool               `json:"from_cache"`
	DriftReasons []string           `json:"drift_reasons,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Validation   *validation.Report `json:"validation,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// ComparisonOutcome is the outcome of one comparison.
type ComparisonOutcome struct {
	Name      string             `json:"name"`
	Mode      string             `json:"mode,omitempty"`
	Result    *reconcile.Result  `json:"result,omitempty"`
	Summary   *reconcile.Summary `json:"summary,omitempty"`
	Artifacts *report.Artifacts  `json:"artifacts,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// RunResult collects every outcome of a run. Failures of one dataset or
// comparison are recorded here and never stop their siblings.
type RunResult struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Datasets    []DatasetOutcome    `json:"datasets"`
	Comparisons []ComparisonOutcome `json:"comparisons"`
	Lineage     *lineage.Lineage    `json:"lineage,omitempty"`
}

// Failed reports whether any comparison failed.
func (r *RunResult) Failed() bool {
	for _, c := range r.Comparisons {
		if c.Error != "" {
			return true
		}
	}
	return false
}

// Comparison looks up a comparison outcome by name.
func (r *RunResult) Comparison(name string) (*ComparisonOutcome, bool) {
	for i := range r.Comparisons {
		if r.Comparisons[i].Name == name {
			return &r.Comparisons[i], true
		}
	}
	return nil, false
}

// Dataset looks up a dataset outcome by name.
func (r *RunResult) Dataset(name string) (*DatasetOutcome, bool) {
	for i := range r.Datasets {
		if r.Datasets[i].Name == name {
			return &r.Datasets[i], true
		}
	}
	return nil, false
}
