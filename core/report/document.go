package report

import (
	"time"

	"data-reconciler/core/lineage"
	"data-reconciler/core/reconcile"
	"data-reconciler/core/validation"
)

// ValidationSummary condenses one dataset's validation report.
type ValidationSummary struct {
	Valid    bool   `json:"valid"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
	Summary  string `json:"summary"`
}

// Summarize condenses r. A nil report yields nil.
func Summarize(r *validation.Report) *ValidationSummary {
	if r == nil {
		return nil
	}
	return &ValidationSummary{
		Valid:    r.Valid,
		Errors:   len(r.Errors()),
		Warnings: len(r.Warnings()),
		Summary:  validation.Summary(r),
	}
}

// Document is the consolidated JSON report of one comparison.
type Document struct {
	Comparison  string                        `json:"comparison"`
	Left        string                        `json:"left"`
	Right       string                        `json:"right"`
	RunID       string                        `json:"run_id,omitempty"`
	GeneratedAt time.Time                     `json:"generated_at"`
	Counts      *reconcile.Result             `json:"counts"`
	Summary     reconcile.Summary             `json:"summary"`
	OnlyInLeft  []map[string]any              `json:"only_in_left"`
	OnlyInRight []map[string]any              `json:"only_in_right"`
	Differences []map[string]any              `json:"value_differences"`
	Truncated   bool                          `json:"truncated"`
	Validation  map[string]*ValidationSummary `json:"validation,omitempty"`
	Notes       []string                      `json:"notes,omitempty"`
	Files       []string                      `json:"files"`
	Lineage     *lineage.Lineage              `json:"lineage,omitempty"`
}
