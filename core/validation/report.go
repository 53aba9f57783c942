package validation

import "math"

// Severity ranks a validation issue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Issue is one finding of a check.
type Issue struct {
	Severity Severity       `json:"severity"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Report collects the findings of every check run against one dataset.
type Report struct {
	Dataset   string         `json:"dataset"`
	Valid     bool           `json:"valid"`
	Issues    []Issue        `json:"issues"`
	Stats     map[string]any `json:"stats"`
	ChecksRun []string       `json:"checks_run"`
}

func newReport(dataset string) *Report {
	return &Report{Dataset: dataset, Valid: true, Issues: []Issue{}, Stats: map[string]any{}}
}

// Add records an issue. An ERROR marks the report invalid.
func (r *Report) Add(sev Severity, category, message string, details map[string]any) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Category: category, Message: message, Details: details})
	if sev == SeverityError {
		r.Valid = false
	}
}

// Errors returns the ERROR issues.
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the WARNING issues.
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// merge appends other's issues and stats. Existing stats keys are kept.
func (r *Report) merge(other *Report) {
	for _, i := range other.Issues {
		r.Add(i.Severity, i.Category, i.Message, i.Details)
	}
	for k, v := range other.Stats {
		if _, exists := r.Stats[k]; !exists {
			r.Stats[k] = v
		}
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(10000*float64(part)/float64(total)) / 100
}
