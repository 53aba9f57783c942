package lineage

import (
	"sync"
	"time"

	"data-reconciler/core/reconcile"
	"data-reconciler/core/source"
	"data-reconciler/core/staging"

	"github.com/google/uuid"
)

// PipelineVersion is recorded in every lineage block.
const PipelineVersion = "2.0.0"

// Dataset is the lineage of one staged dataset.
type Dataset struct {
	Name            string             `json:"name"`
	Source          string             `json:"source"`
	Format          string             `json:"format"`
	Fingerprint     source.Fingerprint `json:"fingerprint"`
	Rows            int64              `json:"rows"`
	Columns         int                `json:"columns"`
	FromCache       bool               `json:"from_cache"`
	DriftReasons    []string           `json:"drift_reasons,omitempty"`
	Transformations []string           `json:"transformations"`
	StagedAt        time.Time          `json:"staged_at"`
}

// Comparison is the lineage of one comparison.
type Comparison struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Left        string    `json:"left"`
	Right       string    `json:"right"`
	Keys        []string  `json:"keys"`
	Columns     []string  `json:"compare_columns"`
	MatchedRows int64     `json:"matched_rows"`
	OnlyInLeft  int64     `json:"only_in_left"`
	OnlyInRight int64     `json:"only_in_right"`
	ValueDiffs  int64     `json:"value_differences"`
	Chunked     bool      `json:"chunked"`
	Outputs     []string  `json:"output_files"`
	Duration    float64   `json:"processing_time_seconds"`
	At          time.Time `json:"timestamp"`
}

// Phase is the outcome of one timed pipeline phase.
type Phase struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_seconds"`
	Error    string  `json:"error,omitempty"`
}

// Node is a vertex of the data-flow graph.
type Node struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source,omitempty"`
	Rows        int64  `json:"rows,omitempty"`
	Matched     int64  `json:"matched,omitempty"`
	Differences int64  `json:"differences,omitempty"`
}

// Edge connects a dataset to a comparison.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Flow is the data-flow graph of a run.
type Flow struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Summary aggregates a run.
type Summary struct {
	DatasetsProcessed    int     `json:"datasets_processed"`
	ComparisonsPerformed int     `json:"comparisons_performed"`
	TotalSourceSizeMB    float64 `json:"total_source_size_mb"`
	TotalRowsProcessed   int64   `json:"total_rows_processed"`
	TotalTransformations int     `json:"total_transformations"`
}

// Lineage is the lineage block attached to reports.
type Lineage struct {
	RunID           string             `json:"run_id"`
	PipelineVersion string             `json:"pipeline_version"`
	StartedAt       time.Time          `json:"start_time"`
	EndedAt         time.Time          `json:"end_time"`
	DurationSeconds float64            `json:"total_duration_seconds"`
	Summary         Summary            `json:"summary"`
	Datasets        map[string]Dataset `json:"datasets"`
	Comparisons     []Comparison       `json:"comparisons"`
	Phases          []Phase            `json:"phases"`
	DataFlow        Flow               `json:"data_flow"`
}

// Tracker collects lineage during one pipeline run. It is safe for
// concurrent use and implements logger.PhaseObserver.
type Tracker struct {
	mu          sync.Mutex
	runID       string
	started     time.Time
	now         func() time.Time
	datasets    map[string]Dataset
	order       []string
	comparisons []Comparison
	phases      []Phase
}

// NewTracker starts tracking a run with a fresh run id.
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	return &Tracker{
		runID:    uuid.NewString(),
		started:  now(),
		now:      now,
		datasets: make(map[string]Dataset),
	}
}

// RunID returns the run identifier.
func (t *Tracker) RunID() string {
	return t.runID
}

// TrackDataset records a staged table. A restaged dataset replaces its entry.
func (t *Tracker) TrackDataset(src string, table *staging.Table) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.datasets[table.Dataset]; !ok {
		t.order = append(t.order, table.Dataset)
	}
	t.datasets[table.Dataset] = Dataset{
		Name:            table.Dataset,
		Source:          src,
		Format:          string(table.Fingerprint.Format),
		Fingerprint:     table.Fingerprint,
		Rows:            table.RowCount,
		Columns:         len(table.Columns),
		FromCache:       table.FromCache,
		DriftReasons:    table.DriftReasons,
		Transformations: append([]string{}, table.Transformations...),
		StagedAt:        table.StagedAt,
	}
}

// TrackComparison records a finished comparison and returns its lineage id.
func (t *Tracker) TrackComparison(res *reconcile.Result, outputs []string, took time.Duration) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := t.now()
	id := res.Left + "_vs_" + res.Right + "_" + at.Format("20060102_150405")
	t.comparisons = append(t.comparisons, Comparison{
		ID:          id,
		Name:        res.Name,
		Left:        res.Left,
		Right:       res.Right,
		Keys:        res.Keys,
		Columns:     res.Columns,
		MatchedRows: res.MatchedRows,
		OnlyInLeft:  res.OnlyInLeft,
		OnlyInRight: res.OnlyInRight,
		ValueDiffs:  res.ValueDiffs,
		Chunked:     res.Chunked,
		Outputs:     outputs,
		Duration:    took.Seconds(),
		At:          at,
	})
	return id
}

// ObservePhase records a phase outcome.
func (t *Tracker) ObservePhase(name string, d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := Phase{Name: name, Duration: d.Seconds()}
	if err != nil {
		p.Error = err.Error()
	}
	t.phases = append(t.phases, p)
}

// Report snapshots the lineage collected so far.
func (t *Tracker) Report() *Lineage {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.now()
	l := &Lineage{
		RunID:           t.runID,
		PipelineVersion: PipelineVersion,
		StartedAt:       t.started,
		EndedAt:         end,
		DurationSeconds: end.Sub(t.started).Seconds(),
		Datasets:        make(map[string]Dataset, len(t.datasets)),
		Comparisons:     append([]Comparison{}, t.comparisons...),
		Phases:          append([]Phase{}, t.phases...),
		DataFlow:        Flow{Nodes: []Node{}, Edges: []Edge{}},
	}

	var bytes int64
	for _, name := range t.order {
		ds := t.datasets[name]
		l.Datasets[name] = ds
		l.Summary.TotalRowsProcessed += ds.Rows
		l.Summary.TotalTransformations += len(ds.Transformations)
		if ds.Fingerprint.SizeBytes > 0 {
			bytes += ds.Fingerprint.SizeBytes
		}
		l.DataFlow.Nodes = append(l.DataFlow.Nodes, Node{ID: name, Type: "dataset", Source: ds.Source, Rows: ds.Rows})
	}
	l.Summary.DatasetsProcessed = len(t.datasets)
	l.Summary.ComparisonsPerformed = len(t.comparisons)
	l.Summary.TotalSourceSizeMB = float64(bytes*100/(1<<20)) / 100

	for _, c := range t.comparisons {
		l.DataFlow.Edges = append(l.DataFlow.Edges,
			Edge{From: c.Left, To: c.ID, Type: "comparison"},
			Edge{From: c.Right, To: c.ID, Type: "comparison"})
		l.DataFlow.Nodes = append(l.DataFlow.Nodes, Node{ID: c.ID, Type: "comparison", Matched: c.MatchedRows, Differences: c.ValueDiffs})
	}
	return l
}
