package comparison

import (
	"context"
	"errors"
	"sync"

	"data-reconciler/core/datasets"
	"data-reconciler/core/pipeline"

	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a run is requested while another one is active.
var ErrRunInProgress = errors.New("a reconciliation run is already in progress")

// Info describes one configured comparison.
type Info struct {
	Name           string   `json:"name"`
	Left           string   `json:"left"`
	Right          string   `json:"right"`
	Keys           []string `json:"keys"`
	CompareColumns []string `json:"compare_columns,omitempty"`
	Mode           string   `json:"mode"`
	NumericRound   *int     `json:"numeric_round,omitempty"`
	Cutoff         string   `json:"cutoff,omitempty"`
	Operator       string   `json:"operator,omitempty"`
	MaxDifferences int      `json:"max_differences,omitempty"`
}

// Service runs the pipeline for HTTP and scheduled callers, one run at a time.
type Service struct {
	runner *pipeline.Runner
	logger *zap.Logger

	running sync.Mutex
	mu      sync.RWMutex
	last    *pipeline.RunResult
}

// NewService creates a new comparison service.
func NewService(runner *pipeline.Runner, logger *zap.Logger) *Service {
	return &Service{runner: runner, logger: logger}
}

// Comparisons lists the configured comparisons in file order.
func (s *Service) Comparisons() []Info {
	file := s.runner.File()
	out := make([]Info, 0, len(file.Comparisons))
	for _, c := range file.Comparisons {
		info := Info{
			Name:           c.Name,
			Left:           c.Left,
			Right:          c.Right,
			Keys:           c.Keys,
			CompareColumns: c.CompareColumns,
			Mode:           string(c.Mode),
			NumericRound:   c.NumericRound,
			MaxDifferences: c.MaxDifferences,
		}
		if info.Mode == "" {
			info.Mode = string(datasets.ModeFull)
		}
		if c.DateFilter != nil {
			info.Cutoff = c.DateFilter.Cutoff.Format("2006-01-02")
			info.Operator = string(c.DateFilter.Operator)
		}
		out = append(out, info)
	}
	return out
}

// Run executes the pipeline unless a run is already active, and keeps the
// result as the last run.
func (s *Service) Run(ctx context.Context, opts pipeline.Options) (*pipeline.RunResult, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	res, err := s.runner.Run(ctx, opts)
	if res != nil {
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
	}
	return res, err
}

// Last returns the result of the most recent run.
func (s *Service) Last() (*pipeline.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}
