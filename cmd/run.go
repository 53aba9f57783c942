package cmd

import (
	"fmt"

	"data-reconciler/core/datasets"
	"data-reconciler/core/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for run command
	runPair         string
	runCutoff       string
	runForceRestage bool
)

// runCmd runs the full stage, validate, compare and report pipeline.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile configured dataset pairs",
	Long: `Stages every dataset used by the selected comparisons, validates them,
compares each pair and writes CSV and JSON reports.

Examples:
  # Every comparison
  run

  # One pair, classifying differences against a cutoff date
  run --pair ledger_bank --cutoff 2024-06-30

  # Ignore cached canonical tables
  run --force-restage`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runPair, "pair", "", "Run only the named comparison")
	runCmd.Flags().StringVar(&runCutoff, "cutoff", "", "Override the date filter cutoff (YYYY-MM-DD)")
	runCmd.Flags().BoolVar(&runForceRestage, "force-restage", false, "Restage datasets even when the cache is fresh")

	RootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	opts := pipeline.Options{Pair: runPair, ForceRestage: runForceRestage}
	if runCutoff != "" {
		cutoff, err := datasets.ParseCutoff(runCutoff)
		if err != nil {
			return err
		}
		opts.Cutoff = &cutoff
	}

	env, err := setup()
	if err != nil {
		return err
	}
	defer env.log.Sync()

	res, err := env.runner.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	printRunResult(res)

	failed := 0
	for _, c := range res.Comparisons {
		if c.Error != "" {
			env.log.Error("Comparison failed", zap.String("comparison", c.Name), zap.String("error", c.Error))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d comparisons failed", failed, len(res.Comparisons))
	}
	return nil
}

// printRunResult prints per-dataset and per-comparison metrics.
func printRunResult(res *pipeline.RunResult) {
	fmt.Printf("\n=== Run %s ===\n", res.RunID)
	for _, d := range res.Datasets {
		if d.Error != "" {
			fmt.Printf("Dataset %s: ERROR %s\n", d.Name, d.Error)
			continue
		}
		source := "staged"
		if d.FromCache {
			source = "cache"
		}
		fmt.Printf("Dataset %s: %d rows (%s)\n", d.Name, d.Rows, source)
	}

	for _, c := range res.Comparisons {
		fmt.Printf("\n--- %s ---\n", c.Name)
		if c.Error != "" {
			fmt.Printf("Error: %s\n", c.Error)
			continue
		}
		r, s := c.Result, c.Summary
		fmt.Printf("Mode: %s\n", c.Mode)
		fmt.Printf("Rows: %d left, %d right\n", r.TotalLeft, r.TotalRight)
		fmt.Printf("Matched: %d (%.2f%% match rate)\n", r.MatchedRows, s.MatchRate)
		fmt.Printf("Only In Left: %d\n", r.OnlyInLeft)
		fmt.Printf("Only In Right: %d\n", r.OnlyInRight)
		fmt.Printf("Value Differences: %d (%d error, %d uncounted)\n", r.ValueDiffs, r.ErrorDiffs, r.Uncounted)
		if c.Artifacts != nil {
			for _, f := range c.Artifacts.Files() {
				fmt.Printf("Report: %s\n", f)
			}
		}
	}
	fmt.Printf("\nExecution Time: %s\n", res.FinishedAt.Sub(res.StartedAt))
}
