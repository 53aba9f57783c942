package cmd

import (
	"encoding/json"
	"fmt"

	"data-reconciler/core/validation"

	"github.com/spf13/cobra"
)

var (
	validateFailFast bool
	validateJSON     bool
)

// validateCmd stages datasets and runs the validation checks against them.
var validateCmd = &cobra.Command{
	Use:   "validate [dataset...]",
	Short: "Validate staged datasets",
	Long:  `Runs the schema, type sanity, key and duplicate checks against the named datasets, or every dataset when none are named. Prints JSON with --json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.log.Sync()

		opts := env.file.Validation
		if cmd.Flags().Changed("fail-fast") {
			opts.FailFast = validateFailFast
		}

		outcomes, err := env.runner.Validate(cmd.Context(), args, opts)
		if err != nil {
			return err
		}

		invalid := 0
		for _, d := range outcomes {
			if d.Error != "" || (d.Validation != nil && !d.Validation.Valid) {
				invalid++
			}
		}

		if validateJSON {
			data, err := json.MarshalIndent(outcomes, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			fmt.Println("\n=== Validation ===")
			for _, d := range outcomes {
				if d.Error != "" {
					fmt.Printf("%s: ERROR %s\n", d.Name, d.Error)
					continue
				}
				fmt.Printf("%s: %s\n", d.Name, validation.Summary(d.Validation))
				for _, issue := range d.Validation.Issues {
					fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Category, issue.Message)
				}
			}
		}

		if invalid > 0 {
			return fmt.Errorf("%d of %d datasets failed validation", invalid, len(outcomes))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateFailFast, "fail-fast", false, "Stop at the first check that reports an error")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the reports as JSON")
	RootCmd.AddCommand(validateCmd)
}
