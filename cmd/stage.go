package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var stageForce bool

// stageCmd stages datasets into the canonical table cache.
var stageCmd = &cobra.Command{
	Use:   "stage [dataset...]",
	Short: "Stage datasets into the canonical table cache",
	Long:  `Reads, normalizes and caches the named datasets, or every dataset when none are named. Fresh caches are reused unless --force is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.log.Sync()

		outcomes, err := env.runner.Stage(cmd.Context(), args, stageForce)
		if err != nil {
			return err
		}

		failed := 0
		fmt.Println("\n=== Staging ===")
		for _, d := range outcomes {
			if d.Error != "" {
				failed++
				fmt.Printf("%s: ERROR %s\n", d.Name, d.Error)
				continue
			}
			state := "staged"
			if d.FromCache {
				state = "cache hit"
			}
			fmt.Printf("%s: %d rows, %d columns (%s)\n", d.Name, d.Rows, len(d.Columns), state)
			if len(d.DriftReasons) > 0 {
				fmt.Printf("  drift: %s\n", strings.Join(d.DriftReasons, "; "))
			}
			for _, w := range d.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d datasets failed to stage", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	stageCmd.Flags().BoolVar(&stageForce, "force", false, "Restage even when the cache is fresh")
	RootCmd.AddCommand(stageCmd)
}
