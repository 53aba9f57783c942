package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// keysCmd ranks the columns two datasets share as join key candidates.
var keysCmd = &cobra.Command{
	Use:   "keys <left> <right>",
	Short: "Suggest key columns for a dataset pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.log.Sync()

		candidates, err := env.runner.KeyCandidates(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Printf("%s and %s share no columns\n", args[0], args[1])
			return nil
		}

		fmt.Printf("\n=== Key Candidates: %s vs %s ===\n", args[0], args[1])
		fmt.Printf("%-24s %10s %10s %8s %8s\n", "COLUMN", "LEFT", "RIGHT", "UNIQUE", "SCORE")
		for _, c := range candidates {
			unique := "no"
			if c.Left.IsKey() && c.Right.IsKey() {
				unique = "yes"
			}
			fmt.Printf("%-24s %9.2f%% %9.2f%% %8s %8.4f\n", c.Column, c.Left.Ratio*100, c.Right.Ratio*100, unique, c.Score())
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(keysCmd)
}
