package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type solveOutput struct {
	Network    string     `yaml:"network"`
	Deployment string     `yaml:"deployment"`
	Solutions  [][]string `yaml:"solutions"`
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Print every combination of migrations a scenario would run with",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output != "text" && output != "yaml" {
			return fmt.Errorf("unsupported output %q", output)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		solver := a.solver()
		var results []solveOutput
		for _, scope := range a.scopes {
			solutions, err := solver.Solve(a.baseWorld(scope))
			if err != nil {
				return err
			}
			res := solveOutput{Network: scope.Network, Deployment: scope.Deployment}
			for _, sol := range solutions {
				res.Solutions = append(res.Solutions, sol.Combination.Names())
			}
			results = append(results, res)
		}

		out := cmd.OutOrStdout()
		if output == "yaml" {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(results); err != nil {
				return err
			}
			return enc.Close()
		}
		for _, res := range results {
			fmt.Fprintf(out, "%s/%s: %d solutions\n", res.Network, res.Deployment, len(res.Solutions))
			for _, names := range res.Solutions {
				fmt.Fprintf(out, "  %v\n", names)
			}
		}
		return nil
	},
}

func init() {
	solveCmd.Flags().StringP("output", "o", "text", "output format: text or yaml")
	rootCmd.AddCommand(solveCmd)
}
