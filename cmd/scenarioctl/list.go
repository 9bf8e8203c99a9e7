package main

import (
	"fmt"

	"github.com/aatuh/scenario"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the migrations registered for each network/deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		for _, scope := range a.scopes {
			migs, err := a.registry.Discover(scenario.Selector{Scope: scope, Pattern: a.cfg.Pattern})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (%d migrations)\n", scope, len(migs))
			for _, m := range migs {
				if m.Description != "" {
					fmt.Fprintf(out, "  %s  %s\n", m.Name, m.Description)
				} else {
					fmt.Fprintf(out, "  %s\n", m.Name)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
