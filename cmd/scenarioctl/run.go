package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aatuh/scenario/manifest"
	"github.com/aatuh/scenario/runner"
	"github.com/aatuh/scenario/world"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [scenario...]",
	Short: "Run scenarios against every solution",
	Long: "run loads the scenario files from the scenarios directory and runs each of them " +
		"once per combination of migrations. Positional arguments restrict the run to the " +
		"named scenarios.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		return executeRun(cmd.Context(), a, cmd.OutOrStdout(), args, metricsFile)
	},
}

func init() {
	runCmd.Flags().String("scenarios-dir", "scenarios", "directory holding scenario files")
	runCmd.Flags().IntP("parallelism", "p", 4, "solutions run concurrently per scenario")
	runCmd.Flags().String("proposer", "", "actor migrations are submitted by")
	runCmd.Flags().Bool("fresh-world", true, "fork a fresh world for every solution")
	runCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file after the run")
	_ = viper.BindPFlag("scenarios_dir", runCmd.Flags().Lookup("scenarios-dir"))
	_ = viper.BindPFlag("parallelism", runCmd.Flags().Lookup("parallelism"))
	_ = viper.BindPFlag("proposer", runCmd.Flags().Lookup("proposer"))
	_ = viper.BindPFlag("fresh_world", runCmd.Flags().Lookup("fresh-world"))
	rootCmd.AddCommand(runCmd)
}

func executeRun(ctx context.Context, a *app, out io.Writer, only []string, metricsFile string) error {
	scenarios, err := manifest.LoadScenarios(a.cfg.ScenariosDir)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		scenarios = selectScenarios(scenarios, only)
	}
	if len(scenarios) == 0 {
		a.logger.Warn("no scenarios to run", "dir", a.cfg.ScenariosDir)
		return nil
	}

	metrics := runner.NewMetrics()
	r := &runner.Runner{
		Solver:      a.solver(),
		Parallelism: a.cfg.Parallelism,
		Logger:      a.logger,
		Metrics:     metrics,
	}
	if a.cfg.FreshWorld {
		r.Worlds = world.Factory()
	}

	var failures []error
	passed, failed := 0, 0
	for _, scope := range a.scopes {
		base := a.baseWorld(scope)
		for _, sc := range scenarios {
			results, err := r.Run(ctx, base, sc)
			for _, res := range results {
				status := "ok"
				if !res.Passed() {
					status = "FAIL"
					failed++
				} else {
					passed++
				}
				fmt.Fprintf(out, "%-4s %s %s %s (%s)\n", status, scope, sc.Name, res.Solution, res.Duration.Round(time.Millisecond))
			}
			if err != nil {
				failures = append(failures, err)
			}
		}
	}
	fmt.Fprintf(out, "%d passed, %d failed\n", passed, failed)

	if metricsFile != "" {
		if err := metrics.WriteFile(metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return errors.Join(failures...)
}

func selectScenarios(all []runner.Scenario, names []string) []runner.Scenario {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []runner.Scenario
	for _, sc := range all {
		if want[sc.Name] {
			out = append(out, sc)
		}
	}
	return out
}
