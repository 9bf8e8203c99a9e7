package main

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/aatuh/scenario/manifest"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [scenario...]",
	Short: "Re-run scenarios whenever a migration or scenario file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		debounce, _ := cmd.Flags().GetDuration("debounce")
		out := cmd.OutOrStdout()
		// Both watchers report on their own goroutines.
		var mu sync.Mutex
		rerun := func(c manifest.Change) {
			mu.Lock()
			defer mu.Unlock()
			a.logger.Info("re-running scenarios", "changed", c.Paths)
			if err := a.loadTree(); err != nil {
				a.logger.Error("failed to reload deployments", "error", err)
				return
			}
			if err := executeRun(ctx, a, out, args, ""); err != nil {
				a.logger.Error("scenario run failed", "error", err)
			}
		}

		var watchers []*manifest.Watcher
		defer func() {
			for _, w := range watchers {
				_ = w.Stop()
			}
		}()
		for _, dir := range []string{a.cfg.DeploymentsDir, a.cfg.ScenariosDir} {
			w := manifest.NewWatcher(dir, rerun,
				manifest.WithDebounce(debounce),
				manifest.WithWatcherLogger(a.logger))
			if err := w.Start(); err != nil {
				return err
			}
			watchers = append(watchers, w)
		}

		mu.Lock()
		if err := executeRun(ctx, a, out, args, ""); err != nil {
			a.logger.Error("scenario run failed", "error", err)
		}
		mu.Unlock()
		a.logger.Info("watching for changes", "deployments", a.cfg.DeploymentsDir, "scenarios", a.cfg.ScenariosDir)
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", manifest.DefaultDebounce, "quiet period before a change triggers a run")
	rootCmd.AddCommand(watchCmd)
}
