package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "scenarioctl",
	Short: "Run scenarios against every combination of pending migrations",
	Long: "scenarioctl discovers the migrations of a network/deployment, enumerates every " +
		"subset of them and runs each scenario once per subset in a fresh world.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default .scenario.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("log-format", "text", "log format: text or json")
	flags.StringP("network", "n", "", "network to select (default: every registered network)")
	flags.StringP("deployment", "d", "", "deployment to select (default: every deployment of the network)")
	flags.String("deployments-dir", "deployments", "root of the <network>/<deployment>/migrations tree")
	flags.String("pattern", "", "only consider migrations whose name matches this glob")
	flags.Bool("include-empty", false, "also run the combination without migrations")
	flags.Int("max-size", 0, "largest combination to enumerate (0 means no limit)")
	flags.StringSlice("require", nil, "migrations every combination must contain")
	flags.String("store", "memory", "world backend: memory, sqlite, postgres or redis")

	bind := map[string]string{
		"verbose":         "verbose",
		"log_format":      "log-format",
		"network":         "network",
		"deployment":      "deployment",
		"deployments_dir": "deployments-dir",
		"pattern":         "pattern",
		"include_empty":   "include-empty",
		"max_size":        "max-size",
		"require":         "require",
		"store.backend":   "store",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".scenario")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// newLogger builds the process logger and installs it as the default.
func newLogger(format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
