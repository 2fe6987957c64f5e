package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/zmin/adapt"
	"github.com/joshuapare/zmin/internal/config"
	"github.com/joshuapare/zmin/internal/logger"
	"github.com/joshuapare/zmin/pkg/zmin"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	configPath string
	modeName   string
	snapPath   string
)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

var rootCmd = &cobra.Command{
	Use:   "zminctl",
	Short: "Minify JSON with adaptive strategy selection",
	Long: `zminctl minifies JSON documents. Each input is classified, routed to
the strategy expected to be fastest for its shape, and timed so later
routing improves. Learned state can be kept between runs with --snapshot.`,
	Version:       zmin.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output reports in JSON format")
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "Config file (default $"+config.EnvPath+")")
	rootCmd.PersistentFlags().StringVarP(&modeName, "mode", "m", "", "Mode: eco, sport or turbo")
	rootCmd.PersistentFlags().StringVar(&snapPath, "snapshot", "", "Warm-start state file")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file, then applies flag overrides.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}
	if modeName != "" {
		if cfg.Mode, err = adapt.ParseMode(modeName); err != nil {
			return config.Config{}, err
		}
	}
	if snapPath != "" {
		cfg.Snapshot.Path = snapPath
	}
	if verbose {
		cfg.Log.Enabled, cfg.Log.Level = true, slog.LevelDebug.String()
	}
	return cfg, nil
}

// openMinifier builds a Minifier from the resolved config.
func openMinifier() (*zmin.Minifier, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Init(cfg.LoggerOptions(stderr))
	return zmin.New(zmin.WithConfig(cfg), zmin.WithLogger(log))
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(stderr, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(stderr, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error { return printJSONTo(stdout, v) }
