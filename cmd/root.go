// Package cmd holds the nivaasika command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nivaasika/nivaasika-engine/pkg/config"
	"github.com/nivaasika/nivaasika-engine/pkg/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	version   = "dev"

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nivaasika",
	Short: "Nivaasika - property inspection engine",
	Long: `Nivaasika runs the property inspection pipeline: sellers list homes,
inspectors record defects room by room with help from a vision model,
and buyers browse risk-scored reports with renovation estimates.

Examples:
  # Run the HTTP API
  nivaasika serve

  # Apply database migrations
  nivaasika migrate up

  # Load improvement rules from YAML
  nivaasika seed-rules --file rules.yaml

  # Score a findings file offline
  nivaasika preview findings.json --rules rules.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, version)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Logging.Format = logFormat
		}

		l, err := logging.NewLogger(loaded.Logging.Level, loaded.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logger = l.With(zap.String("version", version))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute(v string) {
	if v != "" {
		version = v
	}
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("Command execution failed", zap.String("error", logging.SanitizeError(err)))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", logging.SanitizeError(err))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file; environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
}
