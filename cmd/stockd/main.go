package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockd/internal/config"
	"stockd/internal/logging"
	"stockd/internal/query"
	"stockd/internal/store"
)

var (
	// Global flags
	configPath  string
	datasetPath string
	verbose     bool

	// Resolved at startup by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stockd",
	Short: "stockd - stock reference data over stdio",
	Long: `stockd answers lookups against a fixed table of listed instruments.

Requests are JSON objects, one per line on stdin; each is answered with one
JSON line on stdout, in order. Logs go to stderr.

Run without arguments to start the stdio server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if datasetPath != "" {
			loaded.Dataset.Path = datasetPath
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		logger, err = logging.New(cfg.LoggingOptions())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Initialize(logger)
		logging.Boot("Config resolved: dataset=%s format=%s preset=%s", cfg.Dataset.Path, cfg.Dataset.Format, cfg.Fields.Preset)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(convertCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openEngine loads the configured dataset. A dataset that cannot be loaded
// leaves the engine with an empty store rather than failing startup.
func openEngine(ctx context.Context) (*query.Engine, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Path:           cfg.Dataset.Path,
		Format:         cfg.Dataset.Format,
		Table:          cfg.Dataset.Table,
		RecordsKey:     cfg.Dataset.RecordsKey,
		PrepareCommand: cfg.Dataset.PrepareCommand,
		PrepareTimeout: cfg.GetPrepareTimeout(),
	})
	if err != nil {
		logging.BootWarn("Serving without data: %v", err)
	}
	return query.NewEngine(st, schema), nil
}
