package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stockd/internal/logging"
	"stockd/internal/store"
)

var (
	convertTable      string
	convertRecordsKey string
)

// convertCmd writes a JSON dataset into a SQLite table
var convertCmd = &cobra.Command{
	Use:   "convert [src.json] [dst.db]",
	Short: "Convert a JSON dataset to SQLite",
	Long: `Reads records from a JSON array or analysis document and writes them, in
order, to a SQLite table. The table is replaced if it exists.

Example:
  stockd convert excel_data_analysis.json stocks.db --table stocks`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertTable, "table", store.DefaultTable, "Destination table")
	convertCmd.Flags().StringVar(&convertRecordsKey, "records-key", store.DefaultRecordsKey, "Key of the record array in an analysis document")
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	src, dst := args[0], args[1]

	timer := logging.StartTimer(logging.CategoryStore, "Convert")
	defer timer.StopWithInfo()

	records, err := store.LoadJSONFile(src, convertRecordsKey)
	if err != nil {
		return err
	}
	if err := store.WriteSQLite(ctx, dst, convertTable, records); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s (table %s)\n", len(records), dst, convertTable)
	return nil
}
