package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockd/internal/logging"
	"stockd/internal/types"
)

// Dataset formats.
const (
	FormatAuto   = "auto"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// DefaultRecordsKey is the key under which the analysis step writes records.
const DefaultRecordsKey = "stocks_data"

// ErrDatasetMissing is returned when the dataset file does not exist and
// could not be prepared.
var ErrDatasetMissing = errors.New("dataset not found")

// Options locates a dataset on disk.
type Options struct {
	Path       string
	Format     string // auto, json, sqlite
	Table      string // SQLite table
	RecordsKey string // JSON analysis document key

	// PrepareCommand runs once when Path is missing; nil disables it.
	PrepareCommand []string
	PrepareTimeout time.Duration
}

// Open loads the dataset described by opts. It always returns a usable
// store: when the dataset is missing or unreadable the store is empty and the
// cause is returned alongside it so the caller can decide whether to go on.
func Open(ctx context.Context, opts Options) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.StopWithThreshold(2 * time.Second)

	if opts.Path == "" {
		return New(nil), fmt.Errorf("%w: no path configured", ErrDatasetMissing)
	}

	if _, err := os.Stat(opts.Path); errors.Is(err, os.ErrNotExist) {
		if len(opts.PrepareCommand) == 0 {
			logging.StoreWarn("Dataset %s not found, starting with no records", opts.Path)
			return New(nil), fmt.Errorf("%w: %s", ErrDatasetMissing, opts.Path)
		}
		logging.Store("Dataset %s not found, running prepare command %v", opts.Path, opts.PrepareCommand)
		if err := Prepare(ctx, opts.PrepareCommand, opts.PrepareTimeout); err != nil {
			logging.Get(logging.CategoryStore).Error("Prepare command failed: %v", err)
			return New(nil), fmt.Errorf("failed to prepare dataset: %w", err)
		}
		if _, err := os.Stat(opts.Path); errors.Is(err, os.ErrNotExist) {
			logging.StoreWarn("Prepare command did not produce %s, starting with no records", opts.Path)
			return New(nil), fmt.Errorf("%w: %s (after prepare)", ErrDatasetMissing, opts.Path)
		}
	}

	var (
		records []types.Record
		err     error
	)
	switch format := resolveFormat(opts.Format, opts.Path); format {
	case FormatJSON:
		records, err = LoadJSONFile(opts.Path, opts.RecordsKey)
	case FormatSQLite:
		records, err = LoadSQLite(ctx, opts.Path, opts.Table)
	default:
		err = fmt.Errorf("unsupported dataset format: %s", format)
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to load dataset %s: %v", opts.Path, err)
		return New(nil), err
	}

	logging.Store("Loaded %d records from %s", len(records), opts.Path)
	return newWithSource(records, opts.Path), nil
}

// resolveFormat picks a loader, guessing from the file extension for auto.
func resolveFormat(format, path string) string {
	format = strings.ToLower(format)
	if format != "" && format != FormatAuto {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	default:
		return FormatJSON
	}
}

// LoadJSONFile reads records from a JSON file. See LoadJSON.
func LoadJSONFile(path, recordsKey string) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	records, err := LoadJSON(bufio.NewReader(f), recordsKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadJSON reads records from either a bare JSON array of objects or an
// analysis document holding the array under recordsKey. A document without
// that key holds no records. Rows that are not objects are skipped and
// logged; the rest still load.
func LoadJSON(r io.Reader, recordsKey string) ([]types.Record, error) {
	if recordsKey == "" {
		recordsKey = DefaultRecordsKey
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var list json.RawMessage
	switch data[0] {
	case '[':
		list = data
	case '{':
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse analysis document: %w", err)
		}
		raw, ok := doc[recordsKey]
		if !ok {
			logging.StoreWarn("Analysis document has no %q key", recordsKey)
			return nil, nil
		}
		list = raw
	default:
		return nil, fmt.Errorf("dataset must be a JSON array or object")
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(list, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}

	records := make([]types.Record, 0, len(rows))
	for i, row := range rows {
		var r types.Record
		if err := json.Unmarshal(row, &r); err != nil {
			logging.StoreWarn("Skipping row %d: %v", i, err)
			continue
		}
		records = append(records, r)
	}
	if skipped := len(rows) - len(records); skipped > 0 {
		logging.StoreWarn("Skipped %d of %d rows", skipped, len(rows))
	}
	return records, nil
}
