package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stockd/internal/mcp"
)

// queryCmd answers a single request without starting the server
var queryCmd = &cobra.Command{
	Use:   "query [method] [key=value...]",
	Short: "Run one lookup and print the response",
	Long: `Builds a request from the arguments, dispatches it against the configured
dataset and prints the response line the server would have written.

Values that parse as JSON are sent as such; anything else is sent as a string.

Examples:
  stockd query get_stock_by_code code=1301_T
  stockd query search_stocks_by_name name=toyota
  stockd query get_stocks_by_size size_code=1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	line, err := buildRequest(args[0], args[1:])
	if err != nil {
		return err
	}

	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}

	resp := mcp.NewDispatcher(engine).HandleLine(ctx, line)
	if _, err := cmd.OutOrStdout().Write(mcp.EncodeResponse(resp)); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("request failed: %s", resp.Error.Message)
	}
	return nil
}

// buildRequest encodes a request line from a method and key=value pairs.
func buildRequest(method string, pairs []string) ([]byte, error) {
	params := make(map[string]json.RawMessage, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		if json.Valid([]byte(value)) {
			params[key] = json.RawMessage(value)
			continue
		}
		quoted, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameter %q: %w", key, err)
		}
		params[key] = quoted
	}

	return json.Marshal(struct {
		JSONRPC string                     `json:"jsonrpc"`
		ID      int                        `json:"id"`
		Method  string                     `json:"method"`
		Params  map[string]json.RawMessage `json:"params"`
	}{JSONRPC: mcp.Version, ID: 1, Method: method, Params: params})
}
