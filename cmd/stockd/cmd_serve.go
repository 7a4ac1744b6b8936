package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockd/internal/mcp"
	"stockd/internal/metrics"
)

// serveCmd runs the stdio server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve lookups over stdin/stdout",
	Long: `Loads the dataset once and answers newline-delimited requests from stdin
until end of input or SIGINT/SIGTERM.

Methods:
  get_stock_by_code       {"code": "1301_T"}
  search_stocks_by_name   {"name": "toyota"}
  get_stocks_by_industry  {"industry": "transport"}
  get_stocks_by_size      {"size_code": 1}
  get_all_stocks          {}

Set metrics.addr (or STOCKD_METRICS_ADDR) to expose /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Restore default handling after the first signal so a second one kills
	// the process even if shutdown stalls.
	go func() {
		<-ctx.Done()
		stop()
	}()

	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.SetRecords(engine.Store().Len())

	dispatcher := mcp.NewDispatcher(engine, mcp.WithObserver(m))
	server := mcp.NewStdioServer(dispatcher, mcp.WithMaxRequestBytes(cfg.Server.MaxRequestBytes))

	logger.Info("Serving",
		zap.Int("records", engine.Store().Len()),
		zap.String("source", engine.Store().Source()),
		zap.Strings("methods", dispatcher.Methods()))

	// The metrics listener lives as long as the stdio session.
	sessionCtx, endSession := context.WithCancel(ctx)
	defer endSession()

	eg, egCtx := errgroup.WithContext(sessionCtx)
	if addr := cfg.Metrics.Addr; addr != "" {
		eg.Go(func() error {
			return metrics.Serve(egCtx, addr, reg)
		})
	}
	eg.Go(func() error {
		defer endSession()
		return server.Serve(egCtx, cmd.InOrStdin(), cmd.OutOrStdout())
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("Shutting down")
		return nil
	}
	return err
}
