package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cwtcli/internal/config"
	"cwtcli/internal/etl"
	"cwtcli/internal/infrastructure"
	"cwtcli/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	sourcePath := flag.String("source", "", "path to the wait-times workbook (.xlsx)")
	watch := flag.Bool("watch", false, "keep running and reload on the configured schedule")
	flag.Parse()

	if *sourcePath == "" {
		fmt.Fprintln(os.Stderr, "usage: etl -source <workbook.xlsx> [-config <file>] [-watch]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("schema init failed", "error", err)
		os.Exit(1)
	}

	pipeline := etl.NewPipeline(cfg.ETL, st, logger)

	if *watch && cfg.ETL.ScheduleInterval > 0 {
		scheduler := etl.NewScheduler(pipeline, cfg.ETL.ScheduleInterval, *sourcePath, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("scheduler stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	summary, err := pipeline.Run(ctx, *sourcePath)
	if err != nil {
		logger.Error("load run failed", "error", err)
		os.Exit(1)
	}

	audit := summary.Audit
	logger.Info("load run finished",
		"run_id", audit.RunID,
		"status", audit.Status,
		"processed", audit.Processed,
		"inserted", audit.Inserted,
		"updated", audit.Updated,
		"failed", audit.Failed,
		"completeness", fmt.Sprintf("%.3f", summary.Quality.Completeness),
		"duration_seconds", audit.Duration)
}
