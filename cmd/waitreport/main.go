package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cwtcli/internal/analytics"
	"cwtcli/internal/config"
	"cwtcli/internal/infrastructure"
	"cwtcli/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	outDir := flag.String("out", "reports", "output directory for CSV reports")
	procedure := flag.String("procedure", "", "procedure to report on")
	year := flag.Int("year", 0, "fiscal year (0 means latest on record)")
	flag.Parse()

	if *procedure == "" {
		fmt.Fprintln(os.Stderr, "usage: waitreport -procedure <name> [-year <fiscal year>] [-out <dir>] [-config <file>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("output directory", "error", err)
		os.Exit(1)
	}

	engine := analytics.NewEngine(st, cfg.Analytics, cfg.ETL, logger)

	if err := writeComparison(ctx, engine, *outDir, *procedure, *year); err != nil {
		logger.Error("comparison report failed", "error", err)
		os.Exit(1)
	}
	if err := writeBenchmarks(ctx, engine, *outDir, *year); err != nil {
		logger.Error("benchmark report failed", "error", err)
		os.Exit(1)
	}
	if err := writeOutliers(ctx, engine, *outDir, *procedure); err != nil {
		logger.Error("outlier report failed", "error", err)
		os.Exit(1)
	}
	if err := writeCorrelation(ctx, engine, *outDir, *procedure); err != nil {
		logger.Error("correlation report failed", "error", err)
		os.Exit(1)
	}

	logger.Info("reports written", "dir", *outDir, "procedure", *procedure)
}

func writeComparison(ctx context.Context, engine *analytics.Engine, dir, procedure string, year int) error {
	result, err := engine.Comparison(ctx, procedure, "", year)
	if err != nil {
		return err
	}

	rows := [][]string{{"province", "value", "volume", "variance_from_mean", "percentile_rank", "category"}}
	for _, row := range result.Rows {
		rows = append(rows, []string{
			row.Province,
			formatFloat(row.Value),
			formatOptional(row.Volume),
			formatFloat(row.VarianceFromMean),
			formatFloat(row.PercentileRank),
			string(row.Category),
		})
	}
	return writeCSV(filepath.Join(dir, fmt.Sprintf("comparison_%d.csv", result.Year)), rows)
}

func writeBenchmarks(ctx context.Context, engine *analytics.Engine, dir string, year int) error {
	benchRows, err := engine.Benchmarks(ctx, "", year)
	if err != nil {
		return err
	}

	rows := [][]string{{"province", "procedure", "fiscal_year", "compliance_pct", "category", "improvement_needed"}}
	for _, row := range benchRows {
		rows = append(rows, []string{
			row.Province,
			row.Procedure,
			strconv.Itoa(row.FiscalYear),
			formatFloat(row.CompliancePct),
			string(row.Category),
			formatFloat(row.ImprovementNeeded),
		})
	}
	return writeCSV(filepath.Join(dir, "benchmarks.csv"), rows)
}

func writeOutliers(ctx context.Context, engine *analytics.Engine, dir, procedure string) error {
	outlierRows, err := engine.Outliers(ctx, procedure, "")
	if err != nil {
		return err
	}

	rows := [][]string{{"province", "procedure", "fiscal_year", "value", "group_mean", "group_stddev", "z_score", "severity"}}
	for _, row := range outlierRows {
		rows = append(rows, []string{
			row.Province,
			row.Procedure,
			strconv.Itoa(row.FiscalYear),
			formatFloat(row.Value),
			formatFloat(row.GroupMean),
			formatFloat(row.GroupStd),
			formatFloat(row.ZScore),
			string(row.Severity),
		})
	}
	return writeCSV(filepath.Join(dir, "outliers.csv"), rows)
}

func writeCorrelation(ctx context.Context, engine *analytics.Engine, dir, procedure string) error {
	result, err := engine.Correlation(ctx, procedure)
	if err != nil {
		return err
	}

	rows := [][]string{
		{"procedure", "sample_size", "min_sample", "sufficient", "coefficient"},
		{
			result.Procedure,
			strconv.Itoa(result.SampleSize),
			strconv.Itoa(result.MinSample),
			strconv.FormatBool(result.Sufficient),
			formatOptional(result.Coefficient),
		},
	}
	return writeCSV(filepath.Join(dir, "correlation.csv"), rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
