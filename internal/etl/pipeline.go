package etl

import (
	"context"
	"log/slog"
	"path/filepath"

	"cwtcli/internal/config"
	"cwtcli/internal/load"
	"cwtcli/internal/quality"
	"cwtcli/internal/store"
	"cwtcli/pkg/contracts/domain"
)

// RunSummary is the outcome of one pipeline invocation
type RunSummary struct {
	Audit   *domain.LoadAudit `json:"audit"`
	Quality quality.Report    `json:"quality"`
}

// Pipeline wires extraction, transformation, validation and load into
// one unit of work per source file
type Pipeline struct {
	cfg       config.ETLConfig
	store     *store.Store
	extractor *Extractor
	validator *quality.Validator
	loader    *load.Coordinator
	logger    *slog.Logger
}

// NewPipeline assembles the ETL pipeline over one store
func NewPipeline(cfg config.ETLConfig, st *store.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		extractor: NewExtractor(cfg, logger),
		validator: quality.NewValidator(cfg, logger),
		loader:    load.NewCoordinator(st, logger),
		logger:    logger.With("component", "pipeline"),
	}
}

// Run processes one source file end to end: extract, reshape and
// resolve, validate, load. Returns the audit and quality report; a
// fatal stage error aborts before anything is committed.
func (p *Pipeline) Run(ctx context.Context, sourcePath string) (*RunSummary, error) {
	p.logger.Info("run started", "source_file", sourcePath)

	snap, err := p.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	table, err := p.extractor.Extract(sourcePath)
	if err != nil {
		return nil, err
	}

	transformer := NewTransformer(p.cfg, snap, p.logger)
	candidates, err := transformer.Transform(ctx, table)
	if err != nil {
		return nil, err
	}

	history, err := p.store.HistoryStats(ctx)
	if err != nil {
		return nil, err
	}

	candidates, report := p.validator.Validate(candidates, history, snap)
	for _, finding := range report.Findings {
		p.logger.Warn("quality finding", "finding", finding)
	}

	audit, err := p.loader.Apply(ctx, filepath.Base(sourcePath), candidates)
	if err != nil {
		return &RunSummary{Audit: audit, Quality: report}, err
	}

	p.logger.Info("run finished",
		"run_id", audit.RunID,
		"status", string(audit.Status),
		"processed", audit.Processed,
		"inserted", audit.Inserted,
		"updated", audit.Updated,
		"failed", audit.Failed,
	)
	return &RunSummary{Audit: audit, Quality: report}, nil
}
