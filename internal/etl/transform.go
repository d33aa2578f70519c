package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"cwtcli/internal/config"
	"cwtcli/internal/dimension"
	apperrors "cwtcli/internal/errors"
	"cwtcli/pkg/contracts/domain"
)

// seriesColumn is one procedure-metric measurement column in the wide layout
type seriesColumn struct {
	index     int
	procedure string
	metric    string
}

// tableLayout maps the wide header onto column positions. index -1 means
// the column is absent.
type tableLayout struct {
	province int
	level    int
	region   int
	year     int
	series   []seriesColumn
}

// Transformer reshapes wide tables into fact candidates and resolves
// their labels against a dimension snapshot
type Transformer struct {
	cfg    config.ETLConfig
	snap   *dimension.Snapshot
	logger *slog.Logger
}

// NewTransformer creates a transformer bound to one dimension snapshot
func NewTransformer(cfg config.ETLConfig, snap *dimension.Snapshot, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{cfg: cfg, snap: snap, logger: logger.With("component", "transform")}
}

// Transform reshapes every source row into long-format candidates and
// resolves their dimension labels. Row-level problems produce invalid
// candidates and never abort the batch; a header that cannot be
// interpreted at all is fatal.
func (t *Transformer) Transform(ctx context.Context, table *RawTable) ([]domain.ObservationCandidate, error) {
	layout, err := t.interpretHeader(table)
	if err != nil {
		return nil, err
	}

	workers := t.cfg.TransformWorkers
	if workers < 1 {
		workers = 1
	}

	// Row batches are independent: each chunk writes only its own slot.
	chunks := splitRows(table.Rows, workers)
	results := make([][]domain.ObservationCandidate, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var out []domain.ObservationCandidate
			for _, numbered := range chunk {
				out = append(out, t.reshapeRow(layout, numbered.row, numbered.number, table.SourceFile)...)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []domain.ObservationCandidate
	for _, chunk := range results {
		candidates = append(candidates, chunk...)
	}

	invalid := 0
	for _, c := range candidates {
		if c.Invalid {
			invalid++
		}
	}
	t.logger.Info("reshape completed",
		"source_rows", len(table.Rows),
		"candidates", len(candidates),
		"invalid", invalid,
	)
	return candidates, nil
}

// interpretHeader locates the base columns and the procedure-metric
// series columns. Missing base columns or zero series columns mean the
// source is structurally wrong.
func (t *Transformer) interpretHeader(table *RawTable) (*tableLayout, error) {
	layout := &tableLayout{province: -1, level: -1, region: -1, year: -1}

	for i, name := range table.Header {
		switch key := strings.ToLower(name); {
		case key == "":
			continue
		case strings.HasPrefix(key, "province"):
			layout.province = i
		case strings.HasPrefix(key, "reporting level"):
			layout.level = i
		case key == "region":
			layout.region = i
		case key == "data year" || key == "year" || key == "fiscal year":
			layout.year = i
		default:
			if col, ok := splitSeriesColumn(i, name); ok {
				layout.series = append(layout.series, col)
			} else {
				t.logger.Warn("unrecognized column skipped", "column", name)
			}
		}
	}

	if layout.province < 0 || layout.year < 0 {
		return nil, apperrors.NewExtractionError(table.SourceFile,
			fmt.Sprintf("sheet %s lacks province/year columns", table.Sheet), nil)
	}
	if len(layout.series) == 0 {
		return nil, apperrors.NewExtractionError(table.SourceFile,
			fmt.Sprintf("sheet %s has no procedure-metric columns", table.Sheet), nil)
	}
	return layout, nil
}

// splitSeriesColumn parses a "Procedure - Metric" column header
func splitSeriesColumn(index int, name string) (seriesColumn, bool) {
	cut := strings.LastIndex(name, " - ")
	if cut < 0 {
		return seriesColumn{}, false
	}
	procedure := strings.TrimSpace(name[:cut])
	metric := strings.TrimSpace(name[cut+3:])
	if procedure == "" || metric == "" {
		return seriesColumn{}, false
	}
	return seriesColumn{index: index, procedure: procedure, metric: metric}, true
}

// numberedRow pairs a data row with its 1-based sheet position
type numberedRow struct {
	number int
	row    []string
}

func splitRows(rows [][]string, chunks int) [][]numberedRow {
	if chunks > len(rows) {
		chunks = len(rows)
	}
	if chunks < 1 {
		return nil
	}
	out := make([][]numberedRow, chunks)
	for i, row := range rows {
		slot := i * chunks / len(rows)
		out[slot] = append(out[slot], numberedRow{number: i + 1, row: row})
	}
	return out
}

// reshapeRow emits one candidate per non-entirely-missing series cell,
// resolved against the snapshot. A row whose year cannot be parsed is
// recorded as a single failed candidate and otherwise skipped.
func (t *Transformer) reshapeRow(layout *tableLayout, row []string, rowNum int, sourceFile string) []domain.ObservationCandidate {
	province := cellAt(row, layout.province)

	year, err := parseYear(cellAt(row, layout.year))
	if err != nil {
		return []domain.ObservationCandidate{{
			ProvinceLabel: province,
			SourceFile:    sourceFile,
			Invalid:       true,
			InvalidReason: fmt.Sprintf("row %d: %v", rowNum, err),
		}}
	}

	level := cellAt(row, layout.level)
	var out []domain.ObservationCandidate
	for _, col := range layout.series {
		raw := domain.RawRow{
			RowNumber:      rowNum,
			ReportingLevel: level,
			Province:       province,
			Region:         cellAt(row, layout.region),
			Procedure:      col.procedure,
			Metric:         col.metric,
			Year:           year,
		}

		cell := cellAt(row, col.index)
		value, quality, err := coerceCell(cell)
		if err != nil {
			out = append(out, domain.ObservationCandidate{
				ProvinceLabel:  province,
				ProcedureLabel: col.procedure,
				MetricLabel:    col.metric,
				FiscalYear:     year,
				SourceFile:     sourceFile,
				Invalid:        true,
				InvalidReason:  fmt.Sprintf("row %d: %v", rowNum, err),
			})
			continue
		}
		raw.Result = value
		raw.Quality = quality

		out = append(out, t.resolveRow(raw, sourceFile))
	}
	return out
}

// resolveRow maps one long-format row onto dimension identifiers.
// Resolution failures, ambiguity included, mark the candidate invalid.
func (t *Transformer) resolveRow(raw domain.RawRow, sourceFile string) domain.ObservationCandidate {
	c := domain.ObservationCandidate{
		FiscalYear:     raw.Year,
		ProvinceLabel:  raw.Province,
		ProcedureLabel: raw.Procedure,
		MetricLabel:    raw.Metric,
		Result:         raw.Result,
		Quality:        raw.Quality,
		SourceFile:     sourceFile,
	}

	province, err := t.snap.Resolve(apperrors.KindProvince, raw.Province)
	if err != nil {
		c.Invalid = true
		c.InvalidReason = err.Error()
		return c
	}
	c.ProvinceID = province.ID

	procedure, err := t.snap.Resolve(apperrors.KindProcedure, raw.Procedure)
	if err != nil {
		c.Invalid = true
		c.InvalidReason = err.Error()
		return c
	}
	c.ProcedureID = procedure.ID

	metric, err := t.snap.Resolve(apperrors.KindMetric, raw.Metric)
	if err != nil {
		c.Invalid = true
		c.InvalidReason = err.Error()
		return c
	}
	c.MetricID = metric.ID

	// Case counts double as the fact's volume attribute.
	if m, ok := t.snap.MetricByID(metric.ID); ok && m.Kind == dimension.KindVolume {
		c.Volume = raw.Result
	}

	levelLabel := raw.ReportingLevel
	if levelLabel == "" {
		levelLabel = "Provincial"
	}
	if level, ok := t.snap.ResolveLevel(levelLabel); ok {
		c.LevelID = level.ID
	} else if level, ok := t.snap.ResolveLevel("Provincial"); ok {
		c.LevelID = level.ID
	}

	return c
}

func cellAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

func parseYear(cell string) (int, error) {
	if cell == "" {
		return 0, fmt.Errorf("missing year")
	}
	year, err := strconv.Atoi(cell)
	if err != nil {
		// Fiscal-year notation like "2022-2023" or "2022/23" reads as
		// its opening calendar year.
		lead := cell
		for i, r := range cell {
			if r == '-' || r == '/' {
				lead = cell[:i]
				break
			}
		}
		year, err = strconv.Atoi(strings.TrimSpace(lead))
		if err != nil {
			return 0, fmt.Errorf("unparseable year %q", cell)
		}
	}
	return year, nil
}

// missing markers seen in wait-time exports; suppression is reported
// distinctly from plain absence
var (
	missingMarkers    = map[string]bool{"": true, "n/a": true, "na": true, "...": true, "—": true}
	suppressedMarkers = map[string]bool{"..": true, "f": true}
)

// coerceCell turns a spreadsheet cell into a nullable numeric value.
// Missing markers become null, never zero.
func coerceCell(cell string) (*float64, domain.QualityFlag, error) {
	key := strings.ToLower(strings.TrimSpace(cell))
	if missingMarkers[key] {
		return nil, domain.QualityMissing, nil
	}
	if suppressedMarkers[key] {
		return nil, domain.QualitySuppressed, nil
	}

	quality := domain.QualityValid
	if strings.HasSuffix(key, "e") {
		// Trailing "e" marks an estimated figure.
		key = strings.TrimSpace(strings.TrimSuffix(key, "e"))
		quality = domain.QualityEstimated
	}
	key = strings.ReplaceAll(key, ",", "")

	value, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return nil, "", fmt.Errorf("unparseable value %q", cell)
	}
	return &value, quality, nil
}
