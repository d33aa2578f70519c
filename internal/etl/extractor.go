// Package etl is the extract-transform pipeline: it reads wide-format
// wait-time spreadsheets, reshapes them into long-format fact candidates,
// resolves dimension labels and hands validated batches to the load
// coordinator.
package etl

import (
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"cwtcli/internal/config"
	apperrors "cwtcli/internal/errors"
)

// RawTable is one extracted sheet: a header row plus data rows, untyped
type RawTable struct {
	SourceFile string
	Sheet      string
	Header     []string
	Rows       [][]string
}

// Extractor reads wait-time workbooks
type Extractor struct {
	cfg    config.ETLConfig
	logger *slog.Logger
}

// NewExtractor creates an extractor with the configured sheet preference
func NewExtractor(cfg config.ETLConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: logger.With("component", "extract")}
}

// Extract opens a workbook and returns the wait-time sheet as a raw
// table. Unreadable files and sheets without a recognizable header are
// fatal; no rows are processed.
func (e *Extractor) Extract(path string) (*RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewExtractionError(path, "open workbook", err)
	}
	defer f.Close()

	rows, sheet, ok := e.findSheet(f)
	if !ok {
		return nil, apperrors.NewExtractionError(path, "no sheet with wait-time data", nil)
	}
	e.logger.Info("sheet selected", "sheet", sheet, "total_rows", len(rows))

	headerIdx := findHeaderRow(rows)
	if headerIdx < 0 {
		return nil, apperrors.NewExtractionError(path, "header row not found in sheet "+sheet, nil)
	}

	table := &RawTable{
		SourceFile: path,
		Sheet:      sheet,
		Header:     trimCells(rows[headerIdx]),
	}
	for _, row := range rows[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	if len(table.Rows) == 0 {
		return nil, apperrors.NewExtractionError(path, "sheet "+sheet+" has no data rows", nil)
	}

	e.logger.Info("extraction completed", "source_file", path, "rows", len(table.Rows))
	return table, nil
}

// findSheet returns the configured sheet when present, otherwise scans
// for any sheet whose leading rows look like a wait-time header
func (e *Extractor) findSheet(f *excelize.File) ([][]string, string, bool) {
	if rows, err := f.GetRows(e.cfg.SheetName); err == nil && len(rows) > 0 {
		return rows, e.cfg.SheetName, true
	}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		limit := len(rows)
		if limit > 10 {
			limit = 10
		}
		for _, row := range rows[:limit] {
			if looksLikeHeader(row) {
				return rows, name, true
			}
		}
	}
	return nil, "", false
}

// findHeaderRow locates the header within the leading rows of a sheet
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		if looksLikeHeader(rows[i]) {
			return i
		}
	}
	return -1
}

func looksLikeHeader(row []string) bool {
	text := strings.ToLower(strings.Join(row, " "))
	return strings.Contains(text, "province") &&
		(strings.Contains(text, "year") || strings.Contains(text, "data year"))
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}
