package etl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cwtcli/internal/config"
	apperrors "cwtcli/internal/errors"
)

// writeWorkbook creates an xlsx file with one named sheet
func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "wait_times.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func waitTimeRows() [][]interface{} {
	return [][]interface{}{
		{"Canadian wait times"},
		{},
		{"Province/territory", "Reporting level", "Data year", "Hip Replacement - 50th Percentile"},
		{"Ontario", "Provincial", 2022, 120},
		{"Alberta", "Provincial", 2022, 95},
	}
}

func TestExtractConfiguredSheet(t *testing.T) {
	path := writeWorkbook(t, "Wait times 2008 to 2023", waitTimeRows())
	e := NewExtractor(config.ETLConfig{SheetName: "Wait times 2008 to 2023"}, nil)

	table, err := e.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "Wait times 2008 to 2023", table.Sheet)
	assert.Equal(t, "Province/territory", table.Header[0])
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Ontario", table.Rows[0][0])
}

func TestExtractSheetFallbackScan(t *testing.T) {
	// The configured sheet is absent; the scan must still find the data.
	path := writeWorkbook(t, "Export 2024", waitTimeRows())
	e := NewExtractor(config.ETLConfig{SheetName: "Wait times 2008 to 2023"}, nil)

	table, err := e.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "Export 2024", table.Sheet)
	require.Len(t, table.Rows, 2)
}

func TestExtractFatalErrors(t *testing.T) {
	e := NewExtractor(config.ETLConfig{SheetName: "Wait times 2008 to 2023"}, nil)

	t.Run("unreadable file", func(t *testing.T) {
		_, err := e.Extract(filepath.Join(t.TempDir(), "missing.xlsx"))
		var ee *apperrors.ExtractionError
		require.ErrorAs(t, err, &ee)
	})

	t.Run("no recognizable header", func(t *testing.T) {
		path := writeWorkbook(t, "Notes", [][]interface{}{
			{"just", "some", "text"},
			{"more", "text"},
		})
		_, err := e.Extract(path)
		var ee *apperrors.ExtractionError
		require.ErrorAs(t, err, &ee)
	})

	t.Run("header but no data rows", func(t *testing.T) {
		path := writeWorkbook(t, "Wait times 2008 to 2023", [][]interface{}{
			{"Province/territory", "Data year", "Hip Replacement - 50th Percentile"},
		})
		_, err := e.Extract(path)
		var ee *apperrors.ExtractionError
		require.ErrorAs(t, err, &ee)
	})
}
