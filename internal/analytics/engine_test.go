package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwtcli/internal/config"
	"cwtcli/internal/dimension"
	"cwtcli/internal/store"
	"cwtcli/pkg/contracts/domain"
)

type fakeStore struct {
	snap       *dimension.Snapshot
	series     map[int][]store.SeriesPoint // keyed by metric ID
	seriesRows []store.SeriesRow
	yearValues map[int][]store.ProvinceValue
	grouped    []store.GroupedValue
	compliance []store.CompliancePoint
	pairs      []store.VolumeWaitPair
	latest     int
}

func (f *fakeStore) LoadSnapshot(ctx context.Context) (*dimension.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeStore) SeriesValues(ctx context.Context, provinceID, procedureID, metricID int) ([]store.SeriesPoint, error) {
	return f.series[metricID], nil
}

func (f *fakeStore) SeriesRows(ctx context.Context, provinceID, procedureID, metricID int) ([]store.SeriesRow, error) {
	var out []store.SeriesRow
	for _, r := range f.seriesRows {
		if provinceID > 0 && r.ProvinceID != provinceID {
			continue
		}
		if procedureID > 0 && r.ProcedureID != procedureID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) YearValues(ctx context.Context, procedureID, metricID, fiscalYear int) ([]store.ProvinceValue, error) {
	return f.yearValues[metricID], nil
}

func (f *fakeStore) GroupedValues(ctx context.Context, procedureID, metricID int) ([]store.GroupedValue, error) {
	return f.grouped, nil
}

func (f *fakeStore) ComplianceValues(ctx context.Context, metricID, fiscalYear, provinceID int) ([]store.CompliancePoint, error) {
	return f.compliance, nil
}

func (f *fakeStore) VolumeWaitPairs(ctx context.Context, procedureID, volumeMetricID, medianMetricID int) ([]store.VolumeWaitPair, error) {
	return f.pairs, nil
}

func (f *fakeStore) LatestFiscalYear(ctx context.Context) (int, bool, error) {
	return f.latest, f.latest > 0, nil
}

const (
	ontarioID  = 1
	albertaID  = 2
	manitobaID = 3
	canadaID   = 4
	hipID      = 10
	ctScanID   = 11
	pct50ID    = 100
	volumeID   = 101
	benchMetID = 102
)

func testSnapshot() *dimension.Snapshot {
	return dimension.NewSnapshot(
		[]dimension.Province{
			{ID: ontarioID, Code: "ON", Name: "Ontario"},
			{ID: albertaID, Code: "AB", Name: "Alberta"},
			{ID: manitobaID, Code: "MB", Name: "Manitoba"},
			{ID: canadaID, Code: "CA", Name: "Canada"},
		},
		[]dimension.Procedure{
			{ID: hipID, Code: "HIP_REPL", Name: "Hip Replacement", IsSurgical: true},
			{ID: ctScanID, Code: "CT_SCAN", Name: "CT Scan"},
		},
		[]dimension.Metric{
			{ID: pct50ID, Code: "PCT_50", Name: "50th Percentile", Kind: dimension.KindPercentile, Unit: "days", Direction: dimension.LowerIsBetter},
			{ID: volumeID, Code: "VOLUME", Name: "Volume", Kind: dimension.KindVolume, Unit: "cases"},
			{ID: benchMetID, Code: "BENCH_MET", Name: "% Meeting Benchmark", Kind: dimension.KindCompliance, Unit: "percent", Direction: dimension.HigherIsBetter},
		},
		[]dimension.ReportingLevel{
			{ID: 1, Code: "PROV", Name: "Provincial"},
		},
		nil,
	)
}

func testEngine(fs *fakeStore) *Engine {
	return NewEngine(fs,
		config.AnalyticsConfig{
			DefaultMetric:        "50th Percentile",
			CorrelationMinSample: 15,
			LongTermThreshold:    5,
			MinLongTermYears:     4,
		},
		config.ETLConfig{
			OutlierSignificantZ: 2.0,
			OutlierExtremeZ:     2.5,
			MinOutlierHistory:   8,
		},
		nil)
}

func fptr(v float64) *float64 { return &v }

// ontarioHipRow builds one Ontario hip-replacement series row
func ontarioHipRow(year int, value *float64) store.SeriesRow {
	return store.SeriesRow{
		ProvinceID: ontarioID, ProvinceName: "Ontario",
		ProcedureID: hipID, ProcedureName: "Hip Replacement",
		FiscalYear: year, Value: value,
	}
}

func TestTrendYearOverYear(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		seriesRows: []store.SeriesRow{
			ontarioHipRow(2021, fptr(100)),
			ontarioHipRow(2022, fptr(110)),
			ontarioHipRow(2023, fptr(95)),
		},
	}

	result, err := testEngine(fs).Trend(context.Background(), TrendQuery{
		Province:  "Ontario",
		Procedure: "Hip Replacement",
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	series := result[0]
	require.Len(t, series.Points, 3)

	first := series.Points[0]
	assert.Nil(t, first.YoYChangePct)
	assert.Equal(t, domain.TrendNoPrevious, first.Direction)

	second := series.Points[1]
	require.NotNil(t, second.YoYChangePct)
	assert.InDelta(t, 10.0, *second.YoYChangePct, 1e-9)
	assert.Equal(t, domain.TrendIncreasing, second.Direction)

	third := series.Points[2]
	require.NotNil(t, third.YoYChangePct)
	assert.InDelta(t, -13.6364, *third.YoYChangePct, 1e-3)
	assert.Equal(t, domain.TrendDecreasing, third.Direction)

	assert.InDelta(t, 101.6667, series.MeanValue, 1e-3)
}

func TestTrendZeroPreviousOmitsPercent(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		seriesRows: []store.SeriesRow{
			ontarioHipRow(2021, fptr(0)),
			ontarioHipRow(2022, fptr(40)),
		},
	}

	result, err := testEngine(fs).Trend(context.Background(), TrendQuery{
		Province:  "Ontario",
		Procedure: "Hip Replacement",
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	points := result[0].Points
	require.Len(t, points, 2)
	assert.Nil(t, points[1].YoYChangePct)
	assert.Equal(t, domain.TrendIncreasing, points[1].Direction)
}

func TestTrendYearWindow(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		seriesRows: []store.SeriesRow{
			ontarioHipRow(2019, fptr(80)),
			ontarioHipRow(2020, fptr(90)),
			ontarioHipRow(2021, fptr(100)),
			ontarioHipRow(2022, fptr(110)),
		},
	}

	result, err := testEngine(fs).Trend(context.Background(), TrendQuery{
		Province:  "Ontario",
		Procedure: "Hip Replacement",
		FromYear:  2020,
		ToYear:    2021,
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	points := result[0].Points
	require.Len(t, points, 2)
	assert.Equal(t, 2020, points[0].FiscalYear)
	assert.Equal(t, domain.TrendNoPrevious, points[0].Direction)
}

func TestTrendAllSeriesWithoutFilters(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		seriesRows: []store.SeriesRow{
			{ProvinceID: albertaID, ProvinceName: "Alberta", ProcedureID: hipID,
				ProcedureName: "Hip Replacement", FiscalYear: 2022, Value: fptr(90)},
			{ProvinceID: albertaID, ProvinceName: "Alberta", ProcedureID: hipID,
				ProcedureName: "Hip Replacement", FiscalYear: 2023, Value: fptr(85)},
			ontarioHipRow(2022, fptr(110)),
			ontarioHipRow(2023, fptr(120)),
		},
	}

	result, err := testEngine(fs).Trend(context.Background(), TrendQuery{})
	require.NoError(t, err)
	require.Len(t, result, 2, "no filters means every (province, procedure) series")

	assert.Equal(t, "Alberta", result[0].Province)
	assert.Equal(t, "Ontario", result[1].Province)
	require.Len(t, result[0].Points, 2)
	assert.Equal(t, domain.TrendDecreasing, result[0].Points[1].Direction)
	assert.Equal(t, domain.TrendIncreasing, result[1].Points[1].Direction)
}

func TestTrendProvinceOnlyFilter(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		seriesRows: []store.SeriesRow{
			{ProvinceID: albertaID, ProvinceName: "Alberta", ProcedureID: hipID,
				ProcedureName: "Hip Replacement", FiscalYear: 2022, Value: fptr(90)},
			ontarioHipRow(2022, fptr(110)),
		},
	}

	result, err := testEngine(fs).Trend(context.Background(), TrendQuery{Province: "Ontario"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "Ontario", result[0].Province)
}

func TestTrendUnknownProvince(t *testing.T) {
	fs := &fakeStore{snap: testSnapshot()}
	_, err := testEngine(fs).Trend(context.Background(), TrendQuery{
		Province:  "Atlantis",
		Procedure: "Hip Replacement",
	})
	assert.Error(t, err)
}

func TestComparisonRanking(t *testing.T) {
	fs := &fakeStore{
		snap:   testSnapshot(),
		latest: 2023,
		yearValues: map[int][]store.ProvinceValue{
			pct50ID: {
				{ProvinceID: albertaID, ProvinceCode: "AB", ProvinceName: "Alberta", Value: 80},
				{ProvinceID: canadaID, ProvinceCode: "CA", ProvinceName: "Canada", Value: 105},
				{ProvinceID: manitobaID, ProvinceCode: "MB", ProvinceName: "Manitoba", Value: 140},
				{ProvinceID: ontarioID, ProvinceCode: "ON", ProvinceName: "Ontario", Value: 110},
			},
			volumeID: {
				{ProvinceID: ontarioID, ProvinceCode: "ON", ProvinceName: "Ontario", Value: 5000},
			},
		},
	}

	result, err := testEngine(fs).Comparison(context.Background(), "Hip Replacement", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2023, result.Year)
	require.Len(t, result.Rows, 3, "national aggregate must be excluded")
	assert.InDelta(t, 110.0, result.Mean, 1e-9)

	byProvince := map[string]domain.ComparisonRow{}
	for _, row := range result.Rows {
		byProvince[row.Province] = row
	}

	alberta := byProvince["Alberta"]
	assert.Equal(t, domain.PerformanceExcellent, alberta.Category)
	assert.InDelta(t, -30.0, alberta.VarianceFromMean, 1e-9)
	assert.InDelta(t, 1.0, alberta.PercentileRank, 1e-9, "both other provinces wait longer")
	assert.Nil(t, alberta.Volume)

	ontario := byProvince["Ontario"]
	assert.Equal(t, domain.PerformanceGood, ontario.Category)
	assert.InDelta(t, 0.5, ontario.PercentileRank, 1e-9)
	require.NotNil(t, ontario.Volume)
	assert.InDelta(t, 5000.0, *ontario.Volume, 1e-9)

	manitoba := byProvince["Manitoba"]
	assert.Equal(t, domain.PerformanceFair, manitoba.Category)
	assert.InDelta(t, 0.0, manitoba.PercentileRank, 1e-9)
}

func TestComparisonEmptyYear(t *testing.T) {
	fs := &fakeStore{snap: testSnapshot(), latest: 2023}
	_, err := testEngine(fs).Comparison(context.Background(), "Hip Replacement", "", 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBenchmarkCategories(t *testing.T) {
	fs := &fakeStore{
		snap:   testSnapshot(),
		latest: 2023,
		compliance: []store.CompliancePoint{
			{ProvinceName: "Alberta", ProcedureName: "Hip Replacement", FiscalYear: 2023, CompliancePct: 95},
			{ProvinceName: "Ontario", ProcedureName: "Hip Replacement", FiscalYear: 2023, CompliancePct: 80},
			{ProvinceName: "Manitoba", ProcedureName: "Hip Replacement", FiscalYear: 2023, CompliancePct: 60},
			{ProvinceName: "Canada", ProcedureName: "Hip Replacement", FiscalYear: 2023, CompliancePct: 30},
		},
	}

	rows, err := testEngine(fs).Benchmarks(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, domain.ComplianceExcellent, rows[0].Category)
	assert.InDelta(t, 0.0, rows[0].ImprovementNeeded, 1e-9)
	assert.Equal(t, domain.ComplianceGood, rows[1].Category)
	assert.Equal(t, domain.ComplianceFair, rows[2].Category)
	assert.InDelta(t, 30.0, rows[2].ImprovementNeeded, 1e-9)
	assert.Equal(t, domain.CompliancePoor, rows[3].Category)
	assert.InDelta(t, 60.0, rows[3].ImprovementNeeded, 1e-9)
}

func TestOutliersRequireHistoryAndVariance(t *testing.T) {
	// Seven Ontario years: below the history floor, never reported.
	thin := make([]store.GroupedValue, 7)
	for i := range thin {
		thin[i] = store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: hipID, ProcedureName: "Hip Replacement", FiscalYear: 2015 + i, Value: 200}
	}
	// Eight flat Alberta years: zero variance, never reported.
	flat := make([]store.GroupedValue, 8)
	for i := range flat {
		flat[i] = store.GroupedValue{ProvinceID: albertaID, ProvinceName: "Alberta", ProcedureID: hipID, ProcedureName: "Hip Replacement", FiscalYear: 2015 + i, Value: 100}
	}

	fs := &fakeStore{snap: testSnapshot(), grouped: append(thin, flat...)}
	rows, err := testEngine(fs).Outliers(context.Background(), "Hip Replacement", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOutliersSeverity(t *testing.T) {
	// Nine values around 50: eight at 50 plus one spike. The spike's
	// z-score is sqrt(8) ~ 2.83, past the extreme bound.
	group := make([]store.GroupedValue, 0, 9)
	for i := 0; i < 8; i++ {
		group = append(group, store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: hipID, ProcedureName: "Hip Replacement", FiscalYear: 2014 + i, Value: 50})
	}
	group = append(group, store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: hipID, ProcedureName: "Hip Replacement", FiscalYear: 2022, Value: 95})

	fs := &fakeStore{snap: testSnapshot(), grouped: group}
	rows, err := testEngine(fs).Outliers(context.Background(), "Hip Replacement", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Hip Replacement", rows[0].Procedure)
	assert.Equal(t, 2022, rows[0].FiscalYear)
	assert.Equal(t, domain.OutlierExtreme, rows[0].Severity)
	assert.Greater(t, rows[0].ZScore, 2.5)
}

func TestOutliersAcrossProcedures(t *testing.T) {
	// Two spiked series, one per procedure; scanning without a
	// procedure filter must flag both.
	group := make([]store.GroupedValue, 0, 18)
	for i := 0; i < 8; i++ {
		group = append(group, store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: hipID, ProcedureName: "Hip Replacement", FiscalYear: 2014 + i, Value: 50})
		group = append(group, store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: ctScanID, ProcedureName: "CT Scan", FiscalYear: 2014 + i, Value: 20})
	}
	group = append(group,
		store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: hipID, ProcedureName: "Hip Replacement", FiscalYear: 2022, Value: 95},
		store.GroupedValue{ProvinceID: ontarioID, ProvinceName: "Ontario", ProcedureID: ctScanID, ProcedureName: "CT Scan", FiscalYear: 2022, Value: 60},
	)

	fs := &fakeStore{snap: testSnapshot(), grouped: group}
	rows, err := testEngine(fs).Outliers(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	procedures := []string{rows[0].Procedure, rows[1].Procedure}
	assert.ElementsMatch(t, []string{"Hip Replacement", "CT Scan"}, procedures)
}

func TestCorrelationInsufficientSample(t *testing.T) {
	pairs := make([]store.VolumeWaitPair, 14)
	for i := range pairs {
		pairs[i] = store.VolumeWaitPair{ProvinceID: ontarioID, FiscalYear: 2009 + i, Volume: float64(1000 + i), MedianWait: float64(100 + i)}
	}

	fs := &fakeStore{snap: testSnapshot(), pairs: pairs}
	result, err := testEngine(fs).Correlation(context.Background(), "Hip Replacement")
	require.NoError(t, err)
	assert.False(t, result.Sufficient)
	assert.Equal(t, 14, result.SampleSize)
	assert.Equal(t, 15, result.MinSample)
	assert.Nil(t, result.Coefficient)
}

func TestCorrelationPerfectPositive(t *testing.T) {
	pairs := make([]store.VolumeWaitPair, 15)
	for i := range pairs {
		pairs[i] = store.VolumeWaitPair{ProvinceID: ontarioID, FiscalYear: 2008 + i, Volume: float64(1000 + 100*i), MedianWait: float64(100 + 2*i)}
	}

	fs := &fakeStore{snap: testSnapshot(), pairs: pairs}
	result, err := testEngine(fs).Correlation(context.Background(), "Hip Replacement")
	require.NoError(t, err)
	assert.True(t, result.Sufficient)
	require.NotNil(t, result.Coefficient)
	assert.InDelta(t, 1.0, *result.Coefficient, 1e-9)
}

func TestLongTermDeteriorating(t *testing.T) {
	// Lower-is-better metric rising from ~100 to ~120.
	fs := &fakeStore{
		snap: testSnapshot(),
		series: map[int][]store.SeriesPoint{
			pct50ID: {
				{FiscalYear: 2016, Value: fptr(98)},
				{FiscalYear: 2017, Value: fptr(102)},
				{FiscalYear: 2018, Value: fptr(118)},
				{FiscalYear: 2019, Value: fptr(122)},
			},
		},
	}

	result, err := testEngine(fs).LongTerm(context.Background(), "Hip Replacement", "Ontario", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.LongTermDeteriorating, result.Assessment)
	assert.InDelta(t, 100.0, result.EarlyMean, 1e-9)
	assert.InDelta(t, 120.0, result.RecentMean, 1e-9)
	assert.InDelta(t, 20.0, result.AbsoluteChange, 1e-9)
	require.NotNil(t, result.PercentChange)
	assert.InDelta(t, 20.0, *result.PercentChange, 1e-9)
	assert.Equal(t, 2016, result.StartYear)
	assert.Equal(t, 2019, result.EndYear)
}

func TestLongTermStableWithinThreshold(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		series: map[int][]store.SeriesPoint{
			pct50ID: {
				{FiscalYear: 2016, Value: fptr(100)},
				{FiscalYear: 2017, Value: fptr(100)},
				{FiscalYear: 2018, Value: fptr(103)},
				{FiscalYear: 2019, Value: fptr(103)},
			},
		},
	}

	result, err := testEngine(fs).LongTerm(context.Background(), "Hip Replacement", "Ontario", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.LongTermStable, result.Assessment)
}

func TestLongTermInsufficientYears(t *testing.T) {
	fs := &fakeStore{
		snap: testSnapshot(),
		series: map[int][]store.SeriesPoint{
			pct50ID: {
				{FiscalYear: 2018, Value: fptr(100)},
				{FiscalYear: 2019, Value: fptr(110)},
				{FiscalYear: 2020, Value: fptr(120)},
			},
		},
	}

	_, err := testEngine(fs).LongTerm(context.Background(), "Hip Replacement", "Ontario", 0, 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
