package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"cwtcli/internal/config"
	"cwtcli/internal/dimension"
	apperrors "cwtcli/internal/errors"
	"cwtcli/internal/store"
	"cwtcli/pkg/contracts/domain"
)

// ErrInsufficientData marks a query whose fact coverage is too thin for
// the requested analysis
var ErrInsufficientData = errors.New("insufficient data for analysis")

// ReadStore is the read-side surface the engine needs from the fact store
type ReadStore interface {
	LoadSnapshot(ctx context.Context) (*dimension.Snapshot, error)
	SeriesValues(ctx context.Context, provinceID, procedureID, metricID int) ([]store.SeriesPoint, error)
	SeriesRows(ctx context.Context, provinceID, procedureID, metricID int) ([]store.SeriesRow, error)
	YearValues(ctx context.Context, procedureID, metricID, fiscalYear int) ([]store.ProvinceValue, error)
	GroupedValues(ctx context.Context, procedureID, metricID int) ([]store.GroupedValue, error)
	ComplianceValues(ctx context.Context, metricID, fiscalYear, provinceID int) ([]store.CompliancePoint, error)
	VolumeWaitPairs(ctx context.Context, procedureID, volumeMetricID, medianMetricID int) ([]store.VolumeWaitPair, error)
	LatestFiscalYear(ctx context.Context) (int, bool, error)
}

// Engine computes analytics result sets over the fact store
type Engine struct {
	store     ReadStore
	analytics config.AnalyticsConfig
	outliers  config.ETLConfig
	logger    *slog.Logger
}

// NewEngine creates an analytics engine. Outlier thresholds are shared
// with the ETL validator so the query and the load-time annotation agree.
func NewEngine(st ReadStore, analyticsCfg config.AnalyticsConfig, etlCfg config.ETLConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		analytics: analyticsCfg,
		outliers:  etlCfg,
		logger:    logger.With("component", "analytics"),
	}
}

// TrendQuery selects (province, procedure, metric) series. Empty
// province or procedure means every matching series.
type TrendQuery struct {
	Province  string
	Procedure string
	Metric    string
	FromYear  int
	ToYear    int
}

// Trend returns the year-over-year classification for every matching
// (province, procedure) series, ordered by province then procedure
func (e *Engine) Trend(ctx context.Context, q TrendQuery) ([]domain.TrendSeries, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	provinceID, err := e.optionalID(snap, apperrors.KindProvince, q.Province)
	if err != nil {
		return nil, err
	}
	procedureID, err := e.optionalID(snap, apperrors.KindProcedure, q.Procedure)
	if err != nil {
		return nil, err
	}
	metric, err := e.resolveMetric(snap, q.Metric)
	if err != nil {
		return nil, err
	}

	rows, err := e.store.SeriesRows(ctx, provinceID, procedureID, metric.ID)
	if err != nil {
		return nil, err
	}

	type seriesKey struct{ provinceID, procedureID int }
	type seriesData struct {
		province  string
		procedure string
		years     []int
		values    []*float64
	}
	grouped := make(map[seriesKey]*seriesData)
	var order []seriesKey
	for _, row := range rows {
		if q.FromYear > 0 && row.FiscalYear < q.FromYear {
			continue
		}
		if q.ToYear > 0 && row.FiscalYear > q.ToYear {
			continue
		}
		key := seriesKey{row.ProvinceID, row.ProcedureID}
		data, ok := grouped[key]
		if !ok {
			data = &seriesData{province: row.ProvinceName, procedure: row.ProcedureName}
			grouped[key] = data
			order = append(order, key)
		}
		data.years = append(data.years, row.FiscalYear)
		data.values = append(data.values, row.Value)
	}

	results := make([]domain.TrendSeries, 0, len(order))
	for _, key := range order {
		data := grouped[key]
		series := sortedSeries(data.years, data.values)

		result := domain.TrendSeries{
			Province:  data.province,
			Procedure: data.procedure,
			Points:    buildTrendPoints(data.province, data.procedure, metric.Name, series),
		}
		raw := make([]float64, len(series))
		for i, yv := range series {
			raw[i] = yv.value
		}
		result.MeanValue, result.Volatility = meanStd(raw)
		results = append(results, result)
	}
	return results, nil
}

// Comparison ranks all provinces for one (procedure, metric, year). The
// national aggregate is excluded from the ranking. Year zero means the
// latest year on record.
func (e *Engine) Comparison(ctx context.Context, procedureLabel, metricLabel string, year int) (*domain.ComparisonResult, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	procedure, err := snap.Resolve(apperrors.KindProcedure, procedureLabel)
	if err != nil {
		return nil, err
	}
	metric, err := e.resolveMetric(snap, metricLabel)
	if err != nil {
		return nil, err
	}
	if year, err = e.effectiveYear(ctx, year); err != nil {
		return nil, err
	}

	values, err := e.store.YearValues(ctx, procedure.ID, metric.ID, year)
	if err != nil {
		return nil, err
	}

	volumes := map[int]*float64{}
	if volumeMetric, ok := snap.MetricByName("Volume"); ok {
		volValues, err := e.store.YearValues(ctx, procedure.ID, volumeMetric.ID, year)
		if err != nil {
			return nil, err
		}
		for _, v := range volValues {
			vol := v.Value
			volumes[v.ProvinceID] = &vol
		}
	}

	var included []store.ProvinceValue
	var raw []float64
	for _, v := range values {
		if v.ProvinceCode == dimension.NationalCode {
			continue
		}
		included = append(included, v)
		raw = append(raw, v.Value)
	}
	if len(included) == 0 {
		return nil, fmt.Errorf("%s in %d: %w", procedure.Name, year, ErrInsufficientData)
	}

	mean, _ := meanStd(raw)
	result := &domain.ComparisonResult{
		Procedure: procedure.Name,
		Metric:    metric.Name,
		Year:      year,
		Mean:      mean,
	}
	for _, v := range included {
		result.Rows = append(result.Rows, domain.ComparisonRow{
			Province:         v.ProvinceName,
			Value:            v.Value,
			Volume:           volumes[v.ProvinceID],
			VarianceFromMean: v.Value - mean,
			PercentileRank:   percentileRank(v.Value, raw),
			Category:         performanceCategory(v.Value, mean),
		})
	}
	return result, nil
}

// Benchmarks classifies compliance percentages for one year, optionally
// for a single province
func (e *Engine) Benchmarks(ctx context.Context, provinceLabel string, year int) ([]domain.BenchmarkRow, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	metric, ok := snap.MetricByName("% Meeting Benchmark")
	if !ok {
		return nil, apperrors.NewDimensionNotFound(apperrors.KindMetric, "% Meeting Benchmark")
	}

	provinceID := 0
	if provinceLabel != "" {
		province, err := snap.Resolve(apperrors.KindProvince, provinceLabel)
		if err != nil {
			return nil, err
		}
		provinceID = province.ID
	}
	if year, err = e.effectiveYear(ctx, year); err != nil {
		return nil, err
	}

	points, err := e.store.ComplianceValues(ctx, metric.ID, year, provinceID)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.BenchmarkRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, domain.BenchmarkRow{
			Province:          p.ProvinceName,
			Procedure:         p.ProcedureName,
			FiscalYear:        p.FiscalYear,
			CompliancePct:     p.CompliancePct,
			Category:          complianceCategory(p.CompliancePct),
			ImprovementNeeded: improvementNeeded(p.CompliancePct),
		})
	}
	return rows, nil
}

// Outliers returns every historical record beyond the significant
// z-score bound within its (province, procedure) group. An empty
// procedure label scans all procedures. Groups with thin history or
// zero variance are skipped.
func (e *Engine) Outliers(ctx context.Context, procedureLabel, metricLabel string) ([]domain.OutlierRow, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	procedureID, err := e.optionalID(snap, apperrors.KindProcedure, procedureLabel)
	if err != nil {
		return nil, err
	}
	metric, err := e.resolveMetric(snap, metricLabel)
	if err != nil {
		return nil, err
	}

	values, err := e.store.GroupedValues(ctx, procedureID, metric.ID)
	if err != nil {
		return nil, err
	}

	type groupKey struct{ provinceID, procedureID int }
	groups := make(map[groupKey][]store.GroupedValue)
	var order []groupKey
	for _, v := range values {
		key := groupKey{v.ProvinceID, v.ProcedureID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], v)
	}

	var rows []domain.OutlierRow
	for _, key := range order {
		group := groups[key]
		if len(group) < e.outliers.MinOutlierHistory {
			continue
		}
		raw := make([]float64, len(group))
		for i, v := range group {
			raw[i] = v.Value
		}
		mean, std := meanStd(raw)
		if std == 0 {
			continue
		}
		for _, v := range group {
			z := math.Abs(v.Value-mean) / std
			if z <= e.outliers.OutlierSignificantZ {
				continue
			}
			rows = append(rows, domain.OutlierRow{
				Province:   v.ProvinceName,
				Procedure:  v.ProcedureName,
				Metric:     metric.Name,
				FiscalYear: v.FiscalYear,
				Value:      v.Value,
				GroupMean:  mean,
				GroupStd:   std,
				ZScore:     z,
				Severity:   outlierSeverity(z, e.outliers.OutlierSignificantZ, e.outliers.OutlierExtremeZ),
			})
		}
	}
	return rows, nil
}

// Correlation measures volume against median wait for one procedure.
// Below the minimum sample the result reports insufficiency instead of
// a coefficient.
func (e *Engine) Correlation(ctx context.Context, procedureLabel string) (*domain.CorrelationResult, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	procedure, err := snap.Resolve(apperrors.KindProcedure, procedureLabel)
	if err != nil {
		return nil, err
	}
	volumeMetric, ok := snap.MetricByName("Volume")
	if !ok {
		return nil, apperrors.NewDimensionNotFound(apperrors.KindMetric, "Volume")
	}
	medianMetric, err := e.resolveMetric(snap, "")
	if err != nil {
		return nil, err
	}

	pairs, err := e.store.VolumeWaitPairs(ctx, procedure.ID, volumeMetric.ID, medianMetric.ID)
	if err != nil {
		return nil, err
	}

	result := &domain.CorrelationResult{
		Procedure:  procedure.Name,
		SampleSize: len(pairs),
		MinSample:  e.analytics.CorrelationMinSample,
	}
	if len(pairs) < e.analytics.CorrelationMinSample {
		return result, nil
	}
	result.Sufficient = true

	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, p := range pairs {
		xs[i] = p.Volume
		ys[i] = p.MedianWait
	}
	if r, ok := pearson(xs, ys); ok {
		result.Coefficient = &r
	}
	return result, nil
}

// LongTerm compares the early half of a multi-year window against the
// recent half. Defaults to the national aggregate when no province is
// given; requires the configured minimum of distinct years.
func (e *Engine) LongTerm(ctx context.Context, procedureLabel, provinceLabel string, fromYear, toYear int) (*domain.LongTermResult, error) {
	snap, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	procedure, err := snap.Resolve(apperrors.KindProcedure, procedureLabel)
	if err != nil {
		return nil, err
	}
	if provinceLabel == "" {
		provinceLabel = "Canada"
	}
	province, err := snap.Resolve(apperrors.KindProvince, provinceLabel)
	if err != nil {
		return nil, err
	}
	metric, err := e.resolveMetric(snap, "")
	if err != nil {
		return nil, err
	}

	points, err := e.store.SeriesValues(ctx, province.ID, procedure.ID, metric.ID)
	if err != nil {
		return nil, err
	}

	years := make([]int, 0, len(points))
	values := make([]*float64, 0, len(points))
	for _, p := range points {
		if fromYear > 0 && p.FiscalYear < fromYear {
			continue
		}
		if toYear > 0 && p.FiscalYear > toYear {
			continue
		}
		years = append(years, p.FiscalYear)
		values = append(values, p.Value)
	}
	series := sortedSeries(years, values)

	if len(series) < e.analytics.MinLongTermYears {
		return nil, fmt.Errorf("%s needs %d distinct years, have %d: %w",
			procedure.Name, e.analytics.MinLongTermYears, len(series), ErrInsufficientData)
	}

	early, recent := splitWindows(series)
	earlyRaw := make([]float64, len(early))
	for i, yv := range early {
		earlyRaw[i] = yv.value
	}
	recentRaw := make([]float64, len(recent))
	for i, yv := range recent {
		recentRaw[i] = yv.value
	}
	earlyMean, _ := meanStd(earlyRaw)
	recentMean, _ := meanStd(recentRaw)
	change := recentMean - earlyMean

	result := &domain.LongTermResult{
		Procedure:      procedure.Name,
		Province:       province.Name,
		StartYear:      series[0].year,
		EndYear:        series[len(series)-1].year,
		YearsPresent:   len(series),
		EarlyMean:      earlyMean,
		RecentMean:     recentMean,
		AbsoluteChange: change,
		Assessment:     assessLongTerm(change, e.analytics.LongTermThreshold, metricDirection(snap, metric.ID)),
	}
	if earlyMean != 0 {
		pct := change / earlyMean * 100
		result.PercentChange = &pct
	}
	return result, nil
}

// optionalID resolves a dimension filter label; empty means no filter
func (e *Engine) optionalID(snap *dimension.Snapshot, kind apperrors.DimensionKind, label string) (int, error) {
	if label == "" {
		return 0, nil
	}
	match, err := snap.Resolve(kind, label)
	if err != nil {
		return 0, err
	}
	return match.ID, nil
}

// resolveMetric maps a metric label, falling back to the configured default
func (e *Engine) resolveMetric(snap *dimension.Snapshot, label string) (dimension.Metric, error) {
	if label == "" {
		label = e.analytics.DefaultMetric
	}
	metric, ok := snap.MetricByName(label)
	if !ok {
		match, err := snap.Resolve(apperrors.KindMetric, label)
		if err != nil {
			return dimension.Metric{}, err
		}
		metric, _ = snap.MetricByID(match.ID)
	}
	return metric, nil
}

// effectiveYear substitutes the latest committed year for a zero year
func (e *Engine) effectiveYear(ctx context.Context, year int) (int, error) {
	if year > 0 {
		return year, nil
	}
	latest, ok, err := e.store.LatestFiscalYear(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("fact store is empty: %w", ErrInsufficientData)
	}
	return latest, nil
}

func metricDirection(snap *dimension.Snapshot, metricID int) dimension.Direction {
	if m, ok := snap.MetricByID(metricID); ok {
		return m.Direction
	}
	return dimension.Neutral
}
