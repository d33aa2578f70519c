// Package analytics is the read-side engine: trend classification,
// provincial comparison, benchmark compliance, outlier queries and
// volume/wait correlation over the committed fact store. Computations are
// pure functions of fetched observations; nothing here writes.
package analytics

import (
	"math"
	"sort"

	"cwtcli/internal/dimension"
	"cwtcli/pkg/contracts/domain"
)

// yearValue is one (year, value) pair of an ordered series
type yearValue struct {
	year  int
	value float64
}

// buildTrendPoints computes year-over-year changes over an ordered
// series. Change is null for the first point and whenever the previous
// value is zero; direction comes from direct value comparison.
func buildTrendPoints(province, procedure, metric string, series []yearValue) []domain.TrendPoint {
	points := make([]domain.TrendPoint, 0, len(series))
	for i, yv := range series {
		point := domain.TrendPoint{
			Province:   province,
			Procedure:  procedure,
			Metric:     metric,
			FiscalYear: yv.year,
			Value:      yv.value,
			Direction:  domain.TrendNoPrevious,
		}
		if i > 0 {
			prev := series[i-1].value
			switch {
			case yv.value > prev:
				point.Direction = domain.TrendIncreasing
			case yv.value < prev:
				point.Direction = domain.TrendDecreasing
			default:
				point.Direction = domain.TrendStable
			}
			if prev != 0 {
				change := (yv.value - prev) / prev * 100
				point.YoYChangePct = &change
			}
		}
		points = append(points, point)
	}
	return points
}

// meanStd returns the mean and population standard deviation
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// performanceCategory buckets a value against the cross-province mean
func performanceCategory(value, mean float64) domain.PerformanceCategory {
	if mean == 0 {
		return domain.PerformanceNeedsImprovement
	}
	switch ratio := value / mean; {
	case ratio <= 0.90:
		return domain.PerformanceExcellent
	case ratio <= 1.10:
		return domain.PerformanceGood
	case ratio <= 1.30:
		return domain.PerformanceFair
	default:
		return domain.PerformanceNeedsImprovement
	}
}

// percentileRank is the fraction of other provinces this value
// outperforms; lower waits outperform higher ones
func percentileRank(value float64, all []float64) float64 {
	if len(all) < 2 {
		return 0
	}
	worse := 0
	for _, v := range all {
		if v > value {
			worse++
		}
	}
	return float64(worse) / float64(len(all)-1)
}

// complianceCategory buckets a benchmark-compliance percentage
func complianceCategory(pct float64) domain.ComplianceCategory {
	switch {
	case pct >= 90:
		return domain.ComplianceExcellent
	case pct >= 75:
		return domain.ComplianceGood
	case pct >= 50:
		return domain.ComplianceFair
	default:
		return domain.CompliancePoor
	}
}

// improvementNeeded is the shortfall against the 90% compliance target
func improvementNeeded(pct float64) float64 {
	return math.Max(0, 90-pct)
}

// outlierSeverity classifies an absolute z-score. The extreme bound is
// inclusive so a score sitting exactly on it reads as extreme.
func outlierSeverity(z, significant, extreme float64) domain.OutlierSeverity {
	switch {
	case z >= extreme:
		return domain.OutlierExtreme
	case z > significant:
		return domain.OutlierSignificant
	default:
		return domain.OutlierModerate
	}
}

// pearson computes the Pearson correlation coefficient over paired
// samples. Returns false when either side has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0, false
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

// splitWindows divides an ordered series into early and recent halves.
// The middle year of an odd-length series counts as recent.
func splitWindows(series []yearValue) (early, recent []yearValue) {
	half := len(series) / 2
	return series[:half], series[half:]
}

// assessLongTerm classifies the early-to-recent change. Direction flips
// the reading: growth in a higher-is-better metric is improvement.
func assessLongTerm(change, threshold float64, direction dimension.Direction) domain.LongTermAssessment {
	if math.Abs(change) <= threshold {
		return domain.LongTermStable
	}
	worsened := change > 0
	if direction == dimension.HigherIsBetter {
		worsened = !worsened
	}
	if worsened {
		return domain.LongTermDeteriorating
	}
	return domain.LongTermImproving
}

// sortedSeries filters nulls out of store points and orders by year
func sortedSeries(years []int, values []*float64) []yearValue {
	series := make([]yearValue, 0, len(years))
	for i, y := range years {
		if values[i] == nil {
			continue
		}
		series = append(series, yearValue{year: y, value: *values[i]})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].year < series[j].year })
	return series
}
