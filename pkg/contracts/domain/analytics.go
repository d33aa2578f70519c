package domain

// TrendDirection classifies year-over-year movement by direct value
// comparison. Stable applies only when values are exactly equal.
type TrendDirection string

const (
	TrendNoPrevious TrendDirection = "no_previous_data"
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendPoint is one row of the trend-analysis result set
type TrendPoint struct {
	Province     string         `json:"province"`
	Procedure    string         `json:"procedure"`
	Metric       string         `json:"metric"`
	FiscalYear   int            `json:"fiscal_year"`
	Value        float64        `json:"value"`
	YoYChangePct *float64       `json:"yoy_change_pct"`
	Direction    TrendDirection `json:"trend_direction"`
}

// TrendSeries groups one (province, procedure) series with summary stats
type TrendSeries struct {
	Province   string       `json:"province"`
	Procedure  string       `json:"procedure"`
	Points     []TrendPoint `json:"points"`
	MeanValue  float64      `json:"mean_value"`
	Volatility float64      `json:"volatility"`
}

// PerformanceCategory buckets a province's wait time against the
// cross-province mean
type PerformanceCategory string

const (
	PerformanceExcellent        PerformanceCategory = "excellent"
	PerformanceGood             PerformanceCategory = "good"
	PerformanceFair             PerformanceCategory = "fair"
	PerformanceNeedsImprovement PerformanceCategory = "needs_improvement"
)

// ComparisonRow is one province's row in a provincial comparison
type ComparisonRow struct {
	Province         string              `json:"province"`
	Value            float64             `json:"value"`
	Volume           *float64            `json:"volume"`
	VarianceFromMean float64             `json:"variance_from_mean"`
	PercentileRank   float64             `json:"percentile_rank"`
	Category         PerformanceCategory `json:"performance_category"`
}

// ComparisonResult is the full provincial-comparison result set
type ComparisonResult struct {
	Procedure string          `json:"procedure"`
	Metric    string          `json:"metric"`
	Year      int             `json:"year"`
	Mean      float64         `json:"cross_province_mean"`
	Rows      []ComparisonRow `json:"rows"`
}

// ComplianceCategory buckets a benchmark-compliance percentage
type ComplianceCategory string

const (
	ComplianceExcellent ComplianceCategory = "excellent"
	ComplianceGood      ComplianceCategory = "good"
	ComplianceFair      ComplianceCategory = "fair"
	CompliancePoor      ComplianceCategory = "poor"
)

// BenchmarkRow is one (province, procedure) row of the benchmark analysis
type BenchmarkRow struct {
	Province          string             `json:"province"`
	Procedure         string             `json:"procedure"`
	FiscalYear        int                `json:"fiscal_year"`
	CompliancePct     float64            `json:"compliance_pct"`
	Category          ComplianceCategory `json:"compliance_category"`
	ImprovementNeeded float64            `json:"improvement_needed"`
}

// OutlierRow is one historical record flagged by the outlier query
type OutlierRow struct {
	Province   string          `json:"province"`
	Procedure  string          `json:"procedure"`
	Metric     string          `json:"metric"`
	FiscalYear int             `json:"fiscal_year"`
	Value      float64         `json:"value"`
	GroupMean  float64         `json:"group_mean"`
	GroupStd   float64         `json:"group_stddev"`
	ZScore     float64         `json:"z_score"`
	Severity   OutlierSeverity `json:"severity"`
}

// CorrelationResult is the volume/wait-time correlation for a procedure.
// Sufficient is false when fewer than the minimum paired observations
// exist, in which case Coefficient is meaningless and omitted.
type CorrelationResult struct {
	Procedure   string   `json:"procedure"`
	SampleSize  int      `json:"sample_size"`
	MinSample   int      `json:"min_sample"`
	Sufficient  bool     `json:"sufficient"`
	Coefficient *float64 `json:"coefficient,omitempty"`
}

// LongTermAssessment classifies a long-window trend
type LongTermAssessment string

const (
	LongTermDeteriorating LongTermAssessment = "deteriorating"
	LongTermImproving     LongTermAssessment = "improving"
	LongTermStable        LongTermAssessment = "stable"
)

// LongTermResult compares an early sub-window mean to a recent one
type LongTermResult struct {
	Procedure      string             `json:"procedure"`
	Province       string             `json:"province,omitempty"`
	StartYear      int                `json:"start_year"`
	EndYear        int                `json:"end_year"`
	YearsPresent   int                `json:"years_present"`
	EarlyMean      float64            `json:"early_mean"`
	RecentMean     float64            `json:"recent_mean"`
	AbsoluteChange float64            `json:"absolute_change"`
	PercentChange  *float64           `json:"percent_change"`
	Assessment     LongTermAssessment `json:"assessment"`
}
